package models

import "time"

// MemberType classifies a registrant and drives the default rank/role set.
type MemberType string

const (
	MemberTypeMember     MemberType = "Member"
	MemberTypeAssociate  MemberType = "Associate"
	MemberTypeAmbassador MemberType = "Ambassador"
)

// RegistrationStatus is the lifecycle status of a registration row in Coda.
// It only moves forward: Pending → Active. Rows are never deleted by this
// service; an abandoned Pending row simply ages out with its token.
type RegistrationStatus string

const (
	StatusStarted RegistrationStatus = "Started"
	StatusPending RegistrationStatus = "Pending"
	StatusUnused  RegistrationStatus = "Unused"
	StatusActive  RegistrationStatus = "Active"
)

// Column names in the registry table. Validated against the live schema at
// startup; a missing column is a hard init failure, not a silent skip.
const (
	ColIDNumber    = "ID Number"
	ColDiscordID   = "Discord ID"
	ColDisplayName = "Display Name"
	ColHandle      = "Handle"
	ColMemberType  = "Member Type"
	ColDivision    = "Division"
	ColRank        = "Rank"
	ColToken       = "Token"
	ColTokenIssued = "Token Issued"
	ColStatus      = "Status"
	ColJoinDate    = "Join Date"
	ColReferral    = "Referral"
)

// RequiredColumns is every column this service reads or writes.
var RequiredColumns = []string{
	ColIDNumber,
	ColDiscordID,
	ColDisplayName,
	ColHandle,
	ColMemberType,
	ColDivision,
	ColRank,
	ColToken,
	ColTokenIssued,
	ColStatus,
	ColJoinDate,
	ColReferral,
}

// RegistrationRecord is the durable, Coda-backed record of a member's
// registration. It outlives the in-memory Session; token redemption is
// answered from this record alone.
type RegistrationRecord struct {
	RowID       string             `json:"row_id"`
	IDNumber    string             `json:"id_number"`
	DiscordID   string             `json:"discord_id"`
	DisplayName string             `json:"display_name"`
	Handle      string             `json:"handle"`
	MemberType  MemberType         `json:"member_type"`
	Division    string             `json:"division"`
	Rank        string             `json:"rank"`
	Token       string             `json:"token"`
	TokenIssued time.Time          `json:"token_issued"`
	Status      RegistrationStatus `json:"status"`
	JoinDate    string             `json:"join_date"`
	Referral    string             `json:"referral"`
}

// TokenTTL is how long a registration token stays redeemable.
const TokenTTL = 24 * time.Hour

// TokenLength is the length of the upper-case alphanumeric registration token.
const TokenLength = 8
