package models

// Static org taxonomy. These tables mirror the org charter spreadsheet and
// are treated as configuration; the service maps through them but never
// validates the charter itself.

const (
	DivisionNone         = "Non-Division"
	DivisionNoneCode     = "ND"
	RankRecruit          = "Recruit"
	RankRecruitCode      = "20"
	RankRecruitAbbrev    = "RCT"
	RankAssociate        = "Associate"
	RankAssociateCode    = "90"
	RankAssociateAbbrev  = "ASC"
	RankAmbassador       = "Ambassador"
	RankAmbassadorCode   = "95"
	RankAmbassadorAbbrev = "AMB"
)

// DivisionCodes maps a division name to its identifier prefix.
var DivisionCodes = map[string]string{
	DivisionNone:       DivisionNoneCode,
	"Tactical Command": "TC",
	"Logistics":        "LG",
	"Exploration":      "EX",
	"Industry":         "IN",
	"Medical":          "MD",
	"Security":         "SC",
}

// FleetWingDivisions maps a fleet wing to its owning division, for callers
// that know the wing but not the division.
var FleetWingDivisions = map[string]string{
	"Vanguard Wing":   "Tactical Command",
	"Pathfinder Wing": "Exploration",
	"Hauler Wing":     "Logistics",
	"Prospector Wing": "Industry",
	"Lifeline Wing":   "Medical",
	"Warden Wing":     "Security",
}

// RankCodes maps a rank name to its identifier segment. Recruit is the most
// junior rank; every plain Member starts there.
var RankCodes = map[string]string{
	RankRecruit:    RankRecruitCode,
	"Crewman":      "19",
	"Specialist":   "15",
	"Chief":        "10",
	"Lieutenant":   "05",
	"Commander":    "03",
	"Director":     "01",
	RankAssociate:  RankAssociateCode,
	RankAmbassador: RankAmbassadorCode,
}

// RankAbbrevs maps a rank name to the prefix used in Discord nicknames.
var RankAbbrevs = map[string]string{
	RankRecruit:    RankRecruitAbbrev,
	"Crewman":      "CRW",
	"Specialist":   "SPC",
	"Chief":        "CHF",
	"Lieutenant":   "LT",
	"Commander":    "CDR",
	"Director":     "DIR",
	RankAssociate:  RankAssociateAbbrev,
	RankAmbassador: RankAmbassadorAbbrev,
}

// RankForMemberType resolves the rank a fresh registrant lands on.
// Associates and Ambassadors get their own fixed ranks; everyone else
// starts at the bottom.
func RankForMemberType(mt MemberType) string {
	switch mt {
	case MemberTypeAssociate:
		return RankAssociate
	case MemberTypeAmbassador:
		return RankAmbassador
	default:
		return RankRecruit
	}
}
