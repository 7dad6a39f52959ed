// crew-registry-system/services/onboarding_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"crew-registry-system/models"
	"crew-registry-system/utils"
)

var (
	// ErrSessionNotFound covers unknown session ids and sessions already torn
	// down; terminal sessions are never resurrected.
	ErrSessionNotFound = errors.New("onboarding session not found")
	// ErrWrongStep means the submitted fields don't belong to the session's
	// current state. Steps are strictly sequential.
	ErrWrongStep = errors.New("submission does not match the current onboarding step")
	// ErrRemoteStore means the registry write/read failed and the step was
	// aborted.
	ErrRemoteStore = errors.New("registry unavailable")

	ErrTokenNotFound          = errors.New("registration token not found")
	ErrTokenOwnershipMismatch = errors.New("registration token belongs to a different user")
	ErrTokenExpired           = errors.New("registration token expired")
)

// RoleAssigner is what redemption needs from the roles service.
type RoleAssigner interface {
	AssignInitialRoles(userID string, memberType models.MemberType) error
	UpdateNickname(userID, rank, handle string) error
}

// RedeemResult is returned on successful token redemption so the caller can
// build its confirmation message.
type RedeemResult struct {
	MemberType models.MemberType `json:"member_type"`
	Rank       string            `json:"rank"`
	IDNumber   string            `json:"id_number"`
}

// allocRetries bounds the reallocate-on-duplicate loop at record creation.
const allocRetries = 3

// OnboardingService drives a session through
// WELCOME → BASIC_INFO → REVIEW → COMPLETE, with CANCELED reachable from any
// non-terminal state. It owns the externally visible contract; SessionStore,
// IdentifierService and the registry client are its internals.
type OnboardingService struct {
	Sessions *SessionStore
	IDs      *IdentifierService
	Store    RecordStore
	Roles    RoleAssigner

	// Injected for tests.
	Now      func() time.Time
	NewToken func(length int) (string, error)
}

func NewOnboardingService(sessions *SessionStore, ids *IdentifierService, store RecordStore, roles RoleAssigner) *OnboardingService {
	return &OnboardingService{
		Sessions: sessions,
		IDs:      ids,
		Store:    store,
		Roles:    roles,
		Now:      time.Now,
		NewToken: utils.NewRegistrationToken,
	}
}

// StartSession opens a new session for the user. A user with a live session
// gets ErrSessionActive; enforcement is atomic inside the store, there is
// no caller-side check-then-act.
func (s *OnboardingService) StartSession(userID, displayName string) (models.Session, error) {
	sess, err := s.Sessions.Create(userID)
	if err != nil {
		return models.Session{}, err
	}
	if displayName != "" {
		s.Sessions.MergeData(sess.ID, map[string]string{"display_name": displayName})
	}
	log.Printf("🟢 [ONBOARD] Session %s started for user %s", sess.ID, userID)
	return sess, nil
}

func (s *OnboardingService) GetSession(sessionID string) (models.Session, bool) {
	return s.Sessions.Get(sessionID)
}

func (s *OnboardingService) GetSessionByUser(userID string) (models.Session, bool) {
	return s.Sessions.GetByUser(userID)
}

// UpdateSessionData merges presentation-collected fields into the session.
func (s *OnboardingService) UpdateSessionData(sessionID string, fields map[string]string) error {
	if !s.Sessions.MergeData(sessionID, fields) {
		return ErrSessionNotFound
	}
	return nil
}

// Advance submits one step's fields and moves the session forward. The step
// is chosen by the session's current state:
//
//	WELCOME    expects "member_type"             → BASIC_INFO
//	BASIC_INFO expects "handle" (+ optional
//	           "referral", "interests",
//	           "timezone")                       → REVIEW, or CANCELED when
//	                                               the registry write fails
//
// Validation happens before anything touches the registry.
func (s *OnboardingService) Advance(ctx context.Context, sessionID string, fields map[string]string) (models.OnboardingState, error) {
	sess, ok := s.Sessions.Get(sessionID)
	if !ok {
		return "", ErrSessionNotFound
	}

	switch sess.State {
	case models.StateWelcome:
		return s.chooseMemberType(sess, fields)
	case models.StateBasicInfo:
		return s.submitBasicInfo(ctx, sess, fields)
	default:
		return sess.State, ErrWrongStep
	}
}

func (s *OnboardingService) chooseMemberType(sess models.Session, fields map[string]string) (models.OnboardingState, error) {
	mt := models.MemberType(strings.TrimSpace(fields[models.DataMemberType]))
	// Ambassador has an allocator rank code but no self-service entry point;
	// only staff create Ambassador records.
	if mt != models.MemberTypeMember && mt != models.MemberTypeAssociate {
		return sess.State, &ValidationError{Field: "member_type", Reason: "choose Member or Associate"}
	}

	if !s.Sessions.MergeData(sess.ID, map[string]string{models.DataMemberType: string(mt)}) {
		return "", ErrSessionNotFound
	}
	s.Sessions.SetState(sess.ID, models.StateBasicInfo)
	return models.StateBasicInfo, nil
}

func (s *OnboardingService) submitBasicInfo(ctx context.Context, sess models.Session, fields map[string]string) (models.OnboardingState, error) {
	handle := strings.TrimSpace(fields[models.DataHandle])
	if err := ValidateHandle(handle); err != nil {
		return sess.State, err
	}
	if interests := strings.TrimSpace(fields["interests"]); interests != "" {
		if err := ValidateContent("interests", interests); err != nil {
			return sess.State, err
		}
	}
	if tz := strings.TrimSpace(fields["timezone"]); tz != "" {
		if err := ValidateTimezone(tz); err != nil {
			return sess.State, err
		}
	}
	referral := strings.TrimSpace(fields[models.DataReferral])

	memberType := models.MemberType(sess.Data[models.DataMemberType])
	rank := models.RankForMemberType(memberType)

	idNumber, err := s.allocateUnclaimedID(ctx, memberType)
	if err != nil {
		// Registry unreachable: abort the session rather than leave the user
		// holding a token that was never persisted. No automatic retry here.
		s.Sessions.SetState(sess.ID, models.StateCanceled)
		log.Printf("❌ [ONBOARD] Session %s canceled, registry unavailable: %v", sess.ID, err)
		return models.StateCanceled, fmt.Errorf("%w: %v", ErrRemoteStore, err)
	}

	token, err := s.NewToken(models.TokenLength)
	if err != nil {
		s.Sessions.SetState(sess.ID, models.StateCanceled)
		return models.StateCanceled, fmt.Errorf("failed to generate registration token: %w", err)
	}
	issued := s.Now().UTC()

	rowID, err := s.Store.CreateRow(ctx, map[string]interface{}{
		models.ColIDNumber:    idNumber,
		models.ColDiscordID:   sess.UserID,
		models.ColDisplayName: sess.Data["display_name"],
		models.ColHandle:      handle,
		models.ColMemberType:  string(memberType),
		models.ColDivision:    models.DivisionNone,
		models.ColRank:        rank,
		models.ColToken:       token,
		models.ColTokenIssued: issued.Format(time.RFC3339),
		models.ColStatus:      string(models.StatusPending),
		models.ColReferral:    referral,
	})
	if err != nil || rowID == "" {
		s.Sessions.SetState(sess.ID, models.StateCanceled)
		log.Printf("❌ [ONBOARD] Session %s canceled, record creation failed: %v", sess.ID, err)
		return models.StateCanceled, fmt.Errorf("%w: record creation failed: %v", ErrRemoteStore, err)
	}

	s.Sessions.MergeData(sess.ID, map[string]string{
		models.DataHandle:   handle,
		models.DataReferral: referral,
		models.DataToken:    token,
		models.DataIDNumber: idNumber,
		models.DataRowID:    rowID,
	})
	s.Sessions.SetState(sess.ID, models.StateReview)
	log.Printf("📋 [ONBOARD] Session %s reached review: id=%s user=%s", sess.ID, idNumber, sess.UserID)
	return models.StateReview, nil
}

// allocateUnclaimedID mints an ID Number and re-checks it against the
// registry, reallocating a bounded number of times if another writer claimed
// it in the scan-to-write gap. In-process allocation is already serialized;
// this covers a second bot process sharing the table.
func (s *OnboardingService) allocateUnclaimedID(ctx context.Context, memberType models.MemberType) (string, error) {
	var idNumber string
	for attempt := 1; attempt <= allocRetries; attempt++ {
		idNumber = s.IDs.Allocate(ctx, memberType, "", "")

		taken, err := s.Store.QueryRows(ctx, models.ColIDNumber, idNumber)
		if err != nil {
			// Degraded: can't verify uniqueness, but the allocator already
			// fell back to its random high range. Let the write proceed and
			// surface any real outage there.
			log.Printf("⚠️ [ALLOC] Duplicate check unavailable for %s, proceeding: %v", idNumber, err)
			return idNumber, nil
		}
		if len(taken) == 0 {
			return idNumber, nil
		}
		log.Printf("⚠️ [ALLOC] ID %s already claimed, reallocating (attempt %d/%d)", idNumber, attempt, allocRetries)
	}
	return "", fmt.Errorf("could not mint an unclaimed id after %d attempts (last: %s)", allocRetries, idNumber)
}

// RedeemToken exchanges a registration token for the member's roles and
// nickname and activates the record. It deliberately ignores the session
// table: the token is the durable handle and stays valid for its full 24h
// even after the session times out.
//
// Failed redemptions never mutate the record, so the same user can retry
// safely until the token's window closes.
func (s *OnboardingService) RedeemToken(ctx context.Context, token, userID string) (RedeemResult, error) {
	token = strings.ToUpper(strings.TrimSpace(token))
	if token == "" {
		return RedeemResult{}, ErrTokenNotFound
	}

	rows, err := s.Store.QueryRows(ctx, models.ColToken, token)
	if err != nil {
		return RedeemResult{}, fmt.Errorf("%w: token lookup failed: %v", ErrRemoteStore, err)
	}

	// Tokens are single-use: a record that already went Active no longer
	// matches, so a second redemption reads as not-found.
	var record models.RegistrationRecord
	found := false
	for _, row := range rows {
		r := recordFromRow(row)
		switch r.Status {
		case models.StatusStarted, models.StatusPending, models.StatusUnused:
			record = r
			found = true
		}
	}
	if !found {
		return RedeemResult{}, ErrTokenNotFound
	}

	if record.DiscordID != userID {
		// Reported distinctly here, inside the trust boundary; the gateway
		// presents it identically to not-found.
		log.Printf("🚫 [REDEEM] User %s tried to redeem someone else's token", userID)
		return RedeemResult{}, ErrTokenOwnershipMismatch
	}

	if s.Now().UTC().Sub(record.TokenIssued) > models.TokenTTL {
		return RedeemResult{}, ErrTokenExpired
	}

	// Roles are required; the record stays untouched if this fails.
	if err := s.Roles.AssignInitialRoles(userID, record.MemberType); err != nil {
		return RedeemResult{}, fmt.Errorf("role assignment failed: %w", err)
	}

	// Nickname is best-effort; the roles service already logged any failure.
	_ = s.Roles.UpdateNickname(userID, record.Rank, record.Handle)

	joinDate := s.Now().UTC().Format("2006-01-02")
	if err := s.Store.UpdateRow(ctx, record.RowID, map[string]interface{}{
		models.ColStatus:   string(models.StatusActive),
		models.ColToken:    "",
		models.ColJoinDate: joinDate,
	}); err != nil {
		return RedeemResult{}, fmt.Errorf("%w: activation write failed: %v", ErrRemoteStore, err)
	}

	// Tear down the originating session if it is still hanging around.
	if sess, ok := s.Sessions.GetByUser(userID); ok && sess.Data[models.DataToken] == token {
		s.Sessions.SetState(sess.ID, models.StateComplete)
	}

	log.Printf("🎉 [REDEEM] %s activated as %s (%s)", record.IDNumber, record.MemberType, userID)
	return RedeemResult{MemberType: record.MemberType, Rank: record.Rank, IDNumber: record.IDNumber}, nil
}

// CancelSession drops the session. Idempotent, and never touches any row
// the session already created; an abandoned Pending row ages out with its
// token.
func (s *OnboardingService) CancelSession(sessionID string) {
	s.Sessions.Remove(sessionID)
}

// recordFromRow maps a registry row onto a RegistrationRecord. Coda hands
// values back as strings for text columns; anything unexpected decodes to
// its zero value rather than failing the whole lookup.
func recordFromRow(row RemoteRow) models.RegistrationRecord {
	str := func(col string) string {
		v, _ := row.Values[col].(string)
		return strings.TrimSpace(v)
	}
	issued, _ := time.Parse(time.RFC3339, str(models.ColTokenIssued))
	return models.RegistrationRecord{
		RowID:       row.ID,
		IDNumber:    str(models.ColIDNumber),
		DiscordID:   str(models.ColDiscordID),
		DisplayName: str(models.ColDisplayName),
		Handle:      str(models.ColHandle),
		MemberType:  models.MemberType(str(models.ColMemberType)),
		Division:    str(models.ColDivision),
		Rank:        str(models.ColRank),
		Token:       str(models.ColToken),
		TokenIssued: issued,
		Status:      models.RegistrationStatus(str(models.ColStatus)),
		JoinDate:    str(models.ColJoinDate),
		Referral:    str(models.ColReferral),
	}
}
