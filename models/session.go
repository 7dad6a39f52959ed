package models

import "time"

// OnboardingState is the named state of an in-flight onboarding session.
type OnboardingState string

const (
	StateWelcome   OnboardingState = "WELCOME"
	StateBasicInfo OnboardingState = "BASIC_INFO"
	StateReview    OnboardingState = "REVIEW"
	StateComplete  OnboardingState = "COMPLETE"
	StateCanceled  OnboardingState = "CANCELED"
)

// IsTerminal reports whether a session in this state is finished.
// Terminal sessions are removed from the store and never resurrected.
func (s OnboardingState) IsTerminal() bool {
	return s == StateComplete || s == StateCanceled
}

// Well-known keys for Session.Data. The data map is open-ended (steps can
// stash whatever they collect), but these are the keys the state machine
// itself reads back.
const (
	DataMemberType = "member_type"
	DataHandle     = "handle"
	DataReferral   = "referral"
	DataToken      = "token"
	DataIDNumber   = "id_number"
	DataRowID      = "row_id"
)

// Session is the in-memory, per-user record of onboarding progress.
// It is intentionally NOT durable: a restart drops all in-flight sessions
// and only the RegistrationRecord in Coda survives.
type Session struct {
	ID         string            `json:"session_id"`
	UserID     string            `json:"user_id"`
	StartedAt  time.Time         `json:"started_at"`
	LastActive time.Time         `json:"last_active"`
	State      OnboardingState   `json:"state"`
	Data       map[string]string `json:"data"`
}

// Snapshot returns a copy safe to hand outside the store. The Data map is
// cloned so presentation code can't mutate store state behind the mutex.
func (s *Session) Snapshot() Session {
	out := *s
	out.Data = make(map[string]string, len(s.Data))
	for k, v := range s.Data {
		out.Data[k] = v
	}
	return out
}
