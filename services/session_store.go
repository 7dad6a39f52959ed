// crew-registry-system/services/session_store.go
package services

import (
	"errors"
	"log"
	"sync"
	"time"

	"crew-registry-system/models"

	"github.com/google/uuid"
)

// ErrSessionActive is returned when a user who already has a live session
// tries to start another one.
var ErrSessionActive = errors.New("user already has an active onboarding session")

// SessionStore holds every in-flight onboarding session. It is purely
// in-process: a restart drops all sessions, which is fine because token
// redemption never depends on one existing.
//
// Create enforces at-most-one active session per user atomically (lookup and
// insert under the same lock), so callers don't get a check-then-act window.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session // session id → session
	byUser   map[string]string          // user id → session id
	now      func() time.Time
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*models.Session),
		byUser:   make(map[string]string),
		now:      time.Now,
	}
}

// Create starts a session for the user in WELCOME state and returns a
// snapshot of it. Fails with ErrSessionActive if the user already has one.
func (st *SessionStore) Create(userID string) (models.Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.byUser[userID]; ok {
		return models.Session{}, ErrSessionActive
	}

	now := st.now().UTC()
	sess := &models.Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		StartedAt:  now,
		LastActive: now,
		State:      models.StateWelcome,
		Data:       make(map[string]string),
	}
	st.sessions[sess.ID] = sess
	st.byUser[userID] = sess.ID
	return sess.Snapshot(), nil
}

// Get returns a snapshot of the session, or false if it doesn't exist.
func (st *SessionStore) Get(sessionID string) (models.Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, ok := st.sessions[sessionID]
	if !ok {
		return models.Session{}, false
	}
	return sess.Snapshot(), true
}

// GetByUser returns a snapshot of the user's active session, if any.
func (st *SessionStore) GetByUser(userID string) (models.Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	id, ok := st.byUser[userID]
	if !ok {
		return models.Session{}, false
	}
	return st.sessions[id].Snapshot(), true
}

// SetState moves the session to a new state. Reaching a terminal state
// removes the session from the store; it can never be advanced again.
func (st *SessionStore) SetState(sessionID string, state models.OnboardingState) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, ok := st.sessions[sessionID]
	if !ok {
		return false
	}

	sess.State = state
	sess.LastActive = st.now().UTC()
	if state.IsTerminal() {
		st.removeLocked(sess)
	}
	return true
}

// MergeData folds the given fields into the session's data map.
func (st *SessionStore) MergeData(sessionID string, fields map[string]string) bool {
	st.mu.Lock()
	defer st.mu.Unlock()

	sess, ok := st.sessions[sessionID]
	if !ok {
		return false
	}
	for k, v := range fields {
		sess.Data[k] = v
	}
	sess.LastActive = st.now().UTC()
	return true
}

// Remove drops the session, whatever state it is in. Removing a session
// that is already gone is a no-op; cancel and timeout can race.
func (st *SessionStore) Remove(sessionID string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if sess, ok := st.sessions[sessionID]; ok {
		st.removeLocked(sess)
	}
}

func (st *SessionStore) removeLocked(sess *models.Session) {
	delete(st.sessions, sess.ID)
	if st.byUser[sess.UserID] == sess.ID {
		delete(st.byUser, sess.UserID)
	}
}

// ExpireIdle removes every session idle for longer than maxIdle and returns
// the ids it dropped. No remote side effect: any Pending row the session
// created stays put and ages out with its token.
func (st *SessionStore) ExpireIdle(maxIdle time.Duration) []string {
	st.mu.Lock()
	defer st.mu.Unlock()

	cutoff := st.now().UTC().Add(-maxIdle)
	var expired []string
	for _, sess := range st.sessions {
		if sess.LastActive.Before(cutoff) {
			expired = append(expired, sess.ID)
			st.removeLocked(sess)
		}
	}
	if len(expired) > 0 {
		log.Printf("🧹 [SESSIONS] Expired %d idle session(s)", len(expired))
	}
	return expired
}

// Count returns the number of live sessions (health endpoint).
func (st *SessionStore) Count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}
