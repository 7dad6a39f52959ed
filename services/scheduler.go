// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// SessionIdleTimeout mirrors the presentation layer's view timeout: a
// session untouched for this long is treated as abandoned.
const SessionIdleTimeout = 15 * time.Minute

// StartSessionSweeper expires idle sessions once a minute. This is the
// server-side safety net behind the view timeout; if the presentation
// process dies without calling cancel, sessions still get cleaned up
// deterministically. Expiry never touches the registry.
func StartSessionSweeper(sessions *SessionStore) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	sched.Start()

	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			expired := sessions.ExpireIdle(SessionIdleTimeout)
			for _, id := range expired {
				log.Printf("⏰ [SESSIONS] Session %s timed out", id)
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	return sched, nil
}
