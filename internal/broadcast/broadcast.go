// Package broadcast fans timer lifecycle events out to every live session of
// the owning user. Delivery is best-effort and at-most-once per session;
// clients treat the active-timer read path as the source of truth on
// reconnect.
package broadcast

import (
	"log"

	"github.com/timekeep/timekeep/internal/models"
)

// Session is one connected client (a browser tab, a desktop widget).
type Session interface {
	ID() string
	Send(event models.Event) error
}

// SessionRegistry resolves the live sessions for a user. Owned by the
// transport layer.
type SessionRegistry interface {
	ConnectedSessions(userID string) []Session
}

// Broadcaster publishes committed state changes. Failures are non-fatal to
// the triggering operation: the store has already committed by the time
// Publish runs.
type Broadcaster struct {
	registry SessionRegistry
}

func New(registry SessionRegistry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Publish delivers the event to all of the user's sessions. Send failures
// are logged and the remaining sessions still receive the event.
func (b *Broadcaster) Publish(userID string, event models.Event) {
	sessions := b.registry.ConnectedSessions(userID)
	for _, sess := range sessions {
		if err := sess.Send(event); err != nil {
			log.Printf("broadcast: dropped %s event for session %s: %v", event.Type, sess.ID(), err)
		}
	}
}
