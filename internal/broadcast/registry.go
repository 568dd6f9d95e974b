package broadcast

import (
	"sync"

	"github.com/timekeep/timekeep/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// sessionBuffer bounds the per-session event queue. A session that cannot
// keep up drops events rather than blocking the publisher; at-most-once,
// not at-least-once.
const sessionBuffer = 16

// MemorySession is a channel-backed session handle. The transport layer
// drains Events and forwards them to the client.
type MemorySession struct {
	id     string
	userID string
	events chan models.Event

	closeOnce sync.Once
	closed    chan struct{}
}

func (s *MemorySession) ID() string { return s.id }

// Events is the stream the transport drains.
func (s *MemorySession) Events() <-chan models.Event { return s.events }

// Send queues the event without blocking. Returns an error when the session
// is closed or its buffer is full.
func (s *MemorySession) Send(event models.Event) error {
	select {
	case <-s.closed:
		return errors.Errorf("session %s closed", s.id)
	default:
	}

	select {
	case s.events <- event:
		return nil
	default:
		return errors.Errorf("session %s buffer full", s.id)
	}
}

func (s *MemorySession) close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// MemoryRegistry tracks live sessions per user. Safe for concurrent use.
type MemoryRegistry struct {
	mu       sync.RWMutex
	sessions map[string]map[string]*MemorySession // userID -> sessionID -> session
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		sessions: make(map[string]map[string]*MemorySession),
	}
}

// Register creates and tracks a new session for the user.
func (r *MemoryRegistry) Register(userID string) *MemorySession {
	sess := &MemorySession{
		id:     uuid.NewString(),
		userID: userID,
		events: make(chan models.Event, sessionBuffer),
		closed: make(chan struct{}),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[userID] == nil {
		r.sessions[userID] = make(map[string]*MemorySession)
	}
	r.sessions[userID][sess.id] = sess
	return sess
}

// Unregister removes and closes the session. Safe to call twice.
func (r *MemoryRegistry) Unregister(sess *MemorySession) {
	r.mu.Lock()
	if userSessions, ok := r.sessions[sess.userID]; ok {
		delete(userSessions, sess.id)
		if len(userSessions) == 0 {
			delete(r.sessions, sess.userID)
		}
	}
	r.mu.Unlock()

	sess.close()
}

// ConnectedSessions returns the user's live sessions.
func (r *MemoryRegistry) ConnectedSessions(userID string) []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userSessions := r.sessions[userID]
	out := make([]Session, 0, len(userSessions))
	for _, sess := range userSessions {
		out = append(out, sess)
	}
	return out
}
