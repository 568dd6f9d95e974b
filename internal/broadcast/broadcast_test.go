package broadcast

import (
	"testing"

	"github.com/timekeep/timekeep/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(sess *MemorySession) []models.Event {
	var events []models.Event
	for {
		select {
		case ev := <-sess.Events():
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestPublishFansOutToAllUserSessions(t *testing.T) {
	registry := NewMemoryRegistry()
	b := New(registry)

	// Two tabs for user-1, one for user-2.
	tab1 := registry.Register("user-1")
	tab2 := registry.Register("user-1")
	other := registry.Register("user-2")

	b.Publish("user-1", models.Event{Type: models.EventStarted, TimerID: "timer-1"})

	for _, sess := range []*MemorySession{tab1, tab2} {
		events := drain(sess)
		require.Len(t, events, 1)
		assert.Equal(t, models.EventStarted, events[0].Type)
		assert.Equal(t, "timer-1", events[0].TimerID)
	}
	assert.Empty(t, drain(other))
}

func TestPublishNoSessionsIsNonFatal(t *testing.T) {
	b := New(NewMemoryRegistry())
	// Must not panic or block.
	b.Publish("user-1", models.Event{Type: models.EventStopped, TimerID: "timer-1"})
}

func TestPublishSkipsClosedSession(t *testing.T) {
	registry := NewMemoryRegistry()
	b := New(registry)

	live := registry.Register("user-1")
	gone := registry.Register("user-1")
	registry.Unregister(gone)

	b.Publish("user-1", models.Event{Type: models.EventDiscarded, TimerID: "timer-1"})

	require.Len(t, drain(live), 1)
	assert.Empty(t, drain(gone))
	assert.Len(t, registry.ConnectedSessions("user-1"), 1)
}

func TestSendDropsWhenBufferFull(t *testing.T) {
	registry := NewMemoryRegistry()
	sess := registry.Register("user-1")

	for i := 0; i < sessionBuffer; i++ {
		require.NoError(t, sess.Send(models.Event{Type: models.EventUpdated, TimerID: "timer-1"}))
	}
	// The slow session drops rather than blocking the publisher.
	assert.Error(t, sess.Send(models.Event{Type: models.EventUpdated, TimerID: "timer-1"}))
	assert.Len(t, drain(sess), sessionBuffer)
}

func TestUnregisterIdempotent(t *testing.T) {
	registry := NewMemoryRegistry()
	sess := registry.Register("user-1")

	registry.Unregister(sess)
	registry.Unregister(sess)
	assert.Empty(t, registry.ConnectedSessions("user-1"))
}
