package timer

import (
	"context"
	"time"

	"github.com/timekeep/timekeep/internal/models"
)

// TaskDirectory is the externally-owned task catalog. The controller only
// needs ownership answers and the display fields it denormalizes into
// snapshots and events.
type TaskDirectory interface {
	OwnsTask(ctx context.Context, userID, taskID string) (bool, error)
	TaskInfo(ctx context.Context, taskID string) (*models.TaskInfo, error)
}

// PreferencesProvider resolves per-user rounding and idle settings.
// *database.PreferencesRepository satisfies it.
type PreferencesProvider interface {
	GetPreferences(ctx context.Context, userID string) (*models.UserTimerPreferences, error)
}

// Store is the durable timer store. *database.TimerStore satisfies it.
type Store interface {
	CreateRunning(ctx context.Context, userID, taskID, projectID, description string, startTime time.Time) (*models.TimerRecord, error)
	StopAndCreateRunning(ctx context.Context, userID string, endTime time.Time, computeDuration func(elapsed time.Duration) (int64, error), taskID, projectID, description string, startTime time.Time) (stopped, created *models.TimerRecord, err error)
	Stop(ctx context.Context, timerID string, endTime time.Time, duration int64) (*models.TimerRecord, error)
	Delete(ctx context.Context, timerID string) error
	GetRunningForUser(ctx context.Context, userID string) (*models.TimerRecord, error)
	GetByID(ctx context.Context, timerID string) (*models.TimerRecord, error)
	GetIdleNotification(ctx context.Context, notificationID, userID string) (*models.IdleNotification, error)
	ResolveIdle(ctx context.Context, notificationID string, action models.IdleAction, endTime time.Time, duration int64) (*models.TimerRecord, error)
}

// Cache is the active-timer cache. *cache.ActiveTimerCache satisfies it.
// Cache failures never surface here; the cache degrades to the store
// internally.
type Cache interface {
	Get(ctx context.Context, userID string) (*models.TimerSnapshot, error)
	Set(ctx context.Context, userID string, snap *models.TimerSnapshot)
	Clear(ctx context.Context, userID string)
}

// Publisher delivers committed lifecycle events. *broadcast.Broadcaster
// satisfies it.
type Publisher interface {
	Publish(userID string, event models.Event)
}
