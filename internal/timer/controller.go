// Package timer orchestrates the active-timer lifecycle: start, stop,
// discard, idle resolution. Per user the controller is a two-state machine
// (idle, running); serialization of concurrent mutations is pushed down to
// the store's transactional guarantees, so no in-process lock is held across
// an I/O boundary and multiple controller instances stay correct.
package timer

import (
	"context"
	"log"
	"time"

	"github.com/timekeep/timekeep/internal/apperr"
	"github.com/timekeep/timekeep/internal/models"
	"github.com/timekeep/timekeep/internal/rounding"

	"github.com/pkg/errors"
)

// ConfirmationRequired describes the effect an operation would have, instead
// of performing it. Not an error: the caller re-invokes with explicit
// confirmation once the human has chosen.
type ConfirmationRequired struct {
	// CurrentTimer is the running timer that would be affected.
	CurrentTimer *models.TimerSnapshot `json:"current_timer"`
	// RequestedTaskID is set on a Start confirmation: the task the new timer
	// would track.
	RequestedTaskID string `json:"requested_task_id,omitempty"`
}

// StartResult is the union outcome of Start: either a snapshot of the new
// running timer, or a confirmation payload.
type StartResult struct {
	Timer        *models.TimerSnapshot
	Confirmation *ConfirmationRequired
}

// DiscardResult is the union outcome of Discard.
type DiscardResult struct {
	DiscardedTimerID string
	Confirmation     *ConfirmationRequired
}

// ResolveIdleResult reports the timer mutated by an idle resolution.
type ResolveIdleResult struct {
	TimerID            string
	Action             models.IdleAction
	NewDurationSeconds int64
}

// Controller orchestrates timer mutations across the store, the cache and
// the broadcaster. Store commit happens first, then the cache write, then
// the event; events notify committed state and are never part of the
// transaction.
type Controller struct {
	store       Store
	cache       Cache
	tasks       TaskDirectory
	prefs       PreferencesProvider
	broadcaster Publisher

	now func() time.Time
}

func NewController(store Store, c Cache, tasks TaskDirectory, prefs PreferencesProvider, broadcaster Publisher) *Controller {
	return &Controller{
		store:       store,
		cache:       c,
		tasks:       tasks,
		prefs:       prefs,
		broadcaster: broadcaster,
		now:         time.Now,
	}
}

// Start begins a timer on taskID for the user. With a timer already running
// and autoStopCurrent false, returns a confirmation payload describing both
// timers; with autoStopCurrent true the current timer is stopped and the new
// one created in a single store transaction, and a stopped event precedes
// the started event.
func (c *Controller) Start(ctx context.Context, userID, taskID, description string, autoStopCurrent bool) (*StartResult, error) {
	owns, err := c.tasks.OwnsTask(ctx, userID, taskID)
	if err != nil {
		return nil, errors.Wrapf(apperr.ErrTransient, "ownership check: %v", err)
	}
	if !owns {
		return nil, errors.Wrapf(apperr.ErrForbidden, "user %s does not own task %s", userID, taskID)
	}

	info, err := c.tasks.TaskInfo(ctx, taskID)
	if err != nil {
		return nil, errors.Wrapf(apperr.ErrTransient, "task lookup: %v", err)
	}

	now := c.now()

	if !autoStopCurrent {
		current, err := c.cache.Get(ctx, userID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, errors.Wrapf(apperr.ErrTransient, "reading active timer: %v", err)
		}
		if current != nil {
			current.ElapsedSeconds = elapsedFrom(current.StartTime, now)
			return &StartResult{Confirmation: &ConfirmationRequired{
				CurrentTimer:    current,
				RequestedTaskID: taskID,
			}}, nil
		}

		rec, err := c.store.CreateRunning(ctx, userID, taskID, info.ProjectID, description, now)
		if errors.Is(err, apperr.ErrConflict) {
			// Lost a race with a concurrent start: surface it the same way
			// as a pre-existing timer, as a confirmation, not a failure.
			if current, getErr := c.cache.Get(ctx, userID); getErr == nil {
				current.ElapsedSeconds = elapsedFrom(current.StartTime, c.now())
				return &StartResult{Confirmation: &ConfirmationRequired{
					CurrentTimer:    current,
					RequestedTaskID: taskID,
				}}, nil
			}
			return nil, err
		}
		if err != nil {
			return nil, err
		}
		return c.commitStart(ctx, userID, rec, info, nil), nil
	}

	stopped, created, err := c.store.StopAndCreateRunning(
		ctx, userID, now, c.durationComputer(ctx, userID),
		taskID, info.ProjectID, description, now,
	)
	if err != nil {
		return nil, err
	}

	var stoppedEvent *models.Event
	if stopped != nil && stopped.EndTime != nil {
		ev := models.StoppedEvent(stopped.ID, *stopped.EndTime, stopped.Duration)
		stoppedEvent = &ev
	}
	return c.commitStart(ctx, userID, created, info, stoppedEvent), nil
}

// commitStart performs the post-commit half of a start: cache write-through
// and event emission, stopped before started when a timer was auto-stopped.
func (c *Controller) commitStart(ctx context.Context, userID string, rec *models.TimerRecord, info *models.TaskInfo, stoppedEvent *models.Event) *StartResult {
	snap := models.SnapshotFromRecord(rec, info.Title, info.ProjectName, c.now())
	c.cache.Set(ctx, userID, snap)

	if stoppedEvent != nil {
		c.broadcaster.Publish(userID, *stoppedEvent)
	}
	c.broadcaster.Publish(userID, models.SnapshotEvent(models.EventStarted, snap))
	return &StartResult{Timer: snap}
}

// Stop finishes the user's running timer: duration is computed from the
// start time, rounded per the user's preferences, floored at one second,
// written to the store, and the cache entry cleared.
func (c *Controller) Stop(ctx context.Context, userID string) (*models.TimerSnapshot, error) {
	rec, err := c.store.GetRunningForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec.StartTime == nil {
		return nil, errors.Wrapf(apperr.ErrConflict, "running timer %s has no start time", rec.ID)
	}

	now := c.now()
	if !now.After(*rec.StartTime) {
		// A stop in the same instant as the start still ends strictly
		// after it, matching the one-second duration floor.
		now = rec.StartTime.Add(time.Second)
	}
	duration, err := c.durationComputer(ctx, userID)(now.Sub(*rec.StartTime))
	if err != nil {
		return nil, err
	}

	stopped, err := c.store.Stop(ctx, rec.ID, now, duration)
	if err != nil {
		return nil, err
	}
	c.cache.Clear(ctx, userID)
	c.broadcaster.Publish(userID, models.StoppedEvent(stopped.ID, now, stopped.Duration))

	return c.snapshotFor(ctx, stopped), nil
}

// Discard deletes the running timer without leaving a durable record. Like
// Start it is two-phase: without confirmed it only describes what would be
// lost.
func (c *Controller) Discard(ctx context.Context, userID string, confirmed bool) (*DiscardResult, error) {
	snap, err := c.cache.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap.ElapsedSeconds = elapsedFrom(snap.StartTime, c.now())

	if !confirmed {
		return &DiscardResult{Confirmation: &ConfirmationRequired{CurrentTimer: snap}}, nil
	}

	if err := c.store.Delete(ctx, snap.ID); err != nil {
		return nil, err
	}
	c.cache.Clear(ctx, userID)
	c.broadcaster.Publish(userID, models.DiscardedEvent(snap.ID))

	return &DiscardResult{DiscardedTimerID: snap.ID}, nil
}

// GetActive returns the user's running timer with elapsed time computed at
// read time. Read-only; served cache-then-store.
func (c *Controller) GetActive(ctx context.Context, userID string) (*models.TimerSnapshot, error) {
	snap, err := c.cache.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap.ElapsedSeconds = elapsedFrom(snap.StartTime, c.now())
	return snap, nil
}

// UpdateDescription edits the running timer's description. The edit lands in
// the cache immediately and an updated event is broadcast; the periodic
// reconciliation job pushes it to the store.
func (c *Controller) UpdateDescription(ctx context.Context, userID, description string) (*models.TimerSnapshot, error) {
	snap, err := c.cache.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	snap.Description = description
	snap.ElapsedSeconds = elapsedFrom(snap.StartTime, c.now())
	c.cache.Set(ctx, userID, snap)
	c.broadcaster.Publish(userID, models.SnapshotEvent(models.EventUpdated, snap))
	return snap, nil
}

// ResolveIdle applies the user's chosen resolution to an idle notification.
// keep leaves the timer running; discard stops it retroactively at the idle
// start; stop_at_idle does the same but rounds the resulting duration per
// the user's preferences. The store guards both the notification transition
// and the timer state, so a duplicate or late resolution conflicts instead
// of corrupting state.
func (c *Controller) ResolveIdle(ctx context.Context, notificationID, userID string, action models.IdleAction) (*ResolveIdleResult, error) {
	if !action.Valid() {
		return nil, errors.Wrapf(apperr.ErrInvalidInput, "idle action %q", action)
	}

	notif, err := c.store.GetIdleNotification(ctx, notificationID, userID)
	if err != nil {
		return nil, err
	}

	if action == models.IdleActionKeep {
		rec, err := c.store.ResolveIdle(ctx, notif.ID, action, time.Time{}, 0)
		if err != nil {
			return nil, err
		}
		return &ResolveIdleResult{TimerID: rec.ID, Action: action}, nil
	}

	rec, err := c.store.GetByID(ctx, notif.TimerRecordID)
	if err != nil {
		return nil, err
	}
	if rec.StartTime == nil {
		return nil, errors.Wrapf(apperr.ErrConflict, "timer %s has no start time", rec.ID)
	}

	raw := notif.IdleStartTime.Sub(*rec.StartTime)
	duration := int64(raw.Seconds())
	if action == models.IdleActionStopAtIdle {
		duration, err = c.durationComputer(ctx, userID)(raw)
		if err != nil {
			return nil, err
		}
	}
	if duration < 1 {
		duration = 1
	}

	resolved, err := c.store.ResolveIdle(ctx, notif.ID, action, notif.IdleStartTime, duration)
	if err != nil {
		return nil, err
	}
	c.cache.Clear(ctx, userID)
	c.broadcaster.Publish(userID, models.StoppedEvent(resolved.ID, notif.IdleStartTime, resolved.Duration))

	return &ResolveIdleResult{
		TimerID:            resolved.ID,
		Action:             action,
		NewDurationSeconds: resolved.Duration,
	}, nil
}

// durationComputer returns the elapsed-to-stored-duration function for the
// user: rounding per preferences, floored at one second so the stopped
// record never violates the positive-duration constraint. A preferences
// lookup failure falls back to no rounding rather than failing the stop.
func (c *Controller) durationComputer(ctx context.Context, userID string) func(elapsed time.Duration) (int64, error) {
	return func(elapsed time.Duration) (int64, error) {
		prefs, err := c.prefs.GetPreferences(ctx, userID)
		if err != nil {
			log.Printf("timer: preferences lookup failed for user %s, stopping unrounded: %v", userID, err)
			prefs = models.DefaultPreferences(userID)
		}

		rounded, err := rounding.Round(elapsed, prefs.RoundingInterval, rounding.Method(prefs.RoundingMethod))
		if err != nil {
			return 0, errors.Wrapf(apperr.ErrInvalidInput, "rounding: %v", err)
		}

		seconds := int64(rounded.Seconds())
		if seconds < 1 {
			seconds = 1
		}
		return seconds, nil
	}
}

func (c *Controller) snapshotFor(ctx context.Context, rec *models.TimerRecord) *models.TimerSnapshot {
	var title, projectName string
	if info, err := c.tasks.TaskInfo(ctx, rec.TaskID); err == nil {
		title = info.Title
		projectName = info.ProjectName
	}
	return models.SnapshotFromRecord(rec, title, projectName, c.now())
}

func elapsedFrom(start *time.Time, now time.Time) int64 {
	if start == nil {
		return 0
	}
	elapsed := int64(now.Sub(*start).Seconds())
	if elapsed < 0 {
		return 0
	}
	return elapsed
}
