// Package sweep runs the periodic idle-detection pass over all running
// timers. The sweep reads the store directly, never the cache: it must see
// every user and stay correct with the cache layer entirely down. Duplicate
// detection against unresolved notifications makes each run idempotent, so
// any number of sweep instances can run against the same store.
package sweep

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/timekeep/timekeep/internal/models"

	"github.com/pkg/errors"
)

// Store is the slice of the timer store the sweep needs.
type Store interface {
	ListRunning(ctx context.Context) ([]*models.TimerRecord, error)
	HasUnresolvedNotification(ctx context.Context, timerID string) (bool, error)
	CreateIdleNotification(ctx context.Context, timerID, userID string, idleStart time.Time) (*models.IdleNotification, error)
}

// PreferencesProvider resolves per-user idle thresholds.
type PreferencesProvider interface {
	GetPreferences(ctx context.Context, userID string) (*models.UserTimerPreferences, error)
}

// Result reports one sweep run for observability.
type Result struct {
	Created         int `json:"created"`
	AlreadyNotified int `json:"already_notified"`
	Errored         int `json:"errored"`
}

// Worker scans running timers on a fixed period and records idle episodes.
type Worker struct {
	store    Store
	prefs    PreferencesProvider
	interval time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	now func() time.Time
}

// DefaultInterval is a deployment parameter, not a correctness one.
const DefaultInterval = 60 * time.Second

func NewWorker(store Store, prefs PreferencesProvider, interval time.Duration) *Worker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Worker{
		store:    store,
		prefs:    prefs,
		interval: interval,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// Run executes the sweep on each tick until the context is cancelled or
// Stop is called.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("sweep worker is already running")
	}
	defer w.running.Store(false)

	log.Printf("Starting idle sweep with %v interval", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Idle sweep stopped by context")
			return ctx.Err()

		case <-w.stopChan:
			log.Println("Idle sweep stopped")
			return nil

		case <-ticker.C:
			result := w.RunOnce(ctx)
			if result.Created > 0 || result.Errored > 0 {
				log.Printf("Idle sweep: created=%d already_notified=%d errored=%d",
					result.Created, result.AlreadyNotified, result.Errored)
			}
		}
	}
}

// Stop signals the loop to exit. Safe to call from any goroutine, any
// number of times.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

// RunOnce performs a single sweep. Each timer is processed independently; a
// failure on one is logged and counted, and the rest of the sweep proceeds.
func (w *Worker) RunOnce(ctx context.Context) Result {
	var result Result

	timers, err := w.store.ListRunning(ctx)
	if err != nil {
		log.Printf("Idle sweep: failed to list running timers: %v", err)
		result.Errored++
		return result
	}

	now := w.now()
	for _, rec := range timers {
		created, notified, err := w.sweepTimer(ctx, rec, now)
		switch {
		case err != nil:
			log.Printf("Idle sweep: timer %s: %v", rec.ID, err)
			result.Errored++
		case created:
			result.Created++
		case notified:
			result.AlreadyNotified++
		}
	}
	return result
}

func (w *Worker) sweepTimer(ctx context.Context, rec *models.TimerRecord, now time.Time) (created, alreadyNotified bool, err error) {
	if rec.StartTime == nil {
		return false, false, errors.Errorf("running timer %s has no start time", rec.ID)
	}

	prefs, err := w.prefs.GetPreferences(ctx, rec.UserID)
	if err != nil {
		return false, false, errors.Wrap(err, "preferences lookup")
	}
	if prefs.IdleThresholdMinutes <= 0 {
		// Idle detection disabled for this user.
		return false, false, nil
	}

	threshold := prefs.IdleThreshold()
	if now.Sub(*rec.StartTime) <= threshold {
		return false, false, nil
	}

	pending, err := w.store.HasUnresolvedNotification(ctx, rec.ID)
	if err != nil {
		return false, false, errors.Wrap(err, "duplicate check")
	}
	if pending {
		return false, true, nil
	}

	idleStart := rec.StartTime.Add(threshold)
	if _, err := w.store.CreateIdleNotification(ctx, rec.ID, rec.UserID, idleStart); err != nil {
		return false, false, errors.Wrap(err, "create notification")
	}
	return true, false, nil
}
