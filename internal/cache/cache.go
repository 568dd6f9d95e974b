// Package cache holds the volatile projection of each user's running timer.
// The cache is a latency optimization, never the source of truth: every read
// falls back to the timer store on miss or backend failure, and callers never
// observe a backend outage as an error while the store is reachable.
package cache

import (
	"context"
	"log"
	"time"

	"github.com/pkg/errors"

	"github.com/timekeep/timekeep/internal/apperr"
	"github.com/timekeep/timekeep/internal/models"
)

// Store is the durable layer the cache degrades to and restores from.
// *database.TimerStore satisfies it.
type Store interface {
	GetRunningForUser(ctx context.Context, userID string) (*models.TimerRecord, error)
	ListRunning(ctx context.Context) ([]*models.TimerRecord, error)
	UpdateDescription(ctx context.Context, timerID, description string) error
}

// TaskInfoResolver supplies the denormalized task/project names held in
// cache snapshots. Task records are owned outside this subsystem.
type TaskInfoResolver interface {
	TaskInfo(ctx context.Context, taskID string) (*models.TaskInfo, error)
}

// ActiveTimerCache is the write-through cache over the timer store.
type ActiveTimerCache struct {
	backend  Backend
	store    Store
	resolver TaskInfoResolver
}

// New creates a cache over the given backend and store. resolver may be nil;
// snapshots rebuilt from the store then carry empty task/project names.
func New(backend Backend, store Store, resolver TaskInfoResolver) *ActiveTimerCache {
	return &ActiveTimerCache{backend: backend, store: store, resolver: resolver}
}

// Set writes the snapshot through to the backend. Backend failures are
// logged and swallowed; the store has already committed and the TTL bounds
// any stale entry.
func (c *ActiveTimerCache) Set(ctx context.Context, userID string, snap *models.TimerSnapshot) {
	if err := c.backend.Set(ctx, userID, snap); err != nil {
		log.Printf("cache: set failed for user %s, store remains authoritative: %v", userID, err)
	}
}

// Get returns the user's running-timer snapshot. A backend miss or failure
// falls through to the store; a successful fallback repopulates the backend
// opportunistically. Returns the store's error (including not-found) when
// the fallback path is taken.
func (c *ActiveTimerCache) Get(ctx context.Context, userID string) (*models.TimerSnapshot, error) {
	snap, found, err := c.backend.Get(ctx, userID)
	if err != nil {
		log.Printf("cache: get failed for user %s, falling back to store: %v", userID, err)
	} else if found {
		return snap, nil
	}

	rec, err := c.store.GetRunningForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
		// The caller can retry the whole operation; not-found is the only
		// non-transient outcome of a fallback read.
		return nil, errors.Wrapf(apperr.ErrTransient, "store read during cache fallback: %v", err)
	}

	snap = c.snapshotFromRecord(ctx, rec)
	if err := c.backend.Set(ctx, userID, snap); err != nil {
		log.Printf("cache: repopulate failed for user %s: %v", userID, err)
	}
	return snap, nil
}

// Clear removes the user's entry. Backend failures are logged and swallowed;
// the TTL eventually evicts the stale entry.
func (c *ActiveTimerCache) Clear(ctx context.Context, userID string) {
	if err := c.backend.Delete(ctx, userID); err != nil {
		log.Printf("cache: clear failed for user %s: %v", userID, err)
	}
}

// SyncToStore pushes cache-side mutable fields (the description) back into
// the store. Run by the periodic reconciliation job, not the request path.
func (c *ActiveTimerCache) SyncToStore(ctx context.Context, userID string) error {
	snap, found, err := c.backend.Get(ctx, userID)
	if err != nil || !found {
		// Nothing cached means nothing to reconcile.
		return nil
	}
	return c.store.UpdateDescription(ctx, snap.ID, snap.Description)
}

// RestoreAllFromStore repopulates the cache from every running timer row.
// Run once at process startup so a cache restart does not orphan in-flight
// timers. Returns the number of entries restored.
func (c *ActiveTimerCache) RestoreAllFromStore(ctx context.Context) (int, error) {
	recs, err := c.store.ListRunning(ctx)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, rec := range recs {
		snap := c.snapshotFromRecord(ctx, rec)
		if err := c.backend.Set(ctx, rec.UserID, snap); err != nil {
			log.Printf("cache: restore failed for user %s: %v", rec.UserID, err)
			continue
		}
		restored++
	}
	return restored, nil
}

func (c *ActiveTimerCache) snapshotFromRecord(ctx context.Context, rec *models.TimerRecord) *models.TimerSnapshot {
	var taskTitle, projectName string
	if c.resolver != nil {
		if info, err := c.resolver.TaskInfo(ctx, rec.TaskID); err == nil {
			taskTitle = info.Title
			projectName = info.ProjectName
		}
	}
	return models.SnapshotFromRecord(rec, taskTitle, projectName, time.Now())
}
