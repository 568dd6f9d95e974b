package database

import (
	"context"
	"testing"
	"time"

	"github.com/timekeep/timekeep/internal/apperr"
	"github.com/timekeep/timekeep/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// A single connection keeps each test's :memory: database coherent and
	// serializes concurrent transactions the way a server-grade store would.
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	db := &DB{gdb}
	require.NoError(t, db.Initialize())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCreateRunningEnforcesSingleActive(t *testing.T) {
	ctx := context.Background()
	store := NewTimerStore(newTestDB(t))

	first, err := store.CreateRunning(ctx, "user-1", "task-1", "proj-1", "writing docs", time.Now())
	require.NoError(t, err)
	assert.True(t, first.IsRunning)
	assert.NotEmpty(t, first.ID)

	_, err = store.CreateRunning(ctx, "user-1", "task-2", "proj-1", "second timer", time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// A different user is unaffected.
	_, err = store.CreateRunning(ctx, "user-2", "task-1", "proj-1", "", time.Now())
	require.NoError(t, err)
}

func TestStopGuardedOnRunning(t *testing.T) {
	ctx := context.Background()
	store := NewTimerStore(newTestDB(t))

	start := time.Now().Add(-10 * time.Minute)
	rec, err := store.CreateRunning(ctx, "user-1", "task-1", "proj-1", "", start)
	require.NoError(t, err)

	end := start.Add(10 * time.Minute)
	stopped, err := store.Stop(ctx, rec.ID, end, 600)
	require.NoError(t, err)
	assert.False(t, stopped.IsRunning)
	assert.Equal(t, int64(600), stopped.Duration)
	require.NotNil(t, stopped.EndTime)
	assert.WithinDuration(t, end, *stopped.EndTime, time.Second)

	// Stopping again reports not found, not a silent rewrite.
	_, err = store.Stop(ctx, rec.ID, end, 600)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStopAndCreateRunningSwapsAtomically(t *testing.T) {
	ctx := context.Background()
	store := NewTimerStore(newTestDB(t))

	start := time.Now().Add(-23 * time.Minute)
	first, err := store.CreateRunning(ctx, "user-1", "task-1", "proj-1", "", start)
	require.NoError(t, err)

	now := time.Now()
	identity := func(elapsed time.Duration) (int64, error) { return int64(elapsed.Seconds()), nil }
	stopped, created, err := store.StopAndCreateRunning(ctx, "user-1", now, identity, "task-2", "proj-1", "next up", now)
	require.NoError(t, err)

	require.NotNil(t, stopped)
	assert.Equal(t, first.ID, stopped.ID)
	assert.False(t, stopped.IsRunning)
	assert.InDelta(t, 23*60, stopped.Duration, 2)

	assert.True(t, created.IsRunning)
	assert.Equal(t, "task-2", created.TaskID)

	running, err := store.ListRunning(ctx)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, created.ID, running[0].ID)
}

func TestStopAndCreateRunningSameInstant(t *testing.T) {
	ctx := context.Background()
	store := NewTimerStore(newTestDB(t))

	now := time.Now()
	_, err := store.CreateRunning(ctx, "user-1", "task-1", "proj-1", "", now)
	require.NoError(t, err)

	identity := func(elapsed time.Duration) (int64, error) { return int64(elapsed.Seconds()), nil }
	stopped, _, err := store.StopAndCreateRunning(ctx, "user-1", now, identity, "task-2", "proj-1", "", now)
	require.NoError(t, err)

	// Swapped in the same instant it started: end time is clamped past the
	// start, never equal to it.
	require.NotNil(t, stopped.StartTime)
	require.NotNil(t, stopped.EndTime)
	assert.True(t, stopped.EndTime.After(*stopped.StartTime))
	assert.Equal(t, int64(1), stopped.Duration)
}

func TestStopAndCreateRunningWithoutCurrentTimer(t *testing.T) {
	ctx := context.Background()
	store := NewTimerStore(newTestDB(t))

	identity := func(elapsed time.Duration) (int64, error) { return int64(elapsed.Seconds()), nil }
	stopped, created, err := store.StopAndCreateRunning(ctx, "user-1", time.Now(), identity, "task-1", "proj-1", "", time.Now())
	require.NoError(t, err)
	assert.Nil(t, stopped)
	assert.True(t, created.IsRunning)
}

func TestDeleteOnlyRemovesRunningTimers(t *testing.T) {
	ctx := context.Background()
	store := NewTimerStore(newTestDB(t))

	rec, err := store.CreateRunning(ctx, "user-1", "task-1", "proj-1", "", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = store.Stop(ctx, rec.ID, time.Now(), 60)
	require.NoError(t, err)

	// The stopped record is history, not discardable through this path.
	assert.ErrorIs(t, store.Delete(ctx, rec.ID), apperr.ErrNotFound)

	kept, err := store.GetByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60), kept.Duration)
}

func TestGetRunningForUser(t *testing.T) {
	ctx := context.Background()
	store := NewTimerStore(newTestDB(t))

	_, err := store.GetRunningForUser(ctx, "user-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	created, err := store.CreateRunning(ctx, "user-1", "task-1", "proj-1", "", time.Now())
	require.NoError(t, err)

	got, err := store.GetRunningForUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestDeleteLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	store := NewTimerStore(newTestDB(t))

	rec, err := store.CreateRunning(ctx, "user-1", "task-1", "proj-1", "", time.Now())
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, rec.ID))

	_, err = store.GetByID(ctx, rec.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.ErrorIs(t, store.Delete(ctx, rec.ID), apperr.ErrNotFound)
}

func TestListRunning(t *testing.T) {
	ctx := context.Background()
	store := NewTimerStore(newTestDB(t))

	base := time.Now().Add(-time.Hour)
	for i, user := range []string{"user-1", "user-2", "user-3"} {
		_, err := store.CreateRunning(ctx, user, "task-1", "proj-1", "", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	stoppedRec, err := store.CreateRunning(ctx, "user-4", "task-1", "proj-1", "", base)
	require.NoError(t, err)
	_, err = store.Stop(ctx, stoppedRec.ID, time.Now(), 60)
	require.NoError(t, err)

	running, err := store.ListRunning(ctx)
	require.NoError(t, err)
	assert.Len(t, running, 3)
	for _, rec := range running {
		assert.True(t, rec.IsRunning)
	}
}

func TestCreateIdleNotificationDuplicateDetection(t *testing.T) {
	ctx := context.Background()
	store := NewTimerStore(newTestDB(t))

	start := time.Now().Add(-20 * time.Minute)
	rec, err := store.CreateRunning(ctx, "user-1", "task-1", "proj-1", "", start)
	require.NoError(t, err)

	idleStart := start.Add(5 * time.Minute)
	notif, err := store.CreateIdleNotification(ctx, rec.ID, "user-1", idleStart)
	require.NoError(t, err)
	assert.Equal(t, models.IdleActionNone, notif.ActionTaken)

	// Second notification for the same still-unresolved timer is a conflict.
	_, err = store.CreateIdleNotification(ctx, rec.ID, "user-1", idleStart)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	pending, err := store.HasUnresolvedNotification(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, pending)
}

func TestCreateIdleNotificationRequiresRunningTimer(t *testing.T) {
	ctx := context.Background()
	store := NewTimerStore(newTestDB(t))

	start := time.Now().Add(-20 * time.Minute)
	rec, err := store.CreateRunning(ctx, "user-1", "task-1", "proj-1", "", start)
	require.NoError(t, err)
	_, err = store.Stop(ctx, rec.ID, time.Now(), 1200)
	require.NoError(t, err)

	_, err = store.CreateIdleNotification(ctx, rec.ID, "user-1", start.Add(5*time.Minute))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestResolveIdleDiscard(t *testing.T) {
	ctx := context.Background()
	store := NewTimerStore(newTestDB(t))

	start := time.Now().Add(-20 * time.Minute)
	rec, err := store.CreateRunning(ctx, "user-1", "task-1", "proj-1", "", start)
	require.NoError(t, err)

	idleStart := start.Add(5 * time.Minute)
	notif, err := store.CreateIdleNotification(ctx, rec.ID, "user-1", idleStart)
	require.NoError(t, err)

	timer, err := store.ResolveIdle(ctx, notif.ID, models.IdleActionDiscard, idleStart, 300)
	require.NoError(t, err)
	assert.False(t, timer.IsRunning)
	assert.Equal(t, int64(300), timer.Duration)
	require.NotNil(t, timer.EndTime)
	assert.WithinDuration(t, idleStart, *timer.EndTime, time.Second)

	// Acting twice on the same notification is a conflict.
	_, err = store.ResolveIdle(ctx, notif.ID, models.IdleActionKeep, idleStart, 300)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// The audit row survives resolution.
	got, err := store.GetIdleNotification(ctx, notif.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.IdleActionDiscard, got.ActionTaken)
}

func TestResolveIdleKeepLeavesTimerRunning(t *testing.T) {
	ctx := context.Background()
	store := NewTimerStore(newTestDB(t))

	start := time.Now().Add(-20 * time.Minute)
	rec, err := store.CreateRunning(ctx, "user-1", "task-1", "proj-1", "", start)
	require.NoError(t, err)

	notif, err := store.CreateIdleNotification(ctx, rec.ID, "user-1", start.Add(5*time.Minute))
	require.NoError(t, err)

	timer, err := store.ResolveIdle(ctx, notif.ID, models.IdleActionKeep, time.Time{}, 0)
	require.NoError(t, err)
	assert.True(t, timer.IsRunning)
	assert.Nil(t, timer.EndTime)

	// A new idle episode may now be recorded.
	_, err = store.CreateIdleNotification(ctx, rec.ID, "user-1", start.Add(10*time.Minute))
	require.NoError(t, err)
}

func TestResolveIdleAfterIndependentStop(t *testing.T) {
	ctx := context.Background()
	store := NewTimerStore(newTestDB(t))

	start := time.Now().Add(-20 * time.Minute)
	rec, err := store.CreateRunning(ctx, "user-1", "task-1", "proj-1", "", start)
	require.NoError(t, err)

	idleStart := start.Add(5 * time.Minute)
	notif, err := store.CreateIdleNotification(ctx, rec.ID, "user-1", idleStart)
	require.NoError(t, err)

	// The user stops the timer through the normal path first.
	_, err = store.Stop(ctx, rec.ID, time.Now(), 1200)
	require.NoError(t, err)

	_, err = store.ResolveIdle(ctx, notif.ID, models.IdleActionDiscard, idleStart, 300)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// The failed resolution must not have consumed the notification.
	got, err := store.GetIdleNotification(ctx, notif.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.IdleActionNone, got.ActionTaken)
}

func TestResolveIdleKeepRequiresRunningTimer(t *testing.T) {
	ctx := context.Background()
	store := NewTimerStore(newTestDB(t))

	start := time.Now().Add(-20 * time.Minute)
	rec, err := store.CreateRunning(ctx, "user-1", "task-1", "proj-1", "", start)
	require.NoError(t, err)
	notif, err := store.CreateIdleNotification(ctx, rec.ID, "user-1", start.Add(5*time.Minute))
	require.NoError(t, err)

	// The user stops the timer before resolving the notification.
	_, err = store.Stop(ctx, rec.ID, time.Now(), 1200)
	require.NoError(t, err)

	_, err = store.ResolveIdle(ctx, notif.ID, models.IdleActionKeep, time.Time{}, 0)
	assert.ErrorIs(t, err, apperr.ErrConflict)

	// The failed keep must not have consumed the notification.
	got, err := store.GetIdleNotification(ctx, notif.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.IdleActionNone, got.ActionTaken)

	// Same guard when the timer was discarded outright.
	rec2, err := store.CreateRunning(ctx, "user-2", "task-1", "proj-1", "", start)
	require.NoError(t, err)
	notif2, err := store.CreateIdleNotification(ctx, rec2.ID, "user-2", start.Add(5*time.Minute))
	require.NoError(t, err)
	require.NoError(t, store.Delete(ctx, rec2.ID))

	_, err = store.ResolveIdle(ctx, notif2.ID, models.IdleActionKeep, time.Time{}, 0)
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestPreferencesDefaults(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewPreferencesRepository(db)

	prefs, err := repo.GetPreferences(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, prefs.RoundingInterval)
	assert.Equal(t, models.DefaultIdleThresholdMinutes, prefs.IdleThresholdMinutes)

	stored := &models.UserTimerPreferences{
		UserID:               "user-1",
		RoundingInterval:     15,
		RoundingMethod:       "up",
		IdleThresholdMinutes: 10,
	}
	require.NoError(t, repo.SetPreferences(ctx, stored))

	prefs, err = repo.GetPreferences(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 15, prefs.RoundingInterval)
	assert.Equal(t, "up", prefs.RoundingMethod)
	assert.Equal(t, 10, prefs.IdleThresholdMinutes)
}

func TestPreferencesRejectInvalidRounding(t *testing.T) {
	ctx := context.Background()
	repo := NewPreferencesRepository(newTestDB(t))

	err := repo.SetPreferences(ctx, &models.UserTimerPreferences{
		UserID:           "user-1",
		RoundingInterval: 7,
		RoundingMethod:   "up",
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	err = repo.SetPreferences(ctx, &models.UserTimerPreferences{
		UserID:           "user-1",
		RoundingInterval: 15,
		RoundingMethod:   "sideways",
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}
