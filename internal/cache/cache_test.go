package cache

import (
	"context"
	"testing"
	"time"

	"github.com/timekeep/timekeep/internal/apperr"
	"github.com/timekeep/timekeep/internal/models"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	running      map[string]*models.TimerRecord
	descriptions map[string]string
	getCalls     int
	failReads    bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		running:      make(map[string]*models.TimerRecord),
		descriptions: make(map[string]string),
	}
}

func (s *fakeStore) GetRunningForUser(_ context.Context, userID string) (*models.TimerRecord, error) {
	s.getCalls++
	if s.failReads {
		return nil, errors.New("database is locked")
	}
	rec, ok := s.running[userID]
	if !ok {
		return nil, errors.Wrapf(apperr.ErrNotFound, "no running timer for user %s", userID)
	}
	return rec, nil
}

func (s *fakeStore) ListRunning(_ context.Context) ([]*models.TimerRecord, error) {
	var recs []*models.TimerRecord
	for _, rec := range s.running {
		recs = append(recs, rec)
	}
	return recs, nil
}

func (s *fakeStore) UpdateDescription(_ context.Context, timerID, description string) error {
	s.descriptions[timerID] = description
	return nil
}

// brokenBackend fails every call, simulating a cache-backend outage.
type brokenBackend struct {
	calls int
}

func (b *brokenBackend) Get(context.Context, string) (*models.TimerSnapshot, bool, error) {
	b.calls++
	return nil, false, errors.New("connection refused")
}

func (b *brokenBackend) Set(context.Context, string, *models.TimerSnapshot) error {
	b.calls++
	return errors.New("connection refused")
}

func (b *brokenBackend) Delete(context.Context, string) error {
	b.calls++
	return errors.New("connection refused")
}

type staticResolver struct{}

func (staticResolver) TaskInfo(_ context.Context, taskID string) (*models.TaskInfo, error) {
	return &models.TaskInfo{
		ID:          taskID,
		Title:       "Task " + taskID,
		ProjectID:   "proj-1",
		ProjectName: "Project One",
	}, nil
}

func runningRecord(userID string, start time.Time) *models.TimerRecord {
	return &models.TimerRecord{
		ID:          "timer-" + userID,
		UserID:      userID,
		TaskID:      "task-1",
		ProjectID:   "proj-1",
		StartTime:   &start,
		IsRunning:   true,
		Description: "working",
	}
}

func TestGetHitSkipsStore(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	c := New(NewLRUBackend(16, time.Hour), store, staticResolver{})

	start := time.Now()
	c.Set(ctx, "user-1", &models.TimerSnapshot{ID: "timer-1", UserID: "user-1", StartTime: &start, IsRunning: true})

	snap, err := c.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "timer-1", snap.ID)
	assert.Zero(t, store.getCalls)
}

func TestGetMissFallsBackAndRepopulates(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.running["user-1"] = runningRecord("user-1", time.Now().Add(-time.Minute))
	c := New(NewLRUBackend(16, time.Hour), store, staticResolver{})

	snap, err := c.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "timer-user-1", snap.ID)
	assert.Equal(t, "Task task-1", snap.TaskTitle)
	assert.Equal(t, "Project One", snap.ProjectName)
	assert.Equal(t, 1, store.getCalls)

	// Second read is served from the repopulated cache.
	_, err = c.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.getCalls)
}

func TestGetBackendFailureDegradesToStore(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.running["user-1"] = runningRecord("user-1", time.Now().Add(-time.Minute))
	backend := &brokenBackend{}
	c := New(backend, store, staticResolver{})

	snap, err := c.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "timer-user-1", snap.ID)
	assert.True(t, snap.IsRunning)
}

func TestGetNotFoundPropagates(t *testing.T) {
	ctx := context.Background()
	c := New(NewLRUBackend(16, time.Hour), newFakeStore(), nil)

	_, err := c.Get(ctx, "user-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFallbackReadFailureIsTransient(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.failReads = true
	c := New(NewLRUBackend(16, time.Hour), store, nil)

	_, err := c.Get(ctx, "user-1")
	assert.ErrorIs(t, err, apperr.ErrTransient)
}

func TestSetAndClearSwallowBackendFailures(t *testing.T) {
	ctx := context.Background()
	backend := &brokenBackend{}
	c := New(backend, newFakeStore(), nil)

	// Neither call may surface the backend outage.
	c.Set(ctx, "user-1", &models.TimerSnapshot{ID: "timer-1"})
	c.Clear(ctx, "user-1")
	assert.Equal(t, 2, backend.calls)
}

func TestClearRemovesEntry(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	c := New(NewLRUBackend(16, time.Hour), store, nil)

	c.Set(ctx, "user-1", &models.TimerSnapshot{ID: "timer-1", UserID: "user-1"})
	c.Clear(ctx, "user-1")

	_, err := c.Get(ctx, "user-1")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRestoreAllFromStore(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	store.running["user-1"] = runningRecord("user-1", time.Now().Add(-time.Minute))
	store.running["user-2"] = runningRecord("user-2", time.Now().Add(-2*time.Minute))
	c := New(NewLRUBackend(16, time.Hour), store, staticResolver{})

	count, err := c.RestoreAllFromStore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	store.getCalls = 0
	for _, user := range []string{"user-1", "user-2"} {
		snap, err := c.Get(ctx, user)
		require.NoError(t, err)
		assert.True(t, snap.IsRunning)
	}
	assert.Zero(t, store.getCalls)
}

func TestSyncToStorePushesDescription(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	c := New(NewLRUBackend(16, time.Hour), store, nil)

	c.Set(ctx, "user-1", &models.TimerSnapshot{ID: "timer-1", UserID: "user-1", Description: "edited in cache"})
	require.NoError(t, c.SyncToStore(ctx, "user-1"))
	assert.Equal(t, "edited in cache", store.descriptions["timer-1"])

	// No cached entry means nothing to reconcile.
	require.NoError(t, c.SyncToStore(ctx, "user-2"))
}

func TestLRUBackendTTLExpiry(t *testing.T) {
	ctx := context.Background()
	backend := NewLRUBackend(16, 20*time.Millisecond)

	require.NoError(t, backend.Set(ctx, "user-1", &models.TimerSnapshot{ID: "timer-1"}))
	_, found, err := backend.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, found)

	time.Sleep(50 * time.Millisecond)
	_, found, err = backend.Get(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, found)
}
