package cache

import (
	"context"
	"time"

	"github.com/timekeep/timekeep/internal/models"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Backend is the raw key/value layer under the active-timer cache, keyed by
// user id. Implementations may fail on any call; the cache wrapper treats
// every failure as a miss and falls back to the store.
type Backend interface {
	Get(ctx context.Context, userID string) (*models.TimerSnapshot, bool, error)
	Set(ctx context.Context, userID string, snap *models.TimerSnapshot) error
	Delete(ctx context.Context, userID string) error
}

// DefaultTTL bounds cache entries as a safety net against orphans left by a
// crash between the store write and the cache write.
const DefaultTTL = 24 * time.Hour

// LRUBackend is an in-process Backend on an expirable LRU. Entries age out
// after the configured TTL regardless of use.
type LRUBackend struct {
	lru *expirable.LRU[string, *models.TimerSnapshot]
}

// NewLRUBackend creates a backend holding up to size entries with the given
// TTL. A zero ttl uses DefaultTTL.
func NewLRUBackend(size int, ttl time.Duration) *LRUBackend {
	if ttl == 0 {
		ttl = DefaultTTL
	}
	return &LRUBackend{
		lru: expirable.NewLRU[string, *models.TimerSnapshot](size, nil, ttl),
	}
}

func (b *LRUBackend) Get(_ context.Context, userID string) (*models.TimerSnapshot, bool, error) {
	snap, ok := b.lru.Get(userID)
	return snap, ok, nil
}

func (b *LRUBackend) Set(_ context.Context, userID string, snap *models.TimerSnapshot) error {
	b.lru.Add(userID, snap)
	return nil
}

func (b *LRUBackend) Delete(_ context.Context, userID string) error {
	b.lru.Remove(userID)
	return nil
}
