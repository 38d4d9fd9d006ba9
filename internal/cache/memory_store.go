package cache

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"transit-aggregator/pkg/models"
)

// MemoryStore is a process-local store with lazy expiration. Every
// operation runs under one mutex so read-check-evict is atomic.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*models.CacheEntry
	clock   clock.Clock
}

// NewMemoryStore creates an empty store; a nil clock uses wall time
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryStore{
		entries: make(map[string]*models.CacheEntry),
		clock:   clk,
	}
}

// Set stores value under key; ttl <= 0 never expires
func (ms *MemoryStore) Set(_ context.Context, key string, value any, ttl time.Duration) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.entries[key] = models.NewCacheEntry(value, ttl, ms.clock.Now())
}

// Get returns the value if present and not expired, evicting it otherwise
func (ms *MemoryStore) Get(_ context.Context, key string) (any, bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	entry, ok := ms.entries[key]
	if !ok {
		return nil, false
	}
	if entry.IsExpired(ms.clock.Now()) {
		delete(ms.entries, key)
		return nil, false
	}
	return entry.Value, true
}

// Delete removes key
func (ms *MemoryStore) Delete(_ context.Context, key string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.entries, key)
}

// Clear removes every entry
func (ms *MemoryStore) Clear(_ context.Context) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.entries = make(map[string]*models.CacheEntry)
}

// Stats counts entries, including expired ones not yet evicted
func (ms *MemoryStore) Stats(_ context.Context) StoreStats {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	stats := StoreStats{Backend: BackendMemory, Keys: int64(len(ms.entries))}
	now := ms.clock.Now()
	for _, entry := range ms.entries {
		if entry.IsExpired(now) {
			stats.Expired++
		}
	}
	return stats
}

// Ping always succeeds for the in-memory store
func (ms *MemoryStore) Ping(context.Context) error { return nil }

// Close drops all entries; restart empties the store anyway
func (ms *MemoryStore) Close() error {
	ms.Clear(context.Background())
	return nil
}
