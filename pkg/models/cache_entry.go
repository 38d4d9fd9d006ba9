package models

import (
	"time"
)

// CacheEntry represents a value held by the in-memory store
type CacheEntry struct {
	Value     any
	CreatedAt time.Time
	ExpiresAt time.Time // zero means the entry never expires
}

// NewCacheEntry creates a new cache entry; ttl <= 0 never expires
func NewCacheEntry(value any, ttl time.Duration, now time.Time) *CacheEntry {
	entry := &CacheEntry{
		Value:     value,
		CreatedAt: now,
	}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}
	return entry
}

// IsExpired checks if the entry has expired at the given instant
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

