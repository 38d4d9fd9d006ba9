package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Producer computes a value on a cache miss
type Producer[T any] func(ctx context.Context) (T, error)

// PartialError marks a producer result that is usable but incomplete. The
// value is returned to callers and cached for TTL instead of the key's TTL.
type PartialError struct {
	Err error
	TTL time.Duration
}

func (e *PartialError) Error() string {
	return "partial result: " + e.Err.Error()
}

func (e *PartialError) Unwrap() error {
	return e.Err
}

// Partial wraps err as a PartialError
func Partial(err error, ttl time.Duration) error {
	return &PartialError{Err: err, TTL: ttl}
}

// Coordinator implements cache-or-fetch on top of a Store. It is the single
// place where upstream failures turn into empty results, and it collapses
// concurrent misses on one key into a single producer call.
type Coordinator struct {
	store   Store
	logger  *zap.Logger
	pending singleflight.Group

	hits     atomic.Int64
	misses   atomic.Int64
	fetches  atomic.Int64
	failures atomic.Int64
}

// CoordinatorStats counts lookups and producer calls since start
type CoordinatorStats struct {
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
	Fetches  int64 `json:"fetches"`
	Failures int64 `json:"failures"`
}

// NewCoordinator creates a coordinator over store
func NewCoordinator(store Store, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		store:  store,
		logger: logger,
	}
}

// Store returns the underlying store
func (co *Coordinator) Store() Store {
	return co.store
}

// Stats returns a snapshot of the counters
func (co *Coordinator) Stats() CoordinatorStats {
	return CoordinatorStats{
		Hits:     co.hits.Load(),
		Misses:   co.misses.Load(),
		Fetches:  co.fetches.Load(),
		Failures: co.failures.Load(),
	}
}

// Invalidate drops keys from the store
func (co *Coordinator) Invalidate(ctx context.Context, keys ...string) {
	for _, key := range keys {
		co.store.Delete(ctx, key)
	}
}

// Lookup reads key and decodes it as T
func Lookup[T any](ctx context.Context, co *Coordinator, key string) (T, bool) {
	value, ok := peek[T](ctx, co, key)
	if ok {
		co.hits.Add(1)
	} else {
		co.misses.Add(1)
	}
	return value, ok
}

// GetOrUse returns the cached value for key. On a miss a non-empty value is
// written through and returned; an empty value is returned without writing.
func GetOrUse[T any](ctx context.Context, co *Coordinator, key string, value T, ttl time.Duration) T {
	if cached, ok := Lookup[T](ctx, co, key); ok {
		return cached
	}
	if isEmpty(value) {
		return value
	}

	co.store.Set(ctx, key, value, ttl)
	return value
}

// GetOrFetch returns the cached value for key or runs fetch. Concurrent
// misses on the same key share one fetch. A failed fetch is logged once and
// yields the zero value of T; nothing is cached for it. A fetch returning a
// PartialError is kept, under the shorter TTL.
func GetOrFetch[T any](ctx context.Context, co *Coordinator, key string, ttl time.Duration, fetch Producer[T]) T {
	var empty T
	if cached, ok := Lookup[T](ctx, co, key); ok {
		return cached
	}

	// the shared fetch must outlive the caller that happened to start it
	flightCtx := context.WithoutCancel(ctx)
	result := co.pending.DoChan(key, func() (any, error) {
		if cached, ok := peek[T](flightCtx, co, key); ok {
			return cached, nil
		}

		co.fetches.Add(1)
		value, err := runProducer(flightCtx, fetch)

		var partial *PartialError
		if errors.As(err, &partial) {
			co.logger.Warn("caching partial result",
				zap.String("key", key),
				zap.Duration("ttl", partial.TTL),
				zap.Error(partial.Err))
			co.store.Set(flightCtx, key, value, partial.TTL)
			return value, nil
		}
		if err != nil {
			co.failures.Add(1)
			co.logger.Error("upstream fetch failed, using empty result",
				zap.String("key", key),
				zap.Error(err))
			return empty, err
		}

		co.store.Set(flightCtx, key, value, ttl)
		return value, nil
	})

	select {
	case <-ctx.Done():
		co.logger.Debug("caller gave up waiting for fetch", zap.String("key", key), zap.Error(ctx.Err()))
		return empty
	case res := <-result:
		if res.Err != nil {
			return empty
		}
		value, _ := res.Val.(T)
		return value
	}
}

func peek[T any](ctx context.Context, co *Coordinator, key string) (T, bool) {
	raw, ok := co.store.Get(ctx, key)
	if !ok {
		var zero T
		return zero, false
	}

	value, err := decode[T](raw)
	if err != nil {
		co.logger.Warn("discarding undecodable cache value", zap.String("key", key), zap.Error(err))
		co.store.Delete(ctx, key)
		return value, false
	}
	return value, true
}

func runProducer[T any](ctx context.Context, fetch Producer[T]) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("producer panicked: %v", r)
		}
	}()
	return fetch(ctx)
}

// decode accepts both live Go values (memory store) and JSON (redis store)
func decode[T any](raw any) (T, error) {
	if value, ok := raw.(T); ok {
		return value, nil
	}

	var value T
	var data []byte
	switch v := raw.(type) {
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	default:
		return value, fmt.Errorf("unexpected cached type %T", raw)
	}

	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}
	return value, nil
}

func isEmpty(value any) bool {
	if value == nil {
		return true
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.String, reflect.Array:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	default:
		return rv.IsZero()
	}
}
