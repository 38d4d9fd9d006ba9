package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"transit-aggregator/pkg/models"
)

func setupCoordinator(t *testing.T) (*Coordinator, *MemoryStore) {
	store := NewMemoryStore(nil)
	return NewCoordinator(store, zaptest.NewLogger(t)), store
}

func TestGetOrFetch_CachesResult(t *testing.T) {
	co, store := setupCoordinator(t)
	ctx := context.Background()

	calls := 0
	fetch := func(context.Context) ([]string, error) {
		calls++
		return []string{"L1", "L2"}, nil
	}

	first := GetOrFetch(ctx, co, "metro_lines_static", time.Hour, fetch)
	second := GetOrFetch(ctx, co, "metro_lines_static", time.Hour, fetch)

	assert.Equal(t, []string{"L1", "L2"}, first)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	_, ok := store.Get(ctx, "metro_lines_static")
	assert.True(t, ok)

	stats := co.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Fetches)
}

func TestGetOrFetch_FailureYieldsEmpty(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	store := NewMemoryStore(nil)
	co := NewCoordinator(store, zap.New(core))
	ctx := context.Background()

	calls := 0
	fetch := func(context.Context) ([]models.Line, error) {
		calls++
		return nil, errors.New("upstream timeout")
	}

	lines := GetOrFetch(ctx, co, "bus_lines_static", time.Hour, fetch)
	assert.Empty(t, lines)
	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, "bus_lines_static", logs.All()[0].ContextMap()["key"])

	// nothing cached, the next call tries again
	_, ok := store.Get(ctx, "bus_lines_static")
	assert.False(t, ok)

	GetOrFetch(ctx, co, "bus_lines_static", time.Hour, fetch)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, logs.Len())
	assert.Equal(t, int64(2), co.Stats().Failures)
}

func TestGetOrFetch_PanicYieldsEmpty(t *testing.T) {
	co, _ := setupCoordinator(t)

	result := GetOrFetch(context.Background(), co, "tram_lines_static", time.Hour,
		func(context.Context) ([]string, error) {
			panic("malformed payload")
		})

	assert.Nil(t, result)
}

func TestGetOrFetch_DeduplicatesConcurrentMisses(t *testing.T) {
	co, _ := setupCoordinator(t)
	ctx := context.Background()

	var calls atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) ([]string, error) {
		calls.Add(1)
		<-release
		return []string{"station-1"}, nil
	}

	const callers = 50
	var wg sync.WaitGroup
	results := make([][]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = GetOrFetch(ctx, co, "metro_stations_static", time.Hour, fetch)
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, r := range results {
		assert.Equal(t, []string{"station-1"}, r)
	}
}

func TestGetOrFetch_CallerCancellationDoesNotAbortFetch(t *testing.T) {
	co, store := setupCoordinator(t)

	release := make(chan struct{})
	done := make(chan struct{})
	fetch := func(ctx context.Context) ([]string, error) {
		defer close(done)
		<-release
		return []string{"late"}, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	result := GetOrFetch(ctx, co, "fgc_lines_static", time.Hour, fetch)
	assert.Nil(t, result)

	close(release)
	<-done

	require.Eventually(t, func() bool {
		_, ok := store.Get(context.Background(), "fgc_lines_static")
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestGetOrFetch_PartialResultUsesShortTTL(t *testing.T) {
	mock := clock.NewMock()
	core, logs := observer.New(zap.WarnLevel)
	store := NewMemoryStore(mock)
	co := NewCoordinator(store, zap.New(core))
	ctx := context.Background()

	calls := 0
	fetch := func(context.Context) ([]string, error) {
		calls++
		return []string{"L1", "L2"}, Partial(errors.New("line L3 missing"), time.Minute)
	}

	got := GetOrFetch(ctx, co, "metro_stations_static", 24*time.Hour, fetch)
	assert.Equal(t, []string{"L1", "L2"}, got)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zap.WarnLevel, logs.All()[0].Level)

	GetOrFetch(ctx, co, "metro_stations_static", 24*time.Hour, fetch)
	assert.Equal(t, 1, calls)

	mock.Add(2 * time.Minute)
	GetOrFetch(ctx, co, "metro_stations_static", 24*time.Hour, fetch)
	assert.Equal(t, 2, calls)
	assert.Equal(t, int64(0), co.Stats().Failures)
}

func TestGetOrUse(t *testing.T) {
	co, store := setupCoordinator(t)
	ctx := context.Background()

	// empty values pass through without being written
	empty := GetOrUse(ctx, co, "metro_lines_alerts", map[string][]models.Alert{}, time.Hour)
	assert.Empty(t, empty)
	_, ok := store.Get(ctx, "metro_lines_alerts")
	assert.False(t, ok)

	value := map[string][]models.Alert{"L1": {{ID: "a1"}}}
	got := GetOrUse(ctx, co, "metro_lines_alerts", value, time.Hour)
	assert.Equal(t, value, got)

	// the cached value wins over a new precomputed one
	other := map[string][]models.Alert{"L2": {{ID: "a2"}}}
	got = GetOrUse(ctx, co, "metro_lines_alerts", other, time.Hour)
	assert.Equal(t, value, got)
}

func TestLookup_DecodesJSON(t *testing.T) {
	co, store := setupCoordinator(t)
	ctx := context.Background()

	data, err := json.Marshal([]models.Line{{Code: "1", Name: "L1"}})
	require.NoError(t, err)
	store.Set(ctx, "metro_lines_static", json.RawMessage(data), time.Hour)

	lines, ok := Lookup[[]models.Line](ctx, co, "metro_lines_static")
	require.True(t, ok)
	require.Len(t, lines, 1)
	assert.Equal(t, "L1", lines[0].Name)
}

func TestLookup_DropsUndecodableValue(t *testing.T) {
	co, store := setupCoordinator(t)
	ctx := context.Background()

	store.Set(ctx, "metro_lines_static", 42, time.Hour)

	_, ok := Lookup[[]models.Line](ctx, co, "metro_lines_static")
	assert.False(t, ok)

	_, ok = store.Get(ctx, "metro_lines_static")
	assert.False(t, ok)
}

func TestIsEmpty(t *testing.T) {
	var nilSlice []string
	var nilPtr *models.Line

	assert.True(t, isEmpty(nil))
	assert.True(t, isEmpty(nilSlice))
	assert.True(t, isEmpty([]string{}))
	assert.True(t, isEmpty(map[string]int{}))
	assert.True(t, isEmpty(""))
	assert.True(t, isEmpty(0))
	assert.True(t, isEmpty(nilPtr))
	assert.False(t, isEmpty([]string{"x"}))
	assert.False(t, isEmpty(&models.Line{}))
	assert.False(t, isEmpty("x"))
}
