package alerts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"transit-aggregator/pkg/models"
)

// Registry is the process-wide set of currently known alerts, per mode.
// Each refresh replaces a mode's set; ended alerts are purged.
type Registry struct {
	mu     sync.RWMutex
	byMode map[models.TransportType]map[string]models.Alert
	clock  clock.Clock
	logger *zap.Logger
}

// NewRegistry creates an empty registry; a nil clock uses wall time
func NewRegistry(clk clock.Clock, logger *zap.Logger) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	return &Registry{
		byMode: make(map[models.TransportType]map[string]models.Alert),
		clock:  clk,
		logger: logger,
	}
}

// Replace sets the alerts of one mode. Alerts missing from the new set are
// considered resolved.
func (r *Registry) Replace(mode models.TransportType, alerts []models.Alert) {
	now := r.clock.Now()
	set := make(map[string]models.Alert, len(alerts))
	for _, a := range alerts {
		if a.IsExpired(now) {
			continue
		}
		set[a.ID] = a
	}

	r.mu.Lock()
	resolved := 0
	for id := range r.byMode[mode] {
		if _, ok := set[id]; !ok {
			resolved++
		}
	}
	r.byMode[mode] = set
	r.mu.Unlock()

	r.logger.Debug("alerts registered",
		zap.String("mode", string(mode)),
		zap.Int("active", len(set)),
		zap.Int("resolved", resolved))
}

// Active returns the alerts of mode that have not ended; an empty mode
// returns every mode. Output is sorted by mode then id.
func (r *Registry) Active(mode models.TransportType) []models.Alert {
	now := r.clock.Now()

	r.mu.RLock()
	var out []models.Alert
	for m, set := range r.byMode {
		if mode != "" && m != mode {
			continue
		}
		for _, a := range set {
			if !a.IsExpired(now) {
				out = append(out, a)
			}
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].TransportType != out[j].TransportType {
			return out[i].TransportType < out[j].TransportType
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Purge removes ended alerts and returns how many were dropped
func (r *Registry) Purge() int {
	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	purged := 0
	for _, set := range r.byMode {
		for id, a := range set {
			if a.IsExpired(now) {
				delete(set, id)
				purged++
			}
		}
	}
	return purged
}

// Run purges on every tick until ctx is done
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := r.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Purge(); n > 0 {
				r.logger.Info("purged ended alerts", zap.Int("count", n))
			}
		}
	}
}
