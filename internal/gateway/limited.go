package gateway

import (
	"context"

	"golang.org/x/sync/semaphore"

	"transit-aggregator/internal/alerts"
	"transit-aggregator/pkg/models"
)

// limited caps the number of concurrent upstream calls of one gateway,
// across every aggregator call that uses it
type limited struct {
	next Gateway
	sem  *semaphore.Weighted
}

// Limited wraps gw so that at most n calls run at once. n <= 0 returns gw.
func Limited(gw Gateway, n int64) Gateway {
	if n <= 0 {
		return gw
	}
	return &limited{next: gw, sem: semaphore.NewWeighted(n)}
}

func call[T any](ctx context.Context, l *limited, fn func() (T, error)) (T, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		var zero T
		return zero, err
	}
	defer l.sem.Release(1)
	return fn()
}

func (l *limited) TransportType() models.TransportType {
	return l.next.TransportType()
}

func (l *limited) GetLines(ctx context.Context) ([]LineDTO, error) {
	return call(ctx, l, func() ([]LineDTO, error) { return l.next.GetLines(ctx) })
}

func (l *limited) GetGlobalAlerts(ctx context.Context) ([]alerts.RawAlert, error) {
	return call(ctx, l, func() ([]alerts.RawAlert, error) { return l.next.GetGlobalAlerts(ctx) })
}

func (l *limited) GetStationsByLine(ctx context.Context, lineID string) ([]StationDTO, error) {
	return call(ctx, l, func() ([]StationDTO, error) { return l.next.GetStationsByLine(ctx, lineID) })
}

func (l *limited) GetStationConnections(ctx context.Context, lineID, stationID string) ([]ConnectionDTO, error) {
	return call(ctx, l, func() ([]ConnectionDTO, error) {
		return l.next.GetStationConnections(ctx, lineID, stationID)
	})
}

func (l *limited) GetNextArrivals(ctx context.Context, stationID string) ([]RouteDTO, error) {
	return call(ctx, l, func() ([]RouteDTO, error) { return l.next.GetNextArrivals(ctx, stationID) })
}
