package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"transit-aggregator/internal/alerts"
	"transit-aggregator/pkg/models"
)

var (
	// ErrUpstreamUnavailable is wrapped by every transport or non-2xx failure
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrNotFound is returned when the upstream answers 404
	ErrNotFound = errors.New("upstream resource not found")
)

// Gateway is the per-mode adapter to an upstream transit API. Gateways
// return raw DTOs; caching, alert merging and ordering happen above them.
type Gateway interface {
	TransportType() models.TransportType
	GetLines(ctx context.Context) ([]LineDTO, error)
	GetGlobalAlerts(ctx context.Context) ([]alerts.RawAlert, error)
	GetStationsByLine(ctx context.Context, lineID string) ([]StationDTO, error)
	GetStationConnections(ctx context.Context, lineID, stationID string) ([]ConnectionDTO, error)
	GetNextArrivals(ctx context.Context, stationID string) ([]RouteDTO, error)
}

// LineDTO is a line as reported upstream
type LineDTO struct {
	ID          string
	Code        string
	Name        string
	Description string
	Origin      string
	Destination string
	Color       string
}

// StationDTO is a station of one line as reported upstream
type StationDTO struct {
	ID          string
	Code        string
	Name        string
	Latitude    *float64
	Longitude   *float64
	Order       int
	ExternalRef string
	Bike        *models.BikeAvailability
}

// ConnectionDTO is another line reachable from a station
type ConnectionDTO struct {
	Code          string
	Name          string
	Color         string
	TransportType models.TransportType
}

// RouteDTO is one upcoming departure
type RouteDTO struct {
	ID             string
	LineCode       string
	LineName       string
	Destination    string
	ArrivalTime    int64
	DelayInMinutes int
	Platform       string
}

// HTTPError describes a non-2xx upstream response
type HTTPError struct {
	URL        string
	Status     string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s: %s", e.URL, e.Status)
}

func (e *HTTPError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return ErrUpstreamUnavailable
}

func ptr[T any](v T) *T {
	return &v
}
