package aggregator

import (
	"time"

	"transit-aggregator/pkg/models"
)

// Mode configures the aggregator of one transport mode. TTLs must keep
// static > alerts > routes.
type Mode struct {
	TransportType      models.TransportType `mapstructure:"-"`
	Enabled            bool                 `mapstructure:"enabled"`
	StaticTTL          time.Duration        `mapstructure:"static_ttl" validate:"gtfield=AlertsTTL"`
	AlertsTTL          time.Duration        `mapstructure:"alerts_ttl" validate:"gtfield=RoutesTTL"`
	RoutesTTL          time.Duration        `mapstructure:"routes_ttl" validate:"gt=0"`
	LineConcurrency    int                  `mapstructure:"line_concurrency" validate:"gte=1"`
	StationConcurrency int                  `mapstructure:"station_concurrency" validate:"gte=1"`
}

// DefaultMode returns the defaults for transport
func DefaultMode(transport models.TransportType) Mode {
	m := Mode{
		TransportType:      transport,
		Enabled:            true,
		StaticTTL:          24 * time.Hour,
		AlertsTTL:          time.Hour,
		RoutesTTL:          30 * time.Second,
		LineConcurrency:    5,
		StationConcurrency: 10,
	}

	switch transport {
	case models.TransportMetro:
		m.StaticTTL = 7 * 24 * time.Hour
	case models.TransportBus:
		m.RoutesTTL = 20 * time.Second
	case models.TransportBicing:
		m.StaticTTL = 10 * time.Minute
		m.AlertsTTL = 5 * time.Minute
	}
	return m
}
