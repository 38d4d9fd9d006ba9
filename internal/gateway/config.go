package gateway

import "time"

// Config holds the upstream settings shared by every gateway
type Config struct {
	Timeout        time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxRetries     uint64        `mapstructure:"max_retries"`
	MaxConcurrency int64         `mapstructure:"max_concurrency" validate:"gte=0"`

	TMB      TMBConfig      `mapstructure:"tmb"`
	Tram     EndpointConfig `mapstructure:"tram"`
	Rodalies RodaliesConfig `mapstructure:"rodalies"`
	FGC      EndpointConfig `mapstructure:"fgc"`
	Bicing   EndpointConfig `mapstructure:"bicing"`
}

// TMBConfig configures the TMB developer API (metro and bus)
type TMBConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	AppID   string `mapstructure:"app_id"`
	AppKey  string `mapstructure:"app_key"`
}

// EndpointConfig configures a gateway that only needs a base URL
type EndpointConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
}

// RodaliesConfig configures the Renfe Rodalies static API and GTFS-RT feeds
type RodaliesConfig struct {
	BaseURL        string `mapstructure:"base_url" validate:"omitempty,url"`
	AlertsURL      string `mapstructure:"alerts_url" validate:"omitempty,url"`
	TripUpdatesURL string `mapstructure:"trip_updates_url" validate:"omitempty,url"`
}

// DefaultConfig returns the public endpoints
func DefaultConfig() Config {
	return Config{
		Timeout:        10 * time.Second,
		MaxRetries:     2,
		MaxConcurrency: 20,
		TMB:            TMBConfig{BaseURL: "https://api.tmb.cat/v1"},
		Tram:           EndpointConfig{BaseURL: "https://opendata.tram.cat/api/v1"},
		Rodalies: RodaliesConfig{
			BaseURL:        "https://serveisferroviaris.gencat.cat/api/rodalies",
			AlertsURL:      "https://gtfsrt.renfe.com/alerts.pb",
			TripUpdatesURL: "https://gtfsrt.renfe.com/trip_updates.pb",
		},
		FGC:    EndpointConfig{BaseURL: "https://dadesobertes.fgc.cat/api/explore/v2.1/catalog/datasets"},
		Bicing: EndpointConfig{BaseURL: "https://barcelona-sp.publicbikesystem.net/customer/gbfs/v2/en"},
	}
}
