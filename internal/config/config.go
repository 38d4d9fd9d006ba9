package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"transit-aggregator/internal/aggregator"
	"transit-aggregator/internal/cache"
	"transit-aggregator/internal/gateway"
	"transit-aggregator/pkg/models"
)

// Config estructura de configuración principal
type Config struct {
	Server    ServerConfig               `mapstructure:"server"`
	Cache     cache.CacheConfig          `mapstructure:"cache"`
	Logger    LoggerConfig               `mapstructure:"logger"`
	Upstream  gateway.Config             `mapstructure:"upstream"`
	Alerts    AlertsConfig               `mapstructure:"alerts"`
	Proximity ProximityConfig            `mapstructure:"proximity"`
	Warmup    WarmupConfig               `mapstructure:"warmup"`
	Modes     map[string]aggregator.Mode `mapstructure:"modes" validate:"dive"`
}

// ServerConfig configuración del servidor HTTP
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port" validate:"gt=0,lte=65535"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	RateLimit    float64       `mapstructure:"rate_limit" validate:"gte=0"`
	RateBurst    int           `mapstructure:"rate_burst" validate:"gte=0"`
}

// LoggerConfig configuración del logger
type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=json console"`
	OutputPath string `mapstructure:"output_path" validate:"required"`
}

// AlertsConfig configuración del registro de avisos
type AlertsConfig struct {
	PurgeInterval time.Duration `mapstructure:"purge_interval" validate:"gt=0"`
}

// ProximityConfig configuración de la búsqueda de estaciones cercanas
type ProximityConfig struct {
	DefaultRadius     float64 `mapstructure:"default_radius" validate:"gt=0"`
	DefaultLimit      int     `mapstructure:"default_limit" validate:"gt=0"`
	MaxLimit          int     `mapstructure:"max_limit" validate:"gtefield=DefaultLimit"`
	InterchangeRadius float64 `mapstructure:"interchange_radius" validate:"gte=0"`
}

// WarmupConfig precarga de caché al arrancar
type WarmupConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
}

var validate = validator.New()

// LoadConfig carga la configuración desde .env, archivos de configuración
// y variables de entorno, y la valida
func LoadConfig() (*Config, error) {
	// .env es opcional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/transit-aggregator")

	// Variables de entorno: TA_SERVER_PORT, TA_MODES_METRO_STATIC_TTL, ...
	v.SetEnvPrefix("TA") // Transit Aggregator
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Credenciales sin prefijo, como las publica TMB
	v.BindEnv("upstream.tmb.app_id", "TA_UPSTREAM_TMB_APP_ID", "TMB_APP_ID")
	v.BindEnv("upstream.tmb.app_key", "TA_UPSTREAM_TMB_APP_KEY", "TMB_APP_KEY")

	// Configuración por defecto
	setDefaults(v)

	// Leer archivo de configuración
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Si no se encuentra el archivo, usar valores por defecto
	}

	// Unmarshall a struct
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	// Procesar la variable de entorno ADDRESSES si es una string
	if addressesStr := v.GetString("cache.addresses"); addressesStr != "" {
		// Si la variable de entorno es una string, convertirla a slice
		addresses := strings.Split(addressesStr, ",")
		for i, addr := range addresses {
			addresses[i] = strings.TrimSpace(addr)
		}
		config.Cache.Addresses = addresses
	}

	if err := config.normalizeModes(); err != nil {
		return nil, err
	}
	if err := validate.Struct(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// normalizeModes rellena el tipo de transporte a partir de la clave
func (c *Config) normalizeModes() error {
	for name, mode := range c.Modes {
		transport, ok := models.ParseTransportType(name)
		if !ok {
			return fmt.Errorf("unknown transport mode in config: %s", name)
		}
		mode.TransportType = transport
		c.Modes[name] = mode
	}
	return nil
}

// Mode devuelve la configuración de un modo, o la de por defecto
func (c *Config) Mode(transport models.TransportType) aggregator.Mode {
	if mode, ok := c.Modes[string(transport)]; ok {
		return mode
	}
	return aggregator.DefaultMode(transport)
}

// setDefaults establece los valores por defecto
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.rate_limit", 20.0)
	v.SetDefault("server.rate_burst", 40)

	// Cache defaults - memoria en local, redis opcional
	cacheDefaults := cache.DefaultCacheConfig()
	v.SetDefault("cache.backend", cacheDefaults.Backend)
	v.SetDefault("cache.key_prefix", cacheDefaults.KeyPrefix)
	v.SetDefault("cache.addresses", cacheDefaults.Addresses)
	v.SetDefault("cache.password", "")
	v.SetDefault("cache.database", 0)
	v.SetDefault("cache.max_retries", cacheDefaults.MaxRetries)
	v.SetDefault("cache.pool_size", cacheDefaults.PoolSize)
	v.SetDefault("cache.min_idle_conns", cacheDefaults.MinIdleConns)
	v.SetDefault("cache.dial_timeout", cacheDefaults.DialTimeout)
	v.SetDefault("cache.read_timeout", cacheDefaults.ReadTimeout)
	v.SetDefault("cache.write_timeout", cacheDefaults.WriteTimeout)
	v.SetDefault("cache.pool_timeout", cacheDefaults.PoolTimeout)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.output_path", "stdout")

	// Upstream defaults
	upstream := gateway.DefaultConfig()
	v.SetDefault("upstream.timeout", upstream.Timeout)
	v.SetDefault("upstream.max_retries", upstream.MaxRetries)
	v.SetDefault("upstream.max_concurrency", upstream.MaxConcurrency)
	v.SetDefault("upstream.tmb.base_url", upstream.TMB.BaseURL)
	v.SetDefault("upstream.tmb.app_id", "")
	v.SetDefault("upstream.tmb.app_key", "")
	v.SetDefault("upstream.tram.base_url", upstream.Tram.BaseURL)
	v.SetDefault("upstream.rodalies.base_url", upstream.Rodalies.BaseURL)
	v.SetDefault("upstream.rodalies.alerts_url", upstream.Rodalies.AlertsURL)
	v.SetDefault("upstream.rodalies.trip_updates_url", upstream.Rodalies.TripUpdatesURL)
	v.SetDefault("upstream.fgc.base_url", upstream.FGC.BaseURL)
	v.SetDefault("upstream.bicing.base_url", upstream.Bicing.BaseURL)

	// Alerts, proximity, warmup
	v.SetDefault("alerts.purge_interval", "5m")
	v.SetDefault("proximity.default_radius", 500.0)
	v.SetDefault("proximity.default_limit", 10)
	v.SetDefault("proximity.max_limit", 50)
	v.SetDefault("proximity.interchange_radius", 250.0)
	v.SetDefault("warmup.enabled", true)
	v.SetDefault("warmup.timeout", "2m")

	// Un bloque por modo de transporte
	for _, transport := range models.TransportTypes {
		mode := aggregator.DefaultMode(transport)
		prefix := "modes." + string(transport) + "."
		v.SetDefault(prefix+"enabled", mode.Enabled)
		v.SetDefault(prefix+"static_ttl", mode.StaticTTL)
		v.SetDefault(prefix+"alerts_ttl", mode.AlertsTTL)
		v.SetDefault(prefix+"routes_ttl", mode.RoutesTTL)
		v.SetDefault(prefix+"line_concurrency", mode.LineConcurrency)
		v.SetDefault(prefix+"station_concurrency", mode.StationConcurrency)
	}
}

// GetAddress devuelve la dirección completa del servidor
func (sc *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", sc.Host, sc.Port)
}
