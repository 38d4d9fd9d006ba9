package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Store defines the key/value store every aggregator caches through.
// Absence is always a miss, never an error.
type Store interface {
	// Basic operations
	Set(ctx context.Context, key string, value any, ttl time.Duration)
	Get(ctx context.Context, key string) (any, bool)
	Delete(ctx context.Context, key string)
	Clear(ctx context.Context)

	// Statistics
	Stats(ctx context.Context) StoreStats

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// StoreStats describes the current content of a store
type StoreStats struct {
	Backend string `json:"backend"`
	Keys    int64  `json:"keys"`
	Expired int64  `json:"expired"`
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// CacheConfig configuration for the cache
type CacheConfig struct {
	Backend      string        `mapstructure:"backend" validate:"oneof=memory redis"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	Addresses    []string      `mapstructure:"addresses"`
	Password     string        `mapstructure:"password"`
	Database     int           `mapstructure:"database"`
	MaxRetries   int           `mapstructure:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
}

// DefaultCacheConfig returns the default configuration
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Backend:      BackendMemory,
		KeyPrefix:    "transit:",
		Addresses:    []string{"localhost:6379"},
		Password:     "",
		Database:     0,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	}
}

// NewStore opens the backend selected by config
func NewStore(config *CacheConfig, logger *zap.Logger) (Store, error) {
	if config == nil {
		config = DefaultCacheConfig()
	}

	switch config.Backend {
	case "", BackendMemory:
		return NewMemoryStore(nil), nil
	case BackendRedis:
		return NewRedisStore(config, logger)
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", config.Backend)
	}
}
