package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const scanBatch = 500

// RedisStore implements Store on top of Redis. Values are stored as JSON
// and come back from Get as json.RawMessage. Redis failures are logged and
// reported as misses.
type RedisStore struct {
	client redis.UniversalClient
	logger *zap.Logger
	config *CacheConfig
}

// NewRedisStore creates a new instance of RedisStore
func NewRedisStore(config *CacheConfig, logger *zap.Logger) (*RedisStore, error) {
	if config == nil {
		config = DefaultCacheConfig()
	}

	// Configure the Redis client
	options := &redis.UniversalOptions{
		Addrs:        config.Addresses,
		Password:     config.Password,
		DB:           config.Database,
		MaxRetries:   config.MaxRetries,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		PoolTimeout:  config.PoolTimeout,
	}

	client := redis.NewUniversalClient(options)

	// Check connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		logger: logger,
		config: config,
	}, nil
}

func (rs *RedisStore) key(key string) string {
	return rs.config.KeyPrefix + key
}

// Set stores a JSON encoded value; ttl <= 0 never expires
func (rs *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	data, err := json.Marshal(value)
	if err != nil {
		rs.logger.Error("failed to marshal cache value", zap.Error(err), zap.String("key", key))
		return
	}

	if ttl < 0 {
		ttl = 0
	}
	if err := rs.client.Set(ctx, rs.key(key), data, ttl).Err(); err != nil {
		rs.logger.Warn("failed to set cache value", zap.Error(err), zap.String("key", key))
		return
	}

	rs.logger.Debug("cache value set",
		zap.String("key", key),
		zap.Duration("ttl", ttl))
}

// Get retrieves the raw JSON stored under key
func (rs *RedisStore) Get(ctx context.Context, key string) (any, bool) {
	data, err := rs.client.Get(ctx, rs.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			rs.logger.Warn("failed to get cache value, treating as miss", zap.Error(err), zap.String("key", key))
		}
		return nil, false
	}

	return json.RawMessage(data), true
}

// Delete removes key
func (rs *RedisStore) Delete(ctx context.Context, key string) {
	if err := rs.client.Del(ctx, rs.key(key)).Err(); err != nil {
		rs.logger.Warn("failed to delete cache value", zap.Error(err), zap.String("key", key))
	}
}

// Clear removes every key under the configured prefix
func (rs *RedisStore) Clear(ctx context.Context) {
	deleted := 0
	err := rs.scan(ctx, func(keys []string) error {
		deleted += len(keys)
		return rs.client.Del(ctx, keys...).Err()
	})
	if err != nil {
		rs.logger.Error("failed to clear cache", zap.Error(err))
		return
	}

	rs.logger.Info("cache cleared", zap.Int("keys", deleted))
}

// Stats counts the keys under the configured prefix
func (rs *RedisStore) Stats(ctx context.Context) StoreStats {
	stats := StoreStats{Backend: BackendRedis}
	err := rs.scan(ctx, func(keys []string) error {
		stats.Keys += int64(len(keys))
		return nil
	})
	if err != nil {
		rs.logger.Warn("failed to count cache keys", zap.Error(err))
	}
	return stats
}

func (rs *RedisStore) scan(ctx context.Context, fn func(keys []string) error) error {
	var cursor uint64
	for {
		keys, next, err := rs.client.Scan(ctx, cursor, rs.config.KeyPrefix+"*", scanBatch).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys: %w", err)
		}
		if len(keys) > 0 {
			if err := fn(keys); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Ping verifies the Redis connection
func (rs *RedisStore) Ping(ctx context.Context) error {
	if err := rs.client.Ping(ctx).Err(); err != nil {
		rs.logger.Error("ping failed", zap.Error(err))
		return fmt.Errorf("ping failed: %w", err)
	}

	return nil
}

// Close closes the Redis connection
func (rs *RedisStore) Close() error {
	if err := rs.client.Close(); err != nil {
		rs.logger.Error("failed to close Redis connection", zap.Error(err))
		return fmt.Errorf("failed to close Redis connection: %w", err)
	}

	rs.logger.Info("Redis connection closed successfully")
	return nil
}
