package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis wraps a go-redis client with JSON helpers.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

// Config defines connection parameters for Redis.
type Config struct {
	Addr     string
	Password string
	DB       int
	UseTLS   bool
}

// New returns a Redis client based on provided configuration.
func New(cfg Config, logger *slog.Logger) *Redis {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.UseTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	return &Redis{
		client: redis.NewClient(opts),
		logger: logger.With("component", "redis"),
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// SetJSON stores a value as JSON. Zero TTL keeps the key until overwritten.
func (r *Redis) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	r.logger.Debug("redis key written", "key", key, "bytes", len(data))
	return nil
}

// GetJSON retrieves a JSON value into dest. A missing key reports false.
func (r *Redis) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	res, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(res, dest); err != nil {
		return false, fmt.Errorf("json unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Slot returns the named snapshot slot stored under key.
func (r *Redis) Slot(key string) *RedisSlot {
	return &RedisSlot{redis: r, key: key}
}

// Close releases Redis resources.
func (r *Redis) Close() error {
	return r.client.Close()
}

// RedisSlot is a Slot kept in a single Redis key without expiry.
type RedisSlot struct {
	redis *Redis
	key   string
}

// Put overwrites the slot.
func (s *RedisSlot) Put(ctx context.Context, value any) error {
	return s.redis.SetJSON(ctx, s.key, value, 0)
}

// Get reads the slot into dest.
func (s *RedisSlot) Get(ctx context.Context, dest any) (bool, error) {
	return s.redis.GetJSON(ctx, s.key, dest)
}

// Name returns the slot key.
func (s *RedisSlot) Name() string {
	return s.key
}
