package domain

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with per-entry expiry. A miss is
// reported as (nil, nil).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig selects and tunes the snapshot cache.
type CacheConfig struct {
	// Type is one of "memory", "redis" or "none".
	Type string `mapstructure:"type"`

	LocalMaxSize int           `mapstructure:"localMaxSize"`
	LocalTTL     time.Duration `mapstructure:"localTtl"`

	RedisAddr     string `mapstructure:"redisAddr"`
	RedisPassword string `mapstructure:"redisPassword"`
	RedisDB       int    `mapstructure:"redisDb"`

	// EnableTwoPhase puts a local LRU in front of Redis.
	EnableTwoPhase bool `mapstructure:"enableTwoPhase"`

	// SnapshotTTL bounds how long account and customer snapshots are reused.
	SnapshotTTL time.Duration `mapstructure:"snapshotTtl"`
}
