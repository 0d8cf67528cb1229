package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// New builds the cache selected by cfg.Type:
//
//	memory  in-process LRU
//	redis   Redis, or LRU over Redis when EnableTwoPhase is set
//	none    nil (caching disabled)
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil
	case "redis":
		remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		if !cfg.EnableTwoPhase {
			return remote, nil
		}
		return NewTwoPhase(NewLRUCache(cfg.LocalMaxSize), remote, cfg.LocalTTL), nil
	}
	return nil, fmt.Errorf("unsupported cache type %q", cfg.Type)
}

// TwoPhaseStats counts where reads were answered.
type TwoPhaseStats struct {
	LocalHits  int64
	RemoteHits int64
	Misses     int64
}

// TwoPhaseCache answers reads from a local LRU and falls back to a shared
// remote cache. Writes go to both; a remote hit is copied into the local
// tier for at most localTTL.
type TwoPhaseCache struct {
	local    *LRUCache
	remote   domain.Cache
	localTTL time.Duration

	localHits  atomic.Int64
	remoteHits atomic.Int64
	misses     atomic.Int64
}

// NewTwoPhase layers local over remote. A non-positive localTTL becomes
// five minutes.
func NewTwoPhase(local *LRUCache, remote domain.Cache, localTTL time.Duration) *TwoPhaseCache {
	if localTTL <= 0 {
		localTTL = 5 * time.Minute
	}
	return &TwoPhaseCache{local: local, remote: remote, localTTL: localTTL}
}

func (c *TwoPhaseCache) Get(ctx context.Context, key string) ([]byte, error) {
	if data, err := c.local.Get(ctx, key); err != nil || data != nil {
		if data != nil {
			c.localHits.Add(1)
		}
		return data, err
	}

	data, err := c.remote.Get(ctx, key)
	switch {
	case err != nil:
		return nil, err
	case data == nil:
		c.misses.Add(1)
		return nil, nil
	}
	c.remoteHits.Add(1)
	_ = c.local.Set(ctx, key, data, c.localTTL)
	return data, nil
}

func (c *TwoPhaseCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, key, data, min(ttl, c.localTTL)); err != nil {
		return err
	}
	return c.remote.Set(ctx, key, data, ttl)
}

func (c *TwoPhaseCache) Delete(ctx context.Context, key string) error {
	_ = c.local.Delete(ctx, key)
	return c.remote.Delete(ctx, key)
}

// Ping reports the remote tier; the local tier cannot fail.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("remote cache: %w", err)
	}
	return nil
}

func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns the read counters.
func (c *TwoPhaseCache) Stats() TwoPhaseStats {
	return TwoPhaseStats{
		LocalHits:  c.localHits.Load(),
		RemoteHits: c.remoteHits.Load(),
		Misses:     c.misses.Load(),
	}
}
