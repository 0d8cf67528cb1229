package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"go.uber.org/zap"
)

// SnapshotCache is a read-through cache in front of a SnapshotReader.
// Misses (ErrNotFound) are not cached; cache errors fall through to the
// underlying reader.
type SnapshotCache struct {
	next   domain.SnapshotReader
	cache  domain.Cache
	ttl    time.Duration
	logger *zap.Logger
}

// NewSnapshotCache wraps next. A nil cache returns next unchanged.
func NewSnapshotCache(next domain.SnapshotReader, c domain.Cache, ttl time.Duration, logger *zap.Logger) domain.SnapshotReader {
	if c == nil {
		return next
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotCache{
		next:   next,
		cache:  c,
		ttl:    ttl,
		logger: logger.Named("snapshot-cache"),
	}
}

// GetAccount implements domain.SnapshotReader.
func (s *SnapshotCache) GetAccount(ctx context.Context, accountID string) (*domain.AccountSnapshot, error) {
	var a domain.AccountSnapshot
	if s.load(ctx, "account:"+accountID, &a) {
		return &a, nil
	}
	fresh, err := s.next.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	s.store(ctx, "account:"+accountID, fresh)
	return fresh, nil
}

// GetCustomerByAccount implements domain.SnapshotReader.
func (s *SnapshotCache) GetCustomerByAccount(ctx context.Context, accountID string) (*domain.CustomerSnapshot, error) {
	var c domain.CustomerSnapshot
	if s.load(ctx, "customer-by-account:"+accountID, &c) {
		return &c, nil
	}
	fresh, err := s.next.GetCustomerByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	s.store(ctx, "customer-by-account:"+accountID, fresh)
	return fresh, nil
}

// Invalidate drops the cached snapshots of an account.
func (s *SnapshotCache) Invalidate(ctx context.Context, accountID string) error {
	if err := s.cache.Delete(ctx, "account:"+accountID); err != nil {
		return err
	}
	return s.cache.Delete(ctx, "customer-by-account:"+accountID)
}

func (s *SnapshotCache) load(ctx context.Context, key string, v any) bool {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("snapshot cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if data == nil {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.logger.Warn("discarding undecodable snapshot", zap.String("key", key), zap.Error(err))
		_ = s.cache.Delete(ctx, key)
		return false
	}
	return true
}

func (s *SnapshotCache) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		s.logger.Warn("snapshot cache write failed", zap.String("key", key), zap.Error(err))
	}
}
