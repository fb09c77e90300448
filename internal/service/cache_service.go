package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/noah-isme/institute-backoffice-api/pkg/errors"
)

// CacheRepository is the store behind CacheService.
type CacheRepository interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Generation(ctx context.Context, namespace string) (int64, error)
	Bump(ctx context.Context, namespace string) (int64, error)
}

// CacheTicket pins a read to the generation it observed. Writing through the
// ticket after an invalidation lands in a generation nobody reads.
type CacheTicket struct {
	namespace  string
	key        string
	generation int64
	valid      bool
}

// CacheService caches read models per namespace and records hit ratios.
// Cache failures are logged and never fail the read that triggered them.
type CacheService struct {
	repo       CacheRepository
	metrics    *MetricsService
	defaultTTL time.Duration
	logger     *zap.Logger
	enabled    bool
}

// NewCacheService constructs a cache service.
func NewCacheService(repo CacheRepository, metrics *MetricsService, defaultTTL time.Duration, logger *zap.Logger, enabled bool) *CacheService {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheService{repo: repo, metrics: metrics, defaultTTL: defaultTTL, logger: logger, enabled: enabled}
}

// Enabled reports whether reads go to the cache at all.
func (s *CacheService) Enabled() bool {
	return s != nil && s.enabled && s.repo != nil
}

// Get looks key up in the current generation of namespace. The ticket is
// valid on a miss and should be passed to Put once the value is rebuilt.
func (s *CacheService) Get(ctx context.Context, namespace, key string, dest interface{}) (bool, CacheTicket) {
	if !s.Enabled() {
		return false, CacheTicket{}
	}
	start := time.Now()
	gen, err := s.repo.Generation(ctx, namespace)
	if err != nil {
		s.metrics.RecordCacheOperation(false, time.Since(start))
		s.logger.Warn("cache generation lookup failed", zap.String("namespace", namespace), zap.Error(err))
		return false, CacheTicket{}
	}
	ticket := CacheTicket{namespace: namespace, key: key, generation: gen, valid: true}

	err = s.repo.Get(ctx, ticket.storageKey(), dest)
	s.metrics.RecordCacheOperation(err == nil, time.Since(start))
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		s.logger.Warn("cache get failed", zap.String("key", ticket.storageKey()), zap.Error(err))
		return false, CacheTicket{}
	}
	return err == nil, ticket
}

// Put stores value under ticket. Invalid tickets are ignored.
func (s *CacheService) Put(ctx context.Context, ticket CacheTicket, value interface{}, ttl time.Duration) error {
	if !s.Enabled() || !ticket.valid {
		return nil
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}
	start := time.Now()
	err := s.repo.Set(ctx, ticket.storageKey(), value, ttl)
	s.metrics.ObserveCacheWrite(time.Since(start))
	if err != nil {
		s.logger.Warn("cache set failed", zap.String("key", ticket.storageKey()), zap.Error(err))
	}
	return err
}

// Invalidate orphans every entry of namespace.
func (s *CacheService) Invalidate(ctx context.Context, namespace string) error {
	if !s.Enabled() {
		return nil
	}
	gen, err := s.repo.Bump(ctx, namespace)
	if err != nil {
		s.logger.Warn("cache invalidate failed", zap.String("namespace", namespace), zap.Error(err))
		return err
	}
	s.logger.Debug("cache invalidated", zap.String("namespace", namespace), zap.Int64("generation", gen))
	return nil
}

func (t CacheTicket) storageKey() string {
	return fmt.Sprintf("%s:v%d:%s", t.namespace, t.generation, t.key)
}
