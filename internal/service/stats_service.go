package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-net-api/internal/models"
	appErrors "github.com/noah-isme/campus-net-api/pkg/errors"
)

const statsCacheKey = "campusnet:stats:pool"
const statsCachePattern = "campusnet:stats:*"

type poolCounter interface {
	CountsByStatus(ctx context.Context) ([]models.StatusCount, error)
	Count(ctx context.Context) (int, error)
}

type pendingPaymentCounter interface {
	CountByStatus(ctx context.Context, status models.PaymentStatus) (int, error)
}

type statsCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// StatsService aggregates pool statistics behind a short-lived Redis cache.
type StatsService struct {
	accounts poolCounter
	payments pendingPaymentCounter
	cache    statsCache
	metrics  *MetricsService
	ttl      time.Duration
	logger   *zap.Logger
}

// NewStatsService constructs the stats service.
func NewStatsService(accounts poolCounter, payments pendingPaymentCounter, cache statsCache, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *StatsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &StatsService{
		accounts: accounts,
		payments: payments,
		cache:    cache,
		metrics:  metrics,
		ttl:      ttl,
		logger:   logger,
	}
}

// Pool returns the pool summary, served from cache when fresh. The second
// return reports a cache hit.
func (s *StatsService) Pool(ctx context.Context) (*models.PoolStats, bool, error) {
	if s.cache != nil {
		started := time.Now()
		var cached models.PoolStats
		err := s.cache.Get(ctx, statsCacheKey, &cached)
		s.metrics.RecordCacheOperation(err == nil, time.Since(started))
		if err == nil {
			return &cached, true, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("stats cache read failed", zap.Error(err))
		}
	}

	total, err := s.accounts.Count(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count accounts")
	}
	byStatus, err := s.accounts.CountsByStatus(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count accounts by status")
	}
	pending, err := s.payments.CountByStatus(ctx, models.PaymentStatusPending)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count pending payments")
	}

	stats := &models.PoolStats{
		TotalAccounts:   total,
		ByStatus:        byStatus,
		PendingPayments: pending,
		GeneratedAt:     time.Now().UTC(),
	}
	if s.cache != nil {
		started := time.Now()
		if err := s.cache.Set(ctx, statsCacheKey, stats, s.ttl); err != nil {
			s.logger.Warn("stats cache write failed", zap.Error(err))
		}
		s.metrics.ObserveCacheWrite(time.Since(started))
	}
	return stats, false, nil
}

// Invalidate drops cached stats after any pool mutation.
func (s *StatsService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, statsCachePattern); err != nil {
		s.logger.Warn("stats cache invalidation failed", zap.Error(err))
	}
}
