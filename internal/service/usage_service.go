package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/pajalhq/pajal-api/internal/models"
	"github.com/pajalhq/pajal-api/internal/schedule"
	"github.com/pajalhq/pajal-api/pkg/clock"
	appErrors "github.com/pajalhq/pajal-api/pkg/errors"
)

const usageCacheKey = "usage:report"

type usageSessionRepository interface {
	ListAll(ctx context.Context) ([]models.Session, error)
}

type usageUserRepository interface {
	CountsByRole(ctx context.Context) (map[models.UserRole]int, error)
}

type usageCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// UsageService builds the administrator dashboard aggregates: session counts
// by derived status, per-room booking counts with cancelled sessions left
// out, and account counts per role. Reports are cached in Redis and
// invalidated whenever a session mutates.
type UsageService struct {
	sessions usageSessionRepository
	users    usageUserRepository
	cache    usageCache
	metrics  *MetricsService
	logger   *zap.Logger
	clock    clock.Clock
	ttl      time.Duration
}

// NewUsageService constructs a UsageService.
func NewUsageService(sessions usageSessionRepository, users usageUserRepository, cache usageCache, metrics *MetricsService, logger *zap.Logger, clk clock.Clock, ttl time.Duration) *UsageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &UsageService{sessions: sessions, users: users, cache: cache, metrics: metrics, logger: logger, clock: clk, ttl: ttl}
}

// Report returns the usage aggregate. The boolean reports whether the data
// came from cache.
func (s *UsageService) Report(ctx context.Context) (*models.UsageReport, bool, error) {
	if s.cache != nil {
		var cached models.UsageReport
		err := s.cache.Get(ctx, usageCacheKey, &cached)
		if err == nil {
			s.metrics.RecordCacheOperation(true)
			return &cached, true, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("usage cache read failed", zap.Error(err))
		}
		s.metrics.RecordCacheOperation(false)
	}

	report, err := s.build(ctx)
	if err != nil {
		return nil, false, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, usageCacheKey, report, s.ttl); err != nil {
			s.logger.Warn("usage cache write failed", zap.Error(err))
		}
	}
	return report, false, nil
}

// Invalidate drops the cached report so the next read recomputes it.
func (s *UsageService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, usageCacheKey); err != nil {
		s.logger.Warn("usage cache invalidation failed", zap.Error(err))
	}
}

func (s *UsageService) build(ctx context.Context) (*models.UsageReport, error) {
	sessions, err := s.sessions.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	userCounts, err := s.users.CountsByRole(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count users")
	}

	now := s.clock.Now()
	statusCounts := make(map[models.SessionStatus]int)
	roomCounts := make(map[string]int)
	for i := range sessions {
		status := schedule.DeriveSessionStatus(&sessions[i], now)
		statusCounts[status]++
		if status != models.StatusCancelled {
			roomCounts[sessions[i].Location]++
		}
	}

	rooms := make([]models.RoomUsage, 0, len(roomCounts))
	for location, count := range roomCounts {
		rooms = append(rooms, models.RoomUsage{Location: location, Count: count})
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].Count != rooms[j].Count {
			return rooms[i].Count > rooms[j].Count
		}
		return rooms[i].Location < rooms[j].Location
	})

	return &models.UsageReport{
		StatusCounts: statusCounts,
		RoomUsage:    rooms,
		UserCounts:   userCounts,
		GeneratedAt:  now.UTC(),
	}, nil
}
