package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/uniadm/academic-api/internal/models"
	appErrors "github.com/uniadm/academic-api/pkg/errors"
)

const dashboardCacheKey = "workflow:dashboard"

type dashboardInstanceReader interface {
	StatusCounts(ctx context.Context) ([]models.StatusCount, error)
	CountOverdue(ctx context.Context, now time.Time) (int64, error)
}

// WorkflowDashboardService aggregates the instance store into read-only
// rollups. It never mutates workflow state.
type WorkflowDashboardService struct {
	instances dashboardInstanceReader
	cache     *CacheService
	logger    *zap.Logger
	now       func() time.Time
	cacheTTL  time.Duration
}

// NewWorkflowDashboardService constructs the service.
func NewWorkflowDashboardService(instances dashboardInstanceReader, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *WorkflowDashboardService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowDashboardService{
		instances: instances,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
		cacheTTL:  cacheTTL,
	}
}

// Dashboard returns the aggregate and whether it was served from cache.
func (s *WorkflowDashboardService) Dashboard(ctx context.Context) (*models.DashboardAggregate, bool, error) {
	if s.cache.Enabled() {
		var cached models.DashboardAggregate
		if hit, err := s.cache.Get(ctx, dashboardCacheKey, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	counts, err := s.instances.StatusCounts(ctx)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate workflow instances")
	}
	overdue, err := s.instances.CountOverdue(ctx, s.now().UTC())
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count overdue workflows")
	}

	aggregate := buildAggregate(counts, overdue)

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, dashboardCacheKey, aggregate, s.cacheTTL); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}
	return aggregate, false, nil
}

// Invalidate drops the cached aggregate after workflow mutations.
func (s *WorkflowDashboardService) Invalidate(ctx context.Context) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, dashboardCacheKey); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}

func buildAggregate(counts []models.StatusCount, overdue int64) *models.DashboardAggregate {
	aggregate := &models.DashboardAggregate{
		Overdue:  overdue,
		ByEntity: make(map[models.EntityType]models.EntityBreakdown),
	}
	for _, row := range counts {
		aggregate.Total += row.Count
		switch row.Status {
		case models.WorkflowStatusPending:
			aggregate.Pending += row.Count
		case models.WorkflowStatusInProgress:
			aggregate.InProgress += row.Count
		case models.WorkflowStatusApproved:
			aggregate.Approved += row.Count
		case models.WorkflowStatusRejected:
			aggregate.Rejected += row.Count
		case models.WorkflowStatusCompleted:
			aggregate.Completed += row.Count
		}

		breakdown := aggregate.ByEntity[row.EntityType]
		breakdown.Total += row.Count
		switch {
		case row.Status == models.WorkflowStatusCompleted:
			breakdown.Completed += row.Count
		case row.Status == models.WorkflowStatusRejected:
			breakdown.Rejected += row.Count
		default:
			breakdown.Active += row.Count
		}
		aggregate.ByEntity[row.EntityType] = breakdown
	}
	return aggregate
}
