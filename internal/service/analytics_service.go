package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ozpath/ozpath-api/internal/models"
	"github.com/ozpath/ozpath-api/internal/tenant"
	"github.com/ozpath/ozpath-api/pkg/config"
	appErrors "github.com/ozpath/ozpath-api/pkg/errors"
)

type analyticsRepository interface {
	CountByStatus(ctx context.Context) (map[models.ApplicationStatus]int, error)
}

type summaryCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// AnalyticsService serves the pipeline reporting read model, cached per
// tenant. Reporting never runs inside workflow transactions.
type AnalyticsService struct {
	repo   analyticsRepository
	cache  summaryCache
	cfg    config.AnalyticsConfig
	logger *zap.Logger
}

// NewAnalyticsService constructs AnalyticsService.
func NewAnalyticsService(repo analyticsRepository, cache summaryCache, cfg config.AnalyticsConfig, logger *zap.Logger) *AnalyticsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalyticsService{repo: repo, cache: cache, cfg: cfg, logger: logger}
}

// PipelineSummary aggregates applications per status and derives the success
// rate over decided applications. Approved and completed both count as
// successful outcomes.
func (s *AnalyticsService) PipelineSummary(ctx context.Context) (*models.PipelineSummary, error) {
	tenantID, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	cacheKey := fmt.Sprintf("analytics:pipeline:%s", tenantID)

	if s.cache != nil {
		var cached models.PipelineSummary
		hit, err := s.cache.Get(ctx, cacheKey, &cached)
		if err != nil {
			s.logger.Warn("pipeline summary cache read failed", zap.Error(err))
		} else if hit {
			return &cached, nil
		}
	}

	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate pipeline")
	}

	summary := &models.PipelineSummary{
		ByStatus:    counts,
		GeneratedAt: time.Now().UTC(),
	}
	for _, total := range counts {
		summary.TotalApplications += total
	}
	approved := counts[models.StatusApproved] + counts[models.StatusCompleted]
	decided := approved + counts[models.StatusRejected]
	summary.Approved = approved
	summary.Decided = decided
	if decided > 0 {
		summary.SuccessRate = float64(approved) / float64(decided)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, summary, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("pipeline summary cache write failed", zap.Error(err))
		}
	}
	return summary, nil
}
