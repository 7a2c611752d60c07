package service

import (
	"context"
	"fmt"

	"github.com/sifan077/analytics-service/internal/app/cache"
	"github.com/sifan077/analytics-service/internal/app/model"
	infraPrometheus "github.com/sifan077/analytics-service/internal/infra/prometheus"
	"go.uber.org/zap"
)

// DashboardService serves dashboards through the cache.
type DashboardService interface {
	Dashboard(ctx context.Context, days int) (*model.Dashboard, error)
}

// DashboardDeps groups the dependencies of the dashboard service.
type DashboardDeps struct {
	Logger     *zap.Logger
	Cache      cache.DashboardCache
	Aggregator *Aggregator
	Metrics    *infraPrometheus.Metrics
}

type dashboardService struct {
	logger     *zap.Logger
	cache      cache.DashboardCache
	aggregator *Aggregator
	metrics    *infraPrometheus.Metrics
}

// NewDashboardService returns a cache-aside DashboardService.
func NewDashboardService(deps DashboardDeps) DashboardService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &dashboardService{
		logger:     logger,
		cache:      deps.Cache,
		aggregator: deps.Aggregator,
		metrics:    deps.Metrics,
	}
}

// Dashboard returns the cached dashboard for days, computing and storing it on
// a miss. Two callers missing at once both compute and both store.
func (s *dashboardService) Dashboard(ctx context.Context, days int) (*model.Dashboard, error) {
	if !model.ValidWindowDays(days) {
		return nil, ErrInvalidDays
	}

	cached, ok, err := s.cache.Get(ctx, days)
	if err != nil {
		return nil, fmt.Errorf("read dashboard cache: %w", err)
	}
	s.metrics.CacheLookup(ok)
	if ok {
		return cached, nil
	}

	dashboard, err := s.aggregator.Compute(ctx, days)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, days, dashboard); err != nil {
		return nil, fmt.Errorf("write dashboard cache: %w", err)
	}

	s.logger.Debug("dashboard computed",
		zap.Int("days", days),
		zap.Int64("total_events", dashboard.TotalEvents),
	)
	return dashboard, nil
}
