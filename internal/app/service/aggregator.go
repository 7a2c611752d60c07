package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sifan077/analytics-service/internal/app/model"
	"github.com/sifan077/analytics-service/internal/app/repository"
	infraPrometheus "github.com/sifan077/analytics-service/internal/infra/prometheus"
	"golang.org/x/sync/errgroup"
)

// DefaultTopUsers is the size of the top users ranking.
const DefaultTopUsers = 10

// AggregatorDeps groups the dependencies of an Aggregator.
type AggregatorDeps struct {
	Events   repository.EventRepository
	Metrics  *infraPrometheus.Metrics
	TopUsers int
	Now      func() time.Time
}

// Aggregator computes dashboards from the event store.
type Aggregator struct {
	events   repository.EventRepository
	metrics  *infraPrometheus.Metrics
	topUsers int
	now      func() time.Time
}

// NewAggregator returns an Aggregator with defaults applied.
func NewAggregator(deps AggregatorDeps) *Aggregator {
	a := &Aggregator{
		events:   deps.Events,
		metrics:  deps.Metrics,
		topUsers: deps.TopUsers,
		now:      deps.Now,
	}
	if a.topUsers <= 0 {
		a.topUsers = DefaultTopUsers
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a
}

// Compute builds the dashboard for the trailing days. The window is fixed once
// at the start of the call and shared by every part, so the total, the type
// and day breakdowns and the ranking all describe the same set of events.
func (a *Aggregator) Compute(ctx context.Context, days int) (*model.Dashboard, error) {
	if !model.ValidWindowDays(days) {
		return nil, ErrInvalidDays
	}

	started := time.Now()
	w := model.NewWindow(days, a.now())

	var (
		total  int64
		byType []model.TypeCount
		byDay  []model.DayCount
		users  []model.UserCount
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		if total, err = a.events.Count(gctx, w); err != nil {
			return fmt.Errorf("aggregate total: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if byType, err = a.events.CountByType(gctx, w); err != nil {
			return fmt.Errorf("aggregate by type: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if byDay, err = a.events.CountByDay(gctx, w); err != nil {
			return fmt.Errorf("aggregate by day: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		if users, err = a.events.TopUsers(gctx, w, a.topUsers); err != nil {
			return fmt.Errorf("aggregate top users: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	dashboard := &model.Dashboard{
		WindowDays:   days,
		Period:       model.PeriodLabel(days),
		GeneratedAt:  w.Until,
		TotalEvents:  total,
		EventsByType: sortTypeCounts(byType),
		EventsByDay:  sortDayCounts(byDay),
		TopUsers:     a.rankUsers(users),
	}

	a.metrics.ObserveAggregation(time.Since(started))
	return dashboard, nil
}

// sortTypeCounts orders by count descending then type so cached payloads are stable.
func sortTypeCounts(counts []model.TypeCount) []model.TypeCount {
	out := append(make([]model.TypeCount, 0, len(counts)), counts...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].EventType < out[j].EventType
	})
	return out
}

func sortDayCounts(counts []model.DayCount) []model.DayCount {
	out := append(make([]model.DayCount, 0, len(counts)), counts...)
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func (a *Aggregator) rankUsers(users []model.UserCount) []model.UserCount {
	out := append(make([]model.UserCount, 0, len(users)), users...)
	repository.SortUserCounts(out)
	if len(out) > a.topUsers {
		out = out[:a.topUsers]
	}
	return out
}
