package service

import (
	"context"
	"sync"
	"time"

	"github.com/sifan077/analytics-service/internal/app/model"
)

type mockEventRepository struct {
	createFn       func(ctx context.Context, event *model.Event) error
	countFn        func(ctx context.Context, w model.Window) (int64, error)
	countByTypeFn  func(ctx context.Context, w model.Window) ([]model.TypeCount, error)
	countByDayFn   func(ctx context.Context, w model.Window) ([]model.DayCount, error)
	topUsersFn     func(ctx context.Context, w model.Window, limit int) ([]model.UserCount, error)
	countForUserFn func(ctx context.Context, userID int64, w model.Window) (int64, error)
	findForUserFn  func(ctx context.Context, userID int64, w model.Window, limit int) ([]model.Event, error)
}

func (m *mockEventRepository) Create(ctx context.Context, event *model.Event) error {
	if m.createFn != nil {
		return m.createFn(ctx, event)
	}
	return nil
}

func (m *mockEventRepository) Count(ctx context.Context, w model.Window) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx, w)
	}
	return 0, nil
}

func (m *mockEventRepository) CountByType(ctx context.Context, w model.Window) ([]model.TypeCount, error) {
	if m.countByTypeFn != nil {
		return m.countByTypeFn(ctx, w)
	}
	return nil, nil
}

func (m *mockEventRepository) CountByDay(ctx context.Context, w model.Window) ([]model.DayCount, error) {
	if m.countByDayFn != nil {
		return m.countByDayFn(ctx, w)
	}
	return nil, nil
}

func (m *mockEventRepository) TopUsers(ctx context.Context, w model.Window, limit int) ([]model.UserCount, error) {
	if m.topUsersFn != nil {
		return m.topUsersFn(ctx, w, limit)
	}
	return nil, nil
}

func (m *mockEventRepository) CountForUser(ctx context.Context, userID int64, w model.Window) (int64, error) {
	if m.countForUserFn != nil {
		return m.countForUserFn(ctx, userID, w)
	}
	return 0, nil
}

func (m *mockEventRepository) FindForUser(ctx context.Context, userID int64, w model.Window, limit int) ([]model.Event, error) {
	if m.findForUserFn != nil {
		return m.findForUserFn(ctx, userID, w, limit)
	}
	return nil, nil
}

func (m *mockEventRepository) Ping(ctx context.Context) error {
	return nil
}

type mockCounterRepository struct {
	incrementFn func(ctx context.Context, eventType string) error
	snapshotFn  func(ctx context.Context) (*model.RealtimeCounters, error)
}

func (m *mockCounterRepository) Increment(ctx context.Context, eventType string) error {
	if m.incrementFn != nil {
		return m.incrementFn(ctx, eventType)
	}
	return nil
}

func (m *mockCounterRepository) Snapshot(ctx context.Context) (*model.RealtimeCounters, error) {
	if m.snapshotFn != nil {
		return m.snapshotFn(ctx)
	}
	return &model.RealtimeCounters{ByType: map[string]int64{}}, nil
}

type mockPublisher struct {
	mu        sync.Mutex
	published []*model.Event
	err       error
}

func (m *mockPublisher) Publish(event *model.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, event)
	return m.err
}

type mockDashboardCache struct {
	getFn func(ctx context.Context, days int) (*model.Dashboard, bool, error)
	setFn func(ctx context.Context, days int, dashboard *model.Dashboard) error
}

func (m *mockDashboardCache) Get(ctx context.Context, days int) (*model.Dashboard, bool, error) {
	if m.getFn != nil {
		return m.getFn(ctx, days)
	}
	return nil, false, nil
}

func (m *mockDashboardCache) Set(ctx context.Context, days int, dashboard *model.Dashboard) error {
	if m.setFn != nil {
		return m.setFn(ctx, days, dashboard)
	}
	return nil
}

var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

// tickingClock returns start and advances by step on every call.
func tickingClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	next := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(step)
		return now
	}
}

func int64Ptr(v int64) *int64 { return &v }
