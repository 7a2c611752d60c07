package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sifan077/analytics-service/internal/app/model"
	"github.com/sifan077/analytics-service/internal/app/repository"
	infraPrometheus "github.com/sifan077/analytics-service/internal/infra/prometheus"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	// DefaultRecentEvents caps the events returned by UserActivity.
	DefaultRecentEvents = 100
)

// EventPublisher announces stored events to other services.
type EventPublisher interface {
	Publish(event *model.Event) error
}

// EventService defines ingestion and per-user operations on events.
type EventService interface {
	Record(ctx context.Context, input RecordEventInput) (*model.Event, error)
	UserActivity(ctx context.Context, userID int64, days int) (*model.UserActivity, error)
	Counters(ctx context.Context) (*model.RealtimeCounters, error)
}

// EventServiceDeps groups the dependencies of the event service.
type EventServiceDeps struct {
	Logger       *zap.Logger
	Events       repository.EventRepository
	Counters     repository.CounterRepository
	Publisher    EventPublisher
	Metrics      *infraPrometheus.Metrics
	RecentEvents int
	Now          func() time.Time
}

type eventService struct {
	logger       *zap.Logger
	events       repository.EventRepository
	counters     repository.CounterRepository
	publisher    EventPublisher
	metrics      *infraPrometheus.Metrics
	recentEvents int
	now          func() time.Time
}

// NewEventService returns an EventService backed by the given stores.
func NewEventService(deps EventServiceDeps) EventService {
	s := &eventService{
		logger:       deps.Logger,
		events:       deps.Events,
		counters:     deps.Counters,
		publisher:    deps.Publisher,
		metrics:      deps.Metrics,
		recentEvents: deps.RecentEvents,
		now:          deps.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.recentEvents <= 0 {
		s.recentEvents = DefaultRecentEvents
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Record stores the event, then bumps the real-time counters and publishes it.
// Only the store write can fail the call; once the event is durable, counter
// and publish failures are logged and the stored event is still returned.
func (s *eventService) Record(ctx context.Context, input RecordEventInput) (*model.Event, error) {
	metadata := datatypes.JSONMap(input.Metadata)
	if metadata == nil {
		metadata = datatypes.JSONMap{}
	}

	event := &model.Event{
		UserID:    input.UserID,
		EventType: input.EventType,
		Metadata:  metadata,
	}
	if err := s.events.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("store event: %w", err)
	}
	s.metrics.EventIngested()

	if err := s.counters.Increment(ctx, event.EventType); err != nil {
		s.metrics.CounterFailed()
		s.logger.Warn("failed to increment real-time counters",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(event); err != nil {
			s.logger.Warn("failed to publish recorded event",
				zap.String("event_id", event.ID),
				zap.Error(err),
			)
		}
	}

	s.logger.Debug("event recorded",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.EventType),
		zap.Time("timestamp", event.Timestamp),
	)
	return event, nil
}

func (s *eventService) UserActivity(ctx context.Context, userID int64, days int) (*model.UserActivity, error) {
	if !model.ValidWindowDays(days) {
		return nil, ErrInvalidDays
	}
	w := model.NewWindow(days, s.now())

	total, err := s.events.CountForUser(ctx, userID, w)
	if err != nil {
		return nil, fmt.Errorf("count user events: %w", err)
	}

	recent, err := s.events.FindForUser(ctx, userID, w, s.recentEvents)
	if err != nil {
		return nil, fmt.Errorf("find user events: %w", err)
	}
	if recent == nil {
		recent = []model.Event{}
	}

	return &model.UserActivity{
		UserID:       userID,
		WindowDays:   days,
		TotalEvents:  total,
		RecentEvents: recent,
	}, nil
}

func (s *eventService) Counters(ctx context.Context) (*model.RealtimeCounters, error) {
	counters, err := s.counters.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("read counters: %w", err)
	}
	return counters, nil
}
