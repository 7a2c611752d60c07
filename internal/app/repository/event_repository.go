package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sifan077/analytics-service/internal/app/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Clock supplies the insertion time stamped on new events.
type Clock func() time.Time

// EventRepository defines the data access contract for analytics events.
// Every windowed query includes both window bounds.
type EventRepository interface {
	Create(ctx context.Context, event *model.Event) error
	Count(ctx context.Context, w model.Window) (int64, error)
	CountByType(ctx context.Context, w model.Window) ([]model.TypeCount, error)
	CountByDay(ctx context.Context, w model.Window) ([]model.DayCount, error)
	TopUsers(ctx context.Context, w model.Window, limit int) ([]model.UserCount, error)
	CountForUser(ctx context.Context, userID int64, w model.Window) (int64, error)
	FindForUser(ctx context.Context, userID int64, w model.Window, limit int) ([]model.Event, error)
	Ping(ctx context.Context) error
}

type eventRepository struct {
	db  *gorm.DB
	now Clock
}

// NewEventRepository returns a GORM-backed EventRepository. A nil clock uses time.Now.
func NewEventRepository(db *gorm.DB, now Clock) EventRepository {
	if now == nil {
		now = time.Now
	}
	return &eventRepository{db: db, now: now}
}

// prepare assigns the store-owned fields. Postgres keeps microseconds, so the
// timestamp is truncated to what will be read back.
func prepare(event *model.Event, now time.Time, precision time.Duration) {
	event.ID = uuid.NewString()
	event.Timestamp = now.UTC().Truncate(precision)
	if event.Metadata == nil {
		event.Metadata = datatypes.JSONMap{}
	}
}

func inWindow(w model.Window) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("recorded_at >= ? AND recorded_at <= ?", w.Since, w.Until)
	}
}

func (r *eventRepository) Create(ctx context.Context, event *model.Event) error {
	prepare(event, r.now(), time.Microsecond)
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *eventRepository) Count(ctx context.Context, w model.Window) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Event{}).Scopes(inWindow(w)).Count(&n).Error
	return n, err
}

func (r *eventRepository) CountByType(ctx context.Context, w model.Window) ([]model.TypeCount, error) {
	var rows []model.TypeCount
	err := r.db.WithContext(ctx).Model(&model.Event{}).
		Select("event_type, COUNT(*) AS count").
		Scopes(inWindow(w)).
		Group("event_type").
		Scan(&rows).Error
	return rows, err
}

type dayRow struct {
	Day   string
	Count int64
}

func (r *eventRepository) CountByDay(ctx context.Context, w model.Window) ([]model.DayCount, error) {
	var rows []dayRow
	err := r.db.WithContext(ctx).Model(&model.Event{}).
		Select("to_char(recorded_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*) AS count").
		Scopes(inWindow(w)).
		Group("day").
		Order("day ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	result := make([]model.DayCount, len(rows))
	for i, row := range rows {
		result[i] = model.DayCount{Date: row.Day, Count: row.Count}
	}
	return result, nil
}

func (r *eventRepository) TopUsers(ctx context.Context, w model.Window, limit int) ([]model.UserCount, error) {
	var rows []model.UserCount
	err := r.db.WithContext(ctx).Model(&model.Event{}).
		Select("user_id, COUNT(*) AS event_count").
		Scopes(inWindow(w)).
		Group("user_id").
		Order("event_count DESC, user_id ASC NULLS LAST").
		Limit(limit).
		Scan(&rows).Error
	return rows, err
}

func (r *eventRepository) CountForUser(ctx context.Context, userID int64, w model.Window) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Event{}).
		Where("user_id = ?", userID).
		Scopes(inWindow(w)).
		Count(&n).Error
	return n, err
}

func (r *eventRepository) FindForUser(ctx context.Context, userID int64, w model.Window, limit int) ([]model.Event, error) {
	var events []model.Event
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Scopes(inWindow(w)).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&events).Error; err != nil {
		return nil, err
	}

	for i := range events {
		events[i].Timestamp = events[i].Timestamp.UTC()
	}
	return events, nil
}

func (r *eventRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("access sql db: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
