package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/sifan077/analytics-service/internal/app/model"
	"gorm.io/gorm"
)

// Querier is the part of *pgxpool.Pool used for aggregate reads.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const windowCond = "recorded_at >= $1 AND recorded_at <= $2"

const (
	countSQL       = "SELECT COUNT(*)::bigint FROM events WHERE " + windowCond
	countByTypeSQL = "SELECT event_type, COUNT(*)::bigint FROM events WHERE " + windowCond + " GROUP BY event_type"
	countByDaySQL  = `
SELECT to_char(recorded_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*)::bigint
FROM events
WHERE ` + windowCond + `
GROUP BY 1
ORDER BY 1 ASC`
	topUsersSQL = `
SELECT user_id, COUNT(*)::bigint AS event_count
FROM events
WHERE ` + windowCond + `
GROUP BY user_id
ORDER BY event_count DESC, user_id ASC NULLS LAST
LIMIT $3`
	countForUserSQL = "SELECT COUNT(*)::bigint FROM events WHERE " + windowCond + " AND user_id = $3"
)

// pgEventRepository writes and lists events through gorm and answers the
// windowed aggregates with plain SQL on a pgx pool.
type pgEventRepository struct {
	*eventRepository
	pool Querier
}

// NewPostgresEventRepository returns the Postgres EventRepository. Without a
// pool every query goes through gorm. A nil clock uses time.Now.
func NewPostgresEventRepository(db *gorm.DB, pool Querier, now Clock) EventRepository {
	if now == nil {
		now = time.Now
	}
	base := &eventRepository{db: db, now: now}
	if pool == nil {
		return base
	}
	return &pgEventRepository{eventRepository: base, pool: pool}
}

func (r *pgEventRepository) Count(ctx context.Context, w model.Window) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, countSQL, w.Since, w.Until).Scan(&n); err != nil {
		return 0, fmt.Errorf("scan count: %w", err)
	}
	return n, nil
}

func (r *pgEventRepository) CountByType(ctx context.Context, w model.Window) ([]model.TypeCount, error) {
	rows, err := r.pool.Query(ctx, countByTypeSQL, w.Since, w.Until)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.TypeCount, error) {
		var c model.TypeCount
		err := row.Scan(&c.EventType, &c.Count)
		return c, err
	})
}

func (r *pgEventRepository) CountByDay(ctx context.Context, w model.Window) ([]model.DayCount, error) {
	rows, err := r.pool.Query(ctx, countByDaySQL, w.Since, w.Until)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.DayCount, error) {
		var c model.DayCount
		err := row.Scan(&c.Date, &c.Count)
		return c, err
	})
}

func (r *pgEventRepository) TopUsers(ctx context.Context, w model.Window, limit int) ([]model.UserCount, error) {
	rows, err := r.pool.Query(ctx, topUsersSQL, w.Since, w.Until, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.UserCount, error) {
		var c model.UserCount
		err := row.Scan(&c.UserID, &c.EventCount)
		return c, err
	})
}

func (r *pgEventRepository) CountForUser(ctx context.Context, userID int64, w model.Window) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, countForUserSQL, w.Since, w.Until, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("scan user count: %w", err)
	}
	return n, nil
}

// Ping checks the gorm handle and, when it supports it, the pool.
func (r *pgEventRepository) Ping(ctx context.Context) error {
	if err := r.eventRepository.Ping(ctx); err != nil {
		return err
	}
	if p, ok := r.pool.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}
