package repository

import (
	"context"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/sifan077/analytics-service/internal/app/model"
)

type storedEvent struct {
	seq   int64
	event model.Event
}

// MemoryEventRepository keeps events in process. It backs local development
// and tests; data is lost on restart.
type MemoryEventRepository struct {
	mu     sync.RWMutex
	now    Clock
	seq    int64
	events []storedEvent
}

// NewMemoryEventRepository returns an empty in-memory store. A nil clock uses time.Now.
func NewMemoryEventRepository(now Clock) *MemoryEventRepository {
	if now == nil {
		now = time.Now
	}
	return &MemoryEventRepository{now: now}
}

func (r *MemoryEventRepository) Create(ctx context.Context, event *model.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	prepare(event, r.now(), time.Microsecond)
	r.seq++
	r.events = append(r.events, storedEvent{seq: r.seq, event: copyEvent(*event)})
	return nil
}

// scan calls fn for every event inside w while holding the read lock.
func (r *MemoryEventRepository) scan(w model.Window, fn func(e *storedEvent)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.events {
		if w.Contains(r.events[i].event.Timestamp) {
			fn(&r.events[i])
		}
	}
}

func (r *MemoryEventRepository) Count(ctx context.Context, w model.Window) (int64, error) {
	var n int64
	r.scan(w, func(*storedEvent) { n++ })
	return n, ctx.Err()
}

func (r *MemoryEventRepository) CountByType(ctx context.Context, w model.Window) ([]model.TypeCount, error) {
	counts := make(map[string]int64)
	r.scan(w, func(e *storedEvent) { counts[e.event.EventType]++ })

	result := make([]model.TypeCount, 0, len(counts))
	for eventType, n := range counts {
		result = append(result, model.TypeCount{EventType: eventType, Count: n})
	}
	return result, ctx.Err()
}

func (r *MemoryEventRepository) CountByDay(ctx context.Context, w model.Window) ([]model.DayCount, error) {
	counts := make(map[string]int64)
	r.scan(w, func(e *storedEvent) { counts[e.event.Timestamp.UTC().Format(model.DateLayout)]++ })

	result := make([]model.DayCount, 0, len(counts))
	for day, n := range counts {
		result = append(result, model.DayCount{Date: day, Count: n})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date < result[j].Date })
	return result, ctx.Err()
}

func (r *MemoryEventRepository) TopUsers(ctx context.Context, w model.Window, limit int) ([]model.UserCount, error) {
	var anonymous int64
	counts := make(map[int64]int64)
	r.scan(w, func(e *storedEvent) {
		if e.event.UserID == nil {
			anonymous++
			return
		}
		counts[*e.event.UserID]++
	})

	result := make([]model.UserCount, 0, len(counts)+1)
	for id, n := range counts {
		result = append(result, model.UserCount{UserID: &id, EventCount: n})
	}
	if anonymous > 0 {
		result = append(result, model.UserCount{EventCount: anonymous})
	}
	SortUserCounts(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, ctx.Err()
}

func (r *MemoryEventRepository) CountForUser(ctx context.Context, userID int64, w model.Window) (int64, error) {
	var n int64
	r.scan(w, func(e *storedEvent) {
		if e.event.UserID != nil && *e.event.UserID == userID {
			n++
		}
	})
	return n, ctx.Err()
}

func (r *MemoryEventRepository) FindForUser(ctx context.Context, userID int64, w model.Window, limit int) ([]model.Event, error) {
	var matched []storedEvent
	r.scan(w, func(e *storedEvent) {
		if e.event.UserID != nil && *e.event.UserID == userID {
			matched = append(matched, *e)
		}
	})

	sort.Slice(matched, func(i, j int) bool {
		ti, tj := matched[i].event.Timestamp, matched[j].event.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return matched[i].seq > matched[j].seq
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	result := make([]model.Event, len(matched))
	for i, e := range matched {
		result[i] = copyEvent(e.event)
	}
	return result, ctx.Err()
}

func (r *MemoryEventRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored events.
func (r *MemoryEventRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.events)
}

func copyEvent(e model.Event) model.Event {
	if e.UserID != nil {
		id := *e.UserID
		e.UserID = &id
	}
	e.Metadata = maps.Clone(e.Metadata)
	return e
}

// SortUserCounts orders users by event count descending. Ties go to the lower
// user id, and events without a user id rank after every identified user.
func SortUserCounts(users []model.UserCount) {
	sort.SliceStable(users, func(i, j int) bool {
		a, b := users[i], users[j]
		if a.EventCount != b.EventCount {
			return a.EventCount > b.EventCount
		}
		switch {
		case a.UserID == nil:
			return false
		case b.UserID == nil:
			return true
		default:
			return *a.UserID < *b.UserID
		}
	})
}
