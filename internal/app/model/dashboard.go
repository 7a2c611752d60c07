package model

import (
	"fmt"
	"math"
	"time"
)

// MaxWindowDays is the longest window whose length still fits in a time.Duration.
const MaxWindowDays = int(math.MaxInt64 / int64(24*time.Hour))

// ValidWindowDays reports whether days can be turned into a Window.
func ValidWindowDays(days int) bool {
	return days > 0 && days <= MaxWindowDays
}

// Window is a trailing time range anchored at a single instant. All queries
// that belong to one aggregation share the same Window so their results agree.
type Window struct {
	Days  int
	Since time.Time
	Until time.Time
}

// NewWindow returns the window covering the last days*24h before now. days
// must satisfy ValidWindowDays.
func NewWindow(days int, now time.Time) Window {
	until := now.UTC()
	return Window{
		Days:  days,
		Since: until.Add(-time.Duration(days) * 24 * time.Hour),
		Until: until,
	}
}

// Contains reports whether t falls inside the window, bounds included.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Since) && !t.After(w.Until)
}

// TypeCount is the number of events of one type inside a window.
type TypeCount struct {
	EventType string `json:"eventType"`
	Count     int64  `json:"count"`
}

// DayCount is the number of events on one UTC calendar day.
type DayCount struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// UserCount is the number of events produced by one user.
type UserCount struct {
	UserID     *int64 `json:"userId"`
	EventCount int64  `json:"eventCount"`
}

// Dashboard is the cached aggregate served by GET /dashboard.
type Dashboard struct {
	WindowDays   int         `json:"windowDays"`
	Period       string      `json:"period"`
	GeneratedAt  time.Time   `json:"generatedAt"`
	TotalEvents  int64       `json:"totalEvents"`
	EventsByType []TypeCount `json:"eventsByType"`
	EventsByDay  []DayCount  `json:"eventsByDay"`
	TopUsers     []UserCount `json:"topUsers"`
}

// PeriodLabel renders the human readable window description.
func PeriodLabel(days int) string {
	return fmt.Sprintf("Last %d days", days)
}

// UserActivity is the per-user view served by GET /user/:userId.
type UserActivity struct {
	UserID       int64   `json:"userId"`
	WindowDays   int     `json:"windowDays"`
	TotalEvents  int64   `json:"totalEvents"`
	RecentEvents []Event `json:"recentEvents"`
}

// RealtimeCounters is a point-in-time read of the unbounded ingestion counters.
type RealtimeCounters struct {
	TotalEvents int64            `json:"totalEvents"`
	ByType      map[string]int64 `json:"byType"`
}

// DateLayout is the UTC calendar day format used for day buckets.
const DateLayout = "2006-01-02"
