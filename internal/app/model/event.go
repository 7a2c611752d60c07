package model

import (
	"time"

	"gorm.io/datatypes"
)

// Event is a single user action recorded by the ingestion endpoint.
// Events are append-only: nothing updates or deletes a row once written.
type Event struct {
	ID        string            `json:"id" gorm:"primaryKey;size:36" bson:"_id"`
	UserID    *int64            `json:"userId" gorm:"index" bson:"userId"`
	EventType string            `json:"eventType" gorm:"size:255;not null;index" bson:"eventType"`
	Metadata  datatypes.JSONMap `json:"metadata" gorm:"type:jsonb" bson:"metadata"`
	Timestamp time.Time         `json:"timestamp" gorm:"column:recorded_at;type:timestamptz;not null;index" bson:"timestamp"`
}

// TableName pins the Postgres table name.
func (Event) TableName() string {
	return "events"
}

const (
	// EventCountKeyPrefix prefixes the per-type real-time counter key.
	EventCountKeyPrefix = "event_count:"
	// TotalEventsKey is the real-time grand total counter key.
	TotalEventsKey = "total_events"

	// RecordedSubject carries every stored event, published after ingestion.
	RecordedSubject = "analytics.events.recorded"
	// IngestSubject accepts events from other services over NATS.
	IngestSubject = "analytics.events.ingest"
	// IngestQueueGroup load-balances IngestSubject across replicas.
	IngestQueueGroup = "analytics-ingest"
)

// EventCountKey returns the counter key for eventType.
func EventCountKey(eventType string) string {
	return EventCountKeyPrefix + eventType
}
