package service

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/analytics-service/internal/app/model"
)

// NATSPublisher publishes recorded events on core NATS. Delivery is
// at-most-once: subscribers that are offline miss the event.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
}

// NewNATSPublisher creates a publisher for model.RecordedSubject.
func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{conn: conn, subject: model.RecordedSubject}
}

// Publish sends the stored event as JSON.
func (p *NATSPublisher) Publish(event *model.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.conn.Publish(p.subject, data)
}
