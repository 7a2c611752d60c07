package service

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sifan077/analytics-service/internal/app/model"
	"go.uber.org/zap"
)

const listenerRecordTimeout = 5 * time.Second

// EventListener ingests events other services publish on model.IngestSubject.
// Replicas share a queue group so each message is recorded once per delivery.
type EventListener struct {
	conn   *nats.Conn
	events EventService
	logger *zap.Logger
	sub    *nats.Subscription
}

// NewEventListener creates a listener that records messages through events.
func NewEventListener(conn *nats.Conn, events EventService, logger *zap.Logger) *EventListener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventListener{conn: conn, events: events, logger: logger}
}

// Start subscribes to the ingest subject.
func (l *EventListener) Start() error {
	sub, err := l.conn.QueueSubscribe(model.IngestSubject, model.IngestQueueGroup, l.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	l.sub = sub
	return nil
}

// Stop drains the subscription so in-flight messages finish.
func (l *EventListener) Stop() error {
	if l.sub == nil {
		return nil
	}
	return l.sub.Drain()
}

func (l *EventListener) handle(msg *nats.Msg) {
	input, err := DecodeRecordEventInput(msg.Data)
	if err != nil {
		l.logger.Warn("dropping malformed ingest message",
			zap.String("subject", msg.Subject),
			zap.Int("bytes", len(msg.Data)),
			zap.Error(err),
		)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), listenerRecordTimeout)
	defer cancel()

	event, err := l.events.Record(ctx, input)
	if err != nil {
		l.logger.Error("failed to record ingest message", zap.Error(err))
		return
	}

	l.logger.Debug("event ingested from nats",
		zap.String("event_id", event.ID),
		zap.String("event_type", event.EventType),
	)
}
