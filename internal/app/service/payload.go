package service

import (
	"bytes"
	"encoding/json"

	"github.com/sifan077/analytics-service/internal/app/model"
)

// RecordEventInput is a normalized ingestion request.
type RecordEventInput struct {
	UserID    *int64
	EventType string
	Metadata  map[string]any
}

type eventPayload struct {
	UserID    json.RawMessage `json:"userId"`
	EventType json.RawMessage `json:"eventType"`
	Metadata  json.RawMessage `json:"metadata"`
}

// DecodeRecordEventInput parses an event body shared by HTTP and NATS
// ingestion. Only a body that is not a JSON object is rejected: unusable
// userId values become null, a missing eventType becomes empty and metadata
// that is not an object becomes an empty mapping.
func DecodeRecordEventInput(data []byte) (RecordEventInput, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return RecordEventInput{}, ErrInvalidPayload
	}

	var payload eventPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return RecordEventInput{}, ErrInvalidPayload
	}

	return RecordEventInput{
		UserID:    model.ParseUserID(payload.UserID),
		EventType: decodeEventType(payload.EventType),
		Metadata:  decodeMetadata(payload.Metadata),
	}, nil
}

func decodeEventType(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func decodeMetadata(raw json.RawMessage) map[string]any {
	metadata := map[string]any{}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return metadata
	}
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return map[string]any{}
	}
	return metadata
}
