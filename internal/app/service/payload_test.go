package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRecordEventInput(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		userID    *int64
		eventType string
		metadata  map[string]any
	}{
		{
			name:      "full payload",
			body:      `{"userId": 1, "eventType": "click", "metadata": {"button": "buy"}}`,
			userID:    int64Ptr(1),
			eventType: "click",
			metadata:  map[string]any{"button": "buy"},
		},
		{
			name:      "numeric string user",
			body:      `{"userId": "17", "eventType": "view"}`,
			userID:    int64Ptr(17),
			eventType: "view",
			metadata:  map[string]any{},
		},
		{
			name:     "empty object",
			body:     `{}`,
			metadata: map[string]any{},
		},
		{
			name:      "unusable user id becomes null",
			body:      `{"userId": "alice", "eventType": "login"}`,
			eventType: "login",
			metadata:  map[string]any{},
		},
		{
			name:      "nested metadata kept as a mapping",
			body:      `{"eventType": "view", "metadata": {"z": 1, "a": {"b": [true, null, "x"]}}}`,
			eventType: "view",
			metadata: map[string]any{
				"a": map[string]any{"b": []any{true, nil, "x"}},
				"z": float64(1),
			},
		},
		{
			name:      "non-object metadata ignored",
			body:      `{"eventType": "view", "metadata": [1, 2]}`,
			eventType: "view",
			metadata:  map[string]any{},
		},
		{
			name:      "non-string event type kept verbatim",
			body:      `{"eventType": 5}`,
			eventType: "5",
			metadata:  map[string]any{},
		},
		{
			name:      "surrounding whitespace",
			body:      "  \n{\"eventType\": \"view\"}\n",
			eventType: "view",
			metadata:  map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input, err := DecodeRecordEventInput([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.userID, input.UserID)
			assert.Equal(t, tt.eventType, input.EventType)
			assert.Equal(t, tt.metadata, input.Metadata)
		})
	}
}

func TestDecodeRecordEventInput_Rejects(t *testing.T) {
	for _, body := range []string{"", "not json", "[1,2]", `"click"`, "42", `{"eventType":`} {
		_, err := DecodeRecordEventInput([]byte(body))
		assert.ErrorIs(t, err, ErrInvalidPayload, "body %q", body)
	}
}
