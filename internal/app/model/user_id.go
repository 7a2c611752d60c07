package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidUserID is returned when a user id path parameter is not an integer.
var ErrInvalidUserID = errors.New("userId must be an integer")

// ParseUserID leniently decodes an ingested userId. JSON numbers and numeric
// strings become an int64; null, absent and anything else become nil so the
// event is still stored.
func ParseUserID(raw json.RawMessage) *int64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil
		}
		return &id
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil
	}
	if id, err := n.Int64(); err == nil {
		return &id
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return nil
	}
	id := int64(f)
	return &id
}

// ParseUserIDParam parses the userId segment of a request path.
func ParseUserIDParam(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, ErrInvalidUserID
	}
	return id, nil
}
