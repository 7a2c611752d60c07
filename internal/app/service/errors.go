package service

import (
	"errors"
	"fmt"

	"github.com/sifan077/analytics-service/internal/app/model"
)

var (
	// ErrInvalidDays signals a window size outside 1..model.MaxWindowDays.
	ErrInvalidDays = fmt.Errorf("days must be an integer between 1 and %d", model.MaxWindowDays)
	// ErrInvalidPayload signals an event body that is not a JSON object.
	ErrInvalidPayload = errors.New("event payload must be a JSON object")
)
