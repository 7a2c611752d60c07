package handler

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
)

const (
	serviceName  = "analytics-service"
	readyTimeout = 2 * time.Second
)

// Check pings one dependency and returns an error when it is unusable.
type Check func(ctx context.Context) error

// HealthHandler serves liveness and readiness checks.
type HealthHandler struct {
	checks map[string]Check
}

// NewHealthHandler creates a health handler; checks are run by GET /ready.
func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Register wires health routes onto the provided router.
func (h *HealthHandler) Register(router fiber.Router) {
	router.Get("/health", h.Health)
	router.Get("/ready", h.Ready)
}

// Health reports that the process is up. It never touches dependencies.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": serviceName,
	})
}

// Ready runs every dependency check and answers 503 if any of them fails.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(requestContext(c), readyTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(fiber.Map, len(names))
	var failed []string
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			results[name] = err.Error()
			failed = append(failed, name)
			continue
		}
		results[name] = "ok"
	}

	if len(failed) > 0 {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unavailable",
			"failed": failed,
			"checks": results,
		})
	}

	return c.JSON(fiber.Map{
		"status": "ready",
		"checks": results,
	})
}
