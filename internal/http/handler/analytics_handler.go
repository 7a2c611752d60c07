package handler

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/sifan077/analytics-service/internal/app/model"
	"github.com/sifan077/analytics-service/internal/app/service"
	"go.uber.org/zap"
)

const (
	defaultDashboardDays = 7
	defaultUserDays      = 30
)

// AnalyticsDeps groups dependencies required by the analytics handlers.
type AnalyticsDeps struct {
	Logger        *zap.Logger
	Events        service.EventService
	Dashboards    service.DashboardService
	DashboardDays int
	UserDays      int
	// ReadLimiter, when set, guards the read endpoints only.
	ReadLimiter fiber.Handler
}

// AnalyticsHandler implements event ingestion and the read endpoints.
type AnalyticsHandler struct {
	logger        *zap.Logger
	events        service.EventService
	dashboards    service.DashboardService
	dashboardDays int
	userDays      int
	readLimiter   fiber.Handler
}

// NewAnalyticsHandler creates an analytics handler with the provided dependencies.
func NewAnalyticsHandler(deps AnalyticsDeps) *AnalyticsHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &AnalyticsHandler{
		logger:        logger,
		events:        deps.Events,
		dashboards:    deps.Dashboards,
		dashboardDays: deps.DashboardDays,
		userDays:      deps.UserDays,
		readLimiter:   deps.ReadLimiter,
	}
	if h.dashboardDays <= 0 {
		h.dashboardDays = defaultDashboardDays
	}
	if h.userDays <= 0 {
		h.userDays = defaultUserDays
	}
	return h
}

// Register wires analytics routes onto the provided router.
func (h *AnalyticsHandler) Register(router fiber.Router) {
	router.Post("/event", h.TrackEvent)

	reads := []fiber.Handler{}
	if h.readLimiter != nil {
		reads = append(reads, h.readLimiter)
	}
	router.Get("/dashboard", append(reads, h.Dashboard)...)
	router.Get("/user/:userId", append(reads, h.UserActivity)...)
	router.Get("/realtime", append(reads, h.Realtime)...)
}

// TrackEvent handles POST /event.
func (h *AnalyticsHandler) TrackEvent(c *fiber.Ctx) error {
	input, err := service.DecodeRecordEventInput(c.Body())
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	event, err := h.events.Record(requestContext(c), input)
	if err != nil {
		h.logger.Error("failed to record event",
			zap.String("event_type", input.EventType),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(event)
}

// Dashboard handles GET /dashboard?days=N.
func (h *AnalyticsHandler) Dashboard(c *fiber.Ctx) error {
	days, err := parseDays(c, h.dashboardDays)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	dashboard, err := h.dashboards.Dashboard(requestContext(c), days)
	if err != nil {
		return h.fail(c, "failed to build dashboard", err)
	}

	return c.JSON(dashboard)
}

// UserActivity handles GET /user/:userId?days=N.
func (h *AnalyticsHandler) UserActivity(c *fiber.Ctx) error {
	userID, err := model.ParseUserIDParam(c.Params("userId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	days, err := parseDays(c, h.userDays)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	activity, err := h.events.UserActivity(requestContext(c), userID, days)
	if err != nil {
		return h.fail(c, "failed to load user activity", err)
	}

	return c.JSON(activity)
}

// Realtime handles GET /realtime.
func (h *AnalyticsHandler) Realtime(c *fiber.Ctx) error {
	counters, err := h.events.Counters(requestContext(c))
	if err != nil {
		return h.fail(c, "failed to read counters", err)
	}
	return c.JSON(counters)
}

func (h *AnalyticsHandler) fail(c *fiber.Ctx, msg string, err error) error {
	if errors.Is(err, service.ErrInvalidDays) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	h.logger.Error(msg, zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// parseDays reads the days query parameter, falling back to def when absent.
func parseDays(c *fiber.Ctx, def int) (int, error) {
	raw := c.Query("days")
	if raw == "" {
		return def, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || !model.ValidWindowDays(days) {
		return 0, service.ErrInvalidDays
	}
	return days, nil
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
