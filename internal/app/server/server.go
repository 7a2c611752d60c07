package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sifan077/analytics-service/config"
	"github.com/sifan077/analytics-service/internal/app/service"
	inthttp "github.com/sifan077/analytics-service/internal/http/handler"
	"github.com/sifan077/analytics-service/internal/http/middleware"
	infraPrometheus "github.com/sifan077/analytics-service/internal/infra/prometheus"
	"go.uber.org/zap"
)

// Dependencies bundles what the HTTP server needs to serve requests.
type Dependencies struct {
	Logger     *zap.Logger
	Metrics    *infraPrometheus.Metrics
	Events     service.EventService
	Dashboards service.DashboardService
	// Redis backs the read rate limiter; nil disables it.
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Analytics config.AnalyticsConfig
	Checks    map[string]inthttp.Check
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with default routes.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "analytics-service",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerMiddleware()
	s.registerRoutes()
	return s
}

// App exposes the Fiber application, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) registerMiddleware() {
	s.app.Use(
		middleware.Recovery(s.deps.Logger),
		middleware.RequestID(),
		middleware.CORS(),
		middleware.Logger(s.deps.Logger),
		middleware.Metrics(s.deps.Metrics),
	)
}

func (s *Server) registerRoutes() {
	inthttp.NewHealthHandler(s.deps.Checks).Register(s.app)

	var readLimiter fiber.Handler
	if s.deps.Redis != nil && s.deps.RateLimit.Enabled {
		limits := middleware.DefaultRateLimitConfig()
		if s.deps.RateLimit.Limit > 0 {
			limits.MaxRequests = s.deps.RateLimit.Limit
		}
		if s.deps.RateLimit.Window > 0 {
			limits.Window = s.deps.RateLimit.Window
		}
		readLimiter = middleware.RateLimit(s.deps.Redis, limits, s.deps.Logger)
	}

	inthttp.NewAnalyticsHandler(inthttp.AnalyticsDeps{
		Logger:        s.deps.Logger,
		Events:        s.deps.Events,
		Dashboards:    s.deps.Dashboards,
		DashboardDays: s.deps.Analytics.DashboardDays,
		UserDays:      s.deps.Analytics.UserDays,
		ReadLimiter:   readLimiter,
	}).Register(s.app)
}

// errorHandler renders errors that escape handlers, such as unknown routes,
// in the same {"error": ...} shape the handlers use.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
