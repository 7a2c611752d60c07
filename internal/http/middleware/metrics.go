package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	infraPrometheus "github.com/sifan077/analytics-service/internal/infra/prometheus"
)

// Metrics records request count and latency labelled by the matched route
// pattern, so /user/1 and /user/2 share one series. Errors returned by later
// handlers are rendered here through the app's ErrorHandler so the recorded
// status is the one the client receives.
func Metrics(metrics *infraPrometheus.Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		route := "unmatched"
		if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
			route = r.Path
		}
		metrics.ObserveRequest(c.Method(), route, c.Response().StatusCode(), time.Since(start))
		return nil
	}
}
