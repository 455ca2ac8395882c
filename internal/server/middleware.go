package server

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// HeaderRequestID carries the per-request correlation ID
const HeaderRequestID = "X-Request-ID"

// quietPaths are polled by dashboards and scrapers
var quietPaths = map[string]bool{
	"/metrics":  true,
	"/health":   true,
	"/api/taps": true,
}

// LoggingMiddleware tags each request with an ID and logs control calls
func LoggingMiddleware(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		id := c.Get(HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(HeaderRequestID, id)

		err := c.Next()

		path := c.Path()
		if quietPaths[path] {
			return err
		}

		logger.Info("http request",
			"request_id", id,
			"method", c.Method(),
			"path", path,
			"status", c.Response().StatusCode(),
			"latency_ms", time.Since(start).Milliseconds(),
			"ip", c.IP(),
		)

		return err
	}
}
