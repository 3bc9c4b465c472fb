// Package middleware holds the fiber middleware shared by every route.
package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/xid"

	"docconvert/internal/infra/logging"
)

// Health endpoints.
const (
	LivenessPath  = "/health"
	ReadinessPath = "/ready"
)

// Options configures Register.
type Options struct {
	// Ready backs the readiness probe. Nil means always ready.
	Ready func() bool
}

// Register attaches cors, request ids and health probes. Authentication, rate
// limits and RequestLogger are mounted by the server after it.
func Register(app *fiber.App, opts Options) {
	app.Use(cors.New())

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	app.Use(healthcheck.New(healthcheck.Config{
		LivenessEndpoint:  LivenessPath,
		ReadinessEndpoint: ReadinessPath,
		ReadinessProbe: func(*fiber.Ctx) bool {
			return opts.Ready == nil || opts.Ready()
		},
	}))
}

// RequestLogger logs every request with its request id once it completed.
func RequestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		requestID := c.Get(fiber.HeaderXRequestID)
		if requestID == "" {
			requestID = c.GetRespHeader(fiber.HeaderXRequestID)
		}
		logging.Info("Incoming request",
			"method", c.Method(),
			"path", c.Path(),
			"request_id", requestID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return err
	}
}

// JSONError writes the uniform error body.
func JSONError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    status,
			"message": message,
		},
	})
}

// RequireReady rejects requests with 503 until ready reports true.
func RequireReady(ready func() bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if ready != nil && !ready() {
			return JSONError(c, fiber.StatusServiceUnavailable, "service is starting, fonts are not ready yet")
		}
		return c.Next()
	}
}
