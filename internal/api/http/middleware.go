package httpapi

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/electricity-map/internal/metrics"
)

// ErrorHandler renders every handler error as {"error": "<message>"}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// Metrics records request counts and latency per route pattern.
func Metrics(rec metrics.Recorder) fiber.Handler {
	if rec == nil {
		rec = metrics.Noop{}
	}
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		route := c.Route().Path
		rec.IncRequestsTotal(route, status)
		rec.ObserveRequestDuration(route, time.Since(start))
		return err
	}
}
