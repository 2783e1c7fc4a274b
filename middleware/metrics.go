package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// RequestObserver records served requests.
type RequestObserver interface {
	ObserveRequest(surface, method, route string, status int, d time.Duration)
}

// RequestMetrics reports every request to obs under surface. Routes are
// labelled by their registered pattern so path parameters do not explode
// cardinality; unmatched paths share one label.
func RequestMetrics(surface string, obs RequestObserver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = errorStatus(err)
		}

		route := "unmatched"
		if r := c.Route(); r != nil && status != fiber.StatusNotFound {
			route = r.Path
		}

		obs.ObserveRequest(surface, c.Method(), route, status, time.Since(start))
		return err
	}
}
