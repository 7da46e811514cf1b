package server

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/soukhq/souk/internal/telemetry"
)

// requestMetrics observes handler latency per matched route and status code.
// The registered route path is used so path parameters do not explode the
// label set.
func requestMetrics(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		route := c.Path()
		if route == "" {
			route = c.Request().URL.Path
		}
		code := c.Response().Status
		if err != nil {
			if he, ok := err.(*echo.HTTPError); ok {
				code = he.Code
			}
		}
		telemetry.RequestDuration.WithLabelValues(route, strconv.Itoa(code)).
			Observe(time.Since(start).Seconds())
		return err
	}
}
