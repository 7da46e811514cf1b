package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/soukhq/souk/internal/telemetry"
)

func TestRequestMetricsObservesMatchedRoute(t *testing.T) {
	e := echo.New()
	e.Use(requestMetrics)
	e.GET("/api/products/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/products/abc123", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if got := testutil.CollectAndCount(telemetry.RequestDuration, "souk_http_request_duration_seconds"); got == 0 {
		t.Fatalf("expected request duration observations, got none")
	}
}

func TestRequestMetricsRecordsErrorStatus(t *testing.T) {
	e := echo.New()
	e.Use(requestMetrics)
	e.GET("/api/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "boom")
	})

	before := testutil.CollectAndCount(telemetry.RequestDuration)
	req := httptest.NewRequest(http.MethodGet, "/api/boom", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	after := testutil.CollectAndCount(telemetry.RequestDuration)
	if after != before+1 {
		t.Fatalf("expected a new series for the error route, had %d now %d", before, after)
	}
}
