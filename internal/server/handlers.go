package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"solana-pool-sentinel/internal/cache"
	"solana-pool-sentinel/internal/telemetry"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// AlertsSource is where the recent-alerts endpoint reads from.
type AlertsSource interface {
	GetRecentAlerts(ctx context.Context, limit int64) ([]*cache.AlertEntry, error)
}

// Handlers contains all dependencies for API endpoint handlers
type Handlers struct {
	Collector *telemetry.Collector // Pipeline counters and gauges
	Alerts    AlertsSource         // Recent alerts view
	DevMode   bool                 // Enable detailed error responses in development
	Logger    *logrus.Logger       // Structured logger
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// withTimeout creates a context with timeout, defaulting to 10 seconds if duration <= 0
func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

// Health reports liveness plus the event stream's connectivity.
func (h *Handlers) Health(c echo.Context) error {
	resp := HealthResponse{OK: true, StreamState: "unknown"}
	if h.Collector != nil {
		resp.StreamState = h.Collector.Snapshot().StreamState
	}
	return c.JSON(http.StatusOK, resp)
}

// Telemetry returns the cumulative pipeline counters.
func (h *Handlers) Telemetry(c echo.Context) error {
	if h.Collector == nil {
		return h.err(c, http.StatusServiceUnavailable, "telemetry is not configured", nil)
	}
	return c.JSON(http.StatusOK, h.Collector.Snapshot())
}

// RecentAlerts returns the most recent completed alerts with optional limit parameter
// Accepts limit query parameter (default: 100, range: 1-200)
func (h *Handlers) RecentAlerts(c echo.Context) error {
	if h.Alerts == nil {
		return h.err(c, http.StatusServiceUnavailable, "alert history is not configured", nil)
	}

	limitStr := c.QueryParam("limit")
	limit := 100
	if limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "must be an integer"})
		}
		limit = n
	}
	if limit < 1 || limit > 200 {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "min 1 max 200"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Alerts.GetRecentAlerts(ctx, int64(limit))
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to get alerts", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}
