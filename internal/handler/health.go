package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health reports liveness, uptime and store reachability for load balancers
// and monitoring.
type Health struct {
	DB      Pinger
	Started time.Time
}

func NewHealth(db Pinger) *Health {
	return &Health{DB: db, Started: time.Now()}
}

type healthResponse struct {
	Status    string  `json:"status"`
	Message   string  `json:"message"`
	Database  string  `json:"database"`
	Timestamp string  `json:"timestamp"`
	Uptime    float64 `json:"uptime"`
}

func (h *Health) Check(c echo.Context) error {
	resp := healthResponse{
		Status:    "ok",
		Message:   "Secure server is running",
		Database:  "up",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.Started).Seconds(),
	}
	status := http.StatusOK

	if h.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = "down"
			status = http.StatusServiceUnavailable
		}
	}
	return c.JSON(status, resp)
}
