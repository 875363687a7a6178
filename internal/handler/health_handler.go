package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness checks.
type HealthHandler struct {
	db Pinger
}

// NewHealthHandler builds the handler. A nil db reports the database as disabled.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db}
}

// Check handles GET /healthz requests.
func (h *HealthHandler) Check(c echo.Context) error {
	if h.db == nil {
		return Success(c, http.StatusOK, "service healthy", map[string]any{"status": "ok", "database": "disabled"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.db.Ping(ctx); err != nil {
		return Error(c, http.StatusServiceUnavailable, "database unavailable")
	}
	return Success(c, http.StatusOK, "service healthy", map[string]any{"status": "ok", "database": "ok"})
}
