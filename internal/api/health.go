package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Pinger checks a dependency. store.Repository satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports the health of the API and its database.
type HealthHandler struct {
	db      Pinger
	timeout time.Duration
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db, timeout: 5 * time.Second}
}

// Health returns 200 when the database answers and 503 otherwise.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok", "database": "ok"}
	status, code := "healthy", http.StatusOK
	if err := h.db.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		checks["database"] = "unreachable"
		status, code = "degraded", http.StatusServiceUnavailable
	}

	JSON(w, code, map[string]any{"status": status, "checks": checks})
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
