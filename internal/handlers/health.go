package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	pkghttp "github.com/BradenHooton/authguard/pkg/http"
)

// HealthChecker reports whether a backing dependency is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status         string `json:"status"`
	Store          string `json:"store"`
	InstallationID string `json:"installation_id,omitempty"`
}

// HealthHandler serves the health endpoint
type HealthHandler struct {
	store          HealthChecker // nil for the in-memory store
	storeDriver    string
	installationID string
	logger         *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store HealthChecker, storeDriver, installationID string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		store:          store,
		storeDriver:    storeDriver,
		installationID: installationID,
		logger:         logger,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:         "ok",
		Store:          h.storeDriver,
		InstallationID: h.installationID,
	}

	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.HealthCheck(ctx); err != nil {
			h.logger.Error("store health check failed", slog.String("store", h.storeDriver), slog.Any("error", err))
			resp.Status = "degraded"
			pkghttp.WriteJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}
