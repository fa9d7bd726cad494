package handlers

import (
	"context"
	"net/http"
	"time"

	pkghttp "github.com/castellanhq/castellan/pkg/http"
)

// HealthChecker reports the state of one backing dependency
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// DirectoryProber distinguishes "directory reachable" from "directory down".
// A reachable server with rejected service credentials still reports healthy
// transport.
type DirectoryProber interface {
	TestConnection(ctx context.Context) bool
}

// HealthHandler reports the state of the database, cache, and directory
type HealthHandler struct {
	db        HealthChecker
	cache     HealthChecker
	directory DirectoryProber
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db, cache HealthChecker, directory DirectoryProber) *HealthHandler {
	return &HealthHandler{db: db, cache: cache, directory: directory}
}

// Health handles the health-check endpoint
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	components := map[string]string{
		"database":  "up",
		"cache":     "up",
		"directory": "up",
	}
	healthy := true

	if err := h.db.HealthCheck(ctx); err != nil {
		components["database"] = "down"
		healthy = false
	}
	if err := h.cache.HealthCheck(ctx); err != nil {
		components["cache"] = "down"
		healthy = false
	}
	if !h.directory.TestConnection(ctx) {
		components["directory"] = "down"
		healthy = false
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	pkghttp.WriteJSON(w, statusCode, map[string]any{
		"status":     status,
		"components": components,
	})
}
