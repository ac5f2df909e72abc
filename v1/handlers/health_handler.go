package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/xmtp/allow-list-management/v1/utils"
)

// DependencyCheck probes one backing service
type DependencyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthHandler serves GET /api/v1/health
type HealthHandler struct {
	checks  []DependencyCheck
	timeout time.Duration
}

// NewHealthHandler creates a health handler probing the given dependencies
func NewHealthHandler(checks ...DependencyCheck) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: 2 * time.Second}
}

// HealthCheck reports "healthy" when every dependency answers, 503 otherwise
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	status := http.StatusOK
	response := map[string]interface{}{"status": "healthy"}
	if len(h.checks) > 0 {
		results := make(map[string]string, len(h.checks))
		for _, c := range h.checks {
			if err := c.Check(ctx); err != nil {
				slog.Warn("Health check failed", "dependency", c.Name, "error", err)
				results[c.Name] = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			results[c.Name] = "healthy"
		}
		response["dependencies"] = results
	}
	if status != http.StatusOK {
		response["status"] = "unhealthy"
	}

	utils.RespondWithJSON(w, status, response)
}
