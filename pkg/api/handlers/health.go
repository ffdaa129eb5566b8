package handlers

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"
)

// HealthChecker is a dependency whose health is part of readiness.
type HealthChecker interface {
	Healthcheck(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
//
//   - Liveness probe: is the process running?
//   - Readiness probe: is the sandbox root usable and every dependency healthy?
type HealthHandler struct {
	root   string
	checks map[string]HealthChecker
}

// NewHealthHandler creates a health handler for the tree at root. checks
// may be nil.
func NewHealthHandler(root string, checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{root: root, checks: checks}
}

// Liveness handles GET /health.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, StatusHealthy, map[string]string{
		"service": "hsync",
	})
}

// CheckResult is the outcome of one readiness check.
type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Readiness handles GET /health/ready.
//
// Returns 503 Service Unavailable when the root is missing or any
// registered dependency fails its healthcheck.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	results := []CheckResult{h.checkRoot()}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		start := time.Now()
		err := h.checks[name].Healthcheck(ctx)
		res := CheckResult{Name: name, Status: "healthy", Latency: time.Since(start).String()}
		if err != nil {
			res.Status = "unhealthy"
			res.Error = err.Error()
		}
		results = append(results, res)
	}

	for _, res := range results {
		if res.Status != "healthy" {
			respond(w, http.StatusServiceUnavailable, StatusUnhealthy, results)
			return
		}
	}
	respond(w, http.StatusOK, StatusHealthy, results)
}

func (h *HealthHandler) checkRoot() CheckResult {
	res := CheckResult{Name: "root", Status: "healthy"}
	if h.root == "" {
		res.Status = "unhealthy"
		res.Error = "root not configured"
		return res
	}
	info, err := os.Stat(h.root)
	switch {
	case err != nil:
		res.Status = "unhealthy"
		res.Error = err.Error()
	case !info.IsDir():
		res.Status = "unhealthy"
		res.Error = fmt.Sprintf("%s is not a directory", h.root)
	}
	return res
}
