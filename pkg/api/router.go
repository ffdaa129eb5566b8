package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marmos91/hsync/internal/logger"
	"github.com/marmos91/hsync/pkg/api/handlers"
)

// Dependencies are the collaborators the routes report on.
type Dependencies struct {
	// Root is the sandbox root checked by the readiness probe.
	Root string

	Status   handlers.StatusProvider
	Sessions handlers.SessionRegistry

	// Checks are extra readiness checks keyed by name.
	Checks map[string]handlers.HealthChecker

	// Metrics is served on /metrics when set.
	Metrics *prometheus.Registry
}

// NewRouter mounts the admin routes:
//
//	GET /health                 liveness
//	GET /health/ready           readiness
//	GET /api/v1/status          server status
//	GET /api/v1/sessions[/{id}] live sessions
//	GET /metrics                Prometheus, when a registry is set
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, accessLog, middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteProblem(w, http.StatusNotFound, "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteProblem(w, http.StatusMethodNotAllowed, r.Method+" is not supported on "+r.URL.Path)
	})

	health := handlers.NewHealthHandler(deps.Root, deps.Checks)
	r.Get("/health", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if deps.Status != nil && deps.Sessions != nil {
		status := handlers.NewStatusHandler(deps.Status, deps.Sessions)
		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/status", status.Status)
			r.Get("/sessions", status.ListSessions)
			r.Get("/sessions/{id}", status.GetSession)
		})
	}

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Metrics, promhttp.HandlerOpts{}))
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// accessLog writes one line per request. Probe and scrape traffic is
// logged at DEBUG.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log := logger.Info
		if r.URL.Path == "/metrics" || strings.HasPrefix(r.URL.Path, "/health") {
			log = logger.Debug
		}
		log("API request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}
