// Package httptransport assembles the gateway's HTTP router.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"npi-gateway/internal/platform/metrics"
	"npi-gateway/pkg/platform/httputil"
	"npi-gateway/pkg/platform/middleware/accesslog"
	"npi-gateway/pkg/platform/middleware/requestid"
	"npi-gateway/pkg/platform/middleware/requesttime"
)

const healthTimeout = 2 * time.Second

// HealthCheck reports whether a dependency is reachable. A nil HealthCheck
// marks the dependency as not configured.
type HealthCheck func(ctx context.Context) error

// Registrar mounts a group of routes.
type Registrar interface {
	Register(r chi.Router)
}

// RouterDeps collects what the router needs.
type RouterDeps struct {
	Logger   *slog.Logger
	Gatherer prometheus.Gatherer
	Metrics  *metrics.HTTP
	Health   map[string]HealthCheck
	Routes   []Registrar
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// NewRouter wires middleware, operational endpoints and every Registrar.
func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)
	r.Use(accesslog.Middleware(logger))
	r.Use(chimw.Recoverer)
	r.Use(deps.Metrics.Middleware)

	r.Get("/healthz", healthHandler(deps.Health))
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	for _, reg := range deps.Routes {
		reg.Register(r)
	}
	return r
}

// healthHandler always answers 200: cache tiers are optional, so a failing
// tier degrades the service rather than taking it down.
func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := HealthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		for name, check := range checks {
			switch {
			case check == nil:
				resp.Checks[name] = "not_configured"
			case check(ctx) != nil:
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
			default:
				resp.Checks[name] = "ok"
			}
		}
		httputil.WriteJSON(w, http.StatusOK, resp)
	}
}
