// Package httpapi assembles the HTTP surface: validation submission and run
// history, failure-pattern reports, the reviewer-guarded quarantine API,
// health probes, and Prometheus metrics. Feature handlers register their own
// routes; this package owns only cross-cutting middleware and probes.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	pipelinehandler "tessera/internal/pipeline/handler"
	"tessera/internal/platform/middleware"
	platformmetrics "tessera/internal/platform/metrics"
	quarantinehandler "tessera/internal/quarantine/handler"
	reporthandler "tessera/internal/report/handler"
	"tessera/pkg/platform/httputil"
)

// ReadyCheck probes one backing dependency for /readyz. Checks run in order
// and the first failure makes the process not ready.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps carries everything the router mounts. Metrics may be nil in tests;
// readiness checks are optional (a memory-only process is always ready).
type Deps struct {
	Logger     *slog.Logger
	Metrics    *platformmetrics.Metrics
	Validation *pipelinehandler.Handler
	Quarantine *quarantinehandler.Handler
	Reports    *reporthandler.Handler
	Readiness  []ReadyCheck
}

// NewRouter builds the chi router with request-id and request-time middleware
// applied to every route.
func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(countSubmissions(deps.Metrics))

	r.Get("/healthz", handleHealthz)
	r.Get("/readyz", handleReadyz(logger, deps.Readiness))
	r.Handle("/metrics", promhttp.Handler())

	deps.Validation.Register(r)
	deps.Quarantine.Register(r)
	deps.Reports.Register(r)

	return r
}

// countSubmissions tracks the two write endpoints at the process level;
// every other metric lives with its feature.
func countSubmissions(m *platformmetrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				switch r.URL.Path {
				case "/v1/validations":
					m.IncrementValidationRequests()
				case "/v1/validations/batch":
					m.IncrementBatchRequests()
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleReadyz(logger *slog.Logger, checks []ReadyCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		for _, check := range checks {
			if err := check.Check(ctx); err != nil {
				logger.WarnContext(ctx, "readiness check failed",
					"dependency", check.Name,
					"error", err,
				)
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status":     "unavailable",
					"dependency": check.Name,
				})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
