// Package handler exposes the failure-pattern report API. Read-only and
// unauthenticated, like the validation surface it summarizes.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tessera/internal/platform/middleware"
	"tessera/internal/report"
	dErrors "tessera/pkg/domain-errors"
	"tessera/pkg/platform/httputil"
)

// Service defines the aggregation the handler delegates to.
type Service interface {
	FailurePatterns(ctx context.Context, since time.Time) (*report.Report, error)
}

type Handler struct {
	logger  *slog.Logger
	service Service
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
	}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/reports/failure-patterns", h.handleFailurePatterns)
}

func (h *Handler) handleFailurePatterns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "since must be an RFC 3339 timestamp"))
			return
		}
		since = parsed
	}

	rep, err := h.service.FailurePatterns(ctx, since)
	if err != nil {
		h.logger.ErrorContext(ctx, "failure pattern report failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rep)
}
