// Package handler exposes the validation API: submitting single layers and
// batches, and reading run history per jurisdiction. Submission is
// machine-to-machine and unauthenticated; the quarantine review surface is
// the guarded one.
package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"tessera/internal/geometry"
	"tessera/internal/pipeline"
	"tessera/internal/platform/middleware"
	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
	"tessera/pkg/platform/httputil"
)

// Service defines the pipeline operations the handler delegates to.
type Service interface {
	ValidateLayer(ctx context.Context, layer geometry.CandidateLayer) (*pipeline.ValidationRun, error)
	ValidateBatch(ctx context.Context, layers []geometry.CandidateLayer) (*pipeline.BatchResult, error)
	RunsByJurisdiction(ctx context.Context, jurisdiction id.JurisdictionID) ([]pipeline.ValidationRun, error)
	LatestRun(ctx context.Context, jurisdiction id.JurisdictionID) (*pipeline.ValidationRun, error)
}

// Handler handles validation submission and run history endpoints.
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

// Register mounts the validation routes. Request ID and logging middleware
// come from the parent router. Jurisdiction codes contain slashes, so the
// history endpoints take them as a query parameter rather than a path
// segment.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/validations", h.handleValidate)
	r.Post("/v1/validations/batch", h.handleValidateBatch)
	r.Get("/v1/runs", h.handleRuns)
	r.Get("/v1/runs/latest", h.handleLatestRun)
}

type validateRequest struct {
	Layer geometry.CandidateLayer `json:"layer"`
}

// Validate requires only the submission id. A layer with zero features is
// legitimate input: for an excluded jurisdiction it is the expected state.
func (r *validateRequest) Validate() error {
	if r.Layer.ID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "layer requires a layer id")
	}
	return nil
}

type batchRequest struct {
	Layers []geometry.CandidateLayer `json:"layers"`
}

func (r *batchRequest) Validate() error {
	if len(r.Layers) == 0 {
		return dErrors.New(dErrors.CodeValidation, "batch requires at least one layer")
	}
	for i, layer := range r.Layers {
		if layer.ID.IsNil() {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("layer at index %d requires a layer id", i))
		}
	}
	return nil
}

type runsResponse struct {
	Runs  []pipeline.ValidationRun `json:"runs"`
	Count int                      `json:"count"`
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[validateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	run, err := h.service.ValidateLayer(ctx, req.Layer)
	if err != nil {
		h.logger.ErrorContext(ctx, "layer validation failed",
			"request_id", requestID,
			"layer_id", req.Layer.ID.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, run)
}

func (h *Handler) handleValidateBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[batchRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	result, err := h.service.ValidateBatch(ctx, req.Layers)
	if err != nil {
		h.logger.ErrorContext(ctx, "batch validation failed",
			"request_id", requestID,
			"layers", len(req.Layers),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) jurisdictionParam(w http.ResponseWriter, r *http.Request) (id.JurisdictionID, bool) {
	raw := r.URL.Query().Get("jurisdiction")
	if raw == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "jurisdiction query parameter is required"))
		return "", false
	}
	jurisdiction, err := id.ParseJurisdictionID(raw)
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return jurisdiction, true
}

func (h *Handler) handleRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jurisdiction, ok := h.jurisdictionParam(w, r)
	if !ok {
		return
	}

	runs, err := h.service.RunsByJurisdiction(ctx, jurisdiction)
	if err != nil {
		h.logger.ErrorContext(ctx, "run history query failed",
			"request_id", middleware.GetRequestID(ctx),
			"jurisdiction", jurisdiction.String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, runsResponse{Runs: runs, Count: len(runs)})
}

func (h *Handler) handleLatestRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jurisdiction, ok := h.jurisdictionParam(w, r)
	if !ok {
		return
	}

	run, err := h.service.LatestRun(ctx, jurisdiction)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, run)
}
