// Package handler exposes the quarantine review API. Every route sits behind
// reviewer authentication: even reads are restricted, because snapshots carry
// raw source data.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tessera/internal/geometry"
	"tessera/internal/platform/middleware"
	"tessera/internal/quarantine"
	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
	"tessera/pkg/platform/httputil"
	"tessera/pkg/requestcontext"
)

// Service defines the review operations the handler delegates to.
type Service interface {
	Get(ctx context.Context, entryID id.QuarantineID) (*quarantine.Entry, error)
	List(ctx context.Context, status id.ReviewStatus) ([]quarantine.Entry, error)
	ListByJurisdiction(ctx context.Context, jurisdiction id.JurisdictionID) ([]quarantine.Entry, error)
	Approve(ctx context.Context, entryID id.QuarantineID, reviewer id.ReviewerID, rationale string) (*quarantine.Entry, error)
	Reject(ctx context.Context, entryID id.QuarantineID, reviewer id.ReviewerID, notes string) (*quarantine.Entry, error)
	Remediate(ctx context.Context, entryID id.QuarantineID, reviewer id.ReviewerID, notes string, corrected geometry.CandidateLayer) (*quarantine.Entry, error)
}

// Handler handles quarantine review endpoints.
type Handler struct {
	logger    *slog.Logger
	service   Service
	validator middleware.TokenValidator
}

func New(service Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator,
	}
}

// Register mounts the review routes. Request ID and logging middleware come
// from the parent router.
func (h *Handler) Register(r chi.Router) {
	reviewRouter := chi.NewRouter()
	reviewRouter.Use(middleware.RequireReviewer(h.validator, h.logger))
	reviewRouter.Get("/", h.handleList)
	reviewRouter.Get("/{id}", h.handleGet)
	reviewRouter.Post("/{id}/approve", h.handleApprove)
	reviewRouter.Post("/{id}/reject", h.handleReject)
	reviewRouter.Post("/{id}/remediate", h.handleRemediate)

	r.Mount("/v1/quarantine", reviewRouter)
}

// entrySummary is the list-view projection of an entry. The snapshot is
// omitted; it can be megabytes of geometry, and list callers only triage.
type entrySummary struct {
	ID             id.QuarantineID    `json:"id"`
	RunID          id.RunID           `json:"run_id"`
	Jurisdiction   id.JurisdictionID  `json:"jurisdiction,omitempty"`
	Category       id.FailureCategory `json:"category"`
	Detail         string             `json:"detail"`
	FeatureCount   int                `json:"feature_count"`
	CreatedAt      time.Time          `json:"created_at"`
	Status         id.ReviewStatus    `json:"status"`
	ReviewedBy     id.ReviewerID      `json:"reviewed_by,omitempty"`
	ReviewNotes    string             `json:"review_notes,omitempty"`
	ReviewedAt     *time.Time         `json:"reviewed_at,omitempty"`
	RemediationRun *id.RunID          `json:"remediation_run,omitempty"`
}

type listResponse struct {
	Entries []entrySummary `json:"entries"`
	Count   int            `json:"count"`
}

func toSummary(entry quarantine.Entry) entrySummary {
	return entrySummary{
		ID:             entry.ID,
		RunID:          entry.RunID,
		Jurisdiction:   entry.Jurisdiction,
		Category:       entry.Category,
		Detail:         entry.Detail,
		FeatureCount:   entry.Snapshot.Layer.FeatureCount(),
		CreatedAt:      entry.CreatedAt,
		Status:         entry.Status,
		ReviewedBy:     entry.ReviewedBy,
		ReviewNotes:    entry.ReviewNotes,
		ReviewedAt:     entry.ReviewedAt,
		RemediationRun: entry.RemediationRun,
	}
}

type approveRequest struct {
	Rationale string `json:"rationale"`
}

type rejectRequest struct {
	Notes string `json:"notes"`
}

type remediateRequest struct {
	Notes string                  `json:"notes"`
	Layer geometry.CandidateLayer `json:"layer"`
}

func (r *remediateRequest) Validate() error {
	if r.Layer.ID.IsNil() {
		return dErrors.New(dErrors.CodeValidation, "corrected layer requires a layer id")
	}
	if len(r.Layer.Features) == 0 {
		return dErrors.New(dErrors.CodeValidation, "corrected layer has no features")
	}
	return nil
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		entries []quarantine.Entry
		err     error
	)
	if raw := r.URL.Query().Get("jurisdiction"); raw != "" {
		jurisdiction, parseErr := id.ParseJurisdictionID(raw)
		if parseErr != nil {
			httputil.WriteError(w, parseErr)
			return
		}
		entries, err = h.service.ListByJurisdiction(ctx, jurisdiction)
	} else {
		status := id.ReviewPending
		if raw := r.URL.Query().Get("status"); raw != "" {
			status, err = id.ParseReviewStatus(raw)
			if err != nil {
				httputil.WriteError(w, err)
				return
			}
		}
		entries, err = h.service.List(ctx, status)
	}
	if err != nil {
		h.logger.ErrorContext(ctx, "quarantine list failed",
			"request_id", middleware.GetRequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	resp := listResponse{Entries: make([]entrySummary, 0, len(entries)), Count: len(entries)}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, toSummary(entry))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entryID, err := id.ParseQuarantineID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entry, err := h.service.Get(ctx, entryID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	entryID, reviewer, ok := h.reviewContext(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[approveRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	entry, err := h.service.Approve(ctx, entryID, reviewer, req.Rationale)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	entryID, reviewer, ok := h.reviewContext(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[rejectRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	entry, err := h.service.Reject(ctx, entryID, reviewer, req.Notes)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleRemediate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)

	entryID, reviewer, ok := h.reviewContext(w, r)
	if !ok {
		return
	}

	req, ok := httputil.DecodeAndPrepare[remediateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	entry, err := h.service.Remediate(ctx, entryID, reviewer, req.Notes, req.Layer)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, entry)
}

// reviewContext extracts the entry ID from the URL and the reviewer from the
// authenticated context, writing the error response when either is missing.
func (h *Handler) reviewContext(w http.ResponseWriter, r *http.Request) (id.QuarantineID, id.ReviewerID, bool) {
	ctx := r.Context()

	entryID, err := id.ParseQuarantineID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return id.QuarantineID{}, "", false
	}

	reviewer := requestcontext.ReviewerID(ctx)
	if reviewer.IsNil() {
		// Unreachable when RequireReviewer is mounted.
		h.logger.ErrorContext(ctx, "reviewer missing from context despite auth middleware",
			"request_id", middleware.GetRequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return id.QuarantineID{}, "", false
	}
	return entryID, reviewer, true
}
