package quarantine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"tessera/internal/audit"
	"tessera/internal/geometry"
	"tessera/internal/quarantine/metrics"
	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
	"tessera/pkg/platform/sentinel"
	"tessera/pkg/requestcontext"
)

const tracerName = "tessera/internal/quarantine"

// Revalidator runs a corrected layer back through the full validation
// pipeline. Remediation is only recorded when the returned verdict is PASS;
// the run itself is persisted by the pipeline either way.
type Revalidator interface {
	Revalidate(ctx context.Context, layer geometry.CandidateLayer) (id.RunID, id.Verdict, error)
}

// Service enforces the review state machine over the store: entries are
// created pending and move exactly once to a terminal status. Approval
// requires a written rationale; remediation requires the corrected layer to
// pass re-validation first.
type Service struct {
	store       Store
	revalidator Revalidator
	publisher   *audit.Publisher
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

func NewService(store Store, revalidator Revalidator, publisher *audit.Publisher, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:       store,
		revalidator: revalidator,
		publisher:   publisher,
		logger:      logger,
		metrics:     m,
	}
}

// translateStoreErr maps store facts onto the codes the review API exposes.
func translateStoreErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "quarantine entry not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeConflict, "quarantine entry is not pending review")
	default:
		return err
	}
}

// Quarantine records a layer the pipeline refused to certify. Callers are
// machine code, so malformed arguments are programmer errors and surface as
// invariant violations rather than input validation.
func (s *Service) Quarantine(ctx context.Context, runID id.RunID, jurisdiction id.JurisdictionID, category id.FailureCategory, detail string, snapshot Snapshot) (*Entry, error) {
	if !category.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid failure category "+string(category))
	}
	if runID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "quarantine requires the originating run id")
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "quarantine.Create", trace.WithAttributes(
		attribute.String("category", category.String()),
	))
	defer span.End()

	entry := Entry{
		ID:           id.NewQuarantineID(),
		RunID:        runID,
		Jurisdiction: jurisdiction,
		Category:     category,
		Detail:       detail,
		Snapshot:     snapshot,
		CreatedAt:    requestcontext.Now(ctx).UTC(),
		Status:       id.ReviewPending,
	}
	if err := s.store.Append(ctx, entry); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "entry append failed")
		return nil, err
	}

	s.metrics.IncrementEntry(category.String())
	s.publisher.Emit(ctx, audit.Event{
		Action:       audit.ActionLayerQuarantined,
		RunID:        runID,
		LayerID:      snapshot.Layer.ID,
		Jurisdiction: jurisdiction,
		Category:     category,
		Detail:       detail,
	})
	span.SetAttributes(attribute.String("entry_id", entry.ID.String()))
	s.logger.InfoContext(ctx, "layer quarantined",
		"entry_id", entry.ID.String(),
		"run_id", runID.String(),
		"category", category.String(),
		"jurisdiction", jurisdiction.String(),
	)
	return &entry, nil
}

// Get returns a single entry.
func (s *Service) Get(ctx context.Context, entryID id.QuarantineID) (*Entry, error) {
	entry, err := s.store.Get(ctx, entryID)
	if err != nil {
		return nil, translateStoreErr(err)
	}
	return entry, nil
}

// List returns entries in the given review status, newest first.
func (s *Service) List(ctx context.Context, status id.ReviewStatus) ([]Entry, error) {
	if !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid review status")
	}
	return s.store.ListByStatus(ctx, status)
}

// ListByJurisdiction returns entries for one jurisdiction, newest first.
func (s *Service) ListByJurisdiction(ctx context.Context, jurisdiction id.JurisdictionID) ([]Entry, error) {
	if jurisdiction.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "jurisdiction id cannot be empty")
	}
	return s.store.ListByJurisdiction(ctx, jurisdiction)
}

// Approve accepts the quarantined layer as-is despite the recorded failure.
// A written rationale is mandatory: approvals override the pipeline and must
// be defensible later.
func (s *Service) Approve(ctx context.Context, entryID id.QuarantineID, reviewer id.ReviewerID, rationale string) (*Entry, error) {
	if reviewer.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "review requires an authenticated reviewer")
	}
	rationale = strings.TrimSpace(rationale)
	if rationale == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "approval requires a rationale")
	}
	return s.decide(ctx, entryID, Review{
		Status:     id.ReviewApproved,
		ReviewedBy: reviewer,
		Notes:      rationale,
		ReviewedAt: requestcontext.Now(ctx).UTC(),
	})
}

// Reject confirms the pipeline's refusal. Notes are optional; the recorded
// failure already explains the rejection.
func (s *Service) Reject(ctx context.Context, entryID id.QuarantineID, reviewer id.ReviewerID, notes string) (*Entry, error) {
	if reviewer.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "review requires an authenticated reviewer")
	}
	return s.decide(ctx, entryID, Review{
		Status:     id.ReviewRejected,
		ReviewedBy: reviewer,
		Notes:      strings.TrimSpace(notes),
		ReviewedAt: requestcontext.Now(ctx).UTC(),
	})
}

// Remediate closes the entry with a corrected layer. The corrected layer is
// run through the full pipeline first; only a PASS verdict completes the
// remediation. A failing verdict leaves the entry pending; the new run is
// still persisted by the pipeline and quarantined on its own merits.
func (s *Service) Remediate(ctx context.Context, entryID id.QuarantineID, reviewer id.ReviewerID, notes string, corrected geometry.CandidateLayer) (*Entry, error) {
	if reviewer.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "review requires an authenticated reviewer")
	}
	if s.revalidator == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "remediation requires the validation pipeline")
	}
	if corrected.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "corrected layer requires a layer id")
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "quarantine.Remediate", trace.WithAttributes(
		attribute.String("entry_id", entryID.String()),
	))
	defer span.End()

	// Check the entry is still reviewable before paying for a full
	// validation run. The store's compare-and-swap remains the backstop
	// against a racing reviewer.
	entry, err := s.store.Get(ctx, entryID)
	if err != nil {
		err = translateStoreErr(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "entry lookup failed")
		return nil, err
	}
	if !entry.Status.CanTransitionTo(id.ReviewRemediated) {
		err := dErrors.New(dErrors.CodeConflict, "quarantine entry is not pending review")
		span.RecordError(err)
		span.SetStatus(codes.Error, "review conflict")
		return nil, err
	}

	runID, verdict, err := s.revalidator.Revalidate(ctx, corrected)
	if err != nil {
		err = fmt.Errorf("revalidate corrected layer: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "re-validation failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("remediation_run_id", runID.String()),
		attribute.String("verdict", verdict.String()),
	)
	if verdict != id.VerdictPass {
		s.logger.InfoContext(ctx, "remediation attempt failed re-validation",
			"entry_id", entryID.String(),
			"run_id", runID.String(),
			"verdict", verdict.String(),
		)
		err := dErrors.New(dErrors.CodeValidation, "corrected layer failed re-validation with verdict "+verdict.String())
		span.RecordError(err)
		span.SetStatus(codes.Error, "corrected layer refused")
		return nil, err
	}

	return s.decide(ctx, entryID, Review{
		Status:         id.ReviewRemediated,
		ReviewedBy:     reviewer,
		Notes:          strings.TrimSpace(notes),
		ReviewedAt:     requestcontext.Now(ctx).UTC(),
		RemediationRun: &runID,
	})
}

// decide applies a terminal review to a pending entry and returns the
// reviewed entry.
func (s *Service) decide(ctx context.Context, entryID id.QuarantineID, review Review) (*Entry, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "quarantine.Review", trace.WithAttributes(
		attribute.String("entry_id", entryID.String()),
		attribute.String("status", review.Status.String()),
	))
	defer span.End()

	entry, err := s.store.Get(ctx, entryID)
	if err != nil {
		err = translateStoreErr(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "entry lookup failed")
		return nil, err
	}
	if !entry.Status.CanTransitionTo(review.Status) {
		err := dErrors.New(dErrors.CodeConflict, "quarantine entry is not pending review")
		span.RecordError(err)
		span.SetStatus(codes.Error, "review conflict")
		return nil, err
	}
	if err := s.store.UpdateReview(ctx, entryID, review); err != nil {
		err = translateStoreErr(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "review update failed")
		return nil, err
	}

	// Reflect the review on the copy we already hold rather than re-reading.
	entry.Status = review.Status
	entry.ReviewedBy = review.ReviewedBy
	entry.ReviewNotes = review.Notes
	reviewedAt := review.ReviewedAt
	entry.ReviewedAt = &reviewedAt
	entry.RemediationRun = review.RemediationRun

	s.metrics.ObserveReview(review.Status.String(), review.ReviewedAt.Sub(entry.CreatedAt))
	s.publisher.Emit(ctx, audit.Event{
		Action:       reviewAction(review.Status),
		RunID:        entry.RunID,
		LayerID:      entry.Snapshot.Layer.ID,
		Jurisdiction: entry.Jurisdiction,
		Category:     entry.Category,
		Reviewer:     review.ReviewedBy,
		Detail:       review.Notes,
	})
	s.logger.InfoContext(ctx, "quarantine entry reviewed",
		"entry_id", entryID.String(),
		"status", review.Status.String(),
		"reviewed_by", review.ReviewedBy.String(),
	)
	return entry, nil
}

func reviewAction(status id.ReviewStatus) audit.Action {
	switch status {
	case id.ReviewApproved:
		return audit.ActionReviewApproved
	case id.ReviewRejected:
		return audit.ActionReviewRejected
	default:
		return audit.ActionReviewRemediated
	}
}
