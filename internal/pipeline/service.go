package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"tessera/internal/attribution"
	"tessera/internal/audit"
	"tessera/internal/boundary"
	"tessera/internal/geometry"
	"tessera/internal/pipeline/metrics"
	"tessera/internal/prevalidate"
	"tessera/internal/prover"
	"tessera/internal/quarantine"
	"tessera/internal/registry"
	"tessera/internal/tolerance"
	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
	"tessera/pkg/platform/sentinel"
	"tessera/pkg/requestcontext"
)

const tracerName = "tessera/internal/pipeline"

const defaultParallelism = 8

// TessellationProver runs the four-axiom proof. Satisfied by *prover.Prover;
// an interface here so tests can count invocations and assert the proof was
// never reached.
type TessellationProver interface {
	Prove(ctx context.Context, layer geometry.CandidateLayer, jur *boundary.Jurisdiction, profile tolerance.Profile, expected int, expectedKnown bool) (prover.Proof, error)
}

// Quarantiner routes refused layers to human review. Satisfied by
// *quarantine.Service.
type Quarantiner interface {
	Quarantine(ctx context.Context, runID id.RunID, jurisdiction id.JurisdictionID, category id.FailureCategory, detail string, snapshot quarantine.Snapshot) (*quarantine.Entry, error)
}

// Service is the validation pipeline: it wires attribution, the exclusion
// registry, the boundary authority, tolerance derivation, fast prevalidation,
// the tessellation proof, run persistence, and quarantine into one pass over
// a candidate layer.
type Service struct {
	resolver     *attribution.Resolver
	registries   *registry.Set
	authority    boundary.Authority
	deriver      *tolerance.Deriver
	prevalidator *prevalidate.Validator
	prover       TessellationProver
	runs         RunStore
	quarantiner  Quarantiner
	publisher    *audit.Publisher
	parallelism  int
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

type Option func(*Service)

// WithPublisher wires the audit trail. A nil publisher drops every event.
func WithPublisher(p *audit.Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// WithParallelism bounds concurrent layers in ValidateBatch.
func WithParallelism(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.parallelism = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func NewService(
	resolver *attribution.Resolver,
	registries *registry.Set,
	authority boundary.Authority,
	deriver *tolerance.Deriver,
	prevalidator *prevalidate.Validator,
	tessellation TessellationProver,
	runs RunStore,
	quarantiner Quarantiner,
	opts ...Option,
) (*Service, error) {
	if resolver == nil {
		return nil, errors.New("attribution resolver is required")
	}
	if registries == nil {
		return nil, errors.New("registry set is required")
	}
	if authority == nil {
		return nil, errors.New("boundary authority is required")
	}
	if deriver == nil {
		return nil, errors.New("tolerance deriver is required")
	}
	if prevalidator == nil {
		return nil, errors.New("prevalidator is required")
	}
	if tessellation == nil {
		return nil, errors.New("tessellation prover is required")
	}
	if runs == nil {
		return nil, errors.New("run store is required")
	}
	if quarantiner == nil {
		return nil, errors.New("quarantine service is required")
	}

	svc := &Service{
		resolver:     resolver,
		registries:   registries,
		authority:    authority,
		deriver:      deriver,
		prevalidator: prevalidator,
		prover:       tessellation,
		runs:         runs,
		quarantiner:  quarantiner,
		parallelism:  defaultParallelism,
		logger:       slog.Default(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// ValidateLayer runs one candidate layer through the full pipeline and
// persists the resulting run. The returned error covers infrastructure
// failures only: a refused layer is a completed validation with verdict FAIL
// or SKIPPED, not an error.
func (s *Service) ValidateLayer(ctx context.Context, layer geometry.CandidateLayer) (*ValidationRun, error) {
	if layer.ID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "candidate layer requires a layer id")
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "pipeline.ValidateLayer", trace.WithAttributes(
		attribute.String("layer_id", layer.ID.String()),
	))
	defer span.End()

	run := ValidationRun{
		ID:          id.NewRunID(),
		LayerID:     layer.ID,
		Fingerprint: geometry.Fingerprint(layer),
		CreatedAt:   requestcontext.Now(ctx).UTC(),
	}
	s.publisher.Emit(ctx, audit.Event{
		Action:  audit.ActionRunStarted,
		RunID:   run.ID,
		LayerID: layer.ID,
	})

	// Attribution runs even when the jurisdiction turns out to be excluded:
	// the evidence trail is worth recording either way.
	start := time.Now()
	result := s.resolver.Resolve(ctx, layer)
	s.metrics.ObserveStage("attribution", time.Since(start))
	run.Jurisdiction = result.Jurisdiction
	run.Method = result.Method
	run.Confidence = result.Confidence

	if !result.Resolved() {
		run.Verdict = id.VerdictFail
		run.FailureCategory = id.FailureAttributionUnresolved
		run.Detail = "no evidence method produced a jurisdiction"
		return s.conclude(ctx, span, run, layer, result)
	}
	span.SetAttributes(attribute.String("jurisdiction", result.Jurisdiction.String()))

	if entry, excluded := s.registries.Exclusions.Lookup(result.Jurisdiction); excluded {
		run.Verdict = id.VerdictSkipped
		run.Detail = fmt.Sprintf("%s elects %d seats %s and has no geographic districts",
			entry.Jurisdiction, entry.Seats, entry.VotingMethod)
		if layer.FeatureCount() > 0 {
			// Districts were submitted for a jurisdiction the registry says
			// cannot have any. One side is wrong and a human decides which;
			// running the proof would just manufacture a false FAIL.
			run.FailureCategory = id.FailureRegistryInconsistency
			run.Detail = fmt.Sprintf("%d districts submitted for %s jurisdiction %s (exclusion source: %s)",
				layer.FeatureCount(), entry.VotingMethod, entry.Jurisdiction, entry.Source)
		}
		return s.conclude(ctx, span, run, layer, result)
	}

	start = time.Now()
	jur, err := s.authority.Boundary(ctx, result.Jurisdiction)
	s.metrics.ObserveStage("boundary", time.Since(start))
	if err != nil {
		err = fmt.Errorf("fetch boundary for %s: %w", result.Jurisdiction, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "boundary fetch failed")
		return nil, err
	}

	profile := s.deriver.Derive(jur.LandAreaM2, jur.WaterAreaM2)
	run.Profile = &profile

	expected, expectedKnown := s.registries.ExpectedCounts.Expected(result.Jurisdiction)

	start = time.Now()
	outcome := s.prevalidator.Validate(layer, jur, expected, expectedKnown)
	s.metrics.ObserveStage("prevalidate", time.Since(start))
	run.EdgeCases = outcome.EdgeCases
	if !outcome.Accepted() {
		run.Verdict = id.VerdictFail
		run.FailureCategory = id.FailurePreValidationRejected
		run.Rejections = outcome.Reasons
		run.Detail = rejectDetail(outcome.Reasons)
		return s.conclude(ctx, span, run, layer, result)
	}

	start = time.Now()
	proof, err := s.prover.Prove(ctx, layer, jur, profile, expected, expectedKnown)
	s.metrics.ObserveStage("prove", time.Since(start))
	if err != nil {
		if geometry.IsGeometryError(err) {
			// Fatal for this layer only; the batch around it continues.
			run.Verdict = id.VerdictFail
			run.FailureCategory = id.FailureGeometryError
			run.Detail = err.Error()
			return s.conclude(ctx, span, run, layer, result)
		}
		err = fmt.Errorf("prove tessellation for %s: %w", result.Jurisdiction, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "proof aborted")
		return nil, err
	}

	run.Axioms = proof.Axioms
	run.Verdict = proof.Verdict
	if proof.Verdict == id.VerdictFail {
		run.FailureCategory = id.FailureAxiomViolation
		run.Detail = axiomDetail(proof.Axioms)
	}
	return s.conclude(ctx, span, run, layer, result)
}

// conclude quarantines when the run carries a failure category, then appends
// the run. Quarantine goes first: a persisted run whose quarantine entry was
// lost would be skipped by fingerprint resume forever with nobody asked to
// review it, while the reverse order risks at most a duplicate entry.
func (s *Service) conclude(ctx context.Context, span trace.Span, run ValidationRun, layer geometry.CandidateLayer, result attribution.Result) (*ValidationRun, error) {
	if run.FailureCategory != "" {
		snapshot := quarantine.Snapshot{Layer: layer, Attribution: result}
		if _, err := s.quarantiner.Quarantine(ctx, run.ID, run.Jurisdiction, run.FailureCategory, run.Detail, snapshot); err != nil {
			err = fmt.Errorf("quarantine layer %s: %w", layer.ID, err)
			span.RecordError(err)
			span.SetStatus(codes.Error, "quarantine failed")
			return nil, err
		}
	}
	if err := s.runs.Append(ctx, run); err != nil {
		err = fmt.Errorf("append validation run: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "run append failed")
		return nil, err
	}

	s.metrics.IncrementRun(run.Verdict.String())
	s.publisher.Emit(ctx, audit.Event{
		Action:       audit.ActionRunCompleted,
		RunID:        run.ID,
		LayerID:      run.LayerID,
		Jurisdiction: run.Jurisdiction,
		Verdict:      run.Verdict,
		Category:     run.FailureCategory,
		Detail:       run.Detail,
	})
	span.SetAttributes(attribute.String("verdict", run.Verdict.String()))
	s.logger.InfoContext(ctx, "validation run complete",
		"run_id", run.ID.String(),
		"layer_id", run.LayerID.String(),
		"jurisdiction", run.Jurisdiction.String(),
		"verdict", run.Verdict.String(),
		"category", run.FailureCategory.String(),
	)
	return &run, nil
}

// Revalidate satisfies quarantine.Revalidator. Remediation runs the corrected
// layer through the identical pipeline; there is no shortened path.
func (s *Service) Revalidate(ctx context.Context, layer geometry.CandidateLayer) (id.RunID, id.Verdict, error) {
	run, err := s.ValidateLayer(ctx, layer)
	if err != nil {
		return id.RunID{}, "", err
	}
	return run.ID, run.Verdict, nil
}

// ValidateBatch validates layers concurrently with bounded parallelism.
// Layers whose fingerprint already has a run are skipped, which makes an
// interrupted batch safe to resubmit. Per-layer failures are recorded on
// their item and never abort the rest of the batch.
func (s *Service) ValidateBatch(ctx context.Context, layers []geometry.CandidateLayer) (*BatchResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "pipeline.ValidateBatch", trace.WithAttributes(
		attribute.Int("layers", len(layers)),
	))
	defer span.End()
	s.metrics.ObserveBatch(len(layers))

	items := make([]BatchItem, len(layers))
	group := new(errgroup.Group)
	group.SetLimit(s.parallelism)
	for i, layer := range layers {
		group.Go(func() error {
			items[i] = s.validateOne(ctx, layer)
			return nil
		})
	}
	// Goroutines report through their item, never through the group.
	_ = group.Wait()

	result := BatchResult{Total: len(layers), Items: items}
	for _, item := range items {
		switch {
		case item.Error != "":
			result.Errored++
		case item.Resumed:
			result.Resumed++
		case item.Verdict == id.VerdictPass:
			result.Passed++
		case item.Verdict == id.VerdictFail:
			result.Failed++
		case item.Verdict == id.VerdictSkipped:
			result.Skipped++
		}
	}

	s.publisher.Emit(ctx, audit.Event{
		Action: audit.ActionBatchCompleted,
		Detail: fmt.Sprintf("%d layers: %d passed, %d failed, %d skipped, %d resumed, %d errored",
			result.Total, result.Passed, result.Failed, result.Skipped, result.Resumed, result.Errored),
	})
	s.logger.InfoContext(ctx, "batch validation complete",
		"total", result.Total,
		"passed", result.Passed,
		"failed", result.Failed,
		"skipped", result.Skipped,
		"resumed", result.Resumed,
		"errored", result.Errored,
	)
	return &result, nil
}

// validateOne handles a single batch item: resume when a prior run covers the
// same fingerprint, otherwise validate. ValidateLayer itself never resumes;
// remediation depends on re-validating content that has run before.
func (s *Service) validateOne(ctx context.Context, layer geometry.CandidateLayer) BatchItem {
	item := BatchItem{LayerID: layer.ID}
	if err := ctx.Err(); err != nil {
		item.Error = err.Error()
		return item
	}

	prior, err := s.runs.FindByLayerFingerprint(ctx, geometry.Fingerprint(layer))
	switch {
	case err == nil:
		s.metrics.IncrementResumed()
		item.RunID = prior.ID
		item.Verdict = prior.Verdict
		item.Resumed = true
		return item
	case !errors.Is(err, sentinel.ErrNotFound):
		item.Error = err.Error()
		return item
	}

	run, err := s.ValidateLayer(ctx, layer)
	if err != nil {
		item.Error = err.Error()
		return item
	}
	item.RunID = run.ID
	item.Verdict = run.Verdict
	return item
}

// RunsByJurisdiction returns every run for a jurisdiction, newest first.
func (s *Service) RunsByJurisdiction(ctx context.Context, jurisdiction id.JurisdictionID) ([]ValidationRun, error) {
	if jurisdiction.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "jurisdiction id cannot be empty")
	}
	return s.runs.ListByJurisdiction(ctx, jurisdiction)
}

// LatestRun returns the jurisdiction's current state: its most recent run.
func (s *Service) LatestRun(ctx context.Context, jurisdiction id.JurisdictionID) (*ValidationRun, error) {
	if jurisdiction.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "jurisdiction id cannot be empty")
	}
	run, err := s.runs.LatestByJurisdiction(ctx, jurisdiction)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no validation runs for jurisdiction "+jurisdiction.String())
		}
		return nil, err
	}
	return run, nil
}

func rejectDetail(reasons []prevalidate.Reason) string {
	parts := make([]string, len(reasons))
	for i, reason := range reasons {
		parts[i] = fmt.Sprintf("%s: %s", reason.Code, reason.Detail)
	}
	return strings.Join(parts, "; ")
}

func axiomDetail(axioms []prover.AxiomResult) string {
	var parts []string
	for _, axiom := range axioms {
		if axiom.Verdict == id.VerdictFail {
			parts = append(parts, fmt.Sprintf("%s: %s", axiom.Axiom, axiom.Detail))
		}
	}
	return strings.Join(parts, "; ")
}

var (
	_ TessellationProver     = (*prover.Prover)(nil)
	_ Quarantiner            = (*quarantine.Service)(nil)
	_ quarantine.Revalidator = (*Service)(nil)
)
