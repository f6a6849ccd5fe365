package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tessera/internal/attribution"
	"tessera/internal/audit"
	"tessera/internal/boundary"
	"tessera/internal/geometry"
	"tessera/internal/platform/config"
	"tessera/internal/prevalidate"
	"tessera/internal/prover"
	"tessera/internal/quarantine"
	"tessera/internal/registry"
	"tessera/internal/tolerance"
	id "tessera/pkg/domain"
	dErrors "tessera/pkg/domain-errors"
	"tessera/pkg/requestcontext"
)

const (
	testJurisdictionID = id.JurisdictionID("us/test/springfield")
	testOrgID          = id.OrganizationID("org-springfield-gis")
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func square(minLon, minLat, size float64) orb.MultiPolygon {
	return orb.MultiPolygon{{{
		{minLon, minLat},
		{minLon + size, minLat},
		{minLon + size, minLat + size},
		{minLon, minLat + size},
		{minLon, minLat},
	}}}
}

func featuresOf(n int, g orb.MultiPolygon) []geometry.Feature {
	features := make([]geometry.Feature, n)
	for i := range features {
		features[i] = geometry.Feature{Geometry: g}
	}
	return features
}

func testJurisdiction() *boundary.Jurisdiction {
	return &boundary.Jurisdiction{
		ID:          testJurisdictionID,
		Name:        "Springfield",
		Geometry:    square(0, 0, 0.01),
		LandAreaM2:  1_200_000,
		WaterAreaM2: 40_000,
		Vintage:     "2024",
	}
}

// attributedLayer resolves to the test jurisdiction through its publisher
// organization, sits inside its boundary, and matches the expected count.
func attributedLayer(features int) geometry.CandidateLayer {
	return geometry.CandidateLayer{
		ID: id.NewLayerID(),
		Metadata: geometry.LayerMetadata{
			Name:         "Springfield Council Wards",
			Organization: testOrgID,
		},
		Features: featuresOf(features, square(0.001, 0.001, 0.008)),
	}
}

// unattributableLayer defeats every evidence method: unknown organization, no
// recognizable name, no metadata, no spatial reference, and no geocoder.
func unattributableLayer() geometry.CandidateLayer {
	return geometry.CandidateLayer{
		ID: id.NewLayerID(),
		Metadata: geometry.LayerMetadata{
			Name:         "Mystery Boundaries",
			Organization: "org-nobody-knows",
		},
		Features: featuresOf(10, square(0.001, 0.001, 0.008)),
	}
}

func passingProof() prover.Proof {
	return prover.Proof{
		Verdict: id.VerdictPass,
		Axioms: []prover.AxiomResult{
			{Axiom: id.AxiomContainment, Verdict: id.VerdictPass, Detail: "all districts inside"},
			{Axiom: id.AxiomExclusivity, Verdict: id.VerdictPass, Detail: "no overlap above epsilon"},
			{Axiom: id.AxiomExhaustivity, Verdict: id.VerdictPass, Detail: "coverage in bounds"},
			{Axiom: id.AxiomCardinality, Verdict: id.VerdictPass, Detail: "10 of 10"},
		},
	}
}

// proverStub counts invocations so tests can assert the proof was reached, or
// that it never was.
type proverStub struct {
	mu    sync.Mutex
	calls int
	proof prover.Proof
	err   error
}

func (p *proverStub) Prove(_ context.Context, _ geometry.CandidateLayer, _ *boundary.Jurisdiction, _ tolerance.Profile, _ int, _ bool) (prover.Proof, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return prover.Proof{}, p.err
	}
	return p.proof, nil
}

func (p *proverStub) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

type quarantineCall struct {
	runID        id.RunID
	jurisdiction id.JurisdictionID
	category     id.FailureCategory
	detail       string
	snapshot     quarantine.Snapshot
}

type quarantinerStub struct {
	mu    sync.Mutex
	calls []quarantineCall
	err   error
}

func (q *quarantinerStub) Quarantine(_ context.Context, runID id.RunID, jurisdiction id.JurisdictionID, category id.FailureCategory, detail string, snapshot quarantine.Snapshot) (*quarantine.Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	q.calls = append(q.calls, quarantineCall{
		runID:        runID,
		jurisdiction: jurisdiction,
		category:     category,
		detail:       detail,
		snapshot:     snapshot,
	})
	return &quarantine.Entry{
		ID:           id.NewQuarantineID(),
		RunID:        runID,
		Jurisdiction: jurisdiction,
		Category:     category,
		Detail:       detail,
		Snapshot:     snapshot,
		Status:       id.ReviewPending,
	}, nil
}

func (q *quarantinerStub) recorded() []quarantineCall {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]quarantineCall, len(q.calls))
	copy(out, q.calls)
	return out
}

type stubAuthority struct {
	jurisdictions map[id.JurisdictionID]*boundary.Jurisdiction
	err           error
}

func (a *stubAuthority) Boundary(_ context.Context, jid id.JurisdictionID) (*boundary.Jurisdiction, error) {
	if a.err != nil {
		return nil, a.err
	}
	jur, ok := a.jurisdictions[jid]
	if !ok {
		return nil, dErrors.New(dErrors.CodeNotFound, "no boundary for "+jid.String())
	}
	return jur, nil
}

type fixtureConfig struct {
	exclusions     []registry.ExclusionEntry
	expectedCounts []registry.ExpectedCountEntry
	spatialRefs    []registry.SpatialRefEntry
	prover         *proverStub
	authority      boundary.Authority
	quarantineErr  error
}

type fixture struct {
	svc         *Service
	runs        *MemoryRunStore
	prover      *proverStub
	quarantines *quarantinerStub
	publisher   *audit.Publisher
}

func newFixture(t *testing.T, tweak func(*fixtureConfig)) *fixture {
	t.Helper()

	cfg := fixtureConfig{
		expectedCounts: []registry.ExpectedCountEntry{
			{Jurisdiction: testJurisdictionID, Districts: 10, Source: "municipal code"},
		},
		prover: &proverStub{proof: passingProof()},
	}
	if tweak != nil {
		tweak(&cfg)
	}

	registries := &registry.Set{
		Exclusions:     registry.NewExclusionRegistry(cfg.exclusions),
		ExpectedCounts: registry.NewExpectedCounts(cfg.expectedCounts),
		Organizations: registry.NewOrganizationDirectory([]registry.OrganizationEntry{
			{Organization: testOrgID, Jurisdiction: testJurisdictionID},
		}),
		SpatialRefs: registry.NewSpatialRefDirectory(cfg.spatialRefs),
		Centroids:   registry.NewCentroidDirectory(nil),
	}

	resolver := attribution.NewResolver(
		registries.Organizations, registries.SpatialRefs, registries.Centroids,
		nil, discardLogger(), nil,
	)

	deriver, err := tolerance.NewDeriver(config.ToleranceConfig{
		OverlapEpsilonM2:     25_000,
		CoastalWaterFraction: 0.10,
		CoverageMin:          0.85,
		CoverageMaxInland:    1.15,
		CoverageMaxCoastal:   2.00,
		OutsideRatioMax:      0.15,
	})
	require.NoError(t, err)

	prevalidator, err := prevalidate.NewValidator(config.PrevalidateConfig{
		CentroidNearM: 10_000,
		CentroidFarM:  50_000,
	})
	require.NoError(t, err)

	authority := cfg.authority
	if authority == nil {
		authority = &stubAuthority{jurisdictions: map[id.JurisdictionID]*boundary.Jurisdiction{
			testJurisdictionID: testJurisdiction(),
		}}
	}

	runs := NewMemoryRunStore()
	quarantines := &quarantinerStub{err: cfg.quarantineErr}
	publisher := audit.NewPublisher(64, discardLogger(), nil)

	svc, err := NewService(
		resolver, registries, authority, deriver, prevalidator,
		cfg.prover, runs, quarantines,
		WithPublisher(publisher),
		WithLogger(discardLogger()),
		WithParallelism(2),
	)
	require.NoError(t, err)

	return &fixture{
		svc:         svc,
		runs:        runs,
		prover:      cfg.prover,
		quarantines: quarantines,
		publisher:   publisher,
	}
}

// drainEvents empties the publisher's buffer. No worker runs in these tests,
// so every emitted event is still queued.
func drainEvents(p *audit.Publisher) []audit.Event {
	var events []audit.Event
	for {
		select {
		case event := <-p.Events():
			events = append(events, event)
		default:
			return events
		}
	}
}

func actionsOf(events []audit.Event) []audit.Action {
	actions := make([]audit.Action, len(events))
	for i, event := range events {
		actions[i] = event.Action
	}
	return actions
}

func TestNewServiceRequiresCollaborators(t *testing.T) {
	_, err := NewService(nil, nil, nil, nil, nil, nil, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolver")
}

func TestValidateLayerPass(t *testing.T) {
	f := newFixture(t, nil)
	layer := attributedLayer(10)

	run, err := f.svc.ValidateLayer(context.Background(), layer)

	require.NoError(t, err)
	assert.Equal(t, id.VerdictPass, run.Verdict)
	assert.Equal(t, layer.ID, run.LayerID)
	assert.Equal(t, testJurisdictionID, run.Jurisdiction)
	assert.Equal(t, id.EvidenceOrganization, run.Method)
	assert.InDelta(t, 0.95, run.Confidence, 1e-9)
	assert.NotEmpty(t, run.Fingerprint)
	assert.Empty(t, run.FailureCategory)
	assert.Len(t, run.Axioms, 4)

	require.NotNil(t, run.Profile)
	assert.False(t, run.Profile.Coastal)
	assert.InDelta(t, 25_000, run.Profile.OverlapEpsilonM2, 1e-9)

	assert.Equal(t, 1, f.prover.callCount())
	assert.Empty(t, f.quarantines.recorded())

	persisted, err := f.runs.ListByJurisdiction(context.Background(), testJurisdictionID)
	require.NoError(t, err)
	require.Len(t, persisted, 1)
	assert.Equal(t, run.ID, persisted[0].ID)

	events := drainEvents(f.publisher)
	require.Equal(t, []audit.Action{audit.ActionRunStarted, audit.ActionRunCompleted}, actionsOf(events))
	assert.Equal(t, run.ID, events[1].RunID)
	assert.Equal(t, id.VerdictPass, events[1].Verdict)
}

func TestValidateLayerRequiresLayerID(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.ValidateLayer(context.Background(), geometry.CandidateLayer{})

	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	assert.Zero(t, f.prover.callCount())
	assert.Empty(t, drainEvents(f.publisher))
}

func TestValidateLayerUnresolvedAttribution(t *testing.T) {
	f := newFixture(t, nil)
	layer := unattributableLayer()

	run, err := f.svc.ValidateLayer(context.Background(), layer)

	require.NoError(t, err)
	assert.Equal(t, id.VerdictFail, run.Verdict)
	assert.Equal(t, id.FailureAttributionUnresolved, run.FailureCategory)
	assert.Equal(t, "no evidence method produced a jurisdiction", run.Detail)
	assert.Empty(t, run.Jurisdiction)
	assert.Zero(t, run.Confidence)
	assert.Empty(t, run.Axioms, "no axiom may be evaluated without a jurisdiction")
	assert.Nil(t, run.Profile)

	assert.Zero(t, f.prover.callCount())

	calls := f.quarantines.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, run.ID, calls[0].runID)
	assert.Equal(t, id.FailureAttributionUnresolved, calls[0].category)
	assert.Equal(t, layer.ID, calls[0].snapshot.Layer.ID)
	assert.Len(t, calls[0].snapshot.Attribution.Attempts, 5, "snapshot keeps the full evidence trail")
}

func TestValidateLayerExcludedJurisdiction(t *testing.T) {
	excluded := func(cfg *fixtureConfig) {
		cfg.exclusions = []registry.ExclusionEntry{{
			Jurisdiction: testJurisdictionID,
			VotingMethod: registry.VotingMethodAtLarge,
			Seats:        7,
			Source:       "city charter art. II",
		}}
	}

	t.Run("zero submitted districts is the correct state", func(t *testing.T) {
		f := newFixture(t, excluded)
		layer := attributedLayer(0)

		run, err := f.svc.ValidateLayer(context.Background(), layer)

		require.NoError(t, err)
		assert.Equal(t, id.VerdictSkipped, run.Verdict)
		assert.Empty(t, run.FailureCategory)
		assert.Contains(t, run.Detail, "no geographic districts")
		assert.Equal(t, testJurisdictionID, run.Jurisdiction, "attribution still recorded")

		assert.Zero(t, f.prover.callCount(), "the proof would manufacture a false FAIL")
		assert.Empty(t, f.quarantines.recorded())

		persisted, err := f.runs.ListByJurisdiction(context.Background(), testJurisdictionID)
		require.NoError(t, err)
		assert.Len(t, persisted, 1)
	})

	t.Run("submitted districts contradict the registry", func(t *testing.T) {
		f := newFixture(t, excluded)
		layer := attributedLayer(10)

		run, err := f.svc.ValidateLayer(context.Background(), layer)

		require.NoError(t, err)
		assert.Equal(t, id.VerdictSkipped, run.Verdict)
		assert.Equal(t, id.FailureRegistryInconsistency, run.FailureCategory)
		assert.Contains(t, run.Detail, "10 districts")
		assert.Contains(t, run.Detail, "city charter art. II")

		assert.Zero(t, f.prover.callCount())

		calls := f.quarantines.recorded()
		require.Len(t, calls, 1)
		assert.Equal(t, id.FailureRegistryInconsistency, calls[0].category)
		assert.Equal(t, testJurisdictionID, calls[0].jurisdiction)
	})
}

func TestValidateLayerBoundaryAuthorityFailure(t *testing.T) {
	f := newFixture(t, func(cfg *fixtureConfig) {
		cfg.authority = &stubAuthority{err: dErrors.New(dErrors.CodeInvariantViolation, "authority returned empty geometry")}
	})

	_, err := f.svc.ValidateLayer(context.Background(), attributedLayer(10))

	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	assert.Contains(t, err.Error(), "fetch boundary")
	assert.Zero(t, f.prover.callCount())

	persisted, err := f.runs.ListByJurisdiction(context.Background(), testJurisdictionID)
	require.NoError(t, err)
	assert.Empty(t, persisted, "a collaborator failure persists nothing")
}

func TestValidateLayerPrevalidationReject(t *testing.T) {
	f := newFixture(t, nil)
	// One degree of longitude away: the centroid check rejects outright.
	layer := geometry.CandidateLayer{
		ID:       id.NewLayerID(),
		Metadata: geometry.LayerMetadata{Organization: testOrgID},
		Features: featuresOf(10, square(1.0, 0, 0.01)),
	}

	run, err := f.svc.ValidateLayer(context.Background(), layer)

	require.NoError(t, err)
	assert.Equal(t, id.VerdictFail, run.Verdict)
	assert.Equal(t, id.FailurePreValidationRejected, run.FailureCategory)
	assert.Contains(t, run.Detail, "centroid_distance")
	require.NotEmpty(t, run.Rejections, "filter codes are kept structured alongside the prose detail")
	assert.Equal(t, id.RejectCentroidDistance, run.Rejections[0].Code)
	assert.Empty(t, run.Axioms)
	require.NotNil(t, run.Profile, "the derived profile is recorded even for rejected layers")

	assert.Zero(t, f.prover.callCount(), "a rejected layer must never reach the proof")

	calls := f.quarantines.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, id.FailurePreValidationRejected, calls[0].category)
}

func TestValidateLayerGeometryError(t *testing.T) {
	f := newFixture(t, func(cfg *fixtureConfig) {
		cfg.prover = &proverStub{err: &geometry.GeometryError{Op: "intersect", Reason: "self-intersection beyond repair"}}
	})
	layer := attributedLayer(10)

	run, err := f.svc.ValidateLayer(context.Background(), layer)

	require.NoError(t, err, "a geometry error fails the layer, not the call")
	assert.Equal(t, id.VerdictFail, run.Verdict)
	assert.Equal(t, id.FailureGeometryError, run.FailureCategory)
	assert.Contains(t, run.Detail, "self-intersection")
	assert.Empty(t, run.Axioms)

	calls := f.quarantines.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, id.FailureGeometryError, calls[0].category)
}

func TestValidateLayerProverInvariantViolationPropagates(t *testing.T) {
	f := newFixture(t, func(cfg *fixtureConfig) {
		cfg.prover = &proverStub{err: dErrors.New(dErrors.CodeInvariantViolation, "malformed tolerance profile")}
	})

	_, err := f.svc.ValidateLayer(context.Background(), attributedLayer(10))

	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	persisted, err := f.runs.ListByJurisdiction(context.Background(), testJurisdictionID)
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func TestValidateLayerAxiomViolation(t *testing.T) {
	failing := passingProof()
	failing.Verdict = id.VerdictFail
	failing.Axioms[0] = prover.AxiomResult{
		Axiom:   id.AxiomContainment,
		Verdict: id.VerdictFail,
		Detail:  "district 3 has 0.42 of its area outside the boundary",
	}

	f := newFixture(t, func(cfg *fixtureConfig) {
		cfg.prover = &proverStub{proof: failing}
	})

	run, err := f.svc.ValidateLayer(context.Background(), attributedLayer(10))

	require.NoError(t, err)
	assert.Equal(t, id.VerdictFail, run.Verdict)
	assert.Equal(t, id.FailureAxiomViolation, run.FailureCategory)
	assert.Contains(t, run.Detail, "containment")
	assert.Contains(t, run.Detail, "district 3")
	assert.Len(t, run.Axioms, 4, "failed runs keep the full per-axiom diagnostics")

	calls := f.quarantines.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, id.FailureAxiomViolation, calls[0].category)
}

func TestValidateLayerEdgeCaseFlagPersists(t *testing.T) {
	f := newFixture(t, nil)
	// A half-degree layer over the small jurisdiction puts the centroids about
	// 39 km apart: inside the review band, outside any rejection.
	layer := geometry.CandidateLayer{
		ID:       id.NewLayerID(),
		Metadata: geometry.LayerMetadata{Organization: testOrgID},
		Features: featuresOf(10, square(0, 0, 0.5)),
	}

	run, err := f.svc.ValidateLayer(context.Background(), layer)

	require.NoError(t, err)
	assert.Equal(t, id.VerdictPass, run.Verdict)
	assert.True(t, run.EdgeFlagged())
	require.Len(t, run.EdgeCases, 1)
	assert.Equal(t, id.RejectCentroidDistance, run.EdgeCases[0].Code)

	assert.Equal(t, 1, f.prover.callCount(), "the review band escalates, never rejects")
	assert.Empty(t, f.quarantines.recorded(), "an edge flag is review pressure, not a failure")
}

func TestValidateLayerQuarantineFailureKeepsRunUnpersisted(t *testing.T) {
	f := newFixture(t, func(cfg *fixtureConfig) {
		cfg.quarantineErr = errors.New("quarantine store down")
	})

	_, err := f.svc.ValidateLayer(context.Background(), unattributableLayer())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "quarantine layer")

	// The run must not exist either: a persisted run with a lost quarantine
	// entry would be resumed past forever with nobody asked to review it.
	persisted, err := f.runs.ListSince(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, persisted)
}

func TestValidateLayerIdempotentOutput(t *testing.T) {
	f := newFixture(t, nil)
	layer := attributedLayer(10)
	ctx := requestcontext.WithTime(context.Background(), time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	first, err := f.svc.ValidateLayer(ctx, layer)
	require.NoError(t, err)
	second, err := f.svc.ValidateLayer(ctx, layer)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID, "every run gets its own identity")

	// Identical inputs and tolerances produce byte-identical results once the
	// per-run identity is stripped.
	first.ID, second.ID = id.RunID{}, id.RunID{}
	firstJSON, err := json.Marshal(first)
	require.NoError(t, err)
	secondJSON, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, string(firstJSON), string(secondJSON))
}

func TestRevalidateReturnsRunVerdict(t *testing.T) {
	f := newFixture(t, nil)

	runID, verdict, err := f.svc.Revalidate(context.Background(), attributedLayer(10))

	require.NoError(t, err)
	assert.False(t, runID.IsNil())
	assert.Equal(t, id.VerdictPass, verdict)
}

func TestValidateBatch(t *testing.T) {
	t.Run("mixed verdicts tallied per layer", func(t *testing.T) {
		f := newFixture(t, nil)
		layers := []geometry.CandidateLayer{attributedLayer(10), unattributableLayer()}

		result, err := f.svc.ValidateBatch(context.Background(), layers)

		require.NoError(t, err)
		assert.Equal(t, 2, result.Total)
		assert.Equal(t, 1, result.Passed)
		assert.Equal(t, 1, result.Failed)
		assert.Zero(t, result.Errored)
		require.Len(t, result.Items, 2)
		assert.Equal(t, layers[0].ID, result.Items[0].LayerID)
		assert.False(t, result.Items[0].RunID.IsNil())

		events := drainEvents(f.publisher)
		require.NotEmpty(t, events)
		last := events[len(events)-1]
		assert.Equal(t, audit.ActionBatchCompleted, last.Action)
		assert.Contains(t, last.Detail, "1 passed")
		assert.Contains(t, last.Detail, "1 failed")
	})

	t.Run("resubmitted content resumes instead of revalidating", func(t *testing.T) {
		f := newFixture(t, nil)
		layer := attributedLayer(10)

		prior, err := f.svc.ValidateLayer(context.Background(), layer)
		require.NoError(t, err)

		// Same content under a fresh submission id hashes identically.
		resubmitted := layer
		resubmitted.ID = id.NewLayerID()

		result, err := f.svc.ValidateBatch(context.Background(), []geometry.CandidateLayer{resubmitted})

		require.NoError(t, err)
		assert.Equal(t, 1, result.Resumed)
		require.Len(t, result.Items, 1)
		assert.True(t, result.Items[0].Resumed)
		assert.Equal(t, prior.ID, result.Items[0].RunID, "the prior run answers for the content")
		assert.Equal(t, 1, f.prover.callCount(), "no second proof for judged content")
	})

	t.Run("one broken layer never aborts the rest", func(t *testing.T) {
		f := newFixture(t, func(cfg *fixtureConfig) {
			cfg.spatialRefs = []registry.SpatialRefEntry{
				{SRID: 3435, Jurisdiction: "us/test/shelbyville"},
			}
		})

		// The second layer resolves to a jurisdiction the authority cannot
		// serve, which is an infrastructure error, not a verdict.
		orphan := attributedLayer(10)
		orphan.Metadata.Organization = ""
		orphan.Metadata.Name = "Regional Boundaries"
		orphan.Metadata.SpatialRef = 3435

		result, err := f.svc.ValidateBatch(context.Background(), []geometry.CandidateLayer{attributedLayer(10), orphan})

		require.NoError(t, err)
		assert.Equal(t, 1, result.Passed)
		assert.Equal(t, 1, result.Errored)
		require.Len(t, result.Items, 2)
		assert.Empty(t, result.Items[0].Error)
		assert.Contains(t, result.Items[1].Error, "fetch boundary")
	})

	t.Run("cancelled context records errors instead of validating", func(t *testing.T) {
		f := newFixture(t, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		result, err := f.svc.ValidateBatch(ctx, []geometry.CandidateLayer{attributedLayer(10)})

		require.NoError(t, err)
		assert.Equal(t, 1, result.Errored)
		assert.Zero(t, f.prover.callCount())
	})
}

func TestRunQueries(t *testing.T) {
	f := newFixture(t, nil)

	older := requestcontext.WithTime(context.Background(), time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	newer := requestcontext.WithTime(context.Background(), time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))

	_, err := f.svc.ValidateLayer(older, attributedLayer(10))
	require.NoError(t, err)
	latest, err := f.svc.ValidateLayer(newer, attributedLayer(10))
	require.NoError(t, err)

	t.Run("runs by jurisdiction newest first", func(t *testing.T) {
		runs, err := f.svc.RunsByJurisdiction(context.Background(), testJurisdictionID)
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, latest.ID, runs[0].ID)
	})

	t.Run("latest run is the current state", func(t *testing.T) {
		run, err := f.svc.LatestRun(context.Background(), testJurisdictionID)
		require.NoError(t, err)
		assert.Equal(t, latest.ID, run.ID)
	})

	t.Run("unknown jurisdiction is not found", func(t *testing.T) {
		_, err := f.svc.LatestRun(context.Background(), "us/test/nowhere")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("empty jurisdiction is invalid input", func(t *testing.T) {
		_, err := f.svc.LatestRun(context.Background(), "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

		_, err = f.svc.RunsByJurisdiction(context.Background(), "")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
