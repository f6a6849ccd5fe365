//go:build integration

package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"tessera/internal/pipeline"
	"tessera/internal/prevalidate"
	"tessera/internal/prover"
	"tessera/internal/tolerance"
	id "tessera/pkg/domain"
	"tessera/pkg/platform/sentinel"
	"tessera/pkg/testutil/containers"
)

type PostgresRunStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *pipeline.PostgresRunStore
}

func TestPostgresRunStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresRunStoreSuite))
}

func (s *PostgresRunStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = pipeline.NewPostgresRunStore(s.pg.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresRunStoreSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateTables(context.Background(), "validation_runs"))
}

func (s *PostgresRunStoreSuite) newRun(jurisdiction id.JurisdictionID, fingerprint string, createdAt time.Time) pipeline.ValidationRun {
	return pipeline.ValidationRun{
		ID:           id.NewRunID(),
		LayerID:      id.NewLayerID(),
		Fingerprint:  fingerprint,
		Jurisdiction: jurisdiction,
		Method:       id.EvidenceOrganization,
		Confidence:   0.95,
		Profile: &tolerance.Profile{
			Coastal:          false,
			WaterFraction:    0.03,
			OverlapEpsilonM2: 25_000,
			OutsideRatioMax:  0.15,
			CoverageMin:      0.85,
			CoverageMax:      1.15,
		},
		Axioms: []prover.AxiomResult{
			{
				Axiom:   id.AxiomContainment,
				Verdict: id.VerdictPass,
				Detail:  "all districts inside",
				Checks: []prover.Check{
					{Subject: "ward 1", Value: 0.002, Max: 0.15},
				},
			},
			{Axiom: id.AxiomExclusivity, Verdict: id.VerdictPass},
		},
		EdgeCases: []prevalidate.Reason{
			{Code: id.RejectCentroidDistance, Detail: "centroid 22.8 km away, inside the review band"},
		},
		Verdict:   id.VerdictPass,
		CreatedAt: createdAt,
	}
}

func (s *PostgresRunStoreSuite) TestAppendAndReadRoundTrip() {
	ctx := context.Background()
	run := s.newRun("us/test/springfield", "fp-1", time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	s.Require().NoError(s.store.Append(ctx, run))

	got, err := s.store.LatestByJurisdiction(ctx, "us/test/springfield")
	s.Require().NoError(err)
	s.Equal(run.ID, got.ID)
	s.Equal(run.LayerID, got.LayerID)
	s.Equal(run.Fingerprint, got.Fingerprint)
	s.Equal(run.Jurisdiction, got.Jurisdiction)
	s.Equal(run.Method, got.Method)
	s.Equal(run.Confidence, got.Confidence)
	s.Equal(run.Verdict, got.Verdict)
	s.Empty(got.FailureCategory)
	s.True(run.CreatedAt.Equal(got.CreatedAt))

	s.Require().NotNil(got.Profile)
	s.Equal(*run.Profile, *got.Profile)

	s.Require().Len(got.Axioms, 2)
	s.Equal(run.Axioms[0].Axiom, got.Axioms[0].Axiom)
	s.Require().Len(got.Axioms[0].Checks, 1)
	s.Equal("ward 1", got.Axioms[0].Checks[0].Subject)

	s.Require().Len(got.EdgeCases, 1)
	s.Equal(id.RejectCentroidDistance, got.EdgeCases[0].Code)
}

func (s *PostgresRunStoreSuite) TestAppendWithoutOptionalDocuments() {
	ctx := context.Background()
	run := pipeline.ValidationRun{
		ID:              id.NewRunID(),
		LayerID:         id.NewLayerID(),
		Fingerprint:     "fp-unresolved",
		Verdict:         id.VerdictFail,
		FailureCategory: id.FailureAttributionUnresolved,
		Detail:          "no evidence method produced a jurisdiction",
		CreatedAt:       time.Now().UTC(),
	}

	s.Require().NoError(s.store.Append(ctx, run))

	got, err := s.store.FindByLayerFingerprint(ctx, "fp-unresolved")
	s.Require().NoError(err)
	s.Equal(run.ID, got.ID)
	s.Empty(got.Jurisdiction)
	s.Empty(got.Method)
	s.Nil(got.Profile)
	s.Empty(got.Axioms)
	s.Empty(got.EdgeCases)
	s.Empty(got.Rejections)
	s.Equal(id.FailureAttributionUnresolved, got.FailureCategory)
}

func (s *PostgresRunStoreSuite) TestAppendRejectedRunKeepsFilterCodes() {
	ctx := context.Background()
	run := s.newRun("us/test/springfield", "fp-rejected", time.Now().UTC())
	run.Axioms = nil
	run.EdgeCases = nil
	run.Verdict = id.VerdictFail
	run.FailureCategory = id.FailurePreValidationRejected
	run.Detail = "centroid_distance: centroid 111.2 km from jurisdiction"
	run.Rejections = []prevalidate.Reason{
		{Code: id.RejectCentroidDistance, Detail: "centroid 111.2 km from jurisdiction"},
		{Code: id.RejectBBoxDisjoint, Detail: "bounding boxes do not touch"},
	}

	s.Require().NoError(s.store.Append(ctx, run))

	got, err := s.store.FindByLayerFingerprint(ctx, "fp-rejected")
	s.Require().NoError(err)
	s.Require().Len(got.Rejections, 2)
	s.Equal(id.RejectCentroidDistance, got.Rejections[0].Code)
	s.Equal(id.RejectBBoxDisjoint, got.Rejections[1].Code)
}

func (s *PostgresRunStoreSuite) TestAppendIsIdempotent() {
	ctx := context.Background()
	run := s.newRun("us/test/springfield", "fp-1", time.Now().UTC())

	s.Require().NoError(s.store.Append(ctx, run))

	duplicate := run
	duplicate.Detail = "changed detail"
	s.Require().NoError(s.store.Append(ctx, duplicate))

	got, err := s.store.LatestByJurisdiction(ctx, "us/test/springfield")
	s.Require().NoError(err)
	s.Empty(got.Detail, "a retried append must not overwrite")
}

func (s *PostgresRunStoreSuite) TestListByJurisdictionNewestFirst() {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	older := s.newRun("us/test/springfield", "fp-1", base)
	newer := s.newRun("us/test/springfield", "fp-2", base.Add(time.Hour))
	other := s.newRun("us/test/shelbyville", "fp-3", base)
	for _, run := range []pipeline.ValidationRun{older, newer, other} {
		s.Require().NoError(s.store.Append(ctx, run))
	}

	runs, err := s.store.ListByJurisdiction(ctx, "us/test/springfield")
	s.Require().NoError(err)
	s.Require().Len(runs, 2)
	s.Equal(newer.ID, runs[0].ID)
	s.Equal(older.ID, runs[1].ID)
}

func (s *PostgresRunStoreSuite) TestLatestByJurisdictionMissing() {
	_, err := s.store.LatestByJurisdiction(context.Background(), "us/test/nowhere")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresRunStoreSuite) TestFindByLayerFingerprint() {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	first := s.newRun("us/test/springfield", "fp-shared", base)
	second := s.newRun("us/test/springfield", "fp-shared", base.Add(time.Hour))
	s.Require().NoError(s.store.Append(ctx, first))
	s.Require().NoError(s.store.Append(ctx, second))

	got, err := s.store.FindByLayerFingerprint(ctx, "fp-shared")
	s.Require().NoError(err)
	s.Equal(second.ID, got.ID, "the most recent run answers for the content")

	_, err = s.store.FindByLayerFingerprint(ctx, "fp-unknown")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresRunStoreSuite) TestListSinceInclusiveOldestFirst() {
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	before := s.newRun("us/test/springfield", "fp-1", base.Add(-time.Hour))
	exact := s.newRun("us/test/springfield", "fp-2", base)
	after := s.newRun("us/test/springfield", "fp-3", base.Add(time.Hour))
	for _, run := range []pipeline.ValidationRun{after, before, exact} {
		s.Require().NoError(s.store.Append(ctx, run))
	}

	runs, err := s.store.ListSince(ctx, base)
	s.Require().NoError(err)
	s.Require().Len(runs, 2)
	s.Equal(exact.ID, runs[0].ID)
	s.Equal(after.ID, runs[1].ID)
}
