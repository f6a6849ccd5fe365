package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tessera/internal/prevalidate"
	"tessera/internal/prover"
	id "tessera/pkg/domain"
	"tessera/pkg/platform/sentinel"
)

// MemoryRunStore keeps runs in process memory. Used in tests and single-node
// runs without Postgres.
type MemoryRunStore struct {
	mu   sync.RWMutex
	runs []ValidationRun
	byID map[id.RunID]struct{}
}

func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{byID: make(map[id.RunID]struct{})}
}

func (s *MemoryRunStore) Append(_ context.Context, run ValidationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[run.ID]; exists {
		return nil
	}
	s.byID[run.ID] = struct{}{}
	s.runs = append(s.runs, cloneRun(run))
	return nil
}

func (s *MemoryRunStore) ListByJurisdiction(_ context.Context, jurisdiction id.JurisdictionID) ([]ValidationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ValidationRun
	for _, run := range s.runs {
		if run.Jurisdiction == jurisdiction {
			out = append(out, cloneRun(run))
		}
	}
	sortRunsNewestFirst(out)
	return out, nil
}

func (s *MemoryRunStore) LatestByJurisdiction(ctx context.Context, jurisdiction id.JurisdictionID) (*ValidationRun, error) {
	runs, err := s.ListByJurisdiction(ctx, jurisdiction)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs for jurisdiction %s: %w", jurisdiction, sentinel.ErrNotFound)
	}
	return &runs[0], nil
}

func (s *MemoryRunStore) FindByLayerFingerprint(_ context.Context, fingerprint string) (*ValidationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ValidationRun
	for _, run := range s.runs {
		if run.Fingerprint == fingerprint {
			out = append(out, cloneRun(run))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no run for fingerprint %s: %w", fingerprint, sentinel.ErrNotFound)
	}
	sortRunsNewestFirst(out)
	return &out[0], nil
}

func (s *MemoryRunStore) ListSince(_ context.Context, since time.Time) ([]ValidationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ValidationRun
	for _, run := range s.runs {
		if !run.CreatedAt.Before(since) {
			out = append(out, cloneRun(run))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// cloneRun copies the run deeply enough that callers cannot mutate stored
// state through the slices and the profile pointer.
func cloneRun(run ValidationRun) ValidationRun {
	out := run
	if run.Profile != nil {
		profile := *run.Profile
		out.Profile = &profile
	}
	if run.Axioms != nil {
		out.Axioms = make([]prover.AxiomResult, len(run.Axioms))
		for i, axiom := range run.Axioms {
			out.Axioms[i] = axiom
			out.Axioms[i].Checks = append([]prover.Check(nil), axiom.Checks...)
		}
	}
	if run.EdgeCases != nil {
		out.EdgeCases = append([]prevalidate.Reason(nil), run.EdgeCases...)
	}
	if run.Rejections != nil {
		out.Rejections = append([]prevalidate.Reason(nil), run.Rejections...)
	}
	return out
}

func sortRunsNewestFirst(runs []ValidationRun) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID.String() < runs[j].ID.String()
	})
}
