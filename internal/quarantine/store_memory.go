package quarantine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	id "tessera/pkg/domain"
	"tessera/pkg/platform/sentinel"
)

// InMemoryStore keeps entries in process memory. Used in tests and
// single-node runs without Postgres.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[id.QuarantineID]Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{entries: make(map[id.QuarantineID]Entry)}
}

func (s *InMemoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[entry.ID]; exists {
		return nil
	}
	s.entries[entry.ID] = cloneEntry(entry)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, entryID id.QuarantineID) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[entryID]
	if !ok {
		return nil, fmt.Errorf("quarantine entry %s: %w", entryID, sentinel.ErrNotFound)
	}
	out := cloneEntry(entry)
	return &out, nil
}

func (s *InMemoryStore) ListByStatus(_ context.Context, status id.ReviewStatus) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, entry := range s.entries {
		if entry.Status == status {
			out = append(out, cloneEntry(entry))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemoryStore) ListByJurisdiction(_ context.Context, jurisdiction id.JurisdictionID) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, entry := range s.entries {
		if entry.Jurisdiction == jurisdiction {
			out = append(out, cloneEntry(entry))
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *InMemoryStore) UpdateReview(_ context.Context, entryID id.QuarantineID, review Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[entryID]
	if !ok {
		return fmt.Errorf("quarantine entry %s: %w", entryID, sentinel.ErrNotFound)
	}
	if entry.Status != id.ReviewPending {
		return fmt.Errorf("quarantine entry %s already %s: %w", entryID, entry.Status, sentinel.ErrInvalidState)
	}
	entry.Status = review.Status
	entry.ReviewedBy = review.ReviewedBy
	entry.ReviewNotes = review.Notes
	reviewedAt := review.ReviewedAt
	entry.ReviewedAt = &reviewedAt
	if review.RemediationRun != nil {
		run := *review.RemediationRun
		entry.RemediationRun = &run
	}
	s.entries[entryID] = entry
	return nil
}

// cloneEntry copies the entry deeply enough that callers cannot mutate
// stored state through it.
func cloneEntry(entry Entry) Entry {
	out := entry
	out.Snapshot = entry.Snapshot.Clone()
	if entry.ReviewedAt != nil {
		reviewedAt := *entry.ReviewedAt
		out.ReviewedAt = &reviewedAt
	}
	if entry.RemediationRun != nil {
		run := *entry.RemediationRun
		out.RemediationRun = &run
	}
	return out
}

func sortNewestFirst(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID.String() < entries[j].ID.String()
	})
}
