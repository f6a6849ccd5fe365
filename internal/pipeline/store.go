package pipeline

import (
	"context"
	"time"

	id "tessera/pkg/domain"
)

// RunStore persists validation runs append-only. No method ever updates a
// row; history is the record.
//
// Implementations return pkg/platform/sentinel errors for store facts
// (ErrNotFound); the service translates them at the API boundary.
type RunStore interface {
	// Append inserts the run, ignoring duplicates of the same run id.
	Append(ctx context.Context, run ValidationRun) error

	// ListByJurisdiction returns every run for a jurisdiction, newest first.
	ListByJurisdiction(ctx context.Context, jurisdiction id.JurisdictionID) ([]ValidationRun, error)

	// LatestByJurisdiction returns the most recent run for a jurisdiction.
	LatestByJurisdiction(ctx context.Context, jurisdiction id.JurisdictionID) (*ValidationRun, error)

	// FindByLayerFingerprint returns the most recent run recorded for a
	// layer fingerprint. Batch resume uses it to skip already-processed
	// layers.
	FindByLayerFingerprint(ctx context.Context, fingerprint string) (*ValidationRun, error)

	// ListSince returns runs created at or after the given instant, oldest
	// first. Feeds the failure-pattern report.
	ListSince(ctx context.Context, since time.Time) ([]ValidationRun, error)
}
