package audit

import (
	"context"

	id "tessera/pkg/domain"
)

// Store is the append-only audit log. Nothing is ever updated or deleted.
type Store interface {
	Append(ctx context.Context, event Event) error

	// ListRecent returns up to limit events, newest first.
	ListRecent(ctx context.Context, limit int) ([]Event, error)

	// ListByRun returns every event recorded for one validation run,
	// oldest first, reconstructing the run's history.
	ListByRun(ctx context.Context, runID id.RunID) ([]Event, error)
}
