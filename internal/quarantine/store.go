package quarantine

import (
	"context"

	id "tessera/pkg/domain"
)

// Store persists quarantine entries. Implementations must make Append
// idempotent by entry ID and must apply UpdateReview only to entries still
// pending, so concurrent reviewers cannot both win.
type Store interface {
	// Append inserts the entry. A second append with the same ID is a no-op,
	// never an overwrite.
	Append(ctx context.Context, entry Entry) error

	// Get returns the entry or a not_found error.
	Get(ctx context.Context, entryID id.QuarantineID) (*Entry, error)

	// ListByStatus returns entries in the given status, newest first.
	ListByStatus(ctx context.Context, status id.ReviewStatus) ([]Entry, error)

	// ListByJurisdiction returns entries for the jurisdiction, newest first.
	// Entries that never resolved to a jurisdiction are only reachable by
	// status or ID.
	ListByJurisdiction(ctx context.Context, jurisdiction id.JurisdictionID) ([]Entry, error)

	// UpdateReview applies a terminal review decision to a pending entry.
	// Returns a conflict error when the entry has already left pending and a
	// not_found error when it does not exist.
	UpdateReview(ctx context.Context, entryID id.QuarantineID, review Review) error
}
