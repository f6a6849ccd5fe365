package quarantine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	id "tessera/pkg/domain"
	"tessera/pkg/platform/sentinel"
)

// PostgresStore persists quarantine entries in Postgres. The snapshot is
// stored as JSONB and treated as opaque: reviews update the review columns
// and never touch it.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the quarantine table and its indexes when absent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS quarantine_entries (
			id UUID PRIMARY KEY,
			run_id UUID NOT NULL,
			jurisdiction TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL,
			detail TEXT NOT NULL,
			snapshot JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL,
			reviewed_by TEXT NOT NULL DEFAULT '',
			review_notes TEXT NOT NULL DEFAULT '',
			reviewed_at TIMESTAMPTZ,
			remediation_run_id UUID
		);
		CREATE INDEX IF NOT EXISTS idx_quarantine_status
			ON quarantine_entries (status, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_quarantine_jurisdiction
			ON quarantine_entries (jurisdiction, created_at DESC);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure quarantine schema: %w", err)
	}
	return nil
}

// Append inserts the entry. Duplicate IDs are ignored via ON CONFLICT DO
// NOTHING, which makes retried appends safe.
func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	snapshot, err := json.Marshal(entry.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal quarantine snapshot: %w", err)
	}

	query := `
		INSERT INTO quarantine_entries (
			id, run_id, jurisdiction, category, detail, snapshot,
			created_at, status, reviewed_by, review_notes
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(entry.ID),
		uuid.UUID(entry.RunID),
		string(entry.Jurisdiction),
		string(entry.Category),
		entry.Detail,
		snapshot,
		entry.CreatedAt,
		string(entry.Status),
		string(entry.ReviewedBy),
		entry.ReviewNotes,
	)
	if err != nil {
		return fmt.Errorf("insert quarantine entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, entryID id.QuarantineID) (*Entry, error) {
	query := `
		SELECT id, run_id, jurisdiction, category, detail, snapshot,
			   created_at, status, reviewed_by, review_notes,
			   reviewed_at, remediation_run_id
		FROM quarantine_entries
		WHERE id = $1
	`

	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(entryID))
	if err != nil {
		return nil, fmt.Errorf("query quarantine entry: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("quarantine entry %s: %w", entryID, sentinel.ErrNotFound)
	}
	return &entries[0], nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status id.ReviewStatus) ([]Entry, error) {
	query := `
		SELECT id, run_id, jurisdiction, category, detail, snapshot,
			   created_at, status, reviewed_by, review_notes,
			   reviewed_at, remediation_run_id
		FROM quarantine_entries
		WHERE status = $1
		ORDER BY created_at DESC, id
	`

	rows, err := s.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("query quarantine entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (s *PostgresStore) ListByJurisdiction(ctx context.Context, jurisdiction id.JurisdictionID) ([]Entry, error) {
	query := `
		SELECT id, run_id, jurisdiction, category, detail, snapshot,
			   created_at, status, reviewed_by, review_notes,
			   reviewed_at, remediation_run_id
		FROM quarantine_entries
		WHERE jurisdiction = $1
		ORDER BY created_at DESC, id
	`

	rows, err := s.db.QueryContext(ctx, query, string(jurisdiction))
	if err != nil {
		return nil, fmt.Errorf("query quarantine entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// UpdateReview compares-and-swaps the review columns: the WHERE clause only
// matches entries still pending, so a reviewer racing a concurrent decision
// loses cleanly instead of overwriting it.
func (s *PostgresStore) UpdateReview(ctx context.Context, entryID id.QuarantineID, review Review) error {
	var remediationRun *uuid.UUID
	if review.RemediationRun != nil {
		run := uuid.UUID(*review.RemediationRun)
		remediationRun = &run
	}

	query := `
		UPDATE quarantine_entries
		SET status = $2, reviewed_by = $3, review_notes = $4,
			reviewed_at = $5, remediation_run_id = $6
		WHERE id = $1 AND status = 'pending'
	`
	result, err := s.db.ExecContext(ctx, query,
		uuid.UUID(entryID),
		string(review.Status),
		string(review.ReviewedBy),
		review.Notes,
		review.ReviewedAt,
		remediationRun,
	)
	if err != nil {
		return fmt.Errorf("update quarantine review: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update quarantine review: %w", err)
	}
	if affected == 0 {
		var exists bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM quarantine_entries WHERE id = $1)`,
			uuid.UUID(entryID),
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check quarantine entry: %w", err)
		}
		if !exists {
			return fmt.Errorf("quarantine entry %s: %w", entryID, sentinel.ErrNotFound)
		}
		return fmt.Errorf("quarantine entry %s already reviewed: %w", entryID, sentinel.ErrInvalidState)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var entries []Entry
	for rows.Next() {
		var (
			entry          Entry
			entryID        uuid.UUID
			runID          uuid.UUID
			jurisdiction   string
			category       string
			status         string
			reviewedBy     string
			snapshot       []byte
			reviewedAt     sql.NullTime
			remediationRun uuid.NullUUID
		)
		err := rows.Scan(
			&entryID,
			&runID,
			&jurisdiction,
			&category,
			&entry.Detail,
			&snapshot,
			&entry.CreatedAt,
			&status,
			&reviewedBy,
			&entry.ReviewNotes,
			&reviewedAt,
			&remediationRun,
		)
		if err != nil {
			return nil, fmt.Errorf("scan quarantine entry: %w", err)
		}

		if err := json.Unmarshal(snapshot, &entry.Snapshot); err != nil {
			return nil, fmt.Errorf("unmarshal quarantine snapshot: %w", err)
		}

		entry.ID = id.QuarantineID(entryID)
		entry.RunID = id.RunID(runID)
		entry.Jurisdiction = id.JurisdictionID(jurisdiction)
		entry.Category = id.FailureCategory(category)
		entry.Status = id.ReviewStatus(status)
		entry.ReviewedBy = id.ReviewerID(reviewedBy)
		if reviewedAt.Valid {
			t := reviewedAt.Time
			entry.ReviewedAt = &t
		}
		if remediationRun.Valid {
			run := id.RunID(remediationRun.UUID)
			entry.RemediationRun = &run
		}

		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quarantine entries: %w", err)
	}
	return entries, nil
}
