package audit

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	id "tessera/pkg/domain"
)

// PostgresStore persists audit events in Postgres. Each event gets a
// store-assigned id, so retried appends of distinct events never collide.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the audit table and its indexes when absent.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS audit_events (
			id UUID PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			action TEXT NOT NULL,
			run_id UUID,
			layer_id UUID,
			jurisdiction TEXT NOT NULL DEFAULT '',
			verdict TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			reviewer TEXT NOT NULL DEFAULT '',
			request_id TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_audit_timestamp
			ON audit_events (timestamp DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_run
			ON audit_events (run_id, timestamp);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO audit_events (
			id, timestamp, action, run_id, layer_id, jurisdiction,
			verdict, category, reviewer, request_id, detail
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	var runID, layerID *uuid.UUID
	if !event.RunID.IsNil() {
		run := uuid.UUID(event.RunID)
		runID = &run
	}
	if !event.LayerID.IsNil() {
		layer := uuid.UUID(event.LayerID)
		layerID = &layer
	}

	_, err := s.db.ExecContext(ctx, query,
		uuid.New(),
		event.Timestamp,
		string(event.Action),
		runID,
		layerID,
		string(event.Jurisdiction),
		string(event.Verdict),
		string(event.Category),
		string(event.Reviewer),
		event.RequestID,
		event.Detail,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT timestamp, action, run_id, layer_id, jurisdiction,
			   verdict, category, reviewer, request_id, detail
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *PostgresStore) ListByRun(ctx context.Context, runID id.RunID) ([]Event, error) {
	query := `
		SELECT timestamp, action, run_id, layer_id, jurisdiction,
			   verdict, category, reviewer, request_id, detail
		FROM audit_events
		WHERE run_id = $1
		ORDER BY timestamp
	`

	rows, err := s.db.QueryContext(ctx, query, uuid.UUID(runID))
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var (
			event   Event
			action  string
			runID   uuid.NullUUID
			layerID uuid.NullUUID
			juris   string
			verdict string
			catg    string
			revwr   string
		)
		err := rows.Scan(
			&event.Timestamp,
			&action,
			&runID,
			&layerID,
			&juris,
			&verdict,
			&catg,
			&revwr,
			&event.RequestID,
			&event.Detail,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.Action = Action(action)
		if runID.Valid {
			event.RunID = id.RunID(runID.UUID)
		}
		if layerID.Valid {
			event.LayerID = id.LayerID(layerID.UUID)
		}
		event.Jurisdiction = id.JurisdictionID(juris)
		event.Verdict = id.Verdict(verdict)
		event.Category = id.FailureCategory(catg)
		event.Reviewer = id.ReviewerID(revwr)

		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}
