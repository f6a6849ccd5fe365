package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tessera/internal/tolerance"
	id "tessera/pkg/domain"
	"tessera/pkg/platform/sentinel"
)

// PostgresRunStore persists validation runs in Postgres. Profile, axioms,
// and edge-case flags are JSONB: they are written once and read whole, never
// queried into.
type PostgresRunStore struct {
	db *sql.DB
}

func NewPostgresRunStore(db *sql.DB) *PostgresRunStore {
	return &PostgresRunStore{db: db}
}

// EnsureSchema creates the run table and its indexes when absent.
func (s *PostgresRunStore) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS validation_runs (
			id UUID PRIMARY KEY,
			layer_id UUID NOT NULL,
			fingerprint TEXT NOT NULL,
			jurisdiction TEXT NOT NULL DEFAULT '',
			method TEXT NOT NULL DEFAULT '',
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			profile JSONB,
			axioms JSONB,
			edge_cases JSONB,
			rejections JSONB,
			verdict TEXT NOT NULL,
			failure_category TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_runs_jurisdiction
			ON validation_runs (jurisdiction, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_runs_fingerprint
			ON validation_runs (fingerprint, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_runs_created
			ON validation_runs (created_at);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure run schema: %w", err)
	}
	return nil
}

// Append inserts the run. Duplicate IDs are ignored via ON CONFLICT DO
// NOTHING, which makes retried appends safe.
func (s *PostgresRunStore) Append(ctx context.Context, run ValidationRun) error {
	profile, axioms, edgeCases, rejections, err := marshalRunDocs(run)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO validation_runs (
			id, layer_id, fingerprint, jurisdiction, method, confidence,
			profile, axioms, edge_cases, rejections, verdict,
			failure_category, detail, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = s.db.ExecContext(ctx, query,
		uuid.UUID(run.ID),
		uuid.UUID(run.LayerID),
		run.Fingerprint,
		string(run.Jurisdiction),
		string(run.Method),
		run.Confidence,
		profile,
		axioms,
		edgeCases,
		rejections,
		string(run.Verdict),
		string(run.FailureCategory),
		run.Detail,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert validation run: %w", err)
	}
	return nil
}

const runColumns = `
	SELECT id, layer_id, fingerprint, jurisdiction, method, confidence,
		   profile, axioms, edge_cases, rejections, verdict,
		   failure_category, detail, created_at
	FROM validation_runs
`

func (s *PostgresRunStore) ListByJurisdiction(ctx context.Context, jurisdiction id.JurisdictionID) ([]ValidationRun, error) {
	query := runColumns + `
		WHERE jurisdiction = $1
		ORDER BY created_at DESC, id
	`
	rows, err := s.db.QueryContext(ctx, query, string(jurisdiction))
	if err != nil {
		return nil, fmt.Errorf("query validation runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

func (s *PostgresRunStore) LatestByJurisdiction(ctx context.Context, jurisdiction id.JurisdictionID) (*ValidationRun, error) {
	query := runColumns + `
		WHERE jurisdiction = $1
		ORDER BY created_at DESC, id
		LIMIT 1
	`
	rows, err := s.db.QueryContext(ctx, query, string(jurisdiction))
	if err != nil {
		return nil, fmt.Errorf("query validation runs: %w", err)
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no runs for jurisdiction %s: %w", jurisdiction, sentinel.ErrNotFound)
	}
	return &runs[0], nil
}

func (s *PostgresRunStore) FindByLayerFingerprint(ctx context.Context, fingerprint string) (*ValidationRun, error) {
	query := runColumns + `
		WHERE fingerprint = $1
		ORDER BY created_at DESC, id
		LIMIT 1
	`
	rows, err := s.db.QueryContext(ctx, query, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("query validation runs: %w", err)
	}
	defer rows.Close()

	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("no run for fingerprint %s: %w", fingerprint, sentinel.ErrNotFound)
	}
	return &runs[0], nil
}

func (s *PostgresRunStore) ListSince(ctx context.Context, since time.Time) ([]ValidationRun, error) {
	query := runColumns + `
		WHERE created_at >= $1
		ORDER BY created_at, id
	`
	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("query validation runs: %w", err)
	}
	defer rows.Close()

	return scanRuns(rows)
}

func marshalRunDocs(run ValidationRun) (profile, axioms, edgeCases, rejections []byte, err error) {
	if run.Profile != nil {
		if profile, err = json.Marshal(run.Profile); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal run profile: %w", err)
		}
	}
	if len(run.Axioms) > 0 {
		if axioms, err = json.Marshal(run.Axioms); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal run axioms: %w", err)
		}
	}
	if len(run.EdgeCases) > 0 {
		if edgeCases, err = json.Marshal(run.EdgeCases); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal run edge cases: %w", err)
		}
	}
	if len(run.Rejections) > 0 {
		if rejections, err = json.Marshal(run.Rejections); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("marshal run rejections: %w", err)
		}
	}
	return profile, axioms, edgeCases, rejections, nil
}

func scanRuns(rows *sql.Rows) ([]ValidationRun, error) {
	var runs []ValidationRun
	for rows.Next() {
		var (
			run        ValidationRun
			runID      uuid.UUID
			layerID    uuid.UUID
			juris      string
			method     string
			profile    []byte
			axioms     []byte
			edgeCases  []byte
			rejections []byte
			verdict    string
			category   string
		)
		err := rows.Scan(
			&runID,
			&layerID,
			&run.Fingerprint,
			&juris,
			&method,
			&run.Confidence,
			&profile,
			&axioms,
			&edgeCases,
			&rejections,
			&verdict,
			&category,
			&run.Detail,
			&run.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan validation run: %w", err)
		}

		run.ID = id.RunID(runID)
		run.LayerID = id.LayerID(layerID)
		run.Jurisdiction = id.JurisdictionID(juris)
		run.Method = id.EvidenceMethod(method)
		run.Verdict = id.Verdict(verdict)
		run.FailureCategory = id.FailureCategory(category)

		if len(profile) > 0 {
			run.Profile = &tolerance.Profile{}
			if err := json.Unmarshal(profile, run.Profile); err != nil {
				return nil, fmt.Errorf("unmarshal run profile: %w", err)
			}
		}
		if len(axioms) > 0 {
			if err := json.Unmarshal(axioms, &run.Axioms); err != nil {
				return nil, fmt.Errorf("unmarshal run axioms: %w", err)
			}
		}
		if len(edgeCases) > 0 {
			if err := json.Unmarshal(edgeCases, &run.EdgeCases); err != nil {
				return nil, fmt.Errorf("unmarshal run edge cases: %w", err)
			}
		}
		if len(rejections) > 0 {
			if err := json.Unmarshal(rejections, &run.Rejections); err != nil {
				return nil, fmt.Errorf("unmarshal run rejections: %w", err)
			}
		}

		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate validation runs: %w", err)
	}
	return runs, nil
}
