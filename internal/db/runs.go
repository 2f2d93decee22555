package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// InsertRecordResult appends one record outcome to the run ledger
func (db *DB) InsertRecordResult(ctx context.Context, r *RecordResult) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO bill_runs (run_id, site, record_key, outcome, artifact, error)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		r.RunID, r.Site, r.RecordKey, r.Outcome, nullIfEmpty(r.Artifact), nullIfEmpty(r.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to insert record result: %w", err)
	}
	return nil
}

// ListRecordResults returns the ledger rows of one run in insertion order
func (db *DB) ListRecordResults(ctx context.Context, runID uuid.UUID) ([]RecordResult, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, run_id, site, record_key, outcome, COALESCE(artifact, ''), COALESCE(error, ''), created_at
		 FROM bill_runs WHERE run_id = $1 ORDER BY id`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list record results: %w", err)
	}
	defer rows.Close()

	var results []RecordResult
	for rows.Next() {
		var r RecordResult
		if err := rows.Scan(&r.ID, &r.RunID, &r.Site, &r.RecordKey, &r.Outcome, &r.Artifact, &r.Error, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan record result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate record results: %w", err)
	}
	return results, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
