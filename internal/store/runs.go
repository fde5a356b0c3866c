package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// Run statuses for the scan_runs audit table.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusPartial   = "partial"
	RunStatusFailed    = "failed"
	RunStatusSkipped   = "skipped"
)

// StartRun writes the audit row for a new invocation and returns its id.
func (s *Store) StartRun(ctx context.Context, jobName string) (int64, error) {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	var id int64
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO scan_runs (job_name, status)
		VALUES ($1, $2)
		RETURNING id`, jobName, RunStatusRunning).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("start run %s: %w", jobName, err)
	}

	return id, nil
}

// FinishRun closes the audit row with a terminal status and arbitrary JSON
// details (typically the serialized run summary).
func (s *Store) FinishRun(ctx context.Context, runID int64, status string, details any) error {
	ctx, cancel := s.queryCtx(ctx)
	defer cancel()

	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal run details: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE scan_runs SET
			status      = $2,
			finished_at = NOW(),
			details     = $3
		WHERE id = $1`, runID, status, json.RawMessage(raw))
	if err != nil {
		return fmt.Errorf("finish run %d: %w", runID, err)
	}

	return nil
}
