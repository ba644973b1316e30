// ABOUTME: Execution run persistence methods for the SQLite store
// ABOUTME: Run IDs are immutable once assigned; status writes come from a single writer

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CreateRun inserts a new run record.
func (s *SQLiteStore) CreateRun(ctx context.Context, r *Run) error {
	inputs, err := json.Marshal(r.Inputs)
	if err != nil {
		return fmt.Errorf("marshaling inputs: %w", err)
	}

	query := `
		INSERT INTO runs (id, workflow_id, workflow_version, session_id, tenant_id,
			inputs, status, result, error, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL, '', ?, NULL)
	`
	_, err = s.db.ExecContext(ctx, query,
		r.ID,
		r.WorkflowID,
		r.WorkflowVersion,
		r.SessionID,
		r.TenantID,
		string(inputs),
		string(r.Status),
		r.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	query := `
		SELECT id, workflow_id, workflow_version, session_id, tenant_id,
			inputs, status, result, error, started_at, ended_at
		FROM runs WHERE id = ?
	`
	return scanRun(s.db.QueryRowContext(ctx, query, id))
}

// UpdateRun writes the run's current status, result and error.
// The executor serializes transitions per run; the store does not re-check
// monotonicity beyond refusing updates to unknown runs.
func (s *SQLiteStore) UpdateRun(ctx context.Context, r *Run) error {
	var result *string
	if r.Result != nil {
		data, err := json.Marshal(r.Result)
		if err != nil {
			return fmt.Errorf("marshaling result: %w", err)
		}
		str := string(data)
		result = &str
	}
	var endedAt *string
	if r.EndedAt != nil {
		str := r.EndedAt.UTC().Format(time.RFC3339Nano)
		endedAt = &str
	}

	query := `UPDATE runs SET status = ?, result = ?, error = ?, ended_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, string(r.Status), result, r.Error, endedAt, r.ID)
	if err != nil {
		return fmt.Errorf("updating run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking update result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRunsByStatus returns all runs currently in the given status,
// oldest first. Used by startup recovery to fail orphaned running runs.
func (s *SQLiteStore) ListRunsByStatus(ctx context.Context, status RunStatus) ([]*Run, error) {
	query := `
		SELECT id, workflow_id, workflow_version, session_id, tenant_id,
			inputs, status, result, error, started_at, ended_at
		FROM runs WHERE status = ? ORDER BY started_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		r                  Run
		inputs, status     string
		result, endedAt    *string
		startedAt          string
	)
	err := row.Scan(&r.ID, &r.WorkflowID, &r.WorkflowVersion, &r.SessionID, &r.TenantID,
		&inputs, &status, &result, &r.Error, &startedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}

	r.Status = RunStatus(status)
	if err := json.Unmarshal([]byte(inputs), &r.Inputs); err != nil {
		return nil, fmt.Errorf("unmarshaling inputs: %w", err)
	}
	if result != nil {
		if err := json.Unmarshal([]byte(*result), &r.Result); err != nil {
			return nil, fmt.Errorf("unmarshaling result: %w", err)
		}
	}
	if r.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if endedAt != nil {
		t, err := parseTime(*endedAt)
		if err != nil {
			return nil, err
		}
		r.EndedAt = &t
	}
	return &r, nil
}
