package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/graphseed/pkg/models"
)

// ErrNotFound is returned by GetRun for unknown run IDs.
var ErrNotFound = errors.New("run not found")

// Record stores a finished run and its stage trace. Recording the same ID
// twice replaces the earlier entry.
func (db *DB) Record(ctx context.Context, run models.RunRecord) error {
	if run.ID == "" {
		return errors.New("record run: empty id")
	}
	return db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM stages WHERE run_id = ?`, run.ID); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, run.ID); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO runs (id, workflow, usecase, status, output, error, nodes_removed, started_at, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, run.ID, run.Workflow, run.Usecase, string(run.Status), run.Output, run.Error,
			run.NodesRemoved, formatTime(run.StartedAt), run.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("record run: %w", err)
		}

		for _, s := range run.Stages {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO stages (run_id, idx, name, status, output, error, duration_ms)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, run.ID, s.Index, s.Name, string(s.Status), s.Output, s.Error, s.Duration.Milliseconds())
			if err != nil {
				return fmt.Errorf("record stage %s: %w", s.Name, err)
			}
		}
		return nil
	})
}

// GetRun retrieves a run and its stages by ID.
func (db *DB) GetRun(ctx context.Context, id string) (*models.RunRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	row := db.conn.QueryRowContext(ctx, `
		SELECT id, workflow, usecase, status, output, error, nodes_removed, started_at, duration_ms
		FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT idx, name, status, output, error, duration_ms
		FROM stages WHERE run_id = ? ORDER BY idx
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get stages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s models.StageRecord
		var output, errText sql.NullString
		var ms int64
		if err := rows.Scan(&s.Index, &s.Name, &s.Status, &output, &errText, &ms); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		s.Output = output.String
		s.Error = errText.String
		s.Duration = time.Duration(ms) * time.Millisecond
		run.Stages = append(run.Stages, s)
	}
	return run, rows.Err()
}

// ListRuns returns the most recent runs, newest first, without their stage
// traces. A limit of zero or less returns every run.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if limit <= 0 {
		limit = -1
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, workflow, usecase, status, output, error, nodes_removed, started_at, duration_ms
		FROM runs ORDER BY started_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// PurgeOldRuns deletes runs started before now minus olderThan.
// Returns the number of runs deleted.
func (db *DB) PurgeOldRuns(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := formatTime(time.Now().Add(-olderThan))

	var count int64
	err := db.Transaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			DELETE FROM stages WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)
		`, cutoff)
		if err != nil {
			return fmt.Errorf("purge old stages: %w", err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("purge old runs: %w", err)
		}
		count, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*models.RunRecord, error) {
	var run models.RunRecord
	var usecase, output, errText sql.NullString
	var startedAt string
	var ms int64
	err := row.Scan(&run.ID, &run.Workflow, &usecase, &run.Status, &output, &errText,
		&run.NodesRemoved, &startedAt, &ms)
	if err != nil {
		return nil, err
	}
	run.Usecase = usecase.String
	run.Output = output.String
	run.Error = errText.String
	run.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("run %s: parse started_at: %w", run.ID, err)
	}
	run.Duration = time.Duration(ms) * time.Millisecond
	return &run, nil
}
