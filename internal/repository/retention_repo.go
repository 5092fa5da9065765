package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// streamTables maps stream identifiers to their table. Every stream orders by
// the same created_at column, so retention is one generic policy.
var streamTables = map[string]string{
	StreamReadings:          "readings",
	StreamControllerState:   "controller_state",
	StreamHeartbeats:        "heartbeats",
	StreamFermentationState: "fermentation_state",
	StreamHydrometer:        "hydrometer_readings",
}

type RetentionSQLite struct {
	db *sql.DB
}

func NewRetentionSQLite(db *sql.DB) *RetentionSQLite { return &RetentionSQLite{db: db} }

// EnforceLimit keeps the keep most recent rows of a stream for one run and
// bulk-deletes everything older. The cutoff is the timestamp of the keep-th
// most recent row; rows strictly older go in a single DELETE. Within budget
// the cutoff query returns no row and the call is a no-op.
func (r *RetentionSQLite) EnforceLimit(ctx context.Context, stream, runID string, keep int) (int64, error) {
	table, ok := streamTables[stream]
	if !ok {
		return 0, fmt.Errorf("unknown telemetry stream %q", stream)
	}
	if keep <= 0 {
		return 0, fmt.Errorf("keep must be positive, got %d", keep)
	}

	var cutoff time.Time
	err := r.db.QueryRowContext(ctx, fmt.Sprintf(
		"SELECT created_at FROM %s WHERE run_id = ? ORDER BY created_at DESC LIMIT 1 OFFSET ?",
		table), runID, keep-1,
	).Scan(&cutoff)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil // fewer than keep rows; nothing to do
	}
	if err != nil {
		return 0, err
	}

	res, err := r.db.ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM %s WHERE run_id = ? AND created_at < ?", table),
		runID, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// SweepOrphans deletes rows whose partition key is NULL: writes that arrived
// before any run existed.
func (r *RetentionSQLite) SweepOrphans(ctx context.Context, stream string) (int64, error) {
	table, ok := streamTables[stream]
	if !ok {
		return 0, fmt.Errorf("unknown telemetry stream %q", stream)
	}
	res, err := r.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE run_id IS NULL", table))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PartitionKeys lists the distinct run ids present in a stream, so the
// aggressive cleanup can trim completed runs too.
func (r *RetentionSQLite) PartitionKeys(ctx context.Context, stream string) ([]string, error) {
	table, ok := streamTables[stream]
	if !ok {
		return nil, fmt.Errorf("unknown telemetry stream %q", stream)
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT DISTINCT run_id FROM %s WHERE run_id IS NOT NULL", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *RetentionSQLite) LastOrphanSweep(ctx context.Context) (time.Time, error) {
	var t time.Time
	err := r.db.QueryRowContext(ctx,
		"SELECT last_orphan_sweep FROM retention_state WHERE id = 1").Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// MarkOrphanSweep advances the persisted sweep timestamp with a compare-and-
// set on the previous value, so concurrent instances elect exactly one
// sweeper per interval.
func (r *RetentionSQLite) MarkOrphanSweep(ctx context.Context, now, prev time.Time) (bool, error) {
	if prev.IsZero() {
		res, err := r.db.ExecContext(ctx, `
			INSERT INTO retention_state (id, last_orphan_sweep) VALUES (1, ?)
			ON CONFLICT(id) DO NOTHING
		`, now.UTC())
		if err != nil {
			return false, err
		}
		n, err := res.RowsAffected()
		return n > 0, err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE retention_state SET last_orphan_sweep = ? WHERE id = 1 AND last_orphan_sweep = ?
	`, now.UTC(), prev.UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
