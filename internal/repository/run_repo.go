package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fermentation_monitor/internal/models"
)

var (
	// ErrNotFound is returned when a run or stage does not exist.
	ErrNotFound = errors.New("not found")
	// ErrActiveRunExists is returned when activation would violate the
	// single-active-run invariant.
	ErrActiveRunExists = errors.New("another run is already active")
)

type RunSQLite struct {
	db *sql.DB
}

func NewRunSQLite(db *sql.DB) *RunSQLite { return &RunSQLite{db: db} }

const (
	insertRunSQL = `
		INSERT INTO fermentation_runs (id, name, status, current_stage_index, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	insertStageSQL = `
		INSERT INTO fermentation_stages
			(id, run_id, position, name, type, target_temp_c, duration_s,
			 target_gravity, max_duration_s, start_temp_c, ramp_time_s, max_rate_c_per_h, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	selectRunSQL = `
		SELECT id, name, status, current_stage_index, created_at, started_at, paused_at, completed_at
		FROM fermentation_runs WHERE id = ?
	`

	selectActiveRunSQL = `
		SELECT id, name, status, current_stage_index, created_at, started_at, paused_at, completed_at
		FROM fermentation_runs WHERE status = 'active' LIMIT 1
	`

	selectStagesSQL = `
		SELECT id, run_id, position, name, type, target_temp_c, duration_s,
		       target_gravity, max_duration_s, start_temp_c, ramp_time_s, max_rate_c_per_h,
		       status, start_time, end_time, target_reached_time
		FROM fermentation_stages WHERE run_id = ? ORDER BY position ASC
	`

	// The WHERE NOT EXISTS guard makes activation atomic with the
	// single-active-run check.
	activateRunSQL = `
		UPDATE fermentation_runs
		SET status = 'active', started_at = COALESCE(started_at, ?), paused_at = NULL
		WHERE id = ?
		  AND status IN ('pending', 'paused')
		  AND NOT EXISTS (SELECT 1 FROM fermentation_runs WHERE status = 'active')
	`

	latchStageSQL = `
		UPDATE fermentation_stages SET target_reached_time = ?
		WHERE id = ? AND target_reached_time IS NULL
	`
)

// Create inserts a run and its ordered stages in one transaction.
func (r *RunSQLite) Create(ctx context.Context, run models.FermentationRun) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = models.RunPending
	}
	if _, err := tx.ExecContext(ctx, insertRunSQL,
		run.ID, run.Name, run.Status, run.CurrentStageIndex, created.UTC(),
	); err != nil {
		return err
	}
	for i, st := range run.Stages {
		status := st.Status
		if status == "" {
			status = models.StagePending
		}
		if _, err := tx.ExecContext(ctx, insertStageSQL,
			st.ID, run.ID, i, st.Name, st.Type,
			st.TargetTempC, st.DurationSec, st.TargetGravity, st.MaxDurationSec,
			st.StartTempC, st.RampTimeSec, st.MaxRateCPerH, status,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *RunSQLite) Get(ctx context.Context, id string) (models.FermentationRun, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, selectRunSQL, id))
	if err != nil {
		return models.FermentationRun{}, err
	}
	run.Stages, err = r.stages(ctx, run.ID)
	return run, err
}

// GetActive returns the single active run, or ErrNotFound when none is.
func (r *RunSQLite) GetActive(ctx context.Context) (models.FermentationRun, error) {
	run, err := scanRun(r.db.QueryRowContext(ctx, selectActiveRunSQL))
	if err != nil {
		return models.FermentationRun{}, err
	}
	run.Stages, err = r.stages(ctx, run.ID)
	return run, err
}

func (r *RunSQLite) Activate(ctx context.Context, id string, now time.Time) error {
	res, err := r.db.ExecContext(ctx, activateRunSQL, now.UTC(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish "missing run" from "invariant blocked the update".
		if _, err := r.Get(ctx, id); errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return ErrActiveRunExists
	}
	return nil
}

func (r *RunSQLite) UpdateStatus(ctx context.Context, id, status string, now time.Time) error {
	ts := now.UTC()
	var column string
	switch status {
	case models.RunPaused:
		column = "paused_at"
	case models.RunCompleted:
		column = "completed_at"
	case models.RunActive:
		column = "started_at"
	default:
		return fmt.Errorf("unsupported run status %q", status)
	}
	q := fmt.Sprintf("UPDATE fermentation_runs SET status = ?, %s = ? WHERE id = ?", column)
	res, err := r.db.ExecContext(ctx, q, status, ts, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *RunSQLite) SetCurrentStage(ctx context.Context, id string, index int) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE fermentation_runs SET current_stage_index = ? WHERE id = ?", index, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *RunSQLite) StartStage(ctx context.Context, stageID string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE fermentation_stages SET status = 'running', start_time = ? WHERE id = ?",
		now.UTC(), stageID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *RunSQLite) CompleteStage(ctx context.Context, stageID string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE fermentation_stages SET status = 'completed', end_time = ? WHERE id = ?",
		now.UTC(), stageID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// LatchStage sets the one-way target-reached latch. The IS NULL guard keeps
// the first timestamp under concurrent evaluations.
func (r *RunSQLite) LatchStage(ctx context.Context, stageID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, latchStageSQL, at.UTC(), stageID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RunSQLite) stages(ctx context.Context, runID string) ([]models.Stage, error) {
	rows, err := r.db.QueryContext(ctx, selectStagesSQL, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Stage
	for rows.Next() {
		var (
			st                           models.Stage
			name                         sql.NullString
			targetTemp, targetGravity    sql.NullFloat64
			startTemp, maxRate           sql.NullFloat64
			durationS, maxDurS, rampS    sql.NullInt64
			startTime, endTime, latchedT sql.NullTime
		)
		if err := rows.Scan(
			&st.ID, &st.RunID, &st.Position, &name, &st.Type,
			&targetTemp, &durationS, &targetGravity, &maxDurS,
			&startTemp, &rampS, &maxRate,
			&st.Status, &startTime, &endTime, &latchedT,
		); err != nil {
			return nil, err
		}
		st.Name = name.String
		st.TargetTempC = targetTemp.Float64
		st.DurationSec = int(durationS.Int64)
		st.TargetGravity = targetGravity.Float64
		st.MaxDurationSec = int(maxDurS.Int64)
		st.StartTempC = startTemp.Float64
		st.RampTimeSec = int(rampS.Int64)
		st.MaxRateCPerH = maxRate.Float64
		st.StartTime = nullTimePtr(startTime)
		st.EndTime = nullTimePtr(endTime)
		st.TargetReachedTime = nullTimePtr(latchedT)
		out = append(out, st)
	}
	return out, rows.Err()
}

func scanRun(row *sql.Row) (models.FermentationRun, error) {
	var (
		run                          models.FermentationRun
		startedAt, pausedAt, doneAt  sql.NullTime
	)
	if err := row.Scan(
		&run.ID, &run.Name, &run.Status, &run.CurrentStageIndex,
		&run.CreatedAt, &startedAt, &pausedAt, &doneAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.FermentationRun{}, ErrNotFound
		}
		return models.FermentationRun{}, err
	}
	run.CreatedAt = run.CreatedAt.UTC()
	run.StartedAt = nullTimePtr(startedAt)
	run.PausedAt = nullTimePtr(pausedAt)
	run.CompletedAt = nullTimePtr(doneAt)
	return run, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
