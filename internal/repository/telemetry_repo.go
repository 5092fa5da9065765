package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"fermentation_monitor/internal/models"
)

type TelemetrySQLite struct {
	db *sql.DB
}

func NewTelemetrySQLite(db *sql.DB) *TelemetrySQLite { return &TelemetrySQLite{db: db} }

// nullRunID maps "no run" to a NULL partition key (an orphan row).
func nullRunID(runID string) any {
	if runID == "" {
		return nil
	}
	return runID
}

func stamped(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

// ---- readings ----

func (r *TelemetrySQLite) InsertReading(ctx context.Context, rd models.Reading) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO readings (run_id, fridge_temp_c, fermenter_temp_c, target_temp_c, gravity, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, nullRunID(rd.RunID), rd.FridgeTempC, rd.FermenterTempC, rd.TargetTempC, rd.Gravity, stamped(rd.CreatedAt))
	return err
}

const selectReadingSQL = `
	SELECT id, run_id, fridge_temp_c, fermenter_temp_c, target_temp_c, gravity, created_at
	FROM readings WHERE run_id = ?
`

func (r *TelemetrySQLite) LatestReading(ctx context.Context, runID string) (models.Reading, error) {
	row := r.db.QueryRowContext(ctx, selectReadingSQL+" ORDER BY created_at DESC LIMIT 1", runID)
	return scanReading(row.Scan)
}

func (r *TelemetrySQLite) ReadingsSince(ctx context.Context, runID string, since time.Time) ([]models.Reading, error) {
	rows, err := r.db.QueryContext(ctx,
		selectReadingSQL+" AND created_at >= ? ORDER BY created_at ASC", runID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Reading, 0, 64)
	for rows.Next() {
		rd, err := scanReading(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rd)
	}
	return out, rows.Err()
}

func scanReading(scan func(...any) error) (models.Reading, error) {
	var (
		rd    models.Reading
		runID sql.NullString
	)
	if err := scan(&rd.ID, &runID, &rd.FridgeTempC, &rd.FermenterTempC, &rd.TargetTempC, &rd.Gravity, &rd.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Reading{}, ErrNotFound
		}
		return models.Reading{}, err
	}
	rd.RunID = runID.String
	rd.CreatedAt = rd.CreatedAt.UTC()
	return rd, nil
}

// ---- controller state ----

func (r *TelemetrySQLite) InsertControllerState(ctx context.Context, cs models.ControllerState) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO controller_state (run_id, setpoint_c, cooling, heating, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, nullRunID(cs.RunID), cs.SetpointC, cs.Cooling, cs.Heating, stamped(cs.CreatedAt))
	return err
}

func (r *TelemetrySQLite) LatestControllerState(ctx context.Context, runID string) (models.ControllerState, error) {
	var (
		cs  models.ControllerState
		rid sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, run_id, setpoint_c, cooling, heating, created_at
		FROM controller_state WHERE run_id = ? ORDER BY created_at DESC LIMIT 1
	`, runID).Scan(&cs.ID, &rid, &cs.SetpointC, &cs.Cooling, &cs.Heating, &cs.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ControllerState{}, ErrNotFound
		}
		return models.ControllerState{}, err
	}
	cs.RunID = rid.String
	cs.CreatedAt = cs.CreatedAt.UTC()
	return cs, nil
}

// ---- heartbeats ----

func (r *TelemetrySQLite) InsertHeartbeat(ctx context.Context, hb models.Heartbeat) error {
	// control_status is stored as JSON text, like any other opaque blob.
	var controlPtr *string
	if hb.ControlStatus != nil {
		if b, err := json.Marshal(hb.ControlStatus); err == nil {
			s := string(b)
			controlPtr = &s
		}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO heartbeats (run_id, uptime_s, free_heap, temp_fermenter, temp_fridge, control_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, nullRunID(hb.RunID), hb.UptimeSec, hb.FreeHeap, hb.TempFermenter, hb.TempFridge, controlPtr, stamped(hb.CreatedAt))
	return err
}

func (r *TelemetrySQLite) LatestHeartbeat(ctx context.Context, runID string) (models.Heartbeat, error) {
	var (
		hb      models.Heartbeat
		rid     sql.NullString
		control sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, run_id, uptime_s, free_heap, temp_fermenter, temp_fridge, control_status, created_at
		FROM heartbeats WHERE run_id = ? ORDER BY created_at DESC LIMIT 1
	`, runID).Scan(&hb.ID, &rid, &hb.UptimeSec, &hb.FreeHeap, &hb.TempFermenter, &hb.TempFridge, &control, &hb.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Heartbeat{}, ErrNotFound
		}
		return models.Heartbeat{}, err
	}
	hb.RunID = rid.String
	hb.CreatedAt = hb.CreatedAt.UTC()
	if control.Valid && control.String != "" {
		var cs models.ControlStatus
		if err := json.Unmarshal([]byte(control.String), &cs); err == nil {
			hb.ControlStatus = &cs
		}
	}
	return hb, nil
}

// ---- fermentation state snapshots ----

func (r *TelemetrySQLite) InsertSnapshot(ctx context.Context, s models.FermentationStateSnapshot) error {
	stateJSON, err := json.Marshal(s.State)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO fermentation_state (run_id, state, status, target_reached, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, nullRunID(s.RunID), string(stateJSON), s.Status, nullBool(s.TargetReached), stamped(s.CreatedAt))
	return err
}

func (r *TelemetrySQLite) LatestSnapshot(ctx context.Context, runID string) (models.FermentationStateSnapshot, error) {
	var (
		s       models.FermentationStateSnapshot
		rid     sql.NullString
		status  sql.NullString
		reached sql.NullBool
		state   string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, run_id, state, status, target_reached, created_at
		FROM fermentation_state WHERE run_id = ? ORDER BY created_at DESC LIMIT 1
	`, runID).Scan(&s.ID, &rid, &state, &status, &reached, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.FermentationStateSnapshot{}, ErrNotFound
		}
		return models.FermentationStateSnapshot{}, err
	}
	s.RunID = rid.String
	s.Status = status.String
	if reached.Valid {
		b := reached.Bool
		s.TargetReached = &b
	}
	s.CreatedAt = s.CreatedAt.UTC()
	if state != "" {
		var m map[string]any
		if err := json.Unmarshal([]byte(state), &m); err == nil {
			s.State = m
		}
	}
	return s, nil
}

// ---- hydrometer ----

func (r *TelemetrySQLite) InsertHydrometer(ctx context.Context, h models.HydrometerReading) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO hydrometer_readings (run_id, temperature_c, gravity, battery_v, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, nullRunID(h.RunID), h.TemperatureC, h.Gravity, h.BatteryV, stamped(h.CreatedAt))
	return err
}

func (r *TelemetrySQLite) LatestHydrometer(ctx context.Context, runID string) (models.HydrometerReading, error) {
	var (
		h   models.HydrometerReading
		rid sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, run_id, temperature_c, gravity, battery_v, created_at
		FROM hydrometer_readings WHERE run_id = ? ORDER BY created_at DESC LIMIT 1
	`, runID).Scan(&h.ID, &rid, &h.TemperatureC, &h.Gravity, &h.BatteryV, &h.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.HydrometerReading{}, ErrNotFound
		}
		return models.HydrometerReading{}, err
	}
	h.RunID = rid.String
	h.CreatedAt = h.CreatedAt.UTC()
	return h, nil
}

func nullBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}
