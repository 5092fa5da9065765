package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens/creates the SQLite DB file and ensures tables exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// Conservative pool settings for SQLite
	db.SetMaxOpenConns(1) // SQLite is not great with many writers
	db.SetMaxIdleConns(1)

	// Pragmas to improve reliability
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	// Fail fast if the DB cannot be reached
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

const sqliteDriverName = "sqlite"

const schemaRuns = `
CREATE TABLE IF NOT EXISTS fermentation_runs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'pending',
    current_stage_index INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL,
    started_at TIMESTAMP,
    paused_at TIMESTAMP,
    completed_at TIMESTAMP
);
`

const schemaStages = `
CREATE TABLE IF NOT EXISTS fermentation_stages (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES fermentation_runs(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    name TEXT,
    type TEXT NOT NULL,
    target_temp_c REAL,
    duration_s INTEGER,
    target_gravity REAL,
    max_duration_s INTEGER,
    start_temp_c REAL,
    ramp_time_s INTEGER,
    max_rate_c_per_h REAL,
    status TEXT NOT NULL DEFAULT 'pending',
    start_time TIMESTAMP,
    end_time TIMESTAMP,
    target_reached_time TIMESTAMP
);
`

const schemaReadings = `
CREATE TABLE IF NOT EXISTS readings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT,
    fridge_temp_c REAL,
    fermenter_temp_c REAL,
    target_temp_c REAL,
    gravity REAL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_readings_run_created ON readings(run_id, created_at);
`

const schemaControllerState = `
CREATE TABLE IF NOT EXISTS controller_state (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT,
    setpoint_c REAL,
    cooling BOOLEAN NOT NULL DEFAULT 0,
    heating BOOLEAN NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_controller_state_run_created ON controller_state(run_id, created_at);
`

const schemaHeartbeats = `
CREATE TABLE IF NOT EXISTS heartbeats (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT,
    uptime_s INTEGER,
    free_heap INTEGER,
    temp_fermenter REAL,
    temp_fridge REAL,
    control_status TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_run_created ON heartbeats(run_id, created_at);
`

const schemaFermentationState = `
CREATE TABLE IF NOT EXISTS fermentation_state (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT,
    state TEXT NOT NULL,
    status TEXT,
    target_reached BOOLEAN,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fermentation_state_run_created ON fermentation_state(run_id, created_at);
`

const schemaHydrometer = `
CREATE TABLE IF NOT EXISTS hydrometer_readings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT,
    temperature_c REAL,
    gravity REAL,
    battery_v REAL,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_hydrometer_run_created ON hydrometer_readings(run_id, created_at);
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    run_id TEXT NOT NULL,
    type TEXT NOT NULL,
    level TEXT NOT NULL,
    message TEXT NOT NULL,
    is_read BOOLEAN NOT NULL DEFAULT 0,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_alerts_dedup ON alerts(run_id, type, level, is_read, created_at);
`

const schemaSettings = `
CREATE TABLE IF NOT EXISTS system_settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

const schemaRetentionState = `
CREATE TABLE IF NOT EXISTS retention_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    last_orphan_sweep TIMESTAMP NOT NULL
);
`

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		// In case of panic, rollback to avoid leaving an open transaction
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaRuns,
		schemaStages,
		schemaReadings,
		schemaControllerState,
		schemaHeartbeats,
		schemaFermentationState,
		schemaHydrometer,
		schemaAlerts,
		schemaSettings,
		schemaRetentionState,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
