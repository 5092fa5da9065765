package repository

import (
	"context"
	"database/sql"
	"time"

	"fermentation_monitor/internal/models"
	"fermentation_monitor/internal/repository/db"
)

// Telemetry stream identifiers used by the retention store. Each maps to one
// append-only table partitioned by run id.
const (
	StreamReadings          = "readings"
	StreamControllerState   = "controller_state"
	StreamHeartbeats        = "heartbeats"
	StreamFermentationState = "fermentation_state"
	StreamHydrometer        = "hydrometer_readings"
)

type RunRepo interface {
	Create(ctx context.Context, run models.FermentationRun) error
	Get(ctx context.Context, id string) (models.FermentationRun, error)
	GetActive(ctx context.Context) (models.FermentationRun, error)
	// Activate transitions a pending/paused run to active. It fails with
	// ErrActiveRunExists when another run is already active.
	Activate(ctx context.Context, id string, now time.Time) error
	UpdateStatus(ctx context.Context, id, status string, now time.Time) error
	SetCurrentStage(ctx context.Context, id string, index int) error

	StartStage(ctx context.Context, stageID string, now time.Time) error
	CompleteStage(ctx context.Context, stageID string, now time.Time) error
	// LatchStage sets target_reached_time iff it is still NULL and reports
	// whether this call set it. The latch is never overwritten.
	LatchStage(ctx context.Context, stageID string, at time.Time) (bool, error)
}

type TelemetryRepo interface {
	InsertReading(ctx context.Context, r models.Reading) error
	LatestReading(ctx context.Context, runID string) (models.Reading, error)
	ReadingsSince(ctx context.Context, runID string, since time.Time) ([]models.Reading, error)

	InsertControllerState(ctx context.Context, cs models.ControllerState) error
	LatestControllerState(ctx context.Context, runID string) (models.ControllerState, error)

	InsertHeartbeat(ctx context.Context, hb models.Heartbeat) error
	LatestHeartbeat(ctx context.Context, runID string) (models.Heartbeat, error)

	InsertSnapshot(ctx context.Context, s models.FermentationStateSnapshot) error
	LatestSnapshot(ctx context.Context, runID string) (models.FermentationStateSnapshot, error)

	InsertHydrometer(ctx context.Context, h models.HydrometerReading) error
	LatestHydrometer(ctx context.Context, runID string) (models.HydrometerReading, error)
}

type RetentionRepo interface {
	// EnforceLimit deletes the oldest rows of a stream for one run beyond
	// the keep most recent. Idempotent; re-running within budget is a no-op.
	EnforceLimit(ctx context.Context, stream, runID string, keep int) (int64, error)
	// SweepOrphans deletes rows with no run attached.
	SweepOrphans(ctx context.Context, stream string) (int64, error)
	// PartitionKeys lists the distinct run ids present in a stream.
	PartitionKeys(ctx context.Context, stream string) ([]string, error)
	// LastOrphanSweep reads the persisted sweep timestamp (zero when never).
	LastOrphanSweep(ctx context.Context) (time.Time, error)
	// MarkOrphanSweep advances the persisted sweep timestamp from prev to
	// now, reporting false when another instance got there first.
	MarkOrphanSweep(ctx context.Context, now, prev time.Time) (bool, error)
}

type AlertRepo interface {
	// Insert persists an alert unless an unread alert with the same
	// (run, type, level) exists within the cooldown window. The cooldown
	// check and the insert are a single statement, so concurrent raisers
	// cannot both pass the check. Reports whether the row was written.
	Insert(ctx context.Context, a models.Alert, cooldown time.Duration) (bool, error)
	Unread(ctx context.Context, runID string) ([]models.Alert, error)
	MarkRead(ctx context.Context, id string) error
}

type SettingsRepo interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

type Repository struct {
	Runs      RunRepo
	Telemetry TelemetryRepo
	Retention RetentionRepo
	Alerts    AlertRepo
	Settings  SettingsRepo
}

func NewRepository(sqlDB *sql.DB) *Repository {
	return &Repository{
		Runs:      NewRunSQLite(sqlDB),
		Telemetry: NewTelemetrySQLite(sqlDB),
		Retention: NewRetentionSQLite(sqlDB),
		Alerts:    NewAlertSQLite(sqlDB),
		Settings:  NewSettingsSQLite(sqlDB),
	}
}

// InitDB re-exports the sqlite bootstrap for callers wiring the service.
func InitDB(path string) (*sql.DB, error) {
	return db.InitDB(path)
}
