package models

import "time"

// Alert levels.
const (
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

// Alert types raised by the alert engine.
const (
	AlertTempDeviation   = "temp_deviation"
	AlertDeviceOffline   = "device_offline"
	AlertHydrometerStale = "hydrometer_stale"
	AlertBatteryLow      = "battery_low"
	AlertMemoryLow       = "memory_low"
	AlertStageCompleted  = "stage_completed"
	AlertRunCompleted    = "run_completed"
	AlertGravityReached  = "gravity_reached"
)

// Alert is one notification record. Rows are only ever mutated by marking
// them read.
type Alert struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Type      string    `json:"type"`
	Level     string    `json:"level"` // info | warning | critical
	Message   string    `json:"message"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}
