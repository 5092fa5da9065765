package models

import "time"

// Run statuses.
const (
	RunPending   = "pending"
	RunActive    = "active"
	RunPaused    = "paused"
	RunCompleted = "completed"
)

// Stage types.
const (
	StageTemperature = "temperature"
	StageGravity     = "gravity"
	StageGravityTime = "gravity_time"
	StageRamp        = "ramp"
)

// Stage statuses.
const (
	StagePending   = "pending"
	StageRunning   = "running"
	StageCompleted = "completed"
)

// FermentationRun is one fermentation attempt with an ordered list of stages.
// At most one run is active at a time, system-wide.
type FermentationRun struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	Status            string     `json:"status"` // pending | active | paused | completed
	CurrentStageIndex int        `json:"current_stage_index"`
	Stages            []Stage    `json:"stages,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	PausedAt          *time.Time `json:"paused_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// Stage is one phase of a run. TargetReachedTime is a latch: set at most
// once, never cleared or overwritten.
type Stage struct {
	ID       string `json:"id"`
	RunID    string `json:"run_id"`
	Position int    `json:"position"`
	Name     string `json:"name,omitempty"`
	Type     string `json:"type"` // temperature | gravity | gravity_time | ramp

	TargetTempC    float64 `json:"target_temp_c,omitempty"`
	DurationSec    int     `json:"duration_sec,omitempty"`
	TargetGravity  float64 `json:"target_gravity,omitempty"`
	MaxDurationSec int     `json:"max_duration_sec,omitempty"`
	StartTempC     float64 `json:"start_temp_c,omitempty"`
	RampTimeSec    int     `json:"ramp_time_sec,omitempty"`
	MaxRateCPerH   float64 `json:"max_rate_c_per_h,omitempty"`

	Status            string     `json:"status"` // pending | running | completed
	StartTime         *time.Time `json:"start_time,omitempty"`
	EndTime           *time.Time `json:"end_time,omitempty"`
	TargetReachedTime *time.Time `json:"target_reached_time,omitempty"`
}
