package models

import "time"

// Reading is one immutable temperature/gravity sample posted by the device.
type Reading struct {
	ID             int64     `json:"id"`
	RunID          string    `json:"run_id,omitempty"` // empty when orphaned
	FridgeTempC    float64   `json:"fridge_temp_c"`
	FermenterTempC float64   `json:"fermenter_temp_c"`
	TargetTempC    float64   `json:"target_temp_c"`
	Gravity        float64   `json:"gravity,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// ControllerState is one immutable relay/setpoint snapshot.
type ControllerState struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id,omitempty"`
	SetpointC float64   `json:"setpoint_c"`
	Cooling   bool      `json:"cooling"`
	Heating   bool      `json:"heating"`
	CreatedAt time.Time `json:"created_at"`
}

// Heartbeat is a periodic device liveness report. ControlStatus mirrors a
// subset of the canonical codec output.
type Heartbeat struct {
	ID            int64          `json:"id"`
	RunID         string         `json:"run_id,omitempty"`
	UptimeSec     int64          `json:"uptime_sec"`
	FreeHeap      int64          `json:"free_heap"`
	TempFermenter float64        `json:"temp_fermenter"`
	TempFridge    float64        `json:"temp_fridge"`
	ControlStatus *ControlStatus `json:"control_status,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// FermentationStateSnapshot holds the full canonical decoded record for one
// device posting. The dashboard's "current state" is the most recent snapshot
// for the active run.
type FermentationStateSnapshot struct {
	ID            int64          `json:"id"`
	RunID         string         `json:"run_id,omitempty"`
	State         map[string]any `json:"state"`
	Status        string         `json:"status,omitempty"`
	TargetReached *bool          `json:"target_reached,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// HydrometerReading is one floating-hydrometer sample. RunID is empty when no
// run was active at post time (an orphan row, swept later).
type HydrometerReading struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id,omitempty"`
	TemperatureC float64   `json:"temperature_c"`
	Gravity      float64   `json:"gravity"`
	BatteryV     float64   `json:"battery_v"`
	CreatedAt    time.Time `json:"created_at"`
}
