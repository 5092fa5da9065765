package models

// TimeRemaining units produced by the codec.
const (
	UnitHours      = "hours"
	UnitDays       = "days"
	UnitMinutes    = "minutes"
	UnitIndefinite = "indefinite"
	UnitDetailed   = "detailed"
)

// TimeRemaining is the decoded form of the device's compact "tr" field.
// Detailed payloads fill Days/Hours/Minutes; legacy payloads fill Value+Unit.
type TimeRemaining struct {
	Value   *float64 `json:"value,omitempty"`
	Days    *int     `json:"days,omitempty"`
	Hours   *int     `json:"hours,omitempty"`
	Minutes *int     `json:"minutes,omitempty"`
	Unit    string   `json:"unit,omitempty"`
	Status  string   `json:"status,omitempty"`
}

// ControlStatus is the structured form of the device's nested "cs" block.
// All fields are optional; the device omits what it doesn't know.
type ControlStatus struct {
	IsWaiting   *bool    `json:"is_waiting,omitempty"`
	WaitReason  *string  `json:"wait_reason,omitempty"`
	WaitSeconds *float64 `json:"wait_seconds,omitempty"`
	WaitDisplay *string  `json:"wait_display,omitempty"`
}

// CanonicalState is the fully-expanded, version-independent representation of
// one fermentation-state posting. Nil pointers mean "not reported"; the
// codec never invents values for absent fields (unknown is not false).
type CanonicalState struct {
	ConfigName        *string        `json:"config_name,omitempty"`
	CurrentStageIndex *int           `json:"current_stage_index,omitempty"`
	StageType         *string        `json:"stage_type,omitempty"`
	Status            *string        `json:"status,omitempty"`
	Message           *string        `json:"message,omitempty"`
	TargetReached     *bool          `json:"target_reached,omitempty"`
	RampProgress      *float64       `json:"ramp_progress,omitempty"`
	TimeRemaining     *TimeRemaining `json:"time_remaining,omitempty"`
	ControlStatus     *ControlStatus `json:"control_status,omitempty"`

	// Extra carries unrecognized keys through unchanged, for forward
	// compatibility with firmware fields this server predates.
	Extra map[string]any `json:"extra,omitempty"`
}
