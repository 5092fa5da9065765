package stage

import (
	"time"

	"fermentation_monitor/internal/models"
)

// DefaultToleranceC is the band around the target within which a temperature
// stage counts as "at target".
const DefaultToleranceC = 0.5

// Stage statuses reported by the engine.
const (
	StatusWaiting = "waiting"
	StatusRunning = "running"
)

// Evaluation is the derived view of one stage at one instant. Time remaining
// is always computed from the latch and the stage parameters, never stored,
// so the displayed value cannot drift from the true one.
type Evaluation struct {
	Status          string
	TargetReached   bool
	LatchedAt       *time.Time
	Changed         bool // the latch fired during this evaluation
	TimeRemaining   time.Duration
	RampProgress    float64 // meaningful for ramp stages only
	EffectiveTarget float64
}

// Evaluate derives the current state of a stage from the stage definition,
// the latest sensor reading and the current time.
//
// The target-reached timestamp is a one-way latch: once set it is never
// re-evaluated, cleared or overwritten. Ramp stages do not latch at all;
// their remaining time follows the wall clock.
func Evaluate(st models.Stage, reading models.Reading, now time.Time, toleranceC float64) Evaluation {
	if toleranceC <= 0 {
		toleranceC = DefaultToleranceC
	}
	if st.Type == models.StageRamp {
		return evaluateRamp(st, now)
	}
	return evaluateLatched(st, reading, now, toleranceC)
}

// evaluateRamp interpolates the target temperature linearly between
// StartTempC and TargetTempC over [StartTime, StartTime+RampTime], clamping
// progress to [0,1].
func evaluateRamp(st models.Stage, now time.Time) Evaluation {
	rampTime := time.Duration(st.RampTimeSec) * time.Second

	var elapsed time.Duration
	if st.StartTime != nil {
		elapsed = now.Sub(*st.StartTime)
	}

	progress := 0.0
	switch {
	case rampTime <= 0 || elapsed >= rampTime:
		progress = 1
	case elapsed <= 0:
		progress = 0
	default:
		progress = float64(elapsed) / float64(rampTime)
	}

	remaining := rampTime - elapsed
	if remaining < 0 {
		remaining = 0
	}

	return Evaluation{
		Status:          StatusRunning,
		TimeRemaining:   remaining,
		RampProgress:    progress,
		EffectiveTarget: st.StartTempC + (st.TargetTempC-st.StartTempC)*progress,
	}
}

// evaluateLatched handles temperature, gravity and gravity_time stages.
func evaluateLatched(st models.Stage, reading models.Reading, now time.Time, toleranceC float64) Evaluation {
	ev := Evaluation{EffectiveTarget: st.TargetTempC}

	if st.TargetReachedTime != nil {
		// Latch already set: idempotent, never re-evaluated.
		ev.TargetReached = true
		ev.LatchedAt = st.TargetReachedTime
		ev.Status = StatusRunning
		ev.TimeRemaining = remainingAfterLatch(st, *st.TargetReachedTime, now)
		return ev
	}

	if conditionMet(st, reading, toleranceC) {
		latched := now
		ev.TargetReached = true
		ev.LatchedAt = &latched
		ev.Changed = true
		ev.Status = StatusRunning
		ev.TimeRemaining = remainingAfterLatch(st, latched, now)
		return ev
	}

	ev.Status = StatusWaiting
	ev.TimeRemaining = remainingBeforeLatch(st, now)
	return ev
}

// conditionMet reports whether the stage's target condition holds for the
// given reading.
func conditionMet(st models.Stage, reading models.Reading, toleranceC float64) bool {
	switch st.Type {
	case models.StageGravity:
		return reading.Gravity > 0 && reading.Gravity <= st.TargetGravity
	case models.StageGravityTime:
		if reading.Gravity > 0 && reading.Gravity <= st.TargetGravity {
			return true
		}
		// The time cap counts as reached: a stalled gravity must not hold
		// the run forever.
		if st.StartTime != nil && st.MaxDurationSec > 0 {
			return stageElapsed(st, reading.CreatedAt) >= time.Duration(st.MaxDurationSec)*time.Second
		}
		return false
	default: // temperature
		diff := reading.FermenterTempC - st.TargetTempC
		if diff < 0 {
			diff = -diff
		}
		return diff <= toleranceC
	}
}

func stageElapsed(st models.Stage, now time.Time) time.Duration {
	if st.StartTime == nil {
		return 0
	}
	return now.Sub(*st.StartTime)
}

// remainingBeforeLatch reports the full configured duration: the countdown
// does not start until the target is reached.
func remainingBeforeLatch(st models.Stage, now time.Time) time.Duration {
	switch st.Type {
	case models.StageGravity:
		return 0 // condition-only, no fixed duration
	case models.StageGravityTime:
		rem := time.Duration(st.MaxDurationSec)*time.Second - stageElapsed(st, now)
		if rem < 0 {
			rem = 0
		}
		return rem
	default:
		return time.Duration(st.DurationSec) * time.Second
	}
}

// remainingAfterLatch counts down from the latch timestamp, floored at zero.
func remainingAfterLatch(st models.Stage, latched, now time.Time) time.Duration {
	switch st.Type {
	case models.StageGravity:
		return 0
	case models.StageGravityTime:
		return 0
	default:
		rem := time.Duration(st.DurationSec)*time.Second - now.Sub(latched)
		if rem < 0 {
			rem = 0
		}
		return rem
	}
}

// Complete reports whether the stage's work is finished at the given instant:
// the latch is set and the post-latch countdown has elapsed. Gravity stages
// complete as soon as they latch; ramp stages complete when the ramp window
// has fully elapsed.
func Complete(st models.Stage, now time.Time) bool {
	if st.Type == models.StageRamp {
		if st.StartTime == nil {
			return false
		}
		return now.Sub(*st.StartTime) >= time.Duration(st.RampTimeSec)*time.Second
	}
	if st.TargetReachedTime == nil {
		return false
	}
	switch st.Type {
	case models.StageGravity, models.StageGravityTime:
		return true
	default:
		return now.Sub(*st.TargetReachedTime) >= time.Duration(st.DurationSec)*time.Second
	}
}
