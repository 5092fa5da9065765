package service

import "time"

// Config carries the tuning knobs the services read. Values come from
// configs/config.yml; zero fields fall back to the defaults below.
type Config struct {
	// Stage engine
	ToleranceC float64 // "at target" band for temperature stages

	// Alert thresholds
	CriticalToleranceC   float64       // deviation beyond this is critical
	OfflineAfter         time.Duration // heartbeat age before device counts as offline
	HydrometerStaleAfter time.Duration
	BatteryLowV          float64
	FreeHeapMin          int64
	Cooldown             time.Duration // dedup window for periodic checks

	// Retention: rows to keep per stream, per run
	ReadingsKeep   int
	ControllerKeep int
	HeartbeatKeep  int
	SnapshotKeep   int
	HydrometerKeep int

	OrphanSweepEvery time.Duration
}

// DefaultConfig returns the per-stream and threshold defaults. The retention
// counts bound each stream to roughly one day to one week of typical posting
// frequency.
func DefaultConfig() Config {
	return Config{
		ToleranceC:           0.5,
		CriticalToleranceC:   2.0,
		OfflineAfter:         120 * time.Second,
		HydrometerStaleAfter: 30 * time.Minute,
		BatteryLowV:          3.3,
		FreeHeapMin:          10 * 1024,
		Cooldown:             30 * time.Minute,
		ReadingsKeep:         200,
		ControllerKeep:       200,
		HeartbeatKeep:        50,
		SnapshotKeep:         100,
		HydrometerKeep:       500,
		OrphanSweepEvery:     time.Hour,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ToleranceC <= 0 {
		c.ToleranceC = d.ToleranceC
	}
	if c.CriticalToleranceC <= 0 {
		c.CriticalToleranceC = d.CriticalToleranceC
	}
	if c.OfflineAfter <= 0 {
		c.OfflineAfter = d.OfflineAfter
	}
	if c.HydrometerStaleAfter <= 0 {
		c.HydrometerStaleAfter = d.HydrometerStaleAfter
	}
	if c.BatteryLowV <= 0 {
		c.BatteryLowV = d.BatteryLowV
	}
	if c.FreeHeapMin <= 0 {
		c.FreeHeapMin = d.FreeHeapMin
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.ReadingsKeep <= 0 {
		c.ReadingsKeep = d.ReadingsKeep
	}
	if c.ControllerKeep <= 0 {
		c.ControllerKeep = d.ControllerKeep
	}
	if c.HeartbeatKeep <= 0 {
		c.HeartbeatKeep = d.HeartbeatKeep
	}
	if c.SnapshotKeep <= 0 {
		c.SnapshotKeep = d.SnapshotKeep
	}
	if c.HydrometerKeep <= 0 {
		c.HydrometerKeep = d.HydrometerKeep
	}
	if c.OrphanSweepEvery <= 0 {
		c.OrphanSweepEvery = d.OrphanSweepEvery
	}
	return c
}
