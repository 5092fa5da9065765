package service

import (
	"context"
	"errors"
	"time"

	"fermentation_monitor/internal/codec"
	"fermentation_monitor/internal/logger"
	"fermentation_monitor/internal/models"
	"fermentation_monitor/internal/repository"
	"fermentation_monitor/internal/stage"
)

// ReadingInput is one device temperature/gravity post. RunID may be empty:
// the currently active run is inferred, and with no active run the row is
// persisted as an orphan rather than rejected.
type ReadingInput struct {
	RunID          string
	FridgeTempC    float64
	FermenterTempC float64
	TargetTempC    float64
	Gravity        float64
}

type ControllerStateInput struct {
	RunID     string
	SetpointC float64
	Cooling   bool
	Heating   bool
}

type HeartbeatInput struct {
	RunID         string
	UptimeSec     int64
	FreeHeap      int64
	TempFermenter float64
	TempFridge    float64
	// ControlStatus arrives in the device's compact encoding and is expanded
	// by the codec before persisting.
	ControlStatus map[string]any
}

type HydrometerInput struct {
	RunID        string
	TemperatureC float64
	Gravity      float64
	BatteryV     float64
}

// IngestService runs the write path: decode, persist, evaluate the stage
// engine, trim retention, evaluate alert checks. Retention and checks are
// best-effort and never fail the triggering write.
type IngestService struct {
	telemetry repository.TelemetryRepo
	runRepo   repository.RunRepo
	retention Retention
	alerts    Alerts
	cfg       Config
	log       *logger.Logger
	now       func() time.Time
}

func NewIngestService(
	telemetry repository.TelemetryRepo,
	runRepo repository.RunRepo,
	retention Retention,
	alerts Alerts,
	cfg Config,
	log *logger.Logger,
) *IngestService {
	return &IngestService{
		telemetry: telemetry,
		runRepo:   runRepo,
		retention: retention,
		alerts:    alerts,
		cfg:       cfg.withDefaults(),
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// resolveRun maps an optional run id to the run it belongs to. An empty id
// means "the currently active run"; no active run yields an orphan write.
func (s *IngestService) resolveRun(ctx context.Context, runID string) (models.FermentationRun, bool) {
	var (
		run models.FermentationRun
		err error
	)
	if runID != "" {
		run, err = s.runRepo.Get(ctx, runID)
	} else {
		run, err = s.runRepo.GetActive(ctx)
	}
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) && s.log != nil {
			s.log.Errorw("run_resolve_failed", "run_id", runID, "err", err)
		}
		return models.FermentationRun{}, false
	}
	return run, true
}

// afterWrite runs the best-effort tail of every ingest: retention for the
// stream just written, plus the rate-limited orphan sweep.
func (s *IngestService) afterWrite(ctx context.Context, stream, runID string) {
	s.retention.Enforce(ctx, stream, runID)
	s.retention.MaybeSweepOrphans(ctx)
}

func (s *IngestService) PostReading(ctx context.Context, in ReadingInput) (models.Reading, error) {
	run, _ := s.resolveRun(ctx, in.RunID)
	rd := models.Reading{
		RunID:          run.ID,
		FridgeTempC:    in.FridgeTempC,
		FermenterTempC: in.FermenterTempC,
		TargetTempC:    in.TargetTempC,
		Gravity:        in.Gravity,
		CreatedAt:      s.now(),
	}
	if err := s.telemetry.InsertReading(ctx, rd); err != nil {
		return models.Reading{}, err
	}
	s.afterWrite(ctx, repository.StreamReadings, rd.RunID)
	if rd.RunID != "" {
		_ = s.alerts.CheckAll(ctx, rd.RunID)
	}
	return rd, nil
}

func (s *IngestService) PostControllerState(ctx context.Context, in ControllerStateInput) error {
	run, _ := s.resolveRun(ctx, in.RunID)
	cs := models.ControllerState{
		RunID:     run.ID,
		SetpointC: in.SetpointC,
		Cooling:   in.Cooling,
		Heating:   in.Heating,
		CreatedAt: s.now(),
	}
	if err := s.telemetry.InsertControllerState(ctx, cs); err != nil {
		return err
	}
	s.afterWrite(ctx, repository.StreamControllerState, cs.RunID)
	return nil
}

func (s *IngestService) PostHeartbeat(ctx context.Context, in HeartbeatInput) error {
	run, _ := s.resolveRun(ctx, in.RunID)

	var control *models.ControlStatus
	if in.ControlStatus != nil {
		decoded := codec.Decode(map[string]any{"cs": in.ControlStatus})
		control = decoded.ControlStatus
	}

	hb := models.Heartbeat{
		RunID:         run.ID,
		UptimeSec:     in.UptimeSec,
		FreeHeap:      in.FreeHeap,
		TempFermenter: in.TempFermenter,
		TempFridge:    in.TempFridge,
		ControlStatus: control,
		CreatedAt:     s.now(),
	}
	if err := s.telemetry.InsertHeartbeat(ctx, hb); err != nil {
		return err
	}
	s.afterWrite(ctx, repository.StreamHeartbeats, hb.RunID)
	if hb.RunID != "" {
		_ = s.alerts.CheckAll(ctx, hb.RunID)
	}
	return nil
}

// PostFermentationState decodes the compact payload, persists the canonical
// snapshot and feeds the stage engine. Malformed payloads never fail: the
// codec degrades to absent fields and the snapshot stores whatever survived.
func (s *IngestService) PostFermentationState(ctx context.Context, runID string, raw map[string]any) (models.CanonicalState, error) {
	state := codec.Decode(raw)
	run, ok := s.resolveRun(ctx, runID)

	snap := models.FermentationStateSnapshot{
		RunID:         run.ID,
		State:         codec.Expand(raw),
		TargetReached: state.TargetReached,
		CreatedAt:     s.now(),
	}
	if state.Status != nil {
		snap.Status = *state.Status
	}
	if err := s.telemetry.InsertSnapshot(ctx, snap); err != nil {
		return state, err
	}

	if ok {
		s.evaluateCurrentStage(ctx, run)
	}
	s.afterWrite(ctx, repository.StreamFermentationState, snap.RunID)
	return state, nil
}

func (s *IngestService) PostHydrometer(ctx context.Context, in HydrometerInput) error {
	run, ok := s.resolveRun(ctx, in.RunID)
	h := models.HydrometerReading{
		RunID:        run.ID,
		TemperatureC: in.TemperatureC,
		Gravity:      in.Gravity,
		BatteryV:     in.BatteryV,
		CreatedAt:    s.now(),
	}
	if err := s.telemetry.InsertHydrometer(ctx, h); err != nil {
		return err
	}
	s.afterWrite(ctx, repository.StreamHydrometer, h.RunID)
	if ok {
		// A fresh gravity sample can satisfy a gravity stage's target.
		s.evaluateCurrentStage(ctx, run)
		_ = s.alerts.CheckAll(ctx, run.ID)
	}
	return nil
}

// evaluateCurrentStage runs the stage engine against the latest reading and
// persists the latch when it fires. The repository guard keeps the first
// timestamp under concurrent evaluations; the gravity lifecycle alert is
// raised only by the evaluation that actually set the latch.
func (s *IngestService) evaluateCurrentStage(ctx context.Context, run models.FermentationRun) {
	st, ok := currentStage(run)
	if !ok || st.Status == models.StageCompleted {
		return
	}
	if st.Type == models.StageRamp {
		return // ramp stages never latch
	}

	rd, err := s.telemetry.LatestReading(ctx, run.ID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) && s.log != nil {
			s.log.Errorw("stage_eval_reading_failed", "run_id", run.ID, "err", err)
		}
		return
	}
	if st.Type == models.StageGravity || st.Type == models.StageGravityTime {
		// Prefer the hydrometer's gravity when the controller reading has none.
		if rd.Gravity == 0 {
			if h, err := s.telemetry.LatestHydrometer(ctx, run.ID); err == nil {
				rd.Gravity = h.Gravity
			}
		}
	}

	now := s.now()
	ev := stage.Evaluate(st, rd, now, s.cfg.ToleranceC)
	if !ev.Changed {
		return
	}

	set, err := s.runRepo.LatchStage(ctx, st.ID, *ev.LatchedAt)
	if err != nil {
		if s.log != nil {
			s.log.Errorw("stage_latch_failed", "run_id", run.ID, "stage_id", st.ID, "err", err)
		}
		return
	}
	if !set {
		return // another writer latched first; its alert stands
	}
	if s.log != nil {
		s.log.Infow("stage_target_reached", "run_id", run.ID, "stage_id", st.ID, "at", ev.LatchedAt)
	}
	if st.Type == models.StageGravity || st.Type == models.StageGravityTime {
		_, _ = s.alerts.Raise(ctx, run.ID, models.AlertGravityReached, models.LevelInfo,
			"gravity target reached", true)
	}
}
