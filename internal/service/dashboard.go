package service

import (
	"context"
	"errors"
	"time"

	"fermentation_monitor/internal/models"
	"fermentation_monitor/internal/repository"
	"fermentation_monitor/internal/stage"
)

// DashboardView is the full read model for one run: the run itself, the
// latest row of each telemetry stream, a recent readings window for charting,
// the current stage evaluation and the unread alerts. Streams with no rows
// yet show up as nil.
type DashboardView struct {
	Run             models.FermentationRun            `json:"run"`
	Reading         *models.Reading                   `json:"reading,omitempty"`
	Readings        []models.Reading                  `json:"readings,omitempty"`
	ControllerState *models.ControllerState           `json:"controller_state,omitempty"`
	Heartbeat       *models.Heartbeat                 `json:"heartbeat,omitempty"`
	Snapshot        *models.FermentationStateSnapshot `json:"snapshot,omitempty"`
	Hydrometer      *models.HydrometerReading         `json:"hydrometer,omitempty"`
	Stage           *StageView                        `json:"stage,omitempty"`
	Alerts          []models.Alert                    `json:"alerts"`
}

// StageView is the evaluated current stage as shown to the UI.
type StageView struct {
	Index           int        `json:"index"`
	Type            string     `json:"type"`
	Status          string     `json:"status"`
	TargetTempC     float64    `json:"target_temp_c"`
	EffectiveTarget float64    `json:"effective_target_c"`
	TargetReached   bool       `json:"target_reached"`
	ReachedAt       *time.Time `json:"reached_at,omitempty"`
	TimeRemaining   float64    `json:"time_remaining_sec"`
	RampProgress    *float64   `json:"ramp_progress,omitempty"`
}

// ActiveState is the compact push payload for the websocket stream: enough
// to render the live header without a full dashboard round trip.
type ActiveState struct {
	RunID          string   `json:"run_id"`
	RunName        string   `json:"run_name"`
	Status         string   `json:"status"`
	StageIndex     int      `json:"stage_index"`
	StageType      string   `json:"stage_type"`
	FermenterTempC *float64 `json:"fermenter_temp_c,omitempty"`
	TargetTempC    *float64 `json:"target_temp_c,omitempty"`
	Gravity        *float64 `json:"gravity,omitempty"`
	Cooling        bool     `json:"cooling"`
	Heating        bool     `json:"heating"`
	UnreadAlerts   int      `json:"unread_alerts"`
}

// DefaultReadingsWindow bounds the chart series when the caller passes none.
const DefaultReadingsWindow = 24 * time.Hour

type DashboardService struct {
	runRepo   repository.RunRepo
	telemetry repository.TelemetryRepo
	alertRepo repository.AlertRepo
	now       func() time.Time
}

func NewDashboardService(runRepo repository.RunRepo, telemetry repository.TelemetryRepo, alertRepo repository.AlertRepo) *DashboardService {
	return &DashboardService{
		runRepo:   runRepo,
		telemetry: telemetry,
		alertRepo: alertRepo,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// View assembles the dashboard for one run. Stream reads are independent: a
// stream with no rows contributes nothing instead of failing the view.
func (s *DashboardService) View(ctx context.Context, runID string, window time.Duration) (DashboardView, error) {
	run, err := s.runRepo.Get(ctx, runID)
	if errors.Is(err, repository.ErrNotFound) {
		return DashboardView{}, ErrRunNotFound
	}
	if err != nil {
		return DashboardView{}, err
	}
	if window <= 0 {
		window = DefaultReadingsWindow
	}

	view := DashboardView{Run: run, Alerts: []models.Alert{}}

	if rd, err := s.telemetry.LatestReading(ctx, runID); err == nil {
		view.Reading = &rd
	}
	if series, err := s.telemetry.ReadingsSince(ctx, runID, s.now().Add(-window)); err == nil {
		view.Readings = series
	}
	if cs, err := s.telemetry.LatestControllerState(ctx, runID); err == nil {
		view.ControllerState = &cs
	}
	if hb, err := s.telemetry.LatestHeartbeat(ctx, runID); err == nil {
		view.Heartbeat = &hb
	}
	if snap, err := s.telemetry.LatestSnapshot(ctx, runID); err == nil {
		view.Snapshot = &snap
	}
	if h, err := s.telemetry.LatestHydrometer(ctx, runID); err == nil {
		view.Hydrometer = &h
	}
	if alerts, err := s.alertRepo.Unread(ctx, runID); err == nil && alerts != nil {
		view.Alerts = alerts
	}

	view.Stage = s.stageView(run, view.Reading)
	return view, nil
}

// stageView evaluates the current stage for display only; persistence of the
// latch belongs to the ingest path.
func (s *DashboardService) stageView(run models.FermentationRun, rd *models.Reading) *StageView {
	st, ok := currentStage(run)
	if !ok {
		return nil
	}
	reading := models.Reading{CreatedAt: s.now()}
	if rd != nil {
		reading = *rd
	}
	ev := stage.Evaluate(st, reading, s.now(), stage.DefaultToleranceC)

	sv := &StageView{
		Index:           run.CurrentStageIndex,
		Type:            st.Type,
		Status:          st.Status,
		TargetTempC:     st.TargetTempC,
		EffectiveTarget: ev.EffectiveTarget,
		TargetReached:   ev.TargetReached,
		ReachedAt:       st.TargetReachedTime,
		TimeRemaining:   ev.TimeRemaining.Seconds(),
	}
	if st.Type == models.StageRamp {
		p := ev.RampProgress
		sv.RampProgress = &p
	}
	return sv
}

// ActiveState builds the compact live payload for the currently active run.
// With no active run it returns ErrRunNotFound so the stream can idle.
func (s *DashboardService) ActiveState(ctx context.Context) (ActiveState, error) {
	run, err := s.runRepo.GetActive(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return ActiveState{}, ErrRunNotFound
	}
	if err != nil {
		return ActiveState{}, err
	}

	state := ActiveState{
		RunID:      run.ID,
		RunName:    run.Name,
		Status:     run.Status,
		StageIndex: run.CurrentStageIndex,
	}
	if st, ok := currentStage(run); ok {
		state.StageType = st.Type
	}
	if rd, err := s.telemetry.LatestReading(ctx, run.ID); err == nil {
		state.FermenterTempC = &rd.FermenterTempC
		state.TargetTempC = &rd.TargetTempC
		if rd.Gravity > 0 {
			state.Gravity = &rd.Gravity
		}
	}
	if state.Gravity == nil {
		if h, err := s.telemetry.LatestHydrometer(ctx, run.ID); err == nil && h.Gravity > 0 {
			state.Gravity = &h.Gravity
		}
	}
	if cs, err := s.telemetry.LatestControllerState(ctx, run.ID); err == nil {
		state.Cooling = cs.Cooling
		state.Heating = cs.Heating
	}
	if alerts, err := s.alertRepo.Unread(ctx, run.ID); err == nil {
		state.UnreadAlerts = len(alerts)
	}
	return state, nil
}
