package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fermentation_monitor/internal/models"
	"fermentation_monitor/internal/repository"
)

var (
	// ErrRunConflict wraps the single-active-run invariant for the HTTP layer.
	ErrRunConflict = errors.New("another fermentation run is already active")
	// ErrRunNotFound is returned for unknown run ids.
	ErrRunNotFound = errors.New("fermentation run not found")

	errNoStages = errors.New("run has no stages")
)

type RunService struct {
	runRepo repository.RunRepo
	alerts  Alerts
	now     func() time.Time
}

func NewRunService(runRepo repository.RunRepo, alerts Alerts) *RunService {
	return &RunService{runRepo: runRepo, alerts: alerts, now: func() time.Time { return time.Now().UTC() }}
}

// Create persists a run definition with its ordered stages. Missing ids are
// generated; the run starts pending.
func (s *RunService) Create(ctx context.Context, run models.FermentationRun) (models.FermentationRun, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = models.RunPending
	}
	run.CreatedAt = s.now()
	for i := range run.Stages {
		if run.Stages[i].ID == "" {
			run.Stages[i].ID = uuid.NewString()
		}
		run.Stages[i].RunID = run.ID
		run.Stages[i].Position = i
		if run.Stages[i].Status == "" {
			run.Stages[i].Status = models.StagePending
		}
	}
	if err := s.runRepo.Create(ctx, run); err != nil {
		return models.FermentationRun{}, err
	}
	return run, nil
}

func (s *RunService) Get(ctx context.Context, id string) (models.FermentationRun, error) {
	run, err := s.runRepo.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return models.FermentationRun{}, ErrRunNotFound
	}
	return run, err
}

// Activate makes the run the single active one and starts its current stage.
// Activation while another run is active fails with ErrRunConflict.
func (s *RunService) Activate(ctx context.Context, id string) error {
	now := s.now()
	if err := s.runRepo.Activate(ctx, id, now); err != nil {
		switch {
		case errors.Is(err, repository.ErrActiveRunExists):
			return ErrRunConflict
		case errors.Is(err, repository.ErrNotFound):
			return ErrRunNotFound
		}
		return err
	}

	run, err := s.runRepo.Get(ctx, id)
	if err != nil {
		return err
	}
	if st, ok := currentStage(run); ok && st.StartTime == nil {
		if err := s.runRepo.StartStage(ctx, st.ID, now); err != nil {
			return err
		}
	}
	return nil
}

// Advance completes the current stage and starts the next, or completes the
// whole run after the last stage. Lifecycle alerts skip the cooldown: they
// must be delivered exactly once, and this method is the single raiser.
func (s *RunService) Advance(ctx context.Context, id string) error {
	run, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if len(run.Stages) == 0 {
		return errNoStages
	}
	now := s.now()

	if st, ok := currentStage(run); ok && st.Status != models.StageCompleted {
		if err := s.runRepo.CompleteStage(ctx, st.ID, now); err != nil {
			return err
		}
		s.raiseLifecycle(ctx, run.ID, models.AlertStageCompleted,
			fmt.Sprintf("stage %d (%s) completed", st.Position+1, st.Type))
	}

	next := run.CurrentStageIndex + 1
	if next < len(run.Stages) {
		if err := s.runRepo.StartStage(ctx, run.Stages[next].ID, now); err != nil {
			return err
		}
		return s.runRepo.SetCurrentStage(ctx, run.ID, next)
	}

	if err := s.runRepo.UpdateStatus(ctx, run.ID, models.RunCompleted, now); err != nil {
		return err
	}
	s.raiseLifecycle(ctx, run.ID, models.AlertRunCompleted,
		fmt.Sprintf("fermentation run %q completed", run.Name))
	return nil
}

func (s *RunService) raiseLifecycle(ctx context.Context, runID, typ, message string) {
	if s.alerts == nil {
		return
	}
	// Persistence failure of a lifecycle alert must not roll back the
	// transition itself.
	if _, err := s.alerts.Raise(ctx, runID, typ, models.LevelInfo, message, true); err != nil {
		return
	}
}

// currentStage returns the stage the run's index points at.
func currentStage(run models.FermentationRun) (models.Stage, bool) {
	if run.CurrentStageIndex < 0 || run.CurrentStageIndex >= len(run.Stages) {
		return models.Stage{}, false
	}
	return run.Stages[run.CurrentStageIndex], true
}
