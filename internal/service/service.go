package service

import (
	"context"
	"time"

	"fermentation_monitor/internal/logger"
	"fermentation_monitor/internal/models"
	"fermentation_monitor/internal/repository"
)

// Ingest accepts device telemetry posts. Every post is an independent,
// unordered write followed by best-effort retention cleanup.
type Ingest interface {
	PostReading(ctx context.Context, in ReadingInput) (models.Reading, error)
	PostControllerState(ctx context.Context, in ControllerStateInput) error
	PostHeartbeat(ctx context.Context, in HeartbeatInput) error
	PostFermentationState(ctx context.Context, runID string, raw map[string]any) (models.CanonicalState, error)
	PostHydrometer(ctx context.Context, in HydrometerInput) error
}

// Runs exposes run lifecycle transitions. Stage/run CRUD beyond creation is
// owned by the configuration UI, not this service.
type Runs interface {
	Create(ctx context.Context, run models.FermentationRun) (models.FermentationRun, error)
	Get(ctx context.Context, id string) (models.FermentationRun, error)
	Activate(ctx context.Context, id string) error
	Advance(ctx context.Context, id string) error
}

// Alerts evaluates condition checks and raises deduplicated notifications.
type Alerts interface {
	CheckAll(ctx context.Context, runID string) error
	Raise(ctx context.Context, runID, typ, level, message string, skipCooldown bool) (bool, error)
	Unread(ctx context.Context, runID string) ([]models.Alert, error)
	MarkRead(ctx context.Context, id string) error
}

// Retention bounds the append-only telemetry streams. All entry points are
// best-effort: failures are logged, never propagated to the caller.
type Retention interface {
	Enforce(ctx context.Context, stream, runID string)
	MaybeSweepOrphans(ctx context.Context)
	EmergencyCleanup(ctx context.Context) error
}

// Dashboard serves the read side: latest state per stream plus unread alerts.
type Dashboard interface {
	View(ctx context.Context, runID string, window time.Duration) (DashboardView, error)
	ActiveState(ctx context.Context) (ActiveState, error)
}

// Notifier is the outbound delivery fan-out, implemented by notify.Dispatcher.
type Notifier interface {
	Channels() int
	Dispatch(ctx context.Context, message string) bool
}

type Service struct {
	Ingest
	Runs
	Alerts
	Retention
	Dashboard
}

// NewService wires the repository layer into concrete services.
func NewService(repos *repository.Repository, notifier Notifier, cfg Config, log *logger.Logger) *Service {
	retention := NewRetentionService(repos.Retention, cfg, log)
	alerts := NewAlertService(repos.Alerts, repos.Telemetry, repos.Settings, notifier, cfg, log)
	runs := NewRunService(repos.Runs, alerts)
	return &Service{
		Ingest:    NewIngestService(repos.Telemetry, repos.Runs, retention, alerts, cfg, log),
		Runs:      runs,
		Alerts:    alerts,
		Retention: retention,
		Dashboard: NewDashboardService(repos.Runs, repos.Telemetry, repos.Alerts),
	}
}
