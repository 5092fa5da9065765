package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fermentation_monitor/internal/logger"
	"fermentation_monitor/internal/models"
	"fermentation_monitor/internal/repository"
)

// SettingNotificationsEnabled is the system_settings key gating outbound
// dispatch. Anything but "false" counts as enabled; the alert row is stored
// either way.
const SettingNotificationsEnabled = "notifications.enabled"

type AlertService struct {
	alertRepo repository.AlertRepo
	telemetry repository.TelemetryRepo
	settings  repository.SettingsRepo
	notifier  Notifier
	cfg       Config
	log       *logger.Logger
	now       func() time.Time
}

func NewAlertService(
	alertRepo repository.AlertRepo,
	telemetry repository.TelemetryRepo,
	settings repository.SettingsRepo,
	notifier Notifier,
	cfg Config,
	log *logger.Logger,
) *AlertService {
	return &AlertService{
		alertRepo: alertRepo,
		telemetry: telemetry,
		settings:  settings,
		notifier:  notifier,
		cfg:       cfg.withDefaults(),
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Raise persists an alert subject to the cooldown window and, when the row
// was actually written, attempts delivery on every configured channel.
// Discrete lifecycle events pass skipCooldown=true and always persist; the
// caller owns not raising the same physical event twice.
func (s *AlertService) Raise(ctx context.Context, runID, typ, level, message string, skipCooldown bool) (bool, error) {
	cooldown := s.cfg.Cooldown
	if skipCooldown {
		cooldown = 0
	}
	inserted, err := s.alertRepo.Insert(ctx, models.Alert{
		RunID:     runID,
		Type:      typ,
		Level:     level,
		Message:   message,
		CreatedAt: s.now(),
	}, cooldown)
	if err != nil {
		return false, err
	}
	if !inserted {
		return false, nil // suppressed inside the cooldown window
	}

	sent := s.dispatch(ctx, fmt.Sprintf("[%s] %s", level, message))
	if s.log != nil {
		s.log.Infow("alert_raised", "run_id", runID, "type", typ, "level", level, "sent", sent)
	}
	return true, nil
}

// dispatch reports whether at least one channel delivered. A fully-disabled
// notification configuration short-circuits; the alert stays recorded.
func (s *AlertService) dispatch(ctx context.Context, message string) bool {
	if s.notifier == nil || s.notifier.Channels() == 0 {
		return false
	}
	if enabled, err := s.settings.Get(ctx, SettingNotificationsEnabled); err != nil {
		if s.log != nil {
			s.log.Errorw("notification_settings_read_failed", "err", err)
		}
	} else if enabled == "false" {
		return false
	}
	return s.notifier.Dispatch(ctx, message)
}

// CheckAll evaluates the periodic condition checks against the latest rows
// for the run. Every check failure is logged and skipped; one broken stream
// must not silence the others.
func (s *AlertService) CheckAll(ctx context.Context, runID string) error {
	if runID == "" {
		return nil
	}
	now := s.now()

	s.checkTemperature(ctx, runID)
	s.checkHeartbeat(ctx, runID, now)
	s.checkHydrometer(ctx, runID, now)
	return nil
}

func (s *AlertService) checkTemperature(ctx context.Context, runID string) {
	rd, err := s.telemetry.LatestReading(ctx, runID)
	if err != nil {
		s.logCheckErr("reading", err)
		return
	}
	if rd.TargetTempC == 0 {
		return // no target set, nothing to deviate from
	}
	dev := rd.FermenterTempC - rd.TargetTempC
	if dev < 0 {
		dev = -dev
	}
	switch {
	case dev > s.cfg.CriticalToleranceC:
		s.raiseCheck(ctx, runID, models.AlertTempDeviation, models.LevelCritical,
			fmt.Sprintf("fermenter at %.1f°C, %.1f°C off target %.1f°C", rd.FermenterTempC, dev, rd.TargetTempC))
	case dev > s.cfg.ToleranceC:
		s.raiseCheck(ctx, runID, models.AlertTempDeviation, models.LevelWarning,
			fmt.Sprintf("fermenter at %.1f°C, %.1f°C off target %.1f°C", rd.FermenterTempC, dev, rd.TargetTempC))
	}
}

func (s *AlertService) checkHeartbeat(ctx context.Context, runID string, now time.Time) {
	hb, err := s.telemetry.LatestHeartbeat(ctx, runID)
	if err != nil {
		s.logCheckErr("heartbeat", err)
		return
	}
	if age := now.Sub(hb.CreatedAt); age > s.cfg.OfflineAfter {
		s.raiseCheck(ctx, runID, models.AlertDeviceOffline, models.LevelCritical,
			fmt.Sprintf("no heartbeat for %s", age.Round(time.Second)))
	}
	if hb.FreeHeap > 0 && hb.FreeHeap < s.cfg.FreeHeapMin {
		s.raiseCheck(ctx, runID, models.AlertMemoryLow, models.LevelWarning,
			fmt.Sprintf("controller free heap down to %d bytes", hb.FreeHeap))
	}
}

func (s *AlertService) checkHydrometer(ctx context.Context, runID string, now time.Time) {
	h, err := s.telemetry.LatestHydrometer(ctx, runID)
	if err != nil {
		s.logCheckErr("hydrometer", err)
		return
	}
	if age := now.Sub(h.CreatedAt); age > s.cfg.HydrometerStaleAfter {
		s.raiseCheck(ctx, runID, models.AlertHydrometerStale, models.LevelWarning,
			fmt.Sprintf("no hydrometer reading for %s", age.Round(time.Second)))
	}
	if h.BatteryV > 0 && h.BatteryV < s.cfg.BatteryLowV {
		s.raiseCheck(ctx, runID, models.AlertBatteryLow, models.LevelWarning,
			fmt.Sprintf("hydrometer battery at %.2fV", h.BatteryV))
	}
}

func (s *AlertService) raiseCheck(ctx context.Context, runID, typ, level, message string) {
	if _, err := s.Raise(ctx, runID, typ, level, message, false); err != nil && s.log != nil {
		s.log.Errorw("alert_raise_failed", "run_id", runID, "type", typ, "err", err)
	}
}

func (s *AlertService) logCheckErr(stream string, err error) {
	// Missing rows are normal early in a run.
	if errors.Is(err, repository.ErrNotFound) {
		return
	}
	if s.log != nil {
		s.log.Errorw("alert_check_failed", "stream", stream, "err", err)
	}
}

func (s *AlertService) Unread(ctx context.Context, runID string) ([]models.Alert, error) {
	return s.alertRepo.Unread(ctx, runID)
}

func (s *AlertService) MarkRead(ctx context.Context, id string) error {
	return s.alertRepo.MarkRead(ctx, id)
}
