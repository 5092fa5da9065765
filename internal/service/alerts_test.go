package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"fermentation_monitor/internal/models"
	"fermentation_monitor/internal/repository"
)

// alertRepoStub records Insert calls and answers with a scripted result.
type alertRepoStub struct {
	inserted  bool
	insertErr error
	calls     []models.Alert
	cooldowns []time.Duration
}

func (s *alertRepoStub) Insert(ctx context.Context, a models.Alert, cooldown time.Duration) (bool, error) {
	s.calls = append(s.calls, a)
	s.cooldowns = append(s.cooldowns, cooldown)
	return s.inserted, s.insertErr
}

func (s *alertRepoStub) Unread(ctx context.Context, runID string) ([]models.Alert, error) {
	return nil, nil
}

func (s *alertRepoStub) MarkRead(ctx context.Context, id string) error { return nil }

// alertTelemetryStub serves the latest-row reads the condition checks need.
type alertTelemetryStub struct {
	reading       models.Reading
	readingErr    error
	heartbeat     models.Heartbeat
	heartbeatErr  error
	hydrometer    models.HydrometerReading
	hydrometerErr error
}

func (s *alertTelemetryStub) InsertReading(ctx context.Context, r models.Reading) error { return nil }
func (s *alertTelemetryStub) LatestReading(ctx context.Context, runID string) (models.Reading, error) {
	return s.reading, s.readingErr
}
func (s *alertTelemetryStub) ReadingsSince(ctx context.Context, runID string, since time.Time) ([]models.Reading, error) {
	return nil, nil
}
func (s *alertTelemetryStub) InsertControllerState(ctx context.Context, cs models.ControllerState) error {
	return nil
}
func (s *alertTelemetryStub) LatestControllerState(ctx context.Context, runID string) (models.ControllerState, error) {
	return models.ControllerState{}, repository.ErrNotFound
}
func (s *alertTelemetryStub) InsertHeartbeat(ctx context.Context, hb models.Heartbeat) error {
	return nil
}
func (s *alertTelemetryStub) LatestHeartbeat(ctx context.Context, runID string) (models.Heartbeat, error) {
	return s.heartbeat, s.heartbeatErr
}
func (s *alertTelemetryStub) InsertSnapshot(ctx context.Context, snap models.FermentationStateSnapshot) error {
	return nil
}
func (s *alertTelemetryStub) LatestSnapshot(ctx context.Context, runID string) (models.FermentationStateSnapshot, error) {
	return models.FermentationStateSnapshot{}, repository.ErrNotFound
}
func (s *alertTelemetryStub) InsertHydrometer(ctx context.Context, h models.HydrometerReading) error {
	return nil
}
func (s *alertTelemetryStub) LatestHydrometer(ctx context.Context, runID string) (models.HydrometerReading, error) {
	return s.hydrometer, s.hydrometerErr
}

// settingsStub answers Get from a map; missing keys return "" like the real repo.
type settingsStub struct {
	values map[string]string
	getErr error
}

func (s *settingsStub) Get(ctx context.Context, key string) (string, error) {
	return s.values[key], s.getErr
}
func (s *settingsStub) Set(ctx context.Context, key, value string) error { return nil }

// notifierStub counts dispatches.
type notifierStub struct {
	channels   int
	delivered  bool
	dispatched []string
}

func (s *notifierStub) Channels() int { return s.channels }
func (s *notifierStub) Dispatch(ctx context.Context, message string) bool {
	s.dispatched = append(s.dispatched, message)
	return s.delivered
}

func newAlertServiceForTest(repo *alertRepoStub, tel *alertTelemetryStub, set *settingsStub, not *notifierStub, now time.Time) *AlertService {
	svc := NewAlertService(repo, tel, set, not, DefaultConfig(), nil)
	svc.now = func() time.Time { return now }
	return svc
}

func TestAlertService_Raise(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("inserted alert is dispatched", func(t *testing.T) {
		t.Parallel()
		repo := &alertRepoStub{inserted: true}
		not := &notifierStub{channels: 1, delivered: true}
		svc := newAlertServiceForTest(repo, &alertTelemetryStub{}, &settingsStub{}, not, now)

		raised, err := svc.Raise(context.Background(), "run-1", models.AlertTempDeviation, models.LevelWarning, "off target", false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !raised {
			t.Fatalf("expected raised=true")
		}
		if len(not.dispatched) != 1 {
			t.Fatalf("dispatch count: want 1, got %d", len(not.dispatched))
		}
		if want := "[warning] off target"; not.dispatched[0] != want {
			t.Errorf("message: want %q, got %q", want, not.dispatched[0])
		}
		if len(repo.cooldowns) != 1 || repo.cooldowns[0] != DefaultConfig().Cooldown {
			t.Errorf("cooldown not passed through: %v", repo.cooldowns)
		}
	})

	t.Run("suppressed alert is not dispatched", func(t *testing.T) {
		t.Parallel()
		repo := &alertRepoStub{inserted: false}
		not := &notifierStub{channels: 1, delivered: true}
		svc := newAlertServiceForTest(repo, &alertTelemetryStub{}, &settingsStub{}, not, now)

		raised, err := svc.Raise(context.Background(), "run-1", models.AlertTempDeviation, models.LevelWarning, "off target", false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if raised {
			t.Fatalf("expected raised=false inside cooldown")
		}
		if len(not.dispatched) != 0 {
			t.Errorf("suppressed alert must not dispatch, got %d", len(not.dispatched))
		}
	})

	t.Run("skipCooldown passes zero window", func(t *testing.T) {
		t.Parallel()
		repo := &alertRepoStub{inserted: true}
		svc := newAlertServiceForTest(repo, &alertTelemetryStub{}, &settingsStub{}, &notifierStub{}, now)

		if _, err := svc.Raise(context.Background(), "run-1", models.AlertStageCompleted, models.LevelInfo, "stage done", true); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(repo.cooldowns) != 1 || repo.cooldowns[0] != 0 {
			t.Errorf("skipCooldown must use zero cooldown, got %v", repo.cooldowns)
		}
	})

	t.Run("disabled setting keeps row but skips dispatch", func(t *testing.T) {
		t.Parallel()
		repo := &alertRepoStub{inserted: true}
		not := &notifierStub{channels: 2, delivered: true}
		set := &settingsStub{values: map[string]string{SettingNotificationsEnabled: "false"}}
		svc := newAlertServiceForTest(repo, &alertTelemetryStub{}, set, not, now)

		raised, err := svc.Raise(context.Background(), "run-1", models.AlertBatteryLow, models.LevelWarning, "battery", false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !raised {
			t.Fatalf("alert row must persist even when dispatch is disabled")
		}
		if len(not.dispatched) != 0 {
			t.Errorf("disabled notifications must not dispatch")
		}
	})

	t.Run("insert error propagates", func(t *testing.T) {
		t.Parallel()
		repo := &alertRepoStub{insertErr: errors.New("db down")}
		svc := newAlertServiceForTest(repo, &alertTelemetryStub{}, &settingsStub{}, &notifierStub{}, now)

		if _, err := svc.Raise(context.Background(), "run-1", models.AlertTempDeviation, models.LevelWarning, "x", false); err == nil {
			t.Fatalf("expected error, got nil")
		}
	})
}

func TestAlertService_CheckAll(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := DefaultConfig()

	type testCase struct {
		name       string
		telemetry  *alertTelemetryStub
		assertFunc func(t *testing.T, calls []models.Alert)
	}

	freshHeartbeat := models.Heartbeat{FreeHeap: 100_000, CreatedAt: now.Add(-30 * time.Second)}
	freshHydrometer := models.HydrometerReading{Gravity: 1.020, BatteryV: 3.9, CreatedAt: now.Add(-5 * time.Minute)}

	cases := []testCase{
		{
			name: "all healthy raises nothing",
			telemetry: &alertTelemetryStub{
				reading:    models.Reading{FermenterTempC: 18.2, TargetTempC: 18.0, CreatedAt: now},
				heartbeat:  freshHeartbeat,
				hydrometer: freshHydrometer,
			},
			assertFunc: func(t *testing.T, calls []models.Alert) {
				if len(calls) != 0 {
					t.Fatalf("want no alerts, got %+v", calls)
				}
			},
		},
		{
			name: "deviation above tolerance is a warning",
			telemetry: &alertTelemetryStub{
				reading:    models.Reading{FermenterTempC: 19.2, TargetTempC: 18.0, CreatedAt: now},
				heartbeat:  freshHeartbeat,
				hydrometer: freshHydrometer,
			},
			assertFunc: func(t *testing.T, calls []models.Alert) {
				if len(calls) != 1 {
					t.Fatalf("want 1 alert, got %+v", calls)
				}
				if calls[0].Type != models.AlertTempDeviation || calls[0].Level != models.LevelWarning {
					t.Errorf("want warning temp_deviation, got %s/%s", calls[0].Type, calls[0].Level)
				}
			},
		},
		{
			name: "deviation above critical tolerance is critical",
			telemetry: &alertTelemetryStub{
				reading:    models.Reading{FermenterTempC: 21.5, TargetTempC: 18.0, CreatedAt: now},
				heartbeat:  freshHeartbeat,
				hydrometer: freshHydrometer,
			},
			assertFunc: func(t *testing.T, calls []models.Alert) {
				if len(calls) != 1 {
					t.Fatalf("want 1 alert, got %+v", calls)
				}
				if calls[0].Level != models.LevelCritical {
					t.Errorf("want critical, got %s", calls[0].Level)
				}
			},
		},
		{
			name: "zero target suppresses deviation check",
			telemetry: &alertTelemetryStub{
				reading:    models.Reading{FermenterTempC: 25.0, TargetTempC: 0, CreatedAt: now},
				heartbeat:  freshHeartbeat,
				hydrometer: freshHydrometer,
			},
			assertFunc: func(t *testing.T, calls []models.Alert) {
				if len(calls) != 0 {
					t.Fatalf("want no alerts without a target, got %+v", calls)
				}
			},
		},
		{
			name: "stale heartbeat is critical device_offline",
			telemetry: &alertTelemetryStub{
				reading:    models.Reading{FermenterTempC: 18.0, TargetTempC: 18.0, CreatedAt: now},
				heartbeat:  models.Heartbeat{FreeHeap: 100_000, CreatedAt: now.Add(-(cfg.OfflineAfter + 30*time.Second))},
				hydrometer: freshHydrometer,
			},
			assertFunc: func(t *testing.T, calls []models.Alert) {
				if len(calls) != 1 {
					t.Fatalf("want 1 alert, got %+v", calls)
				}
				if calls[0].Type != models.AlertDeviceOffline || calls[0].Level != models.LevelCritical {
					t.Errorf("want critical device_offline, got %s/%s", calls[0].Type, calls[0].Level)
				}
			},
		},
		{
			name: "heartbeat inside window raises nothing",
			telemetry: &alertTelemetryStub{
				reading:    models.Reading{FermenterTempC: 18.0, TargetTempC: 18.0, CreatedAt: now},
				heartbeat:  models.Heartbeat{FreeHeap: 100_000, CreatedAt: now.Add(-(cfg.OfflineAfter - 30*time.Second))},
				hydrometer: freshHydrometer,
			},
			assertFunc: func(t *testing.T, calls []models.Alert) {
				if len(calls) != 0 {
					t.Fatalf("want no alerts, got %+v", calls)
				}
			},
		},
		{
			name: "low free heap is a memory warning",
			telemetry: &alertTelemetryStub{
				reading:    models.Reading{FermenterTempC: 18.0, TargetTempC: 18.0, CreatedAt: now},
				heartbeat:  models.Heartbeat{FreeHeap: cfg.FreeHeapMin - 1, CreatedAt: now.Add(-time.Minute)},
				hydrometer: freshHydrometer,
			},
			assertFunc: func(t *testing.T, calls []models.Alert) {
				if len(calls) != 1 {
					t.Fatalf("want 1 alert, got %+v", calls)
				}
				if calls[0].Type != models.AlertMemoryLow {
					t.Errorf("want memory_low, got %s", calls[0].Type)
				}
			},
		},
		{
			name: "stale hydrometer and low battery both raise",
			telemetry: &alertTelemetryStub{
				reading:   models.Reading{FermenterTempC: 18.0, TargetTempC: 18.0, CreatedAt: now},
				heartbeat: freshHeartbeat,
				hydrometer: models.HydrometerReading{
					Gravity:   1.020,
					BatteryV:  cfg.BatteryLowV - 0.2,
					CreatedAt: now.Add(-(cfg.HydrometerStaleAfter + time.Minute)),
				},
			},
			assertFunc: func(t *testing.T, calls []models.Alert) {
				if len(calls) != 2 {
					t.Fatalf("want 2 alerts, got %+v", calls)
				}
				types := map[string]bool{}
				for _, a := range calls {
					types[a.Type] = true
				}
				if !types[models.AlertHydrometerStale] || !types[models.AlertBatteryLow] {
					t.Errorf("want hydrometer_stale and battery_low, got %+v", types)
				}
			},
		},
		{
			name: "missing streams raise nothing",
			telemetry: &alertTelemetryStub{
				readingErr:    repository.ErrNotFound,
				heartbeatErr:  repository.ErrNotFound,
				hydrometerErr: repository.ErrNotFound,
			},
			assertFunc: func(t *testing.T, calls []models.Alert) {
				if len(calls) != 0 {
					t.Fatalf("want no alerts for empty streams, got %+v", calls)
				}
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo := &alertRepoStub{inserted: true}
			svc := newAlertServiceForTest(repo, tc.telemetry, &settingsStub{}, &notifierStub{}, now)

			if err := svc.CheckAll(context.Background(), "run-1"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tc.assertFunc(t, repo.calls)
		})
	}
}

func TestAlertService_CheckAll_EmptyRunIsNoop(t *testing.T) {
	t.Parallel()

	repo := &alertRepoStub{inserted: true}
	svc := newAlertServiceForTest(repo, &alertTelemetryStub{}, &settingsStub{}, &notifierStub{}, time.Now().UTC())

	if err := svc.CheckAll(context.Background(), ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.calls) != 0 {
		t.Fatalf("orphan telemetry must not raise alerts, got %+v", repo.calls)
	}
}
