package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"fermentation_monitor/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestRuns_LatchStage_SetsOnlyWhenUnset(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := repository.NewRunSQLite(db)
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// First evaluation: latch fires.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fermentation_stages SET target_reached_time = ?")).
		WithArgs(at, "stage-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	set, err := repo.LatchStage(context.Background(), "stage-1", at)
	if err != nil {
		t.Fatalf("LatchStage() error = %v", err)
	}
	if !set {
		t.Fatalf("expected latch to be set")
	}

	// Second evaluation: the IS NULL guard leaves the original timestamp.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fermentation_stages SET target_reached_time = ?")).
		WithArgs(at.Add(time.Hour), "stage-1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	set, err = repo.LatchStage(context.Background(), "stage-1", at.Add(time.Hour))
	if err != nil {
		t.Fatalf("LatchStage() error = %v", err)
	}
	if set {
		t.Fatalf("latch must not overwrite an existing timestamp")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRuns_Activate_ConflictWhenAnotherRunActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := repository.NewRunSQLite(db)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Guarded update touches nothing...
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fermentation_runs")).
		WithArgs(now, "run-2").
		WillReturnResult(sqlmock.NewResult(0, 0))
	// ...but the run itself exists, so this is the invariant, not a 404.
	runCols := []string{"id", "name", "status", "current_stage_index", "created_at", "started_at", "paused_at", "completed_at"}
	mock.ExpectQuery(regexp.QuoteMeta("FROM fermentation_runs WHERE id = ?")).
		WithArgs("run-2").
		WillReturnRows(sqlmock.NewRows(runCols).
			AddRow("run-2", "ipa", "pending", 0, now, nil, nil, nil))
	mock.ExpectQuery(regexp.QuoteMeta("FROM fermentation_stages WHERE run_id = ?")).
		WithArgs("run-2").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "run_id", "position", "name", "type", "target_temp_c", "duration_s",
			"target_gravity", "max_duration_s", "start_temp_c", "ramp_time_s", "max_rate_c_per_h",
			"status", "start_time", "end_time", "target_reached_time",
		}))

	err = repo.Activate(context.Background(), "run-2", now)
	if !errors.Is(err, repository.ErrActiveRunExists) {
		t.Fatalf("Activate() error = %v, want ErrActiveRunExists", err)
	}
}

func TestRuns_Activate_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := repository.NewRunSQLite(db)
	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE fermentation_runs")).
		WithArgs(now, "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("FROM fermentation_runs WHERE id = ?")).
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	err = repo.Activate(context.Background(), "ghost", now)
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("Activate() error = %v, want ErrNotFound", err)
	}
}

func TestRuns_Activate_Succeeds(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New(): %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := repository.NewRunSQLite(db)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE fermentation_runs")).
		WithArgs(now, "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Activate(context.Background(), "run-1", now); err != nil {
		t.Fatalf("Activate() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
