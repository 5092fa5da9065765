package service

import (
	"context"
	"time"

	"fermentation_monitor/internal/logger"
	"fermentation_monitor/internal/repository"
)

// allStreams lists every append-only stream the retention policy covers.
var allStreams = []string{
	repository.StreamReadings,
	repository.StreamControllerState,
	repository.StreamHeartbeats,
	repository.StreamFermentationState,
	repository.StreamHydrometer,
}

// RetentionService applies the keep-last-N policy after every write. Cleanup
// is decoupled from the triggering write: failures are logged and swallowed,
// a crash between write and cleanup just leaves extra rows for the next call.
type RetentionService struct {
	repo repository.RetentionRepo
	cfg  Config
	log  *logger.Logger
	now  func() time.Time
}

func NewRetentionService(repo repository.RetentionRepo, cfg Config, log *logger.Logger) *RetentionService {
	return &RetentionService{repo: repo, cfg: cfg.withDefaults(), log: log, now: func() time.Time { return time.Now().UTC() }}
}

func (s *RetentionService) keepFor(stream string) int {
	switch stream {
	case repository.StreamReadings:
		return s.cfg.ReadingsKeep
	case repository.StreamControllerState:
		return s.cfg.ControllerKeep
	case repository.StreamHeartbeats:
		return s.cfg.HeartbeatKeep
	case repository.StreamFermentationState:
		return s.cfg.SnapshotKeep
	case repository.StreamHydrometer:
		return s.cfg.HydrometerKeep
	}
	return 0
}

// Enforce trims one stream for one run down to its configured budget.
// Orphan writes (no run) are left to the sweep.
func (s *RetentionService) Enforce(ctx context.Context, stream, runID string) {
	if runID == "" {
		return
	}
	keep := s.keepFor(stream)
	if keep <= 0 {
		return
	}
	if n, err := s.repo.EnforceLimit(ctx, stream, runID, keep); err != nil {
		if s.log != nil {
			s.log.Errorw("retention_cleanup_failed", "stream", stream, "run_id", runID, "err", err)
		}
	} else if n > 0 && s.log != nil {
		s.log.Debugw("retention_cleanup", "stream", stream, "run_id", runID, "deleted", n)
	}
}

// MaybeSweepOrphans runs the orphan sweep at most once per configured
// interval. The last-sweep timestamp lives in the datastore and advances via
// compare-and-set, so replicated instances elect exactly one sweeper.
func (s *RetentionService) MaybeSweepOrphans(ctx context.Context) {
	last, err := s.repo.LastOrphanSweep(ctx)
	if err != nil {
		if s.log != nil {
			s.log.Errorw("orphan_sweep_state_read_failed", "err", err)
		}
		return
	}
	now := s.now()
	if !last.IsZero() && now.Sub(last) < s.cfg.OrphanSweepEvery {
		return
	}
	won, err := s.repo.MarkOrphanSweep(ctx, now, last)
	if err != nil {
		if s.log != nil {
			s.log.Errorw("orphan_sweep_mark_failed", "err", err)
		}
		return
	}
	if !won {
		return // another instance swept this interval
	}
	for _, stream := range allStreams {
		if n, err := s.repo.SweepOrphans(ctx, stream); err != nil {
			if s.log != nil {
				s.log.Errorw("orphan_sweep_failed", "stream", stream, "err", err)
			}
		} else if n > 0 && s.log != nil {
			s.log.Infow("orphan_sweep", "stream", stream, "deleted", n)
		}
	}
}

// aggressiveDivisor halves the keep budgets in emergency cleanup, without the
// normal hysteresis margin.
const aggressiveDivisor = 2

// EmergencyCleanup is the operator-triggered recovery path for storage
// exhaustion: tighter budgets on every stream plus an unconditional orphan
// sweep. Unlike the per-write path it reports failures to the operator.
func (s *RetentionService) EmergencyCleanup(ctx context.Context) error {
	var firstErr error
	for _, stream := range allStreams {
		if _, err := s.repo.SweepOrphans(ctx, stream); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	// Tighten budgets for every run that still has rows. Partition keys are
	// discovered per stream so completed runs get trimmed too.
	for _, stream := range allStreams {
		keep := s.keepFor(stream) / aggressiveDivisor
		if keep <= 0 {
			keep = 1
		}
		runIDs, err := s.repo.PartitionKeys(ctx, stream)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		for _, runID := range runIDs {
			if _, err := s.repo.EnforceLimit(ctx, stream, runID, keep); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
