package service

import (
	"context"
	"time"

	"offline-wallet/internal/core/ports"
	"offline-wallet/pkg/apperror"

	"github.com/rs/zerolog"
)

// defaultSyncRetryIntervals is the retry schedule after a failed run. Once
// exhausted the scheduler falls back to the regular interval.
var defaultSyncRetryIntervals = []time.Duration{
	15 * time.Second,
	60 * time.Second,
	2 * time.Minute,
	5 * time.Minute,
	10 * time.Minute,
}

const defaultSyncInterval = 15 * time.Minute

// SyncScheduler runs the reconciler periodically while the remote is reachable.
type SyncScheduler struct {
	reconciler ports.SyncReconciler
	probe      ports.HealthChecker
	interval   time.Duration
	backoff    []time.Duration
	trigger    chan struct{}
	log        zerolog.Logger
}

// NewSyncScheduler creates a scheduler. A nil probe means always reachable;
// an empty backoff uses the default retry schedule.
func NewSyncScheduler(
	reconciler ports.SyncReconciler,
	probe ports.HealthChecker,
	interval time.Duration,
	backoff []time.Duration,
	log zerolog.Logger,
) *SyncScheduler {
	if interval <= 0 {
		interval = defaultSyncInterval
	}
	if len(backoff) == 0 {
		backoff = defaultSyncRetryIntervals
	}
	return &SyncScheduler{
		reconciler: reconciler,
		probe:      probe,
		interval:   interval,
		backoff:    backoff,
		trigger:    make(chan struct{}, 1),
		log:        log,
	}
}

// Trigger requests a run as soon as possible. Requests made while one is
// pending are coalesced.
func (s *SyncScheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled. The first run happens immediately.
func (s *SyncScheduler) Run(ctx context.Context) {
	s.log.Info().Dur("interval", s.interval).Msg("Sync scheduler started")
	defer s.log.Info().Msg("Sync scheduler stopped")

	failures := 0
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-s.trigger:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		if s.runOnce(ctx) {
			failures = 0
		} else {
			failures++
		}
		timer.Reset(s.nextDelay(failures))
	}
}

// nextDelay returns the wait before the next run after the given number of
// consecutive failures.
func (s *SyncScheduler) nextDelay(failures int) time.Duration {
	if failures == 0 || failures > len(s.backoff) {
		return s.interval
	}
	return s.backoff[failures-1]
}

// runOnce reports whether the run succeeded. A run skipped because another
// one holds the lock counts as success.
func (s *SyncScheduler) runOnce(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}

	if s.probe != nil {
		if err := s.probe.Ping(ctx); err != nil {
			s.log.Debug().Err(err).Str("probe", s.probe.Name()).Msg("Remote unreachable, sync skipped")
			return false
		}
	}

	report, err := s.reconciler.SyncNow(ctx)
	switch {
	case err == nil:
		return true
	case apperror.HasCode(err, apperror.CodeSyncInProgress):
		s.log.Debug().Msg("Sync already running")
		return true
	case ctx.Err() != nil:
		return true
	default:
		ev := s.log.Warn().Err(err)
		if report != nil {
			ev = ev.Int("failures", len(report.Failures))
		}
		ev.Msg("Sync failed, will retry")
		return false
	}
}
