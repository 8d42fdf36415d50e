package sheetsync

import (
	"context"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bsm/redislock"
	"github.com/realcrm/realty_backend/config"
	"github.com/realcrm/realty_backend/models"
	"github.com/realcrm/realty_backend/utils"
	"github.com/sirupsen/logrus"
)

const (
	DefaultSyncIntervalMinutes = 60

	syncLockKey = "lock:sheet-sync:run"
	syncLockTTL = 30 * time.Minute

	// One retry after the source or database fails before a run row could
	// even be created. Failures after that point are recorded on the row.
	initRetryDelay = 60 * time.Second
)

// ErrRunInProgress is returned to a trigger that arrives while a run is
// already executing on this instance or holds the cross-instance lock.
var ErrRunInProgress = utils.KindErrorf(utils.ErrorKindBusinessRule, "a sync run is already in progress")

// Scheduler fires full sync runs on a fixed interval. Overlap is prevented
// twice over: an in-process flag for this instance and a redis lock across
// instances.
type Scheduler struct {
	orchestrator *Orchestrator
	logger       *logrus.Logger
	interval     time.Duration
	running      atomic.Bool
}

func NewScheduler(orchestrator *Orchestrator, logger *logrus.Logger) *Scheduler {
	minutes := DefaultSyncIntervalMinutes
	if raw := strings.TrimSpace(os.Getenv("SYNC_INTERVAL_MINUTES")); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			minutes = v
		}
	}
	return &Scheduler{
		orchestrator: orchestrator,
		logger:       logger,
		interval:     time.Duration(minutes) * time.Minute,
	}
}

// Start launches the interval loop. It returns immediately; the loop stops
// when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	if !config.SheetSyncEnabled() {
		s.logger.Info("sheet sync disabled, scheduler not started")
		return
	}
	s.logger.WithField("interval", s.interval.String()).Info("sheet sync scheduler started")
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("sheet sync scheduler stopped")
				return
			case <-ticker.C:
				if _, err := s.TriggerRun(ctx, RunOptions{TriggeredBy: models.SyncTriggeredScheduled}); err != nil {
					if utils.KindOf(err) == utils.ErrorKindBusinessRule {
						s.logger.Info("scheduled sync skipped, previous run still in progress")
						continue
					}
					config.LogError(s.logger, "sheetsync", "Start", "scheduled sync run failed", nil, err)
				}
			}
		}
	}()
}

// TriggerRun executes one run, guarding against overlap. Manual triggers
// and the scheduler both come through here.
func (s *Scheduler) TriggerRun(ctx context.Context, opts RunOptions) (*models.SheetSyncRun, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	defer s.running.Store(false)

	lock, err := config.GetRedisLock().Obtain(ctx, syncLockKey, syncLockTTL, nil)
	if err == redislock.ErrNotObtained {
		return nil, ErrRunInProgress
	}
	if err != nil {
		return nil, utils.WrapError(utils.ErrorKindTransientIO, err)
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			config.LogError(s.logger, "sheetsync", "TriggerRun", "could not release sync lock", nil, err)
		}
	}()

	run, err := s.orchestrator.Run(ctx, opts)
	if err != nil && run == nil {
		// The run row itself could not be created. Wait out a transient
		// blip and try once more.
		s.logger.WithError(err).Warn("could not start sync run, retrying once")
		select {
		case <-ctx.Done():
			return nil, utils.WrapError(utils.ErrorKindTransientIO, ctx.Err())
		case <-time.After(initRetryDelay):
		}
		run, err = s.orchestrator.Run(ctx, opts)
	}
	return run, err
}
