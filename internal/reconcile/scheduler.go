package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/Jeffreasy/KoruFormsService/internal/lock"
	"github.com/Jeffreasy/KoruFormsService/internal/metrics"
)

const (
	DefaultInterval = 24 * time.Hour
	lockKey         = "reconcile-websites"
)

type SchedulerConfig struct {
	Interval   time.Duration
	RunOnStart bool
	// LockTTL bounds how long a crashed holder blocks other instances.
	LockTTL time.Duration
}

// Scheduler runs the reconciler on a fixed interval, at most once at a time
// across every instance sharing the locker.
type Scheduler struct {
	r      *Reconciler
	locker lock.Locker
	cfg    SchedulerConfig
	logger *slog.Logger
}

func NewScheduler(r *Reconciler, locker lock.Locker, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	if locker == nil {
		locker = lock.NewMemory()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{r: r, locker: locker, cfg: cfg, logger: logger}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("reconcile_scheduler_started", "interval", s.cfg.Interval, "run_on_start", s.cfg.RunOnStart)

	if s.cfg.RunOnStart {
		s.Trigger(ctx)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Trigger(ctx)
		case <-ctx.Done():
			s.logger.Info("reconcile_scheduler_stopped")
			return
		}
	}
}

// Trigger runs once if the lock is free. ran is false when another run holds it.
func (s *Scheduler) Trigger(ctx context.Context) (sum Summary, ran bool, err error) {
	release, ok, err := s.locker.TryLock(ctx, lockKey, s.cfg.LockTTL)
	if err != nil {
		s.logger.Error("reconcile_lock_failed", "error", err)
		return Summary{}, false, err
	}
	if !ok {
		metrics.ReconcileSkipped()
		s.logger.Info("reconcile_skipped", "reason", "lock held")
		return Summary{}, false, nil
	}
	defer func() {
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := release(relCtx); err != nil {
			s.logger.Warn("reconcile_unlock_failed", "error", err)
		}
	}()

	sum, err = s.r.RunOnce(ctx)
	if err != nil {
		s.logger.Error("reconcile_failed", "error", err)
	}
	return sum, true, err
}
