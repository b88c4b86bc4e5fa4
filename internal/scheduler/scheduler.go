// Package scheduler runs the expiration reconciler on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/iliyamo/event-ticketing/internal/service"
)

// Sweeper is the reconciler entry point.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (service.SweepResult, error)
}

// Options configures the sweep job.
type Options struct {
	// Spec is a robfig/cron spec such as "@every 1m" or "*/5 * * * *".
	Spec string
	// LeaseTTL bounds how long one instance may own the sweep.  It should
	// be shorter than the schedule interval.
	LeaseTTL time.Duration
	// Timeout bounds a single sweep.
	Timeout time.Duration
}

// Scheduler triggers sweeps.  Overlapping runs on one instance are skipped
// by the cron chain; across instances the optional lease keeps a single
// sweeper active.  Without a lease every instance sweeps, which is safe
// because each order is re-checked under its row lock.
type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	lease   Lease
	opts    Options
	log     *slog.Logger
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// New registers the sweep job.  lease may be nil.
func New(sweeper Sweeper, lease Lease, opts Options, log *slog.Logger) (*Scheduler, error) {
	if opts.Spec == "" {
		opts.Spec = "@every 1m"
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 50 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = opts.LeaseTTL
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		sweeper: sweeper,
		lease:   lease,
		opts:    opts,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
		ctx:     ctx,
		cancel:  cancel,
	}
	logger := cronLogger{log: log}
	s.cron = cron.New(cron.WithLocation(time.UTC), cron.WithLogger(logger), cron.WithChain(
		cron.Recover(logger),
		cron.SkipIfStillRunning(logger),
	))
	if _, err := s.cron.AddFunc(opts.Spec, func() { s.RunOnce(s.ctx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule sweep %q: %w", opts.Spec, err)
	}
	return s, nil
}

// Start begins firing the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("expiration sweeper started", "schedule", s.opts.Spec)
}

// Stop cancels a running sweep and waits for it to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	var done context.Context
	s.once.Do(func() {
		s.cancel()
		done = s.cron.Stop()
	})
	if done == nil {
		return nil
	}
	select {
	case <-done.Done():
		s.log.Info("expiration sweeper stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce performs one sweep if this instance obtains the lease.  It
// reports whether a sweep ran.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	if s.lease != nil {
		ok, err := s.lease.Acquire(ctx, s.opts.LeaseTTL)
		if err != nil {
			// Redis trouble must not stop inventory from being released.
			s.log.Warn("sweep lease unavailable, sweeping without it", "err", err)
		} else if !ok {
			s.log.Debug("sweep lease held by another instance")
			return false
		} else {
			defer func() {
				if err := s.lease.Release(context.WithoutCancel(ctx)); err != nil {
					s.log.Warn("sweep lease release failed", "err", err)
				}
			}()
		}
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	res, err := s.sweeper.Sweep(ctx, s.now())
	if err != nil {
		s.log.Error("expiration sweep failed", "err", err, "expired", res.Expired, "failed", res.Failed)
	}
	return true
}

// cronLogger routes cron's own messages to slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append([]interface{}{"err", err}, keysAndValues...)...)
}
