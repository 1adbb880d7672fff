// Package refresh keeps the availability cache warm on a cron schedule so
// page views rarely pay for an upstream fetch.
package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"rentcal/internal/availability"
	appLog "rentcal/internal/log"
)

// Syncer is the part of availability.Cache the scheduler drives.
type Syncer interface {
	GetBookedDays(ctx context.Context, force bool) (availability.Result, error)
}

// Scheduler forces a sync on every tick of a cron spec.
type Scheduler struct {
	cron    *cron.Cron
	syncer  Syncer
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// New validates spec and registers the job. The scheduler does nothing
// until Start. timeout bounds a single run; zero means no extra bound.
func New(spec string, syncer Syncer, timeout time.Duration) (*Scheduler, error) {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:    c,
		syncer:  syncer,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
	}

	if _, err := c.AddFunc(spec, func() { s.RunOnce(s.ctx) }); err != nil {
		cancel()
		return nil, fmt.Errorf("refresh schedule %q: %w", spec, err)
	}
	return s, nil
}

// Start runs the schedule in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, e := range s.cron.Entries() {
		appLog.Info("refresh scheduled", "next", e.Next)
	}
}

// Stop halts the schedule, cancels a running job and waits for it to
// return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		appLog.Warn("refresh job still running at shutdown")
	}
}

// RunOnce forces one sync. Failures are logged only; the cache keeps
// serving whatever it holds.
func (s *Scheduler) RunOnce(ctx context.Context) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	res, err := s.syncer.GetBookedDays(ctx, true)
	switch {
	case err != nil:
		appLog.Error("scheduled refresh failed", err)
	case res.Err != nil:
		appLog.Warn("scheduled refresh failed; previous booked days kept",
			"err", res.Err,
			"cached_days", res.Days.Len(),
		)
	default:
		appLog.Info("scheduled refresh complete",
			"events", res.TotalEvents,
			"days", res.TotalDays,
		)
	}
}

// cronLogger adapts the application logger to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
