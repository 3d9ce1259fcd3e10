package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Loop runs one unit of background work every period, or sooner when woken.
// A tick is a no-op while the surface is not observed. Work always runs with
// the shared lock held; the lock is never held while waiting.
type Loop struct {
	name     string
	period   time.Duration
	wake     chan struct{}
	observed func() bool
	lock     sync.Locker
	work     func(ctx context.Context) error
	logger   *slog.Logger
}

func newLoop(name string, period time.Duration, observed func() bool, lock sync.Locker,
	work func(ctx context.Context) error, logger *slog.Logger) *Loop {
	return &Loop{
		name:     name,
		period:   period,
		wake:     make(chan struct{}, 1),
		observed: observed,
		lock:     lock,
		work:     work,
		logger:   logger,
	}
}

// Wake asks the loop to run as soon as possible. It never blocks; several
// wakes before the loop gets to them collapse into one.
func (l *Loop) Wake() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is cancelled. Errors from work are logged and the loop
// carries on.
func (l *Loop) Run(ctx context.Context) error {
	t := time.NewTicker(l.period)
	defer t.Stop()

	l.logger.Debug("loop: started", slog.String("loop", l.name), slog.Duration("period", l.period))
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("loop: stopped", slog.String("loop", l.name))
			return nil
		case <-t.C:
		case <-l.wake:
		}
		if ctx.Err() != nil {
			l.logger.Debug("loop: stopped", slog.String("loop", l.name))
			return nil
		}
		l.tick(ctx)
	}
}

func (l *Loop) tick(ctx context.Context) {
	if !l.observed() {
		return
	}
	l.lock.Lock()
	defer l.lock.Unlock()
	// Shutdown may have begun while waiting for the lock.
	if ctx.Err() != nil {
		return
	}

	// Work that has started runs to completion even if shutdown begins.
	if err := l.work(context.WithoutCancel(ctx)); err != nil {
		l.logger.Warn("loop: work failed",
			slog.String("loop", l.name),
			slog.String("error", err.Error()))
	}
}
