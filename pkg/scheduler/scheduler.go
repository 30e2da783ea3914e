package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var ErrStopped = errors.New("scheduler stopped")

// Handle identifies a repeating timer registered with Every.
type Handle = cron.EntryID

// Scheduler runs repeating and one-shot timers. Repeating timers are driven
// by a private cron instance; one-shot waits are plain timers.
type Scheduler struct {
	cron *cron.Cron

	mu      sync.Mutex
	stopped bool
}

// New creates and starts a scheduler. A nil logger falls back to zap.NewNop.
func New(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	cl := cronLogger{log.Sugar()}

	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	c.Start()

	return &Scheduler{cron: c}
}

// Every runs fn every d until the handle is cancelled or the scheduler stops.
// The first run happens one interval after registration.
func (s *Scheduler) Every(d time.Duration, fn func()) (Handle, error) {
	if d <= 0 {
		return 0, fmt.Errorf("invalid interval %s", d)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0, ErrStopped
	}
	return s.cron.Schedule(interval(d), cron.FuncJob(fn)), nil
}

// Cancel removes a repeating timer. A run already in progress is not interrupted.
func (s *Scheduler) Cancel(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.cron.Remove(h)
}

// After blocks for d, or until ctx is done.
func (s *Scheduler) After(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Stop halts every repeating timer. It does not wait for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	s.cron.Stop()
}

// Pending returns the number of registered repeating timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return 0
	}
	return len(s.cron.Entries())
}

// interval is a cron schedule with sub-second resolution; cron.Every rounds to
// whole seconds.
type interval time.Duration

func (i interval) Next(t time.Time) time.Time {
	return t.Add(time.Duration(i))
}

// cronLogger routes cron's internal logging into zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
