package elector

import (
	"context"
	"sync"
	"time"
)

// Leadership is the result of RequestLeadership. It resolves once, when the
// elector first becomes leader, and is never rejected: if the elector is
// closed before winning, it stays pending.
type Leadership struct {
	done        chan struct{}
	once        sync.Once
	requestedAt time.Time
}

func newLeadership() *Leadership {
	return &Leadership{
		done:        make(chan struct{}),
		requestedAt: time.Now(),
	}
}

// Done is closed when leadership is acquired.
func (l *Leadership) Done() <-chan struct{} {
	return l.done
}

// Wait blocks until leadership is acquired or ctx ends. The only error it
// returns is ctx.Err().
func (l *Leadership) Wait(ctx context.Context) error {
	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resolved reports whether leadership has been acquired.
func (l *Leadership) Resolved() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// resolve closes done. Only the first caller gets true.
func (l *Leadership) resolve() bool {
	first := false
	l.once.Do(func() {
		close(l.done)
		first = true
	})
	return first
}
