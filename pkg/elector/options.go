package elector

import (
	"context"
	"time"

	"go.uber.org/zap"

	"leaderbus/pkg/scheduler"
	"leaderbus/pkg/token"
)

const (
	DefaultFallbackInterval = 2000 * time.Millisecond
	DefaultResponseWindow   = 100 * time.Millisecond
)

// Timers is the scheduler an Elector drives its polling and response window
// with. *scheduler.Scheduler satisfies it.
type Timers interface {
	Every(d time.Duration, fn func()) (scheduler.Handle, error)
	Cancel(h scheduler.Handle)
	After(ctx context.Context, d time.Duration) error
	Stop()
}

// Options are fixed at construction.
type Options struct {
	// FallbackInterval is the cadence of re-candidacy while not leader.
	FallbackInterval time.Duration
	// ResponseWindow is how long a candidate listens for objections.
	ResponseWindow time.Duration

	Tokens token.Source
	Logger *zap.Logger

	// Timers, when nil, is a private scheduler stopped on Close. A shared
	// scheduler supplied here is left running.
	Timers Timers

	// OnLeadership runs once when a requested Leadership resolves, on the
	// goroutine whose candidacy won, or in RequestLeadership if the elector
	// already leads. It is skipped if the elector departs first.
	OnLeadership func()
}

// Option configures an Elector at construction.
type Option func(*Options)

// DefaultOptions returns the protocol defaults: a 2s fallback interval and a
// 100ms response window, with random v7 tokens.
func DefaultOptions() Options {
	return Options{
		FallbackInterval: DefaultFallbackInterval,
		ResponseWindow:   DefaultResponseWindow,
		Tokens:           token.Default,
	}
}

// WithFallbackInterval sets how often a waiting elector re-applies.
func WithFallbackInterval(d time.Duration) Option {
	return func(o *Options) {
		o.FallbackInterval = d
	}
}

// WithResponseWindow sets how long each candidacy listens for objections.
func WithResponseWindow(d time.Duration) Option {
	return func(o *Options) {
		o.ResponseWindow = d
	}
}

// WithTokenSource overrides how the participant token is generated.
func WithTokenSource(src token.Source) Option {
	return func(o *Options) {
		o.Tokens = src
	}
}

// WithToken pins the participant token; mostly useful in tests.
func WithToken(t string) Option {
	return WithTokenSource(token.Fixed(t))
}

// WithLogger sets the base logger. The token is added as a field.
func WithLogger(l *zap.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithTimers shares a scheduler between electors.
func WithTimers(t Timers) Option {
	return func(o *Options) {
		o.Timers = t
	}
}

// WithOnLeadership registers a callback for the leadership transition.
func WithOnLeadership(fn func()) Option {
	return func(o *Options) {
		o.OnLeadership = fn
	}
}

// normalize replaces zero or negative durations with defaults.
func (o *Options) normalize() {
	if o.FallbackInterval <= 0 {
		o.FallbackInterval = DefaultFallbackInterval
	}
	if o.ResponseWindow <= 0 {
		o.ResponseWindow = DefaultResponseWindow
	}
	if o.Tokens == nil {
		o.Tokens = token.Default
	}
}
