// Package elector implements leader election among peers that share a
// broadcast channel and nothing else.
//
// A candidate publishes APPLY, listens for a response window, and becomes
// leader unless it saw an APPLY with a greater token or an ANNOUNCE from an
// existing leader. The leader answers every foreign APPLY with ANNOUNCE. A
// departing participant publishes DEPART, which makes waiting peers apply
// right away instead of at their next fallback tick.
//
// The protocol tolerates a short window of dual leadership when messages
// race; it is not a consensus algorithm.
package elector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"leaderbus/pkg/broadcast"
	"leaderbus/pkg/logger"
	"leaderbus/pkg/metrics"
	"leaderbus/pkg/models"
	"leaderbus/pkg/scheduler"
	"leaderbus/pkg/token"
)

const departTimeout = 5 * time.Second

// candidacy outcomes, used as metric labels
const (
	outcomeWon      = "won"
	outcomeAborted  = "aborted"
	outcomeRejected = "rejected"
	outcomeFailed   = "failed"
)

var errDeparted = errors.New("elector has departed")

// State is a snapshot of an elector's protocol flags.
type State struct {
	Token      string `json:"token"`
	IsLeader   bool   `json:"is_leader"`
	IsDead     bool   `json:"is_dead"`
	IsApplying bool   `json:"is_applying"`
}

// Elector is one participant in the election.
type Elector struct {
	channel    broadcast.Channel
	timers     Timers
	ownsTimers bool
	opts       Options
	token      string
	log        *zap.Logger
	tracer     trace.Tracer

	// lifecycle is held for reading while APPLY is published and for writing
	// while the elector dies, so no APPLY can leave after Close returns.
	lifecycle sync.RWMutex

	mu         sync.Mutex
	isLeader   bool
	isDead     bool
	isApplying bool

	handles *handles
	ctx     context.Context
	cancel  context.CancelFunc

	requestOnce sync.Once
	// leadership is set once under mu and resolved under mu when isLeader flips.
	leadership *Leadership
}

// New creates an elector on channel. Nothing is published until
// RequestLeadership or TryApply is called.
func New(channel broadcast.Channel, opts ...Option) *Elector {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.normalize()

	tok := o.Tokens.NewToken()

	log := o.Logger
	if log == nil {
		log = logger.Named("elector")
	}
	log = log.With(zap.String("token", tok))

	timers := o.Timers
	owns := false
	if timers == nil {
		timers = scheduler.New(log)
		owns = true
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Elector{
		channel:    channel,
		timers:     timers,
		ownsTimers: owns,
		opts:       o,
		token:      tok,
		log:        log,
		tracer:     otel.Tracer("leaderbus/elector"),
		handles:    newHandles(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Token returns this participant's token.
func (e *Elector) Token() string {
	return e.token
}

// IsLeader reports whether this elector currently believes it leads.
func (e *Elector) IsLeader() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isLeader
}

// IsDead reports whether Close has been called. Once true it stays true.
func (e *Elector) IsDead() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isDead
}

// State returns a consistent snapshot of the protocol flags.
func (e *Elector) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{
		Token:      e.token,
		IsLeader:   e.isLeader,
		IsDead:     e.isDead,
		IsApplying: e.isApplying,
	}
}

// RequestLeadership starts competing for leadership and returns a future that
// resolves when this elector becomes leader. Every call returns the same
// *Leadership.
func (e *Elector) RequestLeadership() *Leadership {
	e.requestOnce.Do(func() {
		l := newLeadership()
		e.mu.Lock()
		e.leadership = l
		first := e.isLeader && l.resolve()
		dead := e.isDead
		e.mu.Unlock()

		if first {
			e.leadershipAcquired(l)
			return
		}
		if dead {
			e.log.Warn("leadership requested after departure, it will never resolve")
		}
		e.awaitLeadership(l)
	})
	return e.leadership
}

func (e *Elector) leadershipAcquired(l *Leadership) {
	wait := time.Since(l.requestedAt)
	metrics.LeadershipWait.Observe(wait.Seconds())
	e.log.Info("leadership acquired", zap.Duration("waited", wait))
	if e.opts.OnLeadership != nil {
		e.opts.OnLeadership()
	}
}

// awaitLeadership retries candidacy on a fallback timer and whenever another
// participant departs, until the elector becomes leader by any path.
func (e *Elector) awaitLeadership(l *Leadership) {
	var mu sync.Mutex
	var owned []uint64

	teardown := func() {
		mu.Lock()
		ids := owned
		owned = nil
		mu.Unlock()
		for _, id := range ids {
			e.handles.release(id)
		}
	}
	track := func(id uint64) {
		mu.Lock()
		owned = append(owned, id)
		mu.Unlock()
		// the future may have resolved before this one was registered
		if l.Resolved() {
			teardown()
		}
	}

	attempt := func(trigger string) {
		if l.Resolved() {
			return
		}
		e.log.Debug("attempting candidacy", zap.String("trigger", trigger))
		e.TryApply(e.ctx)
	}

	// a direct TryApply may win too, so teardown follows the future itself
	go func() {
		select {
		case <-l.Done():
			teardown()
		case <-e.ctx.Done():
		}
	}()

	h, err := e.timers.Every(e.opts.FallbackInterval, func() { attempt("fallback") })
	if err != nil {
		e.log.Warn("failed to start fallback timer", zap.Error(err))
	} else if id, ok := e.handles.acquire(func() { e.timers.Cancel(h) }); ok {
		track(id)
	}

	id, err := e.subscribe(func(msg models.Message) {
		if !msg.IsElection() || msg.Action != models.ActionDepart || msg.Token == e.token {
			return
		}
		e.log.Debug("peer departed, applying now", zap.String("peer", msg.Token))
		go attempt("depart")
	})
	if err != nil {
		e.log.Warn("failed to watch departures", zap.Error(err))
	} else {
		track(id)
	}

	go attempt("initial")
}

// TryApply runs one candidacy attempt and reports whether it won. It returns
// false without touching the channel if the elector is already leader, has
// departed, or has another attempt in flight. Faults count as a lost attempt.
func (e *Elector) TryApply(ctx context.Context) bool {
	e.mu.Lock()
	if e.isLeader || e.isDead || e.isApplying {
		e.mu.Unlock()
		metrics.RecordCandidacy(outcomeRejected, 0)
		return false
	}
	e.isApplying = true
	e.mu.Unlock()

	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "elector.candidacy",
		trace.WithAttributes(attribute.String("elector.token", e.token)),
	)
	defer span.End()

	won, err := e.apply(ctx)

	e.mu.Lock()
	e.isApplying = false
	e.mu.Unlock()

	outcome := outcomeAborted
	switch {
	case err != nil:
		outcome = outcomeFailed
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !errors.Is(err, errDeparted) && !errors.Is(err, context.Canceled) {
			e.log.Warn("candidacy failed", zap.Error(err))
		}
	case won:
		outcome = outcomeWon
	default:
		e.log.Debug("candidacy aborted")
	}
	span.SetAttributes(attribute.String("elector.outcome", outcome))
	metrics.RecordCandidacy(outcome, time.Since(start).Seconds())

	return won
}

func (e *Elector) apply(ctx context.Context) (won bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			won, err = false, fmt.Errorf("candidacy panicked: %v", r)
		}
	}()

	// departure ends the response window early
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(e.ctx, cancel)
	defer stop()

	var abort atomic.Bool
	id, err := e.subscribe(func(msg models.Message) {
		if !msg.IsElection() || msg.Token == e.token {
			return
		}
		switch msg.Action {
		case models.ActionApply:
			if token.Compare(msg.Token, e.token) > 0 {
				abort.Store(true)
			}
		case models.ActionAnnounce:
			abort.Store(true)
		}
	})
	if err != nil {
		return false, err
	}
	defer e.handles.release(id)

	e.log.Debug("applying for leadership")
	if err := e.publishApply(ctx); err != nil {
		return false, err
	}
	if err := e.timers.After(ctx, e.opts.ResponseWindow); err != nil {
		return false, err
	}
	if abort.Load() {
		return false, nil
	}

	// re-apply to reach contenders that joined at the window boundary
	if err := e.publishApply(ctx); err != nil {
		return false, err
	}
	if err := e.assumeLeadership(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// assumeLeadership makes this elector leader, answers future APPLYs with
// ANNOUNCE, and announces once right away. A pending Leadership is resolved
// in the same critical section that sets isLeader.
func (e *Elector) assumeLeadership(ctx context.Context) error {
	_, err := e.subscribe(func(msg models.Message) {
		if !msg.IsElection() || msg.Action != models.ActionApply || msg.Token == e.token {
			return
		}
		if !e.IsLeader() {
			return
		}
		// the handler runs on the transport's receive goroutine
		go e.answer(msg.Token)
	})
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.isDead {
		e.mu.Unlock()
		return errDeparted
	}
	e.isLeader = true
	l := e.leadership
	first := l != nil && l.resolve()
	e.mu.Unlock()

	metrics.Leaders.Inc()
	e.log.Info("assumed leadership")

	// leadership is committed; a lost announcement is repaired by the responder
	if err := e.publish(ctx, models.ActionAnnounce); err != nil {
		e.log.Warn("failed to announce leadership", zap.Error(err))
	}

	// Close may have run while ANNOUNCE was on the wire
	if e.IsDead() {
		return errDeparted
	}
	if first {
		e.leadershipAcquired(l)
	}
	return nil
}

func (e *Elector) answer(peer string) {
	if !e.IsLeader() {
		return
	}
	if err := e.publish(e.ctx, models.ActionAnnounce); err != nil && !errors.Is(err, context.Canceled) {
		e.log.Warn("failed to answer candidate", zap.String("peer", peer), zap.Error(err))
	}
}

// Close departs from the election: the elector stops being leader, publishes
// DEPART and releases every subscription and timer it owns. A pending
// Leadership is left unresolved. Safe to call in any state and more than once.
func (e *Elector) Close() error {
	e.lifecycle.Lock()
	e.mu.Lock()
	if e.isDead {
		e.mu.Unlock()
		e.lifecycle.Unlock()
		return nil
	}
	e.isDead = true
	wasLeader := e.isLeader
	e.isLeader = false
	e.mu.Unlock()
	e.lifecycle.Unlock()

	e.cancel()
	released := e.handles.releaseAll()
	if e.ownsTimers {
		e.timers.Stop()
	}

	if wasLeader {
		metrics.Leaders.Dec()
	}
	metrics.Departures.Inc()
	e.log.Info("departing", zap.Bool("was_leader", wasLeader), zap.Int("released", released))

	ctx, cancel := context.WithTimeout(context.Background(), departTimeout)
	defer cancel()
	if err := e.publish(ctx, models.ActionDepart); err != nil {
		return fmt.Errorf("failed to announce departure: %w", err)
	}
	return nil
}

// publishApply refuses to bid once the elector has departed.
func (e *Elector) publishApply(ctx context.Context) error {
	e.lifecycle.RLock()
	defer e.lifecycle.RUnlock()
	if e.IsDead() {
		return errDeparted
	}
	return e.publish(ctx, models.ActionApply)
}

func (e *Elector) publish(ctx context.Context, action models.Action) error {
	if err := e.channel.Publish(ctx, models.NewMessage(action, e.token)); err != nil {
		return fmt.Errorf("failed to publish %s: %w", action, err)
	}
	metrics.MessagesPublished.WithLabelValues(string(action)).Inc()
	return nil
}

// subscribe registers handler on the channel as an owned resource.
func (e *Elector) subscribe(handler broadcast.Handler) (uint64, error) {
	sub, err := e.channel.Subscribe(handler)
	if err != nil {
		return 0, fmt.Errorf("failed to subscribe: %w", err)
	}
	id, ok := e.handles.acquire(func() {
		if err := sub.Unsubscribe(); err != nil {
			e.log.Debug("unsubscribe failed", zap.Error(err))
		}
	})
	if !ok {
		return 0, errDeparted
	}
	return id, nil
}
