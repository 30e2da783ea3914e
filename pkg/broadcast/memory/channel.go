// Package memory provides an in-process broadcast channel. Every participant
// holding the same *Channel sees every message, which makes it the transport
// of choice for tests and for electing a leader among goroutines.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"leaderbus/pkg/broadcast"
	"leaderbus/pkg/models"
)

type Channel struct {
	hub   *broadcast.Hub
	async bool

	// publishHook, when set, may veto a publish; used to inject transport faults
	publishHook func(models.Message) error

	published atomic.Int64
	mu        sync.RWMutex
	closed    bool
	mailboxes map[*mailbox]struct{}
}

type Option func(*Channel)

// WithAsyncDelivery hands each subscriber its own goroutine and queue, so
// Publish returns before handlers run. Per-subscriber order is preserved.
func WithAsyncDelivery() Option {
	return func(c *Channel) {
		c.async = true
	}
}

// WithPublishHook installs a function consulted before every publish. A
// non-nil error aborts the publish and is returned to the caller.
func WithPublishHook(hook func(models.Message) error) Option {
	return func(c *Channel) {
		c.publishHook = hook
	}
}

func NewChannel(opts ...Option) *Channel {
	c := &Channel{
		hub:       broadcast.NewHub(),
		mailboxes: make(map[*mailbox]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Channel) Publish(ctx context.Context, msg models.Message) error {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return broadcast.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.publishHook != nil {
		if err := c.publishHook(msg); err != nil {
			return err
		}
	}

	c.published.Add(1)
	c.hub.Deliver(msg)
	return nil
}

func (c *Channel) Subscribe(handler broadcast.Handler) (broadcast.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, broadcast.ErrClosed
	}

	if !c.async {
		return c.hub.Add(handler)
	}

	mb := newMailbox(handler)
	sub, err := c.hub.Add(mb.push)
	if err != nil {
		mb.stop()
		return nil, err
	}
	c.mailboxes[mb] = struct{}{}
	return &asyncSubscription{Subscription: sub, mb: mb, ch: c}, nil
}

func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.hub.Close()
	for mb := range c.mailboxes {
		mb.stop()
		delete(c.mailboxes, mb)
	}
	return nil
}

// Subscribers returns the number of live subscriptions.
func (c *Channel) Subscribers() int {
	return c.hub.Len()
}

// Published returns how many messages went through Publish.
func (c *Channel) Published() int64 {
	return c.published.Load()
}

type asyncSubscription struct {
	broadcast.Subscription
	mb *mailbox
	ch *Channel
}

func (s *asyncSubscription) Unsubscribe() error {
	err := s.Subscription.Unsubscribe()
	s.mb.stop()
	s.ch.mu.Lock()
	delete(s.ch.mailboxes, s.mb)
	s.ch.mu.Unlock()
	return err
}

// mailbox is an unbounded FIFO drained by one goroutine.
type mailbox struct {
	handler broadcast.Handler

	mu      sync.Mutex
	queue   []models.Message
	notify  chan struct{}
	exit    chan struct{}
	stopped atomic.Bool
	once    sync.Once
}

func newMailbox(handler broadcast.Handler) *mailbox {
	mb := &mailbox{
		handler: handler,
		notify:  make(chan struct{}, 1),
		exit:    make(chan struct{}),
	}
	go mb.run()
	return mb
}

func (mb *mailbox) push(msg models.Message) {
	mb.mu.Lock()
	mb.queue = append(mb.queue, msg)
	mb.mu.Unlock()

	select {
	case mb.notify <- struct{}{}:
	default:
	}
}

func (mb *mailbox) run() {
	for {
		select {
		case <-mb.exit:
			return
		case <-mb.notify:
		}

		for {
			mb.mu.Lock()
			if len(mb.queue) == 0 {
				mb.mu.Unlock()
				break
			}
			msg := mb.queue[0]
			mb.queue = mb.queue[1:]
			mb.mu.Unlock()

			// a stop racing this check lets at most the current message through
			if mb.stopped.Load() {
				return
			}
			mb.handler(msg)
		}
	}
}

func (mb *mailbox) stop() {
	mb.once.Do(func() {
		mb.stopped.Store(true)
		close(mb.exit)
	})
}
