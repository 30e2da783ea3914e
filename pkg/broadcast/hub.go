package broadcast

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"leaderbus/pkg/models"
)

// Hub fans a stream of messages out to locally registered handlers. Transports
// feed it from their receive loop; it owns no goroutines itself.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*hubSubscription
	closed bool
}

type hubSubscription struct {
	id      string
	hub     *Hub
	handler Handler
	active  atomic.Bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]*hubSubscription)}
}

// Add registers a handler and returns its subscription.
func (h *Hub) Add(handler Handler) (Subscription, error) {
	sub := &hubSubscription{
		id:      uuid.NewString(),
		hub:     h,
		handler: handler,
	}
	sub.active.Store(true)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrClosed
	}
	h.subs[sub.id] = sub
	return sub, nil
}

// Deliver calls every active handler with msg on the caller's goroutine. The
// subscriber set is snapshotted first, so handlers may publish or unsubscribe
// without deadlocking. No lock is held around a handler, which means a
// concurrent Unsubscribe does not wait for a call already past the active check.
func (h *Hub) Deliver(msg models.Message) {
	h.mu.RLock()
	snapshot := make([]*hubSubscription, 0, len(h.subs))
	for _, sub := range h.subs {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	for _, sub := range snapshot {
		// skip handlers removed after the snapshot was taken
		if sub.active.Load() {
			sub.handler(msg)
		}
	}
}

// Len returns the number of registered handlers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close drops every handler and rejects further Add calls.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		sub.active.Store(false)
		delete(h.subs, id)
	}
}

func (s *hubSubscription) Unsubscribe() error {
	if !s.active.Swap(false) {
		return nil
	}
	s.hub.mu.Lock()
	delete(s.hub.subs, s.id)
	s.hub.mu.Unlock()
	return nil
}
