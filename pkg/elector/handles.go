package elector

import "sync"

// handles is the set of resources an elector owns: subscriptions and timers.
// Each release func runs at most once. After releaseAll, acquire releases the
// new resource immediately so nothing registered late can leak.
type handles struct {
	mu     sync.Mutex
	next   uint64
	owned  map[uint64]func()
	closed bool
}

func newHandles() *handles {
	return &handles{owned: make(map[uint64]func())}
}

func (h *handles) acquire(release func()) (uint64, bool) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		release()
		return 0, false
	}
	h.next++
	id := h.next
	h.owned[id] = release
	h.mu.Unlock()
	return id, true
}

func (h *handles) release(id uint64) {
	h.mu.Lock()
	fn, ok := h.owned[id]
	delete(h.owned, id)
	h.mu.Unlock()

	if ok {
		fn()
	}
}

// releaseAll releases everything and closes the set. Returns how many
// resources were released by this call.
func (h *handles) releaseAll() int {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0
	}
	h.closed = true
	fns := make([]func(), 0, len(h.owned))
	for id, fn := range h.owned {
		fns = append(fns, fn)
		delete(h.owned, id)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
	return len(fns)
}

func (h *handles) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.owned)
}
