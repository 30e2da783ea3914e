package elector

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandles_ReleaseRunsOnce(t *testing.T) {
	h := newHandles()
	n := 0
	id, ok := h.acquire(func() { n++ })
	require.True(t, ok)

	h.release(id)
	h.release(id)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, h.len())
}

func TestHandles_ReleaseAll(t *testing.T) {
	h := newHandles()
	var mu sync.Mutex
	n := 0
	for i := 0; i < 3; i++ {
		h.acquire(func() {
			mu.Lock()
			n++
			mu.Unlock()
		})
	}

	assert.Equal(t, 3, h.releaseAll())
	assert.Equal(t, 0, h.releaseAll())
	assert.Equal(t, 3, n)
}

func TestHandles_AcquireAfterCloseReleasesImmediately(t *testing.T) {
	h := newHandles()
	h.releaseAll()

	released := false
	_, ok := h.acquire(func() { released = true })
	assert.False(t, ok)
	assert.True(t, released)
	assert.Equal(t, 0, h.len())
}

func TestLeadership_ResolveOnce(t *testing.T) {
	l := newLeadership()
	assert.False(t, l.Resolved())

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.resolve() {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	assert.True(t, l.Resolved())
	assert.NoError(t, l.Wait(context.Background()))
}

func TestLeadership_WaitReturnsContextError(t *testing.T) {
	l := newLeadership()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, l.Wait(ctx), context.DeadlineExceeded)
}

func TestOptions_Normalize(t *testing.T) {
	o := Options{FallbackInterval: -1}
	o.normalize()

	assert.Equal(t, DefaultFallbackInterval, o.FallbackInterval)
	assert.Equal(t, DefaultResponseWindow, o.ResponseWindow)
	assert.NotNil(t, o.Tokens)
}
