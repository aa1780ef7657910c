// Package retrytest provides a Clock that records sleeps instead of waiting.
package retrytest

import (
	"context"
	"sync"
	"time"
)

// Clock records every requested sleep and returns immediately
type Clock struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

// Sleep records d
func (c *Clock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.mu.Unlock()
	return ctx.Err()
}

// Sleeps returns a copy of the recorded sleeps in order
func (c *Clock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// Count returns how many sleeps of exactly d were recorded
func (c *Clock) Count(d time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, s := range c.sleeps {
		if s == d {
			n++
		}
	}
	return n
}
