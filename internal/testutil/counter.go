package testutil

import (
	"fmt"
	"sync"
)

// Counter is a resettable monotonic counter. The harness numbers trace
// steps with it and derives document IDs from it.
//
// Thread-safety: all methods are safe for concurrent use.
type Counter struct {
	mu  sync.Mutex
	seq int64
}

// NewCounter returns a counter whose first Next is 1.
func NewCounter() *Counter {
	return &Counter{}
}

// Next increments and returns the counter.
func (c *Counter) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

// Current returns the last value handed out.
func (c *Counter) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// Reset starts the sequence again at 1.
func (c *Counter) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq = 0
}

// IDs returns a generator of prefix-1, prefix-2 and so on, drawing from c.
func (c *Counter) IDs(prefix string) func() string {
	return func() string {
		return fmt.Sprintf("%s-%d", prefix, c.Next())
	}
}
