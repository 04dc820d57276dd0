package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedOperationIDs(t *testing.T) {
	gen := NewFixedOperationIDs("op-roof")
	assert.Equal(t, "op-roof", gen.Generate())
	assert.Equal(t, "op-roof", gen.Generate())

	assert.Equal(t, "op-test", NewFixedOperationIDs("").Generate())
}

func TestCounter(t *testing.T) {
	c := NewCounter()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())

	c.Reset()
	assert.Equal(t, int64(1), c.Next())
}

func TestCounterIDs(t *testing.T) {
	c := NewCounter()
	next := c.IDs("node")
	assert.Equal(t, "node-1", next())
	assert.Equal(t, "node-2", next())
	assert.Equal(t, int64(2), c.Current())
}

func TestCounterConcurrent(t *testing.T) {
	c := NewCounter()
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				c.Next()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1000), c.Current())
}
