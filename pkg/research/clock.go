package research

import (
	"sync/atomic"
	"time"
)

// Clock is the wall-clock oracle, in unix seconds.
type Clock interface {
	Now() int64
}

type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().Unix() }

// FixedClock returns a settable instant.
type FixedClock struct {
	t atomic.Int64
}

func NewFixedClock(unix int64) *FixedClock {
	c := &FixedClock{}
	c.t.Store(unix)
	return c
}

func (c *FixedClock) Now() int64 { return c.t.Load() }

func (c *FixedClock) Set(unix int64) { c.t.Store(unix) }

func (c *FixedClock) Advance(d time.Duration) { c.t.Add(int64(d / time.Second)) }
