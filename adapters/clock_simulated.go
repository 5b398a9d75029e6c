package adapters

import (
	"sync"
	"time"
)

// SimulatedClock advances by a fixed step on every read, so block timestamps
// in tests are strictly increasing and reproducible.
type SimulatedClock struct {
	mu   sync.Mutex
	now  int64
	step int64
}

func NewSimulatedClock(start time.Time, step time.Duration) *SimulatedClock {
	return &SimulatedClock{now: start.UnixNano(), step: int64(step)}
}

func (c *SimulatedClock) UnixNano() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += c.step
	return c.now
}
