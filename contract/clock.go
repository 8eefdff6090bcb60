package contract

import (
	"sync"
	"time"
)

// Clock supplies the current time to the engine. Production code uses
// RealClock, tests drive a ManualClock.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock. The result keeps its monotonic reading
// so inactivity checks survive wall clock steps; convert with UTC only when
// a time is stored or shown.
type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
