package sim

import (
	"sync"
	"time"
)

// Clock is a virtual-time core.Delayer: Delay advances the clock instead of
// waiting, by the same (n+1) units a BusyDelay would spin for.
type Clock struct {
	mu   sync.Mutex
	unit time.Duration
	now  time.Duration
}

func NewClock(unit time.Duration) *Clock {
	return &Clock{unit: unit}
}

func (c *Clock) Delay(n uint8) {
	c.Advance((time.Duration(n) + 1) * c.unit)
}

// DelayUnit is the virtual length of one delay unit.
func (c *Clock) DelayUnit() time.Duration {
	return c.unit
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	c.mu.Unlock()
}

// Now is the virtual time elapsed since the clock was created.
func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}
