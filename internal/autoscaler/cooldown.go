package autoscaler

import (
	"sync"
	"time"
)

// Cooldown tracks the time of the last scaling attempt.
type Cooldown struct {
	period time.Duration
	now    func() time.Time

	mu   sync.RWMutex
	last time.Time
}

func NewCooldown(period time.Duration, now func() time.Time) *Cooldown {
	if now == nil {
		now = time.Now
	}
	return &Cooldown{period: period, now: now}
}

func (c *Cooldown) Record() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = c.now()
}

func (c *Cooldown) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = time.Time{}
}

func (c *Cooldown) Active() bool {
	return c.Remaining() > 0
}

func (c *Cooldown) Remaining() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.last.IsZero() {
		return 0
	}
	elapsed := c.now().Sub(c.last)
	if elapsed >= c.period {
		return 0
	}
	return c.period - elapsed
}

func (c *Cooldown) LastScaleTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}
