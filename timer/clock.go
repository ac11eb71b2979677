package timer

import (
	"fmt"
	"time"
)

// RoundClock tracks the match countdown. Only the authority calls Advance;
// followers Interpolate between authoritative Sync values, and Sync always wins.
type RoundClock struct {
	total     time.Duration
	remaining time.Duration
}

func NewRoundClock(total time.Duration) *RoundClock {
	return &RoundClock{total: total, remaining: total}
}

func (c *RoundClock) Total() time.Duration {
	return c.total
}

func (c *RoundClock) Remaining() time.Duration {
	return c.remaining
}

func (c *RoundClock) Elapsed() time.Duration {
	return c.total - c.remaining
}

func (c *RoundClock) Expired() bool {
	return c.remaining == 0
}

// Advance subtracts one tick from the remaining time, floored at zero.
func (c *RoundClock) Advance(dt time.Duration) {
	if dt <= 0 {
		return
	}
	c.remaining -= dt
	if c.remaining < 0 {
		c.remaining = 0
	}
}

// Interpolate predicts the countdown locally for display between resyncs.
func (c *RoundClock) Interpolate(dt time.Duration) {
	c.Advance(dt)
}

// Sync replaces the local value with the authoritative one.
func (c *RoundClock) Sync(remaining time.Duration) {
	switch {
	case remaining < 0:
		remaining = 0
	case remaining > c.total:
		remaining = c.total
	}
	c.remaining = remaining
}

func (c *RoundClock) Reset() {
	c.remaining = c.total
}

// Format renders the remaining time as mm:ss.
func (c *RoundClock) Format() string {
	secs := int(c.remaining / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
