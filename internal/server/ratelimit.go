package server

import (
	"sync"
	"time"
)

// lineBudget limits how many lines one connection may have relayed. The
// budget holds at most Burst lines and refills continuously, so an empty
// budget is full again after RefillInterval.
type lineBudget struct {
	mu      sync.Mutex
	burst   float64
	perSec  float64
	left    float64
	updated time.Time
	dropped int
}

// newLineBudget returns nil when limiting is disabled. A nil budget relays
// everything.
func newLineBudget(cfg RateLimitConfig) *lineBudget {
	if cfg.Burst <= 0 {
		return nil
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	burst := float64(cfg.Burst)
	return &lineBudget{
		burst:   burst,
		perSec:  burst / interval.Seconds(),
		left:    burst,
		updated: time.Now(),
	}
}

// take spends one line from the budget. When the budget is empty it returns
// false along with the number of lines dropped so far.
func (b *lineBudget) take(now time.Time) (bool, int) {
	if b == nil {
		return true, 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if elapsed := now.Sub(b.updated); elapsed > 0 {
		b.left = min(b.burst, b.left+elapsed.Seconds()*b.perSec)
		b.updated = now
	}

	if b.left < 1 {
		b.dropped++
		return false, b.dropped
	}
	b.left--
	return true, b.dropped
}
