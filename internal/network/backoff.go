package network

import "time"

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// AcceptBackoff spaces out retries of a failing Accept, such as one hitting
// the file descriptor limit. Delays start at 5ms and double up to 1s.
// The zero value is ready to use.
type AcceptBackoff struct {
	delay time.Duration
}

// Next returns the delay before the next retry.
func (b *AcceptBackoff) Next() time.Duration {
	if b.delay == 0 {
		b.delay = minAcceptBackoff
	} else {
		b.delay = min(2*b.delay, maxAcceptBackoff)
	}
	return b.delay
}

// Reset starts over after a successful Accept.
func (b *AcceptBackoff) Reset() {
	b.delay = 0
}
