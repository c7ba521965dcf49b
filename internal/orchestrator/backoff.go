package orchestrator

import "time"

// maxBackoff caps the exponential backoff delay between retry attempts.
const maxBackoff = 30 * time.Second

// Backoff computes exponential retry delays from a base duration.
type Backoff struct {
	// Base is the delay before the first retry.
	Base time.Duration
	// Max caps the delay. Zero means maxBackoff.
	Max time.Duration
}

// Delay returns the delay to wait after the given failed attempt.
// Attempt numbers start at 1 and the delay doubles with each one.
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	max := b.Max
	if max <= 0 {
		max = maxBackoff
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}
