package relay

import (
	"math/rand"
	"time"
)

const backoffMultiplier = 2.0

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	max     time.Duration
	current time.Duration
}

func newBackoff(initial, maxDelay time.Duration) *backoff {
	if maxDelay < initial {
		maxDelay = initial
	}
	return &backoff{max: maxDelay, current: initial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > b.max {
		b.current = b.max
	}
	return d
}
