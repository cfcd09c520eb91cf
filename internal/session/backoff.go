package session

import (
	"math"
	"math/rand"
	"time"
)

// Default reconnection backoff values.
const (
	DefaultInitialBackoff = 2 * time.Second
	DefaultMaxBackoff     = 5 * time.Minute
	backoffMultiplier     = 2.0
	backoffJitter         = 0.1
)

// backoff computes capped exponential reconnection delays. It is
// stateful: each Next() call advances the attempt counter, and Reset()
// is called on every successful folder selection.
type backoff struct {
	initial time.Duration
	max     time.Duration
	attempt int
}

func newBackoff(initial, max time.Duration) *backoff {
	if initial <= 0 {
		initial = DefaultInitialBackoff
	}
	if max <= 0 {
		max = DefaultMaxBackoff
	}
	return &backoff{initial: initial, max: max}
}

// Next returns the delay before the next reconnection attempt.
func (b *backoff) Next() time.Duration {
	d := float64(b.initial) * math.Pow(backoffMultiplier, float64(b.attempt))
	if d > float64(b.max) {
		d = float64(b.max)
	}
	b.attempt++

	// Jitter prevents synchronized reconnect storms.
	jitterRange := d * backoffJitter
	d = d - jitterRange + rand.Float64()*2*jitterRange

	return time.Duration(d)
}

// Reset restarts the backoff sequence from the initial delay.
func (b *backoff) Reset() {
	b.attempt = 0
}
