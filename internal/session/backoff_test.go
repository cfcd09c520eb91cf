package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	bo := newBackoff(time.Second, 8*time.Second)

	prev := time.Duration(0)
	for i := 0; i < 4; i++ {
		d := bo.Next()
		assert.Greater(t, d, prev, "delay must grow on attempt %d", i)
		prev = d
	}

	// Past the cap, delays stay within the jitter band around max.
	for i := 0; i < 5; i++ {
		d := bo.Next()
		assert.InDelta(t, float64(8*time.Second), float64(d),
			float64(8*time.Second)*backoffJitter)
	}
}

func TestBackoffReset(t *testing.T) {
	bo := newBackoff(time.Second, time.Minute)

	for i := 0; i < 5; i++ {
		bo.Next()
	}
	bo.Reset()

	d := bo.Next()
	assert.InDelta(t, float64(time.Second), float64(d),
		float64(time.Second)*backoffJitter)
}

func TestBackoffDefaults(t *testing.T) {
	bo := newBackoff(0, 0)
	assert.Equal(t, DefaultInitialBackoff, bo.initial)
	assert.Equal(t, DefaultMaxBackoff, bo.max)
}
