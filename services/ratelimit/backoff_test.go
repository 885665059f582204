package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay_GrowsUntilCap(t *testing.T) {
	cfg := BackoffConfig{
		MaxRetries:   10,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
	noJitter := func() float64 { return 0.5 } // factor 1.0

	var previous time.Duration
	for attempt := 0; attempt < 10; attempt++ {
		delay := backoffDelay(cfg, attempt, noJitter)
		assert.GreaterOrEqual(t, delay, previous, "delay must be non-decreasing")
		assert.LessOrEqual(t, delay, cfg.MaxDelay)
		previous = delay
	}

	assert.Equal(t, 100*time.Millisecond, backoffDelay(cfg, 0, noJitter))
	assert.Equal(t, 200*time.Millisecond, backoffDelay(cfg, 1, noJitter))
	assert.Equal(t, 400*time.Millisecond, backoffDelay(cfg, 2, noJitter))
	assert.Equal(t, 2*time.Second, backoffDelay(cfg, 9, noJitter))
}

func TestBackoffDelay_JitterBounds(t *testing.T) {
	cfg := BackoffConfig{
		MaxRetries:   5,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	for attempt := 0; attempt < 5; attempt++ {
		unjittered := backoffDelay(cfg, attempt, func() float64 { return 0.5 })

		low := backoffDelay(cfg, attempt, func() float64 { return 0.0 })
		high := backoffDelay(cfg, attempt, func() float64 { return 0.999999 })

		assert.InDelta(t, float64(unjittered)*0.75, float64(low), float64(time.Millisecond))
		assert.InDelta(t, float64(unjittered)*1.25, float64(high), float64(10*time.Millisecond))
	}
}
