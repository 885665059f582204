package ratelimit

import "time"

// BackoffConfig shapes the retry delays of ExecuteWithBackoff. Call sites
// override the default when a provider needs gentler pacing.
type BackoffConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// backoffDelay computes the wait before retry number attempt (0-based):
// initial * multiplier^attempt, capped at MaxDelay, jittered by ±25% so
// concurrent callers do not retry in lockstep.
func backoffDelay(cfg BackoffConfig, attempt int, jitter func() float64) time.Duration {
	delay := float64(cfg.InitialDelay)
	for i := 0; i < attempt; i++ {
		delay *= cfg.Multiplier
		if delay >= float64(cfg.MaxDelay) {
			break
		}
	}
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}

	factor := 0.75 + 0.5*jitter()
	return time.Duration(delay * factor)
}
