package ratelimit

import (
	"time"

	"github.com/lumiohq/syncstack/internal/enum"
)

// defaultLimit applies to providers without an entry in the table below.
// Deliberately conservative.
var defaultLimit = RateLimitConfig{
	MaxRequests: 60,
	Window:      time.Minute,
}

// providerLimits holds the published quota of each provider we integrate
// with, with headroom left for other consumers of the same credentials.
func providerLimits() map[enum.Provider]RateLimitConfig {
	return map[enum.Provider]RateLimitConfig{
		enum.ProviderGmail: {
			MaxRequests: 2500,
			Window:      time.Minute,
		},
		enum.ProviderGoogleCalendar: {
			MaxRequests: 1500,
			Window:      time.Minute,
		},
		enum.ProviderSlack: {
			MaxRequests: 50,
			Window:      time.Minute,
			RetryAfter:  30 * time.Second,
		},
		enum.ProviderTelegram: {
			MaxRequests: 30,
			Window:      time.Second,
		},
		enum.ProviderTwilio: {
			MaxRequests: 80,
			Window:      time.Minute,
		},
		enum.ProviderAmadeus: {
			MaxRequests: 100,
			Window:      time.Minute,
		},
	}
}
