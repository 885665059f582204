package ratelimit

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/lumiohq/syncstack/interfaces"
	"github.com/lumiohq/syncstack/internal/enum"
	"github.com/lumiohq/syncstack/internal/logger"
	"github.com/lumiohq/syncstack/internal/tracing"
)

const counterKeyPrefix = "ratelimit:"

// RateLimitConfig is one provider's quota: at most MaxRequests calls inside
// each fixed window.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
	RetryAfter  time.Duration
}

// RateLimitResult is the limiter's verdict for one key at one instant.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// LimiterService gates calls to external providers with fixed-window
// counters in the shared store. Window-boundary bursts are an accepted
// approximation of the quota.
type LimiterService struct {
	store  interfaces.KVStore
	log    logger.Logger
	limits map[enum.Provider]RateLimitConfig

	// jitter returns a uniform sample in [0,1); injectable for tests
	jitter func() float64
	// sleep waits for d or until ctx is done; injectable for tests
	sleep func(ctx context.Context, d time.Duration) error
}

func NewLimiterService(store interfaces.KVStore, log logger.Logger) *LimiterService {
	return &LimiterService{
		store:  store,
		log:    log,
		limits: providerLimits(),
		jitter: rand.Float64,
		sleep:  sleepWithContext,
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// BuildKey scopes a counter per user and per operation within a provider;
// limits are never shared across operations.
func BuildKey(provider enum.Provider, userID, operation string) string {
	return fmt.Sprintf("%s:%s:%s", provider, userID, operation)
}

// ConfigForProvider returns the provider's quota, or a conservative default
// for providers without a configured one.
func (s *LimiterService) ConfigForProvider(provider enum.Provider) RateLimitConfig {
	if cfg, ok := s.limits[provider]; ok {
		return cfg
	}
	return defaultLimit
}

// CheckLimit reads the current counter without mutating it. On store
// failure the limiter fails open: blocking every provider call on a store
// outage would be worse than briefly exceeding a quota.
func (s *LimiterService) CheckLimit(ctx context.Context, key string, cfg RateLimitConfig) RateLimitResult {
	span, ctx := opentracing.StartSpanFromContext(ctx, "LimiterService.CheckLimit")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.SetTag("limit.key", key)

	counterKey := counterKeyPrefix + key

	value, found, err := s.store.Get(ctx, counterKey)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Warnf("Rate limit check failed for %s, failing open: %v", key, err)
		return RateLimitResult{Allowed: true, Remaining: cfg.MaxRequests, ResetAt: time.Now().Add(cfg.Window)}
	}

	count := 0
	if found {
		count, _ = strconv.Atoi(value)
	}

	ttl := cfg.Window
	if found {
		if remaining, exists, ttlErr := s.store.TTL(ctx, counterKey); ttlErr == nil && exists && remaining > 0 {
			ttl = remaining
		}
	}

	result := RateLimitResult{
		Allowed:   count < cfg.MaxRequests,
		Remaining: cfg.MaxRequests - count,
		ResetAt:   time.Now().Add(ttl),
	}
	if result.Remaining < 0 {
		result.Remaining = 0
	}
	if !result.Allowed {
		result.RetryAfter = ttl
		if cfg.RetryAfter > 0 && cfg.RetryAfter < ttl {
			result.RetryAfter = cfg.RetryAfter
		}
	}

	span.SetTag("limit.allowed", result.Allowed)
	span.SetTag("limit.remaining", result.Remaining)
	return result
}

// RecordRequest counts one call against the key's window. The window TTL is
// armed when the counter is created; a counter found without expiry (a
// crash between INCR and EXPIRE) is re-armed rather than left to grow
// forever.
func (s *LimiterService) RecordRequest(ctx context.Context, key string, cfg RateLimitConfig) RateLimitResult {
	span, ctx := opentracing.StartSpanFromContext(ctx, "LimiterService.RecordRequest")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.SetTag("limit.key", key)

	counterKey := counterKeyPrefix + key

	count, err := s.store.Incr(ctx, counterKey)
	if err != nil {
		tracing.TraceErr(span, err)
		s.log.Warnf("Rate limit record failed for %s, failing open: %v", key, err)
		return RateLimitResult{Allowed: true, Remaining: cfg.MaxRequests, ResetAt: time.Now().Add(cfg.Window)}
	}

	ttl := cfg.Window
	if count == 1 {
		if _, err := s.store.Expire(ctx, counterKey, cfg.Window); err != nil {
			tracing.TraceErr(span, err)
			s.log.Warnf("Failed to arm rate limit window for %s: %v", key, err)
		}
	} else if remaining, exists, ttlErr := s.store.TTL(ctx, counterKey); ttlErr == nil && exists {
		if remaining > 0 {
			ttl = remaining
		} else {
			// counter exists with no expiry
			if _, err := s.store.Expire(ctx, counterKey, cfg.Window); err != nil {
				tracing.TraceErr(span, err)
			}
		}
	}

	result := RateLimitResult{
		Allowed:   count <= int64(cfg.MaxRequests),
		Remaining: cfg.MaxRequests - int(count),
		ResetAt:   time.Now().Add(ttl),
	}
	if result.Remaining < 0 {
		result.Remaining = 0
	}
	if !result.Allowed {
		result.RetryAfter = ttl
	}

	span.SetTag("limit.count", count)
	return result
}
