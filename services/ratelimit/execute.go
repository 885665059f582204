package ratelimit

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"

	"github.com/lumiohq/syncstack/internal/enum"
	syncerrors "github.com/lumiohq/syncstack/internal/errors"
	"github.com/lumiohq/syncstack/internal/tracing"
)

// ExecuteWithBackoff runs fn under the key's quota with retries.
//
// Limiter waits (our own counter says the window is full) do not consume
// retry slots; only failed executions of fn do. Provider-signaled rate
// limits and transient failures are backed off and retried; anything else
// is fatal and returned immediately. Exhausting retries returns the last
// error.
func ExecuteWithBackoff[T any](ctx context.Context, s *LimiterService, key string, cfg RateLimitConfig, backoffCfg BackoffConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "LimiterService.ExecuteWithBackoff")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.SetTag("limit.key", key)

	var zero T
	var lastErr error

	for attempt := 0; attempt < backoffCfg.MaxRetries; {
		// Wait out our own window before spending an attempt
		check := s.CheckLimit(ctx, key, cfg)
		if !check.Allowed {
			wait := check.RetryAfter
			if wait <= 0 {
				wait = cfg.Window
			}
			span.LogKV("event", "limiter_wait", "wait", wait.String())
			if err := s.sleep(ctx, wait); err != nil {
				return zero, err
			}
			continue
		}

		s.RecordRequest(ctx, key, cfg)

		result, err := fn(ctx)
		if err == nil {
			span.SetTag("attempts", attempt+1)
			return result, nil
		}
		lastErr = err

		var delay time.Duration
		if retryAfter, rateLimited := syncerrors.IsRateLimited(err); rateLimited {
			delay = retryAfter
			if delay <= 0 {
				delay = backoffDelay(backoffCfg, attempt, s.jitter)
			}
			s.log.Warnf("Provider rate limited call for %s, retrying in %v: %v", key, delay, err)
		} else if syncerrors.IsRetryable(err) {
			delay = backoffDelay(backoffCfg, attempt, s.jitter)
			s.log.Warnf("Transient failure for %s, retrying in %v: %v", key, delay, err)
		} else {
			tracing.TraceErr(span, err)
			return zero, err
		}

		attempt++
		if attempt >= backoffCfg.MaxRetries {
			break
		}
		if err := s.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	tracing.TraceErr(span, lastErr)
	return zero, lastErr
}

// ExecuteForProvider is the call-site convenience: it picks the provider's
// quota (falling back to the conservative default for unknown providers)
// and scopes the counter per user and operation.
func ExecuteForProvider[T any](ctx context.Context, s *LimiterService, provider enum.Provider, userID, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "LimiterService.ExecuteForProvider")
	defer span.Finish()
	tracing.TagComponentService(span)
	tracing.TagProvider(span, provider)
	tracing.TagUserId(span, userID)
	span.SetTag("operation", operation)

	cfg := s.ConfigForProvider(provider)
	key := BuildKey(provider, userID, operation)
	return ExecuteWithBackoff(ctx, s, key, cfg, DefaultBackoffConfig(), fn)
}
