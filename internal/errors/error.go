package errors

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	// coordination errors
	ErrLockContention   = errors.New("sync already in progress for this user and provider")
	ErrProgressNotFound = errors.New("sync progress record not found")
	ErrStoreUnavailable = errors.New("shared store unavailable")

	// checkpoint errors
	ErrInvalidCheckpoint = errors.New("sync token rejected by provider")

	// webhook errors
	ErrSecretNotConfigured = errors.New("webhook secret not configured")

	// integration errors
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrUnknownProvider     = errors.New("unknown provider")
)

// RateLimitError signals that a provider reported an over-quota condition.
// RetryAfter carries the provider-declared wait when one was given.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited by %s, retry after %s", e.Provider, e.RetryAfter)
	}
	return fmt.Sprintf("rate limited by %s", e.Provider)
}

// ProviderError wraps a provider API failure with its HTTP status code so the
// retry loop can classify it.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s request failed with status %d: %v", e.Provider, e.StatusCode, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRateLimited reports whether err is a provider-signaled over-quota
// condition, and the provider-declared retry-after if one was supplied.
func IsRateLimited(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}

	var rateErr *RateLimitError
	if errors.As(err, &rateErr) {
		return rateErr.RetryAfter, true
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) && provErr.StatusCode == 429 {
		return 0, true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"429", "rate limit", "too many requests", "quota exceeded"} {
		if strings.Contains(msg, pattern) {
			return 0, true
		}
	}
	return 0, false
}

// IsRetryable reports whether err is a transient provider failure worth
// backing off and retrying. Anything that is neither retryable nor rate
// limited is fatal and must be surfaced immediately.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.StatusCode >= 500 && provErr.StatusCode <= 599
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{"timeout", "timed out", "connection reset", "connection refused", "temporarily unavailable", "502", "503", "504"} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
