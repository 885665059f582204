package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumiohq/syncstack/interfaces"
	"github.com/lumiohq/syncstack/internal/enum"
	"github.com/lumiohq/syncstack/internal/kv"
	"github.com/lumiohq/syncstack/internal/logger"
)

func getLogger() logger.Logger {
	appLogger := logger.NewAppLogger(&logger.Config{
		DevMode: true,
	})
	appLogger.InitLogger()
	return appLogger
}

func newTestLimiter(store interfaces.KVStore) *LimiterService {
	s := NewLimiterService(store, getLogger())
	s.jitter = func() float64 { return 0.5 } // factor 1.0
	s.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return s
}

func TestCheckLimit_WindowExhaustion(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	limiter := newTestLimiter(store)

	cfg := RateLimitConfig{MaxRequests: 3, Window: time.Minute}
	key := BuildKey(enum.ProviderSlack, "u1", "chat.postMessage")

	for i := 0; i < 3; i++ {
		result := limiter.CheckLimit(ctx, key, cfg)
		assert.True(t, result.Allowed)
		limiter.RecordRequest(ctx, key, cfg)
	}

	result := limiter.CheckLimit(ctx, key, cfg)
	assert.False(t, result.Allowed)
	assert.Equal(t, 0, result.Remaining)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestCheckLimit_AllowedAgainAfterWindow(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()

	current := time.Now()
	store.SetClock(func() time.Time { return current })

	limiter := newTestLimiter(store)
	cfg := RateLimitConfig{MaxRequests: 2, Window: time.Minute}
	key := BuildKey(enum.ProviderTwilio, "u1", "messages.create")

	limiter.RecordRequest(ctx, key, cfg)
	limiter.RecordRequest(ctx, key, cfg)
	assert.False(t, limiter.CheckLimit(ctx, key, cfg).Allowed)

	// window elapses, counter expires
	current = current.Add(61 * time.Second)

	result := limiter.CheckLimit(ctx, key, cfg)
	assert.True(t, result.Allowed)
	assert.Equal(t, 2, result.Remaining)
}

func TestCheckLimit_CountersAreScopedPerOperation(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	limiter := newTestLimiter(store)

	cfg := RateLimitConfig{MaxRequests: 1, Window: time.Minute}

	limiter.RecordRequest(ctx, BuildKey(enum.ProviderGmail, "u1", "messages.list"), cfg)

	assert.False(t, limiter.CheckLimit(ctx, BuildKey(enum.ProviderGmail, "u1", "messages.list"), cfg).Allowed)
	assert.True(t, limiter.CheckLimit(ctx, BuildKey(enum.ProviderGmail, "u1", "messages.get"), cfg).Allowed)
	assert.True(t, limiter.CheckLimit(ctx, BuildKey(enum.ProviderGmail, "u2", "messages.list"), cfg).Allowed)
}

// failingStore simulates a store outage on every operation.
type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("store unreachable")
}

func (failingStore) Set(context.Context, string, string, time.Duration) error {
	return errors.New("store unreachable")
}

func (failingStore) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("store unreachable")
}

func (failingStore) Incr(context.Context, string) (int64, error) {
	return 0, errors.New("store unreachable")
}

func (failingStore) Expire(context.Context, string, time.Duration) (bool, error) {
	return false, errors.New("store unreachable")
}

func (failingStore) TTL(context.Context, string) (time.Duration, bool, error) {
	return 0, false, errors.New("store unreachable")
}

func (failingStore) CompareAndDelete(context.Context, string, string) (bool, error) {
	return false, errors.New("store unreachable")
}

func (failingStore) Del(context.Context, ...string) error {
	return errors.New("store unreachable")
}

func TestLimiter_FailsOpenOnStoreOutage(t *testing.T) {
	ctx := context.Background()
	limiter := newTestLimiter(failingStore{})

	cfg := RateLimitConfig{MaxRequests: 1, Window: time.Minute}
	key := BuildKey(enum.ProviderGmail, "u1", "messages.list")

	check := limiter.CheckLimit(ctx, key, cfg)
	assert.True(t, check.Allowed, "store outage must not block provider calls")

	record := limiter.RecordRequest(ctx, key, cfg)
	assert.True(t, record.Allowed)
}

func TestConfigForProvider_UnknownFallsBackToDefault(t *testing.T) {
	limiter := newTestLimiter(kv.NewMemoryStore())

	cfg := limiter.ConfigForProvider(enum.Provider("shinynewapi"))
	assert.Equal(t, 60, cfg.MaxRequests)
	assert.Equal(t, time.Minute, cfg.Window)

	gmail := limiter.ConfigForProvider(enum.ProviderGmail)
	assert.Equal(t, 2500, gmail.MaxRequests)
}

func TestRecordRequest_ReArmsMissingExpiry(t *testing.T) {
	ctx := context.Background()
	store := kv.NewMemoryStore()
	limiter := newTestLimiter(store)

	cfg := RateLimitConfig{MaxRequests: 5, Window: time.Minute}
	key := BuildKey(enum.ProviderAmadeus, "u1", "flight-offers")

	// simulate a crash between INCR and EXPIRE: counter exists, no TTL
	_, err := store.Incr(ctx, counterKeyPrefix+key)
	require.NoError(t, err)

	limiter.RecordRequest(ctx, key, cfg)

	ttl, found, err := store.TTL(ctx, counterKeyPrefix+key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Greater(t, ttl, time.Duration(0), "window must be re-armed")
}
