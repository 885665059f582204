package interfaces

import (
	"context"
	"time"
)

// KVStore is the shared counter/lock store every process coordinates
// through. Implementations must make Incr, SetNX and CompareAndDelete
// atomic; everything in the resilience layer leans on that.
type KVStore interface {
	// Get returns the value for key and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key with the given TTL. A zero TTL means no
	// expiry.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// SetNX stores value under key only if the key does not already exist,
	// returning whether the write happened.
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)

	// Incr atomically increments the integer counter at key, creating it at
	// 1 if absent, and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets the TTL of an existing key, returning whether the key
	// exists.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// TTL returns the remaining TTL for key and whether the key exists. A
	// key without expiry reports a negative duration.
	TTL(ctx context.Context, key string) (time.Duration, bool, error)

	// CompareAndDelete removes key only if its current value equals value,
	// returning whether the delete happened.
	CompareAndDelete(ctx context.Context, key string, value string) (bool, error)

	// Del removes the given keys. Missing keys are not an error.
	Del(ctx context.Context, keys ...string) error
}
