// Package cache holds short-lived state that every API instance must agree
// on: rate-limit windows and single-use claims. Redis backs it when
// configured, the primary database otherwise.
package cache

import (
	"context"
	"time"
)

const defaultWindow = time.Minute

type Store interface {
	// IncrementWithTTL counts a hit on key. The window opens on the first hit
	// and is not extended by later ones.
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	// Claim marks key as used for ttl. Only the first caller gets true.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

var (
	_ Store = (*RedisClient)(nil)
	_ Store = (*DatabaseStore)(nil)
)

func windowOr(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultWindow
	}
	return d
}
