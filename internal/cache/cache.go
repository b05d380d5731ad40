// Package cache holds short-lived derived values such as dashboard KPIs.
// Values are pure functions of stored data, so concurrent populate races are
// harmless: the last writer wins.
package cache

import (
	"context"
	"time"
)

// Cache stores JSON-serializable values with an expiry.
type Cache interface {
	// Get decodes the cached value into dst and reports whether it existed.
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Nop never stores anything.
type Nop struct{}

// Get always misses.
func (Nop) Get(context.Context, string, any) (bool, error) { return false, nil }

// Set discards value.
func (Nop) Set(context.Context, string, any, time.Duration) error { return nil }

// Delete is a no-op.
func (Nop) Delete(context.Context, string) error { return nil }
