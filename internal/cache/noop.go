package cache

import (
	"context"
	"time"
)

// Noop implements ReplayCache as an always-miss store. Used when caching is
// disabled or unconfigured; every lookup falls through to the durable
// idempotency record.
type Noop struct{}

// NewNoop returns the no-op replay cache.
func NewNoop() Noop { return Noop{} }

// Get always reports a miss.
func (Noop) Get(context.Context, string) (*Entry, error) { return nil, nil }

// Set discards the entry.
func (Noop) Set(context.Context, string, Entry, time.Duration) error { return nil }
