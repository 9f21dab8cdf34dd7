// Package cache provides the replay cache used by the idempotent execution
// path: a fast, possibly-volatile store of completed responses keyed by
// (merchant, route, idempotency key).
//
// The cache is never authoritative. The durable idempotency record is the
// source of truth; a missing or stale cache entry simply falls through to
// the database, and every backend degrades to "always miss" rather than
// failing a request. Three implementations exist:
//
//   - Redis:  networked backend (go-redis), for multi-process deployments
//   - Memory: in-process map with TTL, for single-process and tests
//   - Noop:   always-miss, for disabling caching entirely
//
// Selection happens once at startup (see NewFromConfig); no scattered
// conditionals elsewhere.
package cache

import (
	"context"
	"fmt"
	"time"
)

// Entry mirrors the completed state of a durable idempotency record: the
// fingerprint of the original request plus the response to replay.
type Entry struct {
	MerchantID          string `json:"merchant_id"`
	Route               string `json:"route"`
	Key                 string `json:"key"`
	RequestHash         string `json:"request_hash"`
	ResponseStatusCode  int    `json:"response_status_code"`
	ResponseBody        string `json:"response_body"`
	ResponseContentType string `json:"response_content_type"`
}

// ReplayCache is the capability interface for response replay storage.
//
// Get returns (nil, nil) on a miss; errors are reserved for situations the
// caller may want to log, and callers must treat any error as a miss.
// Set is best-effort: implementations swallow transport failures where
// possible, and callers never fail a request on a Set error.
type ReplayCache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error
}

// Key builds the composite cache key for one idempotent operation. Segments
// are length-prefixed so that similarly-prefixed merchant, route, or key
// strings can never produce colliding composites (e.g. "a"+"bc" vs "ab"+"c").
func Key(merchantID, route, idempotencyKey string) string {
	return fmt.Sprintf("idempotency:%d:%s:%d:%s:%d:%s",
		len(merchantID), merchantID, len(route), route, len(idempotencyKey), idempotencyKey)
}
