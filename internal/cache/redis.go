// Redis-backed replay cache.
//
// Entries are stored as JSON strings under the composite key with a bounded
// TTL. All transport failures degrade to cache-miss / no-op semantics: the
// durable idempotency store remains authoritative, so an unreachable Redis
// only costs latency, never correctness.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Redis implements ReplayCache over a go-redis client.
type Redis struct {
	client *redis.Client
}

// NewRedis constructs a Redis replay cache from connection parameters.
func NewRedis(addr, password string, db int) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
	}
}

// Get fetches and decodes an entry, returning (nil, nil) on a miss. Any
// transport or decode failure is logged at warn level and reported as a
// miss so the caller falls through to the durable store.
func (r *Redis) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		log.Warn().Err(err).Msg("replay cache get failed; treating as miss")
		return nil, nil
	}
	var e Entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		log.Warn().Err(err).Msg("replay cache entry undecodable; treating as miss")
		return nil, nil
	}
	return &e, nil
}

// Set encodes and stores an entry with the given TTL. Failures are logged
// and swallowed; the write is best-effort.
func (r *Redis) Set(ctx context.Context, key string, entry Entry, ttl time.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("replay cache set failed")
	}
	return nil
}

// Close releases the underlying client connections.
func (r *Redis) Close() error { return r.client.Close() }
