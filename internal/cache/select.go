package cache

import (
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-payments-backend/internal/config"
)

// NewFromConfig picks the replay cache backend once at startup:
//
//   - "off":   Noop (caching disabled)
//   - "redis": Redis (requires REDIS_ADDR)
//   - "memory": Memory
//   - "auto":  Redis when REDIS_ADDR is set, otherwise Memory
//
// An explicit "redis" selection without an address falls back to Noop with
// a warning rather than failing startup; the durable store keeps the system
// correct.
func NewFromConfig(cfg config.CacheConfig) ReplayCache {
	switch cfg.Backend {
	case "off":
		return NewNoop()
	case "redis":
		if cfg.RedisAddr == "" {
			log.Warn().Msg("CACHE_BACKEND=redis but REDIS_ADDR empty; replay cache disabled")
			return NewNoop()
		}
		return NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	case "memory":
		return NewMemory()
	default: // "auto"
		if cfg.RedisAddr != "" {
			return NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		}
		return NewMemory()
	}
}
