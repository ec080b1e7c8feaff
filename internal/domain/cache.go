package domain

import (
	"context"
	"time"
)

// Cache stores serialized reports keyed by ledger content hash, so an
// identical upload returns the already-computed report. Determinism of the
// engine (same bytes in, same report out) is what makes this sound.
type Cache interface {
	// Get retrieves a value. Returns nil, nil on a miss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value.
	Delete(ctx context.Context, key string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// EnableTwoPhase checks the local LRU first, then Redis.
	EnableTwoPhase bool
}
