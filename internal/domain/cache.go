package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require tenantID for strict multi-tenancy isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetResult retrieves a cached analytics result by dataset hash.
	// The engine is deterministic, so a hash hit replays the stored result.
	GetResult(ctx context.Context, tenantID string, datasetHash string) (*AnalyticsResult, error)

	// SetResult caches an analytics result keyed by its dataset hash.
	SetResult(ctx context.Context, tenantID string, datasetHash string, result *AnalyticsResult, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used for run-velocity checks (e.g., runs per engagement in a window).
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	// GetCounter reads a counter without incrementing it.
	// Returns found=false when the counter is absent or expired.
	GetCounter(ctx context.Context, tenantID string, key string) (count int64, found bool, err error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
