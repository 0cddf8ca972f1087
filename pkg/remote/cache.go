package remote

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"

	"github.com/hellf17/clinical-corvus-sub005/internal/domain"
)

// ScoreCache caches remote score results in two tiers: an in-memory LRU for
// hot entries and Redis for shared, longer-lived ones. Keys derive from the
// snapshot content, so any change to the patient data produces a fresh key.
// Without a Redis URL the cache runs memory-only, which is how the standalone
// command line uses it.
type ScoreCache struct {
	memory     *lru.Cache[string, *cachedScore]
	redis      *redis.Client
	defaultTTL time.Duration
}

// cachedScore wraps a result with expiry metadata.
type cachedScore struct {
	Data      *domain.ScoreResult `json:"data"`
	CachedAt  time.Time           `json:"cached_at"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// NewScoreCache creates a new two-tier score cache
func NewScoreCache(config domain.CacheConfig) (*ScoreCache, error) {
	localSize := config.LocalSize
	if localSize <= 0 {
		localSize = 1024
	}

	memory, err := lru.New[string, *cachedScore](localSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory cache: %w", err)
	}

	cache := &ScoreCache{
		memory:     memory,
		defaultTTL: config.DefaultTTL,
	}

	// An empty URL selects the memory-only cache.
	if config.RedisURL == "" {
		return cache, nil
	}

	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Apply cache-specific configurations
	opts.PoolSize = config.PoolSize
	opts.PoolTimeout = config.PoolTimeout
	opts.MaxRetries = config.MaxRetries

	client := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	cache.redis = client
	return cache, nil
}

// Get retrieves a cached score result. The second return reports a hit.
func (c *ScoreCache) Get(ctx context.Context, kind domain.ScoreKind, snap *domain.PatientSnapshot) (*domain.ScoreResult, bool, error) {
	key, err := cacheKey(kind, snap)
	if err != nil {
		return nil, false, err
	}

	// Tier 1: memory
	if cached, ok := c.memory.Get(key); ok {
		if time.Now().Before(cached.ExpiresAt) {
			return cached.Data, true, nil
		}
		c.memory.Remove(key)
	}

	if c.redis == nil {
		return nil, false, nil
	}

	// Tier 2: Redis
	val, err := c.redis.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, false, nil // Cache miss
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get score cache: %w", err)
	}

	var cached cachedScore
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		// Remove corrupted cache entry
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	if time.Now().After(cached.ExpiresAt) {
		c.redis.Del(ctx, key)
		return nil, false, nil
	}

	// Promote to memory tier
	c.memory.Add(key, &cached)
	return cached.Data, true, nil
}

// Set caches a score result in both tiers.
func (c *ScoreCache) Set(ctx context.Context, kind domain.ScoreKind, snap *domain.PatientSnapshot, result *domain.ScoreResult, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}

	key, err := cacheKey(kind, snap)
	if err != nil {
		return err
	}

	cached := &cachedScore{
		Data:      result,
		CachedAt:  time.Now(),
		ExpiresAt: time.Now().Add(ttl),
	}

	c.memory.Add(key, cached)

	if c.redis == nil {
		return nil
	}

	jsonData, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal score cache data: %w", err)
	}

	return c.redis.Set(ctx, key, jsonData, ttl).Err()
}

// Invalidate removes the cached result for one snapshot and kind.
func (c *ScoreCache) Invalidate(ctx context.Context, kind domain.ScoreKind, snap *domain.PatientSnapshot) error {
	key, err := cacheKey(kind, snap)
	if err != nil {
		return err
	}

	c.memory.Remove(key)
	if c.redis == nil {
		return nil
	}
	return c.redis.Del(ctx, key).Err()
}

// Ping checks if Redis connection is alive
func (c *ScoreCache) Ping(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *ScoreCache) Close() error {
	c.memory.Purge()
	if c.redis == nil {
		return nil
	}
	return c.redis.Close()
}

// cacheKey derives a cache key from the score kind and snapshot content.
// Identical snapshots hash identically, which matches the engine's
// deterministic output for unchanged input.
func cacheKey(kind domain.ScoreKind, snap *domain.PatientSnapshot) (string, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to encode snapshot for cache key: %w", err)
	}

	hash := sha256.Sum256(raw)
	return fmt.Sprintf("score:%s:%x", kind.String(), hash[:8]), nil
}
