/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cache provides a Redis-based cache for link metadata, so a link
// validated by the robot is not resolved again by the download pipeline.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/friendsincode/jukebot/internal/models"
	"github.com/friendsincode/jukebot/internal/telemetry"
)

// DefaultMetadataTTL bounds how long a resolved link is trusted.
const DefaultMetadataTTL = 24 * time.Hour

// KeyMetadata prefixes cached link metadata; the suffix is a hash of the link.
const KeyMetadata = "cache:meta:"

// Config contains cache configuration.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Prefix        string

	MetadataTTL time.Duration

	// Fallback behavior
	DisableOnError bool // If true, disable caching on Redis errors
}

// DefaultConfig returns default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisAddr:      "localhost:6379",
		Prefix:         "jukebot",
		MetadataTTL:    DefaultMetadataTTL,
		DisableOnError: true,
	}
}

// Extractor resolves a link without downloading it.
type Extractor interface {
	Extract(ctx context.Context, link string) (models.Metadata, error)
}

// Fetcher is an Extractor that can also download.
type Fetcher interface {
	Extractor
	Download(ctx context.Context, link, outputTemplate string) (string, error)
}

// Cache provides Redis-backed caching with graceful fallback. When Redis is
// unreachable every call goes straight to the wrapped extractor.
type Cache struct {
	client *redis.Client
	logger zerolog.Logger
	config Config

	mu       sync.RWMutex
	disabled bool // Circuit breaker state
}

// New creates a new cache instance. An unreachable Redis is not an error.
func New(cfg Config, logger zerolog.Logger) (*Cache, error) {
	if cfg.MetadataTTL <= 0 {
		cfg.MetadataTTL = DefaultMetadataTTL
	}
	logger = logger.With().Str("component", "cache").Logger()

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     4,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("Redis cache unavailable, running without caching")
		_ = client.Close()
		return &Cache{logger: logger, config: cfg, disabled: true}, nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("Redis cache initialized")
	return &Cache{client: client, logger: logger, config: cfg}, nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// IsAvailable returns true if the cache is operational.
func (c *Cache) IsAvailable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.disabled && c.client != nil
}

// handleError handles Redis errors with circuit breaker logic.
func (c *Cache) handleError(err error, operation string) {
	if err == nil || err == redis.Nil {
		return
	}

	c.logger.Debug().Err(err).Str("operation", operation).Msg("cache operation failed")

	if c.config.DisableOnError {
		c.mu.Lock()
		c.disabled = true
		c.mu.Unlock()
		c.logger.Warn().Msg("disabling cache due to Redis error")
	}
}

// get retrieves a value from cache and unmarshals it.
func (c *Cache) get(ctx context.Context, key string, dest any) (bool, error) {
	if !c.IsAvailable() {
		return false, nil
	}

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		c.handleError(err, "get")
		return false, err
	}

	if err := json.Unmarshal(data, dest); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("failed to unmarshal cached value")
		return false, nil
	}

	return true, nil
}

// set stores a value in cache with TTL.
func (c *Cache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if !c.IsAvailable() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal cache value: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		c.handleError(err, "set")
		return err
	}

	return nil
}

func (c *Cache) metadataKey(link string) string {
	sum := sha256.Sum256([]byte(link))
	return c.config.Prefix + ":" + KeyMetadata + hex.EncodeToString(sum[:16])
}

// GetMetadata returns cached metadata for link.
func (c *Cache) GetMetadata(ctx context.Context, link string) (models.Metadata, bool) {
	var meta models.Metadata
	found, _ := c.get(ctx, c.metadataKey(link), &meta)
	return meta, found
}

// SetMetadata caches metadata for link.
func (c *Cache) SetMetadata(ctx context.Context, link string, meta models.Metadata) error {
	return c.set(ctx, c.metadataKey(link), meta, c.config.MetadataTTL)
}

// Wrap returns a fetcher whose Extract consults the cache first. Failed
// extractions are never cached.
func (c *Cache) Wrap(next Fetcher) *CachedFetcher {
	return &CachedFetcher{next: next, cache: c}
}

// CachedFetcher is a Fetcher backed by the metadata cache.
type CachedFetcher struct {
	next  Fetcher
	cache *Cache
}

// Extract resolves link, from cache when possible.
func (f *CachedFetcher) Extract(ctx context.Context, link string) (models.Metadata, error) {
	if meta, ok := f.cache.GetMetadata(ctx, link); ok {
		telemetry.CacheLookupsTotal.WithLabelValues("metadata", "hit").Inc()
		return meta, nil
	}
	telemetry.CacheLookupsTotal.WithLabelValues("metadata", "miss").Inc()

	meta, err := f.next.Extract(ctx, link)
	if err != nil {
		return meta, err
	}
	_ = f.cache.SetMetadata(ctx, link, meta)
	return meta, nil
}

// Download is never cached.
func (f *CachedFetcher) Download(ctx context.Context, link, outputTemplate string) (string, error) {
	return f.next.Download(ctx, link, outputTemplate)
}
