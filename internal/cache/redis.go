package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DomainCache stores MX decisions in Redis so repeated runs skip DNS
type DomainCache struct {
	client *redis.Client
	config *Config
	logger *zap.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// NewDomainCache connects to Redis and verifies the connection
func NewDomainCache(config *Config, logger *zap.Logger) (*DomainCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if config.MaxConnections > 0 {
		opts.PoolSize = config.MaxConnections
	}
	opts.MinIdleConns = config.MinIdleConns

	return newDomainCache(redis.NewClient(opts), config, logger)
}

func newDomainCache(client *redis.Client, config *Config, logger *zap.Logger) (*DomainCache, error) {
	cache := &DomainCache{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cache.client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Domain cache initialized successfully",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Duration("default_ttl", config.DefaultTTL))

	return cache, nil
}

// Get returns the cached decision for domain, if any. Corrupt entries are
// deleted and reported as a miss.
func (dc *DomainCache) Get(ctx context.Context, domain string) (bool, bool, error) {
	key := dc.key(domain)

	data, err := dc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		dc.misses.Add(1)
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("cache lookup failed: %w", err)
	}

	var entry DomainEntry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		dc.logger.Warn("Dropping corrupted cache entry", zap.String("key", key), zap.Error(err))
		dc.client.Del(ctx, key)
		dc.misses.Add(1)
		return false, false, nil
	}

	dc.hits.Add(1)
	dc.logger.Debug("Cache hit", zap.String("domain", domain), zap.Bool("accepted", entry.Accepted))
	return entry.Accepted, true, nil
}

// Set stores the decision for domain with the configured TTL
func (dc *DomainCache) Set(ctx context.Context, domain string, accepted bool) error {
	entry := DomainEntry{
		Domain:   domain,
		Accepted: accepted,
		CachedAt: time.Now(),
		TTL:      int64(dc.config.DefaultTTL.Seconds()),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := dc.client.Set(ctx, dc.key(domain), data, dc.config.DefaultTTL).Err(); err != nil {
		return fmt.Errorf("failed to cache domain: %w", err)
	}
	return nil
}

// GetStats returns cache performance statistics
func (dc *DomainCache) GetStats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{
		Hits:   dc.hits.Load(),
		Misses: dc.misses.Load(),
	}

	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	info, err := dc.client.Info(ctx, "memory").Result()
	if err != nil {
		dc.logger.Debug("Redis memory info unavailable", zap.Error(err))
	}
	for _, line := range strings.Split(info, "\r\n") {
		if memStr, ok := strings.CutPrefix(line, "used_memory:"); ok {
			if mem, err := strconv.ParseInt(memStr, 10, 64); err == nil {
				stats.MemoryUsage = mem
			}
		}
	}

	keys, err := dc.keys(ctx)
	if err != nil {
		return nil, err
	}
	stats.TotalKeys = int64(len(keys))

	return stats, nil
}

// Clear removes all cached domain decisions
func (dc *DomainCache) Clear(ctx context.Context) error {
	keys, err := dc.keys(ctx)
	if err != nil {
		return err
	}

	batchSize := 100
	for i := 0; i < len(keys); i += batchSize {
		end := min(i+batchSize, len(keys))
		if err := dc.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	dc.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection
func (dc *DomainCache) Close() error {
	if dc.client != nil {
		return dc.client.Close()
	}
	return nil
}

func (dc *DomainCache) keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := dc.client.Scan(ctx, 0, dc.config.KeyPrefix+":mx:*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan cache keys: %w", err)
	}
	return keys, nil
}

func (dc *DomainCache) key(domain string) string {
	return fmt.Sprintf("%s:mx:%s", dc.config.KeyPrefix, domain)
}

// maskRedisURL masks the password in a Redis URL for logging
func maskRedisURL(url string) string {
	start := 0
	if i := strings.Index(url, "://"); i >= 0 {
		start = i + 3
	}
	at := strings.LastIndex(url, "@")
	if at < start {
		return url
	}
	colon := strings.Index(url[start:at], ":")
	if colon < 0 {
		return url
	}
	return url[:start+colon+1] + "***" + url[at:]
}
