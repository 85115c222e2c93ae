package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lexum-research/lexum/config"
	"github.com/lexum-research/lexum/internal/research/core"
)

// RedisCache is the answer cache. Keys are hashes of the normalised query
// text; a miss or any Redis error is just a miss, caching never fails a
// request.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

// NewRedisCache connects to Redis. An empty host disables caching and
// returns nil, which the orchestrator treats as cache-off.
func NewRedisCache(cfg config.RedisConfig) *RedisCache {
	if cfg.Host == "" {
		return nil
	}
	port := cfg.Port
	if port == "" {
		port = "6379"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisCache{
		client: client,
		ttl:    ttl,
		logger: log.New(log.Writer(), "[CACHE] ", log.LstdFlags),
	}
}

func cacheKey(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return "answer:" + hex.EncodeToString(sum[:])
}

func (c *RedisCache) Get(ctx context.Context, query string) (core.ResearchResult, bool) {
	raw, err := c.client.Get(ctx, cacheKey(query)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Printf("get failed: %v", err)
		}
		return core.ResearchResult{}, false
	}
	var result core.ResearchResult
	if err := json.Unmarshal(raw, &result); err != nil {
		c.logger.Printf("corrupt cache entry: %v", err)
		return core.ResearchResult{}, false
	}
	return result, true
}

func (c *RedisCache) Set(ctx context.Context, query string, result core.ResearchResult) {
	raw, err := json.Marshal(result)
	if err != nil {
		c.logger.Printf("marshal failed: %v", err)
		return
	}
	if err := c.client.Set(ctx, cacheKey(query), raw, c.ttl).Err(); err != nil {
		c.logger.Printf("set failed: %v", err)
	}
}

// Ping verifies connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error { return c.client.Close() }
