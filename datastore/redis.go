package datastore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/straylight-ai/crucible/types"
)

// RedisCache implements the PromptCache capability on Redis so several
// hosts can share one prompt cache. Run metadata, sessions and chats
// stay in the runner's SQLite database; only the cache is remote.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisCacheOptions configures a RedisCache.
type RedisCacheOptions struct {
	Addr     string
	Password string
	DB       int

	// Prefix namespaces keys; defaults to "crucible:cache".
	Prefix string

	// TTL expires rows; zero keeps them forever.
	TTL time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, opts RedisCacheOptions) (*RedisCache, error) {
	if opts.Prefix == "" {
		opts.Prefix = "crucible:cache"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, types.WrapError(types.DB_OPEN_FAILED, "connecting to redis cache", err)
	}
	return &RedisCache{client: client, prefix: opts.Prefix, ttl: opts.TTL}, nil
}

// Close releases the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// key hashes the prompt text so arbitrarily long prompts stay within
// key-size norms while the full tuple remains recoverable from the row.
func (c *RedisCache) key(k CacheKey) string {
	sum := sha256.Sum256([]byte(k.Prompt))
	return fmt.Sprintf("%s:%s:%s:%s:%s",
		c.prefix, k.RecipeID, k.ConnectorID, k.PromptTemplateID, hex.EncodeToString(sum[:]))
}

type redisRow struct {
	Prompt       string        `json:"prompt"`
	DatasetID    string        `json:"dataset_id"`
	PromptIndex  int           `json:"prompt_index"`
	Target       string        `json:"target"`
	Predicted    string        `json:"predicted_results"`
	Duration     time.Duration `json:"duration"`
	ErrorMessage string        `json:"error_message,omitempty"`
}

// Read implements PromptCache.
func (c *RedisCache) Read(ctx context.Context, key CacheKey, target string) (CacheLookup, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return CacheLookup{State: LookupMiss}, nil
	}
	if err != nil {
		return CacheLookup{}, types.WrapError(types.DB_QUERY_FAILED, "reading redis cache row", err)
	}
	var rr redisRow
	if err := json.Unmarshal([]byte(raw), &rr); err != nil {
		return CacheLookup{}, types.WrapError(types.DB_QUERY_FAILED, "decoding redis cache row", err)
	}
	if rr.Prompt != key.Prompt {
		// hash collision on the prompt digest: treat as miss
		return CacheLookup{State: LookupMiss}, nil
	}
	row := CacheRow{
		CacheKey:     key,
		DatasetID:    rr.DatasetID,
		PromptIndex:  rr.PromptIndex,
		Target:       rr.Target,
		Predicted:    rr.Predicted,
		Duration:     rr.Duration,
		ErrorMessage: rr.ErrorMessage,
	}
	if row.ErrorMessage != "" {
		return CacheLookup{State: LookupFailed, Row: row}, nil
	}
	if row.Target != target {
		return CacheLookup{State: LookupStale, Row: row}, nil
	}
	return CacheLookup{State: LookupHit, Row: row}, nil
}

// Write implements PromptCache.
func (c *RedisCache) Write(ctx context.Context, row CacheRow) error {
	rr := redisRow{
		Prompt:       row.Prompt,
		DatasetID:    row.DatasetID,
		PromptIndex:  row.PromptIndex,
		Target:       row.Target,
		Predicted:    row.Predicted,
		Duration:     row.Duration,
		ErrorMessage: row.ErrorMessage,
	}
	data, err := json.Marshal(rr)
	if err != nil {
		return types.WrapError(types.DB_WRITE_FAILED, "encoding redis cache row", err)
	}
	if err := c.client.Set(ctx, c.key(row.CacheKey), data, c.ttl).Err(); err != nil {
		return types.WrapError(types.DB_WRITE_FAILED, "writing redis cache row", err)
	}
	return nil
}
