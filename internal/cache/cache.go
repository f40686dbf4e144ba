package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix       = "rag:"
	domainSetPrefix = "rag:domain:"
)

// Operation kinds namespace cache keys so identical literal text used by
// different operations never collides.
const (
	KindAnswer      = "answer"
	KindExplanation = "explanation"
	KindSetup       = "setup"
)

// DefaultTTL applies to cached engine results.
const DefaultTTL = 24 * time.Hour

// Key derives the deterministic cache key for one engine call. The query text
// is hashed so arbitrary input can't produce unbounded or unsafe keys.
func Key(domainID, kind, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s%s:%s:%s", keyPrefix, domainID, kind, hex.EncodeToString(sum[:]))
}

// ResponseCache memoizes engine results in Redis. It is strictly advisory:
// every store failure degrades to a miss or a no-op and is logged, never
// surfaced to the caller.
type ResponseCache struct {
	client *redis.Client
}

func NewResponseCache(client *redis.Client) *ResponseCache {
	return &ResponseCache{client: client}
}

// Get returns the cached value for key, or ok=false on miss or store failure.
func (c *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		slog.WarnContext(ctx, "cache get failed, treating as miss", "error", err)
		return nil, false
	}
	return val, true
}

// Set stores value under key with the given TTL and records the key in the
// domain's live-key set so InvalidateDomain can purge it wholesale. The set
// membership is given a longer TTL than the entry so it outlives it.
func (c *ResponseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	domainID := domainFromKey(key)

	pipe := c.client.Pipeline()
	pipe.Set(ctx, key, value, ttl)
	if domainID != "" {
		setKey := domainSetPrefix + domainID
		pipe.SAdd(ctx, setKey, key)
		pipe.Expire(ctx, setKey, 2*ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		slog.WarnContext(ctx, "cache set failed, skipping", "error", err)
	}
}

// InvalidateDomain purges every cached entry for every operation kind under
// the domain.
func (c *ResponseCache) InvalidateDomain(ctx context.Context, domainID string) error {
	setKey := domainSetPrefix + domainID

	keys, err := c.client.SMembers(ctx, setKey).Result()
	if err != nil && err != redis.Nil {
		slog.WarnContext(ctx, "cache invalidation read failed", "domain_id", domainID, "error", err)
		return err
	}

	pipe := c.client.Pipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, setKey)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.WarnContext(ctx, "cache invalidation failed", "domain_id", domainID, "error", err)
		return err
	}

	slog.InfoContext(ctx, "domain cache invalidated", "domain_id", domainID, "entries", len(keys))
	return nil
}

// domainFromKey extracts the domain segment from "rag:{domain}:{kind}:{hash}".
func domainFromKey(key string) string {
	if !strings.HasPrefix(key, keyPrefix) {
		return ""
	}
	rest := key[len(keyPrefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == ':' {
			return rest[:i]
		}
	}
	return ""
}
