package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lcalzada-xor/geoview/internal/core/domain"
	"github.com/lcalzada-xor/geoview/internal/core/ports"
)

// kv is the subset of redis commands the cache needs.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedGeocoder memoizes search results in Redis. Cache failures are logged
// and fall through to the wrapped geocoder.
type CachedGeocoder struct {
	next   ports.Geocoder
	store  kv
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedGeocoder wraps next with a Redis cache.
func NewCachedGeocoder(next ports.Geocoder, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedGeocoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedGeocoder{next: next, store: client, ttl: ttl, logger: logger}
}

// OpenRedis connects to addr and verifies the connection.
func OpenRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return client, nil
}

func cacheKey(query string, limit int) string {
	return fmt.Sprintf("geoview:geocode:%d:%s", limit, strings.ToLower(strings.TrimSpace(query)))
}

func (c *CachedGeocoder) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	key := cacheKey(query, limit)

	raw, err := c.store.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []domain.SearchResult
		if jerr := json.Unmarshal(raw, &cached); jerr == nil {
			return cached, nil
		}
		c.logger.Warn("discarding corrupt geocode cache entry", "key", key)
	case err != redis.Nil:
		c.logger.Warn("geocode cache read failed", "error", err)
	}

	results, err := c.next.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	if data, jerr := json.Marshal(results); jerr == nil {
		if serr := c.store.Set(ctx, key, data, c.ttl).Err(); serr != nil {
			c.logger.Warn("geocode cache write failed", "error", serr)
		}
	}
	return results, nil
}
