// Package cache provides the read-through response cache used for idempotent provider reads.
package cache

import (
	"context"
	"strings"
	"time"

	"github.com/goccy/go-json"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/19dig/internal/infra/metrics"
)

// DefaultTTL is the lifetime of cached provider responses.
const DefaultTTL = 30 * time.Minute

// Store is a byte-oriented cache backend.
// A miss is reported as (nil, false, nil).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache wraps a Store with a fixed TTL.
type Cache struct {
	store Store
	ttl   time.Duration
}

// New creates a cache over store. A non-positive ttl selects DefaultTTL.
func New(store Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl}
}

// Key builds a cache key from an operation and its parameters.
// Parameters are trimmed and lower-cased so equivalent queries share an entry.
func Key(operation string, params ...string) string {
	var b strings.Builder
	b.WriteString(operation)
	for _, p := range params {
		b.WriteByte(':')
		b.WriteString(strings.ToLower(strings.TrimSpace(p)))
	}
	return b.String()
}

// Fetch returns the cached value for key or calls load and stores its result.
// Errors from load are returned as-is and never cached.
// Backend failures are logged and treated as misses.
// A nil cache always calls load.
func Fetch[T any](ctx context.Context, c *Cache, operation, key string, load func(context.Context) (T, error)) (T, error) {
	if c == nil || c.store == nil {
		return load(ctx)
	}

	raw, ok, err := c.store.Get(ctx, key)
	switch {
	case err != nil:
		metrics.CacheErrors.WithLabelValues(operation, "get").Inc()
		zlog.Warn().Err(err).Msgf("response cache get failed: %s", key)
	case ok:
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			metrics.CacheHits.WithLabelValues(operation).Inc()
			return v, nil
		}
		metrics.CacheErrors.WithLabelValues(operation, "decode").Inc()
		zlog.Warn().Msgf("response cache entry undecodable, reloading: %s", key)
	}
	metrics.CacheMisses.WithLabelValues(operation).Inc()

	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	data, err := json.Marshal(v)
	if err != nil {
		metrics.CacheErrors.WithLabelValues(operation, "set").Inc()
		return v, nil
	}
	if err := c.store.Set(ctx, key, data, c.ttl); err != nil {
		metrics.CacheErrors.WithLabelValues(operation, "set").Inc()
		zlog.Warn().Err(err).Msgf("response cache set failed: %s", key)
	}
	return v, nil
}
