package social

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xmtp/allow-list-management/internal/redis"
	"github.com/xmtp/allow-list-management/v1/models"
)

const cacheKeyPrefix = "social:profile:"

// ProfileCache is the JSON cache the CachedResolver reads through.
// *redis.RedisClient satisfies it.
type ProfileCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// CachedResolver caches per-address results of an inner resolver, including
// addresses with no profile. Cache failures fall through to the inner resolver.
type CachedResolver struct {
	inner Resolver
	cache ProfileCache
	ttl   time.Duration
}

// NewCachedResolver wraps inner with a read-through cache
func NewCachedResolver(inner Resolver, cache ProfileCache, ttl time.Duration) *CachedResolver {
	return &CachedResolver{inner: inner, cache: cache, ttl: ttl}
}

func (c *CachedResolver) Resolve(ctx context.Context, addresses []string) (map[string]models.Profile, error) {
	addresses = filterAddresses(addresses)
	result := make(map[string]models.Profile, len(addresses))
	misses := make([]string, 0, len(addresses))

	for _, a := range addresses {
		var p models.Profile
		err := c.cache.GetJSON(ctx, cacheKeyPrefix+a, &p)
		switch {
		case err == nil:
			if !p.IsEmpty() {
				result[a] = p
			}
		case errors.Is(err, redis.ErrCacheMiss):
			misses = append(misses, a)
		default:
			slog.Warn("Profile cache read failed", "address", a, "error", err)
			misses = append(misses, a)
		}
	}

	if len(misses) == 0 {
		return result, nil
	}

	resolved, err := c.inner.Resolve(ctx, misses)
	if err != nil {
		return nil, err
	}

	for _, a := range misses {
		p, ok := resolved[a]
		if !ok {
			p = models.Profile{Address: a}
		} else {
			result[a] = p
		}
		if err := c.cache.SetJSON(ctx, cacheKeyPrefix+a, p, c.ttl); err != nil {
			slog.Warn("Profile cache write failed", "address", a, "error", err)
		}
	}
	return result, nil
}
