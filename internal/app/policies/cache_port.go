package policies

import (
	"context"

	"stayrate/internal/domain/rating"
)

// AggregateCache is the read-through cache port for rating aggregates. Get
// reports whether the key was present; a miss is not an error.
type AggregateCache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// AggregateCacheKey is the cache key convention shared by the read and
// invalidation paths.
func AggregateCacheKey(entity rating.EntityRef) string {
	return "agg:" + entity.Key()
}
