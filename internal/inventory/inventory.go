package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const cacheKeyPrefix = "shopbot:stock:"

// Source answers stock questions from the system of record.
type Source interface {
	StockLevel(ctx context.Context, businessID, stockRef string) (int, error)
	StockLevels(ctx context.Context, businessID string) (map[string]int, error)
}

// Cache is the subset of the Redis client the oracle needs.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Oracle serves availability lookups through a staleness-bounded cache.
// Checkout re-derives stock verdicts at decision time, so a bounded lag
// behind the source is acceptable; the TTL is that bound.
type Oracle struct {
	source Source
	cache  Cache
	ttl    time.Duration
	logger *slog.Logger
}

// New returns an Oracle reading through cache to source.
func New(source Source, cache Cache, ttl time.Duration, logger *slog.Logger) *Oracle {
	return &Oracle{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: logger.With("component", "inventory"),
	}
}

func cacheKey(businessID, stockRef string) string {
	return cacheKeyPrefix + businessID + ":" + stockRef
}

// AvailableQty returns the units available for a stock reference. Cache
// errors degrade to a direct source read rather than failing the lookup.
func (o *Oracle) AvailableQty(ctx context.Context, businessID, stockRef string) (int, error) {
	key := cacheKey(businessID, stockRef)

	if o.cache != nil {
		var qty int
		found, err := o.cache.GetJSON(ctx, key, &qty)
		if err != nil {
			o.logger.Warn("stock cache read failed", "stock_ref", stockRef, "error", err)
		} else if found {
			return qty, nil
		}
	}

	qty, err := o.source.StockLevel(ctx, businessID, stockRef)
	if err != nil {
		return 0, fmt.Errorf("stock level %s: %w", stockRef, err)
	}

	if o.cache != nil {
		if err := o.cache.SetJSON(ctx, key, qty, o.ttl); err != nil {
			o.logger.Warn("stock cache write failed", "stock_ref", stockRef, "error", err)
		}
	}
	return qty, nil
}

// Reload primes the cache with every stock level of a business, replacing
// whatever was cached before. Used at startup and from the admin endpoint
// after bulk stock edits.
func (o *Oracle) Reload(ctx context.Context, businessID string) (int, error) {
	levels, err := o.source.StockLevels(ctx, businessID)
	if err != nil {
		return 0, fmt.Errorf("load stock levels: %w", err)
	}
	if o.cache == nil {
		return len(levels), nil
	}

	for ref, qty := range levels {
		if err := o.cache.SetJSON(ctx, cacheKey(businessID, ref), qty, o.ttl); err != nil {
			return 0, fmt.Errorf("prime stock cache %s: %w", ref, err)
		}
	}
	o.logger.Info("stock cache reloaded", "business_id", businessID, "refs", len(levels))
	return len(levels), nil
}
