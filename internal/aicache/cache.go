package aicache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/thebtf/scribe/pkg/models"
)

// DefaultTTL is the entry lifetime used when none is configured.
const DefaultTTL = 24 * time.Hour

// Store persists cache entries. Get returns (nil, nil) on a miss; expired
// entries count as misses and may be garbage-collected by the store.
type Store interface {
	Get(ctx context.Context, fingerprint string) (*models.BatchResponse, error)
	Set(ctx context.Context, fingerprint string, resp models.BatchResponse, ttl time.Duration) error
	Delete(ctx context.Context, fingerprint string) error
	Close() error
}

// ComputeFunc produces a response when the cache has none.
type ComputeFunc func(ctx context.Context) (models.BatchResponse, error)

// Stats are cumulative cache counters for one Cache instance.
type Stats struct {
	Hits   int64
	Misses int64
}

// Cache wraps a Store with single-flight semantics: concurrent callers for
// the same fingerprint share one computation, and the result is stored
// before any of them unblock.
type Cache struct {
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a Cache over the given store. ttl <= 0 selects DefaultTTL.
func New(store Store, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{store: store, ttl: ttl}
}

// GetOrCompute returns the cached response for fingerprint, or runs compute
// exactly once across all concurrent callers and stores the result before
// returning it. Store failures degrade to a plain compute; the cache never
// fails a run. cached reports whether the response came from the store
// without invoking compute.
func (c *Cache) GetOrCompute(ctx context.Context, fingerprint string, compute ComputeFunc) (resp models.BatchResponse, cached bool, err error) {
	type flightResult struct {
		resp   models.BatchResponse
		cached bool
	}

	v, err, _ := c.group.Do(fingerprint, func() (interface{}, error) {
		if hit, lookupErr := c.store.Get(ctx, fingerprint); lookupErr != nil {
			log.Warn().Err(lookupErr).Str("fingerprint", fingerprint).Msg("Cache lookup failed, computing")
		} else if hit != nil {
			c.hits.Add(1)
			return flightResult{resp: *hit, cached: true}, nil
		}

		c.misses.Add(1)
		computed, computeErr := compute(ctx)
		if computeErr != nil {
			return nil, computeErr
		}
		if storeErr := c.store.Set(ctx, fingerprint, computed, c.ttl); storeErr != nil {
			log.Warn().Err(storeErr).Str("fingerprint", fingerprint).Msg("Cache store failed, result not persisted")
		}
		return flightResult{resp: computed}, nil
	})
	if err != nil {
		return models.BatchResponse{}, false, err
	}

	fr := v.(flightResult)
	return fr.resp, fr.cached, nil
}

// Invalidate drops any stored entry for fingerprint and forgets in-flight
// dedup state, so the next GetOrCompute bypasses the stale response.
// Used by the analyzer when a cached response fails validation downstream.
func (c *Cache) Invalidate(ctx context.Context, fingerprint string) {
	c.group.Forget(fingerprint)
	if err := c.store.Delete(ctx, fingerprint); err != nil {
		log.Warn().Err(err).Str("fingerprint", fingerprint).Msg("Cache invalidation failed")
	}
}

// Stats returns a snapshot of the hit/miss counters.
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}
