// Package catalog caches vehicle catalog lookups for the lifetime of a
// session. Each key moves through Unfetched, Fetching and then Cached or
// Failed; concurrent callers of the same key share one provider call.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rubiojr/tripcost/internal/metrics"
	"github.com/rubiojr/tripcost/internal/trip"
	"golang.org/x/sync/singleflight"
)

// DefaultSpecCooldown is how long a failed spec lookup is answered from
// memory before the provider is asked again.
const DefaultSpecCooldown = 900 * time.Millisecond

const (
	opBrands = "brands"
	opModels = "models"
	opSpec   = "spec"
)

// Provider is the upstream vehicle catalog.
type Provider interface {
	ListBrands(ctx context.Context, year int) ([]trip.Option, error)
	ListModels(ctx context.Context, brandKey string) ([]trip.Option, error)
	GetSpec(ctx context.Context, brandKey, modelKey string, year int) (trip.VehicleSpec, error)
}

type State int

const (
	Unfetched State = iota
	Fetching
	Cached
	Failed
)

func (s State) String() string {
	switch s {
	case Fetching:
		return "fetching"
	case Cached:
		return "cached"
	case Failed:
		return "failed"
	default:
		return "unfetched"
	}
}

type failure struct {
	err error
	at  time.Time
}

type Option func(*Cache)

// WithCooldown overrides DefaultSpecCooldown.
func WithCooldown(d time.Duration) Option {
	return func(c *Cache) { c.cooldown = d }
}

// WithLogger sets the logger used for fetch diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// Cache is a session scoped, read-through cache in front of a Provider.
// It is safe for concurrent use and meant to be shared by every
// orchestrator of a session.
type Cache struct {
	provider Provider
	log      *slog.Logger
	cooldown time.Duration
	now      func() time.Time

	group singleflight.Group
	store *cache.Cache

	mu       sync.Mutex
	states   map[string]State
	failures map[string]failure
	// epoch counts reloads; fetches started in an older epoch are not stored.
	epoch    uint64
}

func New(p Provider, opts ...Option) *Cache {
	c := &Cache{
		provider: p,
		log:      slog.New(slog.DiscardHandler),
		cooldown: DefaultSpecCooldown,
		now:      time.Now,
		store:    cache.New(cache.NoExpiration, 0),
		states:   make(map[string]State),
		failures: make(map[string]failure),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func BrandsKey(year int) string {
	return "brands|" + strconv.Itoa(year)
}

func ModelsKey(brandKey string) string {
	return "models|" + normalize(brandKey)
}

func SpecKey(brandKey, modelKey string, year int) string {
	return fmt.Sprintf("spec|%s|%s|%d", normalize(brandKey), normalize(modelKey), year)
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// ListBrands returns the brands available for year (0 for the provider default).
func (c *Cache) ListBrands(ctx context.Context, year int) ([]trip.Option, error) {
	return fetch(ctx, c, opBrands, BrandsKey(year), func(ctx context.Context) ([]trip.Option, error) {
		return c.provider.ListBrands(ctx, year)
	})
}

// ListModels returns the models of a brand.
func (c *Cache) ListModels(ctx context.Context, brandKey string) ([]trip.Option, error) {
	if strings.TrimSpace(brandKey) == "" {
		return nil, &trip.InputError{Field: "brand", Reason: "a vehicle brand is required"}
	}
	return fetch(ctx, c, opModels, ModelsKey(brandKey), func(ctx context.Context) ([]trip.Option, error) {
		return c.provider.ListModels(ctx, brandKey)
	})
}

// GetSpec returns the specification of a brand, model and year.
func (c *Cache) GetSpec(ctx context.Context, brandKey, modelKey string, year int) (trip.VehicleSpec, error) {
	return fetch(ctx, c, opSpec, SpecKey(brandKey, modelKey, year), func(ctx context.Context) (trip.VehicleSpec, error) {
		return c.provider.GetSpec(ctx, brandKey, modelKey, year)
	})
}

// State reports the lifecycle state of a cache key.
func (c *Cache) State(key string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[key]
}

// Reload drops every cached entry and failure. It is the only way to
// invalidate the cache. Fetches still in flight finish for their callers
// but their results are discarded.
func (c *Cache) Reload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.store.Flush()
	for k := range c.states {
		c.group.Forget(k)
	}
	clear(c.states)
	clear(c.failures)
}

// startFetch marks key as fetching and returns the current epoch.
func (c *Cache) startFetch(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states[key] = Fetching
	return c.epoch
}

// cooling returns the recorded failure of key when it is still inside
// the spec cool-down window, nil otherwise.
func (c *Cache) cooling(op, key string) error {
	if op != opSpec || c.cooldown <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.failures[key]
	if !ok || c.now().Sub(f.at) >= c.cooldown {
		return nil
	}
	return f.err
}

func fetch[T any](ctx context.Context, c *Cache, op, key string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if v, ok := c.store.Get(key); ok {
		metrics.CatalogLookups.WithLabelValues(op, "hit").Inc()
		return v.(T), nil
	}

	if err := c.cooling(op, key); err != nil {
		metrics.CatalogLookups.WithLabelValues(op, "suppressed").Inc()
		c.log.Debug("catalog lookup suppressed by cool-down", "key", key, "error", err)
		return zero, err
	}

	metrics.CatalogLookups.WithLabelValues(op, "miss").Inc()

	// The shared fetch outlives any single caller's cancellation.
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		if v, ok := c.store.Get(key); ok {
			return v, nil
		}

		epoch := c.startFetch(key)
		c.log.Debug("fetching catalog entry", "key", key)

		v, err := fn(fetchCtx)
		if err != nil {
			err = trip.NewProviderError("catalog", err)
			c.mu.Lock()
			if c.epoch == epoch {
				c.states[key] = Failed
				c.failures[key] = failure{err: err, at: c.now()}
			}
			c.mu.Unlock()
			metrics.CatalogFetches.WithLabelValues(op, "error").Inc()
			c.log.Warn("catalog fetch failed", "key", key, "error", err)
			return nil, err
		}

		c.mu.Lock()
		if c.epoch == epoch {
			c.store.Set(key, v, cache.NoExpiration)
			c.states[key] = Cached
			delete(c.failures, key)
		} else {
			c.log.Debug("discarding catalog entry fetched before reload", "key", key)
		}
		c.mu.Unlock()
		metrics.CatalogFetches.WithLabelValues(op, "ok").Inc()
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}
