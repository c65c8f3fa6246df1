// Package cache implements the advisory listing cache.
//
// Every backend failure is absorbed: reads degrade to a miss and writes or
// invalidations degrade to a no-op, with a Warn log and an error counter.
// Each backend call runs under its own short timeout.
//
// InvalidateAll bumps an in-process epoch. A Set carrying an epoch captured
// before an invalidation is dropped, so a page read before a write cannot be
// stored after that write's invalidation. Other processes sharing the backend
// are only bounded by the TTL.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ErrMiss is returned by a Backend when the key is absent.
var ErrMiss = errors.New("cache miss")

// Backend is the raw key-value store behind the cache.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) error
}

// Config controls entry lifetime and per-call timeout.
type Config struct {
	TTL     time.Duration
	Timeout time.Duration
}

const (
	// DefaultTTL is the entry lifetime when Config.TTL is unset.
	DefaultTTL = 300 * time.Second
	// DefaultTimeout bounds each backend call when Config.Timeout is unset.
	DefaultTimeout = 2 * time.Second
)

// Cache wraps a Backend with the advisory failure policy. A Cache with a nil
// backend is disabled: every Get misses and writes are dropped.
type Cache struct {
	backend Backend
	cfg     Config

	// mu orders Set against epoch bumps: writers hold it shared, InvalidateAll
	// exclusively.
	mu    sync.RWMutex
	epoch atomic.Uint64

	hits   metric.Int64Counter
	misses metric.Int64Counter
	errs   metric.Int64Counter
}

// New creates a Cache.
func New(backend Backend, cfg Config, meter metric.Meter) (*Cache, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Cache{backend: backend, cfg: cfg}
	var err error
	if c.hits, err = meter.Int64Counter("catalog.cache.hits",
		metric.WithDescription("Listing cache hits")); err != nil {
		return nil, errors.Wrap(err, "create hits counter")
	}
	if c.misses, err = meter.Int64Counter("catalog.cache.misses",
		metric.WithDescription("Listing cache misses")); err != nil {
		return nil, errors.Wrap(err, "create misses counter")
	}
	if c.errs, err = meter.Int64Counter("catalog.cache.errors",
		metric.WithDescription("Absorbed listing cache backend failures")); err != nil {
		return nil, errors.Wrap(err, "create errors counter")
	}
	return c, nil
}

// Get returns the cached value and true on a hit.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.backend == nil {
		return nil, false
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	v, err := c.backend.Get(callCtx, key)
	switch {
	case err == nil:
		c.hits.Add(ctx, 1)
		return v, true
	case errors.Is(err, ErrMiss):
		c.misses.Add(ctx, 1)
	default:
		c.fail(ctx, "get", err)
		c.misses.Add(ctx, 1)
	}
	return nil, false
}

// Epoch returns the invalidation epoch. Capture it before reading the data
// that will be passed to Set.
func (c *Cache) Epoch() uint64 {
	return c.epoch.Load()
}

// Set stores value under key with the configured TTL, unless InvalidateAll
// has run since epoch was captured.
func (c *Cache) Set(ctx context.Context, key string, value []byte, epoch uint64) {
	if c.backend == nil {
		return
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.epoch.Load() != epoch {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := c.backend.Set(callCtx, key, value, c.cfg.TTL); err != nil {
		c.fail(ctx, "set", err)
	}
}

// InvalidateAll drops every listing entry. It returns once the attempt has
// finished or timed out.
func (c *Cache) InvalidateAll(ctx context.Context) {
	c.mu.Lock()
	c.epoch.Add(1)
	c.mu.Unlock()

	if c.backend == nil {
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	if err := c.backend.DeletePrefix(callCtx, ListPrefix); err != nil {
		c.fail(ctx, "invalidate", err)
	}
}

func (c *Cache) fail(ctx context.Context, op string, err error) {
	c.errs.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
	zctx.From(ctx).Warn("Cache unavailable",
		zap.String("op", op),
		zap.Error(err),
	)
}
