// Package listing serves paginated catalog listings, flat or grouped by
// design. Flat public pages are cache-aside; grouped pages and owner-scoped
// pages always hit the store.
package listing

import (
	"context"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/apparel-catalog/internal/cache"
	"github.com/xenking/apparel-catalog/internal/domain/catalog"
	"github.com/xenking/apparel-catalog/internal/domain/refdata"
)

// GroupByDesign selects the grouped listing shape.
const GroupByDesign = "design"

const (
	// DefaultLimit is the page size when neither the query nor Config sets one.
	DefaultLimit = 10
	// MaxLimit is the largest page size when Config does not set one.
	MaxLimit = 100
)

// Store is the read side of the variant store used by listings.
type Store interface {
	QueryVariants(ctx context.Context, f catalog.Filter, p catalog.Page) ([]catalog.Item, int, error)
}

// Refs resolves size and type filters and the size display order.
type Refs interface {
	Size(ctx context.Context, code string) (refdata.Size, error)
	DesignType(ctx context.Context, name string) (string, error)
	Order(ctx context.Context) (map[string]int, error)
}

// Cache is the advisory page cache. Set drops the value when the cache was
// invalidated after epoch was taken from Epoch.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Epoch() uint64
	Set(ctx context.Context, key string, value []byte, epoch uint64)
}

// Config holds pagination bounds.
type Config struct {
	DefaultLimit int
	MaxLimit     int
}

// Query is a listing request. Page 0 and Limit 0 select the defaults.
type Query struct {
	Filter  catalog.Filter
	Page    int
	Limit   int
	GroupBy string
}

// Result is one listing page. Items is set for flat listings, Groups for
// grouped ones. Total and TotalPages count variants or groups respectively.
type Result struct {
	Items      []catalog.Item
	Groups     []Group
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

// Engine serves listings.
type Engine struct {
	store  Store
	cache  Cache
	refs   Refs
	cfg    Config
	tracer trace.Tracer
}

// NewEngine creates an Engine. A nil cache disables caching.
func NewEngine(store Store, c Cache, refs Refs, cfg Config, tracer trace.Tracer) *Engine {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = MaxLimit
	}
	if cfg.DefaultLimit > cfg.MaxLimit {
		cfg.DefaultLimit = cfg.MaxLimit
	}
	return &Engine{store: store, cache: c, refs: refs, cfg: cfg, tracer: tracer}
}

// List validates q and returns the requested page.
func (e *Engine) List(ctx context.Context, q Query) (*Result, error) {
	q, err := e.normalize(ctx, q)
	if err != nil {
		return nil, err
	}
	if q.GroupBy == GroupByDesign {
		return e.listGrouped(ctx, q)
	}
	return e.listFlat(ctx, q)
}

func (e *Engine) normalize(ctx context.Context, q Query) (Query, error) {
	switch {
	case q.Page == 0:
		q.Page = 1
	case q.Page < 0:
		return q, &catalog.ValidationError{Field: "page", Reason: "must be at least 1"}
	}
	switch {
	case q.Limit == 0:
		q.Limit = e.cfg.DefaultLimit
	case q.Limit < 0 || q.Limit > e.cfg.MaxLimit:
		return q, &catalog.ValidationError{Field: "limit", Reason: "must be between 1 and " + strconv.Itoa(e.cfg.MaxLimit)}
	}
	if q.GroupBy != "" && q.GroupBy != GroupByDesign {
		return q, &catalog.ValidationError{Field: "groupBy", Reason: "unsupported value " + q.GroupBy}
	}

	f := q.Filter
	if f.Size != "" {
		s, err := e.refs.Size(ctx, f.Size)
		if err != nil {
			return q, err
		}
		f.Size = s.Code
	}
	if f.Type != "" {
		t, err := e.refs.DesignType(ctx, f.Type)
		if err != nil {
			return q, err
		}
		f.Type = t
	}
	if f.MinPrice != nil {
		if err := catalog.ValidatePrice("minPrice", *f.MinPrice); err != nil {
			return q, err
		}
	}
	if f.MaxPrice != nil {
		if err := catalog.ValidatePrice("maxPrice", *f.MaxPrice); err != nil {
			return q, err
		}
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return q, &catalog.ValidationError{Field: "minPrice", Reason: "greater than maxPrice"}
	}
	q.Filter = f
	return q, nil
}

func (e *Engine) listFlat(ctx context.Context, q Query) (*Result, error) {
	cacheable := e.cache != nil && q.Filter.OwnerID == ""

	var (
		key   string
		epoch uint64
	)
	if cacheable {
		epoch = e.cache.Epoch()
		key = cache.ListKey(cache.KeyParams{
			Size:     q.Filter.Size,
			Type:     q.Filter.Type,
			MinPrice: q.Filter.MinPrice,
			MaxPrice: q.Filter.MaxPrice,
			Page:     q.Page,
			Limit:    q.Limit,
		})
		if raw, ok := e.cache.Get(ctx, key); ok {
			res, err := decodeResult(raw)
			if err == nil {
				return res, nil
			}
			zctx.From(ctx).Warn("Discarding undecodable cache entry",
				zap.String("key", key), zap.Error(err))
		}
	}

	items, total, err := e.query(ctx, q.Filter, catalog.Page{
		Offset: (q.Page - 1) * q.Limit,
		Limit:  q.Limit,
	})
	if err != nil {
		return nil, err
	}

	res := &Result{
		Items:      items,
		Total:      total,
		Page:       q.Page,
		Limit:      q.Limit,
		TotalPages: totalPages(total, q.Limit),
	}
	if cacheable {
		e.cache.Set(ctx, key, encodeResult(res), epoch)
	}
	return res, nil
}

func (e *Engine) listGrouped(ctx context.Context, q Query) (*Result, error) {
	order, err := e.refs.Order(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "size order")
	}

	// Size membership is decided per group, so the store sees no size
	// predicate and no page window.
	storeFilter := q.Filter
	storeFilter.Size = ""
	items, _, err := e.query(ctx, storeFilter, catalog.Page{})
	if err != nil {
		return nil, err
	}

	groups := groupByDesign(items, order)
	if q.Filter.Size != "" {
		groups = withSize(groups, q.Filter.Size)
	}

	total := len(groups)
	start := min((q.Page-1)*q.Limit, total)
	end := min(start+q.Limit, total)
	return &Result{
		Groups:     groups[start:end],
		Total:      total,
		Page:       q.Page,
		Limit:      q.Limit,
		TotalPages: totalPages(total, q.Limit),
	}, nil
}

func (e *Engine) query(ctx context.Context, f catalog.Filter, p catalog.Page) ([]catalog.Item, int, error) {
	ctx, span := e.tracer.Start(ctx, "listing.QueryVariants",
		trace.WithAttributes(
			attribute.String("filter.size", f.Size),
			attribute.String("filter.type", f.Type),
			attribute.Bool("filter.owner", f.OwnerID != ""),
			attribute.Int("page.offset", p.Offset),
			attribute.Int("page.limit", p.Limit),
		),
	)
	defer span.End()

	items, total, err := e.store.QueryVariants(ctx, f, p)
	if err != nil {
		span.RecordError(err)
		return nil, 0, errors.Wrap(err, "query variants")
	}
	span.SetAttributes(attribute.Int("result.total", total))
	return items, total, nil
}

func totalPages(total, limit int) int {
	if total == 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
