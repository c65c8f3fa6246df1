// Package refdata resolves the size and design-type lookup entities.
//
// Resolver is a read-through cache: lookups are served from an in-memory
// snapshot, and an unknown key or a stale snapshot triggers one reload from
// the Repository before the key is rejected. Concurrent reloads are
// coalesced, and an unknown key does not reload a snapshot younger than
// MissReloadInterval. A Resolver is passed explicitly
// to the engines that need it; there is no package-level state.
package refdata

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/apparel-catalog/internal/domain/catalog"
)

// MissReloadInterval is the minimum snapshot age before an unknown key
// triggers a reload.
const MissReloadInterval = time.Second

// Size is a size lookup entity. SortOrder defines the display order
// (XS before S before M ...).
type Size struct {
	Code      string
	SortOrder int
}

// Repository loads the lookup tables.
type Repository interface {
	Sizes(ctx context.Context) ([]Size, error)
	DesignTypes(ctx context.Context) ([]string, error)
}

// Resolver caches lookup tables in memory.
type Resolver struct {
	repo Repository
	ttl  time.Duration
	now  func() time.Time

	reloads singleflight.Group

	mu       sync.RWMutex
	sizes    map[string]Size
	types    map[string]string // lower-case name -> canonical name
	loadedAt time.Time
	gen      uint64 // bumped by every successful Refresh
}

// NewResolver creates a Resolver. A non-positive ttl keeps snapshots until
// an unknown key forces a reload.
func NewResolver(repo Repository, ttl time.Duration) *Resolver {
	return &Resolver{repo: repo, ttl: ttl, now: time.Now}
}

// NormalizeSize canonicalises user input: trimmed and upper-cased.
func NormalizeSize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Refresh reloads both tables.
func (r *Resolver) Refresh(ctx context.Context) error {
	sizes, err := r.repo.Sizes(ctx)
	if err != nil {
		return errors.Wrap(err, "load sizes")
	}
	types, err := r.repo.DesignTypes(ctx)
	if err != nil {
		return errors.Wrap(err, "load design types")
	}

	sizeMap := make(map[string]Size, len(sizes))
	for _, s := range sizes {
		sizeMap[NormalizeSize(s.Code)] = s
	}
	typeMap := make(map[string]string, len(types))
	for _, t := range types {
		typeMap[strings.ToLower(t)] = t
	}

	r.mu.Lock()
	r.sizes = sizeMap
	r.types = typeMap
	r.loadedAt = r.now()
	r.gen++
	r.mu.Unlock()
	return nil
}

// Size resolves a size code. Unknown codes are reported as a
// *catalog.ValidationError.
func (r *Resolver) Size(ctx context.Context, code string) (Size, error) {
	key := NormalizeSize(code)
	lookup := func() (Size, bool) {
		s, ok := r.sizes[key]
		return s, ok
	}
	s, ok, err := readThrough(ctx, r, lookup)
	if err != nil {
		return Size{}, err
	}
	if !ok {
		return Size{}, &catalog.ValidationError{Field: "size", Reason: "unknown size " + code}
	}
	return s, nil
}

// DesignType resolves a design type name case-insensitively and returns its
// canonical spelling.
func (r *Resolver) DesignType(ctx context.Context, name string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	lookup := func() (string, bool) {
		t, ok := r.types[key]
		return t, ok
	}
	t, ok, err := readThrough(ctx, r, lookup)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", &catalog.ValidationError{Field: "type", Reason: "unknown type " + name}
	}
	return t, nil
}

// Order returns the sort position of every known size.
func (r *Resolver) Order(ctx context.Context) (map[string]int, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	order := make(map[string]int, len(r.sizes))
	for code, s := range r.sizes {
		order[code] = s.SortOrder
	}
	return order, nil
}

func (r *Resolver) stale() bool {
	if r.loadedAt.IsZero() {
		return true
	}
	return r.ttl > 0 && r.now().Sub(r.loadedAt) > r.ttl
}

func (r *Resolver) ensureLoaded(ctx context.Context) error {
	r.mu.RLock()
	stale := r.stale()
	gen := r.gen
	r.mu.RUnlock()
	if !stale {
		return nil
	}
	return r.reload(ctx, gen)
}

// reload refreshes the snapshot unless it changed since generation seen was
// observed. Callers racing on the same generation share one Refresh.
func (r *Resolver) reload(ctx context.Context, seen uint64) error {
	_, err, _ := r.reloads.Do("reload", func() (any, error) {
		r.mu.RLock()
		fresh := r.gen != seen
		r.mu.RUnlock()
		if fresh {
			return nil, nil
		}
		return nil, r.Refresh(ctx)
	})
	return err
}

// readThrough serves a lookup from the snapshot. A stale snapshot always
// reloads; a miss reloads only when the snapshot is older than
// MissReloadInterval.
func readThrough[T any](ctx context.Context, r *Resolver, lookup func() (T, bool)) (T, bool, error) {
	r.mu.RLock()
	v, ok := lookup()
	stale := r.stale()
	young := !stale && r.now().Sub(r.loadedAt) < MissReloadInterval
	gen := r.gen
	r.mu.RUnlock()
	if ok && !stale {
		return v, true, nil
	}
	if !ok && young {
		return v, false, nil
	}

	if err := r.reload(ctx, gen); err != nil {
		var zero T
		return zero, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok = lookup()
	return v, ok, nil
}
