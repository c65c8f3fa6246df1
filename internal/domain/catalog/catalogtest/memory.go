// Package catalogtest provides an in-memory catalog.Repository for tests.
package catalogtest

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/xenking/apparel-catalog/internal/domain/catalog"
)

var _ catalog.Repository = (*Repository)(nil)

// Repository is a mutex-guarded in-memory store. Timestamps come from a
// monotonically advancing fake clock so "newest first" is deterministic.
type Repository struct {
	mu       sync.RWMutex
	designs  map[string]catalog.Design
	variants map[string]catalog.Variant
	clock    time.Time

	// Hooks for fault injection. A non-nil error aborts the write.
	CreateVariantErr func(v *catalog.Variant) error
	UpdateVariantErr func(v *catalog.Variant) error

	// Calls counts QueryVariants invocations.
	Calls int
}

// New returns an empty Repository.
func New() *Repository {
	return &Repository{
		designs:  make(map[string]catalog.Design),
		variants: make(map[string]catalog.Variant),
		clock:    time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (r *Repository) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *Repository) CreateDesign(_ context.Context, d *catalog.Design) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.tick()
	d.CreatedAt, d.UpdatedAt = now, now
	r.designs[d.ID] = cloneDesign(*d)
	return nil
}

func (r *Repository) UpdateDesign(_ context.Context, d *catalog.Design) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.designs[d.ID]
	if !ok || cur.OwnerID != d.OwnerID {
		return catalog.ErrNotFound
	}
	d.CreatedAt = cur.CreatedAt
	d.UpdatedAt = r.tick()
	r.designs[d.ID] = cloneDesign(*d)
	return nil
}

func (r *Repository) FindDesign(_ context.Context, id string) (*catalog.Design, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cur, ok := r.designs[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	out := cloneDesign(cur)
	return &out, nil
}

func (r *Repository) FindDesignByName(_ context.Context, ownerID, name string) (*catalog.Design, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cur := range r.designs {
		if cur.OwnerID == ownerID && cur.Name == name {
			out := cloneDesign(cur)
			return &out, nil
		}
	}
	return nil, catalog.ErrNotFound
}

func (r *Repository) DesignNames(_ context.Context, ownerID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for _, cur := range r.designs {
		if cur.OwnerID == ownerID {
			names = append(names, cur.Name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (r *Repository) DeleteDesign(_ context.Context, id, ownerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.designs[id]
	if !ok || cur.OwnerID != ownerID {
		return false, nil
	}
	delete(r.designs, id)
	for vid, v := range r.variants {
		if v.DesignID == id {
			delete(r.variants, vid)
		}
	}
	return true, nil
}

func (r *Repository) CreateVariant(_ context.Context, v *catalog.Variant) error {
	if r.CreateVariantErr != nil {
		if err := r.CreateVariantErr(v); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.designs[v.DesignID]; !ok {
		return catalog.ErrNotFound
	}
	for _, cur := range r.variants {
		if cur.DesignID == v.DesignID && cur.Size == v.Size {
			return &catalog.ConflictError{DesignID: v.DesignID, Size: v.Size}
		}
	}
	now := r.tick()
	v.CreatedAt, v.UpdatedAt = now, now
	r.variants[v.ID] = *v
	return nil
}

func (r *Repository) UpdateVariant(_ context.Context, v *catalog.Variant) error {
	if r.UpdateVariantErr != nil {
		if err := r.UpdateVariantErr(v); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.variants[v.ID]
	if !ok {
		return catalog.ErrNotFound
	}
	cur.Price = v.Price
	cur.Stock = v.Stock
	cur.FinalPrice = v.FinalPrice
	cur.UpdatedAt = r.tick()
	r.variants[v.ID] = cur
	*v = cur
	return nil
}

// FindVariant looks a variant up by ID for assertions.
func (r *Repository) FindVariant(_ context.Context, id string) (*catalog.Variant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cur, ok := r.variants[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &cur, nil
}

func (r *Repository) FindVariantBySize(_ context.Context, designID, ownerID, size string) (*catalog.Variant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.designs[designID]
	if !ok || d.OwnerID != ownerID {
		return nil, catalog.ErrNotFound
	}
	for _, cur := range r.variants {
		if cur.DesignID == designID && cur.Size == size {
			return &cur, nil
		}
	}
	return nil, catalog.ErrNotFound
}

func (r *Repository) FindVariantsByDesign(_ context.Context, designID string) ([]catalog.Variant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []catalog.Variant
	for _, cur := range r.variants {
		if cur.DesignID == designID {
			out = append(out, cur)
		}
	}
	slices.SortFunc(out, func(a, b catalog.Variant) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

func (r *Repository) QueryVariants(_ context.Context, f catalog.Filter, p catalog.Page) ([]catalog.Item, int, error) {
	r.mu.Lock()
	r.Calls++
	r.mu.Unlock()

	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []catalog.Item
	for _, v := range r.variants {
		d := r.designs[v.DesignID]
		if !matches(f, d, v) {
			continue
		}
		matched = append(matched, catalog.Item{
			Variant:     v,
			OwnerID:     d.OwnerID,
			Name:        d.Name,
			Description: d.Description,
			Type:        d.Type,
			Discount:    cloneDiscount(d.Discount),
		})
	}
	slices.SortFunc(matched, func(a, b catalog.Item) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	total := len(matched)
	if p.Limit == 0 {
		return matched, total, nil
	}
	start := min(p.Offset, total)
	end := min(start+p.Limit, total)
	return matched[start:end], total, nil
}

func matches(f catalog.Filter, d catalog.Design, v catalog.Variant) bool {
	if f.Size != "" && v.Size != f.Size {
		return false
	}
	if f.Type != "" && d.Type != f.Type {
		return false
	}
	if f.OwnerID != "" && d.OwnerID != f.OwnerID {
		return false
	}
	if f.MinPrice != nil && v.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && v.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	return true
}

func cloneDesign(d catalog.Design) catalog.Design {
	d.Discount = cloneDiscount(d.Discount)
	return d
}

func cloneDiscount(d *catalog.Discount) *catalog.Discount {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
