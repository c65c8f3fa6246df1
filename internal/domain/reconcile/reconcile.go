// Package reconcile applies design updates together with a size batch.
//
// A request is processed in two phases. The plan phase validates every
// input and resolves each batch entry against the store without writing
// anything, so Conflict and Validation failures leave no trace. The apply
// phase writes the design, the primary variant, discount repricing and the
// batch one record at a time. Writes are not rolled back: once one write has
// succeeded, later failures are reported as *catalog.PartialWriteError; if
// none succeeded the store error is returned as is.
package reconcile

import (
	"context"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/apparel-catalog/internal/domain/catalog"
	"github.com/xenking/apparel-catalog/internal/domain/refdata"
)

// Refs canonicalises sizes and design types.
type Refs interface {
	Size(ctx context.Context, code string) (refdata.Size, error)
	DesignType(ctx context.Context, name string) (string, error)
}

// Patch is a partial replace of the shared design attributes. Nil fields
// are left unchanged. ClearDiscount removes the discount.
type Patch struct {
	Name          *string
	Description   *string
	Type          *string
	Discount      *catalog.Discount
	ClearDiscount bool
}

func (p Patch) empty() bool {
	return p.Name == nil && p.Description == nil && p.Type == nil && p.Discount == nil && !p.ClearDiscount
}

// VariantPatch updates one existing variant of the design directly.
type VariantPatch struct {
	VariantID string
	Price     *decimal.Decimal
	Stock     *int
}

// Request is one update-design call.
type Request struct {
	DesignID string
	OwnerID  string
	Patch    Patch
	Primary  *VariantPatch
	Sizes    []catalog.SizeStock
}

// Result reports what the batch did. Variants repriced only because the
// discount changed are not listed.
type Result struct {
	Design  *catalog.Design
	Primary *catalog.Variant
	Updated []catalog.Variant
	Created []catalog.Variant
}

// UpdatedCount is the number of existing variants changed by the batch.
func (r *Result) UpdatedCount() int { return len(r.Updated) }

// CreatedCount is the number of variants created by the batch.
func (r *Result) CreatedCount() int { return len(r.Created) }

// Engine reconciles size batches against existing variants.
type Engine struct {
	store catalog.Repository
	refs  Refs
	newID func() string
}

// NewEngine creates an Engine.
func NewEngine(store catalog.Repository, refs Refs) *Engine {
	return &Engine{store: store, refs: refs, newID: uuid.NewString}
}

type action struct {
	entry    catalog.SizeStock
	existing *catalog.Variant
}

type plan struct {
	design    catalog.Design
	discount  bool // discount changed
	primary   *catalog.Variant
	siblings  []catalog.Variant
	actions   []action
	basePrice *decimal.Decimal
}

// Reconcile validates req, then applies it.
func (e *Engine) Reconcile(ctx context.Context, req Request) (*Result, error) {
	p, err := e.plan(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.apply(ctx, req, p)
}

func (e *Engine) plan(ctx context.Context, req Request) (*plan, error) {
	if err := e.validatePatch(ctx, &req.Patch); err != nil {
		return nil, err
	}
	if err := validatePrimary(req.Primary); err != nil {
		return nil, err
	}
	batch, err := e.canonicalBatch(ctx, req.Sizes)
	if err != nil {
		return nil, err
	}

	current, err := e.store.FindDesign(ctx, req.DesignID)
	if err != nil {
		return nil, errors.Wrap(err, "find design")
	}
	if current.OwnerID != req.OwnerID {
		return nil, catalog.ErrNotFound
	}

	p := &plan{design: *current}
	applyPatch(&p.design, req.Patch)
	p.discount = !catalog.SameDiscount(current.Discount, p.design.Discount)

	existing, err := e.store.FindVariantsByDesign(ctx, req.DesignID)
	if err != nil {
		return nil, errors.Wrap(err, "list variants")
	}

	if req.Primary != nil {
		i := slices.IndexFunc(existing, func(v catalog.Variant) bool { return v.ID == req.Primary.VariantID })
		if i < 0 {
			return nil, catalog.ErrNotFound
		}
		primary := existing[i]
		if req.Primary.Price != nil {
			primary.Price = *req.Primary.Price
		}
		if req.Primary.Stock != nil {
			primary.Stock = *req.Primary.Stock
		}
		primary.Reprice(p.design.Discount)
		p.primary = &primary
		p.basePrice = &primary.Price
	} else if lowest, ok := lowestPrice(existing); ok {
		p.basePrice = &lowest
	}

	inBatch := make(map[string]bool)
	for _, entry := range batch {
		if entry.Stock <= 0 {
			continue
		}
		if p.primary != nil && entry.Size == p.primary.Size {
			continue
		}
		v, err := e.store.FindVariantBySize(ctx, req.DesignID, req.OwnerID, entry.Size)
		switch {
		case err == nil:
			inBatch[v.ID] = true
			p.actions = append(p.actions, action{entry: entry, existing: v})
		case errors.Is(err, catalog.ErrNotFound):
			if entry.Price == nil && p.basePrice == nil {
				return nil, &catalog.ValidationError{Field: "sizes", Reason: "price required for new size " + entry.Size}
			}
			p.actions = append(p.actions, action{entry: entry})
		default:
			return nil, errors.Wrapf(err, "find variant %s", entry.Size)
		}
	}

	if p.discount {
		for _, v := range existing {
			if inBatch[v.ID] || (p.primary != nil && v.ID == p.primary.ID) {
				continue
			}
			p.siblings = append(p.siblings, v)
		}
	}
	return p, nil
}

func (e *Engine) validatePatch(ctx context.Context, patch *Patch) error {
	if patch.Name != nil {
		if err := catalog.ValidateName(*patch.Name); err != nil {
			return err
		}
		name := strings.TrimSpace(*patch.Name)
		patch.Name = &name
	}
	if patch.Description != nil {
		if err := catalog.ValidateDescription(*patch.Description); err != nil {
			return err
		}
	}
	if patch.Type != nil {
		t, err := e.refs.DesignType(ctx, *patch.Type)
		if err != nil {
			return err
		}
		patch.Type = &t
	}
	if patch.Discount != nil && patch.ClearDiscount {
		return &catalog.ValidationError{Field: "discount", Reason: "set and clear are exclusive"}
	}
	return catalog.ValidateDiscount(patch.Discount)
}

func validatePrimary(vp *VariantPatch) error {
	if vp == nil {
		return nil
	}
	if vp.VariantID == "" {
		return &catalog.ValidationError{Field: "variantId", Reason: "required"}
	}
	if vp.Price != nil {
		if err := catalog.ValidatePrice("price", *vp.Price); err != nil {
			return err
		}
	}
	if vp.Stock != nil {
		if err := catalog.ValidateStock("stock", *vp.Stock); err != nil {
			return err
		}
	}
	return nil
}

// canonicalBatch resolves sizes and rejects duplicates before the
// positive-stock rule is checked.
func (e *Engine) canonicalBatch(ctx context.Context, entries []catalog.SizeStock) ([]catalog.SizeStock, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	out := make([]catalog.SizeStock, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, entry := range entries {
		s, err := e.refs.Size(ctx, entry.Size)
		if err != nil {
			return nil, err
		}
		if seen[s.Code] {
			return nil, &catalog.ConflictError{Size: s.Code}
		}
		seen[s.Code] = true
		entry.Size = s.Code
		out = append(out, entry)
	}

	positive := false
	for _, entry := range out {
		if entry.Price != nil {
			if err := catalog.ValidatePrice("sizes.price", *entry.Price); err != nil {
				return nil, err
			}
		}
		if entry.Stock > 0 {
			positive = true
		}
	}
	if !positive {
		return nil, &catalog.ValidationError{Field: "sizes", Reason: "no size with positive stock"}
	}
	return out, nil
}

func (e *Engine) apply(ctx context.Context, req Request, p *plan) (*Result, error) {
	res := &Result{Design: &p.design}
	var (
		failed   []string
		firstErr error
		wrote    bool
	)
	fail := func(size string, err error) {
		failed = append(failed, size)
		if firstErr == nil {
			firstErr = err
		}
	}

	if !req.Patch.empty() {
		if err := e.store.UpdateDesign(ctx, &p.design); err != nil {
			return nil, errors.Wrap(err, "update design")
		}
		wrote = true
	}

	if p.primary != nil {
		if err := e.store.UpdateVariant(ctx, p.primary); err != nil {
			if !wrote {
				return nil, errors.Wrap(err, "update primary variant")
			}
			fail(p.primary.Size, err)
		} else {
			res.Primary = p.primary
			wrote = true
		}
	}

	for i := range p.siblings {
		v := p.siblings[i]
		v.Reprice(p.design.Discount)
		if err := e.store.UpdateVariant(ctx, &v); err != nil {
			fail(v.Size, err)
			continue
		}
		wrote = true
	}

	for _, a := range p.actions {
		if a.existing != nil {
			v := *a.existing
			v.Stock = a.entry.Stock
			if a.entry.Price != nil {
				v.Price = *a.entry.Price
			}
			v.Reprice(p.design.Discount)
			if err := e.store.UpdateVariant(ctx, &v); err != nil {
				fail(v.Size, err)
				continue
			}
			wrote = true
			res.Updated = append(res.Updated, v)
			continue
		}

		price := p.basePrice
		if a.entry.Price != nil {
			price = a.entry.Price
		}
		v := catalog.Variant{
			ID:       e.newID(),
			DesignID: p.design.ID,
			Size:     a.entry.Size,
			Price:    *price,
			Stock:    a.entry.Stock,
		}
		v.Reprice(p.design.Discount)
		if err := e.store.CreateVariant(ctx, &v); err != nil {
			fail(v.Size, err)
			continue
		}
		wrote = true
		res.Created = append(res.Created, v)
	}

	if firstErr != nil && !wrote {
		return nil, errors.Wrapf(firstErr, "write sizes %v", failed)
	}
	if firstErr != nil {
		return res, &catalog.PartialWriteError{
			DesignID: p.design.ID,
			Created:  res.Created,
			Updated:  res.Updated,
			Failed:   failed,
			Err:      firstErr,
		}
	}
	return res, nil
}

func applyPatch(d *catalog.Design, p Patch) {
	if p.Name != nil {
		d.Name = *p.Name
	}
	if p.Description != nil {
		d.Description = *p.Description
	}
	if p.Type != nil {
		d.Type = *p.Type
	}
	switch {
	case p.ClearDiscount:
		d.Discount = nil
	case p.Discount != nil:
		disc := *p.Discount
		d.Discount = &disc
	}
}

func lowestPrice(vs []catalog.Variant) (decimal.Decimal, bool) {
	if len(vs) == 0 {
		return decimal.Decimal{}, false
	}
	lowest := vs[0].Price
	for _, v := range vs[1:] {
		if v.Price.LessThan(lowest) {
			lowest = v.Price
		}
	}
	return lowest, true
}
