// Package storefront exposes the catalog operations consumed by the outer
// transport layer: list, get, create, update and delete.
//
// Writes invalidate the listing cache in-line before returning and publish
// an audit event. Neither side effect can fail the call.
package storefront

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/apparel-catalog/internal/audit"
	"github.com/xenking/apparel-catalog/internal/domain/catalog"
	"github.com/xenking/apparel-catalog/internal/domain/listing"
	"github.com/xenking/apparel-catalog/internal/domain/reconcile"
	"github.com/xenking/apparel-catalog/internal/domain/refdata"
)

// Lister serves listing pages.
type Lister interface {
	List(ctx context.Context, q listing.Query) (*listing.Result, error)
}

// Reconciler applies design updates.
type Reconciler interface {
	Reconcile(ctx context.Context, req reconcile.Request) (*reconcile.Result, error)
}

// Refs canonicalises input and orders sizes.
type Refs interface {
	Size(ctx context.Context, code string) (refdata.Size, error)
	DesignType(ctx context.Context, name string) (string, error)
	Order(ctx context.Context) (map[string]int, error)
}

// Invalidator drops cached listings.
type Invalidator interface {
	InvalidateAll(ctx context.Context)
}

// DesignView is a design with all of its variants in size order.
type DesignView struct {
	Design   catalog.Design
	Variants []catalog.Variant
}

// NewVariant is one size of a design being created.
type NewVariant struct {
	Size  string
	Price decimal.Decimal
	Stock int
}

// CreateRequest creates a design with at least one variant.
type CreateRequest struct {
	OwnerID     string
	Name        string
	Description string
	Type        string
	Discount    *catalog.Discount
	Variants    []NewVariant
}

// Service implements the catalog operations.
type Service struct {
	store      catalog.Repository
	lister     Lister
	reconciler Reconciler
	refs       Refs
	cache      Invalidator
	audit      audit.Publisher

	now   func() time.Time
	newID func() string
}

// NewService wires a Service.
func NewService(
	store catalog.Repository,
	lister Lister,
	reconciler Reconciler,
	refs Refs,
	cache Invalidator,
	pub audit.Publisher,
) *Service {
	return &Service{
		store:      store,
		lister:     lister,
		reconciler: reconciler,
		refs:       refs,
		cache:      cache,
		audit:      pub,
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// List returns a listing page.
func (s *Service) List(ctx context.Context, q listing.Query) (*listing.Result, error) {
	return s.lister.List(ctx, q)
}

// Get returns a design and all of its variants, zero stock included.
func (s *Service) Get(ctx context.Context, id string) (*DesignView, error) {
	var (
		view  DesignView
		order map[string]int
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := s.store.FindDesign(gCtx, id)
		if err != nil {
			return err
		}
		view.Design = *d
		return nil
	})
	g.Go(func() error {
		vs, err := s.store.FindVariantsByDesign(gCtx, id)
		if err != nil {
			return errors.Wrap(err, "list variants")
		}
		view.Variants = vs
		return nil
	})
	g.Go(func() error {
		var err error
		order, err = s.refs.Order(gCtx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	listing.SortVariants(view.Variants, order)
	return &view, nil
}

// Create validates req, writes the design and then each variant. Variant
// failures after the design write are returned as
// *catalog.PartialWriteError together with the partial view.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*DesignView, error) {
	design, variants, err := s.prepareCreate(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateDesign(ctx, &design); err != nil {
		return nil, errors.Wrap(err, "create design")
	}

	view := &DesignView{Design: design}
	var (
		failed   []string
		firstErr error
	)
	for i := range variants {
		v := variants[i]
		if err := s.store.CreateVariant(ctx, &v); err != nil {
			failed = append(failed, v.Size)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		view.Variants = append(view.Variants, v)
	}

	s.invalidate(ctx)
	s.publish(ctx, audit.ActionDesignCreated, design.OwnerID, design.ID, map[string]any{
		"name":     design.Name,
		"variants": len(view.Variants),
		"failed":   len(failed),
	})

	if firstErr != nil {
		return view, &catalog.PartialWriteError{
			DesignID: design.ID,
			Created:  view.Variants,
			Failed:   failed,
			Err:      firstErr,
		}
	}
	return view, nil
}

func (s *Service) prepareCreate(ctx context.Context, req CreateRequest) (catalog.Design, []catalog.Variant, error) {
	if strings.TrimSpace(req.OwnerID) == "" {
		return catalog.Design{}, nil, &catalog.ValidationError{Field: "ownerId", Reason: "required"}
	}
	if err := catalog.ValidateName(req.Name); err != nil {
		return catalog.Design{}, nil, err
	}
	if err := catalog.ValidateDescription(req.Description); err != nil {
		return catalog.Design{}, nil, err
	}
	typ, err := s.refs.DesignType(ctx, req.Type)
	if err != nil {
		return catalog.Design{}, nil, err
	}
	if err := catalog.ValidateDiscount(req.Discount); err != nil {
		return catalog.Design{}, nil, err
	}
	if len(req.Variants) == 0 {
		return catalog.Design{}, nil, &catalog.ValidationError{Field: "variants", Reason: "at least one size is required"}
	}

	design := catalog.Design{
		ID:          s.newID(),
		OwnerID:     req.OwnerID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Type:        typ,
	}
	if req.Discount != nil {
		disc := *req.Discount
		design.Discount = &disc
	}

	seen := make(map[string]bool, len(req.Variants))
	variants := make([]catalog.Variant, 0, len(req.Variants))
	for _, nv := range req.Variants {
		size, err := s.refs.Size(ctx, nv.Size)
		if err != nil {
			return catalog.Design{}, nil, err
		}
		if seen[size.Code] {
			return catalog.Design{}, nil, &catalog.ConflictError{Size: size.Code}
		}
		seen[size.Code] = true
		if err := catalog.ValidatePrice("price", nv.Price); err != nil {
			return catalog.Design{}, nil, err
		}
		if err := catalog.ValidateStock("stock", nv.Stock); err != nil {
			return catalog.Design{}, nil, err
		}

		v := catalog.Variant{
			ID:       s.newID(),
			DesignID: design.ID,
			Size:     size.Code,
			Price:    nv.Price,
			Stock:    nv.Stock,
		}
		v.Reprice(design.Discount)
		variants = append(variants, v)
	}
	return design, variants, nil
}

// Update applies a partial design update and its size batch.
func (s *Service) Update(ctx context.Context, req reconcile.Request) (*reconcile.Result, error) {
	res, err := s.reconciler.Reconcile(ctx, req)
	if err != nil && !mayHaveWritten(err) {
		return nil, err
	}

	s.invalidate(ctx)
	if res != nil {
		s.publish(ctx, audit.ActionDesignUpdated, req.OwnerID, req.DesignID, map[string]any{
			"updated": res.UpdatedCount(),
			"created": res.CreatedCount(),
			"partial": err != nil,
		})
	}
	return res, err
}

// Delete removes an owned design and its variants. It reports false when
// the design does not exist or belongs to someone else.
func (s *Service) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	deleted, err := s.store.DeleteDesign(ctx, id, ownerID)
	if err != nil {
		return false, errors.Wrap(err, "delete design")
	}
	if !deleted {
		return false, nil
	}

	s.invalidate(ctx)
	s.publish(ctx, audit.ActionDesignDeleted, ownerID, id, nil)
	return true, nil
}

// mayHaveWritten reports whether a failed write could have changed stored
// state. Validation, conflict and not-found failures are raised before any
// write. A partial write always has.
func mayHaveWritten(err error) bool {
	var pErr *catalog.PartialWriteError
	if errors.As(err, &pErr) {
		return true
	}
	return !errors.Is(err, catalog.ErrValidation) &&
		!errors.Is(err, catalog.ErrConflict) &&
		!errors.Is(err, catalog.ErrNotFound)
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	s.cache.InvalidateAll(ctx)
}

func (s *Service) publish(ctx context.Context, action, ownerID, designID string, payload map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Publish(audit.Event{
		ID:       s.newID(),
		Action:   action,
		OwnerID:  ownerID,
		DesignID: designID,
		At:       s.now().UTC(),
		Payload:  payload,
	})
	if err != nil {
		zctx.From(ctx).Warn("Audit event dropped",
			zap.String("action", action),
			zap.String("design_id", designID),
			zap.Error(err),
		)
	}
}
