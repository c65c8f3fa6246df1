// Package catalog holds the apparel catalog data model: designs, their size
// variants, the flat listing read model and the storage contract shared by the
// listing and reconciliation engines.
package catalog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// DiscountKind enumerates the supported design discount strategies.
type DiscountKind string

const (
	// DiscountAmount subtracts a fixed amount from every variant price.
	DiscountAmount DiscountKind = "amount"
	// DiscountPercentage takes a percentage off every variant price.
	DiscountPercentage DiscountKind = "percentage"
)

// Discount is applied to all variants of a design.
type Discount struct {
	Kind  DiscountKind
	Value decimal.Decimal
}

// Design is one product design owned by a seller. Shared attributes (name,
// description, type, discount) live only here; variants derive them at read
// time.
type Design struct {
	ID          string
	OwnerID     string
	Name        string
	Description string
	Type        string
	Discount    *Discount
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Variant is one size instance of a design with its own price and stock.
// FinalPrice is derived from Price and the design discount, see FinalPrice.
type Variant struct {
	ID         string
	DesignID   string
	Size       string
	Price      decimal.Decimal
	Stock      int
	FinalPrice decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Item is the flat listing record: a variant joined with the shared
// attributes of its design.
type Item struct {
	Variant
	OwnerID     string
	Name        string
	Description string
	Type        string
	Discount    *Discount
}

// Filter narrows variant queries. Zero values mean "no filter".
type Filter struct {
	Size     string
	Type     string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	OwnerID  string
}

// Page is an offset window over query results. Limit 0 returns everything.
type Page struct {
	Offset int
	Limit  int
}

// SizeStock is one entry of a size batch. A nil Price means "keep the
// existing price" for known sizes and "use the default price" for new ones.
type SizeStock struct {
	Size  string
	Stock int
	Price *decimal.Decimal
}

// Repository persists designs and variants. Implementations provide
// per-record atomicity only.
type Repository interface {
	CreateDesign(ctx context.Context, d *Design) error
	// UpdateDesign replaces the mutable attributes of an owned design.
	// Returns ErrNotFound when the design is absent or owned by someone else.
	UpdateDesign(ctx context.Context, d *Design) error
	FindDesign(ctx context.Context, id string) (*Design, error)
	FindDesignByName(ctx context.Context, ownerID, name string) (*Design, error)
	DesignNames(ctx context.Context, ownerID string) ([]string, error)
	// DeleteDesign removes an owned design and its variants. It reports false
	// when nothing matched.
	DeleteDesign(ctx context.Context, id, ownerID string) (bool, error)

	// CreateVariant returns a *ConflictError when the design already has a
	// variant of that size.
	CreateVariant(ctx context.Context, v *Variant) error
	UpdateVariant(ctx context.Context, v *Variant) error
	// FindVariantBySize looks up the variant of a design for a size, scoped to
	// designs owned by ownerID.
	FindVariantBySize(ctx context.Context, designID, ownerID, size string) (*Variant, error)
	FindVariantsByDesign(ctx context.Context, designID string) ([]Variant, error)

	// QueryVariants returns matching items newest first and the total number
	// of matches ignoring the page window.
	QueryVariants(ctx context.Context, f Filter, p Page) ([]Item, int, error)
}
