package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/apparel-catalog/internal/domain/catalog"
)

const (
	variantColumns = `v.id, v.design_id, v.size, v.price, v.stock, v.final_price, v.created_at, v.updated_at`

	createVariantSQL = `INSERT INTO variants (id, design_id, size, price, stock, final_price)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at`

	updateVariantSQL = `UPDATE variants AS v
		SET price = $2, stock = $3, final_price = $4, updated_at = now()
		WHERE v.id = $1
		RETURNING ` + variantColumns

	findVariantBySizeSQL = `SELECT ` + variantColumns + `
		FROM variants v
		JOIN designs d ON d.id = v.design_id
		WHERE v.design_id = $1 AND d.owner_id = $2 AND v.size = $3`

	findVariantsByDesignSQL = `SELECT ` + variantColumns + ` FROM variants v
		WHERE v.design_id = $1
		ORDER BY v.created_at, v.id`
)

// CreateVariant inserts a variant. A second variant of the same size for a
// design is reported as *catalog.ConflictError.
func (r *CatalogRepository) CreateVariant(ctx context.Context, v *catalog.Variant) error {
	err := r.pool.QueryRow(ctx, createVariantSQL,
		v.ID, v.DesignID, v.Size, v.Price, v.Stock, v.FinalPrice,
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		switch pgCode(err) {
		case codeUniqueViolation:
			return &catalog.ConflictError{DesignID: v.DesignID, Size: v.Size}
		case codeForeignKeyViolation:
			return catalog.ErrNotFound
		}
		return fmt.Errorf("creating variant %s/%s: %w", v.DesignID, v.Size, err)
	}
	return nil
}

// UpdateVariant writes price, stock and final price, then refreshes v from
// the stored row.
func (r *CatalogRepository) UpdateVariant(ctx context.Context, v *catalog.Variant) error {
	rows, err := r.pool.Query(ctx, updateVariantSQL, v.ID, v.Price, v.Stock, v.FinalPrice)
	if err != nil {
		return fmt.Errorf("updating variant %q: %w", v.ID, err)
	}

	updated, err := pgx.CollectExactlyOneRow(rows, scanVariant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.ErrNotFound
		}
		return fmt.Errorf("updating variant %q: %w", v.ID, err)
	}
	*v = updated
	return nil
}

// FindVariantBySize only sees designs owned by ownerID.
func (r *CatalogRepository) FindVariantBySize(ctx context.Context, designID, ownerID, size string) (*catalog.Variant, error) {
	return r.findOneVariant(ctx, findVariantBySizeSQL, designID, ownerID, size)
}

func (r *CatalogRepository) findOneVariant(ctx context.Context, query string, args ...any) (*catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding variant: %w", err)
	}

	v, err := pgx.CollectExactlyOneRow(rows, scanVariant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("finding variant: %w", err)
	}
	return &v, nil
}

// FindVariantsByDesign returns every variant of a design, zero stock
// included, oldest first.
func (r *CatalogRepository) FindVariantsByDesign(ctx context.Context, designID string) ([]catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, findVariantsByDesignSQL, designID)
	if err != nil {
		return nil, fmt.Errorf("listing variants of %q: %w", designID, err)
	}
	return pgx.CollectRows(rows, scanVariant)
}

func scanVariant(row pgx.CollectableRow) (catalog.Variant, error) {
	var v catalog.Variant
	err := row.Scan(
		&v.ID, &v.DesignID, &v.Size, &v.Price, &v.Stock,
		&v.FinalPrice, &v.CreatedAt, &v.UpdatedAt,
	)
	return v, err
}
