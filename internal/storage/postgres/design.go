package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/apparel-catalog/internal/domain/catalog"
)

const (
	designColumns = `id, owner_id, name, description, type, discount_kind, discount_value, created_at, updated_at`

	findDesignSQL = `SELECT ` + designColumns + ` FROM designs WHERE id = $1`

	findDesignByNameSQL = `SELECT ` + designColumns + ` FROM designs
		WHERE owner_id = $1 AND name = $2
		ORDER BY created_at DESC, id DESC LIMIT 1`

	designNamesSQL = `SELECT name FROM designs WHERE owner_id = $1`

	deleteDesignSQL = `DELETE FROM designs WHERE id = $1 AND owner_id = $2`
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
// Every method is a single statement; there are no cross-record
// transactions.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) CreateDesign(ctx context.Context, d *catalog.Design) error {
	kind, value := discountColumns(d.Discount)
	query, args, err := psql.Insert("designs").
		SetMap(map[string]any{
			"id":             d.ID,
			"owner_id":       d.OwnerID,
			"name":           d.Name,
			"description":    d.Description,
			"type":           d.Type,
			"discount_kind":  kind,
			"discount_value": value,
		}).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return errors.Wrap(err, "build insert design")
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&d.CreatedAt, &d.UpdatedAt); err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return &catalog.ValidationError{Field: "type", Reason: "unknown type " + d.Type}
		}
		return fmt.Errorf("creating design %q: %w", d.ID, err)
	}
	return nil
}

// UpdateDesign replaces the mutable attributes of a design owned by
// d.OwnerID.
func (r *CatalogRepository) UpdateDesign(ctx context.Context, d *catalog.Design) error {
	kind, value := discountColumns(d.Discount)
	query, args, err := psql.Update("designs").
		SetMap(map[string]any{
			"name":           d.Name,
			"description":    d.Description,
			"type":           d.Type,
			"discount_kind":  kind,
			"discount_value": value,
			"updated_at":     sq.Expr("now()"),
		}).
		Where(sq.Eq{"id": d.ID, "owner_id": d.OwnerID}).
		Suffix("RETURNING created_at, updated_at").
		ToSql()
	if err != nil {
		return errors.Wrap(err, "build update design")
	}

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&d.CreatedAt, &d.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.ErrNotFound
		}
		return fmt.Errorf("updating design %q: %w", d.ID, err)
	}
	return nil
}

func (r *CatalogRepository) FindDesign(ctx context.Context, id string) (*catalog.Design, error) {
	return r.findOneDesign(ctx, findDesignSQL, id)
}

func (r *CatalogRepository) FindDesignByName(ctx context.Context, ownerID, name string) (*catalog.Design, error) {
	return r.findOneDesign(ctx, findDesignByNameSQL, ownerID, name)
}

func (r *CatalogRepository) findOneDesign(ctx context.Context, query string, args ...any) (*catalog.Design, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding design: %w", err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDesign)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("finding design: %w", err)
	}
	return &d, nil
}

// DesignNames lists the names of every design owned by ownerID.
func (r *CatalogRepository) DesignNames(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, designNamesSQL, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing design names: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// DeleteDesign removes an owned design; variants go with it through the
// foreign key cascade.
func (r *CatalogRepository) DeleteDesign(ctx context.Context, id, ownerID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, deleteDesignSQL, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("deleting design %q: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanDesign(row pgx.CollectableRow) (catalog.Design, error) {
	var (
		d     catalog.Design
		kind  *string
		value decimal.NullDecimal
	)
	if err := row.Scan(
		&d.ID, &d.OwnerID, &d.Name, &d.Description, &d.Type,
		&kind, &value, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return catalog.Design{}, err
	}
	d.Discount = discountFromColumns(kind, value)
	return d, nil
}

func discountColumns(d *catalog.Discount) (*string, decimal.NullDecimal) {
	if d == nil {
		return nil, decimal.NullDecimal{}
	}
	kind := string(d.Kind)
	return &kind, decimal.NullDecimal{Decimal: d.Value, Valid: true}
}

func discountFromColumns(kind *string, value decimal.NullDecimal) *catalog.Discount {
	if kind == nil || !value.Valid {
		return nil
	}
	return &catalog.Discount{Kind: catalog.DiscountKind(*kind), Value: value.Decimal}
}
