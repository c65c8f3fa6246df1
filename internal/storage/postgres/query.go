package postgres

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/apparel-catalog/internal/domain/catalog"
)

// QueryVariants runs the listing query. The page and the total count are
// fetched concurrently; each predicate is backed by an index on variants or
// designs.
func (r *CatalogRepository) QueryVariants(ctx context.Context, f catalog.Filter, p catalog.Page) ([]catalog.Item, int, error) {
	where := filterPredicate(f)

	items := psql.Select(variantColumns,
		"d.owner_id", "d.name", "d.description", "d.type", "d.discount_kind", "d.discount_value").
		From("variants v").
		Join("designs d ON d.id = v.design_id").
		Where(where).
		OrderBy("v.created_at DESC", "v.id DESC")
	if p.Limit > 0 {
		items = items.Limit(uint64(p.Limit)).Offset(uint64(p.Offset))
	}
	itemsSQL, itemsArgs, err := items.ToSql()
	if err != nil {
		return nil, 0, errors.Wrap(err, "build items query")
	}

	countSQL, countArgs, err := psql.Select("count(*)").
		From("variants v").
		Join("designs d ON d.id = v.design_id").
		Where(where).
		ToSql()
	if err != nil {
		return nil, 0, errors.Wrap(err, "build count query")
	}

	var (
		out   []catalog.Item
		total int
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := r.pool.Query(gCtx, itemsSQL, itemsArgs...)
		if err != nil {
			return fmt.Errorf("querying variants: %w", err)
		}
		out, err = pgx.CollectRows(rows, scanItem)
		if err != nil {
			return fmt.Errorf("scanning variants: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := r.pool.QueryRow(gCtx, countSQL, countArgs...).Scan(&total); err != nil {
			return fmt.Errorf("counting variants: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func filterPredicate(f catalog.Filter) sq.And {
	where := sq.And{}
	if f.Size != "" {
		where = append(where, sq.Eq{"v.size": f.Size})
	}
	if f.Type != "" {
		where = append(where, sq.Eq{"d.type": f.Type})
	}
	if f.OwnerID != "" {
		where = append(where, sq.Eq{"d.owner_id": f.OwnerID})
	}
	if f.MinPrice != nil {
		where = append(where, sq.GtOrEq{"v.price": *f.MinPrice})
	}
	if f.MaxPrice != nil {
		where = append(where, sq.LtOrEq{"v.price": *f.MaxPrice})
	}
	return where
}

func scanItem(row pgx.CollectableRow) (catalog.Item, error) {
	var (
		it    catalog.Item
		kind  *string
		value decimal.NullDecimal
	)
	err := row.Scan(
		&it.ID, &it.DesignID, &it.Size, &it.Price, &it.Stock,
		&it.FinalPrice, &it.CreatedAt, &it.UpdatedAt,
		&it.OwnerID, &it.Name, &it.Description, &it.Type, &kind, &value,
	)
	if err != nil {
		return catalog.Item{}, err
	}
	it.Discount = discountFromColumns(kind, value)
	return it, nil
}
