package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/apparel-catalog/internal/domain/refdata"
)

const (
	listSizesSQL       = `SELECT code, sort_order FROM sizes ORDER BY sort_order`
	listDesignTypesSQL = `SELECT name FROM design_types ORDER BY name`
)

var _ refdata.Repository = (*RefdataRepository)(nil)

// RefdataRepository reads the size and design type lookup tables.
type RefdataRepository struct {
	pool *pgxpool.Pool
}

// NewRefdataRepository returns a RefdataRepository that uses the given pool.
func NewRefdataRepository(pool *pgxpool.Pool) *RefdataRepository {
	return &RefdataRepository{pool: pool}
}

func (r *RefdataRepository) Sizes(ctx context.Context) ([]refdata.Size, error) {
	rows, err := r.pool.Query(ctx, listSizesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing sizes: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[refdata.Size])
}

func (r *RefdataRepository) DesignTypes(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, listDesignTypesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing design types: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
