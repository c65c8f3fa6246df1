//go:build integration

package postgres

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/xenking/apparel-catalog/internal/audit"
	"github.com/xenking/apparel-catalog/internal/domain/catalog"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "catalog",
				"POSTGRES_PASSWORD": "catalog",
				"POSTGRES_DB":       "catalog",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() { _ = testcontainers.TerminateContainer(ctr) }()

	host, err := ctr.Host(ctx)
	if err != nil {
		log.Fatalf("host: %v", err)
	}
	port, err := ctr.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://catalog:catalog@%s:%s/catalog?sslmode=disable", host, port.Port())
	testPool, err = NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("pool: %v", err)
	}
	defer testPool.Close()

	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations: %v", err)
	}
	// Second run must be a no-op.
	if err := RunMigrations(ctx, testPool); err != nil {
		log.Fatalf("migrations rerun: %v", err)
	}

	return m.Run()
}

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func seedDesign(t *testing.T, repo *CatalogRepository, owner, typ string, discount *catalog.Discount) catalog.Design {
	t.Helper()
	d := catalog.Design{
		ID:       uuid.NewString(),
		OwnerID:  owner,
		Name:     "Design " + uuid.NewString()[:8],
		Type:     typ,
		Discount: discount,
	}
	require.NoError(t, repo.CreateDesign(context.Background(), &d))
	return d
}

func seedVariant(t *testing.T, repo *CatalogRepository, d catalog.Design, size, price string, stock int) catalog.Variant {
	t.Helper()
	v := catalog.Variant{
		ID:       uuid.NewString(),
		DesignID: d.ID,
		Size:     size,
		Price:    dec(price),
		Stock:    stock,
	}
	v.Reprice(d.Discount)
	require.NoError(t, repo.CreateVariant(context.Background(), &v))
	return v
}

func TestCatalogRepository_DesignLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository(testPool)
	owner := uuid.NewString()

	d := seedDesign(t, repo, owner, "Formal", &catalog.Discount{Kind: catalog.DiscountPercentage, Value: dec("10")})
	assert.False(t, d.CreatedAt.IsZero())

	got, err := repo.FindDesign(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Name, got.Name)
	require.NotNil(t, got.Discount)
	assert.True(t, dec("10").Equal(got.Discount.Value))

	byName, err := repo.FindDesignByName(ctx, owner, d.Name)
	require.NoError(t, err)
	assert.Equal(t, d.ID, byName.ID)

	_, err = repo.FindDesignByName(ctx, uuid.NewString(), d.Name)
	require.ErrorIs(t, err, catalog.ErrNotFound)

	got.Discount = nil
	got.Description = "updated"
	require.NoError(t, repo.UpdateDesign(ctx, got))
	again, err := repo.FindDesign(ctx, d.ID)
	require.NoError(t, err)
	assert.Nil(t, again.Discount)
	assert.Equal(t, "updated", again.Description)

	// Foreign owner cannot update or delete.
	stranger := *again
	stranger.OwnerID = uuid.NewString()
	require.ErrorIs(t, repo.UpdateDesign(ctx, &stranger), catalog.ErrNotFound)
	deleted, err := repo.DeleteDesign(ctx, d.ID, stranger.OwnerID)
	require.NoError(t, err)
	assert.False(t, deleted)

	names, err := repo.DesignNames(ctx, owner)
	require.NoError(t, err)
	assert.Contains(t, names, d.Name)
}

func TestCatalogRepository_UnknownType(t *testing.T) {
	repo := NewCatalogRepository(testPool)
	d := catalog.Design{ID: uuid.NewString(), OwnerID: "o", Name: "x", Type: "Pyjama"}
	require.ErrorIs(t, repo.CreateDesign(context.Background(), &d), catalog.ErrValidation)
}

func TestCatalogRepository_Variants(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository(testPool)
	owner := uuid.NewString()
	d := seedDesign(t, repo, owner, "Casual", nil)

	m := seedVariant(t, repo, d, "M", "25.00", 30)
	seedVariant(t, repo, d, "L", "25.00", 0)

	dup := catalog.Variant{ID: uuid.NewString(), DesignID: d.ID, Size: "M", Price: dec("1"), FinalPrice: dec("1")}
	require.ErrorIs(t, repo.CreateVariant(ctx, &dup), catalog.ErrConflict)

	orphan := catalog.Variant{ID: uuid.NewString(), DesignID: uuid.NewString(), Size: "M", Price: dec("1"), FinalPrice: dec("1")}
	require.ErrorIs(t, repo.CreateVariant(ctx, &orphan), catalog.ErrNotFound)

	all, err := repo.FindVariantsByDesign(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, all, 2)

	found, err := repo.FindVariantBySize(ctx, d.ID, owner, "M")
	require.NoError(t, err)
	assert.Equal(t, m.ID, found.ID)

	_, err = repo.FindVariantBySize(ctx, d.ID, uuid.NewString(), "M")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	m.Price = dec("30.00")
	m.Stock = 5
	m.Reprice(nil)
	require.NoError(t, repo.UpdateVariant(ctx, &m))
	assert.Equal(t, "M", m.Size)
	assert.True(t, dec("30").Equal(m.FinalPrice))

	deleted, err := repo.DeleteDesign(ctx, d.ID, owner)
	require.NoError(t, err)
	assert.True(t, deleted)

	left, err := repo.FindVariantsByDesign(ctx, d.ID)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestCatalogRepository_QueryVariants(t *testing.T) {
	ctx := context.Background()
	repo := NewCatalogRepository(testPool)
	owner := uuid.NewString()

	formal := seedDesign(t, repo, owner, "Formal", &catalog.Discount{Kind: catalog.DiscountAmount, Value: dec("500")})
	seedVariant(t, repo, formal, "L", "3000", 10)
	seedVariant(t, repo, formal, "M", "900", 10)
	vintage := seedDesign(t, repo, owner, "Vintage", nil)
	seedVariant(t, repo, vintage, "L", "1500", 2)

	minPrice := dec("1000")
	items, total, err := repo.QueryVariants(ctx,
		catalog.Filter{OwnerID: owner, Size: "L", MinPrice: &minPrice},
		catalog.Page{Limit: 10},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, items, 2)
	// Newest first.
	assert.Equal(t, vintage.ID, items[0].DesignID)
	assert.Equal(t, "Formal", items[1].Type)
	require.NotNil(t, items[1].Discount)
	assert.True(t, dec("2500").Equal(items[1].FinalPrice))

	page2, total, err := repo.QueryVariants(ctx, catalog.Filter{OwnerID: owner}, catalog.Page{Offset: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page2, 1)

	everything, _, err := repo.QueryVariants(ctx, catalog.Filter{OwnerID: owner}, catalog.Page{})
	require.NoError(t, err)
	assert.Len(t, everything, 3)
}

func TestRefdataRepository(t *testing.T) {
	repo := NewRefdataRepository(testPool)

	sizes, err := repo.Sizes(context.Background())
	require.NoError(t, err)
	require.Len(t, sizes, 6)
	assert.Equal(t, "XS", sizes[0].Code)
	assert.Equal(t, "XXL", sizes[5].Code)

	types, err := repo.DesignTypes(context.Background())
	require.NoError(t, err)
	assert.Contains(t, types, "Streetwear")
}

func TestAuditSink(t *testing.T) {
	ctx := context.Background()
	sink := NewAuditSink(testPool)
	ev := audit.Event{
		ID:       uuid.NewString(),
		Action:   audit.ActionDesignCreated,
		OwnerID:  "o",
		DesignID: "d",
		At:       time.Now().UTC(),
		Payload:  map[string]any{"variants": 2},
	}
	require.NoError(t, sink.Write(ctx, ev))
	// Redelivery is idempotent.
	require.NoError(t, sink.Write(ctx, ev))

	var action string
	require.NoError(t, testPool.QueryRow(ctx,
		`SELECT action FROM audit_events WHERE id = $1`, ev.ID).Scan(&action))
	assert.Equal(t, audit.ActionDesignCreated, action)
}
