// Package app wires the catalog components from configuration.
package app

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/apparel-catalog/internal/audit"
	"github.com/xenking/apparel-catalog/internal/cache"
	"github.com/xenking/apparel-catalog/internal/domain/listing"
	"github.com/xenking/apparel-catalog/internal/domain/reconcile"
	"github.com/xenking/apparel-catalog/internal/domain/refdata"
	"github.com/xenking/apparel-catalog/internal/domain/storefront"
	"github.com/xenking/apparel-catalog/internal/importer"
	"github.com/xenking/apparel-catalog/internal/storage/postgres"
	"github.com/xenking/apparel-catalog/internal/storage/redis"
)

const instrumentation = "github.com/xenking/apparel-catalog"

// Catalog holds the wired components. Service is the entry point for an
// outer transport.
type Catalog struct {
	Service *storefront.Service
	Store   *postgres.CatalogRepository
	Audit   *audit.Queue

	pool  *pgxpool.Pool
	redis *goredis.Client
	sink  *postgres.AuditSink
}

// Open connects to PostgreSQL and Redis, runs migrations and builds the
// catalog service. An unreachable Redis disables the listing cache instead
// of failing startup.
func Open(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) (*Catalog, error) {
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "run migrations")
	}

	c := &Catalog{
		Store: postgres.NewCatalogRepository(pool),
		Audit: audit.NewQueue(cfg.Audit.Buffer),
		pool:  pool,
		sink:  postgres.NewAuditSink(pool),
	}

	var backend cache.Backend
	switch {
	case cfg.Redis.Addr == "":
		lg.Info("Listing cache disabled")
	default:
		client, err := redis.NewClient(ctx, redis.Options{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Cache.Timeout,
			IOTimeout:   cfg.Cache.Timeout,
		})
		if err != nil {
			lg.Warn("Redis unavailable, listing cache disabled", zap.Error(err))
			break
		}
		c.redis = client
		backend = redis.NewBackend(client)
	}

	listCache, err := cache.New(backend, cache.Config{
		TTL:     cfg.Cache.TTL,
		Timeout: cfg.Cache.Timeout,
	}, m.MeterProvider().Meter(instrumentation))
	if err != nil {
		c.Close()
		return nil, errors.Wrap(err, "create cache")
	}

	refs := refdata.NewResolver(postgres.NewRefdataRepository(pool), cfg.RefData.TTL)
	if err := refs.Refresh(ctx); err != nil {
		c.Close()
		return nil, errors.Wrap(err, "load reference data")
	}

	lister := listing.NewEngine(c.Store, listCache, refs, listing.Config{
		DefaultLimit: cfg.Pagination.DefaultLimit,
		MaxLimit:     cfg.Pagination.MaxLimit,
	}, m.TracerProvider().Tracer(instrumentation))

	c.Service = storefront.NewService(
		c.Store,
		lister,
		reconcile.NewEngine(c.Store, refs),
		refs,
		listCache,
		c.Audit,
	)

	lg.Info("Catalog ready",
		zap.Bool("cache", backend != nil),
		zap.Int("default_limit", cfg.Pagination.DefaultLimit),
		zap.Int("max_limit", cfg.Pagination.MaxLimit),
	)
	return c, nil
}

// RunAudit drains the audit queue into PostgreSQL until ctx is done.
func (c *Catalog) RunAudit(ctx context.Context) error {
	return c.Audit.Run(ctx, c.sink)
}

// Close releases connections. Pending audit events are not flushed; cancel
// the RunAudit context first.
func (c *Catalog) Close() {
	if c.redis != nil {
		_ = c.redis.Close()
	}
	c.pool.Close()
}

// RunImport imports cfg.Import.Input for cfg.Import.Owner, writing audit
// events while it runs.
func RunImport(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	ctx = zctx.Base(ctx, lg)

	paths, err := importer.Files(cfg.Import.Input)
	if err != nil {
		return errors.Wrap(err, "resolve input")
	}

	c, err := Open(ctx, lg, m, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	auditCtx, stopAudit := context.WithCancel(ctx)
	var g errgroup.Group
	g.Go(func() error { return c.RunAudit(auditCtx) })

	stats, runErr := importer.New(c.Store, c.Service, importer.Config{
		Owner:         cfg.Import.Owner,
		BloomCapacity: cfg.Import.BloomCapacity,
		BloomFPR:      cfg.Import.BloomFPR,
	}).Run(ctx, paths)

	stopAudit()
	if err := g.Wait(); err != nil {
		lg.Warn("Audit worker stopped", zap.Error(err))
	}
	enqueued, dropped, processed := c.Audit.Stats()
	lg.Info("Audit events",
		zap.Uint64("enqueued", enqueued),
		zap.Uint64("dropped", dropped),
		zap.Uint64("processed", processed),
		zap.Int("unflushed", c.Audit.Depth()),
	)

	if runErr != nil {
		return errors.Wrap(runErr, "import")
	}
	if stats.Failed > 0 {
		lg.Warn("Some designs were partially written; re-run the import to complete them",
			zap.Int("failed", stats.Failed))
	}
	return nil
}
