// Command catalog-import bulk-loads designs for one seller from gzipped
// JSON-lines files.
//
//	CATALOG_DATABASE_URL=postgres://... CATALOG_IMPORT_OWNER=seller-1 CATALOG_IMPORT_INPUT=./data catalog-import
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/xenking/apparel-catalog/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := appkg.LoadConfig()
		if err != nil {
			return err
		}
		if cfg.Import.Owner == "" {
			return errors.New("owner is required: set CATALOG_IMPORT_OWNER")
		}
		return appkg.RunImport(ctx, lg, m, cfg)
	})
}
