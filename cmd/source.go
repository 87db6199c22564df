package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ndvi-cli/internal/catalog"
	"github.com/sells-group/ndvi-cli/internal/pipeline"
	"github.com/sells-group/ndvi-cli/internal/store"
)

// newSource builds the scene catalog selected by config. The returned close
// func releases any backend resources and is safe to call once.
func newSource(ctx context.Context) (catalog.Source, func(), error) {
	noop := func() {}

	switch cfg.Catalog.Driver {
	case "dir":
		src, err := catalog.OpenDir(cfg.Catalog.Dir)
		if err != nil {
			return nil, noop, err
		}
		return src, noop, nil
	case "stac":
		src, err := catalog.NewSTAC(catalog.STACOptions{
			BaseURL:           cfg.Catalog.STAC.BaseURL,
			Collection:        cfg.Catalog.STAC.Collection,
			BandAssets:        cfg.Catalog.STAC.BandAssets,
			RequestsPerSecond: cfg.Catalog.STAC.RequestsPerSecond,
		})
		if err != nil {
			return nil, noop, err
		}
		return src, noop, nil
	case "postgres":
		if cfg.Catalog.DatabaseURL == "" {
			return nil, noop, eris.Wrap(pipeline.ErrConfiguration,
				"catalog driver postgres requires catalog.database_url")
		}
		pool, err := pgxpool.New(ctx, cfg.Catalog.DatabaseURL)
		if err != nil {
			return nil, noop, eris.Wrap(err, "connect postgres catalog")
		}
		return catalog.NewPostgres(pool), pool.Close, nil
	default:
		return nil, noop, eris.Wrapf(pipeline.ErrConfiguration,
			"unsupported catalog driver: %s", cfg.Catalog.Driver)
	}
}

func initStore() (*store.SQLiteStore, error) {
	path := cfg.Store.Path
	if path == "" {
		path = "ndvi.db"
	}
	return store.NewSQLite(path)
}
