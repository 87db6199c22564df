package main

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ndvi-cli/internal/catalog"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update database schemas",
	Long:  "Migrates the local run-history store, plus the scene catalog schema when the postgres driver is configured.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore()
		if err != nil {
			return eris.Wrap(err, "open store")
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}
		zap.L().Info("store migrated", zap.String("path", cfg.Store.Path))

		if cfg.Catalog.Driver == "postgres" {
			pool, err := pgxpool.New(ctx, cfg.Catalog.DatabaseURL)
			if err != nil {
				return eris.Wrap(err, "connect postgres catalog")
			}
			defer pool.Close()

			if err := catalog.NewPostgres(pool).Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate catalog")
			}
			zap.L().Info("catalog migrated")
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
