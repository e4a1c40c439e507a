package main

import (
	"github.com/spf13/cobra"

	"github.com/dmitrymomot/creatorkit/db/migrations"
	"github.com/dmitrymomot/creatorkit/pkg/config"
	"github.com/dmitrymomot/creatorkit/pkg/pg"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var app appConfig
			if err := config.Load(&app); err != nil {
				return err
			}
			var dbCfg pg.Config
			if err := config.Load(&dbCfg); err != nil {
				return err
			}
			log := newLogger(app)
			ctx := cmd.Context()

			pool, err := pg.Connect(ctx, dbCfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := pg.Migrate(ctx, pool, migrations.FS, dbCfg, log); err != nil {
				return err
			}
			log.InfoContext(ctx, "migrations applied")
			return nil
		},
	}
}
