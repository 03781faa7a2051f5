package main

import (
	"context"

	"github.com/dukex/casework/pkg/persistence/postgresql"
	"github.com/urfave/cli/v3"
)

func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply pending database migrations",
		Flags: persistenceFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			// Opening the persistence applies pending migrations.
			logger, persistence, err := openPersistence(ctx, command, "migrate")
			if err != nil {
				return err
			}
			defer closePersistence(ctx, logger, persistence)

			postgres, ok := persistence.(*postgresql.Persistence)
			if !ok {
				logger.InfoContext(ctx, "File persistence has no schema to migrate")

				return nil
			}

			version, err := postgres.SchemaVersion(ctx)
			if err != nil {
				return err
			}

			logger.InfoContext(ctx, "Schema is up to date", "version", version)

			return nil
		},
	}
}
