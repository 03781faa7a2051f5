package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/casework/pkg/cmd"
	"github.com/dukex/casework/pkg/log"
	"github.com/dukex/casework/pkg/persistence"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort        = 9091
	defaultLockTimeout = 5 * time.Second
)

func persistenceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (postgres://... or a directory for the file store)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
		&cli.DurationFlag{
			Name:    "lock-timeout",
			Usage:   "Maximum time to wait for a case lock",
			Value:   defaultLockTimeout,
			Sources: cli.EnvVars("LOCK_TIMEOUT"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
	}
}

// openPersistence sets up logging and opens the configured persistence.
func openPersistence(ctx context.Context, command *cli.Command, module string) (*slog.Logger, persistence.Persistence, error) {
	log.Setup(command.String("log-level"))

	logger := log.WithModule(module)

	p, err := cmd.NewPersistence(ctx, logger, command.String("database-url"), command.Duration("lock-timeout"))
	if err != nil {
		return nil, nil, err
	}

	return logger, p, nil
}

func closePersistence(ctx context.Context, logger *slog.Logger, p persistence.Persistence) {
	err := p.Close(ctx)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
	}
}
