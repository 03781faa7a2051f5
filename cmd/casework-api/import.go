package main

import (
	"context"
	"fmt"

	"github.com/dukex/casework/pkg/definition"
	"github.com/dukex/casework/pkg/services"
	"github.com/urfave/cli/v3"
)

func ImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Aliases:   []string{"i"},
		Usage:     "Import workflow definition files",
		ArgsUsage: "<file.yaml>...",
		Flags:     persistenceFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			if command.NArg() == 0 {
				return fmt.Errorf("at least one definition file is required")
			}

			logger, persistence, err := openPersistence(ctx, command, "import")
			if err != nil {
				return err
			}
			defer closePersistence(ctx, logger, persistence)

			definitions := services.NewDefinitions(logger, persistence)

			for _, path := range command.Args().Slice() {
				doc, err := definition.LoadFile(path)
				if err != nil {
					return err
				}

				result, err := definitions.Import(ctx, doc)
				if err != nil {
					return fmt.Errorf("failed to import %s: %w", path, err)
				}

				logger.InfoContext(ctx, "Imported definitions",
					"file", path,
					"forms", result.Forms,
					"questions", result.Questions,
					"tasks", result.Tasks,
					"workflows", result.Workflows,
					"flows", result.Flows,
				)
			}

			return nil
		},
	}
}
