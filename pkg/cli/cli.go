package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:  "engram",
		Usage: "PostgreSQL memory and knowledge store for conversational agents",
		Commands: []*cli.Command{
			migrateCommand(),
			newCommand(),
			listCommand(),
			showCommand(),
			similarCommand(),
			searchCommand(),
			consoleCommand(),
			countCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
