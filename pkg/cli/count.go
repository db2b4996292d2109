package cli

import (
	"context"
	"fmt"

	"github.com/engramdb/engram/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func countCommand() *cli.Command {
	var (
		cfg    config
		roomID string
		table  string
		unique bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "room",
			Aliases:     []string{"r"},
			Usage:       "Room ID to count memories in",
			Sources:     cli.EnvVars("ENGRAM_ROOM_ID"),
			Destination: &roomID,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "table",
			Aliases:     []string{"t"},
			Usage:       "Memory namespace",
			Value:       model.TableMessages,
			Sources:     cli.EnvVars("ENGRAM_TABLE"),
			Destination: &table,
		},
		&cli.BoolFlag{
			Name:        "unique",
			Usage:       "Count only memories flagged unique",
			Destination: &unique,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, resilienceFlags(&cfg)...)

	return &cli.Command{
		Name:  "count",
		Usage: "Count memories of a room",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := cfg.applySettings(c); err != nil {
				return err
			}
			ctx = cfg.initLogging(ctx)

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			count, err := repo.CountMemories(ctx, model.RoomID(roomID), unique, table)
			if err != nil {
				return goerr.Wrap(err, "failed to count memories")
			}

			fmt.Fprintf(c.Root().Writer, "%d\n", count)
			return nil
		},
	}
}
