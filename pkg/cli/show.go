package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/engramdb/engram/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func showCommand() *cli.Command {
	var (
		cfg           config
		memoryID      model.MemoryID
		withEmbedding bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "memory-id",
			Aliases:     []string{"id"},
			Usage:       "Memory ID to show",
			Sources:     cli.EnvVars("ENGRAM_MEMORY_ID"),
			Destination: (*string)(&memoryID),
			Required:    true,
		},
		&cli.BoolFlag{
			Name:        "with-embedding",
			Usage:       "Include the embedding vector in the output",
			Destination: &withEmbedding,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, resilienceFlags(&cfg)...)

	return &cli.Command{
		Name:  "show",
		Usage: "Show detailed information of a specific memory",
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

			mem, err := repo.GetMemoryByID(ctx, memoryID)
			if err != nil {
				return goerr.Wrap(err, "failed to show memory", goerr.V("id", memoryID))
			}

			// The vector is hundreds of floats and drowns out the rest.
			if !withEmbedding {
				mem.Embedding = nil
			}

			data, err := json.MarshalIndent(mem, "", "  ")
			if err != nil {
				return goerr.Wrap(err, "failed to marshal memory")
			}

			fmt.Fprintf(c.Root().Writer, "%s\n", string(data))
			return nil
		},
	}
}
