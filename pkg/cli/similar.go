package cli

import (
	"context"
	"fmt"

	"github.com/engramdb/engram/pkg/model"
	"github.com/engramdb/engram/pkg/repository"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func similarCommand() *cli.Command {
	var (
		cfg       config
		memoryID  string
		limit     int64
		threshold float64
		unique    bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "memory-id",
			Aliases:     []string{"i"},
			Usage:       "Memory ID to find similar memories for",
			Sources:     cli.EnvVars("ENGRAM_MEMORY_ID"),
			Destination: &memoryID,
			Required:    true,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Maximum number of similar memories to display",
			Value:       10,
			Sources:     cli.EnvVars("ENGRAM_SIMILAR_LIMIT"),
			Destination: &limit,
		},
		&cli.FloatFlag{
			Name:        "threshold",
			Aliases:     []string{"t"},
			Usage:       "Cosine similarity threshold (0.0-1.0, higher is more similar)",
			Value:       0.7,
			Sources:     cli.EnvVars("ENGRAM_SIMILAR_THRESHOLD"),
			Destination: &threshold,
		},
		&cli.BoolFlag{
			Name:        "unique",
			Usage:       "Skip memories flagged as duplicates",
			Destination: &unique,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, resilienceFlags(&cfg)...)

	return &cli.Command{
		Name:  "similar",
		Usage: "Find similar memories in the same room using vector similarity",
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

			source, err := repo.GetMemoryByID(ctx, model.MemoryID(memoryID))
			if err != nil {
				return goerr.Wrap(err, "failed to get source memory")
			}

			if len(source.Embedding) == 0 {
				return goerr.New("source memory does not have an embedding vector")
			}

			matches, err := repo.SearchMemories(ctx, &repository.SearchMemoriesInput{
				Table:          source.Table,
				RoomID:         source.RoomID,
				Embedding:      source.Embedding,
				MatchThreshold: threshold,
				Count:          int(limit) + 1,
				Unique:         unique,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to search similar memories")
			}

			// The source memory matches itself with similarity 1.0.
			var filtered []*repository.MemoryMatch
			for _, m := range matches {
				if m.Memory.ID == source.ID {
					continue
				}
				filtered = append(filtered, m)
			}
			if int64(len(filtered)) > limit {
				filtered = filtered[:limit]
			}

			if len(filtered) == 0 {
				fmt.Fprintf(c.Root().Writer, "No similar memories found\n")
				return nil
			}

			fmt.Fprintf(c.Root().Writer, "Found %d similar memories for %s:\n\n", len(filtered), source.ID)
			for i, m := range filtered {
				fmt.Fprintf(c.Root().Writer, "%d. %s (similarity: %.3f)\n", i+1, m.Memory.ID, m.Similarity)
				fmt.Fprintf(c.Root().Writer, "   %s\n\n", summarize(m.Memory.Content.Text))
			}

			return nil
		},
	}
}
