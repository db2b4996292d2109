package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/engramdb/engram/pkg/model"
	"github.com/engramdb/engram/pkg/repository"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func listCommand() *cli.Command {
	var (
		cfg     config
		roomID  string
		table   string
		agentID string
		unique  bool
		limit   int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "room",
			Aliases:     []string{"r"},
			Usage:       "Room ID to list memories of",
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
		&cli.StringFlag{
			Name:        "agent",
			Aliases:     []string{"a"},
			Usage:       "Restrict to memories of one agent",
			Sources:     cli.EnvVars("ENGRAM_AGENT_ID"),
			Destination: &agentID,
		},
		&cli.BoolFlag{
			Name:        "unique",
			Usage:       "Hide memories flagged as duplicates",
			Destination: &unique,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Maximum number of memories to list",
			Value:       100,
			Sources:     cli.EnvVars("ENGRAM_LIST_LIMIT"),
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, resilienceFlags(&cfg)...)

	return &cli.Command{
		Name:  "list",
		Usage: "List memories of a room, newest first",
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

			memories, err := repo.GetMemories(ctx, &repository.GetMemoriesInput{
				Table:   table,
				RoomID:  model.RoomID(roomID),
				AgentID: model.AccountID(agentID),
				Count:   int(limit),
				Unique:  unique,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to list memories")
			}

			for _, m := range memories {
				status := ""
				if !m.Unique {
					status = "\t(duplicate)"
				}
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s%s\n",
					m.ID, m.CreatedAt.Format(time.RFC3339), summarize(m.Content.Text), status)
			}

			return nil
		},
	}
}
