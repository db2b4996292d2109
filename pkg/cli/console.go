package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/engramdb/engram/pkg/model"
	"github.com/engramdb/engram/pkg/repository"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func consoleCommand() *cli.Command {
	var (
		cfg       config
		agentID   string
		threshold float64
		limit     int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "agent",
			Aliases:     []string{"a"},
			Usage:       "Agent ID whose knowledge is searched",
			Sources:     cli.EnvVars("ENGRAM_AGENT_ID"),
			Destination: &agentID,
			Required:    true,
		},
		&cli.FloatFlag{
			Name:        "threshold",
			Usage:       "Minimum vector similarity for a match",
			Value:       0.5,
			Sources:     cli.EnvVars("ENGRAM_SEARCH_THRESHOLD"),
			Destination: &threshold,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Maximum number of results",
			Value:       10,
			Sources:     cli.EnvVars("ENGRAM_SEARCH_LIMIT"),
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, resilienceFlags(&cfg)...)
	flags = append(flags, embeddingFlags(&cfg)...)

	return &cli.Command{
		Name:  "console",
		Usage: "Interactive knowledge search console",
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

			embedder, err := cfg.newEmbedder(ctx)
			if err != nil {
				return err
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "engram> ",
				HistoryFile:     filepath.Join(os.TempDir(), "engram_history"),
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return goerr.Wrap(err, "failed to start console")
			}
			defer rl.Close()

			fmt.Fprintf(c.Root().Writer, "Interactive knowledge search. Type 'exit' to quit.\n")

			for {
				line, err := rl.Readline()
				if err != nil {
					// Interrupt or EOF ends the session
					break
				}

				query := strings.TrimSpace(line)
				if query == "" {
					continue
				}
				if query == "exit" || query == "quit" {
					break
				}

				vec, err := embedder.Embed(ctx, query)
				if err != nil {
					fmt.Fprintf(c.Root().Writer, "error: %v\n", err)
					continue
				}

				matches, err := repo.SearchKnowledge(ctx, &repository.SearchKnowledgeInput{
					AgentID:        model.AccountID(agentID),
					Embedding:      vec,
					MatchThreshold: threshold,
					MatchCount:     int(limit),
					SearchText:     query,
				})
				if err != nil {
					fmt.Fprintf(c.Root().Writer, "error: %v\n", err)
					continue
				}

				if len(matches) == 0 {
					fmt.Fprintf(c.Root().Writer, "no results\n")
					continue
				}
				for i, m := range matches {
					fmt.Fprintf(c.Root().Writer, "%2d. [%.3f] %s\n",
						i+1, m.CombinedScore, summarize(m.Item.Content.Text))
				}
			}

			fmt.Fprintf(c.Root().Writer, "\nbye\n")
			return nil
		},
	}
}
