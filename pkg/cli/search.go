package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/engramdb/engram/pkg/model"
	"github.com/engramdb/engram/pkg/repository"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func searchCommand() *cli.Command {
	var (
		cfg       config
		agentID   string
		query     string
		threshold float64
		limit     int64
		asJSON    bool
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
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "Search text",
			Sources:     cli.EnvVars("ENGRAM_SEARCH_QUERY"),
			Destination: &query,
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
		&cli.BoolFlag{
			Name:        "json",
			Usage:       "Print results as JSON",
			Destination: &asJSON,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, resilienceFlags(&cfg)...)
	flags = append(flags, embeddingFlags(&cfg)...)

	return &cli.Command{
		Name:  "search",
		Usage: "Hybrid vector and keyword search over agent knowledge",
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

			vec, err := embedder.Embed(ctx, query)
			if err != nil {
				return goerr.Wrap(err, "failed to embed query")
			}

			matches, err := repo.SearchKnowledge(ctx, &repository.SearchKnowledgeInput{
				AgentID:        model.AccountID(agentID),
				Embedding:      vec,
				MatchThreshold: threshold,
				MatchCount:     int(limit),
				SearchText:     query,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to search knowledge")
			}

			if asJSON {
				enc := json.NewEncoder(c.Root().Writer)
				enc.SetIndent("", "  ")
				return enc.Encode(matches)
			}

			if len(matches) == 0 {
				fmt.Fprintf(c.Root().Writer, "No results\n")
				return nil
			}
			for i, m := range matches {
				fmt.Fprintf(c.Root().Writer, "%2d. [%.3f] %s\n",
					i+1, m.CombinedScore, summarize(m.Item.Content.Text))
			}
			return nil
		},
	}
}

// summarize flattens and truncates text for one-line display
func summarize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if runes := []rune(text); len(runes) > 100 {
		return string(runes[:100]) + "..."
	}
	return text
}
