package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/engramdb/engram/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func newCommand() *cli.Command {
	var (
		cfg       config
		inputPath string
		text      string
		roomID    string
		userID    string
		agentID   string
		table     string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Path to JSON file containing the memory content",
			Sources:     cli.EnvVars("ENGRAM_INPUT"),
			Destination: &inputPath,
		},
		&cli.StringFlag{
			Name:        "text",
			Usage:       "Memory text, as an alternative to --input",
			Destination: &text,
		},
		&cli.StringFlag{
			Name:        "room",
			Aliases:     []string{"r"},
			Usage:       "Room ID the memory belongs to",
			Sources:     cli.EnvVars("ENGRAM_ROOM_ID"),
			Destination: &roomID,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "Account ID of the speaking user",
			Sources:     cli.EnvVars("ENGRAM_USER_ID"),
			Destination: &userID,
		},
		&cli.StringFlag{
			Name:        "agent",
			Aliases:     []string{"a"},
			Usage:       "Account ID of the owning agent",
			Sources:     cli.EnvVars("ENGRAM_AGENT_ID"),
			Destination: &agentID,
		},
		&cli.StringFlag{
			Name:        "table",
			Aliases:     []string{"t"},
			Usage:       "Memory namespace",
			Value:       model.TableMessages,
			Sources:     cli.EnvVars("ENGRAM_TABLE"),
			Destination: &table,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, resilienceFlags(&cfg)...)
	flags = append(flags, embeddingFlags(&cfg)...)

	return &cli.Command{
		Name:  "new",
		Usage: "Store a new memory from JSON or plain text",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := cfg.applySettings(c); err != nil {
				return err
			}
			ctx = cfg.initLogging(ctx)

			var content model.MemoryContent
			switch {
			case inputPath != "":
				data, err := os.ReadFile(inputPath)
				if err != nil {
					return goerr.Wrap(err, "failed to read input file", goerr.V("path", inputPath))
				}
				if err := json.Unmarshal(data, &content); err != nil {
					return goerr.Wrap(err, "failed to parse JSON")
				}
			case text != "":
				content = model.MemoryContent{Text: text}
			default:
				return goerr.New("either --input or --text is required")
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			embedder, err := cfg.newEmbedder(ctx)
			if err != nil {
				return err
			}

			embedding, err := embedder.Embed(ctx, content.Text)
			if err != nil {
				return goerr.Wrap(err, "failed to embed memory text")
			}

			// Memories reference rooms and accounts by foreign key, so make
			// sure the referenced rows exist before the insert.
			if _, err := repo.CreateRoom(ctx, model.RoomID(roomID)); err != nil {
				return goerr.Wrap(err, "failed to ensure room", goerr.V("room", roomID))
			}
			for _, id := range []string{userID, agentID} {
				if id == "" {
					continue
				}
				if err := repo.CreateAccount(ctx, &model.Account{ID: model.AccountID(id)}); err != nil {
					return goerr.Wrap(err, "failed to ensure account", goerr.V("account", id))
				}
			}

			mem := &model.Memory{
				ID:        model.NewMemoryID(),
				Table:     table,
				Content:   content,
				Embedding: embedding,
				UserID:    model.AccountID(userID),
				AgentID:   model.AccountID(agentID),
				RoomID:    model.RoomID(roomID),
			}
			if err := repo.CreateMemory(ctx, mem); err != nil {
				return goerr.Wrap(err, "failed to create memory")
			}

			fmt.Fprintf(c.Root().Writer, "Memory created: %s\n", mem.ID)
			return nil
		},
	}
}
