package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func migrateCommand() *cli.Command {
	var cfg config

	flags := globalFlags(&cfg)
	flags = append(flags, resilienceFlags(&cfg)...)
	flags = append(flags, embeddingFlags(&cfg)...)

	return &cli.Command{
		Name:  "migrate",
		Usage: "Provision the database schema for the selected embedding provider",
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

			s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
			s.Suffix = " applying schema..."
			s.Start()
			err = repo.EnsureSchema(ctx)
			s.Stop()
			if err != nil {
				return goerr.Wrap(err, "failed to apply schema")
			}

			fmt.Fprintf(c.Root().Writer, "Schema ready (provider: %s, dimensions: %d)\n",
				repo.Provider(), repo.Dimensions())
			return nil
		},
	}
}
