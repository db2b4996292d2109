package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/urfave/cli/v3"
)

func runWithSettings(t *testing.T, cfg *config, args []string) error {
	t.Helper()

	var applyErr error
	flags := globalFlags(cfg)
	flags = append(flags, resilienceFlags(cfg)...)
	flags = append(flags, embeddingFlags(cfg)...)

	cmd := &cli.Command{
		Name:  "test",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			applyErr = cfg.applySettings(c)
			return nil
		},
	}
	gt.NoError(t, cmd.Run(context.Background(), append([]string{"test"}, args...)))
	return applyErr
}

func TestApplySettings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yml")
	body := `
dsn: postgres://file-host/engram
max_conns: 7
reset_timeout: 90s
embedding_provider: openai
log_level: debug
log_format: json
`
	gt.NoError(t, os.WriteFile(path, []byte(body), 0600))

	var cfg config
	err := runWithSettings(t, &cfg, []string{"--config", path, "--max-conns", "3"})
	gt.NoError(t, err)

	// File fills what the command line left alone
	gt.Equal(t, cfg.dsn, "postgres://file-host/engram")
	gt.Equal(t, cfg.resetTimeout, 90*time.Second)
	gt.Equal(t, cfg.provider, "openai")
	gt.Equal(t, cfg.logLevel, "debug")
	gt.Equal(t, cfg.logFormat, "json")

	// Explicit flags win over the file
	gt.Equal(t, cfg.maxConns, int64(3))

	// Untouched settings keep their flag defaults
	gt.Equal(t, cfg.idleTimeout, 30*time.Second)
	gt.Equal(t, cfg.failureThreshold, int64(5))
}

func TestApplySettingsInvalidDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yml")
	gt.NoError(t, os.WriteFile(path, []byte("base_delay: banana\n"), 0600))

	var cfg config
	err := runWithSettings(t, &cfg, []string{"--config", path})
	gt.Error(t, err)
}

func TestApplySettingsMissingFile(t *testing.T) {
	var cfg config
	err := runWithSettings(t, &cfg, []string{"--config", filepath.Join(t.TempDir(), "absent.yml")})
	gt.Error(t, err)
}

func TestApplySettingsNoFile(t *testing.T) {
	var cfg config
	err := runWithSettings(t, &cfg, nil)
	gt.NoError(t, err)
	gt.Equal(t, cfg.maxConns, int64(20))
}
