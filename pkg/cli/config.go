package cli

import (
	"context"
	"os"
	"time"

	"github.com/engramdb/engram/pkg/adapter"
	"github.com/engramdb/engram/pkg/model"
	"github.com/engramdb/engram/pkg/repository"
	"github.com/engramdb/engram/pkg/resilience"
	"github.com/engramdb/engram/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// config holds configuration values
type config struct {
	configPath string
	logLevel   string
	logFormat  string

	// Database
	dsn            string
	maxConns       int64
	idleTimeout    time.Duration
	connectTimeout time.Duration

	// Resilience
	failureThreshold int64
	resetTimeout     time.Duration
	halfOpenMax      int64
	maxRetries       int64
	baseDelay        time.Duration
	maxDelay         time.Duration
	jitterMax        time.Duration

	// Embedding
	provider       string
	geminiProject  string
	geminiLocation string
	mockEmbedding  bool
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "Path to YAML settings file",
			Sources:     cli.EnvVars("ENGRAM_CONFIG"),
			Destination: &cfg.configPath,
		},
		&cli.StringFlag{
			Name:        "dsn",
			Usage:       "PostgreSQL connection string",
			Sources:     cli.EnvVars("ENGRAM_DSN"),
			Destination: &cfg.dsn,
		},
		&cli.IntFlag{
			Name:        "max-conns",
			Usage:       "Maximum connections in the pool",
			Value:       20,
			Sources:     cli.EnvVars("ENGRAM_MAX_CONNS"),
			Destination: &cfg.maxConns,
		},
		&cli.DurationFlag{
			Name:        "idle-timeout",
			Usage:       "Idle connection timeout",
			Value:       30 * time.Second,
			Sources:     cli.EnvVars("ENGRAM_IDLE_TIMEOUT"),
			Destination: &cfg.idleTimeout,
		},
		&cli.DurationFlag{
			Name:        "connect-timeout",
			Usage:       "Connection establishment timeout",
			Value:       5 * time.Second,
			Sources:     cli.EnvVars("ENGRAM_CONNECT_TIMEOUT"),
			Destination: &cfg.connectTimeout,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("ENGRAM_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log output format (console, json)",
			Value:       logging.FormatConsole,
			Sources:     cli.EnvVars("ENGRAM_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
	}
}

// resilienceFlags returns flags for the circuit breaker and retry policy
func resilienceFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "failure-threshold",
			Usage:       "Consecutive failures before the circuit opens",
			Value:       5,
			Sources:     cli.EnvVars("ENGRAM_FAILURE_THRESHOLD"),
			Destination: &cfg.failureThreshold,
		},
		&cli.DurationFlag{
			Name:        "reset-timeout",
			Usage:       "Time the circuit stays open before trial requests",
			Value:       60 * time.Second,
			Sources:     cli.EnvVars("ENGRAM_RESET_TIMEOUT"),
			Destination: &cfg.resetTimeout,
		},
		&cli.IntFlag{
			Name:        "half-open-max",
			Usage:       "Trial requests allowed while half-open",
			Value:       3,
			Sources:     cli.EnvVars("ENGRAM_HALF_OPEN_MAX"),
			Destination: &cfg.halfOpenMax,
		},
		&cli.IntFlag{
			Name:        "max-retries",
			Usage:       "Total attempts per operation including the first",
			Value:       3,
			Sources:     cli.EnvVars("ENGRAM_MAX_RETRIES"),
			Destination: &cfg.maxRetries,
		},
		&cli.DurationFlag{
			Name:        "base-delay",
			Usage:       "Backoff delay after the first failure",
			Value:       time.Second,
			Sources:     cli.EnvVars("ENGRAM_BASE_DELAY"),
			Destination: &cfg.baseDelay,
		},
		&cli.DurationFlag{
			Name:        "max-delay",
			Usage:       "Backoff delay cap",
			Value:       10 * time.Second,
			Sources:     cli.EnvVars("ENGRAM_MAX_DELAY"),
			Destination: &cfg.maxDelay,
		},
		&cli.DurationFlag{
			Name:        "jitter-max",
			Usage:       "Upper bound of the random delay added to backoff",
			Value:       time.Second,
			Sources:     cli.EnvVars("ENGRAM_JITTER_MAX"),
			Destination: &cfg.jitterMax,
		},
	}
}

// embeddingFlags returns flags for embedding provider configuration
func embeddingFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "embedding-provider",
			Usage:       "Embedding provider (openai, ollama, gaianet, bge)",
			Value:       string(model.DefaultProvider),
			Sources:     cli.EnvVars("ENGRAM_EMBEDDING_PROVIDER"),
			Destination: &cfg.provider,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini embeddings",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.BoolFlag{
			Name:        "mock-embedding",
			Usage:       "Use the deterministic local embedder instead of Gemini",
			Sources:     cli.EnvVars("ENGRAM_MOCK_EMBEDDING"),
			Destination: &cfg.mockEmbedding,
		},
	}
}

// settingsFile is the YAML settings layout. Durations are strings in Go
// duration syntax such as "30s".
type settingsFile struct {
	DSN              string `yaml:"dsn"`
	MaxConns         int64  `yaml:"max_conns"`
	IdleTimeout      string `yaml:"idle_timeout"`
	ConnectTimeout   string `yaml:"connect_timeout"`
	FailureThreshold int64  `yaml:"failure_threshold"`
	ResetTimeout     string `yaml:"reset_timeout"`
	HalfOpenMax      int64  `yaml:"half_open_max"`
	MaxRetries       int64  `yaml:"max_retries"`
	BaseDelay        string `yaml:"base_delay"`
	MaxDelay         string `yaml:"max_delay"`
	JitterMax        string `yaml:"jitter_max"`
	Provider         string `yaml:"embedding_provider"`
	GeminiProject    string `yaml:"gemini_project"`
	GeminiLocation   string `yaml:"gemini_location"`
	LogLevel         string `yaml:"log_level"`
	LogFormat        string `yaml:"log_format"`
}

// applySettings merges the YAML settings file into cfg. Values given on
// the command line or through the environment win over the file.
func (cfg *config) applySettings(c *cli.Command) error {
	if cfg.configPath == "" {
		return nil
	}

	data, err := os.ReadFile(cfg.configPath)
	if err != nil {
		return goerr.Wrap(err, "failed to read settings file", goerr.V("path", cfg.configPath))
	}

	var file settingsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return goerr.Wrap(err, "failed to parse settings file", goerr.V("path", cfg.configPath))
	}

	if !c.IsSet("dsn") && file.DSN != "" {
		cfg.dsn = file.DSN
	}
	if !c.IsSet("max-conns") && file.MaxConns > 0 {
		cfg.maxConns = file.MaxConns
	}
	if !c.IsSet("failure-threshold") && file.FailureThreshold > 0 {
		cfg.failureThreshold = file.FailureThreshold
	}
	if !c.IsSet("half-open-max") && file.HalfOpenMax > 0 {
		cfg.halfOpenMax = file.HalfOpenMax
	}
	if !c.IsSet("max-retries") && file.MaxRetries > 0 {
		cfg.maxRetries = file.MaxRetries
	}
	if !c.IsSet("embedding-provider") && file.Provider != "" {
		cfg.provider = file.Provider
	}
	if !c.IsSet("gemini-project") && file.GeminiProject != "" {
		cfg.geminiProject = file.GeminiProject
	}
	if !c.IsSet("gemini-location") && file.GeminiLocation != "" {
		cfg.geminiLocation = file.GeminiLocation
	}
	if !c.IsSet("log-level") && file.LogLevel != "" {
		cfg.logLevel = file.LogLevel
	}
	if !c.IsSet("log-format") && file.LogFormat != "" {
		cfg.logFormat = file.LogFormat
	}

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"idle-timeout", file.IdleTimeout, &cfg.idleTimeout},
		{"connect-timeout", file.ConnectTimeout, &cfg.connectTimeout},
		{"reset-timeout", file.ResetTimeout, &cfg.resetTimeout},
		{"base-delay", file.BaseDelay, &cfg.baseDelay},
		{"max-delay", file.MaxDelay, &cfg.maxDelay},
		{"jitter-max", file.JitterMax, &cfg.jitterMax},
	}
	for _, d := range durations {
		if c.IsSet(d.flag) || d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return goerr.Wrap(err, "invalid duration in settings file",
				goerr.V("field", d.flag), goerr.V("value", d.value))
		}
		*d.dst = parsed
	}

	return nil
}

// initLogging builds the logger from the configured level and format and
// attaches it to the context
func (cfg *config) initLogging(ctx context.Context) context.Context {
	logger := logging.New(cfg.logLevel, cfg.logFormat, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// newRepository creates the PostgreSQL repository with the configured
// pool, breaker and retry settings
func (cfg *config) newRepository(ctx context.Context) (*repository.Postgres, error) {
	if cfg.dsn == "" {
		return nil, goerr.New("dsn is required")
	}

	provider := model.DefaultProvider
	if cfg.provider != "" {
		provider = model.EmbeddingProvider(cfg.provider)
	}

	exec := resilience.New(
		resilience.WithBreaker(resilience.NewBreaker(resilience.BreakerConfig{
			FailureThreshold:    int(cfg.failureThreshold),
			ResetTimeout:        cfg.resetTimeout,
			HalfOpenMaxAttempts: int(cfg.halfOpenMax),
		})),
		resilience.WithRetry(resilience.RetryConfig{
			MaxRetries: int(cfg.maxRetries),
			BaseDelay:  cfg.baseDelay,
			MaxDelay:   cfg.maxDelay,
			JitterMax:  cfg.jitterMax,
		}),
	)

	repo, err := repository.New(ctx, cfg.dsn,
		repository.WithProvider(provider),
		repository.WithExecutor(exec),
		repository.WithPoolConfig(repository.PoolConfig{
			MaxConns:       int32(cfg.maxConns),
			IdleTimeout:    cfg.idleTimeout,
			ConnectTimeout: cfg.connectTimeout,
		}),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, nil
}

// newEmbedder creates the embedding adapter. The mock embedder needs no
// credentials and suits local development.
func (cfg *config) newEmbedder(ctx context.Context) (adapter.Embedder, error) {
	provider := model.DefaultProvider
	if cfg.provider != "" {
		provider = model.EmbeddingProvider(cfg.provider)
	}
	if err := provider.Validate(); err != nil {
		return nil, err
	}

	if cfg.mockEmbedding {
		return adapter.NewMock(provider.Dimensions()), nil
	}

	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required (or use --mock-embedding)")
	}

	gemini, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation,
		adapter.WithDimensions(provider.Dimensions()))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Gemini adapter")
	}
	return gemini, nil
}
