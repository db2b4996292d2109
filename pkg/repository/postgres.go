package repository

import (
	"context"
	"errors"
	"io"
	"strings"
	"syscall"

	"github.com/dgraph-io/ristretto"
	"github.com/engramdb/engram/pkg/model"
	"github.com/engramdb/engram/pkg/resilience"
	"github.com/engramdb/engram/pkg/utils/logging"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
)

// Postgres implements Repository on PostgreSQL with the pgvector
// extension. Every operation runs through the resilient executor, and
// fatal connection errors trigger a pool rebuild.
type Postgres struct {
	pool     *Pool
	poolCfg  PoolConfig
	exec     *resilience.Executor
	provider model.EmbeddingProvider
	dims     int
	hot      *ristretto.Cache
}

var _ Repository = (*Postgres)(nil)

type Option func(*Postgres)

// WithProvider selects the embedding provider the store is provisioned
// for. The provider fixes the vector dimension of the schema.
func WithProvider(provider model.EmbeddingProvider) Option {
	return func(p *Postgres) {
		p.provider = provider
	}
}

func WithExecutor(exec *resilience.Executor) Option {
	return func(p *Postgres) {
		p.exec = exec
	}
}

func WithPoolConfig(cfg PoolConfig) Option {
	return func(p *Postgres) {
		p.poolCfg = cfg
	}
}

func New(ctx context.Context, dsn string, opts ...Option) (*Postgres, error) {
	if dsn == "" {
		return nil, goerr.New("database DSN is required", goerr.T(model.ErrTagValidation))
	}

	p := &Postgres{
		poolCfg:  DefaultPoolConfig(),
		exec:     resilience.New(),
		provider: model.DefaultProvider,
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.provider.Validate(); err != nil {
		return nil, err
	}
	p.dims = p.provider.Dimensions()

	pool, err := newPool(ctx, dsn, p.poolCfg)
	if err != nil {
		return nil, err
	}
	p.pool = pool

	hot, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     32 << 20,
		BufferItems: 64,
	})
	if err != nil {
		pool.Close()
		return nil, goerr.Wrap(err, "failed to create in-process cache")
	}
	p.hot = hot

	// Connections are established lazily, so probe one now to surface a
	// bad DSN or an unreachable server at startup instead of at the first
	// query.
	if err := p.exec.Do(ctx, "ping", func(ctx context.Context) error {
		return p.pool.WithConn(ctx, func(ctx context.Context, conn *pgxpool.Conn) error {
			return conn.Ping(ctx)
		})
	}); err != nil {
		p.Close()
		return nil, goerr.Wrap(err, "failed to reach database", goerr.T(model.ErrTagStore))
	}

	return p, nil
}

// Provider returns the embedding provider the store was opened with
func (p *Postgres) Provider() model.EmbeddingProvider {
	return p.provider
}

// Dimensions returns the embedding dimension of the store
func (p *Postgres) Dimensions() int {
	return p.dims
}

func (p *Postgres) Close() {
	p.hot.Close()
	p.pool.Close()
}

// do runs fn through the resilient executor. When fn fails with a fatal
// connection error the pool of the observed generation is rebuilt before
// the next attempt.
func (p *Postgres) do(ctx context.Context, name string, fn func(ctx context.Context, db *pgxpool.Pool) error) error {
	return p.exec.Do(ctx, name, func(ctx context.Context) error {
		db, gen := p.pool.Get()

		err := fn(ctx, db)
		if err != nil && isFatalConnError(err) {
			logging.From(ctx).Warn("fatal connection error, recreating pool",
				"operation", name, "error", err)
			if rerr := p.pool.Reset(ctx, gen); rerr != nil {
				logging.From(ctx).Error("failed to recreate pool", "error", rerr)
			}
		}
		return err
	})
}

// isFatalConnError reports whether err means the current pool cannot
// serve further queries and must be rebuilt
func isFatalConnError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exceptions, class 57 is operator
		// intervention such as admin_shutdown and crash_shutdown.
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57")
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	return strings.Contains(err.Error(), "closed pool") ||
		strings.Contains(err.Error(), "conn closed")
}
