package repository

import (
	"context"
	"sync"
	"time"

	"github.com/engramdb/engram/pkg/model"
	"github.com/engramdb/engram/pkg/utils/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// PoolConfig controls connection pool sizing and timeouts
type PoolConfig struct {
	MaxConns       int32
	IdleTimeout    time.Duration
	ConnectTimeout time.Duration
}

func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConns:       20,
		IdleTimeout:    30 * time.Second,
		ConnectTimeout: 5 * time.Second,
	}
}

// Pool wraps pgxpool with generation-guarded recreation. Operations take
// the pool together with a generation token, and a reset request carrying
// a stale token is a no-op, so concurrent victims of the same broken pool
// trigger exactly one rebuild.
type Pool struct {
	mu  sync.Mutex
	dsn string
	cfg PoolConfig

	pool *pgxpool.Pool
	gen  uint64
}

func newPool(ctx context.Context, dsn string, cfg PoolConfig) (*Pool, error) {
	p := &Pool{dsn: dsn, cfg: cfg}

	pool, err := p.build(ctx)
	if err != nil {
		return nil, err
	}
	p.pool = pool
	return p, nil
}

func (p *Pool) build(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(p.dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse database DSN", goerr.T(model.ErrTagValidation))
	}
	cfg.MaxConns = p.cfg.MaxConns
	cfg.MaxConnIdleTime = p.cfg.IdleTimeout
	cfg.ConnConfig.ConnectTimeout = p.cfg.ConnectTimeout
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create connection pool", goerr.T(model.ErrTagStore))
	}
	return pool, nil
}

// Get returns the live pool and its generation token
func (p *Pool) Get() (*pgxpool.Pool, uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pool, p.gen
}

// WithConn acquires a connection, runs fn, and releases the connection on
// every exit path. Use it for work that must stay on one connection
// outside a transaction.
func (p *Pool) WithConn(ctx context.Context, fn func(ctx context.Context, conn *pgxpool.Conn) error) error {
	db, _ := p.Get()
	return db.AcquireFunc(ctx, func(conn *pgxpool.Conn) error {
		return fn(ctx, conn)
	})
}

// Reset replaces the pool of the given generation with a fresh one. A
// stale generation means another caller already rebuilt it.
func (p *Pool) Reset(ctx context.Context, gen uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if gen != p.gen {
		return nil
	}

	fresh, err := p.build(ctx)
	if err != nil {
		return err
	}
	p.pool.Close()
	p.pool = fresh
	p.gen++
	logging.From(ctx).Info("connection pool recreated", "generation", p.gen)
	return nil
}

func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pool.Close()
}
