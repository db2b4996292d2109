package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/engramdb/engram/pkg/model"
	"github.com/engramdb/engram/pkg/utils/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
)

func hotKey(key string, agentID model.AccountID) string {
	return fmt.Sprintf("%s\x00%s", key, agentID)
}

// GetCache looks up a cache value, checking the in-process tier before
// the database. Every failure degrades to a miss so callers can always
// fall back to recomputing.
func (p *Postgres) GetCache(ctx context.Context, key string, agentID model.AccountID) (string, bool) {
	if key == "" || agentID == "" {
		return "", false
	}

	if v, ok := p.hot.Get(hotKey(key, agentID)); ok {
		if s, ok := v.(string); ok {
			return s, true
		}
	}

	var (
		value string
		found bool
	)
	err := p.do(ctx, "get_cache", func(ctx context.Context, db *pgxpool.Pool) error {
		row := db.QueryRow(ctx,
			`SELECT value FROM cache WHERE key = $1 AND agent_id = $2`,
			key, string(agentID))
		if err := row.Scan(&value); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		logging.From(ctx).Warn("cache lookup failed, treating as miss",
			"key", key, "error", err)
		return "", false
	}
	if !found {
		return "", false
	}

	p.hot.Set(hotKey(key, agentID), value, int64(len(value)))
	return value, true
}

// SetCache upserts a cache value inside a transaction and writes through
// the in-process tier
func (p *Postgres) SetCache(ctx context.Context, entry *model.CacheEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	err := p.do(ctx, "set_cache", func(ctx context.Context, db *pgxpool.Pool) error {
		tx, err := db.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx, `
INSERT INTO cache (key, agent_id, value, created_at)
VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
ON CONFLICT (key, agent_id)
DO UPDATE SET value = EXCLUDED.value, created_at = CURRENT_TIMESTAMP`,
			entry.Key, string(entry.AgentID), entry.Value); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return err
	}

	// Wait flushes the buffered write so a read immediately after the
	// upsert sees the fresh value.
	p.hot.Set(hotKey(entry.Key, entry.AgentID), entry.Value, int64(len(entry.Value)))
	p.hot.Wait()
	return nil
}

// DeleteCache removes a cache value from both tiers
func (p *Postgres) DeleteCache(ctx context.Context, key string, agentID model.AccountID) error {
	if key == "" {
		return goerr.New("cache key is required", goerr.T(model.ErrTagValidation))
	}
	if agentID == "" {
		return goerr.New("agent ID is required", goerr.T(model.ErrTagValidation))
	}

	err := p.do(ctx, "delete_cache", func(ctx context.Context, db *pgxpool.Pool) error {
		tx, err := db.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if _, err := tx.Exec(ctx,
			`DELETE FROM cache WHERE key = $1 AND agent_id = $2`,
			key, string(agentID)); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return err
	}

	p.hot.Del(hotKey(key, agentID))
	p.hot.Wait()
	return nil
}
