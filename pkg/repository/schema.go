package repository

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/engramdb/engram/pkg/model"
	"github.com/engramdb/engram/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

//go:embed schema.sql
var schemaSQL string

// sentinelTable is the marker checked to decide whether the schema has
// been provisioned already
const sentinelTable = "rooms"

// EnsureSchema provisions the database schema inside a single
// transaction. The embedding provider is pinned through session flags
// before the DDL runs, so the vector columns are sized for the active
// provider. The DDL only runs when the sentinel table or the vector
// extension is missing. Schema failures are fatal and are not retried.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	db, _ := p.pool.Get()

	tx, err := db.Begin(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to begin schema transaction", goerr.T(model.ErrTagSchema))
	}
	defer tx.Rollback(ctx)

	for _, provider := range model.EmbeddingProviders() {
		flag := provider.SessionFlag()
		if flag == "" {
			continue
		}
		value := "false"
		if provider == p.provider {
			value = "true"
		}
		// SET cannot take bind parameters. The flag names come from a
		// fixed enumeration, not from user input.
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL %s = '%s'", flag, value)); err != nil {
			return goerr.Wrap(err, "failed to set embedding provider flag",
				goerr.V("flag", flag), goerr.T(model.ErrTagSchema))
		}
	}

	var hasSentinel bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`,
		sentinelTable).Scan(&hasSentinel); err != nil {
		return goerr.Wrap(err, "failed to check sentinel table", goerr.T(model.ErrTagSchema))
	}

	var hasVector bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')`).Scan(&hasVector); err != nil {
		return goerr.Wrap(err, "failed to check vector extension", goerr.T(model.ErrTagSchema))
	}

	if !hasSentinel || !hasVector {
		logging.From(ctx).Info("applying database schema",
			"sentinel_present", hasSentinel,
			"vector_present", hasVector,
			"provider", p.provider,
			"dimensions", p.dims)

		if _, err := tx.Exec(ctx, schemaSQL); err != nil {
			return goerr.Wrap(err, "failed to apply schema", goerr.T(model.ErrTagSchema))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return goerr.Wrap(err, "failed to commit schema transaction", goerr.T(model.ErrTagSchema))
	}
	return nil
}
