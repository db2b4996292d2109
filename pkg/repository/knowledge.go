package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/engramdb/engram/pkg/model"
	"github.com/engramdb/engram/pkg/utils/logging"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pgvector/pgvector-go"
)

const knowledgeColumns = `id, agent_id, content, embedding, created_at`

func scanKnowledgeItem(scan func(dest ...any) error, extra ...any) (*model.KnowledgeItem, error) {
	var (
		item        model.KnowledgeItem
		id          string
		agentID     *string
		contentJSON []byte
		vec         *pgvector.Vector
	)

	dest := []any{&id, &agentID, &contentJSON, &vec, &item.CreatedAt}
	dest = append(dest, extra...)
	if err := scan(dest...); err != nil {
		return nil, err
	}

	item.ID = model.KnowledgeID(id)
	if agentID != nil {
		item.AgentID = model.AccountID(*agentID)
	}
	if vec != nil {
		item.Embedding = vec.Slice()
	}
	if err := json.Unmarshal(contentJSON, &item.Content); err != nil {
		return nil, goerr.Wrap(err, "failed to decode knowledge content", goerr.V("id", item.ID))
	}
	return &item, nil
}

func (p *Postgres) CreateKnowledge(ctx context.Context, item *model.KnowledgeItem) error {
	if err := item.Validate(); err != nil {
		return err
	}

	embedding := model.ClampEmbedding(item.Embedding)
	if len(embedding) > 0 {
		if err := model.ValidateEmbedding(embedding, p.dims); err != nil {
			return err
		}
	}

	id := item.ID
	if id == "" {
		id = model.NewKnowledgeID()
	}
	createdAt := item.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	contentJSON, err := json.Marshal(item.Content)
	if err != nil {
		return goerr.Wrap(err, "failed to encode knowledge content", goerr.T(model.ErrTagValidation))
	}

	meta := item.Content.Metadata
	return p.do(ctx, "create_knowledge", func(ctx context.Context, db *pgxpool.Pool) error {
		var vec any
		if len(embedding) > 0 {
			vec = pgvector.NewVector(embedding)
		}
		var chunkIndex any
		if meta.ChunkIndex != nil {
			chunkIndex = *meta.ChunkIndex
		}

		_, err := db.Exec(ctx, `
INSERT INTO knowledge (id, agent_id, content, embedding, created_at, is_main, original_id, chunk_index, is_shared)
VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING`,
			string(id), nullableID(item.AgentID), string(contentJSON), vec, createdAt,
			meta.IsMain, nullableID(meta.OriginalID), chunkIndex, meta.IsShared)
		return err
	})
}

func (p *Postgres) GetKnowledge(ctx context.Context, input *GetKnowledgeInput) ([]*model.KnowledgeItem, error) {
	if input.AgentID == "" {
		return nil, goerr.New("agent ID is required", goerr.T(model.ErrTagValidation))
	}

	query := `SELECT ` + knowledgeColumns + ` FROM knowledge WHERE (agent_id = $1 OR is_shared = TRUE)`
	args := []any{string(input.AgentID)}
	if input.ID != "" {
		args = append(args, string(input.ID))
		query += fmt.Sprintf(" AND id = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	limit := input.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	var items []*model.KnowledgeItem
	err := p.do(ctx, "get_knowledge", func(ctx context.Context, db *pgxpool.Pool) error {
		rows, err := db.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		items = nil
		for rows.Next() {
			item, err := scanKnowledgeItem(rows.Scan)
			if err != nil {
				return err
			}
			items = append(items, item)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// SearchKnowledge runs hybrid vector and keyword retrieval over the
// knowledge visible to the agent. Results are looked up in the result
// cache first and written back after ranking.
func (p *Postgres) SearchKnowledge(ctx context.Context, input *SearchKnowledgeInput) ([]*model.KnowledgeMatch, error) {
	if input.AgentID == "" {
		return nil, goerr.New("agent ID is required", goerr.T(model.ErrTagValidation))
	}
	embedding := model.ClampEmbedding(input.Embedding)
	if err := model.ValidateEmbedding(embedding, p.dims); err != nil {
		return nil, err
	}

	count := input.MatchCount
	if count <= 0 {
		count = defaultMatchCount
	}

	key := knowledgeCacheKey(input.AgentID, input.SearchText)
	if raw, ok := p.GetCache(ctx, key, input.AgentID); ok {
		matches, err := decodeKnowledgeMatches(raw)
		if err == nil {
			return matches, nil
		}
		logging.From(ctx).Warn("discarding undecodable cached search result",
			"key", key, "error", err)
	}

	params := rankParams{
		searchText:     input.SearchText,
		matchThreshold: input.MatchThreshold,
		limit:          count,
	}

	var matches []*model.KnowledgeMatch
	err := p.do(ctx, "search_knowledge", func(ctx context.Context, db *pgxpool.Pool) error {
		cands, err := queryKnowledgeCandidates(ctx, db, input, embedding)
		if err != nil {
			return err
		}
		matches = rankKnowledge(cands, params)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(matches); err == nil {
		entry := &model.CacheEntry{Key: key, AgentID: input.AgentID, Value: string(raw)}
		if err := p.SetCache(ctx, entry); err != nil {
			logging.From(ctx).Warn("failed to cache search result", "key", key, "error", err)
		}
	}
	return matches, nil
}

// queryKnowledgeCandidates fetches every visible row the ranking could
// retain, with its vector score. The LEAST(threshold, 0.3) floor drops
// only rows that can satisfy neither the threshold rule nor the keyword
// rescue, so the fusion scores the full visible set.
func queryKnowledgeCandidates(ctx context.Context, db *pgxpool.Pool, input *SearchKnowledgeInput, embedding []float32) ([]knowledgeCandidate, error) {
	query := `
SELECT ` + knowledgeColumns + `, 1 - (embedding <=> $1) AS vector_score
FROM knowledge
WHERE (agent_id = $2 OR is_shared = TRUE)
  AND embedding IS NOT NULL
  AND 1 - (embedding <=> $1) >= LEAST($3, 0.3)
ORDER BY embedding <=> $1`

	rows, err := db.Query(ctx, query,
		pgvector.NewVector(embedding), string(input.AgentID), input.MatchThreshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cands []knowledgeCandidate
	for rows.Next() {
		var score float64
		item, err := scanKnowledgeItem(rows.Scan, &score)
		if err != nil {
			return nil, err
		}
		cands = append(cands, knowledgeCandidate{item: item, vectorScore: score})
	}
	return cands, rows.Err()
}

func (p *Postgres) RemoveKnowledge(ctx context.Context, id model.KnowledgeID) error {
	if id == "" {
		return goerr.New("knowledge ID is required", goerr.T(model.ErrTagValidation))
	}

	// Chunks reference their parent with ON DELETE CASCADE, removing the
	// main item removes the chunks with it.
	return p.do(ctx, "remove_knowledge", func(ctx context.Context, db *pgxpool.Pool) error {
		_, err := db.Exec(ctx, `DELETE FROM knowledge WHERE id = $1`, string(id))
		return err
	})
}

func (p *Postgres) ClearKnowledge(ctx context.Context, agentID model.AccountID, includeShared bool) error {
	if agentID == "" {
		return goerr.New("agent ID is required", goerr.T(model.ErrTagValidation))
	}

	query := `DELETE FROM knowledge WHERE agent_id = $1`
	if includeShared {
		query = `DELETE FROM knowledge WHERE agent_id = $1 OR is_shared = TRUE`
	}

	return p.do(ctx, "clear_knowledge", func(ctx context.Context, db *pgxpool.Pool) error {
		_, err := db.Exec(ctx, query, string(agentID))
		return err
	})
}

func knowledgeCacheKey(agentID model.AccountID, searchText string) string {
	return fmt.Sprintf("knowledge_%s_%s", agentID, searchText)
}

func decodeKnowledgeMatches(raw string) ([]*model.KnowledgeMatch, error) {
	var matches []*model.KnowledgeMatch
	if err := json.Unmarshal([]byte(raw), &matches); err != nil {
		return nil, goerr.Wrap(err, "failed to decode cached search result")
	}
	return matches, nil
}
