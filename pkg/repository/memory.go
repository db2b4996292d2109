package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/engramdb/engram/pkg/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pgvector/pgvector-go"
)

const memoryColumns = `id, type, content, embedding, user_id, agent_id, room_id, "unique", created_at`

// duplicateThreshold is the cosine similarity above which a new memory in
// the same room is flagged as a near-duplicate
const duplicateThreshold = 0.95

type createMemoryConfig struct {
	unique    bool
	uniqueSet bool
}

type CreateMemoryOption func(*createMemoryConfig)

// WithUnique skips the near-duplicate probe and stores the memory with
// the given uniqueness flag
func WithUnique(unique bool) CreateMemoryOption {
	return func(c *createMemoryConfig) {
		c.unique = unique
		c.uniqueSet = true
	}
}

func nullableID[T ~string](id T) any {
	if id == "" {
		return nil
	}
	return string(id)
}

func scanMemory(scan func(dest ...any) error, extra ...any) (*model.Memory, error) {
	var (
		mem         model.Memory
		id          string
		roomID      string
		contentJSON []byte
		vec         *pgvector.Vector
		userID      *string
		agentID     *string
	)

	dest := []any{&id, &mem.Table, &contentJSON, &vec, &userID, &agentID, &roomID, &mem.Unique, &mem.CreatedAt}
	dest = append(dest, extra...)
	if err := scan(dest...); err != nil {
		return nil, err
	}

	mem.ID = model.MemoryID(id)
	mem.RoomID = model.RoomID(roomID)
	if userID != nil {
		mem.UserID = model.AccountID(*userID)
	}
	if agentID != nil {
		mem.AgentID = model.AccountID(*agentID)
	}
	if vec != nil {
		mem.Embedding = vec.Slice()
	}
	if err := json.Unmarshal(contentJSON, &mem.Content); err != nil {
		return nil, goerr.Wrap(err, "failed to decode memory content", goerr.V("id", mem.ID))
	}
	return &mem, nil
}

func (p *Postgres) CreateMemory(ctx context.Context, mem *model.Memory, opts ...CreateMemoryOption) error {
	if err := mem.Validate(); err != nil {
		return err
	}

	embedding := model.ClampEmbedding(mem.Embedding)
	if len(embedding) > 0 {
		if err := model.ValidateEmbedding(embedding, p.dims); err != nil {
			return err
		}
	}

	var cfg createMemoryConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	id := mem.ID
	if id == "" {
		id = model.NewMemoryID()
	}
	createdAt := mem.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	contentJSON, err := json.Marshal(mem.Content)
	if err != nil {
		return goerr.Wrap(err, "failed to encode memory content", goerr.T(model.ErrTagValidation))
	}

	return p.do(ctx, "create_memory", func(ctx context.Context, db *pgxpool.Pool) error {
		unique := true
		switch {
		case cfg.uniqueSet:
			unique = cfg.unique
		case len(embedding) > 0:
			// The probe and the insert are not atomic. Two concurrent
			// writers of the same content may both come out unique,
			// which is tolerated.
			matches, err := queryMemoryMatches(ctx, db, &SearchMemoriesInput{
				Table:          mem.Table,
				RoomID:         mem.RoomID,
				Embedding:      embedding,
				MatchThreshold: duplicateThreshold,
				Count:          1,
			})
			if err != nil {
				return err
			}
			unique = len(matches) == 0
		}

		var vec any
		if len(embedding) > 0 {
			vec = pgvector.NewVector(embedding)
		}

		_, err := db.Exec(ctx, `
INSERT INTO memories (id, type, content, embedding, user_id, agent_id, room_id, "unique", created_at)
VALUES ($1, $2, $3::jsonb, $4, $5, $6, $7, $8, $9)`,
			string(id), mem.Table, string(contentJSON), vec,
			nullableID(mem.UserID), nullableID(mem.AgentID), string(mem.RoomID),
			unique, createdAt)
		return err
	})
}

func (p *Postgres) GetMemoryByID(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	if id == "" {
		return nil, goerr.New("memory ID is required", goerr.T(model.ErrTagValidation))
	}

	var mem *model.Memory
	err := p.do(ctx, "get_memory", func(ctx context.Context, db *pgxpool.Pool) error {
		row := db.QueryRow(ctx, `SELECT `+memoryColumns+` FROM memories WHERE id = $1`, string(id))
		m, err := scanMemory(row.Scan)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil
			}
			return err
		}
		mem = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	if mem == nil {
		return nil, goerr.Wrap(ErrNotFound, "memory not found", goerr.V("id", id))
	}
	return mem, nil
}

func (p *Postgres) GetMemories(ctx context.Context, input *GetMemoriesInput) ([]*model.Memory, error) {
	if err := model.ValidateTableName(input.Table); err != nil {
		return nil, err
	}
	if input.RoomID == "" {
		return nil, goerr.New("room ID is required", goerr.T(model.ErrTagValidation))
	}

	query := `SELECT ` + memoryColumns + ` FROM memories WHERE type = $1 AND room_id = $2`
	args := []any{input.Table, string(input.RoomID)}
	if input.Unique {
		query += ` AND "unique" = TRUE`
	}
	if input.AgentID != "" {
		args = append(args, string(input.AgentID))
		query += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	if !input.Start.IsZero() {
		args = append(args, input.Start)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if !input.End.IsZero() {
		args = append(args, input.End)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if input.Count > 0 {
		args = append(args, input.Count)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var memories []*model.Memory
	err := p.do(ctx, "get_memories", func(ctx context.Context, db *pgxpool.Pool) error {
		rows, err := db.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		memories = nil
		for rows.Next() {
			mem, err := scanMemory(rows.Scan)
			if err != nil {
				return err
			}
			memories = append(memories, mem)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return memories, nil
}

func (p *Postgres) GetMemoriesByRooms(ctx context.Context, input *GetMemoriesByRoomsInput) ([]*model.Memory, error) {
	if err := model.ValidateTableName(input.Table); err != nil {
		return nil, err
	}
	if len(input.RoomIDs) == 0 {
		return nil, nil
	}

	roomIDs := make([]string, len(input.RoomIDs))
	for i, id := range input.RoomIDs {
		roomIDs[i] = string(id)
	}

	query := `SELECT ` + memoryColumns + ` FROM memories WHERE type = $1 AND room_id = ANY($2)`
	args := []any{input.Table, roomIDs}
	if input.AgentID != "" {
		args = append(args, string(input.AgentID))
		query += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	var memories []*model.Memory
	err := p.do(ctx, "get_memories_by_rooms", func(ctx context.Context, db *pgxpool.Pool) error {
		rows, err := db.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		memories = nil
		for rows.Next() {
			mem, err := scanMemory(rows.Scan)
			if err != nil {
				return err
			}
			memories = append(memories, mem)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return memories, nil
}

func (p *Postgres) SearchMemories(ctx context.Context, input *SearchMemoriesInput) ([]*MemoryMatch, error) {
	if err := model.ValidateTableName(input.Table); err != nil {
		return nil, err
	}
	if input.RoomID == "" {
		return nil, goerr.New("room ID is required", goerr.T(model.ErrTagValidation))
	}
	embedding := model.ClampEmbedding(input.Embedding)
	if err := model.ValidateEmbedding(embedding, p.dims); err != nil {
		return nil, err
	}

	probe := *input
	probe.Embedding = embedding

	var matches []*MemoryMatch
	err := p.do(ctx, "search_memories", func(ctx context.Context, db *pgxpool.Pool) error {
		found, err := queryMemoryMatches(ctx, db, &probe)
		if err != nil {
			return err
		}
		matches = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// queryMemoryMatches is the raw similarity query shared by SearchMemories
// and the near-duplicate probe of CreateMemory. It runs on the caller's
// connection without going through the executor.
func queryMemoryMatches(ctx context.Context, db *pgxpool.Pool, input *SearchMemoriesInput) ([]*MemoryMatch, error) {
	query := `
SELECT ` + memoryColumns + `, 1 - (embedding <=> $1) AS similarity
FROM memories
WHERE type = $2 AND room_id = $3 AND embedding IS NOT NULL
  AND 1 - (embedding <=> $1) >= $4`
	args := []any{pgvector.NewVector(input.Embedding), input.Table, string(input.RoomID), input.MatchThreshold}
	if input.Unique {
		query += ` AND "unique" = TRUE`
	}
	if input.AgentID != "" {
		args = append(args, string(input.AgentID))
		query += fmt.Sprintf(" AND agent_id = $%d", len(args))
	}

	count := input.Count
	if count <= 0 {
		count = defaultMatchCount
	}
	args = append(args, count)
	query += fmt.Sprintf(" ORDER BY embedding <=> $1 LIMIT $%d", len(args))

	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*MemoryMatch
	for rows.Next() {
		var similarity float64
		mem, err := scanMemory(rows.Scan, &similarity)
		if err != nil {
			return nil, err
		}
		matches = append(matches, &MemoryMatch{Memory: mem, Similarity: similarity})
	}
	return matches, rows.Err()
}

// maxTextLength is the longest input the levenshtein function accepts
const maxTextLength = 255

func (p *Postgres) SearchEmbeddingsByText(ctx context.Context, input *SearchEmbeddingsByTextInput) ([]*EmbeddingMatch, error) {
	if err := model.ValidateTableName(input.Table); err != nil {
		return nil, err
	}
	if input.Text == "" {
		return nil, goerr.New("query text is required", goerr.T(model.ErrTagValidation))
	}

	text := input.Text
	if runes := []rune(text); len(runes) > maxTextLength {
		text = string(runes[:maxTextLength])
	}

	count := input.Count
	if count <= 0 {
		count = defaultMatchCount
	}

	query := `
SELECT embedding, levenshtein($1, substring(content->>'text' FROM 1 FOR 255)) AS distance
FROM memories
WHERE type = $2 AND embedding IS NOT NULL AND content->>'text' IS NOT NULL`
	args := []any{text, input.Table}
	if input.MaxDistance > 0 {
		args = append(args, input.MaxDistance)
		query += fmt.Sprintf(" AND levenshtein($1, substring(content->>'text' FROM 1 FOR 255)) <= $%d", len(args))
	}
	args = append(args, count)
	query += fmt.Sprintf(" ORDER BY distance ASC LIMIT $%d", len(args))

	var matches []*EmbeddingMatch
	err := p.do(ctx, "search_embeddings_by_text", func(ctx context.Context, db *pgxpool.Pool) error {
		rows, err := db.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		matches = nil
		for rows.Next() {
			var (
				vec      pgvector.Vector
				distance int
			)
			if err := rows.Scan(&vec, &distance); err != nil {
				return err
			}
			matches = append(matches, &EmbeddingMatch{Embedding: vec.Slice(), Distance: distance})
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

func (p *Postgres) RemoveMemory(ctx context.Context, id model.MemoryID, table string) error {
	if id == "" {
		return goerr.New("memory ID is required", goerr.T(model.ErrTagValidation))
	}
	if err := model.ValidateTableName(table); err != nil {
		return err
	}

	return p.do(ctx, "remove_memory", func(ctx context.Context, db *pgxpool.Pool) error {
		_, err := db.Exec(ctx, `DELETE FROM memories WHERE id = $1 AND type = $2`, string(id), table)
		return err
	})
}

func (p *Postgres) RemoveAllMemories(ctx context.Context, roomID model.RoomID, table string) error {
	if roomID == "" {
		return goerr.New("room ID is required", goerr.T(model.ErrTagValidation))
	}
	if err := model.ValidateTableName(table); err != nil {
		return err
	}

	return p.do(ctx, "remove_all_memories", func(ctx context.Context, db *pgxpool.Pool) error {
		_, err := db.Exec(ctx, `DELETE FROM memories WHERE room_id = $1 AND type = $2`, string(roomID), table)
		return err
	})
}

func (p *Postgres) CountMemories(ctx context.Context, roomID model.RoomID, unique bool, table string) (int, error) {
	if roomID == "" {
		return 0, goerr.New("room ID is required", goerr.T(model.ErrTagValidation))
	}
	if err := model.ValidateTableName(table); err != nil {
		return 0, err
	}

	query := `SELECT COUNT(*) FROM memories WHERE room_id = $1 AND type = $2`
	if unique {
		query += ` AND "unique" = TRUE`
	}

	var count int
	err := p.do(ctx, "count_memories", func(ctx context.Context, db *pgxpool.Pool) error {
		return db.QueryRow(ctx, query, string(roomID), table).Scan(&count)
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
