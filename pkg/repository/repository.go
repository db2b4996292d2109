package repository

import (
	"context"
	"time"

	"github.com/engramdb/engram/pkg/model"
	"github.com/m-mizutani/goerr/v2"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = goerr.New("record not found")

const defaultMatchCount = 10

// Repository defines the persistence operations of the memory store
type Repository interface {
	// EnsureSchema provisions the schema inside a single transaction.
	// It is idempotent and runs once at startup.
	EnsureSchema(ctx context.Context) error

	// CreateMemory stores a memory. Near-duplicates in the same room are
	// flagged, never rejected, unless WithUnique overrides the probe.
	CreateMemory(ctx context.Context, mem *model.Memory, opts ...CreateMemoryOption) error

	// GetMemoryByID retrieves a memory by ID
	GetMemoryByID(ctx context.Context, id model.MemoryID) (*model.Memory, error)

	// GetMemories retrieves memories of one room, newest first
	GetMemories(ctx context.Context, input *GetMemoriesInput) ([]*model.Memory, error)

	// GetMemoriesByRooms retrieves memories across multiple rooms
	GetMemoriesByRooms(ctx context.Context, input *GetMemoriesByRoomsInput) ([]*model.Memory, error)

	// SearchMemories performs cosine similarity search within a room
	SearchMemories(ctx context.Context, input *SearchMemoriesInput) ([]*MemoryMatch, error)

	// SearchEmbeddingsByText finds stored embeddings whose source text is
	// close to the query text by edit distance
	SearchEmbeddingsByText(ctx context.Context, input *SearchEmbeddingsByTextInput) ([]*EmbeddingMatch, error)

	// RemoveMemory deletes a single memory from a namespace
	RemoveMemory(ctx context.Context, id model.MemoryID, table string) error

	// RemoveAllMemories deletes every memory of a room in a namespace
	RemoveAllMemories(ctx context.Context, roomID model.RoomID, table string) error

	// CountMemories counts memories of a room in a namespace
	CountMemories(ctx context.Context, roomID model.RoomID, unique bool, table string) (int, error)

	// CreateKnowledge stores a knowledge item, ignoring duplicate IDs
	CreateKnowledge(ctx context.Context, item *model.KnowledgeItem) error

	// GetKnowledge lists knowledge visible to an agent, optionally by ID
	GetKnowledge(ctx context.Context, input *GetKnowledgeInput) ([]*model.KnowledgeItem, error)

	// SearchKnowledge performs hybrid vector and keyword search over the
	// knowledge visible to an agent. Results are served from and written
	// to the result cache.
	SearchKnowledge(ctx context.Context, input *SearchKnowledgeInput) ([]*model.KnowledgeMatch, error)

	// RemoveKnowledge deletes an item and its chunks
	RemoveKnowledge(ctx context.Context, id model.KnowledgeID) error

	// ClearKnowledge deletes everything owned by an agent, and shared
	// items as well when includeShared is set
	ClearKnowledge(ctx context.Context, agentID model.AccountID, includeShared bool) error

	// GetCache looks up a cache value. Failures degrade to a miss.
	GetCache(ctx context.Context, key string, agentID model.AccountID) (string, bool)

	// SetCache upserts a cache value
	SetCache(ctx context.Context, entry *model.CacheEntry) error

	// DeleteCache removes a cache value
	DeleteCache(ctx context.Context, key string, agentID model.AccountID) error

	CreateAccount(ctx context.Context, account *model.Account) error
	GetAccountByID(ctx context.Context, id model.AccountID) (*model.Account, error)
	CreateRoom(ctx context.Context, id model.RoomID) (model.RoomID, error)
	GetRoom(ctx context.Context, id model.RoomID) (*model.Room, error)
	RemoveRoom(ctx context.Context, id model.RoomID) error
	AddParticipant(ctx context.Context, userID model.AccountID, roomID model.RoomID) error
	RemoveParticipant(ctx context.Context, userID model.AccountID, roomID model.RoomID) error
	GetParticipantsForRoom(ctx context.Context, roomID model.RoomID) ([]model.AccountID, error)

	Close()
}

// GetMemoriesInput filters the memories of one room. Zero Start and End
// mean unbounded, both bounds are inclusive.
type GetMemoriesInput struct {
	Table   string
	RoomID  model.RoomID
	AgentID model.AccountID
	Start   time.Time
	End     time.Time
	Count   int
	Unique  bool
}

type GetMemoriesByRoomsInput struct {
	Table   string
	RoomIDs []model.RoomID
	AgentID model.AccountID
}

type SearchMemoriesInput struct {
	Table          string
	RoomID         model.RoomID
	AgentID        model.AccountID
	Embedding      []float32
	MatchThreshold float64
	Count          int
	Unique         bool
}

// MemoryMatch is a memory with its cosine similarity to the query, in
// [0, 1] where higher is more similar.
type MemoryMatch struct {
	Memory     *model.Memory `json:"memory"`
	Similarity float64       `json:"similarity"`
}

// SearchEmbeddingsByTextInput drives edit-distance embedding reuse: find
// embeddings of stored texts close to Text. MaxDistance of zero means
// unbounded.
type SearchEmbeddingsByTextInput struct {
	Table       string
	Text        string
	MaxDistance int
	Count       int
}

type EmbeddingMatch struct {
	Embedding []float32
	Distance  int
}

type GetKnowledgeInput struct {
	ID      model.KnowledgeID
	AgentID model.AccountID
	Limit   int
}

type SearchKnowledgeInput struct {
	AgentID        model.AccountID
	Embedding      []float32
	MatchThreshold float64
	MatchCount     int
	SearchText     string
}
