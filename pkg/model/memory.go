package model

import (
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// Memory namespaces used by the agent runtime. Any identifier-shaped name
// is accepted, these are just the common ones.
const (
	TableMessages  = "messages"
	TableFacts     = "facts"
	TableDocuments = "documents"
	TableFragments = "fragments"
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateTableName checks that name is a plain identifier. Table names end
// up in SQL as the memory type discriminator and must never carry quoting
// or whitespace.
func ValidateTableName(name string) error {
	if name == "" {
		return goerr.New("table name is required", goerr.T(ErrTagValidation))
	}
	if !tableNamePattern.MatchString(name) {
		return goerr.New("invalid table name", goerr.V("table", name), goerr.T(ErrTagValidation))
	}
	return nil
}

// Memory is a single stored record in a memory namespace: a conversational
// message, an extracted fact, a document fragment and so on.
type Memory struct {
	ID        MemoryID      `json:"id"`
	Table     string        `json:"table"`
	Content   MemoryContent `json:"content"`
	Embedding []float32     `json:"embedding,omitempty"`
	UserID    AccountID     `json:"userId,omitempty"`
	AgentID   AccountID     `json:"agentId,omitempty"`
	RoomID    RoomID        `json:"roomId"`
	Unique    bool          `json:"unique"`
	CreatedAt time.Time     `json:"createdAt"`
}

// MemoryContent is the JSON document stored for a memory. Text is the
// searchable portion, Metadata carries whatever else the caller attaches.
type MemoryContent struct {
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate checks the fields required before the memory can be persisted
func (m *Memory) Validate() error {
	if err := ValidateTableName(m.Table); err != nil {
		return err
	}
	if m.RoomID == "" {
		return goerr.New("room ID is required", goerr.T(ErrTagValidation))
	}
	if m.Content.Text == "" {
		return goerr.New("memory content text is required", goerr.T(ErrTagValidation))
	}
	return nil
}
