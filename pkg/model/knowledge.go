package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type KnowledgeID string

// NewKnowledgeID generates a new unique KnowledgeID
func NewKnowledgeID() KnowledgeID {
	return KnowledgeID(uuid.New().String())
}

// KnowledgeItem is a document or document chunk in the knowledge base.
// Shared items are visible to every agent and carry a zero AgentID.
type KnowledgeItem struct {
	ID        KnowledgeID      `json:"id"`
	AgentID   AccountID        `json:"agentId,omitempty"`
	Content   KnowledgeContent `json:"content"`
	Embedding []float32        `json:"embedding,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

type KnowledgeContent struct {
	Text     string            `json:"text"`
	Metadata KnowledgeMetadata `json:"metadata"`
}

// KnowledgeMetadata describes how an item relates to the document it came
// from. ChunkIndex is a pointer so chunk zero survives serialization.
type KnowledgeMetadata struct {
	IsMain     bool        `json:"isMain,omitempty"`
	IsChunk    bool        `json:"isChunk,omitempty"`
	IsShared   bool        `json:"isShared,omitempty"`
	OriginalID KnowledgeID `json:"originalId,omitempty"`
	ChunkIndex *int        `json:"chunkIndex,omitempty"`
}

// Validate checks the invariants required before the item can be persisted.
// A shared item must not belong to an agent, a private item must.
func (k *KnowledgeItem) Validate() error {
	if k.Content.Text == "" {
		return goerr.New("knowledge content text is required", goerr.T(ErrTagValidation))
	}
	if k.Content.Metadata.IsShared {
		if k.AgentID != "" {
			return goerr.New("shared knowledge must not have an agent ID",
				goerr.V("agent_id", k.AgentID), goerr.T(ErrTagValidation))
		}
	} else if k.AgentID == "" {
		return goerr.New("agent ID is required for private knowledge", goerr.T(ErrTagValidation))
	}
	if k.Content.Metadata.IsChunk && k.Content.Metadata.OriginalID == "" {
		return goerr.New("chunk requires the original document ID", goerr.T(ErrTagValidation))
	}
	return nil
}

// KnowledgeMatch is one ranked result of a hybrid knowledge search.
// CombinedScore is the product of the vector and keyword scores.
type KnowledgeMatch struct {
	Item          *KnowledgeItem `json:"item"`
	VectorScore   float64        `json:"vectorScore"`
	KeywordScore  float64        `json:"keywordScore"`
	CombinedScore float64        `json:"combinedScore"`
}
