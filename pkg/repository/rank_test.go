package repository

import (
	"testing"

	"github.com/engramdb/engram/pkg/model"
	"github.com/m-mizutani/gt"
)

func knowledgeItem(text string, isChunk, isMain bool) *model.KnowledgeItem {
	return &model.KnowledgeItem{
		ID:      model.NewKnowledgeID(),
		AgentID: "agent",
		Content: model.KnowledgeContent{
			Text: text,
			Metadata: model.KnowledgeMetadata{
				IsChunk: isChunk,
				IsMain:  isMain,
			},
		},
	}
}

func TestRankKnowledge(t *testing.T) {
	cands := []knowledgeCandidate{
		{item: knowledgeItem("connection pool sizing", false, false), vectorScore: 0.6},
		{item: knowledgeItem("unrelated vector math", false, false), vectorScore: 0.9},
		{item: knowledgeItem("pool tuning appendix", true, false), vectorScore: 0.35},
		{item: knowledgeItem("pool glossary", false, false), vectorScore: 0.2},
		{item: knowledgeItem("misc notes", false, false), vectorScore: 0.4},
		{item: knowledgeItem("overview", true, true), vectorScore: 0.45},
	}

	matches := rankKnowledge(cands, rankParams{
		searchText:     "pool",
		matchThreshold: 0.5,
		limit:          10,
	})

	gt.A(t, matches).Length(4)

	// Keyword hit above threshold: 0.6 * 3.0
	gt.Equal(t, matches[0].Item.Content.Text, "connection pool sizing")
	gt.Equal(t, matches[0].KeywordScore, 3.0)
	vec := 0.6 // variable defeats constant folding: 0.6*3.0 folds to exactly 1.8, runtime float64 math does not
	gt.Equal(t, matches[0].CombinedScore, vec*3.0)

	// Keyword hit on a chunk rescued below threshold: 0.35 * 3.0 * 1.5
	gt.Equal(t, matches[1].Item.Content.Text, "pool tuning appendix")
	gt.Equal(t, matches[1].KeywordScore, 3.0*1.5)

	// Pure vector match above threshold
	gt.Equal(t, matches[2].Item.Content.Text, "unrelated vector math")
	gt.Equal(t, matches[2].KeywordScore, 1.0)
	gt.Equal(t, matches[2].CombinedScore, 0.9)

	// Flag boosts alone count as a keyword signal for the rescue
	gt.Equal(t, matches[3].Item.Content.Text, "overview")
	chunk := 1.5 // as above: runtime 1.5*1.2 is one ulp below the folded constant
	gt.Equal(t, matches[3].KeywordScore, chunk*1.2)
}

func TestRankKnowledgeExcludesBelowFloor(t *testing.T) {
	// A keyword hit cannot rescue a candidate under the vector floor.
	cands := []knowledgeCandidate{
		{item: knowledgeItem("pool glossary", false, false), vectorScore: 0.2},
	}
	matches := rankKnowledge(cands, rankParams{searchText: "pool", matchThreshold: 0.5, limit: 10})
	gt.A(t, matches).Length(0)

	// At the floor it survives.
	cands[0].vectorScore = 0.3
	matches = rankKnowledge(cands, rankParams{searchText: "pool", matchThreshold: 0.5, limit: 10})
	gt.A(t, matches).Length(1)
}

func TestRankKnowledgeThresholdInclusive(t *testing.T) {
	cands := []knowledgeCandidate{
		{item: knowledgeItem("plain entry", false, false), vectorScore: 0.5},
	}
	matches := rankKnowledge(cands, rankParams{searchText: "quorum", matchThreshold: 0.5, limit: 10})
	gt.A(t, matches).Length(1)
	gt.Equal(t, matches[0].CombinedScore, 0.5)
}

func TestRankKnowledgeCaseInsensitive(t *testing.T) {
	cands := []knowledgeCandidate{
		{item: knowledgeItem("Connection Pool Sizing", false, false), vectorScore: 0.6},
	}
	matches := rankKnowledge(cands, rankParams{searchText: "POOL", matchThreshold: 0.5, limit: 10})
	gt.A(t, matches).Length(1)
	gt.Equal(t, matches[0].KeywordScore, 3.0)
}

func TestRankKnowledgeEmptySearchText(t *testing.T) {
	// Every text contains the empty string, so the keyword boost applies
	// across the board and the rescue floor becomes the effective cutoff.
	// Ordering still follows the vector score.
	cands := []knowledgeCandidate{
		{item: knowledgeItem("plain entry", false, false), vectorScore: 0.5},
		{item: knowledgeItem("stronger entry", false, false), vectorScore: 0.6},
		{item: knowledgeItem("faint entry", false, false), vectorScore: 0.2},
	}
	matches := rankKnowledge(cands, rankParams{searchText: "", matchThreshold: 0.8, limit: 10})

	gt.A(t, matches).Length(2)
	gt.Equal(t, matches[0].Item.Content.Text, "stronger entry")
	gt.Equal(t, matches[0].KeywordScore, 3.0)
	gt.Equal(t, matches[1].Item.Content.Text, "plain entry")
	gt.Equal(t, matches[1].CombinedScore, 0.5*3.0)
}

func TestRankKnowledgeWhitespaceSearchText(t *testing.T) {
	// Whitespace is matched literally, not trimmed away.
	cands := []knowledgeCandidate{
		{item: knowledgeItem("double  spaced", false, false), vectorScore: 0.6},
		{item: knowledgeItem("single spaced", false, false), vectorScore: 0.6},
	}
	matches := rankKnowledge(cands, rankParams{searchText: "  ", matchThreshold: 0.5, limit: 10})

	gt.A(t, matches).Length(2)
	gt.Equal(t, matches[0].Item.Content.Text, "double  spaced")
	gt.Equal(t, matches[0].KeywordScore, 3.0)
	gt.Equal(t, matches[1].KeywordScore, 1.0)
}

func TestRankKnowledgeLimit(t *testing.T) {
	cands := []knowledgeCandidate{
		{item: knowledgeItem("a", false, false), vectorScore: 0.9},
		{item: knowledgeItem("b", false, false), vectorScore: 0.8},
		{item: knowledgeItem("c", false, false), vectorScore: 0.7},
	}
	matches := rankKnowledge(cands, rankParams{matchThreshold: 0.5, limit: 2})
	gt.A(t, matches).Length(2)
	gt.Equal(t, matches[0].Item.Content.Text, "a")
	gt.Equal(t, matches[1].Item.Content.Text, "b")
}

func TestKnowledgeCacheKey(t *testing.T) {
	key := knowledgeCacheKey("11111111-2222-3333-4444-555555555555", "how to tune hnsw")
	gt.Equal(t, key, "knowledge_11111111-2222-3333-4444-555555555555_how to tune hnsw")
}

func TestDecodeKnowledgeMatches(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		matches, err := decodeKnowledgeMatches(`[{"item":{"id":"x","content":{"text":"hello","metadata":{}},"createdAt":"2025-01-01T00:00:00Z"},"vectorScore":0.8,"keywordScore":3,"combinedScore":2.4}]`)
		gt.NoError(t, err)
		gt.A(t, matches).Length(1)
		gt.Equal(t, matches[0].Item.Content.Text, "hello")
		gt.Equal(t, matches[0].CombinedScore, 2.4)
	})

	t.Run("null payload", func(t *testing.T) {
		matches, err := decodeKnowledgeMatches("null")
		gt.NoError(t, err)
		gt.A(t, matches).Length(0)
	})

	t.Run("corrupt payload", func(t *testing.T) {
		_, err := decodeKnowledgeMatches("{not json")
		gt.Error(t, err)
	})
}
