package repository

import (
	"sort"
	"strings"

	"github.com/engramdb/engram/pkg/model"
)

// Weights of the hybrid knowledge ranking. The keyword side multiplies
// the vector score, so the final order reflects both signals.
const (
	keywordMatchBoost  = 3.0
	chunkBoost         = 1.5
	mainBoost          = 1.2
	keywordRescueFloor = 0.3
)

type knowledgeCandidate struct {
	item        *model.KnowledgeItem
	vectorScore float64
}

type rankParams struct {
	searchText     string
	matchThreshold float64
	limit          int
}

// rankKnowledge fuses vector and keyword relevance over the candidate
// set. A candidate stays when its vector score clears the threshold, or
// when its keyword score exceeds 1.0 and the vector score still clears
// the rescue floor. Results come back ordered by combined score, capped
// at limit. An empty search text is contained in every text and boosts
// every candidate alike.
func rankKnowledge(cands []knowledgeCandidate, p rankParams) []*model.KnowledgeMatch {
	needle := strings.ToLower(p.searchText)

	matches := make([]*model.KnowledgeMatch, 0, len(cands))
	for _, c := range cands {
		keyword := 1.0
		if strings.Contains(strings.ToLower(c.item.Content.Text), needle) {
			keyword = keywordMatchBoost
		}
		if c.item.Content.Metadata.IsChunk {
			keyword *= chunkBoost
		}
		if c.item.Content.Metadata.IsMain {
			keyword *= mainBoost
		}

		rescued := keyword > 1.0 && c.vectorScore >= keywordRescueFloor
		if c.vectorScore < p.matchThreshold && !rescued {
			continue
		}

		matches = append(matches, &model.KnowledgeMatch{
			Item:          c.item,
			VectorScore:   c.vectorScore,
			KeywordScore:  keyword,
			CombinedScore: c.vectorScore * keyword,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].CombinedScore > matches[j].CombinedScore
	})

	if p.limit > 0 && len(matches) > p.limit {
		matches = matches[:p.limit]
	}
	return matches
}
