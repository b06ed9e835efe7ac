package retrieval

import (
	"fmt"
	"sort"

	"github.com/csnavigator/callcopilot/pkg/models"
)

// rrfC is the reciprocal-rank fusion constant.
const rrfC = 60

// dedupContentPrefix is how many runes of content participate in the
// deduplication key.
const dedupContentPrefix = 120

// dedupKey identifies logically identical documents across retriever lists.
func dedupKey(item models.RetrievedItem) string {
	content := []rune(item.Content)
	if len(content) > dedupContentPrefix {
		content = content[:dedupContentPrefix]
	}
	return fmt.Sprintf("%s|%s|%s", item.Metadata.Source, item.Metadata.Title, string(content))
}

// Fuse combines K ranked lists with per-list weights using reciprocal-rank
// fusion: score(d) = Σᵢ wᵢ / (c + rankᵢ(d)) with 1-based ranks. Duplicate
// documents are merged by dedupKey, keeping the representative with the best
// single-list rank. The output is sorted by fused score descending with a
// deterministic key tie-break, truncated to topK (topK <= 0 means no limit).
func Fuse(lists [][]models.RetrievedItem, weights []float64, topK int) []models.RetrievedItem {
	type fused struct {
		item     models.RetrievedItem
		score    float64
		bestRank int
		key      string
	}

	byKey := make(map[string]*fused)
	for i, list := range lists {
		w := 1.0
		if i < len(weights) {
			w = weights[i]
		}
		for rank, item := range list {
			key := dedupKey(item)
			contribution := w / float64(rrfC+rank+1)
			f, ok := byKey[key]
			if !ok {
				f = &fused{item: item, bestRank: rank, key: key}
				byKey[key] = f
			} else if rank < f.bestRank {
				f.item = item
				f.bestRank = rank
			}
			f.score += contribution
		}
	}

	out := make([]*fused, 0, len(byKey))
	for _, f := range byKey {
		out = append(out, f)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].score != out[b].score {
			return out[a].score > out[b].score
		}
		return out[a].key < out[b].key
	})

	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	items := make([]models.RetrievedItem, len(out))
	for i, f := range out {
		items[i] = f.item
		items[i].Score = f.score
	}
	return items
}
