package retrieval

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/csnavigator/callcopilot/pkg/models"
)

// DefaultCategories is the staged-search category list when the caller has
// no preference.
var DefaultCategories = []string{"marketing", "guideline", "principle", "terms"}

// DefaultCategoryWeights bias fusion toward sellable product documents
// while keeping policy material in the mix.
var DefaultCategoryWeights = map[string]float64{
	"marketing": 1.45,
	"guideline": 1.15,
	"principle": 1.05,
	"terms":     1.0,
}

// DefaultAlwaysInclude guarantees a minimum number of results per category
// regardless of fused ranking, as long as the category exists.
var DefaultAlwaysInclude = map[string]int{"terms": 2}

// StagedRequest parameterizes a staged category search.
type StagedRequest struct {
	Query         string
	Categories    []string
	Weights       map[string]float64
	AlwaysInclude map[string]int
	TopK          int
}

// StagedSearch runs a fused search per category (intersected with the
// categories sampled at startup), fuses across categories with per-category
// weights, then enforces minimum-inclusion counts. Per-category searches run
// concurrently. An empty category intersection degrades to one unfiltered
// fused search.
func (s *Store) StagedSearch(ctx context.Context, req StagedRequest) ([]models.RetrievedItem, error) {
	categories := req.Categories
	if len(categories) == 0 {
		categories = DefaultCategories
	}
	categories = s.KnownCategories(categories)
	categoryWeights := req.Weights
	if categoryWeights == nil {
		categoryWeights = DefaultCategoryWeights
	}
	topK := req.TopK
	if topK <= 0 {
		topK = s.topK
	}

	if len(categories) == 0 {
		slog.Debug("No requested categories exist in collection, degrading to unfiltered search")
		return s.Search(ctx, req.Query, topK, nil)
	}

	perCategory := make([][]models.RetrievedItem, len(categories))
	weights := make([]float64, len(categories))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for i, category := range categories {
		g.Go(func() error {
			items, err := s.Search(gctx, req.Query, s.perCatK, []string{category})
			if err != nil {
				return err
			}
			w := 1.0
			if cw, ok := categoryWeights[category]; ok {
				w = cw
			}
			mu.Lock()
			perCategory[i] = items
			weights[i] = w
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fusedResults := Fuse(perCategory, weights, topK)
	return enforceInclusion(fusedResults, perCategory, categories, req.AlwaysInclude, topK), nil
}

// enforceInclusion guarantees the minimum per-category counts by swapping
// tail results for the best missing entries of a required category.
func enforceInclusion(
	results []models.RetrievedItem,
	perCategory [][]models.RetrievedItem,
	categories []string,
	alwaysInclude map[string]int,
	topK int,
) []models.RetrievedItem {
	if len(alwaysInclude) == 0 {
		return results
	}

	counts := make(map[string]int)
	present := make(map[string]bool)
	for _, it := range results {
		counts[it.Metadata.Category]++
		present[dedupKey(it)] = true
	}

	for i, category := range categories {
		required := alwaysInclude[category]
		if required == 0 {
			continue
		}
		for _, candidate := range perCategory[i] {
			if counts[category] >= required {
				break
			}
			key := dedupKey(candidate)
			if present[key] {
				continue
			}
			if len(results) >= topK && len(results) > 0 {
				// Drop the weakest result that is not itself protected.
				dropped := false
				for j := len(results) - 1; j >= 0; j-- {
					cat := results[j].Metadata.Category
					if counts[cat] > alwaysInclude[cat] {
						delete(present, dedupKey(results[j]))
						counts[cat]--
						results = append(results[:j], results[j+1:]...)
						dropped = true
						break
					}
				}
				if !dropped {
					break
				}
			}
			results = append(results, candidate)
			present[key] = true
			counts[category]++
		}
	}
	return results
}
