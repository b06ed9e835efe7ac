// Package retrieval implements hybrid document search over a PostgreSQL
// table carrying both a pgvector embedding column and a tsvector column.
// Dense, sparse, and fused searches are exposed, plus a category-staged
// composite used by the marketing pipeline.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"
	"golang.org/x/sync/errgroup"

	"github.com/csnavigator/callcopilot/pkg/config"
	"github.com/csnavigator/callcopilot/pkg/models"
)

// categorySampleLimit bounds the startup scan that discovers which
// categories actually exist in the collection.
const categorySampleLimit = 250

// Embedder produces dense vectors for queries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// DB is the subset of pgxpool.Pool the store needs. Tests substitute fakes.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store searches the documents table. Safe for concurrent use.
type Store struct {
	db       DB
	embedder Embedder
	table    string
	topK     int
	perCatK  int

	mu         sync.RWMutex
	categories map[string]bool // sampled at startup
}

// NewStore builds a store over the given connection and embedder.
func NewStore(db DB, embedder Embedder, cfg *config.RetrievalConfig) *Store {
	return &Store{
		db:         db,
		embedder:   embedder,
		table:      cfg.Table,
		topK:       cfg.TopK,
		perCatK:    cfg.PerCategoryK,
		categories: make(map[string]bool),
	}
}

// SampleCategories scans a bounded prefix of the collection and records the
// distinct categories present. Called once at startup; staged searches
// intersect their requested categories with this set.
func (s *Store) SampleCategories(ctx context.Context) error {
	q := fmt.Sprintf(`
		SELECT DISTINCT category
		FROM   (SELECT category FROM %s LIMIT %d) sample
		WHERE  category <> ''`, s.table, categorySampleLimit)

	rows, err := s.db.Query(ctx, q)
	if err != nil {
		return fmt.Errorf("retrieval: sample categories: %w", err)
	}
	cats, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return fmt.Errorf("retrieval: scan categories: %w", err)
	}

	s.mu.Lock()
	s.categories = make(map[string]bool, len(cats))
	for _, c := range cats {
		s.categories[c] = true
	}
	s.mu.Unlock()

	slog.Info("Sampled retrieval categories", "categories", cats)
	return nil
}

// KnownCategories reports which of the requested categories exist in the
// collection, preserving request order. An empty sample set (startup scan
// skipped or failed) passes everything through.
func (s *Store) KnownCategories(requested []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.categories) == 0 {
		return requested
	}
	known := make([]string, 0, len(requested))
	for _, c := range requested {
		if s.categories[c] {
			known = append(known, c)
		}
	}
	return known
}

// Semantic runs a dense cosine search, optionally filtered by categories.
// Results are ordered most similar first; Score is cosine similarity.
func (s *Store) Semantic(ctx context.Context, query string, k int, categories []string) ([]models.RetrievedItem, error) {
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	args := []any{pgvector.NewVector(vec)}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where := ""
	if len(categories) > 0 {
		where = "WHERE category = ANY(" + next(categories) + ")"
	}
	args = append(args, k)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT id, content, category, source, title, url, price,
		       1 - (embedding <=> $1) AS score
		FROM   %s
		%s
		ORDER  BY embedding <=> $1
		LIMIT  %s`, s.table, where, limitArg)

	return s.collect(ctx, q, args)
}

// Keyword runs a sparse full-text search ranked by ts_rank.
func (s *Store) Keyword(ctx context.Context, query string, k int, categories []string) ([]models.RetrievedItem, error) {
	args := []any{query}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"tsv @@ plainto_tsquery('simple', $1)"}
	if len(categories) > 0 {
		conditions = append(conditions, "category = ANY("+next(categories)+")")
	}
	args = append(args, k)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT id, content, category, source, title, url, price,
		       ts_rank(tsv, plainto_tsquery('simple', $1)) AS score
		FROM   %s
		WHERE  %s
		ORDER  BY score DESC
		LIMIT  %s`, s.table, strings.Join(conditions, "\n  AND "), limitArg)

	return s.collect(ctx, q, args)
}

// Hybrid fuses one dense and one sparse list with equal weights.
func (s *Store) Hybrid(ctx context.Context, query string, k int, categories []string) ([]models.RetrievedItem, error) {
	var dense, sparse []models.RetrievedItem
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dense, err = s.Semantic(gctx, query, k, categories)
		return err
	})
	g.Go(func() error {
		var err error
		sparse, err = s.Keyword(gctx, query, k, categories)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return Fuse([][]models.RetrievedItem{dense, sparse}, []float64{1.0, 1.0}, k), nil
}

// fusedListWeights are the per-list weights for the three-way fusion:
// semantic, keyword, hybrid. The hybrid list gets a mild boost because it
// already agrees with both signals.
var fusedListWeights = []float64{1.0, 1.0, 1.2}

// Search runs the three retrievers concurrently and fuses their rankings.
// An empty category set degrades to an unfiltered fused search.
func (s *Store) Search(ctx context.Context, query string, k int, categories []string) ([]models.RetrievedItem, error) {
	var dense, sparse, hybrid []models.RetrievedItem
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dense, err = s.Semantic(gctx, query, k, categories)
		return err
	})
	g.Go(func() error {
		var err error
		sparse, err = s.Keyword(gctx, query, k, categories)
		return err
	})
	g.Go(func() error {
		var err error
		hybrid, err = s.Hybrid(gctx, query, k, categories)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return Fuse([][]models.RetrievedItem{dense, sparse, hybrid}, fusedListWeights, k), nil
}

func (s *Store) collect(ctx context.Context, q string, args []any) ([]models.RetrievedItem, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("retrieval: query: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.RetrievedItem, error) {
		var it models.RetrievedItem
		err := row.Scan(
			&it.DocID,
			&it.Content,
			&it.Metadata.Category,
			&it.Metadata.Source,
			&it.Metadata.Title,
			&it.Metadata.URL,
			&it.Metadata.Price,
			&it.Score,
		)
		return it, err
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: scan rows: %w", err)
	}
	if items == nil {
		items = []models.RetrievedItem{}
	}
	return items, nil
}
