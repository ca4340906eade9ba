package biz

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kart-io/logger"

	"github.com/kart-io/studyrag/internal/assistant/store"
	"github.com/kart-io/studyrag/internal/model"
	"github.com/kart-io/studyrag/internal/pkg/fusion"
	"github.com/kart-io/studyrag/pkg/infra/pool"
	"github.com/kart-io/studyrag/pkg/llm"
)

// ErrEmbedding marks batch embedding failures. Embedding is the hard
// prerequisite of a search turn: without query vectors nothing can run.
var ErrEmbedding = errors.New("query embedding failed")

// Searcher fans a retrieval plan out into concurrent per-query searches and
// merges the results.
type Searcher struct {
	embedder llm.EmbeddingProvider
	store    store.VectorStore
	cache    *SearchCache
	engine   *fusion.Engine
}

// NewSearcher creates a searcher. cache may be nil to disable caching.
func NewSearcher(embedder llm.EmbeddingProvider, st store.VectorStore, cache *SearchCache, engine *fusion.Engine) *Searcher {
	if engine == nil {
		engine = fusion.NewEngine(nil)
	}
	if cache == nil {
		cache = NewSearchCache(nil, &SearchCacheConfig{Enabled: false})
	}
	return &Searcher{embedder: embedder, store: st, cache: cache, engine: engine}
}

// Search embeds all plan queries in one batch, runs per-query searches
// concurrently, and merges the hits: plan-order merge, dedup by text hash
// (first occurrence wins), re-sort by score descending, capped at 2*topK.
// A failed sub-query contributes nothing; only embedding failure aborts
// the whole call.
func (s *Searcher) Search(ctx context.Context, plan *model.RetrievalPlan, intent string, topK int) ([]model.SearchResult, error) {
	if plan == nil || len(plan.Queries) == 0 {
		return nil, nil
	}

	texts := make([]string, len(plan.Queries))
	for i, q := range plan.Queries {
		texts[i] = q.Query
	}

	batch, err := s.embedder.EmbedBatch(ctx, texts, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	if len(batch.Dense) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d queries", ErrEmbedding, len(batch.Dense), len(texts))
	}

	perQuery := make([][]model.SearchResult, len(plan.Queries))
	var wg sync.WaitGroup
	for i := range plan.Queries {
		wg.Add(1)
		i := i
		task := func() {
			defer wg.Done()
			perQuery[i] = s.searchOne(ctx, plan.Queries[i], batch, i, intent, topK)
		}
		if err := pool.SubmitToType(pool.SearchPool, task); err != nil {
			go task()
		}
	}
	wg.Wait()

	return mergeResults(perQuery, topK), nil
}

// searchOne serves one sub-query: cache, then hybrid store search, then
// dense-only fallback. Failures degrade to no results.
func (s *Searcher) searchOne(ctx context.Context, q model.EnhancedQuery, batch *llm.EmbedBatch, idx int, intent string, topK int) []model.SearchResult {
	if cached, ok := s.cache.Get(ctx, q.Query, intent, topK, q.Book); ok {
		return cached
	}

	var sparse model.SparseVector
	if idx < len(batch.Sparse) {
		sparse = model.SparseVector(batch.Sparse[idx])
	}

	results, err := s.store.SearchHybrid(ctx, store.Query{
		Dense:  batch.Dense[idx],
		Sparse: sparse,
		TopK:   topK,
		Book:   q.Book,
		Intent: intent,
	})
	if err != nil {
		logger.Warnw("hybrid search failed, falling back to dense",
			"error", err.Error(), "book", q.Book)
		results, err = s.store.SearchDense(ctx, batch.Dense[idx], topK, q.Book)
		if err != nil {
			logger.Warnw("dense fallback failed, dropping sub-query",
				"error", err.Error(), "book", q.Book)
			return nil
		}
	}

	s.cache.Set(ctx, q.Query, intent, topK, q.Book, results)
	return results
}

// mergeResults merges per-query hits in plan order, deduplicates by text
// hash keeping the first occurrence, re-sorts by score descending, and
// caps the merged set at twice topK.
func mergeResults(perQuery [][]model.SearchResult, topK int) []model.SearchResult {
	seen := map[[sha256.Size]byte]bool{}
	var merged []model.SearchResult
	for _, results := range perQuery {
		for _, r := range results {
			key := sha256.Sum256([]byte(r.Text))
			if seen[key] {
				continue
			}
			seen[key] = true
			merged = append(merged, r)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	if limit := 2 * topK; len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}
