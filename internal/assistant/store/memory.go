package store

import (
	"context"
	"sort"
	"sync"

	"github.com/kart-io/studyrag/internal/model"
	"github.com/kart-io/studyrag/internal/pkg/fusion"
)

// MemoryStore holds a chunk corpus in memory and scores it with the fusion
// engine. It backs single-machine runs and tests.
type MemoryStore struct {
	engine *fusion.Engine

	mu     sync.RWMutex
	corpus []model.Chunk
}

var _ VectorStore = (*MemoryStore)(nil)

// NewMemoryStore creates an in-memory store. engine nil uses the defaults.
func NewMemoryStore(engine *fusion.Engine, corpus []model.Chunk) *MemoryStore {
	if engine == nil {
		engine = fusion.NewEngine(nil)
	}
	s := &MemoryStore{engine: engine}
	s.corpus = append(s.corpus, corpus...)
	return s
}

// Add appends chunks to the corpus.
func (s *MemoryStore) Add(chunks ...model.Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corpus = append(s.corpus, chunks...)
}

// Len returns the corpus size.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.corpus)
}

// SearchHybrid runs the two-stage fused search over the corpus.
func (s *MemoryStore) SearchHybrid(_ context.Context, q Query) ([]model.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.Search(q.Dense, q.Sparse, s.corpus, fusion.Options{
		TopK:       q.TopK,
		BookFilter: q.Book,
		Intent:     q.Intent,
	}), nil
}

// SearchDense searches with an empty sparse vector, leaving dense
// similarity as the only ranking signal.
func (s *MemoryStore) SearchDense(ctx context.Context, dense []float32, topK int, book string) ([]model.SearchResult, error) {
	return s.SearchHybrid(ctx, Query{Dense: dense, TopK: topK, Book: book})
}

// GetBooks returns the sorted unique book names in the corpus.
func (s *MemoryStore) GetBooks(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := map[string]bool{}
	var books []string
	for _, c := range s.corpus {
		if !seen[c.Book] {
			seen[c.Book] = true
			books = append(books, c.Book)
		}
	}
	sort.Strings(books)
	return books, nil
}

// EnsureCollection is a no-op for the in-memory store.
func (s *MemoryStore) EnsureCollection(context.Context) error {
	return nil
}
