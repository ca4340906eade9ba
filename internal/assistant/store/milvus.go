package store

import (
	"context"
	"fmt"

	"github.com/kart-io/studyrag/internal/model"
	"github.com/kart-io/studyrag/internal/pkg/fusion"
	"github.com/kart-io/studyrag/pkg/component/milvus"
	"github.com/kart-io/studyrag/pkg/llm"
)

// MilvusStore retrieves book chunks from a Milvus collection.
type MilvusStore struct {
	client *milvus.Client
	engine *fusion.Engine
}

var _ VectorStore = (*MilvusStore)(nil)

// NewMilvusStore creates a Milvus-backed store. engine supplies the
// per-intent blend weights; nil uses the defaults.
func NewMilvusStore(client *milvus.Client, engine *fusion.Engine) *MilvusStore {
	if engine == nil {
		engine = fusion.NewEngine(nil)
	}
	return &MilvusStore{client: client, engine: engine}
}

// SearchHybrid runs a weighted dense+sparse search.
func (s *MilvusStore) SearchHybrid(ctx context.Context, q Query) ([]model.SearchResult, error) {
	w := s.engine.WeightsFor(q.Intent)
	hits, err := s.client.SearchHybrid(ctx, milvus.HybridQuery{
		Dense:        q.Dense,
		Sparse:       llm.SparseVector(q.Sparse),
		TopK:         q.TopK,
		Book:         q.Book,
		DenseWeight:  float64(w.Dense),
		SparseWeight: float64(w.Sparse),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVectorSearch, err)
	}
	return toResults(hits), nil
}

// SearchDense runs a dense-only search.
func (s *MilvusStore) SearchDense(ctx context.Context, dense []float32, topK int, book string) ([]model.SearchResult, error) {
	hits, err := s.client.SearchDense(ctx, dense, topK, book)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVectorSearch, err)
	}
	return toResults(hits), nil
}

// GetBooks lists the catalog.
func (s *MilvusStore) GetBooks(ctx context.Context) ([]string, error) {
	books, err := s.client.GetBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVectorSearch, err)
	}
	return books, nil
}

// EnsureCollection creates and loads the chunk collection.
func (s *MilvusStore) EnsureCollection(ctx context.Context) error {
	return s.client.EnsureCollection(ctx)
}

func toResults(hits []milvus.Hit) []model.SearchResult {
	results := make([]model.SearchResult, len(hits))
	for i, h := range hits {
		results[i] = model.SearchResult{
			Text:    h.Text,
			Book:    h.Book,
			Chapter: h.Chapter,
			Topic:   h.Topic,
			Score:   h.Score,
		}
	}
	return results
}
