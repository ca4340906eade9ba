package biz

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/studyrag/internal/assistant/store"
	"github.com/kart-io/studyrag/internal/model"
	"github.com/kart-io/studyrag/pkg/llm"
)

type mockEmbedder struct {
	err   error
	calls int
}

func (m *mockEmbedder) Name() string { return "mock-embed" }

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string, returnSparse bool) (*llm.EmbedBatch, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	batch := &llm.EmbedBatch{Dense: make([][]float32, len(texts))}
	for i := range texts {
		batch.Dense[i] = []float32{float32(i + 1)}
	}
	if returnSparse {
		batch.Sparse = make([]llm.SparseVector, len(texts))
		for i := range texts {
			batch.Sparse[i] = llm.SparseVector{int64(i): 1}
		}
	}
	return batch, nil
}

type mockVectorStore struct {
	mu      sync.Mutex
	queries []store.Query

	results   map[string][]model.SearchResult
	hybridErr error
	denseErr  error
	dense     []model.SearchResult
}

func (m *mockVectorStore) SearchHybrid(_ context.Context, q store.Query) ([]model.SearchResult, error) {
	m.mu.Lock()
	m.queries = append(m.queries, q)
	m.mu.Unlock()
	if m.hybridErr != nil {
		return nil, m.hybridErr
	}
	return m.results[q.Book], nil
}

func (m *mockVectorStore) SearchDense(context.Context, []float32, int, string) ([]model.SearchResult, error) {
	if m.denseErr != nil {
		return nil, m.denseErr
	}
	return m.dense, nil
}

func (m *mockVectorStore) GetBooks(context.Context) ([]string, error) { return nil, nil }
func (m *mockVectorStore) EnsureCollection(context.Context) error    { return nil }

func plan(queries ...model.EnhancedQuery) *model.RetrievalPlan {
	return &model.RetrievalPlan{Queries: queries}
}

func TestSearchMergesAndDeduplicates(t *testing.T) {
	st := &mockVectorStore{results: map[string][]model.SearchResult{
		"A": {
			{Text: "shared chunk", Book: "A", Score: 0.9},
			{Text: "a only", Book: "A", Score: 0.4},
		},
		"B": {
			{Text: "shared chunk", Book: "B", Score: 0.7},
			{Text: "b only", Book: "B", Score: 0.95},
		},
	}}
	s := NewSearcher(&mockEmbedder{}, st, nil, nil)

	results, err := s.Search(context.Background(),
		plan(model.EnhancedQuery{Query: "q1", Book: "A"}, model.EnhancedQuery{Query: "q2", Book: "B"}),
		model.IntentQuestionAnswering, 6)
	require.NoError(t, err)

	require.Len(t, results, 3)
	// First occurrence of the shared text wins, so the Book A copy with
	// score 0.9 survives and the merged set sorts descending.
	assert.Equal(t, "b only", results[0].Text)
	assert.Equal(t, "shared chunk", results[1].Text)
	assert.Equal(t, "A", results[1].Book)
	assert.Equal(t, "a only", results[2].Text)
}

func TestSearchSingleBatchEmbedding(t *testing.T) {
	emb := &mockEmbedder{}
	st := &mockVectorStore{}
	s := NewSearcher(emb, st, nil, nil)

	_, err := s.Search(context.Background(),
		plan(model.EnhancedQuery{Query: "q1"}, model.EnhancedQuery{Query: "q2"}, model.EnhancedQuery{Query: "q3"}),
		model.IntentCoding, 6)
	require.NoError(t, err)

	assert.Equal(t, 1, emb.calls, "all plan queries embed in one batch call")
	assert.Len(t, st.queries, 3)
}

func TestSearchEmbeddingFailureAborts(t *testing.T) {
	s := NewSearcher(&mockEmbedder{err: errors.New("service down")}, &mockVectorStore{}, nil, nil)

	_, err := s.Search(context.Background(), plan(model.EnhancedQuery{Query: "q"}), model.IntentCoding, 6)
	assert.ErrorIs(t, err, ErrEmbedding)
}

func TestSearchHybridFailureFallsBackToDense(t *testing.T) {
	st := &mockVectorStore{
		hybridErr: errors.New("sparse index broken"),
		dense:     []model.SearchResult{{Text: "dense hit", Score: 0.5}},
	}
	s := NewSearcher(&mockEmbedder{}, st, nil, nil)

	results, err := s.Search(context.Background(), plan(model.EnhancedQuery{Query: "q"}), model.IntentCoding, 6)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "dense hit", results[0].Text)
}

func TestSearchSubQueryFailureTolerated(t *testing.T) {
	st := &mockVectorStore{
		hybridErr: errors.New("down"),
		denseErr:  errors.New("also down"),
	}
	s := NewSearcher(&mockEmbedder{}, st, nil, nil)

	results, err := s.Search(context.Background(),
		plan(model.EnhancedQuery{Query: "q1"}, model.EnhancedQuery{Query: "q2"}),
		model.IntentCoding, 6)
	require.NoError(t, err, "sub-query failures never fail the search")
	assert.Empty(t, results)
}

func TestSearchCapsAtTwiceTopK(t *testing.T) {
	many := make([]model.SearchResult, 30)
	for i := range many {
		many[i] = model.SearchResult{Text: string(rune('a' + i)), Score: float32(30-i) / 30}
	}
	st := &mockVectorStore{results: map[string][]model.SearchResult{"": many}}
	s := NewSearcher(&mockEmbedder{}, st, nil, nil)

	results, err := s.Search(context.Background(), plan(model.EnhancedQuery{Query: "q"}), model.IntentCoding, 6)
	require.NoError(t, err)
	assert.Len(t, results, 12, "merged set caps at 2*top_k")
}

func TestSearchEmptyPlan(t *testing.T) {
	s := NewSearcher(&mockEmbedder{}, &mockVectorStore{}, nil, nil)

	results, err := s.Search(context.Background(), nil, model.IntentCoding, 6)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestMergeResultsStableOnEqualScores(t *testing.T) {
	perQuery := [][]model.SearchResult{
		{{Text: "first", Score: 0.5}},
		{{Text: "second", Score: 0.5}},
	}

	merged := mergeResults(perQuery, 6)
	require.Len(t, merged, 2)
	assert.Equal(t, "first", merged[0].Text)
	assert.Equal(t, "second", merged[1].Text)
}

func TestMergeResultsIdempotent(t *testing.T) {
	perQuery := [][]model.SearchResult{
		{{Text: "alpha", Score: 0.9}, {Text: "beta", Score: 0.2}},
		{{Text: "beta", Score: 0.7}, {Text: "gamma", Score: 0.5}},
	}

	merged := mergeResults(perQuery, 6)
	again := mergeResults([][]model.SearchResult{merged}, 6)
	assert.Equal(t, merged, again, "merging a merged set changes nothing")
}
