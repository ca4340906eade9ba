// Package store provides vector store access for book chunk retrieval.
// Two implementations exist: a Milvus-backed store for service deployments
// and an in-memory store that scores a local corpus directly.
package store

import (
	"context"
	"errors"

	"github.com/kart-io/studyrag/internal/model"
)

// ErrVectorSearch marks retrieval faults from the vector store backend.
var ErrVectorSearch = errors.New("vector search failed")

// Query describes one retrieval call against a store.
type Query struct {
	// Dense is the query dense embedding.
	Dense []float32

	// Sparse is the query lexical term-weight map. May be nil, in which
	// case only dense similarity ranks the results.
	Sparse model.SparseVector

	// TopK is the number of results to return.
	TopK int

	// Book restricts the search to one book. Empty means all books.
	Book string

	// Intent selects the dense/sparse blend weights.
	Intent string
}

// VectorStore retrieves ranked book chunks.
type VectorStore interface {
	// SearchHybrid ranks chunks by blended dense and sparse relevance.
	SearchHybrid(ctx context.Context, q Query) ([]model.SearchResult, error)

	// SearchDense ranks chunks by dense similarity only.
	SearchDense(ctx context.Context, dense []float32, topK int, book string) ([]model.SearchResult, error)

	// GetBooks returns the sorted unique book names in the store.
	GetBooks(ctx context.Context) ([]string, error)

	// EnsureCollection prepares backing storage. Idempotent.
	EnsureCollection(ctx context.Context) error
}
