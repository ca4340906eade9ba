// Package milvus wraps the Milvus SDK client for the book chunk collection:
// idempotent collection setup with dense and sparse vector fields, hybrid
// and dense-only search, and book catalog queries.
package milvus

import (
	"context"
	"fmt"
	"sort"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/kart-io/studyrag/pkg/llm"
	milvusopts "github.com/kart-io/studyrag/pkg/options/milvus"
)

// Field names of the book chunk collection.
const (
	fieldID      = "id"
	fieldDense   = "dense"
	fieldSparse  = "sparse"
	fieldBook    = "book"
	fieldChapter = "chapter"
	fieldTopic   = "topic"
	fieldText    = "text"
)

// catalogScanLimit bounds the book catalog query.
const catalogScanLimit = 16384

// Client wraps the Milvus SDK client.
type Client struct {
	client *milvusclient.Client
	opts   *milvusopts.Options
}

// New creates a new Milvus client.
func New(opts *milvusopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("milvus options is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		DBName:   opts.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &Client{
		client: c,
		opts:   opts,
	}, nil
}

// Close closes the Milvus client connection.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

// RawClient returns the underlying Milvus client.
func (c *Client) RawClient() *milvusclient.Client {
	return c.client
}

// EnsureCollection creates the book chunk collection, its indexes, and
// loads it. Creating an existing collection is a no-op, so this is safe to
// run at every startup.
func (c *Client) EnsureCollection(ctx context.Context) error {
	name := c.opts.Collection

	exists, err := c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}

	if !exists {
		schema := entity.NewSchema().
			WithName(name).
			WithDescription("book chunks with dense and lexical sparse embeddings").
			WithAutoID(true).
			WithField(entity.NewField().
				WithName(fieldID).
				WithDataType(entity.FieldTypeInt64).
				WithIsPrimaryKey(true).
				WithIsAutoID(true)).
			WithField(entity.NewField().
				WithName(fieldDense).
				WithDataType(entity.FieldTypeFloatVector).
				WithDim(int64(c.opts.Dimension))).
			WithField(entity.NewField().
				WithName(fieldSparse).
				WithDataType(entity.FieldTypeSparseVector)).
			WithField(entity.NewField().
				WithName(fieldBook).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(255)).
			WithField(entity.NewField().
				WithName(fieldChapter).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(255)).
			WithField(entity.NewField().
				WithName(fieldTopic).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(255)).
			WithField(entity.NewField().
				WithName(fieldText).
				WithDataType(entity.FieldTypeVarChar).
				WithMaxLength(65535))

		if err := c.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, schema)); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		denseTask, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(
			name, fieldDense, index.NewIvfFlatIndex(entity.IP, 128)))
		if err != nil {
			return fmt.Errorf("failed to create dense index: %w", err)
		}
		if err := denseTask.Await(ctx); err != nil {
			return fmt.Errorf("failed to wait for dense index: %w", err)
		}

		sparseTask, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(
			name, fieldSparse, index.NewSparseInvertedIndex(entity.IP, 0)))
		if err != nil {
			return fmt.Errorf("failed to create sparse index: %w", err)
		}
		if err := sparseTask.Await(ctx); err != nil {
			return fmt.Errorf("failed to wait for sparse index: %w", err)
		}
	}

	loadTask, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}

	return nil
}

// Hit is a single search hit from the book chunk collection.
type Hit struct {
	Book    string
	Chapter string
	Topic   string
	Text    string
	Score   float32
}

// HybridQuery describes one hybrid search call.
type HybridQuery struct {
	Dense  []float32
	Sparse llm.SparseVector

	// TopK is the number of hits to return.
	TopK int

	// Book restricts hits to one book by exact name. Empty means all books.
	Book string

	// DenseWeight and SparseWeight blend the two rankings.
	DenseWeight  float64
	SparseWeight float64
}

// SearchHybrid runs dense and sparse ANN requests and fuses the rankings
// with a weighted reranker.
func (c *Client) SearchHybrid(ctx context.Context, q HybridQuery) ([]Hit, error) {
	sparseVec, err := sparseEmbedding(q.Sparse)
	if err != nil {
		return nil, fmt.Errorf("failed to build sparse vector: %w", err)
	}

	denseReq := milvusclient.NewAnnRequest(fieldDense, q.TopK, entity.FloatVector(q.Dense)).
		WithSearchParam("nprobe", "16")
	sparseReq := milvusclient.NewAnnRequest(fieldSparse, q.TopK, sparseVec)
	if expr := bookExpr(q.Book); expr != "" {
		denseReq = denseReq.WithFilter(expr)
		sparseReq = sparseReq.WithFilter(expr)
	}

	results, err := c.client.HybridSearch(ctx, milvusclient.NewHybridSearchOption(
		c.opts.Collection,
		q.TopK,
		denseReq,
		sparseReq,
	).WithReranker(milvusclient.NewWeightedReranker([]float64{q.DenseWeight, q.SparseWeight})).
		WithOutputFields(fieldBook, fieldChapter, fieldTopic, fieldText))
	if err != nil {
		return nil, fmt.Errorf("failed to hybrid search: %w", err)
	}

	return parseHits(results), nil
}

// SearchDense runs a dense-only similarity search. It is the degraded path
// when a hybrid search fails or no sparse vector is available.
func (c *Client) SearchDense(ctx context.Context, dense []float32, topK int, book string) ([]Hit, error) {
	opt := milvusclient.NewSearchOption(c.opts.Collection, topK, []entity.Vector{entity.FloatVector(dense)}).
		WithANNSField(fieldDense).
		WithSearchParam("nprobe", "16").
		WithOutputFields(fieldBook, fieldChapter, fieldTopic, fieldText)
	if expr := bookExpr(book); expr != "" {
		opt = opt.WithFilter(expr)
	}

	results, err := c.client.Search(ctx, opt)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	return parseHits(results), nil
}

// GetBooks returns the sorted unique book names in the collection.
func (c *Client) GetBooks(ctx context.Context) ([]string, error) {
	rs, err := c.client.Query(ctx, milvusclient.NewQueryOption(c.opts.Collection).
		WithFilter(fmt.Sprintf("%s >= 0", fieldID)).
		WithOutputFields(fieldBook).
		WithLimit(catalogScanLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}

	seen := map[string]bool{}
	var books []string
	for _, field := range rs.Fields {
		col, ok := field.(*column.ColumnVarChar)
		if !ok || col.Name() != fieldBook {
			continue
		}
		for _, b := range col.Data() {
			if !seen[b] {
				seen[b] = true
				books = append(books, b)
			}
		}
	}
	sort.Strings(books)
	return books, nil
}

// InsertChunks inserts book chunks. Used by ingestion tooling and tests.
func (c *Client) InsertChunks(ctx context.Context, dense [][]float32, sparse []llm.SparseVector, books, chapters, topics, texts []string) error {
	n := len(texts)
	if n == 0 {
		return nil
	}

	sparseVecs := make([]entity.SparseEmbedding, n)
	for i := range sparseVecs {
		var vec llm.SparseVector
		if i < len(sparse) {
			vec = sparse[i]
		}
		se, err := sparseEmbedding(vec)
		if err != nil {
			return fmt.Errorf("failed to build sparse vector %d: %w", i, err)
		}
		sparseVecs[i] = se
	}

	_, err := c.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(c.opts.Collection,
		column.NewColumnFloatVector(fieldDense, c.opts.Dimension, dense),
		column.NewColumnSparseVectors(fieldSparse, sparseVecs),
		column.NewColumnVarChar(fieldBook, books),
		column.NewColumnVarChar(fieldChapter, chapters),
		column.NewColumnVarChar(fieldTopic, topics),
		column.NewColumnVarChar(fieldText, texts),
	))
	if err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	flushTask, err := c.client.Flush(ctx, milvusclient.NewFlushOption(c.opts.Collection))
	if err != nil {
		return fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for flush: %w", err)
	}
	return nil
}

// GetCollectionStats returns the number of entities in the collection.
func (c *Client) GetCollectionStats(ctx context.Context) (int64, error) {
	stats, err := c.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(c.opts.Collection))
	if err != nil {
		return 0, fmt.Errorf("failed to get collection stats: %w", err)
	}
	if val, ok := stats["row_count"]; ok {
		var n int64
		_, err := fmt.Sscanf(val, "%d", &n)
		return n, err
	}
	return 0, nil
}

// bookExpr builds the filter expression for an exact book scope.
func bookExpr(book string) string {
	if book == "" {
		return ""
	}
	return fmt.Sprintf("%s == %q", fieldBook, book)
}

// sparseEmbedding converts a term-weight map to the SDK sparse format,
// which requires positions in ascending order.
func sparseEmbedding(vec llm.SparseVector) (entity.SparseEmbedding, error) {
	positions := make([]uint32, 0, len(vec))
	for id := range vec {
		positions = append(positions, uint32(id))
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i] < positions[j] })

	values := make([]float32, len(positions))
	for i, pos := range positions {
		values[i] = vec[int64(pos)]
	}
	return entity.NewSliceSparseEmbedding(positions, values)
}

// parseHits flattens SDK result sets into hits.
func parseHits(results []milvusclient.ResultSet) []Hit {
	if len(results) == 0 {
		return nil
	}

	rs := results[0]
	hits := make([]Hit, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		hits[i].Score = rs.Scores[i]
	}
	for _, field := range rs.Fields {
		col, ok := field.(*column.ColumnVarChar)
		if !ok {
			continue
		}
		data := col.Data()
		for i := 0; i < rs.ResultCount && i < len(data); i++ {
			switch col.Name() {
			case fieldBook:
				hits[i].Book = data[i]
			case fieldChapter:
				hits[i].Chapter = data[i]
			case fieldTopic:
				hits[i].Topic = data[i]
			case fieldText:
				hits[i].Text = data[i]
			}
		}
	}
	return hits
}
