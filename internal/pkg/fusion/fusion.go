// Package fusion implements two-stage hybrid retrieval over an in-memory
// corpus: a dense dot-product prefilter narrows the corpus to a candidate
// window, then candidates are reranked by an intent-weighted combination of
// min-max normalized dense and sparse scores.
package fusion

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kart-io/studyrag/internal/model"
)

// DefaultPrefilterWidth is the dense candidate window ahead of reranking.
const DefaultPrefilterWidth = 50

// Weights is the dense/sparse blend for one intent. Dense+Sparse must sum
// to 1 so fused scores stay in [0, 1].
type Weights struct {
	Dense  float32 `json:"dense" mapstructure:"dense"`
	Sparse float32 `json:"sparse" mapstructure:"sparse"`
}

// Config configures the fusion engine.
type Config struct {
	// PrefilterWidth caps the candidate set of the dense stage.
	PrefilterWidth int

	// Weights maps intent labels to blend weights. Unknown intents use
	// Fallback.
	Weights map[string]Weights

	// Fallback is used for intents missing from Weights.
	Fallback Weights
}

// DefaultConfig returns the stock per-intent weight table.
func DefaultConfig() *Config {
	return &Config{
		PrefilterWidth: DefaultPrefilterWidth,
		Weights: map[string]Weights{
			model.IntentQuestionAnswering: {Dense: 0.6, Sparse: 0.4},
			model.IntentSummarization:     {Dense: 0.7, Sparse: 0.3},
			model.IntentCoding:            {Dense: 0.4, Sparse: 0.6},
			model.IntentSearching:         {Dense: 0.5, Sparse: 0.5},
		},
		Fallback: Weights{Dense: 0.5, Sparse: 0.5},
	}
}

// Validate checks that every weight pair sums to 1.
func (c *Config) Validate() []error {
	var errs []error
	if c.PrefilterWidth <= 0 {
		errs = append(errs, fmt.Errorf("fusion: prefilter width must be positive, got %d", c.PrefilterWidth))
	}
	check := func(intent string, w Weights) {
		const eps = 1e-6
		if s := w.Dense + w.Sparse; s < 1-eps || s > 1+eps {
			errs = append(errs, fmt.Errorf("fusion: weights for %q sum to %v, want 1", intent, s))
		}
		if w.Dense < 0 || w.Sparse < 0 {
			errs = append(errs, fmt.Errorf("fusion: weights for %q must be non-negative", intent))
		}
	}
	for intent, w := range c.Weights {
		check(intent, w)
	}
	check("fallback", c.Fallback)
	return errs
}

// Options controls one search call.
type Options struct {
	// TopK is the number of results to return.
	TopK int

	// BookFilter restricts the corpus by case-insensitive substring match
	// on book names. A filter matching nothing falls back to the full
	// corpus rather than returning nothing.
	BookFilter string

	// Intent selects the weight pair.
	Intent string
}

// Engine scores and ranks corpus chunks. It is stateless and safe for
// concurrent use.
type Engine struct {
	cfg *Config
}

// NewEngine creates an engine. A nil cfg uses DefaultConfig.
func NewEngine(cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Engine{cfg: cfg}
}

// WeightsFor returns the blend for intent, falling back for unknown labels.
func (e *Engine) WeightsFor(intent string) Weights {
	if w, ok := e.cfg.Weights[intent]; ok {
		return w
	}
	return e.cfg.Fallback
}

// Search ranks corpus against the query vectors and returns the top-k fused
// results in descending score order. Ties keep prefilter order, so repeated
// calls over the same corpus are deterministic.
func (e *Engine) Search(queryDense []float32, querySparse model.SparseVector, corpus []model.Chunk, opts Options) []model.SearchResult {
	if len(corpus) == 0 || opts.TopK <= 0 {
		return nil
	}

	indices := filterByBook(corpus, opts.BookFilter)

	// Stage 1: dense prefilter.
	denseScores := make([]float32, len(indices))
	for i, ci := range indices {
		denseScores[i] = dot(corpus[ci].Dense, queryDense)
	}

	preK := e.cfg.PrefilterWidth
	if preK > len(indices) {
		preK = len(indices)
	}
	order := make([]int, len(indices))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return denseScores[order[a]] > denseScores[order[b]]
	})
	order = order[:preK]

	// Stage 2: sparse rerank over the candidate window.
	candDense := make([]float32, preK)
	candSparse := make([]float32, preK)
	for i, local := range order {
		candDense[i] = denseScores[local]
		candSparse[i] = sparseDot(corpus[indices[local]].Sparse, querySparse)
	}

	normalize(candDense)
	normalize(candSparse)

	w := e.WeightsFor(opts.Intent)
	fused := make([]float32, preK)
	for i := range fused {
		fused[i] = w.Dense*candDense[i] + w.Sparse*candSparse[i]
	}

	rank := make([]int, preK)
	for i := range rank {
		rank[i] = i
	}
	sort.SliceStable(rank, func(a, b int) bool {
		return fused[rank[a]] > fused[rank[b]]
	})

	topK := opts.TopK
	if topK > preK {
		topK = preK
	}
	results := make([]model.SearchResult, 0, topK)
	for _, i := range rank[:topK] {
		chunk := corpus[indices[order[i]]]
		results = append(results, model.SearchResult{
			Text:    chunk.Text,
			Book:    chunk.Book,
			Chapter: chunk.Chapter,
			Topic:   chunk.Topic,
			Score:   fused[i],
		})
	}
	return results
}

// filterByBook returns corpus indices matching filter, or all indices when
// the filter is empty or matches nothing.
func filterByBook(corpus []model.Chunk, filter string) []int {
	all := func() []int {
		idx := make([]int, len(corpus))
		for i := range idx {
			idx[i] = i
		}
		return idx
	}

	if filter == "" {
		return all()
	}

	needle := strings.ToLower(filter)
	var idx []int
	for i, c := range corpus {
		if strings.Contains(strings.ToLower(c.Book), needle) {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return all()
	}
	return idx
}

// dot computes the dense dot product over the shared prefix of a and b.
func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float32
	for i := 0; i < n; i++ {
		s += a[i] * b[i]
	}
	return s
}

// sparseDot sums products over term ids present in both vectors.
func sparseDot(a, b model.SparseVector) float32 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	// Iterate the smaller map.
	if len(b) < len(a) {
		a, b = b, a
	}
	var s float32
	for id, wa := range a {
		if wb, ok := b[id]; ok {
			s += wa * wb
		}
	}
	return s
}

// normalize rescales scores to [0, 1] in place. A constant slice becomes
// all zeros so that no candidate gets an artificial advantage.
func normalize(scores []float32) {
	if len(scores) == 0 {
		return
	}
	minV, maxV := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < minV {
			minV = s
		}
		if s > maxV {
			maxV = s
		}
	}
	if maxV == minV {
		for i := range scores {
			scores[i] = 0
		}
		return
	}
	span := maxV - minV
	for i := range scores {
		scores[i] = (scores[i] - minV) / span
	}
}
