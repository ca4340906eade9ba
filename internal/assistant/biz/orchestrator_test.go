package biz

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/studyrag/internal/assistant/store"
	"github.com/kart-io/studyrag/internal/model"
	"github.com/kart-io/studyrag/internal/pkg/enhancer"
	"github.com/kart-io/studyrag/pkg/llm"
)

type scriptedProvider struct {
	responses []*llm.GenerateResponse
	errs      []error
	requests  []*llm.GenerateRequest
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Generate(_ context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	i := len(p.requests)
	p.requests = append(p.requests, req)
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i < len(p.responses) {
		return p.responses[i], nil
	}
	return &llm.GenerateResponse{Text: "default"}, nil
}

type fixedClassifier struct {
	label string
	err   error
}

func (c *fixedClassifier) Classify(context.Context, string) (string, error) {
	return c.label, c.err
}

func memStore() *store.MemoryStore {
	return store.NewMemoryStore(nil, []model.Chunk{
		{Book: "Deep Learning", Chapter: "6", Topic: "Backprop", Text: "backpropagation computes gradients", Dense: []float32{1}},
		{Book: "Deep Learning", Chapter: "8", Topic: "Optimization", Text: "sgd minimizes the loss", Dense: []float32{0.5}},
	})
}

// newTestOrchestrator wires an orchestrator over the in-memory store. The
// enhancement provider returns unparseable text so plans default to the
// verbatim query unless a test overrides it.
func newTestOrchestrator(gen *scriptedProvider, classifier *fixedClassifier, enhText string) (*Orchestrator, *store.MemoryStore) {
	st := memStore()
	enh := enhancer.New(&scriptedProvider{responses: []*llm.GenerateResponse{{Text: enhText}, {Text: enhText}, {Text: enhText}}}, nil, enhancer.DefaultConfig())
	searcher := NewSearcher(&mockEmbedder{}, st, nil, nil)
	return NewOrchestrator(classifier, enh, searcher, gen, st, DefaultOrchestratorConfig()), st
}

func TestAskHappyPath(t *testing.T) {
	gen := &scriptedProvider{responses: []*llm.GenerateResponse{
		{Text: "Gradients flow backwards.", Usage: &llm.TokenUsage{TotalTokens: 42}},
	}}
	o, _ := newTestOrchestrator(gen, &fixedClassifier{label: model.IntentQuestionAnswering}, "no tags here")

	result, err := o.Ask(context.Background(), "how does backprop work", nil)
	require.NoError(t, err)

	assert.Equal(t, "Gradients flow backwards.", result.Response)
	assert.Equal(t, model.IntentQuestionAnswering, result.Intent)
	require.NotNil(t, result.TokensUsed)
	assert.Equal(t, 42, *result.TokensUsed)
	assert.NotEmpty(t, result.Sources)
	assert.Equal(t, "gpt-5-mini", result.Model)

	// System prompt carries the retrieval context and the user turn closes
	// the message list.
	require.Len(t, gen.requests, 1)
	msgs := gen.requests[0].Messages
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "Retrieval 1:")
	assert.Equal(t, llm.RoleUser, msgs[len(msgs)-1].Role)
	assert.Equal(t, "how does backprop work", msgs[len(msgs)-1].Content)
}

func TestAskRetriesOnceOnEmpty(t *testing.T) {
	gen := &scriptedProvider{responses: []*llm.GenerateResponse{
		{Text: ""},
		{Text: "X", Usage: &llm.TokenUsage{TotalTokens: 7}},
	}}
	o, _ := newTestOrchestrator(gen, &fixedClassifier{label: model.IntentQuestionAnswering}, "no tags")

	result, err := o.Ask(context.Background(), "q", nil)
	require.NoError(t, err)

	assert.Equal(t, "X", result.Response)
	require.Len(t, gen.requests, 2)
	assert.Equal(t, gen.requests[0].Messages, gen.requests[1].Messages, "retry repeats the identical request")
	require.NotNil(t, result.TokensUsed)
	assert.Equal(t, 7, *result.TokensUsed)
}

func TestAskApologyAfterDoubleEmpty(t *testing.T) {
	gen := &scriptedProvider{responses: []*llm.GenerateResponse{
		{Text: ""},
		{Text: "", Usage: &llm.TokenUsage{TotalTokens: 3}},
	}}
	o, _ := newTestOrchestrator(gen, &fixedClassifier{label: model.IntentQuestionAnswering}, "no tags")

	result, err := o.Ask(context.Background(), "q", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultEmptyFallback, result.Response)
	assert.Nil(t, result.TokensUsed, "fallback turns report no token usage")
	assert.Len(t, gen.requests, 2, "exactly one retry")
}

func TestAskErrorFallbackOnProviderFailure(t *testing.T) {
	gen := &scriptedProvider{errs: []error{errors.New("backend down")}}
	o, _ := newTestOrchestrator(gen, &fixedClassifier{label: model.IntentQuestionAnswering}, "no tags")

	result, err := o.Ask(context.Background(), "q", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultErrorFallback, result.Response)
	assert.Nil(t, result.TokensUsed)
}

func TestAskVerbatimPlanOnUnparseableEnhancement(t *testing.T) {
	gen := &scriptedProvider{responses: []*llm.GenerateResponse{{Text: "fine"}}}
	o, _ := newTestOrchestrator(gen, &fixedClassifier{label: model.IntentQuestionAnswering}, "I cannot help with that.")

	result, err := o.Ask(context.Background(), "what is sgd", nil)
	require.NoError(t, err)
	assert.Equal(t, "fine", result.Response)
	assert.NotEmpty(t, result.Sources, "verbatim plan still retrieves")
}

func TestAskTopKByIntent(t *testing.T) {
	tests := []struct {
		label string
		want  int
	}{
		{model.IntentSearching, DefaultTopKSearching},
		{model.IntentQuestionAnswering, DefaultTopK},
		{model.IntentCoding, DefaultTopK},
	}

	for _, tt := range tests {
		st := memStore()
		rec := &recordingStore{inner: st}
		enh := enhancer.New(&scriptedProvider{responses: []*llm.GenerateResponse{{Text: "none"}}}, nil, enhancer.DefaultConfig())
		searcher := NewSearcher(&mockEmbedder{}, rec, nil, nil)
		o := NewOrchestrator(&fixedClassifier{label: tt.label}, enh, searcher,
			&scriptedProvider{responses: []*llm.GenerateResponse{{Text: "ok"}}}, st, DefaultOrchestratorConfig())

		_, err := o.Ask(context.Background(), "q", nil)
		require.NoError(t, err)
		require.NotEmpty(t, rec.topKs, tt.label)
		assert.Equal(t, tt.want, rec.topKs[0], tt.label)
	}
}

func TestAskClassificationOverlapsCatalogFetch(t *testing.T) {
	classifyStarted := make(chan struct{})
	st := memStore()
	gate := &gatedCatalogStore{inner: st, open: classifyStarted}
	enh := enhancer.New(&scriptedProvider{responses: []*llm.GenerateResponse{{Text: "none"}}}, nil, enhancer.DefaultConfig())
	searcher := NewSearcher(&mockEmbedder{}, st, nil, nil)
	o := NewOrchestrator(&signalClassifier{started: classifyStarted}, enh, searcher,
		&scriptedProvider{responses: []*llm.GenerateResponse{{Text: "ok"}}}, gate, DefaultOrchestratorConfig())

	result, err := o.Ask(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Response)
	assert.False(t, gate.timedOut, "catalog fetch must not serialize before classification")
}

func TestAskClassifierFailureDefaults(t *testing.T) {
	gen := &scriptedProvider{responses: []*llm.GenerateResponse{{Text: "ok"}}}
	o, _ := newTestOrchestrator(gen, &fixedClassifier{err: errors.New("service down")}, "no tags")

	result, err := o.Ask(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Equal(t, model.IntentQuestionAnswering, result.Intent)
}

func TestAskHistoryWindow(t *testing.T) {
	gen := &scriptedProvider{responses: []*llm.GenerateResponse{{Text: "ok"}}}
	o, _ := newTestOrchestrator(gen, &fixedClassifier{label: model.IntentQuestionAnswering}, "no tags")

	history := make([]model.Message, 10)
	for i := range history {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		history[i] = model.Message{Role: role, Content: "turn"}
	}

	_, err := o.Ask(context.Background(), "q", history)
	require.NoError(t, err)

	// system + 6 history turns + current user message
	require.Len(t, gen.requests, 1)
	assert.Len(t, gen.requests[0].Messages, 8)
}

// signalClassifier closes started when classification begins.
type signalClassifier struct {
	started chan struct{}
	once    sync.Once
}

func (c *signalClassifier) Classify(context.Context, string) (string, error) {
	c.once.Do(func() { close(c.started) })
	return model.IntentQuestionAnswering, nil
}

// gatedCatalogStore blocks GetBooks until open closes, so a caller that
// fetches the catalog before starting classification trips the timeout.
type gatedCatalogStore struct {
	inner    store.VectorStore
	open     <-chan struct{}
	timedOut bool
}

func (g *gatedCatalogStore) GetBooks(ctx context.Context) ([]string, error) {
	select {
	case <-g.open:
		return g.inner.GetBooks(ctx)
	case <-time.After(2 * time.Second):
		g.timedOut = true
		return nil, errors.New("catalog gate timeout")
	}
}

func (g *gatedCatalogStore) SearchHybrid(ctx context.Context, q store.Query) ([]model.SearchResult, error) {
	return g.inner.SearchHybrid(ctx, q)
}

func (g *gatedCatalogStore) SearchDense(ctx context.Context, dense []float32, topK int, book string) ([]model.SearchResult, error) {
	return g.inner.SearchDense(ctx, dense, topK, book)
}

func (g *gatedCatalogStore) EnsureCollection(ctx context.Context) error {
	return g.inner.EnsureCollection(ctx)
}

// recordingStore captures the topK of each search.
type recordingStore struct {
	inner store.VectorStore
	topKs []int
}

func (r *recordingStore) SearchHybrid(ctx context.Context, q store.Query) ([]model.SearchResult, error) {
	r.topKs = append(r.topKs, q.TopK)
	return r.inner.SearchHybrid(ctx, q)
}

func (r *recordingStore) SearchDense(ctx context.Context, dense []float32, topK int, book string) ([]model.SearchResult, error) {
	return r.inner.SearchDense(ctx, dense, topK, book)
}

func (r *recordingStore) GetBooks(ctx context.Context) ([]string, error) {
	return r.inner.GetBooks(ctx)
}

func (r *recordingStore) EnsureCollection(ctx context.Context) error {
	return r.inner.EnsureCollection(ctx)
}
