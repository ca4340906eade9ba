package enhancer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/studyrag/internal/model"
	"github.com/kart-io/studyrag/pkg/llm"
)

type stubProvider struct {
	text string
	err  error

	lastReq *llm.GenerateRequest
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) Generate(_ context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &llm.GenerateResponse{Text: s.text}, nil
}

var catalog = []string{"Deep Learning", "Introduction to Algorithms"}

func TestPlanParsesTags(t *testing.T) {
	stub := &stubProvider{text: `<retrieval1 book="all">backpropagation definition</retrieval1>
<retrieval2 book="Deep Learning">chain rule in neural networks</retrieval2>
<retrieval3 book="deep lerning">gradient descent convergence</retrieval3>`}
	e := New(stub, nil, DefaultConfig())

	plan := e.Plan(context.Background(), "how does backprop work", nil, catalog)

	require.Len(t, plan.Queries, 3)
	assert.Equal(t, model.EnhancedQuery{Query: "backpropagation definition"}, plan.Queries[0])
	assert.Equal(t, "Deep Learning", plan.Queries[1].Book)
	assert.Equal(t, "Deep Learning", plan.Queries[2].Book, "misspelled name resolves fuzzily")
}

func TestPlanUnknownBookStaysUnscoped(t *testing.T) {
	stub := &stubProvider{text: `<retrieval1 book="Quantum Gravity Handbook">spin networks</retrieval1>`}
	e := New(stub, nil, DefaultConfig())

	plan := e.Plan(context.Background(), "spin networks", nil, catalog)

	require.Len(t, plan.Queries, 1)
	assert.Empty(t, plan.Queries[0].Book)
}

func TestPlanAllSentinelCaseAndWhitespace(t *testing.T) {
	stub := &stubProvider{text: `<retrieval1 book="All">entropy definition</retrieval1>
<retrieval2 book=" all ">entropy in thermodynamics</retrieval2>
<retrieval3 book="ALL">entropy and information</retrieval3>`}
	e := New(stub, nil, DefaultConfig())

	plan := e.Plan(context.Background(), "what is entropy", nil, catalog)

	require.Len(t, plan.Queries, 3)
	for i, q := range plan.Queries {
		assert.Empty(t, q.Book, "query %d must stay unscoped", i+1)
	}
}

func TestPlanFallsBackOnProviderError(t *testing.T) {
	stub := &stubProvider{err: errors.New("backend down")}
	e := New(stub, nil, DefaultConfig())

	plan := e.Plan(context.Background(), "what is entropy", nil, catalog)

	require.Len(t, plan.Queries, 1)
	assert.Equal(t, model.EnhancedQuery{Query: "what is entropy"}, plan.Queries[0])
}

func TestPlanFallsBackOnUnparseableOutput(t *testing.T) {
	stub := &stubProvider{text: "Sure! Here are some ideas for searching."}
	e := New(stub, nil, DefaultConfig())

	plan := e.Plan(context.Background(), "what is entropy", nil, catalog)

	require.Len(t, plan.Queries, 1)
	assert.Equal(t, "what is entropy", plan.Queries[0].Query)
}

func TestPlanSendsHistoryAndSettings(t *testing.T) {
	stub := &stubProvider{text: `<retrieval1 book="all">q</retrieval1>`}
	cfg := DefaultConfig()
	cfg.Subject = "Statistics"
	e := New(stub, nil, cfg)

	history := []model.Message{{Role: model.RoleUser, Content: "earlier question"}}
	e.Plan(context.Background(), "next question", history, catalog)

	require.NotNil(t, stub.lastReq)
	assert.Equal(t, cfg.Model, stub.lastReq.Model)
	assert.InDelta(t, 0.3, stub.lastReq.Temperature, 1e-9)
	require.Len(t, stub.lastReq.Messages, 2)
	assert.Contains(t, stub.lastReq.Messages[0].Content, "Statistics")
	assert.Contains(t, stub.lastReq.Messages[1].Content, "earlier question")
	assert.Contains(t, stub.lastReq.Messages[1].Content, "<Current User Message>\nnext question")
}

func TestPlanMultilineTagBody(t *testing.T) {
	stub := &stubProvider{text: "<retrieval1 book=\"all\">line one\nline two</retrieval1>"}
	e := New(stub, nil, DefaultConfig())

	plan := e.Plan(context.Background(), "q", nil, catalog)
	require.Len(t, plan.Queries, 1)
	assert.Equal(t, "line one\nline two", plan.Queries[0].Query)
}
