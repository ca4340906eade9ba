// Package biz implements the query pipeline of the study assistant:
// concurrent intent classification and query enhancement, fanned-out hybrid
// retrieval with caching, prompt assembly, and guarded response generation.
package biz

import (
	"context"
	"time"

	"github.com/kart-io/logger"
	"github.com/oklog/ulid/v2"

	"github.com/kart-io/studyrag/internal/assistant/intent"
	"github.com/kart-io/studyrag/internal/assistant/store"
	"github.com/kart-io/studyrag/internal/model"
	"github.com/kart-io/studyrag/internal/pkg/enhancer"
	"github.com/kart-io/studyrag/internal/pkg/prompt"
	"github.com/kart-io/studyrag/pkg/infra/pool"
	"github.com/kart-io/studyrag/pkg/llm"
)

// Fallback responses. The empty-response apology is served after a retry
// still produced nothing; the error fallback covers provider failures.
const (
	DefaultEmptyFallback = "Desculpe, não consegui gerar uma resposta. Por favor, tente novamente."
	DefaultErrorFallback = "I apologize, but I encountered an error generating a response. Please try again."
)

// Per-intent retrieval depth.
const (
	DefaultTopKSearching = 10
	DefaultTopK          = 6
)

// sourcePreviewRunes bounds the passage preview attached to each source.
const sourcePreviewRunes = 500

// OrchestratorConfig configures the pipeline.
type OrchestratorConfig struct {
	// Model is the generation model id.
	Model string

	// Temperature for generation calls.
	Temperature float64

	// MaxTokens for generation calls.
	MaxTokens int

	// Subject is the study subject.
	Subject string

	// TopKSearching and TopKDefault set retrieval depth per intent.
	TopKSearching int
	TopKDefault   int

	// EmptyFallback and ErrorFallback replace the stock fallback strings
	// when non-empty.
	EmptyFallback string
	ErrorFallback string
}

// DefaultOrchestratorConfig returns the stock pipeline settings.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		Model:         "gpt-5-mini",
		Temperature:   0.7,
		MaxTokens:     16384,
		Subject:       prompt.DefaultSubject,
		TopKSearching: DefaultTopKSearching,
		TopKDefault:   DefaultTopK,
		EmptyFallback: DefaultEmptyFallback,
		ErrorFallback: DefaultErrorFallback,
	}
}

// Orchestrator runs the full query pipeline. The caller owns conversation
// history; the orchestrator only reads it.
type Orchestrator struct {
	classifier intent.Classifier
	enhancer   *enhancer.Enhancer
	searcher   *Searcher
	provider   llm.Provider
	catalog    store.VectorStore
	cfg        OrchestratorConfig
}

// NewOrchestrator wires the pipeline.
func NewOrchestrator(classifier intent.Classifier, enh *enhancer.Enhancer, searcher *Searcher, provider llm.Provider, catalog store.VectorStore, cfg OrchestratorConfig) *Orchestrator {
	if cfg.TopKSearching <= 0 {
		cfg.TopKSearching = DefaultTopKSearching
	}
	if cfg.TopKDefault <= 0 {
		cfg.TopKDefault = DefaultTopK
	}
	if cfg.EmptyFallback == "" {
		cfg.EmptyFallback = DefaultEmptyFallback
	}
	if cfg.ErrorFallback == "" {
		cfg.ErrorFallback = DefaultErrorFallback
	}
	return &Orchestrator{
		classifier: classifier,
		enhancer:   enh,
		searcher:   searcher,
		provider:   provider,
		catalog:    catalog,
		cfg:        cfg,
	}
}

// Ask serves one user turn.
func (o *Orchestrator) Ask(ctx context.Context, query string, history []model.Message) (*model.AskResult, error) {
	start := time.Now()
	traceID := ulid.Make().String()

	// Classification runs concurrently with the catalog fetch and
	// enhancement; it depends on neither and all three sit on network calls.
	intentCh := make(chan string, 1)
	task := func() {
		label, err := o.classifier.Classify(ctx, query)
		if err != nil {
			logger.Warnw("intent classification failed, defaulting",
				"trace_id", traceID, "error", err.Error())
			label = model.IntentQuestionAnswering
		}
		intentCh <- label
	}
	if err := pool.Submit(task); err != nil {
		go task()
	}

	books, err := o.catalog.GetBooks(ctx)
	if err != nil {
		logger.Warnw("book catalog unavailable, enhancement runs unscoped",
			"trace_id", traceID, "error", err.Error())
		books = nil
	}

	plan := o.enhancer.Plan(ctx, query, history, books)
	label := <-intentCh

	topK := o.cfg.TopKDefault
	if label == model.IntentSearching {
		topK = o.cfg.TopKSearching
	}

	searchStart := time.Now()
	results, err := o.searcher.Search(ctx, plan, label, topK)
	if err != nil {
		// Embedding down means no retrieval at all; generation still
		// answers from the conversation alone.
		logger.Errorw("retrieval failed, generating without context",
			"trace_id", traceID, "error", err.Error())
		results = nil
	}
	logger.Infow("retrieval complete",
		"trace_id", traceID,
		"intent", label,
		"queries", len(plan.Queries),
		"results", len(results),
		"search_ms", time.Since(searchStart).Milliseconds())

	messages := o.assembleMessages(label, query, history, results)
	response, tokens := o.generate(ctx, traceID, messages)

	return &model.AskResult{
		Response:         response,
		Intent:           label,
		TokensUsed:       tokens,
		Sources:          toSources(results),
		ProcessingMillis: time.Since(start).Milliseconds(),
		Model:            o.cfg.Model,
	}, nil
}

// GetBooks lists the book catalog.
func (o *Orchestrator) GetBooks(ctx context.Context) ([]string, error) {
	return o.catalog.GetBooks(ctx)
}

// assembleMessages builds the generation request: system prompt with
// retrieval context, the trailing history window, then the user turn.
func (o *Orchestrator) assembleMessages(label, query string, history []model.Message, results []model.SearchResult) []llm.Message {
	messages := []llm.Message{{
		Role:    llm.RoleSystem,
		Content: prompt.System(label, o.cfg.Subject, results),
	}}
	for _, msg := range prompt.TrimHistory(history) {
		if msg.Role != model.RoleUser && msg.Role != model.RoleAssistant {
			continue
		}
		messages = append(messages, llm.Message{Role: llm.Role(msg.Role), Content: msg.Content})
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: query})
	return messages
}

// generate calls the provider, retrying the identical request once when the
// response text is empty. A still-empty retry serves the apology fallback;
// a provider error serves the error fallback. Fallback turns report no
// token usage.
func (o *Orchestrator) generate(ctx context.Context, traceID string, messages []llm.Message) (string, *int) {
	req := &llm.GenerateRequest{
		Messages:    messages,
		Model:       o.cfg.Model,
		Temperature: o.cfg.Temperature,
		MaxTokens:   o.cfg.MaxTokens,
	}

	resp, err := o.provider.Generate(ctx, req)
	if err != nil {
		logger.Errorw("generation failed", "trace_id", traceID, "model", o.cfg.Model, "error", err.Error())
		return o.cfg.ErrorFallback, nil
	}

	if resp.Text == "" {
		logger.Warnw("empty response, retrying once", "trace_id", traceID, "model", o.cfg.Model)
		resp, err = o.provider.Generate(ctx, req)
		if err != nil {
			logger.Errorw("generation retry failed", "trace_id", traceID, "model", o.cfg.Model, "error", err.Error())
			return o.cfg.ErrorFallback, nil
		}
		if resp.Text == "" {
			logger.Errorw("empty response after retry", "trace_id", traceID, "model", o.cfg.Model)
			return o.cfg.EmptyFallback, nil
		}
	}

	return resp.Text, resp.TotalTokens()
}

// toSources converts hits to citation entries with bounded previews.
func toSources(results []model.SearchResult) []model.Source {
	sources := make([]model.Source, len(results))
	for i, r := range results {
		text := r.Text
		if runes := []rune(text); len(runes) > sourcePreviewRunes {
			text = string(runes[:sourcePreviewRunes]) + "..."
		}
		sources[i] = model.Source{
			Text:    text,
			Book:    r.Book,
			Chapter: r.Chapter,
			Topic:   r.Topic,
			Score:   r.Score,
		}
	}
	return sources
}
