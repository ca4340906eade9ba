// Package app provides the study assistant application.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kart-io/logger"

	"github.com/kart-io/studyrag/cmd/studyrag/app/options"
	"github.com/kart-io/studyrag/internal/assistant/biz"
	"github.com/kart-io/studyrag/internal/assistant/intent"
	"github.com/kart-io/studyrag/internal/assistant/store"
	"github.com/kart-io/studyrag/internal/pkg/bookmatch"
	"github.com/kart-io/studyrag/internal/pkg/enhancer"
	"github.com/kart-io/studyrag/internal/pkg/fusion"
	milvuscomp "github.com/kart-io/studyrag/pkg/component/milvus"
	"github.com/kart-io/studyrag/pkg/infra/app"
	"github.com/kart-io/studyrag/pkg/infra/pool"
	"github.com/kart-io/studyrag/pkg/llm"
	"github.com/kart-io/studyrag/pkg/llm/anthropic"
	"github.com/kart-io/studyrag/pkg/llm/bgem3"
	"github.com/kart-io/studyrag/pkg/llm/deepseek"
	"github.com/kart-io/studyrag/pkg/llm/openai"
	"github.com/kart-io/studyrag/pkg/redis"
)

const (
	// Name is the name of the application.
	Name = "studyrag"

	// commandDesc is the description of the command.
	commandDesc = `StudyRAG - Hybrid Retrieval Study Assistant

An interactive study assistant over a book corpus:
  - Query enhancement into targeted sub-queries
  - Hybrid dense+sparse retrieval with per-intent score fusion
  - Redis-cached search results
  - Multi-provider LLM generation with guarded fallbacks`
)

// NewApp creates and returns a new App object with default parameters.
func NewApp() *app.App {
	opts := options.NewServerOptions()
	application := app.NewApp(
		app.WithName(Name),
		app.WithDescription(commandDesc),
		app.WithOptions(opts),
		app.WithRunFunc(run(opts)),
	)

	return application
}

// run contains the main logic for initializing and running the assistant.
func run(opts *options.ServerOptions) app.RunFunc {
	return func() error {
		if err := opts.LogOptions.Init(); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		logger.Infow("starting studyrag", "version", app.GetVersion())

		if err := pool.InitGlobal(); err != nil {
			return fmt.Errorf("failed to initialize worker pools: %w", err)
		}
		defer func() { _ = pool.CloseGlobal() }()

		ctx := setupSignalContext()

		session, err := buildSession(ctx, opts)
		if err != nil {
			return err
		}
		defer session.close()

		return session.chatLoop(ctx)
	}
}

// buildSession wires the retrieval pipeline from options.
func buildSession(ctx context.Context, opts *options.ServerOptions) (*chatSession, error) {
	engine := fusion.NewEngine(opts.FusionConfig())

	vectorStore, closeStore, err := buildStore(ctx, opts, engine)
	if err != nil {
		return nil, err
	}

	cache, err := buildCache(ctx, opts)
	if err != nil {
		logger.Warnw("redis unavailable, search cache disabled", "error", err.Error())
		cache = nil
	}

	router, err := buildRouter(opts)
	if err != nil {
		return nil, err
	}

	embedder := bgem3.NewClient(&bgem3.Config{
		BaseURL:    opts.AssistantOptions.EmbeddingURL,
		Timeout:    opts.LLMOptions.Timeout,
		MaxRetries: opts.LLMOptions.MaxRetries,
	})
	classifier := intent.NewHTTPClassifier(&intent.Config{
		BaseURL: opts.AssistantOptions.IntentURL,
	})
	matcher := bookmatch.New(opts.AssistantOptions.FuzzyThreshold)
	searcher := biz.NewSearcher(embedder, vectorStore, cache, engine)

	s := &chatSession{
		opts:       opts,
		router:     router,
		classifier: classifier,
		matcher:    matcher,
		searcher:   searcher,
		store:      vectorStore,
		closeStore: closeStore,
		subject:    opts.AssistantOptions.Subject,
		model:      opts.LLMOptions.Model,
	}
	s.rebuild()
	return s, nil
}

// buildStore creates the configured vector store backend.
func buildStore(ctx context.Context, opts *options.ServerOptions, engine *fusion.Engine) (store.VectorStore, func(), error) {
	if opts.StoreDriver == options.StoreMemory {
		logger.Infow("using in-memory vector store")
		return store.NewMemoryStore(engine, nil), func() {}, nil
	}

	client, err := milvuscomp.New(opts.MilvusOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}
	if err := client.EnsureCollection(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, nil, fmt.Errorf("failed to prepare collection: %w", err)
	}
	logger.Infow("milvus store ready",
		"address", opts.MilvusOptions.Address,
		"collection", opts.MilvusOptions.Collection)
	return store.NewMilvusStore(client, engine), func() { _ = client.Close(context.Background()) }, nil
}

// buildCache connects Redis and wraps it in the search cache. A connection
// failure disables caching rather than aborting startup.
func buildCache(ctx context.Context, opts *options.ServerOptions) (*biz.SearchCache, error) {
	if !opts.AssistantOptions.CacheEnabled {
		return nil, nil
	}
	client, err := redis.New(ctx, opts.RedisOptions)
	if err != nil {
		return nil, err
	}
	return biz.NewSearchCache(client, &biz.SearchCacheConfig{
		Enabled:   true,
		TTL:       opts.AssistantOptions.CacheTTL,
		KeyPrefix: opts.AssistantOptions.CacheKeyPrefix,
	}), nil
}

// buildRouter registers one provider per configured credential. OpenAI is
// mandatory because unrouted models default to it.
func buildRouter(opts *options.ServerOptions) (*llm.Router, error) {
	l := opts.LLMOptions
	providers := map[llm.Family]llm.Provider{}

	openaiProvider, err := openai.NewProvider(&openai.Config{
		BaseURL:      l.OpenAIBaseURL,
		APIKey:       l.OpenAIAPIKey,
		Organization: l.OpenAIOrganization,
		Timeout:      l.Timeout,
		MaxRetries:   l.MaxRetries,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	providers[llm.FamilyOpenAI] = openaiProvider

	if l.AnthropicAPIKey != "" {
		p, err := anthropic.NewProvider(&anthropic.Config{
			APIKey:     l.AnthropicAPIKey,
			Timeout:    l.Timeout,
			MaxRetries: l.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic: %w", err)
		}
		providers[llm.FamilyAnthropic] = p
	}

	if l.DeepSeekAPIKey != "" {
		p, err := deepseek.NewProvider(&deepseek.Config{
			APIKey:     l.DeepSeekAPIKey,
			Timeout:    l.Timeout,
			MaxRetries: l.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("deepseek: %w", err)
		}
		providers[llm.FamilyDeepSeek] = p
	}

	return llm.NewRouter(providers), nil
}

// setupSignalContext returns a context that is cancelled on SIGINT or SIGTERM.
func setupSignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cancel()
		<-c
		os.Exit(1)
	}()
	return ctx
}

// rebuild reconstructs the subject/model dependent pipeline stages. Called
// at startup and after /subject or /model changes.
func (s *chatSession) rebuild() {
	enhCfg := enhancer.DefaultConfig()
	enhCfg.Model = s.opts.LLMOptions.EnhancementModel
	enhCfg.Subject = s.subject
	enh := enhancer.New(s.router, s.matcher, enhCfg)

	s.orchestrator = biz.NewOrchestrator(s.classifier, enh, s.searcher, s.router, s.store, biz.OrchestratorConfig{
		Model:         s.model,
		Temperature:   s.opts.LLMOptions.Temperature,
		MaxTokens:     s.opts.LLMOptions.MaxTokens,
		Subject:       s.subject,
		TopKSearching: s.opts.AssistantOptions.TopKSearching,
		TopKDefault:   s.opts.AssistantOptions.TopK,
	})
}
