// Package enhancer turns one user query into a retrieval plan of up to
// three targeted search queries, generated by a fast model and parsed from
// tagged output. Enhancement is best-effort: any failure falls back to a
// single-query plan carrying the verbatim user query.
package enhancer

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/studyrag/internal/model"
	"github.com/kart-io/studyrag/internal/pkg/bookmatch"
	"github.com/kart-io/studyrag/internal/pkg/prompt"
	"github.com/kart-io/studyrag/pkg/llm"
)

// MaxQueries is the maximum number of retrieval tags parsed per plan.
const MaxQueries = 3

// unscopedBook is the tag attribute meaning "search every book".
const unscopedBook = "all"

// tagPatterns[i] matches <retrieval{i+1} book="...">...</retrieval{i+1}>.
var tagPatterns = func() []*regexp.Regexp {
	ps := make([]*regexp.Regexp, MaxQueries)
	for i := range ps {
		n := i + 1
		ps[i] = regexp.MustCompile(fmt.Sprintf(`(?s)<retrieval%d book="([^"]+)">(.*?)</retrieval%d>`, n, n))
	}
	return ps
}()

// Config configures the enhancer.
type Config struct {
	// Model is the enhancement model id (fast and cheap; it only emits
	// search terms).
	Model string

	// Temperature for the enhancement call.
	Temperature float64

	// MaxTokens for the enhancement call.
	MaxTokens int

	// Subject is the study subject injected into the prompt.
	Subject string
}

// DefaultConfig returns the stock enhancement settings.
func DefaultConfig() Config {
	return Config{
		Model:       "gpt-5-nano",
		Temperature: 0.3,
		MaxTokens:   1024,
		Subject:     prompt.DefaultSubject,
	}
}

// Enhancer generates retrieval plans.
type Enhancer struct {
	provider llm.Provider
	matcher  *bookmatch.Matcher
	cfg      Config
}

// New creates an enhancer.
func New(provider llm.Provider, matcher *bookmatch.Matcher, cfg Config) *Enhancer {
	if matcher == nil {
		matcher = bookmatch.New(0)
	}
	return &Enhancer{provider: provider, matcher: matcher, cfg: cfg}
}

// Plan generates a retrieval plan for query. catalog is the list of books
// available for scoping; history provides conversation context. Plan never
// fails and never returns an empty plan: enhancement faults degrade to the
// verbatim single-query plan.
func (e *Enhancer) Plan(ctx context.Context, query string, history []model.Message, catalog []string) *model.RetrievalPlan {
	resp, err := e.provider.Generate(ctx, &llm.GenerateRequest{
		Model: e.cfg.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: prompt.EnhancementSystem(e.cfg.Subject, catalog)},
			{Role: llm.RoleUser, Content: prompt.EnhancementUser(query, history)},
		},
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
	})
	if err != nil {
		logger.Warnw("query enhancement failed, using original query",
			"error", err.Error(), "model", e.cfg.Model)
		return model.Verbatim(query)
	}

	plan := e.parse(resp.Text, catalog)
	if len(plan.Queries) == 0 {
		logger.Warnw("no retrieval tags in enhancement output, using original query",
			"model", e.cfg.Model)
		return model.Verbatim(query)
	}
	return plan
}

// parse extracts retrieval tags and resolves book scopes against catalog.
func (e *Enhancer) parse(text string, catalog []string) *model.RetrievalPlan {
	plan := &model.RetrievalPlan{}
	for _, p := range tagPatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		book, q := m[1], m[2]
		eq := model.EnhancedQuery{Query: q}
		// 模型输出的 book 属性大小写与空白不稳定，先归一化再比较
		if strings.ToLower(strings.TrimSpace(book)) != unscopedBook {
			if resolved, ok := e.matcher.Resolve(book, catalog); ok {
				eq.Book = resolved
			}
			// Unresolvable names stay unscoped rather than filtering
			// the search down to nothing.
		}
		plan.Queries = append(plan.Queries, eq)
	}
	return plan
}
