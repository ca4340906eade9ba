// Package model provides data models shared across the study assistant.
package model

// Intent labels produced by the intent classification service.
const (
	IntentQuestionAnswering = "question_answering"
	IntentSummarization     = "summarization"
	IntentCoding            = "coding"
	IntentSearching         = "searching_for_information"
)

// SparseVector maps vocabulary term ids to non-negative lexical weights.
type SparseVector map[int64]float32

// Chunk is an immutable unit of indexed book text. Chunks are produced by
// the ingestion pipeline and are read-only to the retrieval engine.
type Chunk struct {
	Book    string `json:"book"`
	Chapter string `json:"chapter"`
	Topic   string `json:"topic"`
	Text    string `json:"text"`

	// Dense is the pre-normalized dense embedding of Text.
	Dense []float32 `json:"dense"`

	// Sparse is the lexical term-weight map of Text. May be nil.
	Sparse SparseVector `json:"sparse,omitempty"`
}

// SearchResult is a ranked retrieval hit. Score is the fused dense/sparse
// relevance in [0, 1].
type SearchResult struct {
	Text    string  `json:"text"`
	Book    string  `json:"book"`
	Chapter string  `json:"chapter"`
	Topic   string  `json:"topic"`
	Score   float32 `json:"score"`
}

// EnhancedQuery is one targeted search query produced by query enhancement.
// Book is empty when the query is not scoped to a single book.
type EnhancedQuery struct {
	Query string `json:"query"`
	Book  string `json:"book,omitempty"`
}

// RetrievalPlan is the set of 1-3 enhanced queries generated for one user
// turn. A plan is never empty: enhancement falls back to the verbatim
// user query when it cannot do better.
type RetrievalPlan struct {
	Queries []EnhancedQuery `json:"queries"`
}

// Verbatim returns the mandatory fallback plan for query.
func Verbatim(query string) *RetrievalPlan {
	return &RetrievalPlan{Queries: []EnhancedQuery{{Query: query}}}
}

// Message is one turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Source is a citation entry attached to an answer. Text holds a preview
// of the supporting passage.
type Source struct {
	Text    string  `json:"text"`
	Book    string  `json:"book"`
	Chapter string  `json:"chapter"`
	Topic   string  `json:"topic"`
	Score   float32 `json:"score"`
}

// AskResult is the outcome of one orchestrated query turn.
type AskResult struct {
	Response string `json:"response"`

	// Intent is the classified intent label for the turn.
	Intent string `json:"intent"`

	// TokensUsed is nil when the provider reported no usage, or when the
	// turn ended on a fallback string.
	TokensUsed *int `json:"tokens_used,omitempty"`

	Sources []Source `json:"sources"`

	// ProcessingMillis is the wall time spent on the turn.
	ProcessingMillis int64 `json:"processing_time_ms"`

	// Model is the generation model that served the turn.
	Model string `json:"model_used"`
}
