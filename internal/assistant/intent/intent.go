// Package intent classifies user queries into the four study intents via
// the intent classification service.
package intent

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/studyrag/internal/model"
	"github.com/kart-io/studyrag/pkg/utils/httpclient"
	"github.com/kart-io/studyrag/pkg/utils/json"
)

// Classifier labels a query with one of the study intents.
type Classifier interface {
	// Classify returns the intent label for text.
	Classify(ctx context.Context, text string) (string, error)
}

// Config configures the HTTP classifier.
type Config struct {
	// BaseURL is the intent service address.
	BaseURL string

	// Timeout for classification calls.
	Timeout time.Duration

	// MaxRetries for classification calls.
	MaxRetries int
}

// DefaultConfig returns the stock classifier settings.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:8001",
		Timeout:    10 * time.Second,
		MaxRetries: 2,
	}
}

// HTTPClassifier calls the intent classification service.
type HTTPClassifier struct {
	config *Config
	client *httpclient.Client
}

var _ Classifier = (*HTTPClassifier)(nil)

// NewHTTPClassifier creates an HTTP classifier.
func NewHTTPClassifier(cfg *Config) *HTTPClassifier {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &HTTPClassifier{
		config: cfg,
		client: httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
	}
}

type classifyRequest struct {
	Text string `json:"text"`
}

type classifyResponse struct {
	Intent     string  `json:"intent"`
	Confidence float32 `json:"confidence"`
}

// Classify labels text. Labels outside the known set normalize to
// question_answering so downstream weight lookups always hit the table.
func (c *HTTPClassifier) Classify(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return "", fmt.Errorf("intent: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("intent: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp classifyResponse
	if err := c.client.DoJSON(req, &resp); err != nil {
		return "", fmt.Errorf("intent: classify: %w", err)
	}

	return Normalize(resp.Intent), nil
}

// Normalize maps unknown labels to question_answering.
func Normalize(label string) string {
	switch label {
	case model.IntentQuestionAnswering, model.IntentSummarization,
		model.IntentCoding, model.IntentSearching:
		return label
	default:
		if label != "" {
			logger.Debugw("unknown intent label, defaulting", "label", label)
		}
		return model.IntentQuestionAnswering
	}
}
