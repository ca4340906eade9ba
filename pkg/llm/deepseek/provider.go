// Package deepseek 提供 DeepSeek 文本生成供应商实现。
// DeepSeek 使用兼容 OpenAI Chat Completions 的 API。
package deepseek

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"github.com/kart-io/studyrag/pkg/llm"
	"github.com/kart-io/studyrag/pkg/utils/httpclient"
	"github.com/kart-io/studyrag/pkg/utils/json"
)

// ProviderName 是 DeepSeek 供应商的名称标识符
const ProviderName = "deepseek"

// Config DeepSeek 供应商配置。
type Config struct {
	// BaseURL API 基础地址，默认为 DeepSeek 官方地址。
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	// APIKey API 密钥。
	APIKey string `json:"api_key" mapstructure:"api_key"`

	// Timeout 请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 最大重试次数。
	MaxRetries int `json:"max_retries" mapstructure:"max_retries"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "https://api.deepseek.com/v1",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// Provider DeepSeek 供应商实现。
type Provider struct {
	config *Config
	client *httpclient.Client
}

var _ llm.Provider = (*Provider)(nil)

// NewProvider 创建 DeepSeek 供应商。APIKey 为空时返回 ErrMissingAPIKey。
func NewProvider(cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.APIKey == "" {
		return nil, llm.ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Provider{
		config: cfg,
		client: httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
	}, nil
}

// Name 返回供应商名称。
func (p *Provider) Name() string {
	return ProviderName
}

// chatRequest DeepSeek chat API 请求体（OpenAI 兼容）。
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse DeepSeek chat API 响应体（OpenAI 兼容）。
type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Generate 执行一次生成调用。
// 后端返回零个 choice 或空文本时返回空字符串，不视为错误。
func (p *Provider) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	chatMessages := make([]chatMessage, len(req.Messages))
	for i, msg := range req.Messages {
		chatMessages[i] = chatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}
	}

	reqBody := chatRequest{
		Model:       req.Model,
		Messages:    chatMessages,
		Stream:      false,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &llm.ProviderError{Provider: ProviderName, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &llm.ProviderError{Provider: ProviderName, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	var chatResp chatResponse
	if err := p.client.DoJSON(httpReq, &chatResp); err != nil {
		return nil, &llm.ProviderError{Provider: ProviderName, Err: err}
	}

	resp := &llm.GenerateResponse{}
	if len(chatResp.Choices) > 0 {
		resp.Text = chatResp.Choices[0].Message.Content
	}
	if chatResp.Usage != nil {
		resp.Usage = &llm.TokenUsage{
			PromptTokens:     chatResp.Usage.PromptTokens,
			CompletionTokens: chatResp.Usage.CompletionTokens,
			TotalTokens:      chatResp.Usage.TotalTokens,
		}
	}
	return resp, nil
}
