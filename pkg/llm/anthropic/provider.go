// Package anthropic 提供 Anthropic Claude 文本生成供应商实现。
// Messages API 要求 system 提示与对话消息分离，本实现在发送前自动拆分。
package anthropic

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kart-io/studyrag/pkg/llm"
	"github.com/kart-io/studyrag/pkg/utils/httpclient"
	"github.com/kart-io/studyrag/pkg/utils/json"
)

// ProviderName 是 Anthropic 供应商的名称标识符
const ProviderName = "anthropic"

// apiVersion Messages API 版本头。
const apiVersion = "2023-06-01"

// Config Anthropic 供应商配置。
type Config struct {
	// BaseURL API 基础地址，默认为 Anthropic 官方地址。
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
		BaseURL:    "https://api.anthropic.com/v1",
		Timeout:    120 * time.Second,
		MaxRetries: 3,
	}
}

// Provider Anthropic 供应商实现。
type Provider struct {
	config *Config
	client *httpclient.Client
}

var _ llm.Provider = (*Provider)(nil)

// NewProvider 创建 Anthropic 供应商。APIKey 为空时返回 ErrMissingAPIKey。
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

// messagesRequest Anthropic Messages API 请求体。
type messagesRequest struct {
	Model       string        `json:"model"`
	System      string        `json:"system,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messagesResponse Anthropic Messages API 响应体。
type messagesResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      *struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate 执行一次生成调用。
// system 消息合并进请求的 system 字段，其余消息按原顺序发送。
// 后端返回空 content 时返回空字符串，不视为错误。
func (p *Provider) Generate(ctx context.Context, req *llm.GenerateRequest) (*llm.GenerateResponse, error) {
	var system []string
	turns := make([]chatMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == llm.RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		turns = append(turns, chatMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	reqBody := messagesRequest{
		Model:       req.Model,
		System:      strings.Join(system, "\n\n"),
		Messages:    turns,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &llm.ProviderError{Provider: ProviderName, Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &llm.ProviderError{Provider: ProviderName, Err: err}
	}
	p.setHeaders(httpReq)

	var msgResp messagesResponse
	if err := p.client.DoJSON(httpReq, &msgResp); err != nil {
		return nil, &llm.ProviderError{Provider: ProviderName, Err: err}
	}

	resp := &llm.GenerateResponse{}
	var sb strings.Builder
	for _, block := range msgResp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	resp.Text = sb.String()

	if msgResp.Usage != nil {
		resp.Usage = &llm.TokenUsage{
			PromptTokens:     msgResp.Usage.InputTokens,
			CompletionTokens: msgResp.Usage.OutputTokens,
			TotalTokens:      msgResp.Usage.InputTokens + msgResp.Usage.OutputTokens,
		}
	}
	return resp, nil
}

// setHeaders 设置请求头。
func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", apiVersion)
}
