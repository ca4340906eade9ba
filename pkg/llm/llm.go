// Package llm 提供统一的 LLM 供应商抽象层。
// 生成请求按模型名前缀路由到对应的供应商（OpenAI、Anthropic、DeepSeek）。
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Message 表示对话中的一条消息。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role 定义消息角色。
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TokenUsage 记录一次生成调用的 token 消耗。
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GenerateRequest 描述一次文本生成调用。
type GenerateRequest struct {
	// Messages 有序消息列表，可包含 system 消息。
	Messages []Message

	// Model 模型名称，决定路由到哪个供应商。
	Model string

	// Temperature 采样温度。部分模型不支持时由供应商忽略。
	Temperature float64

	// MaxTokens 最大生成 token 数。
	MaxTokens int
}

// GenerateResponse 文本生成结果。
// Text 可以合法地为空字符串；供应商不会将空响应视为错误，
// 是否重试由调用方决定。Usage 在后端未返回统计时为 nil。
type GenerateResponse struct {
	Text  string
	Usage *TokenUsage
}

// TotalTokens 返回总 token 数，无统计时返回 nil。
func (r *GenerateResponse) TotalTokens() *int {
	if r == nil || r.Usage == nil {
		return nil
	}
	n := r.Usage.TotalTokens
	return &n
}

// Provider 定义文本生成供应商接口。
type Provider interface {
	// Generate 执行一次生成调用。
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)

	// Name 返回供应商名称。
	Name() string
}

// SparseVector 词项 id 到非负权重的稀疏向量。
type SparseVector map[int64]float32

// EmbedBatch 批量嵌入结果，与输入文本一一对应且保序。
// Sparse 仅在请求稀疏向量时非 nil。
type EmbedBatch struct {
	Dense  [][]float32
	Sparse []SparseVector
}

// EmbeddingProvider 定义批量嵌入供应商接口。
type EmbeddingProvider interface {
	// EmbedBatch 为多个文本生成稠密向量，可选同时返回稀疏向量。
	EmbedBatch(ctx context.Context, texts []string, returnSparse bool) (*EmbedBatch, error)

	// Name 返回供应商名称。
	Name() string
}

// ErrMissingAPIKey 表示供应商缺少凭证，属于配置错误，
// 在供应商构造时快速失败。
var ErrMissingAPIKey = errors.New("llm: api key is required")

// ProviderError 包装生成后端返回的失败。
type ProviderError struct {
	// Provider 失败的供应商名称。
	Provider string
	// Err 底层错误。
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("llm provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
