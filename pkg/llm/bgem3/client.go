// Package bgem3 提供 BGE-M3 嵌入服务的 HTTP 客户端。
// 服务同时产出稠密向量与词法稀疏向量，一次调用即可批量嵌入。
package bgem3

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kart-io/studyrag/pkg/llm"
	"github.com/kart-io/studyrag/pkg/utils/httpclient"
	"github.com/kart-io/studyrag/pkg/utils/json"
)

// ProviderName 是 BGE-M3 嵌入供应商的名称标识符
const ProviderName = "bge-m3"

// Config 嵌入客户端配置。
type Config struct {
	// BaseURL 嵌入服务地址。
	BaseURL string `json:"base_url" mapstructure:"base_url"`

	// Timeout 请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 最大重试次数。
	MaxRetries int `json:"max_retries" mapstructure:"max_retries"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:8002",
		Timeout:    60 * time.Second,
		MaxRetries: 3,
	}
}

// Client BGE-M3 嵌入服务客户端。
type Client struct {
	config *Config
	client *httpclient.Client
}

var _ llm.EmbeddingProvider = (*Client)(nil)

// NewClient 创建嵌入客户端。
func NewClient(cfg *Config) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		config: cfg,
		client: httpclient.NewClient(cfg.Timeout, cfg.MaxRetries),
	}
}

// Name 返回供应商名称。
func (c *Client) Name() string {
	return ProviderName
}

// embedRequest 嵌入服务请求体。
type embedRequest struct {
	Texts        []string `json:"texts"`
	ReturnSparse bool     `json:"return_sparse"`
}

// embedResponse 嵌入服务响应体。
// 稀疏向量的键是词项 id 的十进制字符串。
type embedResponse struct {
	DenseEmbeddings  [][]float32          `json:"dense_embeddings"`
	SparseEmbeddings []map[string]float32 `json:"sparse_embeddings"`
}

// EmbedBatch 批量嵌入。结果与 texts 一一对应且保序；
// returnSparse 为 true 时同时返回稀疏向量。
func (c *Client) EmbedBatch(ctx context.Context, texts []string, returnSparse bool) (*llm.EmbedBatch, error) {
	if len(texts) == 0 {
		return &llm.EmbedBatch{}, nil
	}

	body, err := json.Marshal(embedRequest{Texts: texts, ReturnSparse: returnSparse})
	if err != nil {
		return nil, fmt.Errorf("bgem3: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("bgem3: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var resp embedResponse
	if err := c.client.DoJSON(req, &resp); err != nil {
		return nil, fmt.Errorf("bgem3: embed batch: %w", err)
	}

	if len(resp.DenseEmbeddings) != len(texts) {
		return nil, fmt.Errorf("bgem3: got %d dense embeddings for %d texts", len(resp.DenseEmbeddings), len(texts))
	}

	out := &llm.EmbedBatch{Dense: resp.DenseEmbeddings}
	if returnSparse && len(resp.SparseEmbeddings) > 0 {
		out.Sparse = make([]llm.SparseVector, len(resp.SparseEmbeddings))
		for i, raw := range resp.SparseEmbeddings {
			vec := make(llm.SparseVector, len(raw))
			for k, v := range raw {
				id, err := strconv.ParseInt(k, 10, 64)
				if err != nil {
					return nil, fmt.Errorf("bgem3: bad sparse term id %q: %w", k, err)
				}
				vec[id] = v
			}
			out.Sparse[i] = vec
		}
	}
	return out, nil
}
