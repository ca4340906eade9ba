// Package llm provides LLM provider configuration options.
package llm

import (
	"fmt"
	"time"

	"github.com/kart-io/studyrag/pkg/options"
	"github.com/spf13/pflag"
)

var _ options.IOptions = (*Options)(nil)

// Options 定义 LLM 供应商配置。同一进程可以同时持有多家供应商的凭据，
// 请求按模型名前缀路由到对应供应商。
type Options struct {
	// OpenAIAPIKey OpenAI API 密钥。
	OpenAIAPIKey string `json:"openai-api-key" mapstructure:"openai-api-key"`

	// OpenAIBaseURL OpenAI API 基础地址。
	OpenAIBaseURL string `json:"openai-base-url" mapstructure:"openai-base-url"`

	// OpenAIOrganization 组织 ID（可选）。
	OpenAIOrganization string `json:"openai-organization" mapstructure:"openai-organization"`

	// AnthropicAPIKey Anthropic API 密钥（可选，缺省时 claude 模型不可用）。
	AnthropicAPIKey string `json:"anthropic-api-key" mapstructure:"anthropic-api-key"`

	// DeepSeekAPIKey DeepSeek API 密钥（可选）。
	DeepSeekAPIKey string `json:"deepseek-api-key" mapstructure:"deepseek-api-key"`

	// Model 回答生成使用的模型。
	Model string `json:"model" mapstructure:"model"`

	// EnhancementModel 查询增强使用的模型（小而快）。
	EnhancementModel string `json:"enhancement-model" mapstructure:"enhancement-model"`

	// Temperature 生成温度。
	Temperature float64 `json:"temperature" mapstructure:"temperature"`

	// MaxTokens 单次生成的最大 token 数。
	MaxTokens int `json:"max-tokens" mapstructure:"max-tokens"`

	// Timeout 请求超时时间。
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxRetries 传输层最大重试次数。
	MaxRetries int `json:"max-retries" mapstructure:"max-retries"`
}

// NewOptions 创建默认 LLM 配置。
func NewOptions() *Options {
	return &Options{
		Model:            "gpt-5-mini",
		EnhancementModel: "gpt-5-nano",
		Temperature:      0.7,
		MaxTokens:        16384,
		Timeout:          120 * time.Second,
		MaxRetries:       3,
	}
}

// AddFlags adds flags for LLM options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.OpenAIAPIKey, options.Join(prefixes...)+"llm.openai-api-key", o.OpenAIAPIKey, "OpenAI API key.")
	fs.StringVar(&o.OpenAIBaseURL, options.Join(prefixes...)+"llm.openai-base-url", o.OpenAIBaseURL, "OpenAI API base URL (optional override).")
	fs.StringVar(&o.OpenAIOrganization, options.Join(prefixes...)+"llm.openai-organization", o.OpenAIOrganization, "OpenAI organization ID (optional).")
	fs.StringVar(&o.AnthropicAPIKey, options.Join(prefixes...)+"llm.anthropic-api-key", o.AnthropicAPIKey, "Anthropic API key (optional).")
	fs.StringVar(&o.DeepSeekAPIKey, options.Join(prefixes...)+"llm.deepseek-api-key", o.DeepSeekAPIKey, "DeepSeek API key (optional).")
	fs.StringVar(&o.Model, options.Join(prefixes...)+"llm.model", o.Model, "Model used for answer generation.")
	fs.StringVar(&o.EnhancementModel, options.Join(prefixes...)+"llm.enhancement-model", o.EnhancementModel, "Model used for query enhancement.")
	fs.Float64Var(&o.Temperature, options.Join(prefixes...)+"llm.temperature", o.Temperature, "Generation temperature.")
	fs.IntVar(&o.MaxTokens, options.Join(prefixes...)+"llm.max-tokens", o.MaxTokens, "Maximum tokens per generation.")
	fs.DurationVar(&o.Timeout, options.Join(prefixes...)+"llm.timeout", o.Timeout, "LLM request timeout.")
	fs.IntVar(&o.MaxRetries, options.Join(prefixes...)+"llm.max-retries", o.MaxRetries, "Maximum number of transport retries.")
}

// Validate validates the LLM options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Model == "" {
		errs = append(errs, fmt.Errorf("model is required"))
	}
	if o.EnhancementModel == "" {
		errs = append(errs, fmt.Errorf("enhancement-model is required"))
	}
	// 默认路由落在 OpenAI 上，密钥必须存在
	if o.OpenAIAPIKey == "" {
		errs = append(errs, fmt.Errorf("openai-api-key is required"))
	}
	if o.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("max-tokens must be positive"))
	}
	if o.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive"))
	}
	return errs
}

// Complete completes the LLM options with defaults.
func (o *Options) Complete() error {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	return nil
}
