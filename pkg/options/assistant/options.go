// Package assistant provides retrieval pipeline configuration options.
package assistant

import (
	"fmt"
	"time"

	"github.com/kart-io/studyrag/pkg/options"
	"github.com/spf13/pflag"
)

var _ options.IOptions = (*Options)(nil)

// Options 定义检索管线配置。DenseWeights 按意图给出稠密分数权重，
// 稀疏权重恒为 1 - dense，两者之和始终为 1。
type Options struct {
	// Subject 学习科目，注入提示词。
	Subject string `json:"subject" mapstructure:"subject"`

	// TopK 常规意图的检索条数。
	TopK int `json:"top-k" mapstructure:"top-k"`

	// TopKSearching searching_for_information 意图的检索条数。
	TopKSearching int `json:"top-k-searching" mapstructure:"top-k-searching"`

	// PrefilterWidth 稠密预筛候选宽度。
	PrefilterWidth int `json:"prefilter-width" mapstructure:"prefilter-width"`

	// FuzzyThreshold 书名模糊匹配阈值，(0,1]。
	FuzzyThreshold float64 `json:"fuzzy-threshold" mapstructure:"fuzzy-threshold"`

	// DenseWeights 按意图的稠密权重。
	DenseWeights map[string]float64 `json:"dense-weights" mapstructure:"dense-weights"`

	// FallbackDenseWeight 未知意图的稠密权重。
	FallbackDenseWeight float64 `json:"fallback-dense-weight" mapstructure:"fallback-dense-weight"`

	// CacheEnabled 是否启用检索结果缓存。
	CacheEnabled bool `json:"cache-enabled" mapstructure:"cache-enabled"`

	// CacheTTL 缓存条目存活时间。
	CacheTTL time.Duration `json:"cache-ttl" mapstructure:"cache-ttl"`

	// CacheKeyPrefix 缓存键前缀。
	CacheKeyPrefix string `json:"cache-key-prefix" mapstructure:"cache-key-prefix"`

	// EmbeddingURL BGE-M3 嵌入服务地址。
	EmbeddingURL string `json:"embedding-url" mapstructure:"embedding-url"`

	// IntentURL 意图分类服务地址。
	IntentURL string `json:"intent-url" mapstructure:"intent-url"`
}

// NewOptions 创建默认检索管线配置。
func NewOptions() *Options {
	return &Options{
		Subject:        "Machine Learning",
		TopK:           6,
		TopKSearching:  10,
		PrefilterWidth: 50,
		FuzzyThreshold: 0.6,
		// 键必须与意图分类器输出的标签一致
		DenseWeights: map[string]float64{
			"question_answering":        0.6,
			"summarization":             0.7,
			"coding":                    0.4,
			"searching_for_information": 0.5,
		},
		FallbackDenseWeight: 0.5,
		CacheEnabled:        true,
		CacheTTL:            time.Hour,
		CacheKeyPrefix:      "rag:search:",
		EmbeddingURL:        "http://localhost:8002",
		IntentURL:           "http://localhost:8001",
	}
}

// AddFlags adds flags for assistant options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Subject, options.Join(prefixes...)+"assistant.subject", o.Subject, "Study subject injected into prompts.")
	fs.IntVar(&o.TopK, options.Join(prefixes...)+"assistant.top-k", o.TopK, "Retrieval depth for regular intents.")
	fs.IntVar(&o.TopKSearching, options.Join(prefixes...)+"assistant.top-k-searching", o.TopKSearching, "Retrieval depth for the searching intent.")
	fs.IntVar(&o.PrefilterWidth, options.Join(prefixes...)+"assistant.prefilter-width", o.PrefilterWidth, "Dense prefilter candidate width.")
	fs.Float64Var(&o.FuzzyThreshold, options.Join(prefixes...)+"assistant.fuzzy-threshold", o.FuzzyThreshold, "Book name fuzzy match threshold.")
	fs.Float64Var(&o.FallbackDenseWeight, options.Join(prefixes...)+"assistant.fallback-dense-weight", o.FallbackDenseWeight, "Dense weight for unknown intents.")
	fs.BoolVar(&o.CacheEnabled, options.Join(prefixes...)+"assistant.cache-enabled", o.CacheEnabled, "Enable search result caching.")
	fs.DurationVar(&o.CacheTTL, options.Join(prefixes...)+"assistant.cache-ttl", o.CacheTTL, "Search cache entry TTL.")
	fs.StringVar(&o.CacheKeyPrefix, options.Join(prefixes...)+"assistant.cache-key-prefix", o.CacheKeyPrefix, "Search cache key prefix.")
	fs.StringVar(&o.EmbeddingURL, options.Join(prefixes...)+"assistant.embedding-url", o.EmbeddingURL, "BGE-M3 embedding service URL.")
	fs.StringVar(&o.IntentURL, options.Join(prefixes...)+"assistant.intent-url", o.IntentURL, "Intent classification service URL.")
}

// Validate validates the assistant options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top-k must be positive"))
	}
	if o.TopKSearching <= 0 {
		errs = append(errs, fmt.Errorf("top-k-searching must be positive"))
	}
	if o.PrefilterWidth <= 0 {
		errs = append(errs, fmt.Errorf("prefilter-width must be positive"))
	}
	if o.FuzzyThreshold <= 0 || o.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("fuzzy-threshold must be in (0, 1]"))
	}
	for intent, w := range o.DenseWeights {
		if w < 0 || w > 1 {
			errs = append(errs, fmt.Errorf("dense weight for intent %q must be in [0, 1]", intent))
		}
	}
	if o.FallbackDenseWeight < 0 || o.FallbackDenseWeight > 1 {
		errs = append(errs, fmt.Errorf("fallback-dense-weight must be in [0, 1]"))
	}
	if o.CacheEnabled && o.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache-ttl must be positive when caching is enabled"))
	}
	if o.EmbeddingURL == "" {
		errs = append(errs, fmt.Errorf("embedding-url is required"))
	}
	if o.IntentURL == "" {
		errs = append(errs, fmt.Errorf("intent-url is required"))
	}
	return errs
}
