// Package options contains flags and options for initializing the study
// assistant.
package options

import (
	"errors"
	"fmt"

	"github.com/kart-io/studyrag/internal/pkg/fusion"
	appopts "github.com/kart-io/studyrag/pkg/options/app"
	assistantopts "github.com/kart-io/studyrag/pkg/options/assistant"
	llmopts "github.com/kart-io/studyrag/pkg/options/llm"
	logopts "github.com/kart-io/studyrag/pkg/options/logger"
	milvusopts "github.com/kart-io/studyrag/pkg/options/milvus"
	redisopts "github.com/kart-io/studyrag/pkg/options/redis"
)

// Store drivers.
const (
	StoreMilvus = "milvus"
	StoreMemory = "memory"
)

var _ appopts.CliOptions = (*ServerOptions)(nil)

// ServerOptions contains the configuration options for the assistant.
type ServerOptions struct {
	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// MilvusOptions contains Milvus database configuration.
	MilvusOptions *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// RedisOptions contains Redis configuration for the search cache.
	RedisOptions *redisopts.Options `json:"redis" mapstructure:"redis"`

	// LLMOptions contains provider credentials and model selection.
	LLMOptions *llmopts.Options `json:"llm" mapstructure:"llm"`

	// AssistantOptions contains retrieval pipeline configuration.
	AssistantOptions *assistantopts.Options `json:"assistant" mapstructure:"assistant"`

	// StoreDriver selects the vector store backend (milvus or memory).
	StoreDriver string `json:"store-driver" mapstructure:"store-driver"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		LogOptions:       logopts.NewOptions(),
		MilvusOptions:    milvusopts.NewOptions(),
		RedisOptions:     redisopts.NewOptions(),
		LLMOptions:       llmopts.NewOptions(),
		AssistantOptions: assistantopts.NewOptions(),
		StoreDriver:      StoreMilvus,
	}
}

// Flags returns flags for a specific server by section name.
func (o *ServerOptions) Flags() (fss appopts.NamedFlagSets) {
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.MilvusOptions.AddFlags(fss.FlagSet("milvus"))
	o.RedisOptions.AddFlags(fss.FlagSet("redis"))
	o.LLMOptions.AddFlags(fss.FlagSet("llm"))
	o.AssistantOptions.AddFlags(fss.FlagSet("assistant"))

	fs := fss.FlagSet("misc")
	fs.StringVar(&o.StoreDriver, "store-driver", o.StoreDriver, "Vector store backend (milvus|memory).")

	return fss
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	if err := o.LogOptions.Complete(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := o.LLMOptions.Complete(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	return nil
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	var errs []error

	if err := o.LogOptions.Validate(); err != nil {
		errs = append(errs, err)
	}
	if o.StoreDriver == StoreMilvus {
		errs = append(errs, o.MilvusOptions.Validate()...)
	}
	if err := o.RedisOptions.Validate(); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, o.LLMOptions.Validate()...)
	errs = append(errs, o.AssistantOptions.Validate()...)

	// 融合权重配置在启动时整体校验
	errs = append(errs, o.FusionConfig().Validate()...)

	if o.StoreDriver != StoreMilvus && o.StoreDriver != StoreMemory {
		errs = append(errs, fmt.Errorf("store-driver must be %q or %q", StoreMilvus, StoreMemory))
	}

	return errors.Join(errs...)
}

// FusionConfig builds the score fusion configuration from the assistant
// options. Sparse weights derive from the dense weights so each intent's
// blend sums to 1.
func (o *ServerOptions) FusionConfig() *fusion.Config {
	a := o.AssistantOptions
	weights := make(map[string]fusion.Weights, len(a.DenseWeights))
	for intent, dense := range a.DenseWeights {
		weights[intent] = fusion.Weights{Dense: float32(dense), Sparse: float32(1 - dense)}
	}
	return &fusion.Config{
		PrefilterWidth: a.PrefilterWidth,
		Weights:        weights,
		Fallback: fusion.Weights{
			Dense:  float32(a.FallbackDenseWeight),
			Sparse: float32(1 - a.FallbackDenseWeight),
		},
	}
}
