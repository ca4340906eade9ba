package options

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/studyrag/internal/model"
	"github.com/kart-io/studyrag/internal/pkg/fusion"
)

func TestValidateRequiresOpenAIKey(t *testing.T) {
	opts := NewServerOptions()

	err := opts.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai-api-key")

	opts.LLMOptions.OpenAIAPIKey = "sk-test"
	assert.NoError(t, opts.Validate())
}

func TestValidateRejectsUnknownStoreDriver(t *testing.T) {
	opts := NewServerOptions()
	opts.LLMOptions.OpenAIAPIKey = "sk-test"
	opts.StoreDriver = "postgres"

	err := opts.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store-driver")
}

func TestMemoryDriverSkipsMilvusValidation(t *testing.T) {
	opts := NewServerOptions()
	opts.LLMOptions.OpenAIAPIKey = "sk-test"
	opts.StoreDriver = StoreMemory
	opts.MilvusOptions.Address = ""

	assert.NoError(t, opts.Validate())
}

func TestFusionConfigWeightsSumToOne(t *testing.T) {
	opts := NewServerOptions()

	cfg := opts.FusionConfig()
	require.Empty(t, cfg.Validate())

	for intent, w := range cfg.Weights {
		assert.InDelta(t, 1.0, float64(w.Dense+w.Sparse), 1e-6, intent)
	}
	assert.InDelta(t, 1.0, float64(cfg.Fallback.Dense+cfg.Fallback.Sparse), 1e-6)
}

func TestFusionConfigCoversCanonicalIntents(t *testing.T) {
	cfg := NewServerOptions().FusionConfig()

	// 权重表键必须与分类器输出的标签一一对应，
	// 键名错位会静默落到 fallback 权重
	want := []string{
		model.IntentQuestionAnswering,
		model.IntentSummarization,
		model.IntentCoding,
		model.IntentSearching,
	}
	require.Len(t, cfg.Weights, len(want))
	for _, intent := range want {
		assert.Contains(t, cfg.Weights, intent)
	}

	engine := fusion.NewEngine(cfg)
	assert.Equal(t, fusion.Weights{Dense: 0.4, Sparse: 0.6}, engine.WeightsFor(model.IntentCoding))
	assert.Equal(t, fusion.Weights{Dense: 0.7, Sparse: 0.3}, engine.WeightsFor(model.IntentSummarization))
}

func TestFusionConfigRejectsBadWeights(t *testing.T) {
	opts := NewServerOptions()
	opts.AssistantOptions.DenseWeights["question_answering"] = 1.4

	err := opts.Validate()
	require.Error(t, err)
}
