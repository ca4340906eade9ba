package intent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/studyrag/internal/model"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, model.IntentCoding, Normalize("coding"))
	assert.Equal(t, model.IntentSearching, Normalize("searching_for_information"))
	assert.Equal(t, model.IntentQuestionAnswering, Normalize("chit_chat"))
	assert.Equal(t, model.IntentQuestionAnswering, Normalize(""))
}

func TestClassify(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/classify", r.URL.Path)
		var req classifyRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "summarize chapter 3", req.Text)

		_ = json.NewEncoder(w).Encode(classifyResponse{Intent: "summarization", Confidence: 0.93})
	}))
	defer server.Close()

	c := NewHTTPClassifier(&Config{BaseURL: server.URL})

	got, err := c.Classify(context.Background(), "summarize chapter 3")
	require.NoError(t, err)
	assert.Equal(t, model.IntentSummarization, got)
}

func TestClassifyUnknownLabelNormalizes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(classifyResponse{Intent: "banter"})
	}))
	defer server.Close()

	c := NewHTTPClassifier(&Config{BaseURL: server.URL})

	got, err := c.Classify(context.Background(), "hello there")
	require.NoError(t, err)
	assert.Equal(t, model.IntentQuestionAnswering, got)
}

func TestClassifyServiceError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c := NewHTTPClassifier(&Config{BaseURL: server.URL, MaxRetries: 0})

	_, err := c.Classify(context.Background(), "hello")
	assert.Error(t, err)
}
