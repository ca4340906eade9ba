package deepseek

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kart-io/studyrag/pkg/llm"
)

const testAPIKey = "test-key"

func TestNewProviderRequiresAPIKey(t *testing.T) {
	_, err := NewProvider(&Config{})
	if !errors.Is(err, llm.ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}

	p, err := NewProvider(&Config{APIKey: testAPIKey})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != ProviderName {
		t.Errorf("expected name %s, got %s", ProviderName, p.Name())
	}
	if p.config.BaseURL != "https://api.deepseek.com/v1" {
		t.Errorf("unexpected default base url %s", p.config.BaseURL)
	}
}

func TestGenerate(t *testing.T) {
	var gotReq chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer "+testAPIKey {
			t.Errorf("unexpected auth header %s", auth)
		}
		_ = json.NewDecoder(r.Body).Decode(&gotReq)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "ds-1",
			"model": gotReq.Model,
			"choices": []map[string]any{
				{"index": 0, "message": map[string]string{"role": "assistant", "content": "olá"}, "finish_reason": "stop"},
			},
			"usage": map[string]int{"prompt_tokens": 8, "completion_tokens": 2, "total_tokens": 10},
		})
	}))
	defer server.Close()

	p, err := NewProvider(&Config{APIKey: testAPIKey, BaseURL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := p.Generate(context.Background(), &llm.GenerateRequest{
		Model: "deepseek-chat",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: "oi"},
		},
		MaxTokens:   512,
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}

	if resp.Text != "olá" {
		t.Errorf("expected text olá, got %q", resp.Text)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 10 {
		t.Errorf("expected 10 total tokens, got %+v", resp.Usage)
	}
	// 与 OpenAI gpt-5 系列不同，DeepSeek 走 max_tokens + temperature
	if gotReq.MaxTokens != 512 {
		t.Errorf("expected max_tokens 512, got %d", gotReq.MaxTokens)
	}
	if gotReq.Temperature != 0.7 {
		t.Errorf("expected temperature 0.7, got %v", gotReq.Temperature)
	}
}

func TestGenerateEmptyChoicesIsNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "ds-2", "choices": []any{}})
	}))
	defer server.Close()

	p, _ := NewProvider(&Config{APIKey: testAPIKey, BaseURL: server.URL})

	resp, err := p.Generate(context.Background(), &llm.GenerateRequest{
		Model:    "deepseek-chat",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("empty choices should not be an error, got %v", err)
	}
	if resp.Text != "" {
		t.Errorf("expected empty text, got %q", resp.Text)
	}
}

func TestGenerateBackendError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"message": "rate limited"}}`))
	}))
	defer server.Close()

	p, _ := NewProvider(&Config{APIKey: testAPIKey, BaseURL: server.URL})

	_, err := p.Generate(context.Background(), &llm.GenerateRequest{
		Model:    "deepseek-chat",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error on 429")
	}
	var perr *llm.ProviderError
	if !errors.As(err, &perr) || perr.Provider != ProviderName {
		t.Errorf("expected deepseek ProviderError, got %v", err)
	}
}
