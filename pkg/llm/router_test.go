package llm

import (
	"context"
	"errors"
	"testing"
)

type stubProvider struct {
	name string
	text string
	err  error
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Generate(_ context.Context, _ *GenerateRequest) (*GenerateResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &GenerateResponse{Text: s.text}, nil
}

func TestFamilyForModel(t *testing.T) {
	tests := []struct {
		model string
		want  Family
	}{
		{"gpt-5-mini", FamilyOpenAI},
		{"gpt-4o", FamilyOpenAI},
		{"text-davinci-003", FamilyOpenAI},
		{"claude-sonnet-4-20250514", FamilyAnthropic},
		{"deepseek-chat", FamilyDeepSeek},
		{"GPT-5-NANO", FamilyOpenAI},
		{"  claude-3-haiku", FamilyAnthropic},
		{"llama-3-70b", FamilyOpenAI},
		{"", FamilyOpenAI},
	}

	for _, tt := range tests {
		if got := FamilyForModel(tt.model); got != tt.want {
			t.Errorf("FamilyForModel(%q) = %s, want %s", tt.model, got, tt.want)
		}
	}
}

func TestRouterDispatch(t *testing.T) {
	router := NewRouter(map[Family]Provider{
		FamilyOpenAI:    &stubProvider{name: "openai", text: "from openai"},
		FamilyAnthropic: &stubProvider{name: "anthropic", text: "from anthropic"},
		FamilyDeepSeek:  &stubProvider{name: "deepseek", text: "from deepseek"},
	})

	tests := []struct {
		model string
		want  string
	}{
		{"gpt-5-mini", "from openai"},
		{"claude-sonnet-4-20250514", "from anthropic"},
		{"deepseek-reasoner", "from deepseek"},
		{"unknown-model", "from openai"},
	}

	for _, tt := range tests {
		resp, err := router.Generate(context.Background(), &GenerateRequest{Model: tt.model})
		if err != nil {
			t.Fatalf("Generate(%q) error: %v", tt.model, err)
		}
		if resp.Text != tt.want {
			t.Errorf("Generate(%q) = %q, want %q", tt.model, resp.Text, tt.want)
		}
	}
}

func TestRouterFallsBackToOpenAI(t *testing.T) {
	router := NewRouter(map[Family]Provider{
		FamilyOpenAI: &stubProvider{name: "openai", text: "fallback"},
	})

	resp, err := router.Generate(context.Background(), &GenerateRequest{Model: "claude-3-opus"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text != "fallback" {
		t.Errorf("expected fallback to openai family, got %q", resp.Text)
	}
}

func TestRouterNoProviders(t *testing.T) {
	router := NewRouter(nil)

	_, err := router.Generate(context.Background(), &GenerateRequest{Model: "gpt-4o"})
	if err == nil {
		t.Fatal("expected error when no family is registered")
	}
	var perr *ProviderError
	if !errors.As(err, &perr) {
		t.Errorf("expected *ProviderError, got %T", err)
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	inner := errors.New("backend down")
	err := &ProviderError{Provider: "openai", Err: inner}

	if !errors.Is(err, inner) {
		t.Error("errors.Is should see the wrapped error")
	}
	if err.Error() == "" {
		t.Error("expected non-empty error string")
	}
}

func TestGenerateResponseTotalTokens(t *testing.T) {
	var nilResp *GenerateResponse
	if nilResp.TotalTokens() != nil {
		t.Error("nil response should report nil tokens")
	}

	resp := &GenerateResponse{Text: "hi"}
	if resp.TotalTokens() != nil {
		t.Error("response without usage should report nil tokens")
	}

	resp.Usage = &TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
	got := resp.TotalTokens()
	if got == nil || *got != 15 {
		t.Errorf("expected 15 total tokens, got %v", got)
	}
}
