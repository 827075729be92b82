package ai_test

import (
	"context"
	"errors"
	"testing"

	"form-ai-queue/internal/domain"
	"form-ai-queue/internal/domain/ports/adapter"
	ai "form-ai-queue/internal/infra/adapters/ai"
)

type stubAI struct {
	name      string
	calls     int
	lastModel string
}

func (s *stubAI) Name() string { return s.name }
func (s *stubAI) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return adapter.ModelInfo{Name: model}, nil
}
func (s *stubAI) Generate(ctx context.Context, req adapter.GenerateRequest) (*adapter.GenerateResult, error) {
	s.calls++
	s.lastModel = req.Model
	return &adapter.GenerateResult{Text: "ok", Usage: adapter.Usage{CompletionTokens: 1}}, nil
}

func TestRouting_ExplicitProvider_Heuristics_And_Fallback(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	open := &stubAI{name: "openai"}
	claude := &stubAI{name: "anthropic"}
	gem := &stubAI{name: "gemini"}

	m := ai.NewMultiAIAdapter("openai", map[string]adapter.AIServiceAdapter{
		"openai": open, "anthropic": claude, "gemini": gem,
	})

	t.Run("should honour explicit provider over model name", func(t *testing.T) {
		a, err := m.Resolve("Gemini", "gpt-4o")
		if err != nil || a != gem {
			t.Fatalf("explicit provider should route to gemini, got %v err %v", a, err)
		}
	})

	t.Run("should infer provider from model prefix", func(t *testing.T) {
		_, _ = m.Generate(ctx, adapter.GenerateRequest{Model: "claude-3-5-sonnet-latest"})
		if claude.calls != 1 {
			t.Fatalf("claude-* should go to anthropic")
		}
		_, _ = m.Generate(ctx, adapter.GenerateRequest{Model: "gemini-1.5-flash"})
		if gem.calls != 1 {
			t.Fatalf("gemini-* should go to gemini")
		}
		_, _ = m.Generate(ctx, adapter.GenerateRequest{Model: "o3-mini"})
		if open.calls != 1 {
			t.Fatalf("o3-* should go to openai")
		}
	})

	t.Run("should use default provider for unknown models", func(t *testing.T) {
		before := open.calls
		_, _ = m.Generate(ctx, adapter.GenerateRequest{Model: "mystery"})
		if open.calls != before+1 {
			t.Fatalf("unknown model should go to default provider (openai)")
		}
	})

	t.Run("should return a permanent error for unregistered providers", func(t *testing.T) {
		_, err := m.Resolve("mistral", "")
		if !errors.Is(err, domain.ErrProviderNotConfigured) || !domain.IsPermanent(err) {
			t.Fatalf("expected permanent ErrProviderNotConfigured, got %v", err)
		}
	})
}

func TestLimitedAI_PassesThrough(t *testing.T) {
	inner := &stubAI{name: "openai"}
	l := ai.NewLimitedAI(inner, 2)
	if l.Name() != "openai" {
		t.Fatalf("name should pass through, got %q", l.Name())
	}
	if _, err := l.Generate(context.Background(), adapter.GenerateRequest{Model: "gpt-4o"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected inner to be called once, got %d", inner.calls)
	}
	if ai.NewLimitedAI(inner, 0) != adapter.AIServiceAdapter(inner) {
		t.Fatalf("limit 0 should return inner unchanged")
	}
}
