// File: internal/infra/adapters/ai/multi_adapter.go
package ai

import (
	"context"
	"fmt"
	"strings"

	"form-ai-queue/internal/domain"
	"form-ai-queue/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*MultiAIAdapter)(nil)

// MultiAIAdapter routes calls to a provider client by provider name, falling
// back to model-name heuristics and then the default provider.
type MultiAIAdapter struct {
	defaultProvider string
	byProvider      map[string]adapter.AIServiceAdapter
}

func NewMultiAIAdapter(defaultProvider string, byProvider map[string]adapter.AIServiceAdapter) *MultiAIAdapter {
	norm := make(map[string]adapter.AIServiceAdapter, len(byProvider))
	for k, v := range byProvider {
		if v != nil {
			norm[strings.ToLower(k)] = v
		}
	}
	return &MultiAIAdapter{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      norm,
	}
}

func (m *MultiAIAdapter) Name() string { return "multi" }

func (m *MultiAIAdapter) resolveProvider(provider, model string) string {
	if p := strings.ToLower(strings.TrimSpace(provider)); p != "" {
		return p
	}
	l := strings.ToLower(model)
	switch {
	case strings.HasPrefix(l, "gemini"):
		return ProviderGemini
	case strings.HasPrefix(l, "claude"):
		return ProviderAnthropic
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"), strings.HasPrefix(l, "o4"):
		return ProviderOpenAI
	default:
		return m.defaultProvider
	}
}

// Resolve returns the client registered for provider (or inferred from model).
// An unknown provider is a configuration error and is marked permanent.
func (m *MultiAIAdapter) Resolve(provider, model string) (adapter.AIServiceAdapter, error) {
	name := m.resolveProvider(provider, model)
	if a := m.byProvider[name]; a != nil {
		return a, nil
	}
	return nil, domain.Permanent(fmt.Errorf("%w: %q", domain.ErrProviderNotConfigured, name))
}

func (m *MultiAIAdapter) GetModelInfo(model string) (adapter.ModelInfo, error) {
	a, err := m.Resolve("", model)
	if err != nil {
		return adapter.ModelInfo{Name: model}, err
	}
	return a.GetModelInfo(model)
}

func (m *MultiAIAdapter) Generate(ctx context.Context, req adapter.GenerateRequest) (*adapter.GenerateResult, error) {
	a, err := m.Resolve("", req.Model)
	if err != nil {
		return nil, err
	}
	return a.Generate(ctx, req)
}
