package ai

import (
	"context"

	"form-ai-queue/internal/domain/ports/adapter"
)

// Compile-time check
var _ adapter.AIServiceAdapter = (*limitedAI)(nil)

type limitedAI struct {
	inner adapter.AIServiceAdapter
	sem   chan struct{}
}

// NewLimitedAI caps concurrent Generate calls across every job sharing inner.
func NewLimitedAI(inner adapter.AIServiceAdapter, maxConcurrent int) adapter.AIServiceAdapter {
	if maxConcurrent <= 0 {
		return inner
	}
	return &limitedAI{
		inner: inner,
		sem:   make(chan struct{}, maxConcurrent),
	}
}

func (l *limitedAI) Name() string { return l.inner.Name() }

func (l *limitedAI) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return l.inner.GetModelInfo(model)
}

func (l *limitedAI) Generate(ctx context.Context, req adapter.GenerateRequest) (*adapter.GenerateResult, error) {
	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, adapter.NewProviderError(l.inner.Name(), adapter.KindTransport, 0, "waiting for provider slot", ctx.Err())
	}
	defer func() { <-l.sem }()
	return l.inner.Generate(ctx, req)
}
