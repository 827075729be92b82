package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"form-ai-queue/internal/domain/ports/adapter"
)

var _ adapter.AIServiceAdapter = (*NoopAIAdapter)(nil)

// NoopAIAdapter implements adapter.AIServiceAdapter for local/dev runs.
// It produces deterministic filler text sized to the requested budget and
// echoes the completion marker once enough turns have happened.
type NoopAIAdapter struct {
	name   string
	marker string
	// FinishAfter is the number of assistant turns after which the marker is emitted.
	FinishAfter int
	delay       time.Duration
}

func NewNoopAIAdapter(name, marker string) *NoopAIAdapter {
	return &NoopAIAdapter{name: name, marker: marker, FinishAfter: 2, delay: 100 * time.Millisecond}
}

func (a *NoopAIAdapter) Name() string { return a.name }

func (a *NoopAIAdapter) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return adapter.ModelInfo{Name: model, MaxOutputTokens: 4096, MinOutputTokens: 1}, nil
}

func (a *NoopAIAdapter) Generate(ctx context.Context, req adapter.GenerateRequest) (*adapter.GenerateResult, error) {
	// Simulate slight processing time and respect ctx
	select {
	case <-time.After(a.delay):
	case <-ctx.Done():
		return nil, adapter.NewProviderError(a.name, adapter.KindTransport, 0, "cancelled", ctx.Err())
	}

	turns := 0
	for _, m := range req.Messages {
		if m.Role == adapter.RoleAssistant || m.Role == "model" {
			turns++
		}
	}
	words := req.MaxTokens * 3 / 4
	if words <= 0 {
		words = 50
	}
	if words > 400 {
		words = 400
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "<p>Section %d.", turns+1)
	for i := 0; i < words; i++ {
		sb.WriteString(" lorem")
	}
	sb.WriteString(".</p>\n")
	if turns+1 >= a.FinishAfter && a.marker != "" {
		sb.WriteString("<p>In conclusion, this is a local development response.</p>\n")
		sb.WriteString(a.marker)
	}
	text := sb.String()
	out := words + 8
	return &adapter.GenerateResult{
		Text:         text,
		Usage:        adapter.Usage{PromptTokens: 10, CompletionTokens: out, TotalTokens: out + 10},
		Model:        req.Model,
		FinishReason: "stop",
		MaxTokens:    req.MaxTokens,
	}, nil
}
