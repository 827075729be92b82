// File: internal/infra/adapters/ai/gemini_adapter.go
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"

	"form-ai-queue/internal/domain/ports/adapter"
)

const ProviderGemini = "gemini"

var _ adapter.AIServiceAdapter = (*GeminiAdapter)(nil)

type GeminiAdapter struct {
	apiKey  string
	baseURL string
	timeout time.Duration
	limits  outputLimits

	once      sync.Once
	client    *genai.Client
	clientErr error
}

// NewGeminiAdapter defers client construction to the first call so a missing
// key surfaces as missing_credentials instead of a startup failure.
func NewGeminiAdapter(apiKey, baseURL string, timeout time.Duration) *GeminiAdapter {
	return &GeminiAdapter{apiKey: apiKey, baseURL: baseURL, timeout: timeout, limits: geminiLimits}
}

func (g *GeminiAdapter) Name() string { return ProviderGemini }

func (g *GeminiAdapter) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return adapter.ModelInfo{
		Name:            model,
		MaxOutputTokens: g.limits.ceiling(model),
		MinOutputTokens: g.limits.floor,
	}, nil
}

func (g *GeminiAdapter) getClient(ctx context.Context) (*genai.Client, error) {
	g.once.Do(func() {
		opts := genai.HTTPOptions{BaseURL: g.baseURL}
		if g.timeout > 0 {
			t := g.timeout
			opts.Timeout = &t
		}
		g.client, g.clientErr = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:      g.apiKey,
			Backend:     genai.BackendGeminiAPI,
			HTTPOptions: opts,
		})
	})
	return g.client, g.clientErr
}

func (g *GeminiAdapter) Generate(ctx context.Context, req adapter.GenerateRequest) (*adapter.GenerateResult, error) {
	if strings.TrimSpace(g.apiKey) == "" {
		return nil, missingCredentials(ProviderGemini)
	}
	client, err := g.getClient(ctx)
	if err != nil {
		return nil, adapter.NewProviderError(ProviderGemini, adapter.KindUnknown, 0, "create client", err)
	}

	maxTokens := g.limits.clamp(req.Model, req.MaxTokens)
	contents := toGenAIContents(req.Messages)
	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
		Temperature:     genai.Ptr(float32(req.Temperature)),
	}
	rawReq, _ := json.Marshal(struct {
		Model    string                       `json:"model"`
		Contents []*genai.Content             `json:"contents"`
		Config   *genai.GenerateContentConfig `json:"generationConfig"`
	}{req.Model, contents, cfg})

	resp, err := client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, classifyGeminiError(err)
	}
	rawResp, _ := json.Marshal(resp)

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, adapter.NewProviderError(ProviderGemini, adapter.KindContentFiltered, 0,
			"prompt blocked: "+string(resp.PromptFeedback.BlockReason), nil)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return nil, malformed(ProviderGemini, "no candidates in response")
	}
	cand := resp.Candidates[0]
	switch cand.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonProhibitedContent, genai.FinishReasonBlocklist, genai.FinishReasonSPII:
		return nil, adapter.NewProviderError(ProviderGemini, adapter.KindContentFiltered, 0,
			"candidate blocked: "+string(cand.FinishReason), nil)
	}

	var sb strings.Builder
	if cand.Content != nil {
		for _, p := range cand.Content.Parts {
			if p != nil && !p.Thought {
				sb.WriteString(p.Text)
			}
		}
	}

	u := adapter.Usage{}
	if resp.UsageMetadata != nil {
		u.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		u.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		u.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	model := resp.ModelVersion
	if model == "" {
		model = req.Model
	}
	return &adapter.GenerateResult{
		Text:         sb.String(),
		Usage:        u,
		Model:        model,
		FinishReason: string(cand.FinishReason),
		MaxTokens:    maxTokens,
		RawRequest:   rawReq,
		RawResponse:  rawResp,
	}, nil
}

// toGenAIContents folds system turns into the first user turn; Gemini history
// has only user and model roles.
func toGenAIContents(msgs []adapter.Message) []*genai.Content {
	var system []string
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		var role genai.Role = genai.RoleUser
		switch strings.ToLower(m.Role) {
		case adapter.RoleSystem:
			system = append(system, m.Content)
			continue
		case adapter.RoleAssistant, "model":
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(m.Content, role))
	}
	if len(system) > 0 {
		prefix := strings.Join(system, "\n\n")
		if len(out) > 0 && out[0].Role == string(genai.RoleUser) {
			out[0] = genai.NewContentFromText(prefix+"\n\n"+firstText(out[0]), genai.RoleUser)
		} else {
			out = append([]*genai.Content{genai.NewContentFromText(prefix, genai.RoleUser)}, out...)
		}
	}
	return out
}

func firstText(c *genai.Content) string {
	if c == nil || len(c.Parts) == 0 || c.Parts[0] == nil {
		return ""
	}
	return c.Parts[0].Text
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	var ptr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
	case errors.As(err, &ptr) && ptr != nil:
		apiErr = *ptr
	default:
		return adapter.NewProviderError(ProviderGemini, classifyTransport(err), 0, "", err)
	}
	kind := classifyStatus(apiErr.Code, apiErr.Status+" "+apiErr.Message)
	if apiErr.Status == "RESOURCE_EXHAUSTED" {
		kind = adapter.KindRateLimited
	}
	return adapter.NewProviderError(ProviderGemini, kind, apiErr.Code, apiErr.Message, err)
}
