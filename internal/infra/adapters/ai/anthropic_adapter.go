package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"form-ai-queue/internal/domain/ports/adapter"
)

const ProviderAnthropic = "anthropic"

var _ adapter.AIServiceAdapter = (*AnthropicAdapter)(nil)

// AnthropicAdapter implements adapter.AIServiceAdapter on the Messages API.
type AnthropicAdapter struct {
	apiKey string
	client anthropic.Client
	limits outputLimits
}

// NewAnthropicAdapter mirrors NewOpenAIAdapter: SDK retries are off and an
// empty key is reported by Generate.
func NewAnthropicAdapter(apiKey, baseURL, version string, timeout time.Duration) *AnthropicAdapter {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if version != "" {
		opts = append(opts, option.WithHeader("anthropic-version", version))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &AnthropicAdapter{
		apiKey: apiKey,
		client: anthropic.NewClient(opts...),
		limits: anthropicLimits,
	}
}

func (a *AnthropicAdapter) Name() string { return ProviderAnthropic }

func (a *AnthropicAdapter) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return adapter.ModelInfo{
		Name:            model,
		MaxOutputTokens: a.limits.ceiling(model),
		MinOutputTokens: a.limits.floor,
	}, nil
}

type anthropicMessage struct {
	Role    string
	Content string
}

func (a *AnthropicAdapter) Generate(ctx context.Context, req adapter.GenerateRequest) (*adapter.GenerateResult, error) {
	if strings.TrimSpace(a.apiKey) == "" {
		return nil, missingCredentials(ProviderAnthropic)
	}
	maxTokens := a.limits.clamp(req.Model, req.MaxTokens)
	system, msgs := toAnthropicMessages(req.Messages)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(req.Model),
		MaxTokens:   int64(maxTokens),
		Messages:    toMessageParams(msgs),
		Temperature: anthropic.Float(req.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	rawReq, _ := json.Marshal(params)

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyAnthropicError(err)
	}
	if string(resp.StopReason) == "refusal" {
		return nil, adapter.NewProviderError(ProviderAnthropic, adapter.KindContentFiltered, 0, "model refused the request", nil)
	}
	if len(resp.Content) == 0 {
		return nil, malformed(ProviderAnthropic, "no content blocks in response")
	}
	var sb strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}

	in, out := int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)
	return &adapter.GenerateResult{
		Text: sb.String(),
		Usage: adapter.Usage{
			PromptTokens:     in,
			CompletionTokens: out,
			TotalTokens:      in + out,
		},
		Model:        string(resp.Model),
		FinishReason: string(resp.StopReason),
		MaxTokens:    maxTokens,
		RawRequest:   rawReq,
		RawResponse:  []byte(resp.RawJSON()),
	}, nil
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Error()
		kind := classifyStatus(apiErr.StatusCode, msg)
		if apiErr.StatusCode == 529 || strings.Contains(msg, "overloaded_error") || strings.Contains(msg, "rate_limit_error") {
			kind = adapter.KindRateLimited
		}
		return adapter.NewProviderError(ProviderAnthropic, kind, apiErr.StatusCode, msg, err)
	}
	var syn *json.SyntaxError
	var typ *json.UnmarshalTypeError
	if errors.As(err, &syn) || errors.As(err, &typ) {
		return adapter.NewProviderError(ProviderAnthropic, adapter.KindMalformedResponse, 0, "decode response", err)
	}
	return adapter.NewProviderError(ProviderAnthropic, classifyTransport(err), 0, "", err)
}

// toAnthropicMessages lifts system turns into the top-level system field and
// merges consecutive turns with the same role, which the API rejects.
func toAnthropicMessages(msgs []adapter.Message) (string, []anthropicMessage) {
	var system []string
	out := make([]anthropicMessage, 0, len(msgs))
	for _, m := range msgs {
		role := strings.ToLower(m.Role)
		switch role {
		case adapter.RoleSystem:
			system = append(system, m.Content)
			continue
		case adapter.RoleAssistant, "model":
			role = adapter.RoleAssistant
		default:
			role = adapter.RoleUser
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + m.Content
			continue
		}
		out = append(out, anthropicMessage{Role: role, Content: m.Content})
	}
	if len(out) > 0 && out[0].Role != adapter.RoleUser {
		out = append([]anthropicMessage{{Role: adapter.RoleUser, Content: "Continue."}}, out...)
	}
	return strings.Join(system, "\n\n"), out
}

func toMessageParams(msgs []anthropicMessage) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == adapter.RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
			continue
		}
		out = append(out, anthropic.NewUserMessage(block))
	}
	return out
}
