package ai

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"form-ai-queue/internal/domain/ports/adapter"
)

const ProviderOpenAI = "openai"

// Compile-time assurance this adapter satisfies the port
var _ adapter.AIServiceAdapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter implements adapter.AIServiceAdapter using the Chat Completions API.
type OpenAIAdapter struct {
	apiKey string
	client openai.Client
	limits outputLimits
}

// NewOpenAIAdapter accepts an empty key; Generate then reports missing_credentials.
// The SDK's own retries are disabled, retryingAI owns that policy.
func NewOpenAIAdapter(apiKey, baseURL string, timeout time.Duration) *OpenAIAdapter {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &OpenAIAdapter{
		apiKey: apiKey,
		client: openai.NewClient(opts...),
		limits: openAILimits,
	}
}

func (o *OpenAIAdapter) Name() string { return ProviderOpenAI }

func (o *OpenAIAdapter) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return adapter.ModelInfo{
		Name:            model,
		MaxOutputTokens: o.limits.ceiling(model),
		MinOutputTokens: o.limits.floor,
	}, nil
}

func (o *OpenAIAdapter) Generate(ctx context.Context, req adapter.GenerateRequest) (*adapter.GenerateResult, error) {
	if strings.TrimSpace(o.apiKey) == "" {
		return nil, missingCredentials(ProviderOpenAI)
	}
	maxTokens := o.limits.clamp(req.Model, req.MaxTokens)

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: toOpenAIMessages(req.Messages),
	}
	if usesCompletionTokens(req.Model) {
		// reasoning models reject max_tokens and custom temperature
		params.MaxCompletionTokens = openai.Int(int64(maxTokens))
	} else {
		params.MaxTokens = openai.Int(int64(maxTokens))
		params.Temperature = openai.Float(req.Temperature)
	}
	rawReq, _ := json.Marshal(params)

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, malformed(ProviderOpenAI, "no choices in response")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "content_filter" {
		return nil, adapter.NewProviderError(ProviderOpenAI, adapter.KindContentFiltered, 0, "response blocked by content filter", nil)
	}
	return &adapter.GenerateResult{
		Text: choice.Message.Content,
		Usage: adapter.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		MaxTokens:    maxTokens,
		RawRequest:   rawReq,
		RawResponse:  []byte(resp.RawJSON()),
	}, nil
}

func toOpenAIMessages(msgs []adapter.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case adapter.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case adapter.RoleAssistant, "model":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func usesCompletionTokens(model string) bool {
	m := strings.ToLower(model)
	return strings.HasPrefix(m, "o1") || strings.HasPrefix(m, "o3") ||
		strings.HasPrefix(m, "o4") || strings.HasPrefix(m, "gpt-5")
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = apiErr.Error()
		}
		kind := classifyStatus(apiErr.StatusCode, apiErr.Code+" "+msg)
		return adapter.NewProviderError(ProviderOpenAI, kind, apiErr.StatusCode, msg, err)
	}
	return adapter.NewProviderError(ProviderOpenAI, classifyTransport(err), 0, "", err)
}
