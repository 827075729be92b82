package adapter

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message represents a chat message in the provider-neutral shape.
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// ModelInfo describes a model's output limits as known to the client.
type ModelInfo struct {
	Name            string
	MaxOutputTokens int
	MinOutputTokens int
}

// Usage for a single generation call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type GenerateRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// GenerateResult carries the parsed output together with the raw wire payloads
// so callers can log them without the client keeping hidden state.
type GenerateResult struct {
	Text         string
	Usage        Usage
	Model        string
	FinishReason string
	// MaxTokens is the output budget actually sent after clamping.
	MaxTokens   int
	RawRequest  []byte
	RawResponse []byte
}

// AIServiceAdapter is the port for one LLM provider.
type AIServiceAdapter interface {
	// Name is the provider key ("openai", "anthropic", "gemini").
	Name() string
	GetModelInfo(model string) (ModelInfo, error)
	// Generate issues one generation call. Errors are *ProviderError.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

// TokenCounter estimates tokens for text when a provider omits usage.
type TokenCounter interface {
	CountText(model, text string) int
}
