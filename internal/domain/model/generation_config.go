package model

import "time"

// GenerationConfig is the stored prompt configuration a job's target_id points at.
// Completion fields are pointers: nil means "not set, use the default".
type GenerationConfig struct {
	ID             string
	Name           string
	Provider       string
	Model          string
	SystemPrompt   string
	PromptTemplate string
	Temperature    float64
	MaxTokens      int
	ChunkSize      int // 0 = provider profile default
	EnableChunking bool

	CompletionMarker         *string
	MinContentLength         *int
	CompletionWordCount      *int
	CompletionKeywords       *string
	EnableSmartCompletion    *bool
	UseTokenPercentage       *bool
	TokenCompletionThreshold *int
	ForcedStopMargin         *int

	CreatedAt time.Time
	UpdatedAt time.Time
}
