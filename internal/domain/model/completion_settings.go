package model

import "strings"

const (
	DefaultCompletionMarker         = "<!-- GENERATION_COMPLETE -->"
	DefaultMinContentLength         = 1000
	DefaultCompletionWordCount      = 500
	DefaultCompletionKeywords       = "in conclusion,conclusion,summary,final thoughts,next steps"
	DefaultTokenCompletionThreshold = 70
)

// CompletionSettings parameterize the chunk controller's stop decision.
// A value is immutable for the duration of one generation session.
type CompletionSettings struct {
	CompletionMarker         string
	MinContentLength         int
	CompletionWordCount      int
	CompletionKeywords       string
	EnableSmartCompletion    bool
	UseTokenPercentage       bool
	TokenCompletionThreshold int
	// ForcedStopMargin is added to TokenCompletionThreshold to get the hard
	// stop percentage. 0 defers to the provider profile.
	ForcedStopMargin int
}

// DefaultCompletionSettings returns the documented defaults.
func DefaultCompletionSettings() CompletionSettings {
	return CompletionSettings{
		CompletionMarker:         DefaultCompletionMarker,
		MinContentLength:         DefaultMinContentLength,
		CompletionWordCount:      DefaultCompletionWordCount,
		CompletionKeywords:       DefaultCompletionKeywords,
		EnableSmartCompletion:    true,
		UseTokenPercentage:       true,
		TokenCompletionThreshold: DefaultTokenCompletionThreshold,
	}
}

// Keywords splits the comma list, lowercased, blanks dropped.
func (s CompletionSettings) Keywords() []string {
	parts := strings.Split(s.CompletionKeywords, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
