// File: internal/usecase/chunk_profile.go
package usecase

import (
	"sort"
	"strings"

	"form-ai-queue/internal/config"
)

// ChunkProfile is the per-provider parameter record the chunk controller runs on.
// Every numeric difference between providers lives here, not in the loop.
type ChunkProfile struct {
	Provider         string
	DefaultChunkSize int
	ModelChunkSizes  map[string]int // model-name prefix -> chunk size
	FirstChunkBoost  float64
	TaperFactor      float64
	MaxChunks        int // hard cap on iterations
	ExtraChunks      int // allowance over ceil(target/size)
	MinChunkTokens   int
	HistoryWindow    int // trailing messages kept after the head
	NoSmartStopRatio float64
	ForcedStopMargin int // percentage points over the threshold
	AssistantRole    string
}

func DefaultProfiles() map[string]ChunkProfile {
	return map[string]ChunkProfile{
		"openai": {
			Provider:         "openai",
			DefaultChunkSize: 4000,
			ModelChunkSizes: map[string]int{
				"gpt-4o": 6000, "gpt-4o-mini": 6000, "gpt-4": 3000, "gpt-3.5-turbo": 3000,
			},
			FirstChunkBoost:  1.1,
			TaperFactor:      0.9,
			MaxChunks:        50,
			ExtraChunks:      2,
			MinChunkTokens:   100,
			HistoryWindow:    6,
			NoSmartStopRatio: 0.95,
			ForcedStopMargin: 10,
			AssistantRole:    "assistant",
		},
		"anthropic": {
			Provider:         "anthropic",
			DefaultChunkSize: 4000,
			ModelChunkSizes: map[string]int{
				"claude-3-5-sonnet": 6000, "claude-3-haiku": 3000, "claude-3-opus": 3000,
			},
			FirstChunkBoost:  1.1,
			TaperFactor:      0.9,
			MaxChunks:        35,
			ExtraChunks:      2,
			MinChunkTokens:   500,
			HistoryWindow:    8,
			NoSmartStopRatio: 0.90,
			ForcedStopMargin: 15,
			AssistantRole:    "assistant",
		},
		"gemini": {
			Provider:         "gemini",
			DefaultChunkSize: 8000,
			ModelChunkSizes: map[string]int{
				"gemini-1.5-pro": 8000, "gemini-1.5-flash": 8000, "gemini-2.0-flash": 8000,
			},
			FirstChunkBoost:  1.0,
			TaperFactor:      0.9,
			MaxChunks:        100,
			ExtraChunks:      2,
			MinChunkTokens:   2000,
			HistoryWindow:    20,
			NoSmartStopRatio: 0.95,
			ForcedStopMargin: 15,
			AssistantRole:    "model",
		},
	}
}

// ProfilesWithOverrides returns the built-in profiles with non-zero config
// values layered on top. Unknown providers get the openai profile as a base.
func ProfilesWithOverrides(overrides map[string]config.ProfileOverride) map[string]ChunkProfile {
	profiles := DefaultProfiles()
	for name, o := range overrides {
		name = strings.ToLower(name)
		p, ok := profiles[name]
		if !ok {
			p = profiles["openai"]
			p.Provider = name
		}
		profiles[name] = p.apply(o)
	}
	return profiles
}

func (p ChunkProfile) apply(o config.ProfileOverride) ChunkProfile {
	if o.DefaultChunkSize > 0 {
		p.DefaultChunkSize = o.DefaultChunkSize
	}
	if len(o.ModelChunkSizes) > 0 {
		sizes := make(map[string]int, len(p.ModelChunkSizes)+len(o.ModelChunkSizes))
		for k, v := range p.ModelChunkSizes {
			sizes[k] = v
		}
		for k, v := range o.ModelChunkSizes {
			sizes[strings.ToLower(k)] = v
		}
		p.ModelChunkSizes = sizes
	}
	if o.FirstChunkBoost > 0 {
		p.FirstChunkBoost = o.FirstChunkBoost
	}
	if o.TaperFactor > 0 {
		p.TaperFactor = o.TaperFactor
	}
	if o.MaxChunks > 0 {
		p.MaxChunks = o.MaxChunks
	}
	if o.ExtraChunks > 0 {
		p.ExtraChunks = o.ExtraChunks
	}
	if o.MinChunkTokens > 0 {
		p.MinChunkTokens = o.MinChunkTokens
	}
	if o.HistoryWindow > 0 {
		p.HistoryWindow = o.HistoryWindow
	}
	if o.NoSmartStopRatio > 0 {
		p.NoSmartStopRatio = o.NoSmartStopRatio
	}
	if o.ForcedStopMargin > 0 {
		p.ForcedStopMargin = o.ForcedStopMargin
	}
	if o.AssistantRole != "" {
		p.AssistantRole = o.AssistantRole
	}
	return p
}

// ChunkSize picks the base chunk size: explicit override, then the longest
// matching model prefix, then the profile default.
func (p ChunkProfile) ChunkSize(model string, override int) int {
	if override > 0 {
		return override
	}
	m := strings.ToLower(model)
	keys := make([]string, 0, len(p.ModelChunkSizes))
	for k := range p.ModelChunkSizes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	for _, k := range keys {
		if strings.HasPrefix(m, k) {
			return p.ModelChunkSizes[k]
		}
	}
	if p.DefaultChunkSize > 0 {
		return p.DefaultChunkSize
	}
	return 4000
}

// MaxChunksFor bounds the loop: enough calls to cover the budget plus a small
// allowance, never more than the hard cap.
func (p ChunkProfile) MaxChunksFor(target, chunkSize int) int {
	if chunkSize <= 0 {
		chunkSize = 1
	}
	n := (target+chunkSize-1)/chunkSize + p.ExtraChunks
	if n < 1 {
		n = 1
	}
	if p.MaxChunks > 0 && n > p.MaxChunks {
		n = p.MaxChunks
	}
	return n
}

// sizeFor returns the output budget for one chunk given progress so far.
func (p ChunkProfile) sizeFor(base, index, used, target int) int {
	size := float64(base)
	switch {
	case index == 0 && p.FirstChunkBoost > 0:
		size *= p.FirstChunkBoost
	case used > target/2 && p.TaperFactor > 0:
		size *= p.TaperFactor
	}
	n := int(size)
	if remaining := target - used; n > remaining {
		n = remaining
	}
	return n
}
