package ai

import (
	"sort"
	"strings"
)

// outputLimits holds the per-model output ceilings a client clamps to.
// Ceilings are matched by longest model-name prefix.
type outputLimits struct {
	floor    int
	fallback int
	ceilings map[string]int
	prefixes []string
}

func newOutputLimits(floor, fallback int, ceilings map[string]int) outputLimits {
	prefixes := make([]string, 0, len(ceilings))
	for p := range ceilings {
		prefixes = append(prefixes, p)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	return outputLimits{floor: floor, fallback: fallback, ceilings: ceilings, prefixes: prefixes}
}

func (l outputLimits) ceiling(model string) int {
	m := strings.ToLower(strings.TrimSpace(model))
	for _, p := range l.prefixes {
		if strings.HasPrefix(m, p) {
			return l.ceilings[p]
		}
	}
	return l.fallback
}

// clamp bounds requested to [floor, ceiling(model)]. A non-positive request
// gets the ceiling so a missing budget never turns into 0.
func (l outputLimits) clamp(model string, requested int) int {
	c := l.ceiling(model)
	if requested <= 0 || requested > c {
		requested = c
	}
	if requested < l.floor {
		requested = l.floor
	}
	return requested
}

var (
	openAILimits = newOutputLimits(50, 4096, map[string]int{
		"gpt-4o":        16384,
		"gpt-4.1":       32768,
		"gpt-4-turbo":   4096,
		"gpt-4":         8192,
		"gpt-3.5-turbo": 4096,
		"gpt-5":         128000,
		"o1":            32768,
		"o3":            100000,
		"o4-mini":       100000,
	})

	anthropicLimits = newOutputLimits(100, 4096, map[string]int{
		"claude-3-5-":      8192,
		"claude-3-7-":      64000,
		"claude-sonnet-4":  64000,
		"claude-opus-4":    32000,
		"claude-3-":        4096,
		"claude-haiku-4":   64000,
	})

	geminiLimits = newOutputLimits(512, 8192, map[string]int{
		"gemini-1.5-": 8192,
		"gemini-2.0-": 8192,
		"gemini-2.5-": 65536,
	})
)
