package usecase

import (
	"form-ai-queue/internal/domain/model"
)

type StopReason string

const (
	StopMarker      StopReason = "marker"
	StopTokenRatio  StopReason = "token_ratio"
	StopKeyword     StopReason = "keyword_ending"
	StopGraceful    StopReason = "threshold_natural_end"
	StopForced      StopReason = "forced_threshold"
	StopBudget      StopReason = "budget_exhausted"
	StopMaxChunks   StopReason = "max_chunks"
	StopEmptyChunk  StopReason = "empty_chunk"
	StopProviderErr StopReason = "provider_error"
	StopSingleCall  StopReason = "single_call"
)

type stopInput struct {
	rawChunk    string // as returned by the provider
	accumulated string // cleaned text so far, including this chunk
	used        int
	target      int
}

// evaluateStop decides whether the session ends after the current chunk.
//
// Order: marker; budget ratio when smart completion is off; the forced
// ceiling when token percentage is on; too short to be done; word count with
// a keyword near a natural ending; threshold with a natural keyword ending.
func evaluateStop(p ChunkProfile, s model.CompletionSettings, in stopInput) (bool, StopReason) {
	if re := markerPattern(s.CompletionMarker); re != nil && re.MatchString(in.rawChunk) {
		return true, StopMarker
	}

	if !s.EnableSmartCompletion {
		ratio := p.NoSmartStopRatio
		if ratio <= 0 {
			ratio = 0.95
		}
		if float64(in.used) >= float64(in.target)*ratio {
			return true, StopTokenRatio
		}
		return false, ""
	}

	pct := 0.0
	if in.target > 0 {
		pct = float64(in.used) / float64(in.target) * 100
	}
	threshold := float64(s.TokenCompletionThreshold)
	if s.UseTokenPercentage && pct >= threshold+float64(forcedMargin(p, s)) {
		return true, StopForced
	}

	if len(visibleText(in.accumulated)) < s.MinContentLength {
		return false, ""
	}

	keywords := s.Keywords()
	naturalKeywordEnd := hasNaturalEnding(in.rawChunk) && keywordNearEnd(in.rawChunk, keywords)

	if wordCount(in.accumulated) > s.CompletionWordCount && naturalKeywordEnd {
		return true, StopKeyword
	}

	if s.UseTokenPercentage && pct >= threshold && naturalKeywordEnd {
		return true, StopGraceful
	}
	return false, ""
}

func forcedMargin(p ChunkProfile, s model.CompletionSettings) int {
	if s.ForcedStopMargin > 0 {
		return s.ForcedStopMargin
	}
	if p.ForcedStopMargin > 0 {
		return p.ForcedStopMargin
	}
	return 10
}
