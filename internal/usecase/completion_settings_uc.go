package usecase

import (
	"context"
	"fmt"
	"strings"

	"form-ai-queue/internal/domain/model"
	"form-ai-queue/internal/domain/ports/repository"
)

var _ CompletionSettingsUseCase = (*completionSettingsUC)(nil)

type CompletionSettingsUseCase interface {
	// Resolve returns fully defaulted settings for a generation config id.
	Resolve(ctx context.Context, targetID string) (model.CompletionSettings, error)
}

type completionSettingsUC struct {
	configs repository.GenerationConfigRepository
}

func NewCompletionSettingsUseCase(configs repository.GenerationConfigRepository) *completionSettingsUC {
	return &completionSettingsUC{configs: configs}
}

func (u *completionSettingsUC) Resolve(ctx context.Context, targetID string) (model.CompletionSettings, error) {
	cfg, err := u.configs.FindByID(ctx, nil, targetID)
	if err != nil {
		return model.CompletionSettings{}, fmt.Errorf("generation config %s: %w", targetID, err)
	}
	return SettingsFromConfig(cfg), nil
}

// SettingsFromConfig fills every unset or out-of-range field with its default.
func SettingsFromConfig(cfg *model.GenerationConfig) model.CompletionSettings {
	s := model.DefaultCompletionSettings()
	if cfg == nil {
		return s
	}
	if cfg.CompletionMarker != nil && strings.TrimSpace(*cfg.CompletionMarker) != "" {
		s.CompletionMarker = strings.TrimSpace(*cfg.CompletionMarker)
	}
	if cfg.MinContentLength != nil && *cfg.MinContentLength >= 0 {
		s.MinContentLength = *cfg.MinContentLength
	}
	if cfg.CompletionWordCount != nil && *cfg.CompletionWordCount >= 0 {
		s.CompletionWordCount = *cfg.CompletionWordCount
	}
	if cfg.CompletionKeywords != nil && strings.TrimSpace(*cfg.CompletionKeywords) != "" {
		s.CompletionKeywords = *cfg.CompletionKeywords
	}
	if cfg.EnableSmartCompletion != nil {
		s.EnableSmartCompletion = *cfg.EnableSmartCompletion
	}
	if cfg.UseTokenPercentage != nil {
		s.UseTokenPercentage = *cfg.UseTokenPercentage
	}
	if cfg.TokenCompletionThreshold != nil && *cfg.TokenCompletionThreshold > 0 && *cfg.TokenCompletionThreshold <= 100 {
		s.TokenCompletionThreshold = *cfg.TokenCompletionThreshold
	}
	if cfg.ForcedStopMargin != nil && *cfg.ForcedStopMargin > 0 {
		s.ForcedStopMargin = *cfg.ForcedStopMargin
	}
	return s
}
