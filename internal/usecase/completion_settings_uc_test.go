//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"

	"form-ai-queue/internal/domain"
	"form-ai-queue/internal/domain/model"
)

func ptr[T any](v T) *T { return &v }

func TestSettingsFromConfig(t *testing.T) {
	t.Run("should return defaults for a nil config", func(t *testing.T) {
		if got := SettingsFromConfig(nil); got != model.DefaultCompletionSettings() {
			t.Errorf("unexpected settings %+v", got)
		}
	})

	t.Run("should keep explicit values", func(t *testing.T) {
		s := SettingsFromConfig(&model.GenerationConfig{
			CompletionMarker:         ptr(" <!-- DONE --> "),
			MinContentLength:         ptr(0),
			CompletionWordCount:      ptr(120),
			CompletionKeywords:       ptr("wrap-up"),
			EnableSmartCompletion:    ptr(false),
			UseTokenPercentage:       ptr(false),
			TokenCompletionThreshold: ptr(90),
			ForcedStopMargin:         ptr(5),
		})
		want := model.CompletionSettings{
			CompletionMarker:         "<!-- DONE -->",
			MinContentLength:         0,
			CompletionWordCount:      120,
			CompletionKeywords:       "wrap-up",
			EnableSmartCompletion:    false,
			UseTokenPercentage:       false,
			TokenCompletionThreshold: 90,
			ForcedStopMargin:         5,
		}
		if s != want {
			t.Errorf("got %+v, want %+v", s, want)
		}
	})

	t.Run("should replace blank and out-of-range values with defaults", func(t *testing.T) {
		s := SettingsFromConfig(&model.GenerationConfig{
			CompletionMarker:         ptr("   "),
			MinContentLength:         ptr(-1),
			CompletionKeywords:       ptr(""),
			TokenCompletionThreshold: ptr(150),
		})
		if s.CompletionMarker != model.DefaultCompletionMarker {
			t.Errorf("blank marker should default, got %q", s.CompletionMarker)
		}
		if s.MinContentLength != model.DefaultMinContentLength {
			t.Errorf("negative length should default, got %d", s.MinContentLength)
		}
		if s.CompletionKeywords != model.DefaultCompletionKeywords {
			t.Errorf("empty keywords should default, got %q", s.CompletionKeywords)
		}
		if s.TokenCompletionThreshold != model.DefaultTokenCompletionThreshold {
			t.Errorf("threshold 150 should default, got %d", s.TokenCompletionThreshold)
		}
	})
}

func TestCompletionSettingsUseCase_Resolve(t *testing.T) {
	repo := newMemConfigRepo(&model.GenerationConfig{ID: "cfg-1", UseTokenPercentage: ptr(false)})
	uc := NewCompletionSettingsUseCase(repo)

	t.Run("should resolve a stored config", func(t *testing.T) {
		s, err := uc.Resolve(context.Background(), "cfg-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if s.UseTokenPercentage || !s.EnableSmartCompletion {
			t.Errorf("unexpected settings %+v", s)
		}
	})

	t.Run("should report a missing config", func(t *testing.T) {
		if _, err := uc.Resolve(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	})
}

func TestCompletionSettingsKeywords(t *testing.T) {
	s := model.CompletionSettings{CompletionKeywords: " In Conclusion , ,Summary "}
	got := s.Keywords()
	if len(got) != 2 || got[0] != "in conclusion" || got[1] != "summary" {
		t.Errorf("unexpected keywords %q", got)
	}
}
