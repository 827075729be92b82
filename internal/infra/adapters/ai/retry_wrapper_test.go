//go:build !integration

package ai

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"form-ai-queue/internal/domain/ports/adapter"
)

type scriptedAI struct {
	errs      []error
	calls     int
	maxTokens []int
}

func (s *scriptedAI) Name() string { return "scripted" }
func (s *scriptedAI) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return adapter.ModelInfo{Name: model, MaxOutputTokens: 4000}, nil
}
func (s *scriptedAI) Generate(ctx context.Context, req adapter.GenerateRequest) (*adapter.GenerateResult, error) {
	s.calls++
	s.maxTokens = append(s.maxTokens, req.MaxTokens)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &adapter.GenerateResult{Text: "ok"}, nil
}

func newTestRetry(inner adapter.AIServiceAdapter) (*retryingAI, *[]time.Duration) {
	logger := zerolog.New(nil)
	r := NewRetryingAI(inner, RetryPolicy{Attempts: 3, BaseDelay: time.Second, MaxDelay: 3 * time.Second}, &logger).(*retryingAI)
	var slept []time.Duration
	r.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return r, &slept
}

func perr(kind adapter.ErrorKind) error { return adapter.NewProviderError("scripted", kind, 0, "x", nil) }

func TestRetryingAI(t *testing.T) {
	ctx := context.Background()

	t.Run("should retry transient errors with growing backoff", func(t *testing.T) {
		inner := &scriptedAI{errs: []error{perr(adapter.KindRateLimited), perr(adapter.KindTransport), nil}}
		r, slept := newTestRetry(inner)
		if _, err := r.Generate(ctx, adapter.GenerateRequest{Model: "m"}); err != nil {
			t.Fatalf("expected success on third attempt, got %v", err)
		}
		if inner.calls != 3 {
			t.Errorf("expected 3 calls, got %d", inner.calls)
		}
		if len(*slept) != 2 || (*slept)[0] != time.Second || (*slept)[1] != 2*time.Second {
			t.Errorf("unexpected backoff sequence %v", *slept)
		}
	})

	t.Run("should give up after the attempt budget", func(t *testing.T) {
		inner := &scriptedAI{errs: []error{perr(adapter.KindTransport), perr(adapter.KindTransport), perr(adapter.KindTransport), nil}}
		r, _ := newTestRetry(inner)
		_, err := r.Generate(ctx, adapter.GenerateRequest{Model: "m"})
		if adapter.KindOf(err) != adapter.KindTransport || inner.calls != 3 {
			t.Fatalf("expected transport error after 3 calls, got %v after %d", err, inner.calls)
		}
	})

	t.Run("should not retry permanent errors", func(t *testing.T) {
		inner := &scriptedAI{errs: []error{perr(adapter.KindInvalidCredentials), nil}}
		r, _ := newTestRetry(inner)
		_, err := r.Generate(ctx, adapter.GenerateRequest{Model: "m"})
		if adapter.KindOf(err) != adapter.KindInvalidCredentials || inner.calls != 1 {
			t.Fatalf("expected single call, got %d (%v)", inner.calls, err)
		}
	})

	t.Run("should shrink output budget once on context too long", func(t *testing.T) {
		inner := &scriptedAI{errs: []error{perr(adapter.KindContextTooLong), perr(adapter.KindContextTooLong)}}
		r, slept := newTestRetry(inner)
		_, err := r.Generate(ctx, adapter.GenerateRequest{Model: "m", MaxTokens: 3000})
		if adapter.KindOf(err) != adapter.KindContextTooLong {
			t.Fatalf("second context error should surface, got %v", err)
		}
		if inner.calls != 2 || inner.maxTokens[1] != 2100 {
			t.Errorf("expected one shrunk retry at 2100 tokens, got %v", inner.maxTokens)
		}
		if len(*slept) != 0 {
			t.Errorf("shrink retry should not sleep")
		}
	})
}

func TestBackoffCapped(t *testing.T) {
	prev := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		d := backoff(attempt, time.Second, 20*time.Second)
		if d < prev || d > 20*time.Second {
			t.Fatalf("attempt %d: backoff %s out of order or over cap", attempt, d)
		}
		prev = d
	}
}

func TestTiktokenCounter_EmptyAndFallback(t *testing.T) {
	c := NewTiktokenCounter()
	if c.CountText("gpt-4o", "") != 0 {
		t.Error("empty text should count as 0")
	}
	if approxTokens("abcdefgh") != 2 || approxTokens("a") != 1 {
		t.Error("fallback estimate should be len/4 with a floor of 1")
	}
}
