package ai

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"form-ai-queue/internal/domain/ports/adapter"
	"form-ai-queue/internal/infra/logging"
	"form-ai-queue/internal/infra/metrics"
)

var _ adapter.AIServiceAdapter = (*retryingAI)(nil)

type RetryPolicy struct {
	Attempts     int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	ShrinkFactor float64 // applied once on context_too_long
}

type retryingAI struct {
	inner  adapter.AIServiceAdapter
	policy RetryPolicy
	log    *zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetryingAI retries transient failures with capped exponential backoff and
// shrinks the output budget once when the provider reports context_too_long.
func NewRetryingAI(inner adapter.AIServiceAdapter, policy RetryPolicy, logger *zerolog.Logger) adapter.AIServiceAdapter {
	if policy.Attempts <= 0 {
		policy.Attempts = 3
	}
	if policy.BaseDelay <= 0 {
		policy.BaseDelay = 2 * time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 20 * time.Second
	}
	if policy.ShrinkFactor <= 0 || policy.ShrinkFactor >= 1 {
		policy.ShrinkFactor = 0.7
	}
	l := logger.With().Str("component", "ai_retry").Str("provider", inner.Name()).Logger()
	return &retryingAI{inner: inner, policy: policy, log: &l, sleep: sleepCtx}
}

func (r *retryingAI) Name() string { return r.inner.Name() }

func (r *retryingAI) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return r.inner.GetModelInfo(model)
}

func (r *retryingAI) Generate(ctx context.Context, req adapter.GenerateRequest) (*adapter.GenerateResult, error) {
	log := logging.With(ctx, r.log)
	shrunk := false
	var lastErr error

	for attempt := 1; attempt <= r.policy.Attempts; attempt++ {
		done := logging.TraceDuration(log, r.inner.Name()+".Generate")
		start := time.Now()
		res, err := r.inner.Generate(ctx, req)
		elapsed := time.Since(start)
		done()

		if err == nil {
			metrics.ObserveProviderCall(r.inner.Name(), req.Model, res.Usage.PromptTokens, res.Usage.CompletionTokens, elapsed, true)
			return res, nil
		}
		metrics.ObserveProviderCall(r.inner.Name(), req.Model, 0, 0, elapsed, false)
		lastErr = err
		kind := adapter.KindOf(err)
		metrics.IncProviderError(r.inner.Name(), string(kind))

		switch {
		case kind == adapter.KindContextTooLong && !shrunk:
			shrunk = true
			info, _ := r.inner.GetModelInfo(req.Model)
			base := req.MaxTokens
			if base <= 0 || (info.MaxOutputTokens > 0 && base > info.MaxOutputTokens) {
				base = info.MaxOutputTokens
			}
			req.MaxTokens = int(math.Round(float64(base) * r.policy.ShrinkFactor))
			metrics.IncContextShrink(r.inner.Name())
			log.Warn().Int("max_tokens", req.MaxTokens).Msg("context too long, retrying with reduced output budget")
			// the shrink retry does not count against the transient budget
			attempt--
			continue
		case kind.Transient() && attempt < r.policy.Attempts:
			d := backoff(attempt, r.policy.BaseDelay, r.policy.MaxDelay)
			log.Warn().Err(err).Int("attempt", attempt).Dur("backoff", d).Msg("transient provider error, retrying")
			if serr := r.sleep(ctx, d); serr != nil {
				return nil, lastErr
			}
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func backoff(attempt int, base, max time.Duration) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
