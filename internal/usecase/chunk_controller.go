// File: internal/usecase/chunk_controller.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"form-ai-queue/internal/domain"
	"form-ai-queue/internal/domain/model"
	"form-ai-queue/internal/domain/ports/adapter"
	"form-ai-queue/internal/infra/logging"
	"form-ai-queue/internal/infra/metrics"
)

// Compile-time check
var _ ChunkController = (*chunkController)(nil)

// ChunkController assembles one long answer out of several provider calls.
type ChunkController interface {
	Run(ctx context.Context, client adapter.AIServiceAdapter, req RunRequest) (*ChunkResult, error)
}

type RunRequest struct {
	Provider     string
	Model        string
	Messages     []adapter.Message // optional system turn(s) followed by the user request
	TargetTokens int
	ChunkSize    int // 0 = profile default for the model
	Temperature  float64
	Settings     model.CompletionSettings
}

type ChunkResult struct {
	Text       string
	Chunks     int
	TokensUsed int
	StopReason StopReason
	// Partial is set when a later chunk failed and the text so far was kept.
	Partial bool
	Err     error
	Model   string
}

type chunkController struct {
	profiles map[string]ChunkProfile
	counter  adapter.TokenCounter
	log      *zerolog.Logger
}

func NewChunkController(profiles map[string]ChunkProfile, counter adapter.TokenCounter, logger *zerolog.Logger) *chunkController {
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	l := logger.With().Str("component", "chunk_controller").Logger()
	return &chunkController{profiles: profiles, counter: counter, log: &l}
}

func (c *chunkController) profile(provider string) ChunkProfile {
	if p, ok := c.profiles[strings.ToLower(provider)]; ok {
		return p
	}
	p := c.profiles["openai"]
	p.Provider = provider
	return p
}

func (c *chunkController) Run(ctx context.Context, client adapter.AIServiceAdapter, req RunRequest) (*ChunkResult, error) {
	if client == nil {
		return nil, domain.Permanent(domain.ErrProviderNotConfigured)
	}
	if len(req.Messages) == 0 || req.TargetTokens <= 0 {
		return nil, domain.Permanent(fmt.Errorf("%w: chunked run needs messages and a positive token target", domain.ErrInvalidArgument))
	}
	log := logging.With(ctx, c.log)
	defer logging.TraceDuration(log, "ChunkController.Run")()

	p := c.profile(req.Provider)
	base := p.ChunkSize(req.Model, req.ChunkSize)
	maxChunks := p.MaxChunksFor(req.TargetTokens, base)
	head := headLength(req.Messages)

	conv := make([]adapter.Message, len(req.Messages))
	copy(conv, req.Messages)

	res := &ChunkResult{Model: req.Model}
	var acc string

	for i := 0; i < maxChunks; i++ {
		size := p.sizeFor(base, i, res.TokensUsed, req.TargetTokens)
		if size < p.MinChunkTokens {
			if i > 0 {
				res.StopReason = StopBudget
				break
			}
			// a target under the floor still gets one call
			size = p.MinChunkTokens
		}

		out, err := client.Generate(ctx, adapter.GenerateRequest{
			Model:       req.Model,
			Messages:    conv,
			MaxTokens:   size,
			Temperature: req.Temperature,
		})
		if err != nil {
			if i == 0 {
				if adapter.KindOf(err).Permanent() {
					err = domain.Permanent(err)
				}
				metrics.ObserveGenerationSession(p.Provider, 0, string(StopProviderErr))
				return nil, fmt.Errorf("first chunk: %w", err)
			}
			log.Warn().Err(err).Int("chunk", i+1).Msg("chunk failed, returning partial text")
			res.StopReason, res.Partial, res.Err = StopProviderErr, true, err
			break
		}

		tokens := out.Usage.CompletionTokens
		if tokens <= 0 && c.counter != nil {
			tokens = c.counter.CountText(req.Model, out.Text)
		}
		if tokens <= 0 {
			tokens = 1
		}
		res.TokensUsed += tokens
		if out.Model != "" {
			res.Model = out.Model
		}

		if strings.TrimSpace(out.Text) == "" {
			if i == 0 {
				return nil, fmt.Errorf("first chunk: %w",
					adapter.NewProviderError(p.Provider, adapter.KindMalformedResponse, 0, "empty response", nil))
			}
			res.StopReason = StopEmptyChunk
			break
		}

		cleaned := cleanChunk(out.Text)
		acc = joinChunks(acc, cleaned)
		res.Chunks++

		log.Debug().
			Int("chunk", i+1).
			Int("max_tokens", out.MaxTokens).
			Int("tokens", tokens).
			Int("used", res.TokensUsed).
			Int("target", req.TargetTokens).
			Str("finish_reason", out.FinishReason).
			Msg("chunk received")
		log.Trace().Int("raw_request_bytes", len(out.RawRequest)).Int("raw_response_bytes", len(out.RawResponse)).Msg("chunk payloads")

		stop, why := evaluateStop(p, req.Settings, stopInput{
			rawChunk:    out.Text,
			accumulated: acc,
			used:        res.TokensUsed,
			target:      req.TargetTokens,
		})
		if stop {
			res.StopReason = why
			break
		}

		progress := float64(res.TokensUsed) / float64(req.TargetTokens)
		conv = append(conv,
			adapter.Message{Role: p.AssistantRole, Content: cleaned},
			adapter.Message{Role: adapter.RoleUser, Content: continuationPrompt(i, progress, len(visibleText(acc)), req.Settings)},
		)
		conv = pruneConversation(conv, head, p.HistoryWindow)
	}
	if res.StopReason == "" {
		res.StopReason = StopMaxChunks
	}

	res.Text = finalizeText(acc, req.Settings.CompletionMarker)
	metrics.ObserveGenerationSession(p.Provider, res.Chunks, string(res.StopReason))
	log.Info().
		Int("chunks", res.Chunks).
		Int("tokens", res.TokensUsed).
		Str("stop_reason", string(res.StopReason)).
		Bool("partial", res.Partial).
		Msg("generation finished")
	return res, nil
}

// headLength counts the leading system turns plus the first user turn; these
// are never pruned.
func headLength(msgs []adapter.Message) int {
	for i, m := range msgs {
		if m.Role == adapter.RoleUser {
			return i + 1
		}
	}
	return len(msgs)
}

// pruneConversation keeps the head and at most window trailing messages. The
// window always starts on a non-user turn so roles keep alternating.
func pruneConversation(conv []adapter.Message, head, window int) []adapter.Message {
	if window <= 0 || len(conv) <= head+window {
		return conv
	}
	start := len(conv) - window
	if conv[start].Role == adapter.RoleUser && start+1 < len(conv) {
		start++
	}
	out := make([]adapter.Message, 0, head+len(conv)-start)
	out = append(out, conv[:head]...)
	return append(out, conv[start:]...)
}

var errEmptyGeneration = errors.New("generation produced no text")
