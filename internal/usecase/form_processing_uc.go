// File: internal/usecase/form_processing_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"form-ai-queue/internal/domain"
	"form-ai-queue/internal/domain/model"
	"form-ai-queue/internal/domain/ports/adapter"
	"form-ai-queue/internal/domain/ports/repository"
	"form-ai-queue/internal/infra/logging"
)

// Compile-time check
var _ FormProcessingUseCase = (*formProcessingUC)(nil)

const defaultTargetTokens = 8000

// ProviderResolver hands out the client for a configured provider.
type ProviderResolver interface {
	Resolve(provider, model string) (adapter.AIServiceAdapter, error)
}

type FormRequest struct {
	JobID    string
	TargetID string
	FormID   string
	EntryID  string
	Payload  map[string]string
}

type FormProcessingUseCase interface {
	// Process runs one generation end to end and stores the result.
	Process(ctx context.Context, req FormRequest) (*model.GenerationResult, error)
	// Handle adapts Process to the job runner's handler signature.
	Handle(ctx context.Context, job *model.Job) error
}

type formProcessingUC struct {
	configs    repository.GenerationConfigRepository
	settings   CompletionSettingsUseCase
	results    repository.GenerationResultRepository
	providers  ProviderResolver
	controller ChunkController
	log        *zerolog.Logger
	devMode    bool
}

func NewFormProcessingUseCase(
	configs repository.GenerationConfigRepository,
	settings CompletionSettingsUseCase,
	results repository.GenerationResultRepository,
	providers ProviderResolver,
	controller ChunkController,
	logger *zerolog.Logger,
	devMode bool,
) *formProcessingUC {
	l := logger.With().Str("component", "form_processing").Logger()
	return &formProcessingUC{
		configs:    configs,
		settings:   settings,
		results:    results,
		providers:  providers,
		controller: controller,
		log:        &l,
		devMode:    devMode,
	}
}

func (u *formProcessingUC) Handle(ctx context.Context, job *model.Job) error {
	_, err := u.Process(ctx, FormRequest{
		JobID:    job.ID,
		TargetID: job.TargetID,
		FormID:   job.FormID,
		EntryID:  job.EntryID,
		Payload:  job.Payload,
	})
	return err
}

func (u *formProcessingUC) Process(ctx context.Context, req FormRequest) (*model.GenerationResult, error) {
	ctx = logging.WithEntryID(ctx, req.EntryID)
	log := logging.With(ctx, u.log)

	cfg, err := u.configs.FindByID(ctx, nil, req.TargetID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Permanent(fmt.Errorf("generation config %q: %w", req.TargetID, err))
		}
		return nil, fmt.Errorf("load generation config: %w", err)
	}
	if strings.TrimSpace(cfg.PromptTemplate) == "" {
		return nil, domain.Permanent(fmt.Errorf("config %q: %w", cfg.ID, domain.ErrMissingTemplate))
	}

	client, err := u.providers.Resolve(cfg.Provider, cfg.Model)
	if err != nil {
		return nil, err
	}

	settings, err := u.settings.Resolve(ctx, cfg.ID)
	if err != nil {
		return nil, fmt.Errorf("resolve completion settings: %w", err)
	}
	messages := buildMessages(cfg, settings, req.Payload)
	name, email := extractSubmitter(req.Payload)
	log.Info().
		Str("provider", client.Name()).
		Str("model", cfg.Model).
		Bool("chunking", cfg.EnableChunking).
		Str("submitter", logging.Redact(email, u.devMode)).
		Msg("starting generation")

	res := &model.GenerationResult{
		ID:             req.JobID,
		JobID:          req.JobID,
		TargetID:       req.TargetID,
		FormID:         req.FormID,
		EntryID:        req.EntryID,
		SubmitterName:  name,
		SubmitterEmail: email,
		Provider:       client.Name(),
		Model:          cfg.Model,
		CreatedAt:      time.Now(),
	}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}

	if cfg.EnableChunking {
		target := cfg.MaxTokens
		if target <= 0 {
			target = defaultTargetTokens
		}
		out, err := u.controller.Run(ctx, client, RunRequest{
			Provider:     client.Name(),
			Model:        cfg.Model,
			Messages:     messages,
			TargetTokens: target,
			ChunkSize:    cfg.ChunkSize,
			Temperature:  cfg.Temperature,
			Settings:     settings,
		})
		if err != nil {
			return nil, err
		}
		res.Text, res.Chunks, res.TokensUsed = out.Text, out.Chunks, out.TokensUsed
		res.StopReason, res.Partial = string(out.StopReason), out.Partial
	} else {
		out, err := client.Generate(ctx, adapter.GenerateRequest{
			Model:       cfg.Model,
			Messages:    messages,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			if adapter.KindOf(err).Permanent() {
				err = domain.Permanent(err)
			}
			return nil, err
		}
		res.Text = finalizeText(cleanChunk(out.Text), settings.CompletionMarker)
		res.Chunks, res.TokensUsed, res.StopReason = 1, out.Usage.CompletionTokens, string(StopSingleCall)
	}

	if strings.TrimSpace(res.Text) == "" {
		return nil, errEmptyGeneration
	}
	if err := u.results.Save(ctx, nil, res); err != nil {
		return nil, fmt.Errorf("save generation result: %w", err)
	}
	log.Info().Int("chunks", res.Chunks).Int("tokens", res.TokensUsed).Str("stop_reason", res.StopReason).Msg("generation stored")
	return res, nil
}

func buildMessages(cfg *model.GenerationConfig, s model.CompletionSettings, payload map[string]string) []adapter.Message {
	msgs := make([]adapter.Message, 0, 2)
	system := strings.TrimSpace(cfg.SystemPrompt)
	if cfg.EnableChunking {
		if mi := markerInstruction(s); mi != "" {
			system = strings.TrimSpace(system + "\n\n" + mi)
		}
	}
	if system != "" {
		msgs = append(msgs, adapter.Message{Role: adapter.RoleSystem, Content: system})
	}
	return append(msgs, adapter.Message{Role: adapter.RoleUser, Content: interpolate(cfg.PromptTemplate, payload)})
}

var placeholderRe = regexp.MustCompile(`\{([A-Za-z0-9_.\-]+)\}`)

// interpolate replaces {field} with payload values and {all_fields} with
// every field as sorted "key: value" lines. Unknown placeholders stay as-is.
func interpolate(tmpl string, payload map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := m[1 : len(m)-1]
		if key == "all_fields" {
			return allFields(payload)
		}
		if v, ok := payload[key]; ok {
			return v
		}
		return m
	})
}

func allFields(payload map[string]string) string {
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(payload[k])
	}
	return sb.String()
}

var emailRe = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// extractSubmitter finds the submitter's name and e-mail in the form payload.
// Both the queued and the immediate path go through here.
func extractSubmitter(payload map[string]string) (name, email string) {
	lower := make(map[string]string, len(payload))
	for k, v := range payload {
		lower[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	for _, k := range []string{"name", "full_name", "your_name", "fullname"} {
		if v := lower[k]; v != "" {
			name = v
			break
		}
	}
	if name == "" {
		name = strings.TrimSpace(lower["first_name"] + " " + lower["last_name"])
	}
	for _, k := range []string{"email", "email_address", "your_email", "e-mail"} {
		if v := lower[k]; emailRe.MatchString(v) {
			email = v
			break
		}
	}
	if email == "" {
		keys := make([]string, 0, len(lower))
		for k := range lower {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if emailRe.MatchString(lower[k]) {
				email = lower[k]
				break
			}
		}
	}
	return name, email
}
