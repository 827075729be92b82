package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"form-ai-queue/internal/domain"
	"form-ai-queue/internal/domain/model"
	"form-ai-queue/internal/domain/ports/repository"
)

var _ repository.GenerationConfigRepository = (*generationConfigRepo)(nil)

type generationConfigRepo struct {
	pool *pgxpool.Pool
}

func NewGenerationConfigRepo(pool *pgxpool.Pool) *generationConfigRepo {
	return &generationConfigRepo{pool: pool}
}

func (r *generationConfigRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.GenerationConfig, error) {
	const q = `
SELECT id, name, provider, model, system_prompt, prompt_template, temperature, max_tokens,
       chunk_size, enable_chunking, completion_marker, min_content_length, completion_word_count,
       completion_keywords, enable_smart_completion, use_token_percentage,
       token_completion_threshold, forced_stop_margin, created_at, updated_at
  FROM generation_configs
 WHERE id = $1;`
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	var c model.GenerationConfig
	err = row.Scan(&c.ID, &c.Name, &c.Provider, &c.Model, &c.SystemPrompt, &c.PromptTemplate,
		&c.Temperature, &c.MaxTokens, &c.ChunkSize, &c.EnableChunking, &c.CompletionMarker,
		&c.MinContentLength, &c.CompletionWordCount, &c.CompletionKeywords, &c.EnableSmartCompletion,
		&c.UseTokenPercentage, &c.TokenCompletionThreshold, &c.ForcedStopMargin, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	return &c, nil
}

func (r *generationConfigRepo) Save(ctx context.Context, tx repository.Tx, c *model.GenerationConfig) error {
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	const q = `
INSERT INTO generation_configs (
  id, name, provider, model, system_prompt, prompt_template, temperature, max_tokens, chunk_size,
  enable_chunking, completion_marker, min_content_length, completion_word_count, completion_keywords,
  enable_smart_completion, use_token_percentage, token_completion_threshold, forced_stop_margin,
  created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name, provider = EXCLUDED.provider, model = EXCLUDED.model,
  system_prompt = EXCLUDED.system_prompt, prompt_template = EXCLUDED.prompt_template,
  temperature = EXCLUDED.temperature, max_tokens = EXCLUDED.max_tokens, chunk_size = EXCLUDED.chunk_size,
  enable_chunking = EXCLUDED.enable_chunking, completion_marker = EXCLUDED.completion_marker,
  min_content_length = EXCLUDED.min_content_length, completion_word_count = EXCLUDED.completion_word_count,
  completion_keywords = EXCLUDED.completion_keywords, enable_smart_completion = EXCLUDED.enable_smart_completion,
  use_token_percentage = EXCLUDED.use_token_percentage,
  token_completion_threshold = EXCLUDED.token_completion_threshold,
  forced_stop_margin = EXCLUDED.forced_stop_margin, updated_at = EXCLUDED.updated_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		c.ID, c.Name, c.Provider, c.Model, c.SystemPrompt, c.PromptTemplate, c.Temperature, c.MaxTokens,
		c.ChunkSize, c.EnableChunking, c.CompletionMarker, c.MinContentLength, c.CompletionWordCount,
		c.CompletionKeywords, c.EnableSmartCompletion, c.UseTokenPercentage, c.TokenCompletionThreshold,
		c.ForcedStopMargin, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save generation config: %w", err)
	}
	return nil
}
