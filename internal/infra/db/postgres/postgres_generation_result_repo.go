package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"form-ai-queue/internal/domain"
	"form-ai-queue/internal/domain/model"
	"form-ai-queue/internal/domain/ports/repository"
)

var _ repository.GenerationResultRepository = (*generationResultRepo)(nil)

type generationResultRepo struct {
	pool *pgxpool.Pool
}

func NewGenerationResultRepo(pool *pgxpool.Pool) *generationResultRepo {
	return &generationResultRepo{pool: pool}
}

// Save upserts by id; a job that is retried after its result was stored
// overwrites the earlier row instead of duplicating it.
func (r *generationResultRepo) Save(ctx context.Context, tx repository.Tx, res *model.GenerationResult) error {
	const q = `
INSERT INTO generation_results (
  id, job_id, target_id, form_id, entry_id, submitter_name, submitter_email, provider, model,
  text, chunks, tokens_used, stop_reason, partial, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (id) DO UPDATE SET
  text = EXCLUDED.text, chunks = EXCLUDED.chunks, tokens_used = EXCLUDED.tokens_used,
  stop_reason = EXCLUDED.stop_reason, partial = EXCLUDED.partial, model = EXCLUDED.model,
  provider = EXCLUDED.provider, created_at = EXCLUDED.created_at;`

	_, err := execSQL(ctx, r.pool, tx, q,
		res.ID, nullIfEmpty(res.JobID), res.TargetID, res.FormID, res.EntryID, res.SubmitterName,
		res.SubmitterEmail, res.Provider, res.Model, res.Text, res.Chunks, res.TokensUsed,
		res.StopReason, res.Partial, res.CreatedAt)
	if err != nil {
		return fmt.Errorf("save generation result: %w", err)
	}
	return nil
}

func (r *generationResultRepo) FindByEntry(ctx context.Context, tx repository.Tx, entryID string) ([]*model.GenerationResult, error) {
	const q = `
SELECT id, COALESCE(job_id, ''), target_id, form_id, entry_id, submitter_name, submitter_email,
       provider, model, text, chunks, tokens_used, stop_reason, partial, created_at
  FROM generation_results
 WHERE entry_id = $1
 ORDER BY created_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.GenerationResult
	for rows.Next() {
		var g model.GenerationResult
		if err := rows.Scan(&g.ID, &g.JobID, &g.TargetID, &g.FormID, &g.EntryID, &g.SubmitterName,
			&g.SubmitterEmail, &g.Provider, &g.Model, &g.Text, &g.Chunks, &g.TokensUsed, &g.StopReason,
			&g.Partial, &g.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
