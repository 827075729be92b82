package repository

import (
	"context"

	"form-ai-queue/internal/domain/model"
)

type GenerationConfigRepository interface {
	FindByID(ctx context.Context, tx Tx, id string) (*model.GenerationConfig, error)
	// Save upserts; used by the seeder.
	Save(ctx context.Context, tx Tx, cfg *model.GenerationConfig) error
}

type GenerationResultRepository interface {
	Save(ctx context.Context, tx Tx, res *model.GenerationResult) error
	FindByEntry(ctx context.Context, tx Tx, entryID string) ([]*model.GenerationResult, error)
}
