package repository

import (
	"context"
	"time"

	"form-ai-queue/internal/domain/model"
)

// JobRepository is the durable job table. Every mutation is a single-row,
// status-guarded update so overlapping scheduler ticks stay safe.
type JobRepository interface {
	Enqueue(ctx context.Context, tx Tx, job *model.Job) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Job, error)

	// ClaimNext atomically moves the highest-priority, earliest-created due job
	// to processing and returns it. Returns domain.ErrNotFound when nothing is due.
	ClaimNext(ctx context.Context, now time.Time) (*model.Job, error)

	MarkCompleted(ctx context.Context, id string, now time.Time) error
	// MarkRetry increments retry_count and pushes scheduled_at to nextAttempt.
	MarkRetry(ctx context.Context, id string, errMsg string, nextAttempt time.Time) error
	MarkFailed(ctx context.Context, id string, errMsg string, now time.Time) error

	// ResetStuck returns processing jobs started before now-timeout to pending
	// and re-stamps pending jobs scheduled before now-staleAfter.
	ResetStuck(ctx context.Context, now time.Time, timeout, staleAfter time.Duration) (StuckReset, error)

	CountProcessing(ctx context.Context) (int, error)
	HasPending(ctx context.Context) (bool, error)

	Recent(ctx context.Context, limit int) ([]*model.Job, error)
	// Statistics counts jobs per status created within window (0 = all time).
	Statistics(ctx context.Context, now time.Time, window time.Duration) (*model.JobStats, error)

	// Retry moves a failed|retry job back to pending (operator action).
	Retry(ctx context.Context, id string, now time.Time) error
	// Cancel moves a pending|retry job to failed (operator action).
	Cancel(ctx context.Context, id string, reason string, now time.Time) error
}

// StuckReset reports what one sweep changed.
type StuckReset struct {
	Recovered int
	Restamped int
}
