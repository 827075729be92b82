// File: internal/usecase/job_queue_uc.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"form-ai-queue/internal/domain"
	"form-ai-queue/internal/domain/model"
	"form-ai-queue/internal/domain/ports/adapter"
	"form-ai-queue/internal/domain/ports/repository"
	"form-ai-queue/internal/infra/metrics"
)

var _ JobQueueUseCase = (*jobQueueUC)(nil)

const cancelledByOperator = "cancelled by operator"

type EnqueueRequest struct {
	Type     model.JobType
	TargetID string
	FormID   string
	EntryID  string
	Payload  map[string]string
	Delay    time.Duration
	Priority int
}

// EnqueueResult carries the job id in background mode, or the generation
// result when the request ran synchronously.
type EnqueueResult struct {
	JobID     string                  `json:"job_id,omitempty"`
	Immediate bool                    `json:"immediate"`
	Result    *model.GenerationResult `json:"-"`
}

type JobQueueUseCase interface {
	Enqueue(ctx context.Context, req EnqueueRequest) (*EnqueueResult, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	Statistics(ctx context.Context, window time.Duration) (*model.JobStats, error)
	Recent(ctx context.Context, limit int) ([]*model.Job, error)
	Retry(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
}

type QueueOptions struct {
	Background bool
	MaxRetries int
}

type jobQueueUC struct {
	jobs      repository.JobRepository
	immediate FormProcessingUseCase
	waker     adapter.Waker
	opts      QueueOptions
	log       *zerolog.Logger
	now       func() time.Time
}

func NewJobQueueUseCase(
	jobs repository.JobRepository,
	immediate FormProcessingUseCase,
	waker adapter.Waker,
	opts QueueOptions,
	logger *zerolog.Logger,
) *jobQueueUC {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = model.DefaultMaxRetries
	}
	l := logger.With().Str("component", "job_queue").Logger()
	return &jobQueueUC{jobs: jobs, immediate: immediate, waker: waker, opts: opts, log: &l, now: time.Now}
}

func (u *jobQueueUC) Enqueue(ctx context.Context, req EnqueueRequest) (*EnqueueResult, error) {
	if req.Type == "" {
		req.Type = model.JobTypeAIForm
	}
	if req.Type != model.JobTypeAIForm {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownJobType, req.Type)
	}
	if strings.TrimSpace(req.TargetID) == "" {
		return nil, fmt.Errorf("%w: target_id is required", domain.ErrInvalidArgument)
	}

	if !u.opts.Background {
		return u.runNow(ctx, req)
	}

	job := model.NewJob(uuid.NewString(), req.Type, req.TargetID, req.FormID, req.EntryID, req.Payload, req.Delay, req.Priority, u.now())
	job.MaxRetries = u.opts.MaxRetries
	if err := u.jobs.Enqueue(ctx, nil, job); err != nil {
		// never drop a submission: run it inline instead
		u.log.Error().Err(err).Str("entry_id", req.EntryID).Msg("enqueue failed, processing immediately")
		return u.runNow(ctx, req)
	}
	metrics.IncJobTransition(string(job.Type), string(model.JobStatusPending))
	u.wake(ctx)
	u.log.Info().Str("job_id", job.ID).Str("entry_id", job.EntryID).Int("priority", job.Priority).Msg("job enqueued")
	return &EnqueueResult{JobID: job.ID}, nil
}

func (u *jobQueueUC) runNow(ctx context.Context, req EnqueueRequest) (*EnqueueResult, error) {
	res, err := u.immediate.Process(ctx, FormRequest{
		TargetID: req.TargetID,
		FormID:   req.FormID,
		EntryID:  req.EntryID,
		Payload:  req.Payload,
	})
	if err != nil {
		return nil, err
	}
	return &EnqueueResult{Immediate: true, Result: res}, nil
}

func (u *jobQueueUC) wake(ctx context.Context) {
	if u.waker == nil {
		return
	}
	if err := u.waker.Wake(ctx); err != nil {
		u.log.Warn().Err(err).Msg("wake request dropped, heartbeat will pick the job up")
	}
}

func (u *jobQueueUC) Get(ctx context.Context, id string) (*model.Job, error) {
	return u.jobs.FindByID(ctx, nil, id)
}

func (u *jobQueueUC) Statistics(ctx context.Context, window time.Duration) (*model.JobStats, error) {
	stats, err := u.jobs.Statistics(ctx, u.now(), window)
	if err != nil {
		return nil, err
	}
	for _, s := range model.AllJobStatuses {
		n := 0
		switch s {
		case model.JobStatusPending:
			n = stats.Pending
		case model.JobStatusProcessing:
			n = stats.Processing
		case model.JobStatusCompleted:
			n = stats.Completed
		case model.JobStatusFailed:
			n = stats.Failed
		case model.JobStatusRetry:
			n = stats.Retry
		}
		metrics.SetQueueDepth(string(s), n)
	}
	return stats, nil
}

func (u *jobQueueUC) Recent(ctx context.Context, limit int) ([]*model.Job, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	return u.jobs.Recent(ctx, limit)
}

func (u *jobQueueUC) Retry(ctx context.Context, id string) error {
	if err := u.jobs.Retry(ctx, id, u.now()); err != nil {
		return err
	}
	u.log.Info().Str("job_id", id).Msg("job re-queued by operator")
	u.wake(ctx)
	return nil
}

func (u *jobQueueUC) Cancel(ctx context.Context, id string) error {
	if err := u.jobs.Cancel(ctx, id, cancelledByOperator, u.now()); err != nil {
		return err
	}
	metrics.IncJobTransition(string(model.JobTypeAIForm), string(model.JobStatusFailed))
	u.log.Info().Str("job_id", id).Msg("job cancelled by operator")
	return nil
}
