// File: internal/infra/worker/job_runner.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"form-ai-queue/internal/config"
	"form-ai-queue/internal/domain"
	"form-ai-queue/internal/domain/model"
	"form-ai-queue/internal/domain/ports/adapter"
	"form-ai-queue/internal/domain/ports/repository"
	"form-ai-queue/internal/infra/logging"
	"form-ai-queue/internal/infra/metrics"
	red "form-ai-queue/internal/infra/redis"
)

const (
	TriggerStartup   = "startup"
	TriggerHeartbeat = "heartbeat"
	TriggerRearm     = "rearm"
	TriggerWake      = "wake"

	maxErrorMessage = 2000
	finishTimeout   = 15 * time.Second
)

// JobHandler executes one claimed job. A nil error means success.
type JobHandler interface {
	Handle(ctx context.Context, job *model.Job) error
}

type RunnerOptions struct {
	MaxConcurrent     int
	HeartbeatInterval time.Duration
	RearmDelay        time.Duration
	StuckTimeout      time.Duration
	StalePendingAfter time.Duration
	JobTimeout        time.Duration
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	SweepLockKey      string
}

// OptionsFromConfig copies the queue section into runner options.
func OptionsFromConfig(q config.QueueConfig) RunnerOptions {
	return RunnerOptions{
		MaxConcurrent:     q.MaxConcurrent,
		HeartbeatInterval: q.HeartbeatInterval,
		RearmDelay:        q.RearmDelay,
		StuckTimeout:      q.StuckTimeout,
		StalePendingAfter: q.StalePendingAfter,
		JobTimeout:        q.JobTimeout,
		BackoffBase:       q.BackoffBase,
		BackoffMax:        q.BackoffMax,
		SweepLockKey:      q.SweepLockKey,
	}
}

// JobRunner claims due jobs from the store one per tick and drives them
// through their handler. Ticks come from a heartbeat ticker, a delayed
// re-arm timer and an external wake channel, and may overlap.
type JobRunner struct {
	jobs     repository.JobRepository
	handlers map[model.JobType]JobHandler
	ticks    adapter.TickRecorder
	locker   red.Locker
	notifier adapter.FailureNotifier
	fallback adapter.Waker
	pool     *Pool
	opts     RunnerOptions
	log      *zerolog.Logger
	now      func() time.Time

	wakeCh   chan struct{}
	inflight sync.WaitGroup

	mu      sync.Mutex
	running bool
	rearm   *time.Timer
}

// NewJobRunner builds a runner. ticks, locker, notifier, fallback and pool
// may be nil; without a pool jobs run inline on the tick goroutine.
func NewJobRunner(
	jobs repository.JobRepository,
	ticks adapter.TickRecorder,
	locker red.Locker,
	notifier adapter.FailureNotifier,
	fallback adapter.Waker,
	pool *Pool,
	opts RunnerOptions,
	logger *zerolog.Logger,
) *JobRunner {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 3
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	if opts.RearmDelay <= 0 {
		opts.RearmDelay = 5 * time.Second
	}
	if opts.StuckTimeout <= 0 {
		opts.StuckTimeout = 10 * time.Minute
	}
	if opts.StalePendingAfter <= 0 {
		opts.StalePendingAfter = time.Hour
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 10 * time.Minute
	}
	if opts.BackoffBase <= 0 {
		opts.BackoffBase = time.Minute
	}
	if opts.BackoffMax <= 0 {
		opts.BackoffMax = 10 * time.Minute
	}
	if opts.SweepLockKey == "" {
		opts.SweepLockKey = "form-ai-queue:sweep"
	}
	l := logger.With().Str("component", "job_runner").Logger()
	return &JobRunner{
		jobs:     jobs,
		handlers: map[model.JobType]JobHandler{},
		ticks:    ticks,
		locker:   locker,
		notifier: notifier,
		fallback: fallback,
		pool:     pool,
		opts:     opts,
		log:      &l,
		now:      time.Now,
		wakeCh:   make(chan struct{}, 1),
	}
}

// Register binds a handler to a job type. Call before Start.
func (r *JobRunner) Register(jobType model.JobType, h JobHandler) {
	r.handlers[jobType] = h
}

// Start runs the tick loop until ctx is done. wakeups may be nil.
func (r *JobRunner) Start(ctx context.Context, wakeups <-chan struct{}) {
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()

	r.log.Info().
		Dur("heartbeat", r.opts.HeartbeatInterval).
		Int("max_concurrent", r.opts.MaxConcurrent).
		Msg("job runner started")

	ticker := time.NewTicker(r.opts.HeartbeatInterval)
	defer ticker.Stop()

	r.runTick(ctx, TriggerStartup)
	for {
		select {
		case <-ctx.Done():
			r.stop()
			r.log.Info().Msg("job runner stopping")
			return
		case <-ticker.C:
			r.runTick(ctx, TriggerHeartbeat)
		case <-r.wakeCh:
			r.runTick(ctx, TriggerRearm)
		case _, ok := <-wakeups:
			if !ok {
				wakeups = nil
				continue
			}
			r.runTick(ctx, TriggerWake)
		}
	}
}

func (r *JobRunner) stop() {
	r.mu.Lock()
	r.running = false
	if r.rearm != nil {
		r.rearm.Stop()
		r.rearm = nil
	}
	r.mu.Unlock()
}

// Wait blocks until every dispatched job has recorded its outcome.
func (r *JobRunner) Wait() { r.inflight.Wait() }

// Wake requests a tick as soon as the loop is free.
func (r *JobRunner) Wake(ctx context.Context) error {
	select {
	case r.wakeCh <- struct{}{}:
	default:
	}
	return nil
}

// WakeSoon arms a single delayed tick. Repeated calls while a timer is armed
// coalesce. When the loop is not running the fallback waker is used instead.
func (r *JobRunner) WakeSoon(delay time.Duration) {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		r.wakeFallback()
		return
	}
	if r.rearm != nil {
		r.mu.Unlock()
		return
	}
	r.rearm = time.AfterFunc(delay, func() {
		r.mu.Lock()
		r.rearm = nil
		r.mu.Unlock()
		_ = r.Wake(context.Background())
	})
	r.mu.Unlock()
}

func (r *JobRunner) wakeFallback() {
	if r.fallback == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.fallback.Wake(ctx); err != nil {
			r.log.Warn().Err(err).Msg("fallback wake failed")
		}
	}()
}

func (r *JobRunner) runTick(ctx context.Context, trigger string) {
	if err := r.Tick(ctx, trigger); err != nil && ctx.Err() == nil {
		r.log.Error().Err(err).Str("trigger", trigger).Msg("scheduler tick failed")
	}
}

// Tick performs one scheduling pass: record liveness, sweep stuck work,
// check the admission ceiling, claim at most one job and dispatch it.
func (r *JobRunner) Tick(ctx context.Context, trigger string) error {
	ctx = logging.WithTraceID(ctx, ulid.Make().String())
	log := logging.With(ctx, r.log)
	now := r.now()
	metrics.IncSchedulerTick(trigger)

	if r.ticks != nil {
		if err := r.ticks.RecordTick(ctx, now); err != nil {
			log.Warn().Err(err).Msg("record tick failed")
		}
	}

	r.sweep(ctx, now)

	n, err := r.jobs.CountProcessing(ctx)
	if err != nil {
		return fmt.Errorf("count processing: %w", err)
	}
	metrics.SetQueueDepth(string(model.JobStatusProcessing), n)
	if n >= r.opts.MaxConcurrent {
		log.Debug().Int("processing", n).Msg("admission ceiling reached; skipping claim")
		return nil
	}

	job, err := r.jobs.ClaimNext(ctx, now)
	if errors.Is(err, domain.ErrNotFound) {
		r.rearmIfPending(ctx)
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim next: %w", err)
	}
	metrics.IncJobTransition(string(job.Type), string(model.JobStatusProcessing))
	log.Info().
		Str("job_id", job.ID).
		Str("job_type", string(job.Type)).
		Int("retry_count", job.RetryCount).
		Str("trigger", trigger).
		Msg("job claimed")

	r.dispatch(ctx, job)
	r.rearmIfPending(ctx)
	return nil
}

func (r *JobRunner) dispatch(ctx context.Context, job *model.Job) {
	r.inflight.Add(1)
	metrics.JobStarted()
	if r.pool == nil {
		r.execute(ctx, job)
		return
	}
	err := r.pool.Submit(func(context.Context) error {
		r.execute(ctx, job)
		return nil
	})
	if err != nil {
		// The job is already claimed, so it must run somewhere.
		r.log.Warn().Err(err).Str("job_id", job.ID).Msg("pool saturated; running job on its own goroutine")
		go r.execute(ctx, job)
	}
}

func (r *JobRunner) execute(ctx context.Context, job *model.Job) {
	defer r.inflight.Done()
	defer metrics.JobFinished()

	ctx = logging.WithJobID(ctx, job.ID)
	ctx = logging.WithEntryID(ctx, job.EntryID)
	log := logging.With(ctx, r.log)

	jctx, cancel := context.WithTimeout(ctx, r.opts.JobTimeout)
	start := time.Now()
	herr := r.invoke(jctx, job)
	cancel()

	// Outcome writes must survive shutdown of the tick context.
	fctx, fcancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer fcancel()
	now := r.now()

	if herr == nil {
		if err := r.jobs.MarkCompleted(fctx, job.ID, now); err != nil {
			log.Error().Err(err).Msg("mark completed failed")
			return
		}
		metrics.IncJobTransition(string(job.Type), string(model.JobStatusCompleted))
		log.Info().Dur("elapsed", time.Since(start)).Msg("job completed")
		r.rearmIfPending(fctx)
		return
	}

	msg := truncate(herr.Error(), maxErrorMessage)
	if !domain.IsPermanent(herr) && job.CanRetry() {
		delay := model.RetryDelay(job.RetryCount, r.opts.BackoffBase, r.opts.BackoffMax)
		if err := r.jobs.MarkRetry(fctx, job.ID, msg, now.Add(delay)); err != nil {
			log.Error().Err(err).Msg("mark retry failed")
			return
		}
		metrics.IncJobTransition(string(job.Type), string(model.JobStatusRetry))
		log.Warn().
			Err(herr).
			Int("attempt", job.RetryCount+1).
			Int("max_retries", job.MaxRetries).
			Dur("backoff", delay).
			Msg("job failed; scheduled retry")
		r.rearmIfPending(fctx)
		return
	}

	if err := r.jobs.MarkFailed(fctx, job.ID, msg, now); err != nil {
		log.Error().Err(err).Msg("could not record job failure")
		return
	}
	metrics.IncJobTransition(string(job.Type), string(model.JobStatusFailed))
	log.Error().
		Err(herr).
		Bool("permanent", domain.IsPermanent(herr)).
		Int("retry_count", job.RetryCount).
		Msg("job failed")
	if r.notifier != nil {
		if err := r.notifier.NotifyJobFailed(fctx, job, msg); err != nil {
			log.Warn().Err(err).Msg("failure notification not sent")
		}
	}
	r.rearmIfPending(fctx)
}

func (r *JobRunner) invoke(ctx context.Context, job *model.Job) (err error) {
	h, ok := r.handlers[job.Type]
	if !ok {
		return domain.Permanent(fmt.Errorf("%w: %s", domain.ErrUnknownJobType, job.Type))
	}
	defer func() {
		if p := recover(); p != nil {
			r.log.Error().
				Str("job_id", job.ID).
				Str("stack", string(debug.Stack())).
				Msgf("handler panic: %v", p)
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return h.Handle(ctx, job)
}

// sweep runs ResetStuck under the redis lock so only one instance sweeps at
// a time. A lock error other than contention still sweeps; the updates are
// status guarded.
func (r *JobRunner) sweep(ctx context.Context, now time.Time) {
	log := logging.With(ctx, r.log)
	if r.locker != nil {
		token, err := r.locker.TryLock(ctx, r.opts.SweepLockKey, r.opts.HeartbeatInterval)
		switch {
		case errors.Is(err, red.ErrLockHeld):
			log.Debug().Msg("sweep lock held elsewhere")
			return
		case err != nil:
			log.Warn().Err(err).Msg("sweep lock unavailable; sweeping without it")
		default:
			defer func() {
				if err := r.locker.Unlock(context.WithoutCancel(ctx), r.opts.SweepLockKey, token); err != nil {
					log.Warn().Err(err).Msg("sweep unlock failed")
				}
			}()
		}
	}

	res, err := r.jobs.ResetStuck(ctx, now, r.opts.StuckTimeout, r.opts.StalePendingAfter)
	if err != nil {
		log.Error().Err(err).Msg("reset stuck failed")
		return
	}
	metrics.AddRecovered("stuck", res.Recovered)
	metrics.AddRecovered("stale", res.Restamped)
	if res.Recovered > 0 || res.Restamped > 0 {
		log.Info().
			Int("recovered", res.Recovered).
			Int("restamped", res.Restamped).
			Msg("swept stuck jobs")
	}
}

func (r *JobRunner) rearmIfPending(ctx context.Context) {
	ok, err := r.jobs.HasPending(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("pending check failed")
		return
	}
	if ok {
		r.WakeSoon(r.opts.RearmDelay)
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
