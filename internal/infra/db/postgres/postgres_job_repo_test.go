//go:build integration

package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"form-ai-queue/internal/domain"
	"form-ai-queue/internal/domain/model"
	"form-ai-queue/internal/domain/ports/repository"
)

func newTestJob(priority int, created time.Time) *model.Job {
	return model.NewJob(uuid.NewString(), model.JobTypeAIForm, "cfg-1", "form-1", "entry-1",
		map[string]string{"name": "Ada"}, 0, priority, created)
}

func TestJobRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	repo := NewJobRepo(testPool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("should enqueue and read back a job", func(t *testing.T) {
		cleanup(t)
		job := newTestJob(0, now)
		if err := repo.Enqueue(ctx, nil, job); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		got, err := repo.FindByID(ctx, nil, job.ID)
		if err != nil {
			t.Fatalf("find failed: %v", err)
		}
		if got.Status != model.JobStatusPending || got.Payload["name"] != "Ada" || got.MaxRetries != 3 {
			t.Errorf("unexpected job %+v", got)
		}
		if _, err := repo.FindByID(ctx, nil, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	})

	t.Run("should claim by priority then creation order", func(t *testing.T) {
		cleanup(t)
		older := newTestJob(0, now.Add(-2*time.Minute))
		newer := newTestJob(0, now.Add(-time.Minute))
		urgent := newTestJob(5, now)
		future := model.NewJob(uuid.NewString(), model.JobTypeAIForm, "cfg-1", "", "", nil, time.Hour, 10, now)
		for _, j := range []*model.Job{newer, older, urgent, future} {
			if err := repo.Enqueue(ctx, nil, j); err != nil {
				t.Fatalf("enqueue failed: %v", err)
			}
		}

		want := []string{urgent.ID, older.ID, newer.ID}
		for i, id := range want {
			got, err := repo.ClaimNext(ctx, now)
			if err != nil {
				t.Fatalf("claim %d failed: %v", i, err)
			}
			if got.ID != id {
				t.Errorf("claim %d: got %s, want %s", i, got.ID, id)
			}
			if got.Status != model.JobStatusProcessing || got.StartedAt == nil {
				t.Errorf("claimed job not marked processing: %+v", got)
			}
		}
		if _, err := repo.ClaimNext(ctx, now); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("future job must not be claimed yet, got %v", err)
		}
		n, _ := repo.CountProcessing(ctx)
		if n != 3 {
			t.Errorf("expected 3 processing, got %d", n)
		}
	})

	t.Run("should never hand the same job to two claimers", func(t *testing.T) {
		cleanup(t)
		for i := 0; i < 20; i++ {
			if err := repo.Enqueue(ctx, nil, newTestJob(0, now.Add(time.Duration(-i)*time.Second))); err != nil {
				t.Fatalf("enqueue failed: %v", err)
			}
		}

		var mu sync.Mutex
		seen := map[string]int{}
		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					j, err := repo.ClaimNext(ctx, now)
					if err != nil {
						return
					}
					mu.Lock()
					seen[j.ID]++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		if len(seen) != 20 {
			t.Errorf("expected 20 distinct claims, got %d", len(seen))
		}
		for id, n := range seen {
			if n != 1 {
				t.Errorf("job %s claimed %d times", id, n)
			}
		}
	})

	t.Run("should schedule retries forward and fail when asked", func(t *testing.T) {
		cleanup(t)
		job := newTestJob(0, now)
		_ = repo.Enqueue(ctx, nil, job)
		if _, err := repo.ClaimNext(ctx, now); err != nil {
			t.Fatalf("claim failed: %v", err)
		}

		next := now.Add(time.Minute)
		if err := repo.MarkRetry(ctx, job.ID, "boom", next); err != nil {
			t.Fatalf("mark retry failed: %v", err)
		}
		got, _ := repo.FindByID(ctx, nil, job.ID)
		if got.Status != model.JobStatusRetry || got.RetryCount != 1 || !got.ScheduledAt.Equal(next) || got.ErrorMessage != "boom" {
			t.Errorf("unexpected job after retry %+v", got)
		}
		if _, err := repo.ClaimNext(ctx, now); !errors.Is(err, domain.ErrNotFound) {
			t.Error("a backed-off job must wait for its scheduled time")
		}

		if _, err := repo.ClaimNext(ctx, next); err != nil {
			t.Fatalf("claim after back-off failed: %v", err)
		}
		if err := repo.MarkFailed(ctx, job.ID, "gave up", next); err != nil {
			t.Fatalf("mark failed failed: %v", err)
		}
		if err := repo.MarkCompleted(ctx, job.ID, next); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("completing a failed job must be rejected, got %v", err)
		}
	})

	t.Run("should recover stuck jobs and keep their history", func(t *testing.T) {
		cleanup(t)
		job := newTestJob(0, now.Add(-30*time.Minute))
		_ = repo.Enqueue(ctx, nil, job)
		if _, err := repo.ClaimNext(ctx, now.Add(-20*time.Minute)); err != nil {
			t.Fatalf("claim failed: %v", err)
		}
		_, _ = testPool.Exec(ctx, `UPDATE jobs SET error_message = 'earlier failure' WHERE id = $1`, job.ID)

		res, err := repo.ResetStuck(ctx, now, 10*time.Minute, time.Hour)
		if err != nil {
			t.Fatalf("reset failed: %v", err)
		}
		if res.Recovered != 1 {
			t.Errorf("expected 1 recovered job, got %d", res.Recovered)
		}
		got, _ := repo.FindByID(ctx, nil, job.ID)
		if got.Status != model.JobStatusPending || got.ScheduledAt.After(now) {
			t.Errorf("stuck job not reset: %+v", got)
		}
		if len(got.ErrorMessage) <= len("earlier failure") || got.ErrorMessage[:15] != "earlier failure" {
			t.Errorf("annotation must append, got %q", got.ErrorMessage)
		}
	})

	t.Run("should leave recent processing jobs alone and restamp stale pending ones", func(t *testing.T) {
		cleanup(t)
		fresh := newTestJob(0, now)
		stale := newTestJob(0, now.Add(-3*time.Hour))
		_ = repo.Enqueue(ctx, nil, fresh)
		_ = repo.Enqueue(ctx, nil, stale)
		_, _ = testPool.Exec(ctx, `UPDATE jobs SET status = 'processing', started_at = $2 WHERE id = $1`, fresh.ID, now.Add(-time.Minute))

		res, err := repo.ResetStuck(ctx, now, 10*time.Minute, time.Hour)
		if err != nil {
			t.Fatalf("reset failed: %v", err)
		}
		if res.Recovered != 0 || res.Restamped != 1 {
			t.Errorf("unexpected sweep result %+v", res)
		}
		got, _ := repo.FindByID(ctx, nil, stale.ID)
		if !got.ScheduledAt.Equal(now) {
			t.Errorf("stale job should be re-stamped to now, got %s", got.ScheduledAt)
		}
	})

	t.Run("should apply operator retry and cancel", func(t *testing.T) {
		cleanup(t)
		failed := newTestJob(0, now)
		pending := newTestJob(0, now)
		_ = repo.Enqueue(ctx, nil, failed)
		_ = repo.Enqueue(ctx, nil, pending)
		_, _ = testPool.Exec(ctx, `UPDATE jobs SET status = 'failed', retry_count = 3 WHERE id = $1`, failed.ID)

		if err := repo.Retry(ctx, failed.ID, now); err != nil {
			t.Fatalf("retry failed: %v", err)
		}
		got, _ := repo.FindByID(ctx, nil, failed.ID)
		if got.Status != model.JobStatusPending || got.RetryCount != 0 {
			t.Errorf("unexpected job after operator retry %+v", got)
		}

		if err := repo.Cancel(ctx, pending.ID, "cancelled by operator", now); err != nil {
			t.Fatalf("cancel failed: %v", err)
		}
		got, _ = repo.FindByID(ctx, nil, pending.ID)
		if got.Status != model.JobStatusFailed || got.ErrorMessage != "cancelled by operator" {
			t.Errorf("unexpected job after cancel %+v", got)
		}
		if err := repo.Cancel(ctx, pending.ID, "again", now); !errors.Is(err, domain.ErrInvalidTransition) {
			t.Errorf("expected invalid transition, got %v", err)
		}
		if err := repo.Retry(ctx, "ghost", now); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	})

	t.Run("should report statistics and recent jobs", func(t *testing.T) {
		cleanup(t)
		for i := 0; i < 5; i++ {
			_ = repo.Enqueue(ctx, nil, newTestJob(0, now.Add(time.Duration(-i)*time.Minute)))
		}
		old := newTestJob(-1, now.Add(-48*time.Hour))
		_ = repo.Enqueue(ctx, nil, old)
		if _, err := repo.ClaimNext(ctx, now); err != nil {
			t.Fatalf("claim failed: %v", err)
		}

		st, err := repo.Statistics(ctx, now, 24*time.Hour)
		if err != nil {
			t.Fatalf("statistics failed: %v", err)
		}
		if st.Total() != 5 || st.Processing != 1 {
			t.Errorf("unexpected windowed stats %+v", st)
		}
		all, _ := repo.Statistics(ctx, now, 0)
		if all.Total() != 6 {
			t.Errorf("expected 6 jobs all time, got %d", all.Total())
		}

		recent, err := repo.Recent(ctx, 3)
		if err != nil || len(recent) != 3 {
			t.Fatalf("expected 3 recent jobs, got %d (%v)", len(recent), err)
		}
		if recent[0].CreatedAt.Before(recent[1].CreatedAt) {
			t.Error("recent jobs should be newest first")
		}
		ok, _ := repo.HasPending(ctx)
		if !ok {
			t.Error("expected pending work")
		}
	})
}

func TestGenerationRepos_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	ctx := context.Background()
	configs := NewGenerationConfigRepo(testPool)
	results := NewGenerationResultRepo(testPool)
	tm := NewTxManager(testPool)

	t.Run("should round-trip nullable completion fields", func(t *testing.T) {
		cleanup(t)
		marker := "<!-- END -->"
		cfg := &model.GenerationConfig{ID: "cfg-1", Model: "gpt-4o", PromptTemplate: "Hi", CompletionMarker: &marker}
		if err := configs.Save(ctx, nil, cfg); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		got, err := configs.FindByID(ctx, nil, "cfg-1")
		if err != nil {
			t.Fatalf("find failed: %v", err)
		}
		if got.CompletionMarker == nil || *got.CompletionMarker != marker {
			t.Errorf("marker lost: %+v", got.CompletionMarker)
		}
		if got.MinContentLength != nil || got.EnableSmartCompletion != nil {
			t.Error("unset fields must stay nil")
		}
	})

	t.Run("should upsert results by id inside a transaction", func(t *testing.T) {
		cleanup(t)
		res := &model.GenerationResult{ID: fmt.Sprintf("res-%d", time.Now().UnixNano()), TargetID: "cfg-1", EntryID: "e-1",
			Provider: "openai", Model: "gpt-4o", Text: "first", CreatedAt: time.Now()}
		err := tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
			return results.Save(ctx, tx, res)
		})
		if err != nil {
			t.Fatalf("save failed: %v", err)
		}
		res.Text = "second"
		if err := results.Save(ctx, nil, res); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
		got, err := results.FindByEntry(ctx, nil, "e-1")
		if err != nil || len(got) != 1 || got[0].Text != "second" || got[0].JobID != "" {
			t.Fatalf("unexpected results %+v (%v)", got, err)
		}
	})
}
