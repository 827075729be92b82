package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"form-ai-queue/internal/domain"
	"form-ai-queue/internal/domain/model"
	"form-ai-queue/internal/domain/ports/repository"
)

var _ repository.JobRepository = (*jobRepo)(nil)

const jobColumns = `id, job_type, target_id, form_id, entry_id, payload, status, priority,
retry_count, max_retries, error_message, scheduled_at, started_at, completed_at, created_at, updated_at`

type jobRepo struct {
	pool *pgxpool.Pool
}

func NewJobRepo(pool *pgxpool.Pool) *jobRepo {
	return &jobRepo{pool: pool}
}

func (r *jobRepo) Enqueue(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	const q = `
INSERT INTO jobs (id, job_type, target_id, form_id, entry_id, payload, status, priority,
                  retry_count, max_retries, error_message, scheduled_at, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,'pending',$7,0,$8,'',$9,$10,$10);`

	_, err = execSQL(ctx, r.pool, tx, q,
		job.ID, string(job.Type), job.TargetID, job.FormID, job.EntryID, payload,
		job.Priority, job.MaxRetries, job.ScheduledAt, job.CreatedAt)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidArgument) || errors.Is(err, domain.ErrInvalidExecContext) {
			return err
		}
		return fmt.Errorf("enqueue job: %w", err)
	}
	return nil
}

func (r *jobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	q := `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

// ClaimNext is a single statement so overlapping ticks never claim the same row.
func (r *jobRepo) ClaimNext(ctx context.Context, now time.Time) (*model.Job, error) {
	const q = `
UPDATE jobs SET status = 'processing', started_at = $1, updated_at = $1
 WHERE id = (
   SELECT id FROM jobs
    WHERE status IN ('pending', 'retry') AND scheduled_at <= $1
    ORDER BY priority DESC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
 )
RETURNING ` + jobColumns + `;`

	row, err := pickRow(ctx, r.pool, nil, q, now)
	if err != nil {
		return nil, err
	}
	return scanJob(row)
}

func (r *jobRepo) MarkCompleted(ctx context.Context, id string, now time.Time) error {
	const q = `
UPDATE jobs SET status = 'completed', completed_at = $2, updated_at = $2
 WHERE id = $1 AND status = 'processing';`
	return r.transition(ctx, id, q, id, now)
}

func (r *jobRepo) MarkRetry(ctx context.Context, id, errMsg string, nextAttempt time.Time) error {
	const q = `
UPDATE jobs SET status = 'retry',
                retry_count = retry_count + 1,
                error_message = $2,
                scheduled_at = GREATEST(scheduled_at, $3),
                started_at = NULL,
                updated_at = NOW()
 WHERE id = $1 AND status = 'processing';`
	return r.transition(ctx, id, q, id, errMsg, nextAttempt)
}

func (r *jobRepo) MarkFailed(ctx context.Context, id, errMsg string, now time.Time) error {
	const q = `
UPDATE jobs SET status = 'failed', error_message = $2, completed_at = $3, updated_at = $3
 WHERE id = $1 AND status = 'processing';`
	return r.transition(ctx, id, q, id, errMsg, now)
}

func (r *jobRepo) ResetStuck(ctx context.Context, now time.Time, timeout, staleAfter time.Duration) (repository.StuckReset, error) {
	var out repository.StuckReset
	note := fmt.Sprintf("[%s] reset to pending after %s in processing", now.UTC().Format(time.RFC3339), timeout)

	const stuck = `
UPDATE jobs SET status = 'pending',
                started_at = NULL,
                scheduled_at = GREATEST(scheduled_at, $1),
                error_message = CASE WHEN error_message = '' THEN $3 ELSE error_message || E'\n' || $3 END,
                updated_at = $1
 WHERE status = 'processing' AND (started_at IS NULL OR started_at < $2);`
	tag, err := execSQL(ctx, r.pool, nil, stuck, now, now.Add(-timeout), note)
	if err != nil {
		return out, fmt.Errorf("reset stuck jobs: %w", err)
	}
	out.Recovered = int(tag.RowsAffected())

	if staleAfter > 0 {
		const stale = `
UPDATE jobs SET scheduled_at = $1, updated_at = $1
 WHERE status = 'pending' AND scheduled_at < $2;`
		tag, err = execSQL(ctx, r.pool, nil, stale, now, now.Add(-staleAfter))
		if err != nil {
			return out, fmt.Errorf("restamp stale jobs: %w", err)
		}
		out.Restamped = int(tag.RowsAffected())
	}
	return out, nil
}

func (r *jobRepo) CountProcessing(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobs WHERE status = 'processing';`).Scan(&n)
	return n, err
}

func (r *jobRepo) HasPending(ctx context.Context) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE status IN ('pending', 'retry'));`).Scan(&ok)
	return ok, err
}

func (r *jobRepo) Recent(ctx context.Context, limit int) ([]*model.Job, error) {
	rows, err := queryRows(ctx, r.pool, nil,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT $1;`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *jobRepo) Statistics(ctx context.Context, now time.Time, window time.Duration) (*model.JobStats, error) {
	var since *time.Time
	if window > 0 {
		t := now.Add(-window)
		since = &t
	}
	rows, err := queryRows(ctx, r.pool, nil, `
SELECT status, COUNT(*) FROM jobs
 WHERE $1::timestamptz IS NULL OR created_at >= $1
 GROUP BY status;`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	st := &model.JobStats{Window: window}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		st.Add(model.JobStatus(status), n)
	}
	return st, rows.Err()
}

func (r *jobRepo) Retry(ctx context.Context, id string, now time.Time) error {
	const q = `
UPDATE jobs SET status = 'pending', retry_count = 0, started_at = NULL, completed_at = NULL,
                scheduled_at = GREATEST(scheduled_at, $2), updated_at = $2
 WHERE id = $1 AND status IN ('failed', 'retry');`
	return r.transition(ctx, id, q, id, now)
}

func (r *jobRepo) Cancel(ctx context.Context, id, reason string, now time.Time) error {
	const q = `
UPDATE jobs SET status = 'failed', error_message = $2, completed_at = $3, updated_at = $3
 WHERE id = $1 AND status IN ('pending', 'retry');`
	return r.transition(ctx, id, q, id, reason, now)
}

// transition runs a status-guarded update. Zero affected rows means the job is
// missing or in a status the update does not accept.
func (r *jobRepo) transition(ctx context.Context, id, q string, args ...interface{}) error {
	tag, err := execSQL(ctx, r.pool, nil, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.FindByID(ctx, nil, id); err != nil {
		return err
	}
	return fmt.Errorf("job %s: %w", id, domain.ErrInvalidTransition)
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var (
		j       model.Job
		jobType string
		status  string
		payload []byte
	)
	err := row.Scan(&j.ID, &jobType, &j.TargetID, &j.FormID, &j.EntryID, &payload, &status, &j.Priority,
		&j.RetryCount, &j.MaxRetries, &j.ErrorMessage, &j.ScheduledAt, &j.StartedAt, &j.CompletedAt,
		&j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrReadDatabaseRow, err)
	}
	j.Type, j.Status = model.JobType(jobType), model.JobStatus(status)
	j.Payload = map[string]string{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &j.Payload); err != nil {
			return nil, fmt.Errorf("%w: payload: %v", domain.ErrReadDatabaseRow, err)
		}
	}
	return &j, nil
}
