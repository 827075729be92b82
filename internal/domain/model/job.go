package model

import (
	"time"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetry      JobStatus = "retry"
)

// AllJobStatuses lists every status in lifecycle order.
var AllJobStatuses = []JobStatus{
	JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed, JobStatusRetry,
}

func (s JobStatus) Valid() bool {
	for _, v := range AllJobStatuses {
		if s == v {
			return true
		}
	}
	return false
}

type JobType string

// JobTypeAIForm is the only job type: run an AI generation for a form submission.
const JobTypeAIForm JobType = "ai_form_processing"

const DefaultMaxRetries = 3

// Job is one durable unit of deferred work.
type Job struct {
	ID           string            `json:"id"`
	Type         JobType           `json:"job_type"`
	TargetID     string            `json:"target_id"`
	FormID       string            `json:"form_id"`
	EntryID      string            `json:"entry_id"`
	Payload      map[string]string `json:"payload"`
	Status       JobStatus         `json:"status"`
	Priority     int               `json:"priority"`
	RetryCount   int               `json:"retry_count"`
	MaxRetries   int               `json:"max_retries"`
	ErrorMessage string            `json:"error_message,omitempty"`
	ScheduledAt  time.Time         `json:"scheduled_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// NewJob builds a pending job that becomes eligible after delay.
func NewJob(id string, jobType JobType, targetID, formID, entryID string, payload map[string]string, delay time.Duration, priority int, now time.Time) *Job {
	if delay < 0 {
		delay = 0
	}
	if payload == nil {
		payload = map[string]string{}
	}
	return &Job{
		ID:          id,
		Type:        jobType,
		TargetID:    targetID,
		FormID:      formID,
		EntryID:     entryID,
		Payload:     payload,
		Status:      JobStatusPending,
		Priority:    priority,
		MaxRetries:  DefaultMaxRetries,
		ScheduledAt: now.Add(delay),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CanRetry reports whether another automatic attempt is allowed.
func (j *Job) CanRetry() bool { return j.RetryCount < j.MaxRetries }

// Claimable reports whether claim_next may pick the job at now.
func (j *Job) Claimable(now time.Time) bool {
	return (j.Status == JobStatusPending || j.Status == JobStatusRetry) && !j.ScheduledAt.After(now)
}

// RetryDelay returns min(2^attempt * base, max). attempt is the retry_count
// before the failed attempt is recorded.
func RetryDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// JobStats is the per-status count reported to operator dashboards.
type JobStats struct {
	Pending    int           `json:"pending"`
	Processing int           `json:"processing"`
	Completed  int           `json:"completed"`
	Failed     int           `json:"failed"`
	Retry      int           `json:"retry"`
	Window     time.Duration `json:"window"`
}

func (s *JobStats) Add(status JobStatus, n int) {
	switch status {
	case JobStatusPending:
		s.Pending += n
	case JobStatusProcessing:
		s.Processing += n
	case JobStatusCompleted:
		s.Completed += n
	case JobStatusFailed:
		s.Failed += n
	case JobStatusRetry:
		s.Retry += n
	}
}

func (s JobStats) Total() int {
	return s.Pending + s.Processing + s.Completed + s.Failed + s.Retry
}
