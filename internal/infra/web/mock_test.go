package web

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"form-ai-queue/internal/domain"
	"form-ai-queue/internal/domain/model"
	"form-ai-queue/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(nil)
	return &l
}

type mockQueue struct {
	mu        sync.Mutex
	enqueued  []usecase.EnqueueRequest
	result    *usecase.EnqueueResult
	err       error
	jobs      map[string]*model.Job
	stats     *model.JobStats
	window    time.Duration
	limit     int
	opErr     error
	retried   []string
	cancelled []string
}

func newMockQueue() *mockQueue {
	return &mockQueue{
		result: &usecase.EnqueueResult{JobID: "job-1"},
		jobs:   map[string]*model.Job{},
		stats:  &model.JobStats{},
	}
}

func (m *mockQueue) Enqueue(ctx context.Context, req usecase.EnqueueRequest) (*usecase.EnqueueResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enqueued = append(m.enqueued, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockQueue) Get(ctx context.Context, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return j, nil
}

func (m *mockQueue) Statistics(ctx context.Context, window time.Duration) (*model.JobStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.window = window
	return m.stats, nil
}

func (m *mockQueue) Recent(ctx context.Context, limit int) ([]*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limit = limit
	var out []*model.Job
	for _, j := range m.jobs {
		out = append(out, j)
	}
	return out, nil
}

func (m *mockQueue) Retry(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opErr != nil {
		return m.opErr
	}
	m.retried = append(m.retried, id)
	return nil
}

func (m *mockQueue) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.opErr != nil {
		return m.opErr
	}
	m.cancelled = append(m.cancelled, id)
	return nil
}

type mockTicks struct {
	last time.Time
	err  error
}

func (m *mockTicks) RecordTick(ctx context.Context, at time.Time) error { m.last = at; return nil }
func (m *mockTicks) LastTick(ctx context.Context) (time.Time, error)    { return m.last, m.err }

type mockLimiter struct {
	mu    sync.Mutex
	keys  []string
	allow bool
	err   error
}

func (m *mockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, key)
	return m.allow, m.err
}

type mockWaker struct {
	mu sync.Mutex
	n  int
}

func (m *mockWaker) Wake(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	return nil
}
