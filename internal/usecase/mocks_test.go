// File: internal/usecase/mocks_test.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"form-ai-queue/internal/domain"
	"form-ai-queue/internal/domain/model"
	"form-ai-queue/internal/domain/ports/adapter"
	"form-ai-queue/internal/domain/ports/repository"
)

func silentLogger() *zerolog.Logger {
	l := zerolog.New(nil)
	return &l
}

// scriptedAI returns one scripted reply per call; after the script runs out it
// keeps returning the last entry.
type scriptedAI struct {
	mu      sync.Mutex
	name    string
	replies []scriptedReply
	reqs    []adapter.GenerateRequest
}

type scriptedReply struct {
	text   string
	tokens int
	err    error
}

func (s *scriptedAI) Name() string {
	if s.name == "" {
		return "openai"
	}
	return s.name
}

func (s *scriptedAI) GetModelInfo(model string) (adapter.ModelInfo, error) {
	return adapter.ModelInfo{Name: model, MaxOutputTokens: 16384}, nil
}

func (s *scriptedAI) Generate(ctx context.Context, req adapter.GenerateRequest) (*adapter.GenerateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := make([]adapter.Message, len(req.Messages))
	copy(msgs, req.Messages)
	req.Messages = msgs
	s.reqs = append(s.reqs, req)
	if len(s.replies) == 0 {
		return nil, fmt.Errorf("no scripted reply")
	}
	r := s.replies[0]
	if len(s.replies) > 1 {
		s.replies = s.replies[1:]
	}
	if r.err != nil {
		return nil, r.err
	}
	tokens := r.tokens
	if tokens < 0 {
		// echo the requested budget
		tokens = req.MaxTokens
	}
	return &adapter.GenerateResult{
		Text:      r.text,
		Usage:     adapter.Usage{CompletionTokens: tokens, TotalTokens: tokens},
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
	}, nil
}

func (s *scriptedAI) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reqs)
}

// fullBudget replies with text and consumes exactly the requested budget.
func fullBudget(text string) scriptedReply { return scriptedReply{text: text, tokens: -1} }

type fixedResolver struct {
	ai  adapter.AIServiceAdapter
	err error
}

func (f fixedResolver) Resolve(provider, model string) (adapter.AIServiceAdapter, error) {
	return f.ai, f.err
}

type memConfigRepo struct {
	mu   sync.Mutex
	byID map[string]*model.GenerationConfig
	err  error
}

func newMemConfigRepo(cfgs ...*model.GenerationConfig) *memConfigRepo {
	m := &memConfigRepo{byID: map[string]*model.GenerationConfig{}}
	for _, c := range cfgs {
		m.byID[c.ID] = c
	}
	return m
}

func (m *memConfigRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.GenerationConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	c, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memConfigRepo) Save(ctx context.Context, tx repository.Tx, cfg *model.GenerationConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *cfg
	m.byID[cfg.ID] = &cp
	return nil
}

type memResultRepo struct {
	mu    sync.Mutex
	saved []*model.GenerationResult
	err   error
}

func (m *memResultRepo) Save(ctx context.Context, tx repository.Tx, res *model.GenerationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	cp := *res
	m.saved = append(m.saved, &cp)
	return nil
}

func (m *memResultRepo) FindByEntry(ctx context.Context, tx repository.Tx, entryID string) ([]*model.GenerationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.GenerationResult
	for _, r := range m.saved {
		if r.EntryID == entryID {
			out = append(out, r)
		}
	}
	return out, nil
}

// memJobRepo covers the subset of JobRepository the queue use case touches.
type memJobRepo struct {
	mu         sync.Mutex
	jobs       map[string]*model.Job
	enqueueErr error
}

func newMemJobRepo() *memJobRepo { return &memJobRepo{jobs: map[string]*model.Job{}} }

func (m *memJobRepo) Enqueue(ctx context.Context, tx repository.Tx, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) ClaimNext(ctx context.Context, now time.Time) (*model.Job, error) {
	return nil, domain.ErrNotFound
}
func (m *memJobRepo) MarkCompleted(ctx context.Context, id string, now time.Time) error { return nil }
func (m *memJobRepo) MarkRetry(ctx context.Context, id, errMsg string, next time.Time) error {
	return nil
}
func (m *memJobRepo) MarkFailed(ctx context.Context, id, errMsg string, now time.Time) error {
	return nil
}
func (m *memJobRepo) ResetStuck(ctx context.Context, now time.Time, timeout, stale time.Duration) (repository.StuckReset, error) {
	return repository.StuckReset{}, nil
}
func (m *memJobRepo) CountProcessing(ctx context.Context) (int, error) { return 0, nil }
func (m *memJobRepo) HasPending(ctx context.Context) (bool, error)     { return false, nil }

func (m *memJobRepo) Recent(ctx context.Context, limit int) ([]*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memJobRepo) Statistics(ctx context.Context, now time.Time, window time.Duration) (*model.JobStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := &model.JobStats{Window: window}
	for _, j := range m.jobs {
		st.Add(j.Status, 1)
	}
	return st, nil
}

func (m *memJobRepo) Retry(ctx context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status != model.JobStatusFailed && j.Status != model.JobStatusRetry {
		return domain.ErrInvalidTransition
	}
	j.Status, j.RetryCount = model.JobStatusPending, 0
	if j.ScheduledAt.Before(now) {
		j.ScheduledAt = now
	}
	return nil
}

func (m *memJobRepo) Cancel(ctx context.Context, id, reason string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Status != model.JobStatusPending && j.Status != model.JobStatusRetry {
		return domain.ErrInvalidTransition
	}
	j.Status, j.ErrorMessage = model.JobStatusFailed, reason
	return nil
}

type countingWaker struct {
	mu  sync.Mutex
	n   int
	err error
}

func (w *countingWaker) Wake(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.n++
	return w.err
}

func repeatWords(word string, n int) string {
	return strings.TrimSpace(strings.Repeat(word+" ", n))
}
