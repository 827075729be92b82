package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Task is one periodic housekeeping step.
type Task func(ctx context.Context) error

// Periodic runs a Task on a fixed interval until stopped. It backs the
// db pool reporter and the queue depth refresher.
type Periodic struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	task     Task
	log      *zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPeriodic builds a runner for task. interval <= 0 means one minute; each
// run gets a deadline of at most the interval.
func NewPeriodic(name string, interval time.Duration, task Task, logger *zerolog.Logger) *Periodic {
	if interval <= 0 {
		interval = time.Minute
	}
	l := logger.With().Str("component", "scheduler").Str("task", name).Logger()
	return &Periodic{name: name, interval: interval, timeout: interval, task: task, log: &l}
}

// Start launches the loop; calling it while running has no effect.
func (p *Periodic) Start(parent context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
}

func (p *Periodic) loop(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	p.log.Debug().Dur("interval", p.interval).Msg("started")
	p.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runOnce(ctx)
		}
	}
}

func (p *Periodic) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.task(runCtx); err != nil && ctx.Err() == nil {
		p.log.Warn().Err(err).Msg("periodic task failed")
	}
}

// Stop cancels the loop and waits for it to exit. It is idempotent.
func (p *Periodic) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
