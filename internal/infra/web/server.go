package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"form-ai-queue/internal/domain/ports/adapter"
	"form-ai-queue/internal/usecase"
)

// SubmitLimiter bounds how often one caller may submit for one form.
type SubmitLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type Options struct {
	Port              int
	AdminAPIKey       string
	SubmitRateLimit   int
	HeartbeatInterval time.Duration
}

// Server exposes submissions, operator actions and the loopback wake hook.
type Server struct {
	queue   usecase.JobQueueUseCase
	ticks   adapter.TickRecorder
	waker   adapter.Waker
	limiter SubmitLimiter
	auth    *AuthManager
	opts    Options
	log     *zerolog.Logger
	srv     *http.Server
	now     func() time.Time
}

// NewServer wires the HTTP surface. ticks, waker and limiter may be nil.
func NewServer(
	queue usecase.JobQueueUseCase,
	ticks adapter.TickRecorder,
	waker adapter.Waker,
	limiter SubmitLimiter,
	auth *AuthManager,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = 30 * time.Second
	}
	l := logger.With().Str("component", "http").Logger()
	return &Server{
		queue:   queue,
		ticks:   ticks,
		waker:   waker,
		limiter: limiter,
		auth:    auth,
		opts:    opts,
		log:     &l,
		now:     time.Now,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(traceID)
	r.Use(requestLog(s.log))
	r.Use(recoverer(s.log))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.With(loopbackOnly).Post("/internal/wake", s.handleWake)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/token", s.handleToken)

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)

			r.Post("/submissions", s.handleSubmit)
			r.Get("/jobs/stats", s.handleStats)
			r.Get("/jobs/recent", s.handleRecent)
			r.Get("/jobs/{id}", s.handleGetJob)
			r.Post("/jobs/{id}/retry", s.handleRetry)
			r.Post("/jobs/{id}/cancel", s.handleCancel)
			r.Get("/scheduler/liveness", s.handleLiveness)
		})
	})
	return r
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Int("port", s.opts.Port).Msg("http server listening")
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(sctx)
}
