package web

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"form-ai-queue/internal/domain"
	"form-ai-queue/internal/domain/model"
	"form-ai-queue/internal/infra/logging"
	red "form-ai-queue/internal/infra/redis"
	"form-ai-queue/internal/usecase"
)

const defaultStatsWindow = 24 * time.Hour

type tokenRequest struct {
	APIKey  string `json:"api_key"`
	Subject string `json:"subject"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.opts.AdminAPIKey == "" {
		s.log.Error().Msg("admin api key is not configured")
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(s.opts.AdminAPIKey)) != 1 {
		writeError(w, http.StatusUnauthorized, "invalid api key")
		return
	}
	if req.Subject == "" {
		req.Subject = "operator"
	}
	tok, exp, err := s.auth.Mint(req.Subject)
	if err != nil {
		s.log.Error().Err(err).Msg("mint token")
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": tok, "expires_at": exp})
}

type submissionRequest struct {
	TargetID     string            `json:"target_id"`
	FormID       string            `json:"form_id"`
	EntryID      string            `json:"entry_id"`
	Payload      map[string]string `json:"payload"`
	DelaySeconds int               `json:"delay_seconds"`
	Priority     int               `json:"priority"`
}

type resultView struct {
	ID         string `json:"id"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Text       string `json:"text"`
	Chunks     int    `json:"chunks"`
	TokensUsed int    `json:"tokens_used"`
	StopReason string `json:"stop_reason"`
	Partial    bool   `json:"partial"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logging.With(ctx, s.log)

	var req submissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if s.limiter != nil && s.opts.SubmitRateLimit > 0 {
		caller := "anonymous"
		if c := claimsFrom(ctx); c != nil && c.Subject != "" {
			caller = c.Subject
		}
		ok, err := s.limiter.Allow(ctx, red.SubmissionKey(caller, req.FormID), s.opts.SubmitRateLimit, time.Minute)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("rate limiter unavailable; admitting submission")
		case !ok:
			writeError(w, http.StatusTooManyRequests, "too many submissions")
			return
		}
	}

	res, err := s.queue.Enqueue(ctx, usecase.EnqueueRequest{
		Type:     model.JobTypeAIForm,
		TargetID: req.TargetID,
		FormID:   req.FormID,
		EntryID:  req.EntryID,
		Payload:  req.Payload,
		Delay:    time.Duration(req.DelaySeconds) * time.Second,
		Priority: req.Priority,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument), errors.Is(err, domain.ErrUnknownJobType):
			writeError(w, http.StatusBadRequest, err.Error())
		case domain.IsPermanent(err):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			log.Error().Err(err).Msg("submission failed")
			writeError(w, http.StatusInternalServerError, "submission failed")
		}
		return
	}

	if !res.Immediate {
		writeJSON(w, http.StatusAccepted, map[string]any{"job_id": res.JobID, "immediate": false})
		return
	}
	out := map[string]any{"immediate": true}
	if g := res.Result; g != nil {
		out["result"] = resultView{
			ID:         g.ID,
			Provider:   g.Provider,
			Model:      g.Model,
			Text:       g.Text,
			Chunks:     g.Chunks,
			TokensUsed: g.TokensUsed,
			StopReason: g.StopReason,
			Partial:    g.Partial,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	window := defaultStatsWindow
	switch v := r.URL.Query().Get("window"); v {
	case "":
	case "all", "0":
		window = 0
	default:
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			writeError(w, http.StatusBadRequest, "invalid window")
			return
		}
		window = d
	}
	stats, err := s.queue.Statistics(r.Context(), window)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load statistics")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pending":    stats.Pending,
		"processing": stats.Processing,
		"completed":  stats.Completed,
		"failed":     stats.Failed,
		"retry":      stats.Retry,
		"total":      stats.Total(),
		"window":     window.String(),
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	jobs, err := s.queue.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.queue.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.queue.Retry(r.Context(), id); err != nil {
		s.writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(model.JobStatusPending)})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.queue.Cancel(r.Context(), id); err != nil {
		s.writeJobError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(model.JobStatusFailed)})
}

func (s *Server) writeJobError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error().Err(err).Msg("job operation failed")
		writeError(w, http.StatusInternalServerError, "job operation failed")
	}
}

// handleLiveness reports the last scheduler tick. The scheduler counts as
// alive while the tick is younger than two heartbeat intervals.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	if s.ticks == nil {
		writeError(w, http.StatusServiceUnavailable, "tick recorder not configured")
		return
	}
	last, err := s.ticks.LastTick(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "tick store unavailable")
		return
	}
	if last.IsZero() {
		writeJSON(w, http.StatusOK, map[string]any{"alive": false, "last_tick": nil})
		return
	}
	age := s.now().Sub(last)
	writeJSON(w, http.StatusOK, map[string]any{
		"alive":       age <= 2*s.opts.HeartbeatInterval,
		"last_tick":   last.UTC(),
		"age_seconds": int(age.Seconds()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleWake(w http.ResponseWriter, r *http.Request) {
	if s.waker == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	if err := s.waker.Wake(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "wake failed")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
