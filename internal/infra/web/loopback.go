package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// LoopbackWaker posts to this process's own /internal/wake endpoint. Wake
// returns at once; the request runs in the background with a short timeout.
type LoopbackWaker struct {
	url    string
	client *http.Client
	log    *zerolog.Logger
}

func NewLoopbackWaker(url string, logger *zerolog.Logger) *LoopbackWaker {
	l := logger.With().Str("component", "loopback_waker").Logger()
	return &LoopbackWaker{url: url, client: &http.Client{Timeout: 2 * time.Second}, log: &l}
}

func (w *LoopbackWaker) Wake(ctx context.Context) error {
	if w.url == "" {
		return fmt.Errorf("loopback url not configured")
	}
	go func() {
		if err := w.post(); err != nil {
			w.log.Warn().Err(err).Msg("loopback wake failed")
		}
	}()
	return nil
}

func (w *LoopbackWaker) post() error {
	req, err := http.NewRequest(http.MethodPost, w.url, nil)
	if err != nil {
		return err
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("loopback wake: status %d", resp.StatusCode)
	}
	return nil
}
