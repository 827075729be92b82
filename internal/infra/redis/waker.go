package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"form-ai-queue/internal/domain/ports/adapter"
)

var _ adapter.Waker = (*Waker)(nil)

// Waker publishes a wake-soon signal on a Redis channel. When publishing fails
// the fallback waker (usually the HTTP loopback) is tried instead.
type Waker struct {
	cli      *redis.Client
	channel  string
	fallback adapter.Waker
	log      *zerolog.Logger
}

func NewWaker(c *Client, channel string, fallback adapter.Waker, logger *zerolog.Logger) *Waker {
	l := logger.With().Str("component", "redis_waker").Logger()
	return &Waker{cli: c.cli, channel: channel, fallback: fallback, log: &l}
}

func (w *Waker) Wake(ctx context.Context) error {
	err := w.cli.Publish(ctx, w.channel, time.Now().UnixNano()).Err()
	if err == nil {
		return nil
	}
	if w.fallback == nil {
		return fmt.Errorf("publish wake: %w", err)
	}
	w.log.Warn().Err(err).Msg("publish failed, using fallback waker")
	return w.fallback.Wake(ctx)
}

// Subscribe delivers one signal per received wake, coalescing bursts. The
// channel closes when ctx is done.
func (w *Waker) Subscribe(ctx context.Context) <-chan struct{} {
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for ctx.Err() == nil {
			sub := w.cli.Subscribe(ctx, w.channel)
			msgs := sub.Channel()
		recv:
			for {
				select {
				case <-ctx.Done():
					_ = sub.Close()
					return
				case _, ok := <-msgs:
					if !ok {
						break recv
					}
					select {
					case out <- struct{}{}:
					default:
					}
				}
			}
			_ = sub.Close()
			// connection dropped; retry after a pause
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}()
	return out
}

var _ adapter.TickRecorder = (*TickRecorder)(nil)

// TickRecorder keeps the last scheduler tick time under one key.
type TickRecorder struct {
	cli *redis.Client
	key string
}

func NewTickRecorder(c *Client, key string) *TickRecorder {
	return &TickRecorder{cli: c.cli, key: key}
}

func (t *TickRecorder) RecordTick(ctx context.Context, at time.Time) error {
	return t.cli.Set(ctx, t.key, formatTick(at), 0).Err()
}

// LastTick returns the zero time when no tick was recorded yet.
func (t *TickRecorder) LastTick(ctx context.Context) (time.Time, error) {
	v, err := t.cli.Get(ctx, t.key).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return parseTick(v)
}

func formatTick(at time.Time) string { return strconv.FormatInt(at.UnixMilli(), 10) }

func parseTick(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse last tick %q: %w", v, err)
	}
	return time.UnixMilli(ms), nil
}
