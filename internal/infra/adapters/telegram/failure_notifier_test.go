//go:build !integration

package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"form-ai-queue/internal/domain/model"
)

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func silentLogger() *zerolog.Logger {
	l := zerolog.New(nil)
	return &l
}

func testJob() *model.Job {
	return &model.Job{
		ID: "job-7", Type: model.JobTypeAIForm, TargetID: "cfg-1",
		FormID: "f1", EntryID: "e1", RetryCount: 3, MaxRetries: 3,
	}
}

func TestFailureNotifier(t *testing.T) {
	t.Run("should send the failure to the admin chat", func(t *testing.T) {
		s := &fakeSender{}
		n := newFailureNotifier(s, 42, silentLogger())
		if err := n.NotifyJobFailed(context.Background(), testJob(), "provider not configured"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(s.sent) != 1 {
			t.Fatalf("expected one message, got %d", len(s.sent))
		}
		msg := s.sent[0]
		if msg.ChatID != 42 {
			t.Errorf("expected chat 42, got %d", msg.ChatID)
		}
		for _, want := range []string{"job-7", "cfg-1", "f1/e1", "Attempts: 4 of 4", "provider not configured"} {
			if !strings.Contains(msg.Text, want) {
				t.Errorf("message %q missing %q", msg.Text, want)
			}
		}
	})

	t.Run("should surface send errors", func(t *testing.T) {
		n := newFailureNotifier(&fakeSender{err: errors.New("bad gateway")}, 42, silentLogger())
		if err := n.NotifyJobFailed(context.Background(), testJob(), "x"); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("should not send on a cancelled context", func(t *testing.T) {
		s := &fakeSender{}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := newFailureNotifier(s, 42, silentLogger()).NotifyJobFailed(ctx, testJob(), "x"); err == nil {
			t.Fatal("expected context error")
		}
		if len(s.sent) != 0 {
			t.Error("nothing should be sent")
		}
	})

	t.Run("should truncate long reasons", func(t *testing.T) {
		text := formatFailure(testJob(), strings.Repeat("é", 5000))
		if n := utf8.RuneCountInString(text); n != maxMessageRunes+1 {
			t.Errorf("expected %d runes, got %d", maxMessageRunes+1, n)
		}
	})
}

func TestNewFailureNotifierValidation(t *testing.T) {
	if _, err := NewFailureNotifier("", 1, silentLogger()); err == nil {
		t.Error("expected error for empty token")
	}
	if _, err := NewFailureNotifier("token", 0, silentLogger()); err == nil {
		t.Error("expected error for missing chat id")
	}
}

func TestNoopNotifier(t *testing.T) {
	if err := NewNoopNotifier(silentLogger()).NotifyJobFailed(context.Background(), testJob(), "x"); err != nil {
		t.Fatalf("noop notifier returned %v", err)
	}
}
