package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"form-ai-queue/internal/domain/model"
	"form-ai-queue/internal/domain/ports/adapter"
)

var (
	_ adapter.FailureNotifier = (*FailureNotifier)(nil)
	_ adapter.FailureNotifier = (*NoopNotifier)(nil)
)

// Telegram rejects messages above 4096 characters.
const maxMessageRunes = 4000

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// FailureNotifier posts permanently failed jobs to the operator chat.
type FailureNotifier struct {
	bot    sender
	chatID int64
	log    *zerolog.Logger
}

func NewFailureNotifier(token string, chatID int64, logger *zerolog.Logger) (*FailureNotifier, error) {
	if token == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram admin chat id is not set")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return newFailureNotifier(bot, chatID, logger), nil
}

func newFailureNotifier(bot sender, chatID int64, logger *zerolog.Logger) *FailureNotifier {
	l := logger.With().Str("component", "telegram_notifier").Logger()
	return &FailureNotifier{bot: bot, chatID: chatID, log: &l}
}

func (n *FailureNotifier) NotifyJobFailed(ctx context.Context, job *model.Job, reason string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(n.chatID, formatFailure(job, reason))
	msg.DisableWebPagePreview = true
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("send failure alert: %w", err)
	}
	n.log.Debug().Str("job_id", job.ID).Msg("failure alert sent")
	return nil
}

func formatFailure(job *model.Job, reason string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Job failed: %s\n", job.ID)
	fmt.Fprintf(&b, "Type: %s\n", job.Type)
	fmt.Fprintf(&b, "Config: %s\n", job.TargetID)
	if job.FormID != "" || job.EntryID != "" {
		fmt.Fprintf(&b, "Form/entry: %s/%s\n", job.FormID, job.EntryID)
	}
	fmt.Fprintf(&b, "Attempts: %d of %d\n", job.RetryCount+1, job.MaxRetries+1)
	b.WriteString("Reason: ")
	b.WriteString(reason)

	out := []rune(b.String())
	if len(out) > maxMessageRunes {
		return string(out[:maxMessageRunes]) + "…"
	}
	return string(out)
}

// NoopNotifier logs failures instead of sending them anywhere.
type NoopNotifier struct {
	log *zerolog.Logger
}

func NewNoopNotifier(logger *zerolog.Logger) *NoopNotifier {
	l := logger.With().Str("component", "noop_notifier").Logger()
	return &NoopNotifier{log: &l}
}

func (n *NoopNotifier) NotifyJobFailed(ctx context.Context, job *model.Job, reason string) error {
	n.log.Warn().Str("job_id", job.ID).Str("reason", reason).Msg("job failed permanently")
	return nil
}
