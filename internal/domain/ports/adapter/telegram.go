// File: internal/domain/ports/adapter/telegram.go
package adapter

import (
	"context"

	"form-ai-queue/internal/domain/model"
)

// FailureNotifier alerts operators when a job fails permanently.
type FailureNotifier interface {
	NotifyJobFailed(ctx context.Context, job *model.Job, reason string) error
}
