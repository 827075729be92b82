package ai

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"form-ai-queue/internal/domain/ports/adapter"
)

var (
	contextTooLongHints = []string{
		"context length", "context_length", "maximum context", "too many tokens",
		"prompt is too long", "input is too long", "exceeds the maximum", "token limit",
	}
	contentFilterHints = []string{
		"content_filter", "content filter", "content management policy", "safety", "blocked",
	}
	credentialHints = []string{
		"invalid api key", "invalid x-api-key", "incorrect api key", "api key not valid",
		"api_key_invalid", "expired",
	}
)

// classifyStatus maps an HTTP status plus the provider's error text onto the
// shared taxonomy.
func classifyStatus(status int, msg string) adapter.ErrorKind {
	lower := strings.ToLower(msg)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return adapter.KindInvalidCredentials
	case status == http.StatusTooManyRequests:
		return adapter.KindRateLimited
	case containsAny(lower, contextTooLongHints):
		return adapter.KindContextTooLong
	case containsAny(lower, contentFilterHints):
		return adapter.KindContentFiltered
	case status == http.StatusBadRequest && containsAny(lower, credentialHints):
		return adapter.KindInvalidCredentials
	case status == http.StatusRequestTimeout || status >= 500:
		// 529 overloaded lands here too
		return adapter.KindTransport
	}
	return adapter.KindUnknown
}

// classifyTransport handles errors that never produced an HTTP response.
func classifyTransport(err error) adapter.ErrorKind {
	if errors.Is(err, context.Canceled) {
		return adapter.KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return adapter.KindTransport
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return adapter.KindTransport
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return adapter.KindTransport
	}
	return adapter.KindUnknown
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func missingCredentials(provider string) *adapter.ProviderError {
	return adapter.NewProviderError(provider, adapter.KindMissingCredentials, 0, "api key not configured", nil)
}

func malformed(provider, msg string) *adapter.ProviderError {
	return adapter.NewProviderError(provider, adapter.KindMalformedResponse, 0, msg, nil)
}
