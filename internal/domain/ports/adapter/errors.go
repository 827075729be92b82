package adapter

import (
	"errors"
	"fmt"
)

// ErrorKind is the provider error taxonomy the chunk controller inspects.
type ErrorKind string

const (
	KindMissingCredentials ErrorKind = "missing_credentials"
	KindRateLimited        ErrorKind = "rate_limited"
	KindInvalidCredentials ErrorKind = "invalid_or_expired_credentials"
	KindContextTooLong     ErrorKind = "context_too_long"
	KindContentFiltered    ErrorKind = "content_filtered"
	KindMalformedResponse  ErrorKind = "malformed_response"
	KindTransport          ErrorKind = "transport_error"
	KindUnknown            ErrorKind = "unknown"
)

// Transient kinds are worth a plain retry after a pause.
func (k ErrorKind) Transient() bool {
	return k == KindRateLimited || k == KindTransport
}

// Permanent kinds cannot be fixed by retrying the same job.
func (k ErrorKind) Permanent() bool {
	switch k {
	case KindMissingCredentials, KindInvalidCredentials, KindContentFiltered:
		return true
	}
	return false
}

// ProviderError is the only error type provider clients return.
type ProviderError struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (http %d): %s", e.Provider, e.Kind, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, msg)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func NewProviderError(provider string, kind ErrorKind, status int, msg string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, StatusCode: status, Message: msg, Err: err}
}

// KindOf extracts the classification from err, KindUnknown if err is not a ProviderError.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}
