package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidTransition  = errors.New("invalid job status transition")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// ErrPermanent marks a failure that retrying cannot fix. The job runner
	// records such jobs as failed without consuming retry budget.
	ErrPermanent = errors.New("permanent failure")

	ErrMissingTemplate       = errors.New("generation config has no prompt template")
	ErrProviderNotConfigured = errors.New("ai provider not configured")
	ErrUnknownJobType        = errors.New("no handler registered for job type")
)

// Permanent wraps err so that errors.Is(err, ErrPermanent) reports true
// while the original error stays reachable through errors.Is/As.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() []error { return []error{ErrPermanent, e.err} }

// IsPermanent reports whether err was marked permanent.
func IsPermanent(err error) bool { return errors.Is(err, ErrPermanent) }
