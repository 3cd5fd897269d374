package enrichment

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ValidationError means the provider answered but the payload could not be used.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid AI payload: %s: %v", e.Reason, e.Err)
	}
	return "invalid AI payload: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// TransientProviderError is a provider failure worth retrying.
type TransientProviderError struct {
	Provider string
	Err      error
}

func (e *TransientProviderError) Error() string {
	return fmt.Sprintf("%s: transient provider error: %v", e.Provider, e.Err)
}

func (e *TransientProviderError) Unwrap() error { return e.Err }

// TerminalProviderError is a provider failure that retrying will not fix.
type TerminalProviderError struct {
	Provider string
	Err      error
}

func (e *TerminalProviderError) Error() string {
	return fmt.Sprintf("%s: provider error: %v", e.Provider, e.Err)
}

func (e *TerminalProviderError) Unwrap() error { return e.Err }

var transientMarkers = []string{
	"429",
	"rate limit",
	"too many requests",
	"500", "502", "503", "504",
	"internal server error",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	"overloaded",
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"broken pipe",
	"unexpected eof",
}

// ClassifyProviderError wraps err as transient or terminal. Errors that are already
// classified pass through unchanged.
func ClassifyProviderError(provider string, err error) error {
	if err == nil {
		return nil
	}

	var transient *TransientProviderError
	var terminal *TerminalProviderError
	if errors.As(err, &transient) || errors.As(err, &terminal) {
		return err
	}

	// The caller gave up; retrying cannot help.
	if errors.Is(err, context.Canceled) {
		return &TerminalProviderError{Provider: provider, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TransientProviderError{Provider: provider, Err: err}
	}

	lower := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(lower, marker) {
			return &TransientProviderError{Provider: provider, Err: err}
		}
	}
	return &TerminalProviderError{Provider: provider, Err: err}
}

// IsTransient reports whether err is a TransientProviderError.
func IsTransient(err error) bool {
	var transient *TransientProviderError
	return errors.As(err, &transient)
}
