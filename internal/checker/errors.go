package checker

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrNoSignal      = errors.New("no version signal")
)

// ConfigurationError means the item cannot be checked as configured: its CheckSource is
// missing, its legacy source tag is unsupported or its parameters do not validate.
type ConfigurationError struct {
	Item   string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error for %s: %s: %v", e.Item, e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error for %s: %s", e.Item, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Is matches ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// NoSignalError means the connector produced no version for the item.
type NoSignalError struct {
	Item       string
	SourceType string
}

func (e *NoSignalError) Error() string {
	return fmt.Sprintf("no version found for %s from source %s", e.Item, e.SourceType)
}

// Is matches ErrNoSignal.
func (e *NoSignalError) Is(target error) bool { return target == ErrNoSignal }
