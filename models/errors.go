package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure categories that callers branch on.
var (
	// ErrPricingNotFound indicates a model has no entry in the price table.
	ErrPricingNotFound = errors.New("pricing not found for model")

	// ErrCacheSchema indicates a persisted cache was written by an
	// incompatible version and must be discarded wholesale.
	ErrCacheSchema = errors.New("cache schema version mismatch")

	// ErrNoPricingAvailable is returned in offline mode when no pricing
	// table was ever cached. It is the only pricing failure that
	// propagates to the user.
	ErrNoPricingAvailable = errors.New("offline mode: no cached pricing data available")
)

// UsageError reports invalid caller input, such as a date filter with
// from after to. It is surfaced verbatim and never auto-corrected.
type UsageError struct {
	Msg string
}

func (e *UsageError) Error() string {
	return e.Msg
}

// NewUsageError creates a UsageError with a formatted message.
func NewUsageError(format string, args ...interface{}) *UsageError {
	return &UsageError{Msg: fmt.Sprintf(format, args...)}
}

// IsUsageError reports whether err is (or wraps) a UsageError.
func IsUsageError(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}

// ParseError describes a file that could not be parsed. It is logged as a
// warning and never propagates above file scope.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// FileAccessError describes a file that could not be read. The file is
// skipped and retried on the next scan.
type FileAccessError struct {
	Path string
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error {
	return e.Err
}
