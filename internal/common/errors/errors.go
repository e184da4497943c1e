// internal/common/errors/errors.go
// Package errors provides standardized error handling for the aggregation pipeline.
package errors

import (
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Source fetch errors — isolated per source, never fatal to a cycle.
	ErrCodeAdapterFetchFailed ErrorCode = "ADAPTER_FETCH_FAILED"
	ErrCodeAdapterTimeout     ErrorCode = "ADAPTER_TIMEOUT"
	ErrCodeAdapterNotFound    ErrorCode = "ADAPTER_NOT_FOUND"

	// Per-item normalization errors — the item is dropped, the cycle continues.
	ErrCodeItemNormalizationFailed ErrorCode = "ITEM_NORMALIZATION_FAILED"

	// Scoring-service errors.
	ErrCodeScoringTransient   ErrorCode = "SCORING_TRANSIENT"
	ErrCodeScoringRateLimited ErrorCode = "SCORING_RATE_LIMITED"
	ErrCodeScoringMalformed   ErrorCode = "SCORING_MALFORMED"

	// Cycle-level fatal condition: zero usable sources or zero scorable items.
	ErrCodeCycleFatal ErrorCode = "CYCLE_FATAL"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewAdapterFetchFailedError creates a non-fatal source fetch error.
func NewAdapterFetchFailedError(sourceID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAdapterFetchFailed,
		Message:   "Source adapter fetch failed",
		Details:   fmt.Sprintf("sourceId: %s, error: %s", sourceID, err.Error()),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAdapterTimeoutError creates a non-fatal source timeout error.
func NewAdapterTimeoutError(sourceID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAdapterTimeout,
		Message:   "Source adapter exceeded its fetch timeout",
		Details:   fmt.Sprintf("sourceId: %s", sourceID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAdapterNotFoundError reports a source configured with an unknown capability.
func NewAdapterNotFoundError(capability string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAdapterNotFound,
		Message:   "No adapter registered for capability",
		Details:   fmt.Sprintf("capability: %s", capability),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewItemNormalizationError creates a per-item normalization error.
func NewItemNormalizationError(sourceID, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeItemNormalizationFailed,
		Message:   "Raw item failed normalization",
		Details:   fmt.Sprintf("sourceId: %s, %s", sourceID, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewScoringTransientError creates a retryable scoring-service error.
func NewScoringTransientError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeScoringTransient,
		Message:   "Scoring service transient failure",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewScoringRateLimitedError creates a retryable rate-limit error.
func NewScoringRateLimitedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeScoringRateLimited,
		Message:   "Scoring service rate limit hit",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewScoringMalformedError creates a non-retryable scoring error.
func NewScoringMalformedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeScoringMalformed,
		Message:   "Scoring request or response malformed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCycleFatalError creates the error that aborts a refresh cycle. The prior
// snapshot stays authoritative; nothing is rolled back because nothing was
// committed.
func NewCycleFatalError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCycleFatal,
		Message:   "Refresh cycle produced no publishable snapshot",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// IsRetryable reports whether err is a StandardError marked retryable.
func IsRetryable(err error) bool {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr.Retryable
	}
	return false
}

// CodeOf extracts the ErrorCode from err, or empty when err is not a StandardError.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := err.(*StandardError); ok {
		return stdErr.Code
	}
	return ""
}
