// Package errors provides a structured error system for tiercache with
// error codes, categories, and retry hints.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorCode represents a structured error code for cache operations.
type ErrorCode string

const (
	// Configuration errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingConfig    ErrorCode = "MISSING_CONFIG"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Backend errors
	ErrCodeTierUnavailable   ErrorCode = "TIER_UNAVAILABLE"
	ErrCodeConnectionFailed  ErrorCode = "CONNECTION_FAILED"
	ErrCodeConnectionTimeout ErrorCode = "CONNECTION_TIMEOUT"
	ErrCodeNetworkError      ErrorCode = "NETWORK_ERROR"
	ErrCodeQuotaExceeded     ErrorCode = "QUOTA_EXCEEDED"

	// Serialization errors
	ErrCodeSerialization    ErrorCode = "SERIALIZATION"
	ErrCodeChecksumMismatch ErrorCode = "CHECKSUM_MISMATCH"

	// Operation errors
	ErrCodeOperationTimeout  ErrorCode = "OPERATION_TIMEOUT"
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"

	// State errors
	ErrCodeInvalidState       ErrorCode = "INVALID_STATE"
	ErrCodeShutdownInProgress ErrorCode = "SHUTDOWN_IN_PROGRESS"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryBackend       ErrorCategory = "backend"
	CategorySerialization ErrorCategory = "serialization"
	CategoryOperation     ErrorCategory = "operation"
	CategoryState         ErrorCategory = "state"
	CategoryInternal      ErrorCategory = "internal"
)

// CacheError represents a structured error with context and metadata.
type CacheError struct {
	Code     ErrorCode     `json:"code"`
	Category ErrorCategory `json:"category"`
	Message  string        `json:"message"`

	// Tier names the cache tier the error originated from, if any.
	Tier      string `json:"tier,omitempty"`
	Operation string `json:"operation,omitempty"`

	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`

	// Retryable indicates the operation may succeed if repeated.
	Retryable bool `json:"retryable"`
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	if e.Tier != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Tier, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Tier, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *CacheError) Unwrap() error {
	return e.Cause
}

// Is matches two CacheErrors by code.
func (e *CacheError) Is(target error) bool {
	if cacheErr, ok := target.(*CacheError); ok {
		return e.Code == cacheErr.Code
	}
	return false
}

// New creates a CacheError with the given code and message.
func New(code ErrorCode, message string) *CacheError {
	return &CacheError{
		Code:      code,
		Category:  categoryOf(code),
		Message:   message,
		Timestamp: time.Now(),
		Retryable: retryableByDefault(code),
	}
}

// Newf creates a CacheError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *CacheError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap creates a CacheError wrapping a cause.
func Wrap(code ErrorCode, message string, cause error) *CacheError {
	err := New(code, message)
	err.Cause = cause
	return err
}

// WithTier attaches the originating tier name.
func (e *CacheError) WithTier(tier string) *CacheError {
	e.Tier = tier
	return e
}

// WithOperation attaches the operation name (get, set, delete, clear).
func (e *CacheError) WithOperation(op string) *CacheError {
	e.Operation = op
	return e
}

// WithRetryable overrides the default retry hint for the code.
func (e *CacheError) WithRetryable(retryable bool) *CacheError {
	e.Retryable = retryable
	return e
}

// NewTierUnavailable builds the standard error for an unreachable or
// erroring tier backend.
func NewTierUnavailable(tier, op string, cause error) *CacheError {
	return Wrap(ErrCodeTierUnavailable, "tier backend unavailable", cause).
		WithTier(tier).
		WithOperation(op)
}

// NewSerialization builds the standard error for bytes that cannot be
// decoded (corruption or version skew).
func NewSerialization(message string, cause error) *CacheError {
	return Wrap(ErrCodeSerialization, message, cause)
}

// NewQuotaExceeded builds the standard error for a persisted-store write
// rejected for lack of space.
func NewQuotaExceeded(tier string, cause error) *CacheError {
	return Wrap(ErrCodeQuotaExceeded, "storage quota exceeded", cause).
		WithTier(tier).
		WithOperation("set")
}

// IsRetryable reports whether err carries a retryable hint.
func IsRetryable(err error) bool {
	var cacheErr *CacheError
	if stderrors.As(err, &cacheErr) {
		return cacheErr.Retryable
	}
	return false
}

// CodeOf extracts the error code from err, or ErrCodeInternalError when err
// is not a CacheError.
func CodeOf(err error) ErrorCode {
	var cacheErr *CacheError
	if stderrors.As(err, &cacheErr) {
		return cacheErr.Code
	}
	return ErrCodeInternalError
}

func categoryOf(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeInvalidConfig, ErrCodeMissingConfig, ErrCodeConfigLoad, ErrCodeConfigValidation:
		return CategoryConfiguration
	case ErrCodeTierUnavailable, ErrCodeConnectionFailed, ErrCodeConnectionTimeout,
		ErrCodeNetworkError, ErrCodeQuotaExceeded:
		return CategoryBackend
	case ErrCodeSerialization, ErrCodeChecksumMismatch:
		return CategorySerialization
	case ErrCodeOperationTimeout, ErrCodeOperationCanceled:
		return CategoryOperation
	case ErrCodeInvalidState, ErrCodeShutdownInProgress:
		return CategoryState
	default:
		return CategoryInternal
	}
}

func retryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeTierUnavailable, ErrCodeConnectionFailed, ErrCodeConnectionTimeout,
		ErrCodeNetworkError, ErrCodeOperationTimeout:
		return true
	default:
		return false
	}
}
