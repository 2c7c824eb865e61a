// Package errors provides structured error types for docbench.
// Every error carries a category and a code so the fill driver and the
// benchmark harness can decide whether to stop or move on.
package errors

import (
	"errors"
	"fmt"
)

// ErrAuthFailed marks a connect failure caused by rejected credentials.
// Store backends wrap it so NewConnectError can tell it apart from an
// unreachable server.
var ErrAuthFailed = errors.New("authentication failed")

// ErrorCategory classifies errors by the path that produced them.
type ErrorCategory string

const (
	ErrCategoryConnect  ErrorCategory = "CONNECT"
	ErrCategoryPersist  ErrorCategory = "PERSIST"
	ErrCategoryQuery    ErrorCategory = "QUERY"
	ErrCategoryConfig   ErrorCategory = "CONFIG"
	ErrCategoryBench    ErrorCategory = "BENCH"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Connect codes
	CodeUnreachable = "UNREACHABLE"
	CodeAuthFailed  = "AUTH_FAILED"

	// Persist codes
	CodeInsertFailed = "INSERT_FAILED"

	// Query codes
	CodeFindFailed      = "FIND_FAILED"
	CodeAggregateFailed = "AGGREGATE_FAILED"
	CodeDecodeFailed    = "DECODE_FAILED"

	// Config codes
	CodeInvalidConfig = "INVALID_CONFIG"

	// Bench codes
	CodeOperationFailed = "OPERATION_FAILED"
	CodeNoOperations    = "NO_OPERATIONS"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// DocbenchError is the structured error type used throughout the system.
type DocbenchError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Details  map[string]interface{}
	Cause    error
}

// Error returns a formatted error string.
func (e *DocbenchError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *DocbenchError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *DocbenchError) Is(target error) bool {
	var t *DocbenchError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new DocbenchError.
func New(category ErrorCategory, code, message string) *DocbenchError {
	return &DocbenchError{
		Category: category,
		Code:     code,
		Message:  message,
	}
}

// Wrap creates a new DocbenchError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *DocbenchError {
	return &DocbenchError{
		Category: category,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DocbenchError) WithDetails(details map[string]interface{}) *DocbenchError {
	cp := *e
	cp.Details = details
	return &cp
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a DocbenchError.
func GetCategory(err error) ErrorCategory {
	var de *DocbenchError
	if errors.As(err, &de) {
		return de.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a DocbenchError.
func GetCode(err error) string {
	var de *DocbenchError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// PersistError reports a fanout insert that failed part way through a tree.
// Documents written before the failure stay in the store.
type PersistError struct {
	// Collection is the collection whose insert failed
	Collection string
	// Persisted is the number of documents written before the failure
	Persisted int
	// Cause is the first store error encountered
	Cause error
}

// Error returns a formatted error string.
func (e *PersistError) Error() string {
	return fmt.Sprintf("[%s:%s] insert into %s failed after %d documents: %v",
		ErrCategoryPersist, CodeInsertFailed, e.Collection, e.Persisted, e.Cause)
}

// Unwrap returns the store error.
func (e *PersistError) Unwrap() error {
	return e.Cause
}

// Is matches any DocbenchError with the PERSIST/INSERT_FAILED category and code.
func (e *PersistError) Is(target error) bool {
	var t *DocbenchError
	if errors.As(target, &t) {
		return t.Category == ErrCategoryPersist && t.Code == CodeInsertFailed
	}
	return false
}

// IsPersistError reports whether err carries a PersistError.
func IsPersistError(err error) bool {
	var pe *PersistError
	return errors.As(err, &pe)
}

// Convenience constructors for common errors.

func NewConnectError(message string, cause error) *DocbenchError {
	code := CodeUnreachable
	if errors.Is(cause, ErrAuthFailed) {
		code = CodeAuthFailed
	}
	return Wrap(ErrCategoryConnect, code, message, cause)
}

func NewPersistError(collection string, persisted int, cause error) *PersistError {
	return &PersistError{Collection: collection, Persisted: persisted, Cause: cause}
}

func NewQueryError(code, message string, cause error) *DocbenchError {
	return Wrap(ErrCategoryQuery, code, message, cause)
}

func NewConfigError(message string) *DocbenchError {
	return New(ErrCategoryConfig, CodeInvalidConfig, message)
}

func NewBenchError(code, message string, cause error) *DocbenchError {
	return Wrap(ErrCategoryBench, code, message, cause)
}

func NewInternalError(message string, cause error) *DocbenchError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

// IsConnectError reports whether err is, or wraps, a CONNECT category error.
func IsConnectError(err error) bool {
	return GetCategory(err) == ErrCategoryConnect
}
