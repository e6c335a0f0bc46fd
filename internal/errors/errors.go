package errors

import (
	"fmt"
)

// StoreError is the structured error type for chunkstore. It carries
// context for error handling, logging, and user presentation.
type StoreError struct {
	// Code is the unique error code (e.g., "ERR_204_CORRUPT_STORE").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Embedding, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// Is matches errors by code, enabling errors.Is with StoreError targets.
func (e *StoreError) Is(target error) bool {
	if t, ok := target.(*StoreError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *StoreError) WithDetail(key, value string) *StoreError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *StoreError) WithSuggestion(suggestion string) *StoreError {
	e.Suggestion = suggestion
	return e
}

// New creates a new StoreError with the given code and message.
// Category, severity, and the retryable flag are derived from the code.
func New(code string, message string, cause error) *StoreError {
	return &StoreError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a StoreError from an existing error. The error's message
// becomes the StoreError message.
func Wrap(code string, err error) *StoreError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *StoreError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IOError creates a store I/O error.
func IOError(message string, cause error) *StoreError {
	return New(ErrCodeSaveFailed, message, cause)
}

// EmbeddingError creates an embedding provider error.
func EmbeddingError(message string, cause error) *StoreError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *StoreError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *StoreError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*StoreError); ok {
		return se.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if se, ok := err.(*StoreError); ok {
		return se.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a StoreError.
// Returns an empty string for other error types.
func GetCode(err error) string {
	if se, ok := err.(*StoreError); ok {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from a StoreError.
func GetCategory(err error) Category {
	if se, ok := err.(*StoreError); ok {
		return se.Category
	}
	return ""
}
