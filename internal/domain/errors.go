package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeTransientProvider = "TRANSIENT_PROVIDER_ERROR"
	ErrCodePermanentProvider = "PERMANENT_PROVIDER_ERROR"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrEmptyQuery                = NewDomainError(ErrCodeValidation, "query must not be empty")
	ErrEmptyContent              = NewDomainError(ErrCodeValidation, "article content must not be empty")
	ErrMissingOrganization       = NewDomainError(ErrCodeValidation, "organization_id is required")
	ErrMissingRequiredField      = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidEmbeddingJobStatus = NewDomainError(ErrCodeValidation, "invalid embedding job status")
	ErrOrganizationMismatch      = NewDomainError(ErrCodeValidation, "article belongs to a different organization")
	ErrArticleUnpublished        = NewDomainError(ErrCodeValidation, "article is not published")
)

// Not found errors
var (
	ErrArticleNotFound      = NewDomainError(ErrCodeNotFound, "article not found")
	ErrEmbeddingJobNotFound = NewDomainError(ErrCodeNotFound, "embedding job not found")
)

// Conflict errors
var (
	ErrEmbeddingJobNotPending = NewDomainError(ErrCodeConflict, "embedding job is not pending")
	ErrStaleArticleRevision   = NewDomainError(ErrCodeConflict, "article changed while it was being indexed")
)

// NewValidationError returns a validation error with a custom message.
func NewValidationError(message string) *DomainError {
	return NewDomainError(ErrCodeValidation, message)
}

// NewStoreError wraps a persistence failure.
func NewStoreError(message string, err error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeStore, message, err)
}

// EmbeddingFailure is returned by embedding providers when a request cannot
// be served. Transient failures have already exhausted the provider's own
// retry budget by the time they surface.
type EmbeddingFailure struct {
	Transient  bool
	StatusCode int
	Message    string
	Err        error
}

func (e *EmbeddingFailure) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("embedding failure (%s, status %d): %s", kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("embedding failure (%s): %s", kind, e.Message)
}

func (e *EmbeddingFailure) Unwrap() error {
	return e.Err
}

// ErrorCode classifies an error into one of the domain error codes.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var failure *EmbeddingFailure
	if errors.As(err, &failure) {
		if failure.Transient {
			return ErrCodeTransientProvider
		}
		return ErrCodePermanentProvider
	}

	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}

	return ErrCodeInternalError
}

// IsRetryable reports whether a job that failed with err may succeed on a
// later attempt. Validation, not-found and permanent provider errors never do.
func IsRetryable(err error) bool {
	switch ErrorCode(err) {
	case ErrCodeValidation, ErrCodeNotFound, ErrCodeConflict, ErrCodePermanentProvider:
		return false
	case "":
		return false
	default:
		return true
	}
}
