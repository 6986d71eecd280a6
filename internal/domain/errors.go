package domain

import "fmt"

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
		Err:     nil,
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

// Common domain error codes
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodePreconditionFailed = "PRECONDITION_FAILED"
	ErrCodeStore              = "STORE_ERROR"
	ErrCodeGeneration         = "GENERATION_ERROR"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeAlreadyExists      = "ALREADY_EXISTS"
)

// Validation errors
var (
	ErrEmptyQuestion     = NewDomainError(ErrCodeValidation, "question cannot be empty")
	ErrEmptyQuery        = NewDomainError(ErrCodeValidation, "query cannot be empty")
	ErrLimitOutOfRange   = NewDomainError(ErrCodeValidation, "limit must be between 1 and 50")
	ErrInvalidSearchMode = NewDomainError(ErrCodeValidation, "search type must be lexical or vector")
	ErrInvalidModelType  = NewDomainError(ErrCodeValidation, "invalid model type")
)

// Precondition errors
var (
	ErrNoEmbeddingModel = NewDomainError(ErrCodePreconditionFailed, "vector search requires an embedding model, configure one in the models section")
)

// Not found errors
var (
	ErrModelNotFound = NewDomainError(ErrCodeNotFound, "model not found")
)

// Already exists errors
var (
	ErrModelAlreadyExists = NewDomainError(ErrCodeAlreadyExists, "model already exists")
)
