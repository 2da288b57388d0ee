package pipeline

import (
	"errors"
	"fmt"
)

// ErrorCode identifies well-known domain error categories raised while
// defining or registering a pipeline.
type ErrorCode string

const (
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"
	ErrCodeDuplicate  ErrorCode = "DUPLICATE_ID"
	ErrCodeDependency ErrorCode = "DEPENDENCY_ERROR"
	ErrCodeMissing    ErrorCode = "MISSING_REQUIRED"
)

// DomainError is a typed error enriched with contextual data, kept free of
// any storage or transport dependency so it can be constructed deep inside
// validation and dependency-graph logic and still be inspected by callers
// with errors.As.
type DomainError struct {
	Code    ErrorCode
	Message string
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is allows errors.Is comparisons against other DomainError values by code
// and message.
func (e *DomainError) Is(target error) bool {
	var domainErr *DomainError
	if !errors.As(target, &domainErr) {
		return false
	}
	return e.Code == domainErr.Code && e.Message == domainErr.Message
}

func newDomainError(code ErrorCode, message string, context map[string]interface{}) *DomainError {
	return &DomainError{Code: code, Message: message, Context: context}
}

func newValidationError(message string, context map[string]interface{}) *DomainError {
	return newDomainError(ErrCodeValidation, message, context)
}

func newDuplicateError(name string) *DomainError {
	return newDomainError(ErrCodeDuplicate, "duplicate step name", map[string]interface{}{"step": name})
}

func newDependencyError(message string, context map[string]interface{}) *DomainError {
	return newDomainError(ErrCodeDependency, message, context)
}

func newMissingFieldError(field string) *DomainError {
	return newDomainError(ErrCodeMissing, "missing required field", map[string]interface{}{"field": field})
}
