// Package errors contains helper functions and types to work with errors
package errors

import (
	"errors"
)

// Category defines error category
type Category int

const (
	// CategoryNoError is the zero value and means no classified failure.
	CategoryNoError Category = iota
	// CategoryConfiguration The tool is missing required configuration
	// (signing key, node endpoint). Fatal, never retried.
	CategoryConfiguration
	// CategoryTransient A network round-trip failed in a way that is expected
	// to succeed on retry (timeout, unreachable node). Retry scheduling is the
	// caller's responsibility.
	CategoryTransient
	// CategoryChainRejected The node or the chain rejected the work
	// (nonce mismatch, underpriced, reverted). Recorded as a terminal state
	// on the affected record.
	CategoryChainRejected
	// CategoryInvariantViolation Local data contradicts itself (negative
	// balance, duplicate nonce). Processing of the affected unit stops.
	CategoryInvariantViolation
	// CategoryGeneralError The service failed in an unexpected way
	CategoryGeneralError
)

func (c Category) String() string {
	switch c {
	case CategoryConfiguration:
		return "CategoryConfiguration"
	case CategoryTransient:
		return "CategoryTransient"
	case CategoryChainRejected:
		return "CategoryChainRejected"
	case CategoryInvariantViolation:
		return "CategoryInvariantViolation"
	default:
		return "CategoryGeneralError"
	}
}

// ServiceError represents service specific type that
// is used all over the services.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
}

// Error method to comply with error interface
func (err *ServiceError) Error() string {
	if err.Err != nil {
		return err.Message + ": " + err.Err.Error()
	}
	return err.Message
}

// Unwrap returns the underlying error
func (err *ServiceError) Unwrap() error {
	return err.Err
}

// Is checks that provided error is a ServiceError with desired Category
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) && svcErr.Category == cat {
		return true
	}
	return false
}

// IsRetryable reports whether the caller may usefully retry the operation.
func IsRetryable(err error) bool {
	return Is(err, CategoryTransient)
}

// ConfigurationError returns an error with category Configuration
func ConfigurationError(err error, message string) error {
	return &ServiceError{
		Category: CategoryConfiguration,
		Message:  message,
		Err:      err,
	}
}

// TransientError returns an error with category Transient
func TransientError(err error, message string) error {
	return &ServiceError{
		Category: CategoryTransient,
		Message:  message,
		Err:      err,
	}
}

// ChainRejectedError returns an error with category ChainRejected
func ChainRejectedError(err error, message string) error {
	return &ServiceError{
		Category: CategoryChainRejected,
		Message:  message,
		Err:      err,
	}
}

// InvariantViolationError returns an error with category InvariantViolation
func InvariantViolationError(err error, message string) error {
	return &ServiceError{
		Category: CategoryInvariantViolation,
		Message:  message,
		Err:      err,
	}
}

// GeneralError returns a general service error
func GeneralError(err error) error {
	if err == nil {
		err = errors.New("internal error")
	}
	return &ServiceError{
		Category: CategoryGeneralError,
		Message:  "internal error",
		Err:      err,
	}
}
