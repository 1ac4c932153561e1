package errors

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents transport-level errors that may succeed on
	// a later attempt (connect failures, disconnects, timeouts)
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents protocol or session-level errors that will
	// not succeed on retry without external change (service unit not ready,
	// operations on uninitialized resources)
	ErrorInvalid
	// ErrorFatal represents programmer or precondition errors (duplicate
	// registry keys, malformed decode input) that indicate a defect
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Standard error variables for common conditions
var (
	// Client lifecycle errors
	ErrClientClosed   = errors.New("client already closed")
	ErrResourceClosed = errors.New("resource already closed")

	// Connection errors
	ErrNoAddresses       = errors.New("no broker addresses configured")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrHandshakeFailed   = errors.New("broker handshake failed")

	// Configuration errors
	ErrInvalidConfig      = errors.New("invalid configuration")
	ErrInvalidServiceURL  = errors.New("invalid service URL")
	ErrEmptyTopic         = errors.New("topic name cannot be empty")
	ErrEmptySubscription  = errors.New("subscription name cannot be empty")
	ErrMissingListener    = errors.New("listener name not provisioned")

	// Registry precondition errors
	ErrDuplicateRegistryKey = errors.New("registry key already maps to a live resource")
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// IsTransient checks if an error is transient and may be retried
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorTransient
	}

	switch ResultOf(err) {
	case ResultTimeout, ResultConnectError, ResultDisconnected:
		return true
	}

	return errors.Is(err, ErrConnectionLost) ||
		errors.Is(err, ErrConnectionTimeout)
}

// IsFatal checks if an error indicates a defect that should stop processing
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorFatal
	}

	return errors.Is(err, ErrDuplicateRegistryKey)
}

// IsInvalid checks if an error is a protocol or session-level rejection
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class == ErrorInvalid
	}

	switch ResultOf(err) {
	case ResultServiceUnitNotReady, ResultProducerNotInitialized,
		ResultConsumerNotInitialized, ResultAlreadyClosed,
		ResultInvalidConfiguration, ResultInvalidTopicName:
		return true
	}

	return errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, ErrInvalidServiceURL) ||
		errors.Is(err, ErrEmptyTopic) ||
		errors.Is(err, ErrEmptySubscription)
}

// Classify returns the error class for an error
func Classify(err error) ErrorClass {
	if err == nil {
		return ErrorTransient // Default for nil
	}

	if IsFatal(err) {
		return ErrorFatal
	}
	if IsInvalid(err) {
		return ErrorInvalid
	}

	// Default to transient so unknown transport faults remain retryable
	return ErrorTransient
}

// newClassified creates a new classified error
// This is an internal helper - use WrapTransient(), WrapFatal(), or WrapInvalid() instead.
func newClassified(class ErrorClass, err error, component, operation, message string) *ClassifiedError {
	return &ClassifiedError{
		Class:     class,
		Err:       err,
		Message:   message,
		Component: component,
		Operation: operation,
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorTransient, wrappedErr, component, method, wrappedErr.Error())
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorFatal, wrappedErr, component, method, wrappedErr.Error())
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrappedErr := Wrap(err, component, method, action)
	return newClassified(ErrorInvalid, wrappedErr, component, method, wrappedErr.Error())
}
