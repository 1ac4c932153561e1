// Package errors provides standardized error handling for pulsekit.
//
// # Overview
//
// The package has two halves that work together:
//
// Result is the closed enumeration of outcomes a client operation can
// surface: Ok, Timeout, ConnectError, Disconnected, ServiceUnitNotReady,
// ProducerNotInitialized, ConsumerNotInitialized, LookupError,
// AlreadyClosed, InvalidConfiguration, InvalidTopicName and UnknownError.
// No raw transport error leaks through uncategorized; ResultOf folds any
// error (including context and net errors) into this vocabulary.
//
// The classification system sorts errors into three classes for handling
// strategy decisions:
//
//   - Transient: transport-level faults (connect failure, disconnect,
//     timeout) that may succeed on a later attempt
//   - Invalid: protocol/session-level rejections (service unit not ready,
//     operations on uninitialized or closed resources) that will not
//     succeed on retry without external change
//   - Fatal: programmer/precondition errors (duplicate registry key,
//     malformed decode input) that indicate a defect
//
// # Quick Start
//
// Return outcomes from broker-facing operations:
//
//	if deadlineElapsed {
//	    return errors.Outcome(errors.ResultTimeout)
//	}
//
// Categorize at the boundary:
//
//	res := errors.ResultOf(err) // never panics, always in the closed set
//
// Wrap errors with component context for debugging:
//
//	if err := conn.handshake(ctx); err != nil {
//	    return errors.WrapTransient(err, "Connection", "connect", "handshake")
//	}
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: %w"
//
// Classification is preserved through wrapping chains and integrates with
// errors.Is, errors.As and Unwrap from the standard library. ResultError
// implements Is so that errors.Is(err, errors.Outcome(errors.ResultTimeout))
// matches regardless of how deeply the outcome is wrapped.
package errors
