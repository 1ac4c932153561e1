package errors

import (
	"context"
	"errors"
	"net"
)

// Result is the closed set of outcomes the client surfaces at its boundary.
// Every broker-facing operation completes with exactly one Result; raw
// transport errors are always categorized before they reach a caller.
type Result int

// Outcome values returned by client operations.
const (
	// ResultOk indicates the operation completed successfully.
	ResultOk Result = iota
	// ResultUnknownError indicates an error that could not be categorized.
	ResultUnknownError
	// ResultTimeout indicates the operation timeout elapsed before the
	// broker completed the request.
	ResultTimeout
	// ResultConnectError indicates a transport connection could not be
	// established to any configured broker address.
	ResultConnectError
	// ResultDisconnected indicates the connection or the owning client was
	// closed while the operation was outstanding.
	ResultDisconnected
	// ResultServiceUnitNotReady indicates the broker rejected the request
	// because the target service unit is not yet available for the client's
	// configured listener name.
	ResultServiceUnitNotReady
	// ResultProducerNotInitialized indicates an operation on a producer
	// handle that never finished creating.
	ResultProducerNotInitialized
	// ResultConsumerNotInitialized indicates an operation on a consumer or
	// reader handle that never finished creating.
	ResultConsumerNotInitialized
	// ResultLookupError indicates a topic metadata lookup failed.
	ResultLookupError
	// ResultAlreadyClosed indicates an operation on a closed client or
	// resource.
	ResultAlreadyClosed
	// ResultInvalidConfiguration indicates the client configuration is
	// unusable.
	ResultInvalidConfiguration
	// ResultInvalidTopicName indicates a topic name that failed validation.
	ResultInvalidTopicName
)

// String returns the string representation of a Result
func (r Result) String() string {
	switch r {
	case ResultOk:
		return "Ok"
	case ResultUnknownError:
		return "UnknownError"
	case ResultTimeout:
		return "Timeout"
	case ResultConnectError:
		return "ConnectError"
	case ResultDisconnected:
		return "Disconnected"
	case ResultServiceUnitNotReady:
		return "ServiceUnitNotReady"
	case ResultProducerNotInitialized:
		return "ProducerNotInitialized"
	case ResultConsumerNotInitialized:
		return "ConsumerNotInitialized"
	case ResultLookupError:
		return "LookupError"
	case ResultAlreadyClosed:
		return "AlreadyClosed"
	case ResultInvalidConfiguration:
		return "InvalidConfiguration"
	case ResultInvalidTopicName:
		return "InvalidTopicName"
	default:
		return "UnknownError"
	}
}

// ResultError carries a Result outcome as a Go error, optionally wrapping
// the transport-level cause that produced it.
type ResultError struct {
	Result Result
	Cause  error
}

// Error implements the error interface
func (e *ResultError) Error() string {
	if e.Cause != nil {
		return e.Result.String() + ": " + e.Cause.Error()
	}
	return e.Result.String()
}

// Unwrap returns the underlying cause
func (e *ResultError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a ResultError with the same Result, so
// errors.Is(err, errors.Outcome(ResultTimeout)) works across wrapping.
func (e *ResultError) Is(target error) bool {
	var re *ResultError
	if errors.As(target, &re) {
		return re.Result == e.Result
	}
	return false
}

// Outcome returns an error value for the given Result. It returns nil for
// ResultOk so that callers can write `return errors.Outcome(res)` directly.
func Outcome(r Result) error {
	if r == ResultOk {
		return nil
	}
	return &ResultError{Result: r}
}

// OutcomeWithCause returns an error value for the given Result wrapping the
// transport-level cause. Returns nil for ResultOk.
func OutcomeWithCause(r Result, cause error) error {
	if r == ResultOk {
		return nil
	}
	return &ResultError{Result: r, Cause: cause}
}

// ResultOf categorizes an arbitrary error into the closed outcome set.
// A nil error maps to ResultOk. ResultError values keep their outcome
// through wrapping chains; context and net errors map to the transport
// taxonomy; anything else is ResultUnknownError.
func ResultOf(err error) Result {
	if err == nil {
		return ResultOk
	}

	var re *ResultError
	if errors.As(err, &re) {
		return re.Result
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ResultTimeout
	}
	if errors.Is(err, context.Canceled) {
		return ResultDisconnected
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ResultTimeout
		}
		return ResultConnectError
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ResultConnectError
	}

	return ResultUnknownError
}

// ParseResult maps a wire-level outcome name back to a Result. Unrecognized
// names map to ResultUnknownError, keeping the enumeration closed even when
// talking to a newer broker.
func ParseResult(name string) Result {
	switch name {
	case "Ok", "":
		return ResultOk
	case "Timeout":
		return ResultTimeout
	case "ConnectError":
		return ResultConnectError
	case "Disconnected":
		return ResultDisconnected
	case "ServiceUnitNotReady":
		return ResultServiceUnitNotReady
	case "ProducerNotInitialized":
		return ResultProducerNotInitialized
	case "ConsumerNotInitialized":
		return ResultConsumerNotInitialized
	case "LookupError":
		return ResultLookupError
	case "AlreadyClosed":
		return ResultAlreadyClosed
	case "InvalidConfiguration":
		return ResultInvalidConfiguration
	case "InvalidTopicName":
		return ResultInvalidTopicName
	default:
		return ResultUnknownError
	}
}
