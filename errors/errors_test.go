package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.class.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestResult_String(t *testing.T) {
	tests := []struct {
		result   Result
		expected string
	}{
		{ResultOk, "Ok"},
		{ResultTimeout, "Timeout"},
		{ResultConnectError, "ConnectError"},
		{ResultDisconnected, "Disconnected"},
		{ResultServiceUnitNotReady, "ServiceUnitNotReady"},
		{ResultProducerNotInitialized, "ProducerNotInitialized"},
		{ResultConsumerNotInitialized, "ConsumerNotInitialized"},
		{ResultLookupError, "LookupError"},
		{ResultAlreadyClosed, "AlreadyClosed"},
		{ResultInvalidConfiguration, "InvalidConfiguration"},
		{ResultInvalidTopicName, "InvalidTopicName"},
		{Result(999), "UnknownError"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			if got := test.result.String(); got != test.expected {
				t.Errorf("expected %s, got %s", test.expected, got)
			}
		})
	}
}

func TestParseResult_RoundTrip(t *testing.T) {
	results := []Result{
		ResultOk, ResultTimeout, ResultConnectError, ResultDisconnected,
		ResultServiceUnitNotReady, ResultProducerNotInitialized,
		ResultConsumerNotInitialized, ResultLookupError, ResultAlreadyClosed,
		ResultInvalidConfiguration, ResultInvalidTopicName,
	}
	for _, r := range results {
		if got := ParseResult(r.String()); got != r {
			t.Errorf("ParseResult(%q) = %v, want %v", r.String(), got, r)
		}
	}

	// Unknown wire names stay inside the closed enumeration
	if got := ParseResult("SomeFutureOutcome"); got != ResultUnknownError {
		t.Errorf("expected UnknownError for unknown name, got %v", got)
	}
}

func TestOutcome_NilForOk(t *testing.T) {
	if err := Outcome(ResultOk); err != nil {
		t.Errorf("Outcome(ResultOk) should be nil, got %v", err)
	}
	if err := OutcomeWithCause(ResultOk, errors.New("cause")); err != nil {
		t.Errorf("OutcomeWithCause(ResultOk, ...) should be nil, got %v", err)
	}
}

func TestResultOf(t *testing.T) {
	timeoutErr := &net.OpError{Op: "dial", Err: &timeoutError{}}
	refusedErr := &net.OpError{Op: "dial", Err: errors.New("connection refused")}

	tests := []struct {
		name     string
		err      error
		expected Result
	}{
		{"nil error", nil, ResultOk},
		{"result error", Outcome(ResultServiceUnitNotReady), ResultServiceUnitNotReady},
		{"wrapped result error", fmt.Errorf("create: %w", Outcome(ResultTimeout)), ResultTimeout},
		{"context deadline", context.DeadlineExceeded, ResultTimeout},
		{"context canceled", context.Canceled, ResultDisconnected},
		{"net timeout", timeoutErr, ResultTimeout},
		{"net refused", refusedErr, ResultConnectError},
		{"unknown", errors.New("boom"), ResultUnknownError},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := ResultOf(test.err); got != test.expected {
				t.Errorf("ResultOf(%v) = %v, want %v", test.err, got, test.expected)
			}
		})
	}
}

func TestResultError_Is(t *testing.T) {
	err := fmt.Errorf("outer: %w", OutcomeWithCause(ResultConnectError, errors.New("refused")))
	if !errors.Is(err, Outcome(ResultConnectError)) {
		t.Error("expected errors.Is to match ResultConnectError through wrapping")
	}
	if errors.Is(err, Outcome(ResultTimeout)) {
		t.Error("ResultConnectError should not match ResultTimeout")
	}
}

func TestClassify_Taxonomy(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"timeout is transient", Outcome(ResultTimeout), ErrorTransient},
		{"connect error is transient", Outcome(ResultConnectError), ErrorTransient},
		{"disconnected is transient", Outcome(ResultDisconnected), ErrorTransient},
		{"service unit not ready is invalid", Outcome(ResultServiceUnitNotReady), ErrorInvalid},
		{"producer not initialized is invalid", Outcome(ResultProducerNotInitialized), ErrorInvalid},
		{"consumer not initialized is invalid", Outcome(ResultConsumerNotInitialized), ErrorInvalid},
		{"already closed is invalid", Outcome(ResultAlreadyClosed), ErrorInvalid},
		{"duplicate registry key is fatal", ErrDuplicateRegistryKey, ErrorFatal},
		{"unknown defaults transient", errors.New("boom"), ErrorTransient},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Classify(test.err); got != test.expected {
				t.Errorf("Classify(%v) = %v, want %v", test.err, got, test.expected)
			}
		})
	}
}

func TestWrap_Format(t *testing.T) {
	base := errors.New("dial tcp: refused")
	wrapped := Wrap(base, "Connection", "connect", "transport dial")

	expected := "Connection.connect: transport dial failed"
	if !strings.Contains(wrapped.Error(), expected) {
		t.Errorf("expected %q in %q", expected, wrapped.Error())
	}
	if !errors.Is(wrapped, base) {
		t.Error("wrapped error should match base via errors.Is")
	}

	if Wrap(nil, "C", "m", "a") != nil {
		t.Error("Wrap(nil) should return nil")
	}
}

func TestWrapClassified_PreservesClassAndChain(t *testing.T) {
	base := ErrConnectionTimeout

	transient := WrapTransient(base, "Pool", "GetConnection", "dial")
	if !IsTransient(transient) {
		t.Error("WrapTransient result should classify as transient")
	}
	if !errors.Is(transient, base) {
		t.Error("classification wrapper should preserve the error chain")
	}

	fatal := WrapFatal(ErrDuplicateRegistryKey, "Registry", "register", "insert")
	if !IsFatal(fatal) {
		t.Error("WrapFatal result should classify as fatal")
	}

	invalid := WrapInvalid(ErrEmptyTopic, "Client", "CreateProducer", "validate topic")
	if !IsInvalid(invalid) {
		t.Error("WrapInvalid result should classify as invalid")
	}

	var ce *ClassifiedError
	if !errors.As(invalid, &ce) {
		t.Fatal("expected ClassifiedError in chain")
	}
	if ce.Component != "Client" || ce.Operation != "CreateProducer" {
		t.Errorf("unexpected context: %s.%s", ce.Component, ce.Operation)
	}
}

// timeoutError implements net.Error with Timeout() == true
type timeoutError struct{}

func (e *timeoutError) Error() string   { return "i/o timeout" }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

var _ net.Error = (*timeoutError)(nil)
