package gateway

import "fmt"

// FailureKind classifies gateway call failures.
type FailureKind string

// Failure kinds surfaced by Complete.
const (
	FailQuota       FailureKind = "quotaExceeded"
	FailAuth        FailureKind = "authInvalid"
	FailTransient   FailureKind = "transient"
	FailTimeout     FailureKind = "timeout"
	FailMalformed   FailureKind = "malformedResponse"
	FailUnavailable FailureKind = "unavailable"
)

// Error is the typed failure returned by the gateway.
type Error struct {
	Kind    FailureKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("llm gateway %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("llm gateway %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the caller may retry the operation later.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case FailQuota, FailTransient, FailTimeout, FailUnavailable:
		return true
	}
	return false
}
