package session

import (
	"fmt"

	"github.com/google/uuid"
)

// ErrValidation indicates caller input violates the contract.
type ErrValidation struct {
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ErrSessionNotFound indicates an unknown session id.
type ErrSessionNotFound struct {
	ID uuid.UUID
}

func (e *ErrSessionNotFound) Error() string {
	return fmt.Sprintf("session not found: %s", e.ID)
}

// ErrStateConflict indicates the operation is incompatible with the
// session's current state.
type ErrStateConflict struct {
	Message string
}

func (e *ErrStateConflict) Error() string {
	return fmt.Sprintf("session state conflict: %s", e.Message)
}

// ErrDeadline indicates the operation's overall deadline was exceeded.
type ErrDeadline struct {
	Op string
}

func (e *ErrDeadline) Error() string {
	return fmt.Sprintf("operation deadline exceeded: %s", e.Op)
}
