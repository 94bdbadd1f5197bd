package tierrequest

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("tierrequest: request not found")
	ErrVendorNotFound   = errors.New("tierrequest: vendor not found")
	ErrForbidden        = errors.New("tierrequest: forbidden")
	ErrInvalidInput     = errors.New("tierrequest: invalid input")
	ErrInvalidState     = errors.New("tierrequest: invalid state")
	ErrDuplicatePending = errors.New("tierrequest: a pending request already exists")
)

// StateError reports a transition attempted outside the pending state.
type StateError struct {
	Verb   string
	Status Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("Can only %s pending requests", e.Verb)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// ValidationError carries the offending field for client display.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
