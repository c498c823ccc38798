package lifecycle

import "errors"

var (
	// ErrInvalidTransition is returned when a transition is not allowed
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrGuardFailed is returned when all guard conditions for a transition fail
	ErrGuardFailed = errors.New("guard condition failed")
)
