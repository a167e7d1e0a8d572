package mirror

import "errors"

// Domain errors for the mirror package. Checked with errors.Is().
var (
	// ErrNotFound is returned when an operation references an unknown
	// identity. Reported to the caller, never retried internally.
	ErrNotFound = errors.New("mirror: entity not found")

	// ErrIllegalTransition is returned when a state write is rejected by
	// the lifecycle state machine. The original state is preserved and no
	// notification is emitted.
	ErrIllegalTransition = errors.New("mirror: illegal state transition")

	// ErrUnknownProperty is returned when a property read references a
	// property the entity does not carry.
	ErrUnknownProperty = errors.New("mirror: unknown property")
)
