package entity

import "errors"

// Domain errors for the entity package. Checked with errors.Is().
var (
	// ErrInvalidIdentity is returned when an identity string does not
	// parse as the requested entity kind.
	ErrInvalidIdentity = errors.New("entity: invalid identity")

	// ErrInvalidState is returned when a string is not one of the six
	// domain lifecycle states.
	ErrInvalidState = errors.New("entity: invalid lifecycle state")
)
