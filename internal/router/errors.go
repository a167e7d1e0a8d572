package router

import "errors"

var (
	// ErrMalformedEvent marks an event that is missing a required
	// argument. Malformed events are logged and dropped.
	ErrMalformedEvent = errors.New("router: malformed event")

	// ErrUnknownOrigin marks an event whose originating domain cannot
	// be resolved against the registry or the admin API.
	ErrUnknownOrigin = errors.New("router: unknown origin")
)
