package admin

import "errors"

// Domain-specific errors for the admin boundary.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNoSuchEntity is returned when the admin daemon does not know
	// the requested domain or device.
	ErrNoSuchEntity = errors.New("admin: no such entity")

	// ErrConnectionFailed is returned when the daemon socket cannot be
	// reached.
	ErrConnectionFailed = errors.New("admin: connection failed")

	// ErrRequestFailed is returned when the daemon rejects or fails an
	// enumeration request.
	ErrRequestFailed = errors.New("admin: request failed")

	// ErrStreamClosed is returned through Err when the event stream ends
	// for any reason other than a clean shutdown. This is the one fatal
	// condition of the mirror; it is reported upward, never retried here.
	ErrStreamClosed = errors.New("admin: event stream closed")
)
