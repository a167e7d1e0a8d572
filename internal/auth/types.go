package auth

import "errors"

// Role represents an authorisation tier for API callers.
type Role string

const (
	// RoleViewer may read mirror state and history.
	RoleViewer Role = "viewer"

	// RoleAdmin may read everything including operational metrics.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles a token may carry.
var ValidRoles = []Role{RoleViewer, RoleAdmin}

// IsValidRole returns true if the role is one vmgrid recognises.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Authentication errors.
var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
)
