// Package auth provides JWT token generation and validation for the
// vmgrid HTTP API.
//
// Authentication is optional: the API only enforces bearer tokens when
// a JWT secret is configured. There is no user store; tokens are issued
// out of band (deployment tooling mints them with the shared secret)
// and validated by signature and expiry alone.
package auth
