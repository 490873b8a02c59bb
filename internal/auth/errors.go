package auth

import "errors"

var (
	// Authentication failures. The HTTP layer maps all of these to 401.
	ErrNoToken        = errors.New("auth: no token")
	ErrTokenMalformed = errors.New("auth: token malformed")
	ErrTokenExpired   = errors.New("auth: token expired")
	ErrTokenRevoked   = errors.New("auth: token revoked")

	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrEmailNotVerified   = errors.New("auth: email not verified")

	// Authorization failure, maps to 403.
	ErrPermissionDenied = errors.New("auth: permission denied")

	// Not-found failures. 404 in resource contexts; 401 when surfaced during
	// token refresh so wrong and stale secrets stay indistinguishable.
	ErrSessionNotFound    = errors.New("auth: session not found")
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrPermissionNotFound = errors.New("auth: permission not found")

	// Conflicts, map to 409.
	ErrEmailTaken    = errors.New("auth: email already registered")
	ErrUsernameTaken = errors.New("auth: username taken")

	// ErrUnknownHashScheme means a stored credential carries a hash prefix we
	// cannot verify. Verification fails closed.
	ErrUnknownHashScheme = errors.New("auth: unknown hash scheme")

	// ErrDemoMode rejects mutations disabled in demo deployments.
	ErrDemoMode = errors.New("auth: operation disabled in demo mode")
)
