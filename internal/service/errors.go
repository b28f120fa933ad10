package service

import "errors"

// Failure taxonomy the boundary layer maps onto transport statuses.
// Unknown-email and wrong-password both resolve to ErrInvalidCredentials
// so the response cannot be used as an account-existence oracle; inactive
// accounts are deliberately the one distinguishable case.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrAccountNotFound    = errors.New("account not found")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrEmailTaken         = errors.New("email already taken")

	// All refresh failures (bad signature, expired, unknown, revoked,
	// rotated away) collapse to this one error at the boundary.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// Internal distinction for metrics and audit only; handlers must map
	// it to the same response as ErrInvalidRefreshToken.
	ErrRefreshReuseDetected = errors.New("refresh token reuse detected")
)
