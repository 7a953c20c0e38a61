package authapi

import "errors"

// Error taxonomy produced at the collaborator boundary. Every transport or
// status failure is normalized onto these sentinels before it reaches the
// session engine; callers branch with errors.Is.
var (
	ErrInvalidCredentials = errors.New("authapi: invalid credentials")
	ErrTokenExpired       = errors.New("authapi: token expired or rejected")
	ErrNetwork            = errors.New("authapi: network failure")
	ErrServer             = errors.New("authapi: server error")
)
