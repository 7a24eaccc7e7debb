package token

import "errors"

// Error kinds surfaced by the Service. All map to a client-facing deny or
// re-authenticate response except ErrStorageUnavailable, which is a transient
// infrastructure fault the caller may retry with backoff.
var (
	ErrTokenInvalid       = errors.New("token invalid")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
	ErrFamilyRevoked      = errors.New("token family revoked")
	ErrStorageUnavailable = errors.New("token storage unavailable")
)
