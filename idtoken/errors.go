package idtoken

import "github.com/pkg/errors"

// Decode and verification failures are distinct, catchable errors; callers
// must never coerce them to a silent "unauthenticated".
var (
	// ErrInvalidTokenFormat covers structural failures: missing payload
	// segment, undecodable base64, or a payload that is not JSON at all.
	ErrInvalidTokenFormat = errors.New("invalid token format")

	// ErrInvalidTokenSchema means the payload was valid JSON but the claims
	// are missing or of the wrong type.
	ErrInvalidTokenSchema = errors.New("invalid token claims schema")

	ErrSignatureInvalid  = errors.New("token signature invalid")
	ErrAlgorithmMismatch = errors.New("token algorithm mismatch")
	ErrAudienceMismatch  = errors.New("token audience mismatch")
	ErrTokenExpired      = errors.New("token expired")

	// ErrKeyNotFound means the key set has no key for the token's key ID,
	// even after a refresh.
	ErrKeyNotFound = errors.New("signing key not found")
)
