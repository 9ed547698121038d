package idtoken

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
)

// DecodeUnverified extracts the claims from an ID token without any
// cryptographic check. It must never be used to establish trust — only to
// read claims for display purposes before (or without) verification.
func DecodeUnverified(raw string) (*Claims, error) {
	segments := strings.Split(raw, ".")
	if len(segments) < 2 || segments[1] == "" {
		return nil, errors.Wrap(ErrInvalidTokenFormat, "token has no payload segment")
	}

	payload, err := decodeSegment(segments[1])
	if err != nil {
		return nil, err
	}

	var rc rawClaims
	if err := json.Unmarshal(payload, &rc); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			// Valid JSON, wrong shape: a schema failure, not a parse failure.
			return nil, errors.Wrapf(ErrInvalidTokenSchema, "claim %q: %v", typeErr.Field, err)
		}
		return nil, errors.Wrapf(ErrInvalidTokenFormat, "payload is not JSON: %v", err)
	}

	return rc.toClaims()
}

// decodeSegment base64url-decodes a JWT segment, restoring the padding that
// the JWT encoding strips: remainder 2 needs "==", remainder 3 needs "=",
// and remainder 1 is not a length any base64 encoding can produce.
func decodeSegment(segment string) ([]byte, error) {
	switch len(segment) % 4 {
	case 0:
	case 2:
		segment += "=="
	case 3:
		segment += "="
	default:
		return nil, errors.Wrap(ErrInvalidTokenFormat, "payload segment has invalid length")
	}

	decoded, err := base64.URLEncoding.DecodeString(segment)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidTokenFormat, "payload is not base64url: %v", err)
	}
	return decoded, nil
}
