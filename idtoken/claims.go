package idtoken

import "github.com/pkg/errors"

// Claims are the decoded ID token claims. A Claims value is only ever fully
// populated: decoding fails rather than returning partial claims.
type Claims struct {
	Issuer          string // iss
	Subject         string // sub
	Audience        string // aud
	ExpiresAt       int64  // exp, Unix seconds
	IssuedAt        int64  // iat, Unix seconds
	AccessTokenHash string // at_hash, optional
}

// rawClaims mirrors the JSON payload with pointer fields so that a missing
// claim is distinguishable from a zero value.
type rawClaims struct {
	Issuer          *string `json:"iss"`
	Subject         *string `json:"sub"`
	Audience        *string `json:"aud"`
	ExpiresAt       *int64  `json:"exp"`
	IssuedAt        *int64  `json:"iat"`
	AccessTokenHash string  `json:"at_hash"`
}

func (rc rawClaims) toClaims() (*Claims, error) {
	switch {
	case rc.Issuer == nil:
		return nil, errors.Wrap(ErrInvalidTokenSchema, "missing iss claim")
	case rc.Subject == nil:
		return nil, errors.Wrap(ErrInvalidTokenSchema, "missing sub claim")
	case rc.Audience == nil:
		return nil, errors.Wrap(ErrInvalidTokenSchema, "missing aud claim")
	case rc.ExpiresAt == nil:
		return nil, errors.Wrap(ErrInvalidTokenSchema, "missing exp claim")
	case rc.IssuedAt == nil:
		return nil, errors.Wrap(ErrInvalidTokenSchema, "missing iat claim")
	}

	return &Claims{
		Issuer:          *rc.Issuer,
		Subject:         *rc.Subject,
		Audience:        *rc.Audience,
		ExpiresAt:       *rc.ExpiresAt,
		IssuedAt:        *rc.IssuedAt,
		AccessTokenHash: rc.AccessTokenHash,
	}, nil
}
