package idtoken

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// DefaultClockSkew is the expiry tolerance applied when none is configured.
// It absorbs clock drift between the provider and this client.
const DefaultClockSkew = time.Minute

// Verifier cryptographically verifies ID tokens against a remote key set.
// The signing algorithm is pinned at construction: tokens signed with any
// other algorithm are rejected outright, which closes the algorithm
// confusion class of attacks.
type Verifier struct {
	algorithm string
	audience  string
	clockSkew time.Duration
	nowFunc   func() time.Time
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithClockSkew sets the expiry tolerance.
func WithClockSkew(skew time.Duration) VerifierOption {
	return func(v *Verifier) {
		v.clockSkew = skew
	}
}

// WithNowFunc sets the time source (primarily for testing).
func WithNowFunc(now func() time.Time) VerifierOption {
	return func(v *Verifier) {
		v.nowFunc = now
	}
}

// NewVerifier creates a verifier pinned to a single signing algorithm and an
// exact expected audience.
func NewVerifier(algorithm, audience string, options ...VerifierOption) *Verifier {
	v := &Verifier{
		algorithm: algorithm,
		audience:  audience,
		clockSkew: DefaultClockSkew,
		nowFunc:   time.Now,
	}

	for _, opt := range options {
		opt(v)
	}
	return v
}

// Verify checks the token's signature, algorithm, audience and expiry and
// returns the verified claims. Failures are reported as the distinguishable
// errors ErrSignatureInvalid, ErrAlgorithmMismatch, ErrAudienceMismatch and
// ErrTokenExpired.
func (v *Verifier) Verify(ctx context.Context, keys *KeySource, raw string) (*Claims, error) {
	claims, err := DecodeUnverified(raw)
	if err != nil {
		return nil, err
	}

	keyfunc := func(token *jwt.Token) (any, error) {
		if token.Method.Alg() != v.algorithm {
			return nil, errors.Wrapf(ErrAlgorithmMismatch,
				"token signed with %s, expected %s", token.Method.Alg(), v.algorithm)
		}
		kid, _ := token.Header["kid"].(string)
		return keys.Key(ctx, kid)
	}

	// Claims are validated below with this verifier's own skew and audience
	// rules, so the parser only checks the signature.
	if _, err := jwt.NewParser(jwt.WithoutClaimsValidation()).Parse(raw, keyfunc); err != nil {
		switch {
		case errors.Is(err, ErrAlgorithmMismatch) || errors.Is(err, ErrKeyNotFound):
			return nil, err
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, errors.Wrap(ErrInvalidTokenFormat, err.Error())
		default:
			return nil, errors.Wrap(ErrSignatureInvalid, err.Error())
		}
	}

	if claims.Audience != v.audience {
		return nil, errors.Wrapf(ErrAudienceMismatch,
			"token audience %q, expected %q", claims.Audience, v.audience)
	}

	if expiry := time.Unix(claims.ExpiresAt, 0); v.nowFunc().After(expiry.Add(v.clockSkew)) {
		return nil, errors.Wrapf(ErrTokenExpired, "token expired at %s", expiry.UTC().Format(time.RFC3339))
	}

	return claims, nil
}
