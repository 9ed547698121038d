package authflow

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// reservedScopes are always requested regardless of configuration: openid
// marks the request as OIDC, profile populates the ID token claims and
// offline_access asks the provider for a refresh token.
var reservedScopes = []string{"openid", "profile", "offline_access"}

// Config identifies the relying party and what it asks the provider for.
type Config struct {
	// ClientID is the OAuth client identifier registered with the provider.
	ClientID string `validate:"required"`

	// Scopes are requested in addition to the reserved scopes.
	Scopes []string

	// Resources are RFC 8707 resource indicators to bind issued access
	// tokens to. Optional.
	Resources []string

	// Algorithm is the ID token signing algorithm to pin. Defaults to RS256.
	Algorithm string
}

func (c *Config) validate() error {
	if c.Algorithm == "" {
		c.Algorithm = "RS256"
	}
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}

// requestScopes returns the reserved scopes unioned with the configured ones,
// reserved first, without duplicates.
func (c *Config) requestScopes() []string {
	scopes := make([]string, 0, len(reservedScopes)+len(c.Scopes))
	seen := make(map[string]bool, len(reservedScopes)+len(c.Scopes))

	for _, scope := range append(append([]string{}, reservedScopes...), c.Scopes...) {
		if scope == "" || seen[scope] {
			continue
		}
		seen[scope] = true
		scopes = append(scopes, scope)
	}
	return scopes
}
