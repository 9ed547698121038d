package discovery

import (
	"fmt"
	"strings"
)

// Document is the subset of the OpenID Connect discovery document the client
// needs. It is immutable once fetched.
type Document struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`
	RevocationEndpoint    string `json:"revocation_endpoint,omitempty"`
	JWKSURI               string `json:"jwks_uri"`
}

// DocumentURL returns the well-known configuration URL for an issuer.
func DocumentURL(issuer string) string {
	return fmt.Sprintf("%s/.well-known/openid-configuration", strings.TrimRight(issuer, "/"))
}
