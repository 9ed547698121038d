package authflow

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-client/discovery"
	"github.com/jrsteele09/go-auth-client/idtoken"
	"github.com/jrsteele09/go-auth-client/revocation"
	"github.com/jrsteele09/go-auth-client/signinsession"
	"github.com/jrsteele09/go-auth-client/tokenstore"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const stateLength = 32

// RedirectFunc performs the navigation side effect of a flow step. In an
// HTTP handler this is typically a wrapper around http.Redirect; tests
// substitute a double that records the target URL.
type RedirectFunc func(url string)

// Revoker invalidates a token at a provider's revocation endpoint.
type Revoker interface {
	Revoke(ctx context.Context, endpoint, clientID, token string) error
}

// Controller orchestrates the sign-in and sign-out lifecycle of a single
// relying party client. It owns no token bytes itself: the token store is
// the sole mutator of token state and the session store the sole mutator of
// the transient sign-in item.
type Controller struct {
	config    Config
	discovery *discovery.Cache
	sessions  *signinsession.Store
	tokens    *tokenstore.Store
	redirect  RedirectFunc

	httpClient      *http.Client
	revoker         Revoker
	logger          zerolog.Logger
	verifierOptions []idtoken.VerifierOption

	keysMu sync.Mutex
	keys   *idtoken.KeySource
}

// ControllerOption defines a function type to modify the Controller instance.
type ControllerOption func(*Controller)

// WithHTTPClient sets the HTTP client used for token exchange and key
// fetching.
func WithHTTPClient(client *http.Client) ControllerOption {
	return func(c *Controller) {
		c.httpClient = client
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger zerolog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithRevoker sets the revocation client (primarily for testing).
func WithRevoker(revoker Revoker) ControllerOption {
	return func(c *Controller) {
		c.revoker = revoker
	}
}

// WithVerifierOptions passes options through to the ID token verifier.
func WithVerifierOptions(options ...idtoken.VerifierOption) ControllerOption {
	return func(c *Controller) {
		c.verifierOptions = append(c.verifierOptions, options...)
	}
}

// NewController initializes a new Controller with required dependencies.
// Optional configuration can be provided via options.
func NewController(
	config Config,
	discoveryCache *discovery.Cache,
	sessions *signinsession.Store,
	tokens *tokenstore.Store,
	redirect RedirectFunc,
	options ...ControllerOption,
) (*Controller, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	if discoveryCache == nil {
		return nil, errors.New("[NewController] discovery cache is required")
	}
	if sessions == nil {
		return nil, errors.New("[NewController] session store is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewController] token store is required")
	}
	if redirect == nil {
		return nil, errors.New("[NewController] redirect func is required")
	}

	controller := &Controller{
		config:     config,
		discovery:  discoveryCache,
		sessions:   sessions,
		tokens:     tokens,
		redirect:   redirect,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     zerolog.Nop(),
	}

	for _, opt := range options {
		opt(controller)
	}

	if controller.revoker == nil {
		controller.revoker = revocation.NewClient(controller.httpClient)
	}
	return controller, nil
}

// IsAuthenticated reports whether the token store holds an ID token.
func (c *Controller) IsAuthenticated() bool {
	return c.tokens.IsAuthenticated()
}

// SignIn starts the authorization code flow: it mints fresh PKCE and state
// values, persists them so the callback can be matched, and redirects the
// user to the provider's authorization endpoint. A prior unconsumed sign-in
// is overwritten.
func (c *Controller) SignIn(ctx context.Context, redirectURI string) error {
	doc, err := c.discovery.Get(ctx)
	if err != nil {
		return err
	}

	codeVerifier := oauth2.GenerateVerifier()
	state, err := randomState()
	if err != nil {
		return err
	}

	item := &signinsession.Item{
		RedirectURI:  redirectURI,
		CodeVerifier: codeVerifier,
		State:        state,
	}
	if err := c.sessions.Write(item); err != nil {
		return err
	}

	authURL, err := url.Parse(doc.AuthorizationEndpoint)
	if err != nil {
		return errors.Wrap(err, "parsing authorization endpoint")
	}

	query := url.Values{
		"response_type":         {"code"},
		"client_id":             {c.config.ClientID},
		"redirect_uri":          {redirectURI},
		"scope":                 {strings.Join(c.config.requestScopes(), " ")},
		"state":                 {state},
		"code_challenge":        {oauth2.S256ChallengeFromVerifier(codeVerifier)},
		"code_challenge_method": {"S256"},
	}
	for _, resource := range c.config.Resources {
		query.Add("resource", resource)
	}
	authURL.RawQuery = query.Encode()

	c.redirect(authURL.String())
	return nil
}

// CompleteSignIn handles the provider's redirect back: it consumes the
// pending session item, exchanges the authorization code using the stored
// PKCE verifier, verifies the returned ID token and persists the tokens.
// The session item is consumed exactly once, success or failure, so a
// replayed callback always fails closed.
func (c *Controller) CompleteSignIn(ctx context.Context, code, state string) (*idtoken.Claims, error) {
	item, err := c.sessions.Read()
	if err != nil {
		_ = c.sessions.Write(nil)
		return nil, err
	}
	if item == nil {
		return nil, errors.Wrap(ErrNoSignInSession, "callback without pending sign-in")
	}
	if err := c.sessions.Write(nil); err != nil {
		return nil, err
	}

	if state != item.State {
		return nil, errors.Wrap(ErrStateMismatch, "callback state does not match sign-in state")
	}

	doc, err := c.discovery.Get(ctx)
	if err != nil {
		return nil, err
	}

	exchange := oauth2.Config{
		ClientID:    c.config.ClientID,
		RedirectURL: item.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  doc.AuthorizationEndpoint,
			TokenURL: doc.TokenEndpoint,
		},
		Scopes: c.config.requestScopes(),
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := exchange.Exchange(ctx, code, oauth2.VerifierOption(item.CodeVerifier))
	if err != nil {
		return nil, errors.Wrap(err, "exchanging authorization code")
	}

	rawIDToken, _ := token.Extra("id_token").(string)
	if rawIDToken == "" {
		return nil, errors.New("[CompleteSignIn] token response contains no id_token")
	}

	verifier := idtoken.NewVerifier(c.config.Algorithm, c.config.ClientID, c.verifierOptions...)
	claims, err := verifier.Verify(ctx, c.keySource(doc.JWKSURI), rawIDToken)
	if err != nil {
		return nil, err
	}

	if err := c.tokens.SetTokens(rawIDToken, token.RefreshToken); err != nil {
		return nil, err
	}

	scope, _ := token.Extra("scope").(string)
	if scope == "" {
		scope = strings.Join(c.config.requestScopes(), " ")
	}
	accessToken := tokenstore.AccessToken{
		Token:     token.AccessToken,
		Scope:     scope,
		ExpiresAt: token.Expiry,
	}
	if len(c.config.Resources) == 0 {
		c.tokens.PutAccessToken("", scope, accessToken)
	}
	for _, resource := range c.config.Resources {
		c.tokens.PutAccessToken(resource, scope, accessToken)
	}

	c.logger.Info().Str("subject", claims.Subject).Msg("sign-in completed")
	return claims, nil
}

// SignOut ends the local session and redirects to the provider's end-session
// endpoint. It is a no-op when no ID token is held. Revocation of the
// refresh token is best-effort: a failure is logged and never blocks the
// sign-out. Local token state is cleared before the redirect is issued, so
// a failed redirect cannot leave stale authenticated state behind.
func (c *Controller) SignOut(ctx context.Context, postLogoutRedirectURI string) error {
	if !c.tokens.IsAuthenticated() {
		return nil
	}

	doc, err := c.discovery.Get(ctx)
	if err != nil {
		return err
	}

	if refreshToken := c.tokens.RefreshToken(); refreshToken != "" && doc.RevocationEndpoint != "" {
		if err := c.revoker.Revoke(ctx, doc.RevocationEndpoint, c.config.ClientID, refreshToken); err != nil {
			c.logger.Warn().Err(err).Msg("refresh token revocation failed")
		}
	}

	endSessionURL, err := url.Parse(doc.EndSessionEndpoint)
	if err != nil {
		return errors.Wrap(err, "parsing end-session endpoint")
	}
	query := url.Values{"id_token_hint": {c.tokens.IDToken()}}
	if postLogoutRedirectURI != "" {
		query.Set("post_logout_redirect_uri", postLogoutRedirectURI)
	}
	endSessionURL.RawQuery = query.Encode()

	if err := c.tokens.Clear(); err != nil {
		return err
	}
	if err := c.sessions.Write(nil); err != nil {
		return err
	}

	c.redirect(endSessionURL.String())
	return nil
}

// keySource lazily builds the JWKS key source once the discovery document is
// known. The same source is reused so cached keys survive across callbacks.
func (c *Controller) keySource(jwksURI string) *idtoken.KeySource {
	c.keysMu.Lock()
	defer c.keysMu.Unlock()

	if c.keys == nil {
		c.keys = idtoken.NewKeySource(jwksURI, c.httpClient)
	}
	return c.keys
}

func randomState() (string, error) {
	buf := make([]byte, stateLength)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "generating state")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
