package tokenstore

import (
	"sync"
	"time"

	"github.com/jrsteele09/go-auth-client/storage"
	"github.com/pkg/errors"
)

// expiryMargin is subtracted from access token lifetimes so a token is never
// handed out moments before it lapses mid-request.
const expiryMargin = 30 * time.Second

// AccessToken is a bearer token scoped to a resource, held in memory only.
type AccessToken struct {
	Token     string
	Scope     string
	ExpiresAt time.Time
}

// key identifies an access token by the resource and scope it was minted for.
type key struct {
	resource string
	scope    string
}

// Store holds the tokens of a single signed-in user. The ID and refresh
// tokens survive restarts through the durable backend; access tokens are
// in-memory only and re-acquired after a restart. Store is the sole writer
// of token state.
type Store struct {
	backend         storage.Store
	idTokenKey      string
	refreshTokenKey string
	nowFunc         func() time.Time

	mu           sync.RWMutex
	idToken      string
	refreshToken string
	accessTokens map[key]AccessToken
}

// Option configures a Store.
type Option func(*Store)

// WithNowFunc sets the time source (primarily for testing).
func WithNowFunc(now func() time.Time) Option {
	return func(s *Store) {
		s.nowFunc = now
	}
}

// NewStore creates a token store for the given client, loading any durably
// persisted ID and refresh tokens from the backend.
func NewStore(backend storage.Store, clientID string, options ...Option) (*Store, error) {
	s := &Store{
		backend:         backend,
		idTokenKey:      clientID + ":idToken",
		refreshTokenKey: clientID + ":refreshToken",
		nowFunc:         time.Now,
		accessTokens:    make(map[key]AccessToken),
	}

	for _, opt := range options {
		opt(s)
	}

	idToken, _, err := backend.Get(s.idTokenKey)
	if err != nil {
		return nil, errors.Wrap(err, "loading persisted ID token")
	}
	refreshToken, _, err := backend.Get(s.refreshTokenKey)
	if err != nil {
		return nil, errors.Wrap(err, "loading persisted refresh token")
	}

	s.idToken = idToken
	s.refreshToken = refreshToken
	return s, nil
}

// IsAuthenticated reports whether an ID token is held. Authentication state
// is derived from token presence, never stored separately.
func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.idToken != ""
}

// IDToken returns the held ID token, or "" when signed out.
func (s *Store) IDToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.idToken
}

// RefreshToken returns the held refresh token, or "" if the provider did not
// issue one.
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.refreshToken
}

// SetTokens stores the ID and refresh tokens and persists them durably. An
// empty refresh token clears its durable slot rather than persisting the
// empty string.
func (s *Store) SetTokens(idToken, refreshToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Set(s.idTokenKey, idToken); err != nil {
		return errors.Wrap(err, "persisting ID token")
	}

	if refreshToken == "" {
		if err := s.backend.Delete(s.refreshTokenKey); err != nil {
			return errors.Wrap(err, "clearing refresh token slot")
		}
	} else if err := s.backend.Set(s.refreshTokenKey, refreshToken); err != nil {
		return errors.Wrap(err, "persisting refresh token")
	}

	s.idToken = idToken
	s.refreshToken = refreshToken
	return nil
}

// PutAccessToken caches an access token for a resource and scope,
// overwriting any previous token for the same pair.
func (s *Store) PutAccessToken(resource, scope string, token AccessToken) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accessTokens[key{resource: resource, scope: scope}] = token
}

// AccessToken returns the cached token for a resource and scope. Tokens
// within the expiry margin of lapsing are evicted and reported as absent.
func (s *Store) AccessToken(resource, scope string) (AccessToken, bool) {
	k := key{resource: resource, scope: scope}

	s.mu.RLock()
	token, ok := s.accessTokens[k]
	s.mu.RUnlock()
	if !ok {
		return AccessToken{}, false
	}

	if s.nowFunc().After(token.ExpiresAt.Add(-expiryMargin)) {
		s.mu.Lock()
		delete(s.accessTokens, k)
		s.mu.Unlock()
		return AccessToken{}, false
	}
	return token, true
}

// Clear drops all tokens, in memory and durable. After Clear the store
// reports unauthenticated.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Delete(s.idTokenKey); err != nil {
		return errors.Wrap(err, "clearing ID token slot")
	}
	if err := s.backend.Delete(s.refreshTokenKey); err != nil {
		return errors.Wrap(err, "clearing refresh token slot")
	}

	s.idToken = ""
	s.refreshToken = ""
	s.accessTokens = make(map[key]AccessToken)
	return nil
}
