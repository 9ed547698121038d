package signinsession

import (
	"encoding/json"

	"github.com/jrsteele09/go-auth-client/storage"
	"github.com/pkg/errors"
)

// ErrInvalidSignInSession is returned when a stored session item exists but
// cannot be decoded or is missing required fields.
var ErrInvalidSignInSession = errors.New("invalid sign-in session")

// Item holds the in-flight state of a single authorization request: where to
// return the user, the PKCE verifier minted for the request and the state
// value that must round-trip through the provider.
type Item struct {
	RedirectURI  string `json:"redirectUri"`
	CodeVerifier string `json:"codeVerifier"`
	State        string `json:"state"`
}

// Store persists at most one Item per client. Starting a new sign-in
// overwrites any pending one, so an abandoned flow can never block the next.
type Store struct {
	backend storage.Store
	key     string
}

// NewStore creates a session store keyed by the OAuth client ID.
func NewStore(backend storage.Store, clientID string) *Store {
	return &Store{
		backend: backend,
		key:     clientID,
	}
}

// Read returns the pending session item, or (nil, nil) when no sign-in is in
// flight. A present but undecodable or incomplete item is reported as
// ErrInvalidSignInSession.
func (s *Store) Read() (*Item, error) {
	value, ok, err := s.backend.Get(s.key)
	if err != nil {
		return nil, errors.Wrap(err, "reading sign-in session")
	}
	if !ok {
		return nil, nil
	}

	var item Item
	if err := json.Unmarshal([]byte(value), &item); err != nil {
		return nil, errors.Wrapf(ErrInvalidSignInSession, "decoding session item: %v", err)
	}

	switch {
	case item.RedirectURI == "":
		return nil, errors.Wrap(ErrInvalidSignInSession, "missing redirect URI")
	case item.CodeVerifier == "":
		return nil, errors.Wrap(ErrInvalidSignInSession, "missing code verifier")
	case item.State == "":
		return nil, errors.Wrap(ErrInvalidSignInSession, "missing state")
	}

	return &item, nil
}

// Write stores the session item, replacing any pending one. A nil item
// clears the slot.
func (s *Store) Write(item *Item) error {
	if item == nil {
		return errors.Wrap(s.backend.Delete(s.key), "clearing sign-in session")
	}

	value, err := json.Marshal(item)
	if err != nil {
		return errors.Wrap(err, "encoding session item")
	}
	return errors.Wrap(s.backend.Set(s.key, string(value)), "writing sign-in session")
}
