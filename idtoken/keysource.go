package idtoken

import (
	"context"
	"crypto"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// KeySource resolves signing keys from a provider's JWKS endpoint. The key
// set is fetched on first use and cached; an unknown key ID triggers one
// re-fetch to pick up rotated keys. Cache hits never touch the network.
type KeySource struct {
	jwksURI    string
	httpClient *http.Client

	mu   sync.RWMutex
	keys map[string]crypto.PublicKey
}

// NewKeySource creates a key source for the given JWKS URI. A nil httpClient
// falls back to a client with a 30 second timeout.
func NewKeySource(jwksURI string, httpClient *http.Client) *KeySource {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &KeySource{
		jwksURI:    jwksURI,
		httpClient: httpClient,
	}
}

// Key returns the public key for the given key ID, fetching or refreshing
// the key set as needed.
func (s *KeySource) Key(ctx context.Context, kid string) (crypto.PublicKey, error) {
	s.mu.RLock()
	key, ok := s.keys[kid]
	s.mu.RUnlock()
	if ok {
		return key, nil
	}

	if err := s.refresh(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	key, ok = s.keys[kid]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrKeyNotFound, "kid %q", kid)
	}
	return key, nil
}

func (s *KeySource) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.jwksURI, nil)
	if err != nil {
		return errors.Wrap(err, "building JWKS request")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s", s.jwksURI)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return errors.Wrap(err, "decoding JWKS")
	}

	keys := make(map[string]crypto.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		key, err := k.publicKey()
		if err != nil {
			// Skip key types we cannot use; the provider may advertise
			// encryption keys alongside signing keys.
			continue
		}
		keys[k.Kid] = key
	}

	s.mu.Lock()
	s.keys = keys
	s.mu.Unlock()
	return nil
}

// jwks is a JSON Web Key Set as served by the provider's jwks_uri.
type jwks struct {
	Keys []jwk `json:"keys"`
}

// jwk is a single JSON Web Key. Only RSA keys are converted; the verifier
// pins a single RSA algorithm.
type jwk struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`

	// RSA specific
	N string `json:"n,omitempty"`
	E string `json:"e,omitempty"`
}

func (k jwk) publicKey() (crypto.PublicKey, error) {
	if k.Kty != "RSA" {
		return nil, errors.Errorf("unsupported key type %q", k.Kty)
	}
	if k.Use != "" && k.Use != "sig" {
		return nil, errors.Errorf("key %q is not a signing key", k.Kid)
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, errors.Wrap(err, "decoding modulus")
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, errors.Wrap(err, "decoding exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}
