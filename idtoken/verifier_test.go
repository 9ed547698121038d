package idtoken_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-auth-client/idtoken"
	"github.com/stretchr/testify/require"
)

type jwksFixture struct {
	server  *httptest.Server
	fetches atomic.Int64

	// keys currently served, mutable between fetches
	keys atomic.Value // map[string]*rsa.PublicKey
}

func newJWKSFixture(t *testing.T, keys map[string]*rsa.PublicKey) *jwksFixture {
	t.Helper()

	f := &jwksFixture{}
	f.keys.Store(keys)
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		f.fetches.Add(1)

		type jwk struct {
			Kty string `json:"kty"`
			Use string `json:"use"`
			Kid string `json:"kid"`
			Alg string `json:"alg"`
			N   string `json:"n"`
			E   string `json:"e"`
		}
		var set struct {
			Keys []jwk `json:"keys"`
		}
		for kid, key := range f.keys.Load().(map[string]*rsa.PublicKey) {
			set.Keys = append(set.Keys, jwk{
				Kty: "RSA",
				Use: "sig",
				Kid: kid,
				Alg: "RS256",
				N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			})
		}
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *jwksFixture) rotate(keys map[string]*rsa.PublicKey) {
	f.keys.Store(keys)
}

func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func signRS256(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func tokenClaims(audience string, expiresAt time.Time) jwt.MapClaims {
	return jwt.MapClaims{
		"iss": "https://idp.example.com",
		"sub": "user-1",
		"aud": audience,
		"exp": expiresAt.Unix(),
		"iat": expiresAt.Add(-time.Hour).Unix(),
	}
}

func TestVerifier_ValidToken(t *testing.T) {
	key := testRSAKey(t)
	fixture := newJWKSFixture(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey})
	keys := idtoken.NewKeySource(fixture.server.URL, fixture.server.Client())

	expiry := time.Now().Add(5 * time.Minute)
	raw := signRS256(t, key, "key-1", tokenClaims("client-1", expiry))

	verifier := idtoken.NewVerifier("RS256", "client-1")
	claims, err := verifier.Verify(context.Background(), keys, raw)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "client-1", claims.Audience)
	require.Equal(t, expiry.Unix(), claims.ExpiresAt)
}

func TestVerifier_AlgorithmPinning(t *testing.T) {
	key := testRSAKey(t)
	fixture := newJWKSFixture(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey})
	keys := idtoken.NewKeySource(fixture.server.URL, fixture.server.Client())
	verifier := idtoken.NewVerifier("RS256", "client-1")

	t.Run("symmetric algorithm rejected", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims("client-1", time.Now().Add(time.Hour)))
		token.Header["kid"] = "key-1"
		raw, err := token.SignedString([]byte("shared-secret"))
		require.NoError(t, err)

		_, err = verifier.Verify(context.Background(), keys, raw)
		require.ErrorIs(t, err, idtoken.ErrAlgorithmMismatch)
	})

	t.Run("sibling RSA algorithm rejected", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodRS384, tokenClaims("client-1", time.Now().Add(time.Hour)))
		token.Header["kid"] = "key-1"
		raw, err := token.SignedString(key)
		require.NoError(t, err)

		_, err = verifier.Verify(context.Background(), keys, raw)
		require.ErrorIs(t, err, idtoken.ErrAlgorithmMismatch)
	})
}

func TestVerifier_SignatureInvalid(t *testing.T) {
	key := testRSAKey(t)
	impostor := testRSAKey(t)
	fixture := newJWKSFixture(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey})
	keys := idtoken.NewKeySource(fixture.server.URL, fixture.server.Client())

	// Signed by a different key but claiming the trusted kid.
	raw := signRS256(t, impostor, "key-1", tokenClaims("client-1", time.Now().Add(time.Hour)))

	verifier := idtoken.NewVerifier("RS256", "client-1")
	_, err := verifier.Verify(context.Background(), keys, raw)
	require.ErrorIs(t, err, idtoken.ErrSignatureInvalid)
}

func TestVerifier_AudienceMismatch(t *testing.T) {
	key := testRSAKey(t)
	fixture := newJWKSFixture(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey})
	keys := idtoken.NewKeySource(fixture.server.URL, fixture.server.Client())

	raw := signRS256(t, key, "key-1", tokenClaims("app-b", time.Now().Add(time.Hour)))

	verifier := idtoken.NewVerifier("RS256", "app-a")
	_, err := verifier.Verify(context.Background(), keys, raw)
	require.ErrorIs(t, err, idtoken.ErrAudienceMismatch)
}

func TestVerifier_ExpiryTolerance(t *testing.T) {
	key := testRSAKey(t)
	fixture := newJWKSFixture(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey})
	keys := idtoken.NewKeySource(fixture.server.URL, fixture.server.Client())

	now := time.Now()
	verifier := idtoken.NewVerifier("RS256", "client-1",
		idtoken.WithClockSkew(time.Minute),
		idtoken.WithNowFunc(func() time.Time { return now }),
	)

	t.Run("recently expired token within skew passes", func(t *testing.T) {
		raw := signRS256(t, key, "key-1", tokenClaims("client-1", now.Add(-30*time.Second)))
		_, err := verifier.Verify(context.Background(), keys, raw)
		require.NoError(t, err)
	})

	t.Run("token expired beyond skew fails", func(t *testing.T) {
		raw := signRS256(t, key, "key-1", tokenClaims("client-1", now.Add(-2*time.Minute)))
		_, err := verifier.Verify(context.Background(), keys, raw)
		require.ErrorIs(t, err, idtoken.ErrTokenExpired)
	})
}

func TestKeySource_CacheAndRotation(t *testing.T) {
	key1 := testRSAKey(t)
	key2 := testRSAKey(t)
	fixture := newJWKSFixture(t, map[string]*rsa.PublicKey{"key-1": &key1.PublicKey})
	keys := idtoken.NewKeySource(fixture.server.URL, fixture.server.Client())
	verifier := idtoken.NewVerifier("RS256", "client-1")

	expiry := time.Now().Add(time.Hour)

	// First verification populates the cache with a single fetch.
	_, err := verifier.Verify(context.Background(), keys, signRS256(t, key1, "key-1", tokenClaims("client-1", expiry)))
	require.NoError(t, err)
	require.Equal(t, int64(1), fixture.fetches.Load())

	// A second token with the same kid is served from the cache.
	_, err = verifier.Verify(context.Background(), keys, signRS256(t, key1, "key-1", tokenClaims("client-1", expiry)))
	require.NoError(t, err)
	require.Equal(t, int64(1), fixture.fetches.Load())

	// The provider rotates its keys. A token signed with the new key triggers
	// exactly one re-fetch and then verifies.
	fixture.rotate(map[string]*rsa.PublicKey{"key-2": &key2.PublicKey})
	_, err = verifier.Verify(context.Background(), keys, signRS256(t, key2, "key-2", tokenClaims("client-1", expiry)))
	require.NoError(t, err)
	require.Equal(t, int64(2), fixture.fetches.Load())
}

func TestKeySource_UnknownKid(t *testing.T) {
	key := testRSAKey(t)
	fixture := newJWKSFixture(t, map[string]*rsa.PublicKey{"key-1": &key.PublicKey})
	keys := idtoken.NewKeySource(fixture.server.URL, fixture.server.Client())

	raw := signRS256(t, key, "key-missing", tokenClaims("client-1", time.Now().Add(time.Hour)))

	verifier := idtoken.NewVerifier("RS256", "client-1")
	_, err := verifier.Verify(context.Background(), keys, raw)
	require.ErrorIs(t, err, idtoken.ErrKeyNotFound)
}

func TestKeySource_SkipsNonSigningKeys(t *testing.T) {
	key := testRSAKey(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		set := map[string]any{
			"keys": []map[string]any{
				{"kty": "EC", "use": "sig", "kid": "ec-key", "crv": "P-256"},
				{"kty": "RSA", "use": "enc", "kid": "enc-key",
					"n": base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
					"e": base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes())},
				{"kty": "RSA", "use": "sig", "kid": "sig-key",
					"n": base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
					"e": base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes())},
			},
		}
		_ = json.NewEncoder(w).Encode(set)
	}))
	t.Cleanup(server.Close)

	keys := idtoken.NewKeySource(server.URL, server.Client())

	_, err := keys.Key(context.Background(), "sig-key")
	require.NoError(t, err)

	_, err = keys.Key(context.Background(), "enc-key")
	require.ErrorIs(t, err, idtoken.ErrKeyNotFound)

	_, err = keys.Key(context.Background(), "ec-key")
	require.ErrorIs(t, err, idtoken.ErrKeyNotFound)
}
