package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-auth-client/storage"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetSetDelete(t *testing.T) {
	s := storage.NewMemoryStore()

	_, ok, err := s.Get("missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set("k", "v1"))
	value, ok, err := s.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v1", value)

	// Overwrite
	require.NoError(t, s.Set("k", "v2"))
	value, _, _ = s.Get("k")
	require.Equal(t, "v2", value)

	require.NoError(t, s.Delete("k"))
	_, ok, err = s.Get("k")
	require.NoError(t, err)
	require.False(t, ok)

	// Deleting a missing key is not an error
	require.NoError(t, s.Delete("k"))
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")

	s, err := storage.NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("client-1:idToken", "abc"))
	require.NoError(t, s.Set("client-1:refreshToken", "def"))
	require.NoError(t, s.Delete("client-1:refreshToken"))

	reopened, err := storage.NewFileStore(path)
	require.NoError(t, err)

	value, ok, err := reopened.Get("client-1:idToken")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "abc", value)

	_, ok, err = reopened.Get("client-1:refreshToken")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, err := storage.NewFileStore(path)
	require.Error(t, err)
}
