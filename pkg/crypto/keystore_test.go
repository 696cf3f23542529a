package crypto

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyStore_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	keyPair, _ := testKeys(t)

	store, err := NewKeyStore(dir, "server secret")
	require.NoError(t, err, "Failed to create key store")

	require.NoError(t, store.Save(keyPair.PrivateKey), "Failed to save key pair")

	loaded, err := store.Load()
	require.NoError(t, err, "Failed to load key pair")
	assert.Equal(t, 0, keyPair.PrivateKey.N.Cmp(loaded.N), "Loaded key should match the saved key")

	// The private key only ever touches disk wrapped.
	blob, err := os.ReadFile(filepath.Join(dir, "private.wrapped.json"))
	require.NoError(t, err)
	raw, err := ExportPrivateKey(keyPair.PrivateKey)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), raw, "Private key material must not appear unwrapped on disk")

	pub, err := store.PublicKeyEncoded()
	require.NoError(t, err, "Failed to read stored public key")
	imported, err := ImportPublicKey(pub)
	require.NoError(t, err, "Stored public key should be in exchange encoding")
	require.NoError(t, ValidateKeyPair(loaded, imported))
}

func TestKeyStore_LoadMissing(t *testing.T) {
	store, err := NewKeyStore(t.TempDir(), "secret")
	require.NoError(t, err)

	_, err = store.Load()
	require.ErrorIs(t, err, os.ErrNotExist, "An empty store should report not-exist")
}

func TestKeyStore_LoadWrongSecret(t *testing.T) {
	dir := t.TempDir()
	keyPair, _ := testKeys(t)

	store, err := NewKeyStore(dir, "right secret")
	require.NoError(t, err)
	require.NoError(t, store.Save(keyPair.PrivateKey))

	reopened, err := NewKeyStore(dir, "wrong secret")
	require.NoError(t, err)

	_, err = reopened.Load()
	require.ErrorIs(t, err, ErrNoKeyMaterial, "A wrong secret must not open the store")
}

func TestKeyStore_LoadOrCreate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping key generation in short mode")
	}

	dir := t.TempDir()
	store, err := NewKeyStore(dir, "secret")
	require.NoError(t, err)

	created, err := store.LoadOrCreate()
	require.NoError(t, err, "Failed to create a fresh key pair")
	require.NotNil(t, created)

	// A second call must load the persisted pair, not mint a new one.
	loaded, err := store.LoadOrCreate()
	require.NoError(t, err, "Failed to load the persisted key pair")
	assert.Equal(t, 0, created.N.Cmp(loaded.N), "Identity must be stable across restarts")
}

func TestNewKeyStore_EmptySecret(t *testing.T) {
	_, err := NewKeyStore(t.TempDir(), "")
	require.ErrorIs(t, err, ErrNoKeyMaterial)
}
