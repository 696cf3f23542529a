package crypto

import (
	"crypto/rsa"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rescp17/pairLink/internal/util"
)

const (
	privateKeyFile = "private.wrapped.json"
	publicKeyFile  = "public.b64"
)

// KeyStore persists one identity's key pair under a directory. The private
// key is only ever written wrapped; the public key is stored in its exchange
// encoding so it can be served to peers as is.
type KeyStore struct {
	dir     string
	wrapper *KeyWrapper
}

// NewKeyStore creates a store rooted at dir, wrapping private material with
// the given server secret.
func NewKeyStore(dir, serverSecret string) (*KeyStore, error) {
	wrapper, err := NewKeyWrapper(serverSecret)
	if err != nil {
		return nil, err
	}
	if err := util.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to prepare key directory: %w", err)
	}
	return &KeyStore{dir: dir, wrapper: wrapper}, nil
}

// Save wraps and writes the key pair.
func (ks *KeyStore) Save(priv *rsa.PrivateKey) error {
	raw, err := ExportPrivateKey(priv)
	if err != nil {
		return err
	}
	wrapped, err := ks.wrapper.Wrap([]byte(raw))
	if err != nil {
		return fmt.Errorf("failed to wrap private key: %w", err)
	}
	blob, err := wrapped.Marshal()
	if err != nil {
		return err
	}

	pub, err := ExportPublicKey(&priv.PublicKey)
	if err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(ks.dir, privateKeyFile), []byte(blob), 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(ks.dir, publicKeyFile), []byte(pub), 0o644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}
	return nil
}

// Load reads and unwraps the stored key pair. A missing store returns
// os.ErrNotExist; a present but unopenable store returns ErrNoKeyMaterial.
func (ks *KeyStore) Load() (*rsa.PrivateKey, error) {
	blob, err := os.ReadFile(filepath.Join(ks.dir, privateKeyFile))
	if err != nil {
		return nil, err
	}
	wrapped, err := ParseWrappedKey(string(blob))
	if err != nil {
		return nil, err
	}
	raw, err := ks.wrapper.Unwrap(wrapped)
	if err != nil {
		return nil, err
	}
	priv, err := ImportPrivateKey(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoKeyMaterial, err)
	}
	return priv, nil
}

// LoadOrCreate loads the stored pair, generating and saving a fresh one when
// the store is empty.
func (ks *KeyStore) LoadOrCreate() (*rsa.PrivateKey, error) {
	priv, err := ks.Load()
	if err == nil {
		return priv, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}

	pair, err := GenerateKeyPair(DefaultKeySize)
	if err != nil {
		return nil, err
	}
	if err := ks.Save(pair.PrivateKey); err != nil {
		return nil, err
	}
	return pair.PrivateKey, nil
}

// PublicKeyEncoded returns the stored public key in exchange encoding.
func (ks *KeyStore) PublicKeyEncoded() (string, error) {
	b, err := os.ReadFile(filepath.Join(ks.dir, publicKeyFile))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
