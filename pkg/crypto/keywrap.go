package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ErrNoKeyMaterial is returned whenever unwrapping cannot produce usable key
// material: wrong secret, tampered ciphertext, malformed input. Callers must
// treat it as "no E2EE available" and warn before sending anything
// unencrypted.
var ErrNoKeyMaterial = errors.New("no usable key material")

const (
	wrapKeySize   = 32
	wrapNonceSize = 16
	wrapTagSize   = 16
)

var wrapInfo = []byte("pairLink private key wrap v1")

// WrappedKey is the only durable artifact this package produces: the
// private key sealed for storage at rest. It round-trips exactly through
// JSON as {iv, encrypted, authTag}, all base64.
type WrappedKey struct {
	IV        string `json:"iv"`
	Encrypted string `json:"encrypted"`
	AuthTag   string `json:"authTag"`
}

// ParseWrappedKey decodes the persisted JSON form.
func ParseWrappedKey(s string) (*WrappedKey, error) {
	var w WrappedKey
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoKeyMaterial, err)
	}
	return &w, nil
}

// Marshal serializes the wrapped key to its persisted JSON form.
func (w *WrappedKey) Marshal() (string, error) {
	b, err := json.Marshal(w)
	if err != nil {
		return "", fmt.Errorf("failed to marshal wrapped key: %w", err)
	}
	return string(b), nil
}

// KeyWrapper wraps and unwraps private key material with a symmetric key
// derived once from a long-lived server secret. The secret itself is never
// transmitted.
type KeyWrapper struct {
	key []byte
}

// NewKeyWrapper derives the wrapping key from the server secret via
// HKDF-SHA256.
func NewKeyWrapper(serverSecret string) (*KeyWrapper, error) {
	if serverSecret == "" {
		return nil, ErrNoKeyMaterial
	}

	key := make([]byte, wrapKeySize)
	r := hkdf.New(sha256.New, []byte(serverSecret), nil, wrapInfo)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive wrapping key: %w", err)
	}
	return &KeyWrapper{key: key}, nil
}

// Wrap seals raw private key material with AES-256-GCM under a random nonce.
// The auth tag is stored detached to match the persisted format.
func (kw *KeyWrapper) Wrap(raw []byte) (*WrappedKey, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("nothing to wrap")
	}

	nonce := make([]byte, wrapNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	aead, err := kw.newAEAD()
	if err != nil {
		return nil, err
	}

	sealed := aead.Seal(nil, nonce, raw, nil)
	split := len(sealed) - wrapTagSize

	return &WrappedKey{
		IV:        base64.StdEncoding.EncodeToString(nonce),
		Encrypted: base64.StdEncoding.EncodeToString(sealed[:split]),
		AuthTag:   base64.StdEncoding.EncodeToString(sealed[split:]),
	}, nil
}

// Unwrap opens a wrapped key. It fails closed: any parse or tag-verification
// failure yields ErrNoKeyMaterial and no partial plaintext.
func (kw *KeyWrapper) Unwrap(w *WrappedKey) ([]byte, error) {
	if w == nil {
		return nil, ErrNoKeyMaterial
	}

	nonce, err := base64.StdEncoding.DecodeString(w.IV)
	if err != nil || len(nonce) != wrapNonceSize {
		return nil, ErrNoKeyMaterial
	}
	ciphertext, err := base64.StdEncoding.DecodeString(w.Encrypted)
	if err != nil {
		return nil, ErrNoKeyMaterial
	}
	tag, err := base64.StdEncoding.DecodeString(w.AuthTag)
	if err != nil || len(tag) != wrapTagSize {
		return nil, ErrNoKeyMaterial
	}

	aead, err := kw.newAEAD()
	if err != nil {
		return nil, err
	}

	raw, err := aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return nil, ErrNoKeyMaterial
	}
	return raw, nil
}

func (kw *KeyWrapper) newAEAD() (cipher.AEAD, error) {
	block, err := aes.NewCipher(kw.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, wrapNonceSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}
