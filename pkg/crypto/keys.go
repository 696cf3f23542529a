// Package crypto implements the hybrid end-to-end encryption layer: RSA-OAEP
// identity key pairs, per-message AES-GCM envelopes escrowed for both
// participants, and symmetric wrapping of the private key for storage at rest.
package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"fmt"
)

// DefaultKeySize is the RSA modulus size for newly generated identities.
const DefaultKeySize = 2048

// KeyPair represents an RSA-OAEP key pair. The private key is generated fresh
// per login session and must never be persisted unwrapped.
type KeyPair struct {
	PrivateKey *rsa.PrivateKey
	PublicKey  *rsa.PublicKey
}

// GenerateKeyPair generates a new RSA key pair with the specified bit size.
func GenerateKeyPair(bitSize int) (*KeyPair, error) {
	if bitSize < 2048 {
		return nil, fmt.Errorf("key size must be at least 2048 bits")
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bitSize)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key pair: %w", err)
	}

	return &KeyPair{
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
	}, nil
}

// ExportPublicKey encodes an RSA public key as base64 SPKI DER, the format
// public keys travel in on the wire and in the user directory.
func ExportPublicKey(publicKey *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// ImportPublicKey parses a base64 SPKI DER public key.
func ImportPublicKey(spkiBase64 string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(spkiBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}

	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	publicKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key is not an RSA public key")
	}
	return publicKey, nil
}

// ExportPrivateKey encodes an RSA private key as base64 PKCS8 DER. The result
// is what the key-wrap layer seals before anything touches storage.
func ExportPrivateKey(privateKey *rsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal private key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// ImportPrivateKey parses a base64 PKCS8 DER private key.
func ImportPrivateKey(pkcs8Base64 string) (*rsa.PrivateKey, error) {
	der, err := base64.StdEncoding.DecodeString(pkcs8Base64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	privateKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key is not an RSA private key")
	}
	return privateKey, nil
}

// ValidateKeyPair validates that a private and public key form a valid pair.
func ValidateKeyPair(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey) error {
	if privateKey == nil || publicKey == nil {
		return fmt.Errorf("key is nil")
	}
	if privateKey.PublicKey.N.Cmp(publicKey.N) != 0 {
		return fmt.Errorf("public key does not match private key")
	}
	if privateKey.PublicKey.E != publicKey.E {
		return fmt.Errorf("public key exponent does not match private key")
	}
	return nil
}

// Fingerprint returns a short hex digest of a public key, used for display.
func Fingerprint(publicKey *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return fmt.Sprintf("%x", sum[:8]), nil
}

// SecureCompareBytes performs constant-time comparison of byte slices.
func SecureCompareBytes(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}

	var result byte
	for i := 0; i < len(a); i++ {
		result |= a[i] ^ b[i]
	}
	return result == 0
}
