package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testKeyOnce sync.Once
	testKeyA    *KeyPair
	testKeyB    *KeyPair
)

// testKeys returns two distinct cached key pairs. RSA generation dominates
// test runtime, so the pairs are shared across the package's tests.
func testKeys(t *testing.T) (*KeyPair, *KeyPair) {
	t.Helper()
	testKeyOnce.Do(func() {
		var err error
		testKeyA, err = GenerateKeyPair(DefaultKeySize)
		if err != nil {
			panic(err)
		}
		testKeyB, err = GenerateKeyPair(DefaultKeySize)
		if err != nil {
			panic(err)
		}
	})
	return testKeyA, testKeyB
}

func TestGenerateKeyPair(t *testing.T) {
	keyPair, err := GenerateKeyPair(2048)
	require.NoError(t, err, "Failed to generate 2048-bit key pair")

	assert.NotNil(t, keyPair.PrivateKey, "Private key should not be nil")
	assert.NotNil(t, keyPair.PublicKey, "Public key should not be nil")
	assert.Equal(t, 2048, keyPair.PrivateKey.N.BitLen(), "Key size should match requested size")

	// Sizes below 2048 are rejected outright
	_, err = GenerateKeyPair(1024)
	require.Error(t, err, "Should fail with key size less than 2048 bits")
}

func TestPublicKeyExportImport(t *testing.T) {
	keyPair, _ := testKeys(t)

	encoded, err := ExportPublicKey(keyPair.PublicKey)
	require.NoError(t, err, "Failed to export public key")
	assert.NotEmpty(t, encoded, "Exported public key should not be empty")

	parsed, err := ImportPublicKey(encoded)
	require.NoError(t, err, "Failed to import public key")

	assert.Equal(t, 0, keyPair.PublicKey.N.Cmp(parsed.N), "Public key modulus should survive the round trip")
	assert.Equal(t, keyPair.PublicKey.E, parsed.E, "Public key exponent should survive the round trip")
}

func TestImportPublicKey_Invalid(t *testing.T) {
	_, err := ImportPublicKey("not base64!!!")
	require.Error(t, err, "Garbage input should not parse as a public key")

	_, err = ImportPublicKey("aGVsbG8gd29ybGQ=")
	require.Error(t, err, "Valid base64 that is not SPKI DER should not parse")
}

func TestPrivateKeyExportImport(t *testing.T) {
	keyPair, _ := testKeys(t)

	encoded, err := ExportPrivateKey(keyPair.PrivateKey)
	require.NoError(t, err, "Failed to export private key")

	parsed, err := ImportPrivateKey(encoded)
	require.NoError(t, err, "Failed to import private key")

	assert.Equal(t, 0, keyPair.PrivateKey.N.Cmp(parsed.N), "Private key modulus should survive the round trip")
	assert.Equal(t, keyPair.PrivateKey.E, parsed.E, "Private key exponent should survive the round trip")
	require.NoError(t, parsed.Validate(), "Imported private key should validate")
}

func TestValidateKeyPair(t *testing.T) {
	keyA, keyB := testKeys(t)

	assert.NoError(t, ValidateKeyPair(keyA.PrivateKey, keyA.PublicKey), "Valid key pair should pass validation")
	assert.Error(t, ValidateKeyPair(keyA.PrivateKey, keyB.PublicKey), "Mismatched key pair should fail validation")
	assert.Error(t, ValidateKeyPair(nil, keyA.PublicKey), "Nil private key should fail validation")
	assert.Error(t, ValidateKeyPair(keyA.PrivateKey, nil), "Nil public key should fail validation")
}

func TestFingerprint(t *testing.T) {
	keyA, keyB := testKeys(t)

	fpA, err := Fingerprint(keyA.PublicKey)
	require.NoError(t, err, "Failed to fingerprint public key")
	assert.Len(t, fpA, 16, "Fingerprint should be 8 bytes of hex")

	fpA2, err := Fingerprint(keyA.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, fpA, fpA2, "Fingerprint should be deterministic")

	fpB, err := Fingerprint(keyB.PublicKey)
	require.NoError(t, err)
	assert.NotEqual(t, fpA, fpB, "Different keys should have different fingerprints")
}

func TestSecureCompareBytes(t *testing.T) {
	a := make([]byte, 32)
	b := make([]byte, 32)
	_, err := rand.Read(a)
	require.NoError(t, err)
	copy(b, a)

	assert.True(t, SecureCompareBytes(a, b), "Equal slices should compare equal")

	b[31] ^= 0x01
	assert.False(t, SecureCompareBytes(a, b), "A single flipped bit should compare unequal")
	assert.False(t, SecureCompareBytes(a, a[:31]), "Different lengths should compare unequal")
	assert.True(t, SecureCompareBytes(nil, nil), "Two empty slices should compare equal")
}

func TestValidateKeyPair_RSAOnly(t *testing.T) {
	// Type guard: a non-RSA SPKI blob must be rejected by ImportPublicKey.
	// Covered indirectly via ImportPublicKey_Invalid; here we only assert the
	// struct contract holds for a handmade mismatching pair.
	keyA, _ := testKeys(t)
	other := &rsa.PublicKey{N: keyA.PublicKey.N, E: keyA.PublicKey.E + 2}
	assert.Error(t, ValidateKeyPair(keyA.PrivateKey, other), "Exponent mismatch should fail validation")
}
