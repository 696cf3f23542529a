package crypto

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt_BothRoles(t *testing.T) {
	sender, receiver := testKeys(t)

	env, err := Encrypt("hello over the wire", sender.PublicKey, receiver.PublicKey)
	require.NoError(t, err, "Failed to encrypt message")

	// The same envelope must open with either party's private key.
	assert.Equal(t, "hello over the wire", Decrypt(env, sender.PrivateKey, true),
		"Sender should decrypt their own message")
	assert.Equal(t, "hello over the wire", Decrypt(env, receiver.PrivateKey, false),
		"Receiver should decrypt the message")
}

func TestDecrypt_RoleFallback(t *testing.T) {
	sender, receiver := testKeys(t)

	env, err := Encrypt("role confusion", sender.PublicKey, receiver.PublicKey)
	require.NoError(t, err)

	// A call site that passes the wrong role still recovers the plaintext
	// because the other escrowed key is tried on unwrap failure.
	assert.Equal(t, "role confusion", Decrypt(env, sender.PrivateKey, false),
		"Sender key with receiver role should fall back to the sender escrow")
	assert.Equal(t, "role confusion", Decrypt(env, receiver.PrivateKey, true),
		"Receiver key with sender role should fall back to the receiver escrow")
}

func TestDecrypt_WrongKey(t *testing.T) {
	sender, receiver := testKeys(t)

	env, err := Encrypt("for your eyes only", sender.PublicKey, sender.PublicKey)
	require.NoError(t, err)

	assert.Equal(t, Undecryptable, Decrypt(env, receiver.PrivateKey, false),
		"A third party's key should never recover the plaintext")
}

func TestDecrypt_Tampered(t *testing.T) {
	sender, receiver := testKeys(t)

	env, err := Encrypt("integrity matters", sender.PublicKey, receiver.PublicKey)
	require.NoError(t, err)

	sealed, err := base64.StdEncoding.DecodeString(env.EncryptedData)
	require.NoError(t, err)
	sealed[0] ^= 0xff
	env.EncryptedData = base64.StdEncoding.EncodeToString(sealed)

	assert.Equal(t, Undecryptable, Decrypt(env, receiver.PrivateKey, false),
		"Tampered ciphertext should yield the placeholder, not partial plaintext")
}

func TestDecrypt_NeverErrors(t *testing.T) {
	sender, _ := testKeys(t)

	assert.Equal(t, Undecryptable, Decrypt(nil, sender.PrivateKey, false), "Nil envelope")
	assert.Equal(t, Undecryptable, Decrypt(&Envelope{}, nil, false), "Nil private key")
	assert.Equal(t, Undecryptable, Decrypt(&Envelope{
		IV:            "???",
		EncryptedData: "???",
	}, sender.PrivateKey, false), "Garbage fields")
}

func TestEncrypt_RequiresBothKeys(t *testing.T) {
	sender, _ := testKeys(t)

	_, err := Encrypt("x", sender.PublicKey, nil)
	require.Error(t, err, "Missing receiver key should refuse to encrypt")
	_, err = Encrypt("x", nil, sender.PublicKey)
	require.Error(t, err, "Missing sender key should refuse to encrypt")
}

func TestEnvelope_MarshalParse(t *testing.T) {
	sender, receiver := testKeys(t)

	env, err := Encrypt("round trip", sender.PublicKey, receiver.PublicKey)
	require.NoError(t, err)

	payload, err := env.Marshal()
	require.NoError(t, err, "Failed to marshal envelope")
	assert.Contains(t, payload, `"encryptedKeyForReceiver"`, "Wire field names must match the persisted format")

	parsed, ok := ParseEnvelope(payload)
	require.True(t, ok, "Marshalled envelope should parse as encrypted")
	assert.Equal(t, "round trip", Decrypt(parsed, receiver.PrivateKey, false),
		"Parsed envelope should still decrypt")
}

func TestParseEnvelope_Plaintext(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"plain text", "just a normal message"},
		{"empty", ""},
		{"json but not an envelope", `{"message":"hi"}`},
		{"mentions the marker in prose", "what does encryptedData mean?"},
		{"envelope with empty data", `{"iv":"aa","encryptedData":""}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, ok := ParseEnvelope(tc.payload)
			assert.False(t, ok, "Payload should be treated as plaintext")
			assert.False(t, IsEncryptedPayload(tc.payload))
		})
	}
}

func TestEncrypt_FreshKeyPerMessage(t *testing.T) {
	sender, receiver := testKeys(t)

	first, err := Encrypt("same plaintext", sender.PublicKey, receiver.PublicKey)
	require.NoError(t, err)
	second, err := Encrypt("same plaintext", sender.PublicKey, receiver.PublicKey)
	require.NoError(t, err)

	assert.NotEqual(t, first.EncryptedData, second.EncryptedData,
		"Fresh key and nonce per message should randomize the ciphertext")
	assert.NotEqual(t, first.IV, second.IV, "Nonces must not repeat")
}
