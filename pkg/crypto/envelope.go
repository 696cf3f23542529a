package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Undecryptable is the placeholder returned for any message that cannot be
// decrypted. Decryption failures are per-message and never abort a stream.
const Undecryptable = "[Encrypted Message - Unable to Decrypt]"

const envelopeKeySize = 32 // AES-256
const envelopeNonceSize = 12

// Envelope is the serialized encrypted-message structure. The same ephemeral
// AES key is escrowed once under each participant's public key, so either
// party can decrypt any message with only their own private key.
type Envelope struct {
	IV                    string `json:"iv"`
	EncryptedData         string `json:"encryptedData"`
	EncryptedKeyForSender string `json:"encryptedKeyForSender"`
	EncryptedKeyForRecv   string `json:"encryptedKeyForReceiver"`
}

// Encrypt seals plaintext under a fresh single-use AES-256-GCM key and wraps
// that key for both the sender and the receiver. The ephemeral key lives only
// for the duration of this call.
func Encrypt(plaintext string, senderPub, receiverPub *rsa.PublicKey) (*Envelope, error) {
	if senderPub == nil || receiverPub == nil {
		return nil, fmt.Errorf("both public keys are required")
	}

	key := make([]byte, envelopeKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate message key: %w", err)
	}
	defer func() {
		for i := range key {
			key[i] = 0
		}
	}()

	nonce := make([]byte, envelopeNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)

	forSender, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, senderPub, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap key for sender: %w", err)
	}
	forReceiver, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, receiverPub, key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap key for receiver: %w", err)
	}

	return &Envelope{
		IV:                    base64.StdEncoding.EncodeToString(nonce),
		EncryptedData:         base64.StdEncoding.EncodeToString(sealed),
		EncryptedKeyForSender: base64.StdEncoding.EncodeToString(forSender),
		EncryptedKeyForRecv:   base64.StdEncoding.EncodeToString(forReceiver),
	}, nil
}

// Decrypt recovers the plaintext using the caller's private key. isSender
// selects which escrowed key to try first; if that unwrap fails the other one
// is attempted, so a role-misattributed call site still recovers the message.
// Any unrecoverable failure yields the Undecryptable placeholder, never an
// error.
func Decrypt(e *Envelope, privateKey *rsa.PrivateKey, isSender bool) string {
	if e == nil || privateKey == nil {
		return Undecryptable
	}

	primary, fallback := e.EncryptedKeyForRecv, e.EncryptedKeyForSender
	if isSender {
		primary, fallback = e.EncryptedKeyForSender, e.EncryptedKeyForRecv
	}

	key, err := unwrapMessageKey(primary, privateKey)
	if err != nil {
		key, err = unwrapMessageKey(fallback, privateKey)
		if err != nil {
			return Undecryptable
		}
	}
	defer func() {
		for i := range key {
			key[i] = 0
		}
	}()

	nonce, err := base64.StdEncoding.DecodeString(e.IV)
	if err != nil || len(nonce) != envelopeNonceSize {
		return Undecryptable
	}
	sealed, err := base64.StdEncoding.DecodeString(e.EncryptedData)
	if err != nil {
		return Undecryptable
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return Undecryptable
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return Undecryptable
	}
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return Undecryptable
	}
	return string(plaintext)
}

func unwrapMessageKey(wrapped string, privateKey *rsa.PrivateKey) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, fmt.Errorf("failed to decode wrapped key: %w", err)
	}
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, privateKey, raw, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap message key: %w", err)
	}
	if len(key) != envelopeKeySize {
		return nil, fmt.Errorf("unexpected message key size %d", len(key))
	}
	return key, nil
}

// Marshal serializes the envelope to the JSON string carried as a chat
// message's content.
func (e *Envelope) Marshal() (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return string(b), nil
}

// ParseEnvelope decodes a chat message body into an envelope. The second
// return is false when the payload is not an encrypted envelope and should be
// treated as legacy plaintext. Detection is structural.
func ParseEnvelope(payload string) (*Envelope, bool) {
	if !strings.Contains(payload, "encryptedData") {
		return nil, false
	}
	var e Envelope
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		return nil, false
	}
	if e.EncryptedData == "" {
		return nil, false
	}
	return &e, true
}

// IsEncryptedPayload reports whether a chat message body parses as an
// encrypted envelope.
func IsEncryptedPayload(payload string) bool {
	_, ok := ParseEnvelope(payload)
	return ok
}
