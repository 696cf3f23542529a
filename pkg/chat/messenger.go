// Package chat implements text messaging over the signaling channel with
// hybrid end-to-end encryption. Encryption is per message and best effort:
// when key material is missing the messenger warns and degrades to plaintext
// rather than blocking the conversation, and a message that fails to decrypt
// is delivered as a placeholder without disturbing its neighbours.
package chat

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rescp17/pairLink/pkg/crypto"
	"github.com/rescp17/pairLink/pkg/signaling"
)

// Message is one delivered chat message, after any decryption.
type Message struct {
	ID         string
	SenderID   string
	SenderName string
	Content    string
	Encrypted  bool // the payload arrived as an encrypted envelope
	Timestamp  time.Time
}

// KeyRing holds the asymmetric material for one conversation. All fields may
// be nil; encryption is only attempted when the ring is complete.
type KeyRing struct {
	Private *rsa.PrivateKey
	SelfPub *rsa.PublicKey
	PeerPub *rsa.PublicKey
}

func (k KeyRing) canEncrypt() bool {
	return k.SelfPub != nil && k.PeerPub != nil
}

// Callbacks notify the UI layer. All fields optional; must not block.
type Callbacks struct {
	OnMessage func(m Message)
	// OnTyping reports remote typing state transitions.
	OnTyping func(senderID string, typing bool)
	// OnMessagesRead fires when the peer has read our messages.
	OnMessagesRead func(readerID string)
	// OnPlaintextSend fires each time a message goes out unencrypted because
	// the key ring is incomplete.
	OnPlaintextSend func()
}

// Wire selects which event pair the messenger speaks. Authenticated chat and
// room chat share the same shape but different event names and addressing.
type Wire struct {
	Send    signaling.EventType
	Receive signaling.EventType
	RoomID  string // set for room chat, empty for direct chat
}

// DirectWire is the authenticated-mode event pair, addressed to a target user.
func DirectWire() Wire {
	return Wire{Send: signaling.EventMessageSend, Receive: signaling.EventMessageReceive}
}

// RoomWire is the guest-mode event pair, scoped to a room.
func RoomWire(roomID string) Wire {
	return Wire{Send: signaling.EventGuestMessage, Receive: signaling.EventGuestReceive, RoomID: roomID}
}

// Messenger sends and receives chat messages for one conversation.
type Messenger struct {
	selfID   string
	selfName string
	sig      signaling.Channel
	wire     Wire
	cb       Callbacks

	handlers signaling.HandlerTable

	mu   sync.Mutex
	keys KeyRing
}

// NewMessenger creates a messenger and installs its signaling handlers.
func NewMessenger(selfID, selfName string, sig signaling.Channel, wire Wire, cb Callbacks) *Messenger {
	m := &Messenger{
		selfID:   selfID,
		selfName: selfName,
		sig:      sig,
		wire:     wire,
		cb:       cb,
	}

	m.handlers.Install(sig, wire.Receive, m.handleMessage)
	m.handlers.Install(sig, signaling.EventUserTyping, m.handleTyping)
	m.handlers.Install(sig, signaling.EventUserStopTyping, m.handleStopTyping)
	m.handlers.Install(sig, signaling.EventMessagesRead, m.handleMessagesRead)
	return m
}

// Close removes the messenger's signaling handlers.
func (m *Messenger) Close() {
	m.handlers.RemoveAll()
}

// SetKeys installs or replaces the conversation's key material. Messages sent
// before the ring is complete go out as plaintext with a warning.
func (m *Messenger) SetKeys(keys KeyRing) {
	m.mu.Lock()
	m.keys = keys
	m.mu.Unlock()
}

// Send encrypts and transmits one message to targetID. With an incomplete key
// ring it degrades to plaintext and fires OnPlaintextSend first. Returns the
// assigned message ID.
func (m *Messenger) Send(ctx context.Context, targetID, content string) (string, error) {
	m.mu.Lock()
	keys := m.keys
	m.mu.Unlock()

	body := content
	if keys.canEncrypt() {
		env, err := crypto.Encrypt(content, keys.SelfPub, keys.PeerPub)
		if err != nil {
			return "", fmt.Errorf("failed to encrypt message: %w", err)
		}
		if body, err = env.Marshal(); err != nil {
			return "", err
		}
	} else {
		if m.cb.OnPlaintextSend != nil {
			m.cb.OnPlaintextSend()
		}
		slog.Warn("sending message without encryption", "target", targetID)
	}

	payload := signaling.ChatPayload{
		ID:         uuid.NewString(),
		Content:    body,
		SenderName: m.selfName,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	if err := m.send(ctx, m.wire.Send, targetID, payload); err != nil {
		return "", err
	}
	return payload.ID, nil
}

// SetTyping publishes the local typing indicator state.
func (m *Messenger) SetTyping(ctx context.Context, targetID string, typing bool) error {
	t := signaling.EventStopTyping
	if typing {
		t = signaling.EventTyping
	}
	return m.send(ctx, t, targetID, nil)
}

// MarkRead tells the peer all their messages have been seen.
func (m *Messenger) MarkRead(ctx context.Context, targetID string) error {
	return m.send(ctx, signaling.EventMarkMessagesRead, targetID, nil)
}

func (m *Messenger) handleMessage(e signaling.Event) {
	if e.SenderID == m.selfID || !m.inScope(e) {
		return
	}

	var payload signaling.ChatPayload
	if err := e.Decode(&payload); err != nil {
		slog.Warn("malformed chat payload", "error", err)
		return
	}

	msg := Message{
		ID:         payload.ID,
		SenderID:   e.SenderID,
		SenderName: payload.SenderName,
		Content:    payload.Content,
	}
	if ts, err := time.Parse(time.RFC3339, payload.Timestamp); err == nil {
		msg.Timestamp = ts
	} else {
		msg.Timestamp = time.Now().UTC()
	}

	// Structural detection: a body that parses as an envelope is decrypted,
	// anything else passes through as plaintext.
	if env, ok := crypto.ParseEnvelope(payload.Content); ok {
		msg.Encrypted = true
		m.mu.Lock()
		priv := m.keys.Private
		m.mu.Unlock()
		msg.Content = crypto.Decrypt(env, priv, false)
	}

	if m.cb.OnMessage != nil {
		m.cb.OnMessage(msg)
	}
}

func (m *Messenger) handleTyping(e signaling.Event) {
	if e.SenderID == m.selfID || !m.inScope(e) {
		return
	}
	if m.cb.OnTyping != nil {
		m.cb.OnTyping(e.SenderID, true)
	}
}

func (m *Messenger) handleStopTyping(e signaling.Event) {
	if e.SenderID == m.selfID || !m.inScope(e) {
		return
	}
	if m.cb.OnTyping != nil {
		m.cb.OnTyping(e.SenderID, false)
	}
}

func (m *Messenger) handleMessagesRead(e signaling.Event) {
	if e.SenderID == m.selfID || !m.inScope(e) {
		return
	}
	if m.cb.OnMessagesRead != nil {
		m.cb.OnMessagesRead(e.SenderID)
	}
}

// inScope filters room-chat events carrying a different room key. Direct chat
// has no room key and accepts everything addressed to us.
func (m *Messenger) inScope(e signaling.Event) bool {
	return m.wire.RoomID == "" || e.RoomID == "" || e.RoomID == m.wire.RoomID
}

func (m *Messenger) send(ctx context.Context, t signaling.EventType, targetID string, payload any) error {
	e, err := signaling.NewEvent(t, payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", t, err)
	}
	e.SenderID = m.selfID
	e.TargetID = targetID
	e.RoomID = m.wire.RoomID
	return m.sig.Send(ctx, e)
}
