package signaling

import "encoding/json"

// EventType identifies a signaling event on the wire.
type EventType string

const (
	// Authenticated (two-user) call events.
	EventCallInitiate EventType = "webrtc-call-initiate"
	EventIncomingCall EventType = "webrtc-incoming-call"
	EventCallAccept   EventType = "webrtc-call-accept"
	EventCallAccepted EventType = "webrtc-call-accepted"
	EventCallReject   EventType = "webrtc-call-reject"
	EventCallRejected EventType = "webrtc-call-rejected"
	EventCallEnd      EventType = "webrtc-call-end"
	EventCallEnded    EventType = "webrtc-call-ended"

	// Negotiation events, shared by both modes.
	EventOffer        EventType = "webrtc-offer"
	EventAnswer       EventType = "webrtc-answer"
	EventICECandidate EventType = "webrtc-ice-candidate"

	// Room (guest) mode events.
	EventJoinRoom         EventType = "join-room"
	EventRoomFull         EventType = "room-full"
	EventRoomCreator      EventType = "room-creator"
	EventExistingUser     EventType = "existing-user"
	EventUserJoined       EventType = "user-joined"
	EventUserLeft         EventType = "user-left"
	EventHostDisconnected EventType = "host-disconnected"
	EventHostAction       EventType = "host-action"
	EventScreenShare      EventType = "guest-screen-share-status"
	EventGuestMessage     EventType = "guest-message"
	EventGuestReceive     EventType = "guest-receive"

	// Key exchange for E2EE chat.
	EventPublicKey EventType = "public-key"

	// Chat and presence events (authenticated mode).
	EventMessageSend      EventType = "message-send"
	EventMessageReceive   EventType = "message-receive"
	EventTyping           EventType = "typing"
	EventStopTyping       EventType = "stop-typing"
	EventUserTyping       EventType = "user-typing"
	EventUserStopTyping   EventType = "user-stop-typing"
	EventMarkMessagesRead EventType = "mark-messages-read"
	EventMessagesRead     EventType = "messages-read"
)

// Event is the envelope every signaling message travels in. SenderID is filled
// in by the transport for inbound events; TargetID addresses a specific peer,
// RoomID a room. Payload is left opaque until a handler decodes it.
type Event struct {
	Type     EventType       `json:"type"`
	SenderID string          `json:"senderId,omitempty"`
	TargetID string          `json:"targetId,omitempty"`
	RoomID   string          `json:"roomId,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent builds an event with the given payload, which must be JSON-marshalable.
func NewEvent(t EventType, payload any) (Event, error) {
	e := Event{Type: t}
	if payload == nil {
		return e, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	e.Payload = raw
	return e, nil
}

// HostAction is a moderation command a room creator can apply to the guest.
type HostAction string

const (
	HostActionMute               HostAction = "mute"
	HostActionDisableCamera      HostAction = "disable-camera"
	HostActionDisableScreenShare HostAction = "disable-screen-share"
)

// SDPPayload carries an offer or answer. The SDP body is opaque to this layer.
type SDPPayload struct {
	SDP SessionDescription `json:"sdp"`
}

// SessionDescription mirrors the WebRTC session description shape without
// importing pion here; pkg/peer converts it.
type SessionDescription struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

// CandidatePayload carries one ICE candidate.
type CandidatePayload struct {
	Candidate json.RawMessage `json:"candidate"`
}

// HostActionPayload carries a forced moderation toggle.
type HostActionPayload struct {
	Action HostAction `json:"action"`
}

// ScreenSharePayload is a remote UI hint only; it never drives media state.
type ScreenSharePayload struct {
	IsScreenSharing bool `json:"isScreenSharing"`
}

// JoinPayload is sent with join-room.
type JoinPayload struct {
	Name string `json:"name,omitempty"`
}

// UserPayload identifies a participant in room membership events.
type UserPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

// PublicKeyPayload carries a participant's public key in exchange encoding.
type PublicKeyPayload struct {
	Key string `json:"key"`
}

// ChatPayload carries one chat message. Content holds either plaintext or a
// JSON-serialized encrypted envelope; receivers detect which structurally.
type ChatPayload struct {
	ID         string `json:"id"`
	Content    string `json:"message"`
	SenderName string `json:"senderName,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}
