package signaling

import "sync"

// translateType maps a request event type to the notification type the server
// delivers to recipients. Types without a counterpart relay unchanged.
func translateType(t EventType) EventType {
	switch t {
	case EventCallInitiate:
		return EventIncomingCall
	case EventCallAccept:
		return EventCallAccepted
	case EventCallReject:
		return EventCallRejected
	case EventCallEnd:
		return EventCallEnded
	case EventMessageSend:
		return EventMessageReceive
	case EventGuestMessage:
		return EventGuestReceive
	case EventTyping:
		return EventUserTyping
	case EventStopTyping:
		return EventUserStopTyping
	case EventMarkMessagesRead:
		return EventMessagesRead
	default:
		return t
	}
}

// roomCapacity is fixed: rooms hold exactly two participants.
const roomCapacity = 2

// JoinResult describes the server's decision on a join-room request.
type JoinResult struct {
	Full     bool
	Creator  bool         // the joiner is first in and becomes the creator
	Existing *UserPayload // set when the room already has an occupant
}

// Rooms tracks room membership and the creator role. It is the shared core of
// both the in-process bus and the WebSocket hub, so the two enforce identical
// capacity and eviction rules.
type Rooms struct {
	mu    sync.Mutex
	rooms map[string]*roomState
}

type roomState struct {
	creator string
	members map[string]string // userID -> display name
}

// NewRooms creates an empty registry.
func NewRooms() *Rooms {
	return &Rooms{rooms: make(map[string]*roomState)}
}

// Join applies the capacity and role rules for one join-room request.
func (r *Rooms) Join(roomID, userID, name string) JoinResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		room = &roomState{members: make(map[string]string)}
		r.rooms[roomID] = room
	}

	if _, member := room.members[userID]; !member && len(room.members) >= roomCapacity {
		return JoinResult{Full: true}
	}

	var res JoinResult
	for id, n := range room.members {
		if id != userID {
			res.Existing = &UserPayload{UserID: id, UserName: n}
		}
	}
	room.members[userID] = name
	if room.creator == "" || room.creator == userID {
		room.creator = userID
		res.Creator = true
	}
	return res
}

// Leave removes userID from its room, if any. It reports the room, whether the
// departed user was the creator, and who remains. Creator departure dissolves
// the room entirely.
func (r *Rooms) Leave(userID string) (roomID string, wasCreator bool, remaining []UserPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, room := range r.rooms {
		if _, ok := room.members[userID]; !ok {
			continue
		}
		delete(room.members, userID)
		roomID = id
		wasCreator = room.creator == userID
		for mid, name := range room.members {
			remaining = append(remaining, UserPayload{UserID: mid, UserName: name})
		}
		if wasCreator || len(room.members) == 0 {
			delete(r.rooms, id)
		}
		return roomID, wasCreator, remaining
	}
	return "", false, nil
}

// Members lists the current occupants of a room.
func (r *Rooms) Members(roomID string) []UserPayload {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]UserPayload, 0, len(room.members))
	for id, name := range room.members {
		out = append(out, UserPayload{UserID: id, UserName: name})
	}
	return out
}
