package model

import (
	"encoding/json"
)

// Message type constants for room signaling. The wire names are shared
// with the browser client and must not change independently.
const (
	MessageTypeJoin        = "join"
	MessageTypeOffer       = "localDescription"
	MessageTypeAnswer      = "remoteDescription"
	MessageTypeCandidate   = "iceCandidate"
	MessageTypeUserJoined  = "user-joined"
	MessageTypeUserLeft    = "user-left"
	MessageTypeWelcome     = "welcome"
	MessageTypeRoomMembers = "room-members"
)

// Member is one participant as seen by the rest of its room.
type Member struct {
	SocketID string `json:"socketId"`
	Name     string `json:"name,omitempty"`
}

// SignalingMessage is the single envelope for everything exchanged on
// the signaling socket. Fields are populated depending on Type:
//
//	join:               RoomID, Name
//	localDescription:   Description, FromSocketID, ToSocketID (optional), RoomID
//	remoteDescription:  Description, FromSocketID, ToSocketID (optional), RoomID
//	iceCandidate:       Candidate, FromSocketID, ToSocketID (optional), RoomID
//	user-joined:        SocketID, Name
//	user-left:          SocketID
//	welcome:            SocketID
//	room-members:       RoomID, Members
//
// Description and Candidate stay opaque: the relay routes them, the
// peers interpret them.
type SignalingMessage struct {
	Type         string          `json:"type"`
	RoomID       string          `json:"roomId,omitempty"`
	Name         string          `json:"name,omitempty"`
	FromSocketID string          `json:"fromSocketId,omitempty"`
	ToSocketID   string          `json:"toSocketId,omitempty"`
	SocketID     string          `json:"socketId,omitempty"`
	Description  json.RawMessage `json:"description,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
	Members      []Member        `json:"members,omitempty"`
}

// Encode serializes a message for the socket. Marshal errors cannot
// occur for this type; the second return keeps call sites honest.
func (m *SignalingMessage) Encode() ([]byte, error) {
	return json.Marshal(m)
}
