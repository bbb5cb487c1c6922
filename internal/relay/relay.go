package relay

import (
	"encoding/json"
	"log"

	"github.com/roomcast-live/roomcast/internal/metrics"
	"github.com/roomcast-live/roomcast/internal/model"
	"github.com/roomcast-live/roomcast/internal/registry"
)

// Sender delivers encoded messages to live connections. Satisfied by
// the hub; replaced by a fake in tests.
type Sender interface {
	// SendTo queues a message for one client, dropping it silently
	// if the client is gone
	SendTo(clientID string, data []byte)

	// ClientIDs returns every currently connected client
	ClientIDs() []string
}

// Service routes signaling messages between room members. It never
// inspects session descriptions or candidates beyond the envelope: the
// relay is a router, not a media server.
type Service struct {
	registry *registry.Registry
	sender   Sender
	metrics  metrics.Collector
}

// New creates a relay service
func New(reg *registry.Registry, sender Sender, m metrics.Collector) *Service {
	return &Service{
		registry: reg,
		sender:   sender,
		metrics:  m,
	}
}

// HandleConnect tells a freshly registered client its own identity.
// Browser clients need it to stamp fromSocketId on outbound messages.
func (s *Service) HandleConnect(clientID string) {
	s.metrics.ParticipantConnected()
	s.send(clientID, &model.SignalingMessage{
		Type:     model.MessageTypeWelcome,
		SocketID: clientID,
	})
}

// HandleMessage dispatches one inbound signaling message
func (s *Service) HandleMessage(clientID string, data []byte) {
	var msg model.SignalingMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("Client %s sent invalid JSON: %v", clientID, err)
		s.metrics.ParticipantError("bad_json")
		s.metrics.MessageDropped("invalid", "bad_json")
		return
	}

	s.metrics.MessageReceived(msg.Type, len(data))

	switch msg.Type {
	case model.MessageTypeJoin:
		s.handleJoin(clientID, &msg)

	case model.MessageTypeOffer, model.MessageTypeAnswer, model.MessageTypeCandidate:
		// The sender identity comes from the connection, never from
		// the payload
		msg.FromSocketID = clientID
		s.route(clientID, &msg)

	default:
		log.Printf("Client %s sent unknown message type: %s", clientID, msg.Type)
		s.metrics.MessageDropped(msg.Type, "unknown_type")
	}
}

// HandleDisconnect removes a departing client from its room and
// announces the departure
func (s *Service) HandleDisconnect(clientID string) {
	s.metrics.ParticipantDisconnected()

	left := &model.SignalingMessage{
		Type:     model.MessageTypeUserLeft,
		SocketID: clientID,
	}

	roomID, destroyed, ok := s.registry.Leave(clientID)
	if !ok {
		// The client disconnected before joining, or the room is
		// otherwise unknown. Tell everyone; peers without a link to
		// this identity treat it as a no-op.
		for _, id := range s.sender.ClientIDs() {
			if id != clientID {
				s.send(id, left)
			}
		}
		return
	}

	log.Printf("Client %s left room %s", clientID, roomID)
	for _, m := range s.registry.Members(roomID, clientID) {
		s.send(m.SocketID, left)
	}
	if destroyed {
		s.metrics.RoomDestroyed(roomID)
	}
}

// handleJoin records membership and announces the newcomer
func (s *Service) handleJoin(clientID string, msg *model.SignalingMessage) {
	if msg.RoomID == "" {
		log.Printf("Client %s sent join without roomId", clientID)
		s.metrics.MessageDropped(msg.Type, "missing_room")
		return
	}

	existing, movedFrom, created := s.registry.Join(clientID, msg.RoomID, msg.Name)
	log.Printf("Client %s joined room %s (%d present)", clientID, msg.RoomID, len(existing))

	if created {
		s.metrics.RoomCreated(msg.RoomID)
	}

	if movedFrom != "" {
		// Joining a new room implies leaving the previous one
		left := &model.SignalingMessage{
			Type:     model.MessageTypeUserLeft,
			SocketID: clientID,
		}
		for _, m := range s.registry.Members(movedFrom, clientID) {
			s.send(m.SocketID, left)
		}
	}

	// Announce the newcomer to everyone already present. The existing
	// members initiate; the newcomer stays passive.
	joined := &model.SignalingMessage{
		Type:     model.MessageTypeUserJoined,
		SocketID: clientID,
		Name:     msg.Name,
	}
	for _, m := range existing {
		s.send(m.SocketID, joined)
	}

	// Tell the joiner who is already here
	s.send(clientID, &model.SignalingMessage{
		Type:    model.MessageTypeRoomMembers,
		RoomID:  msg.RoomID,
		Members: existing,
	})
}

// route applies the single routing rule shared by offers, answers and
// candidates: direct when addressed, room broadcast otherwise.
func (s *Service) route(senderID string, msg *model.SignalingMessage) {
	if msg.ToSocketID != "" {
		s.send(msg.ToSocketID, msg)
		s.metrics.MessageRelayed(msg.Type)
		return
	}

	if msg.RoomID == "" {
		s.metrics.MessageDropped(msg.Type, "unroutable")
		return
	}

	for _, m := range s.registry.Members(msg.RoomID, senderID) {
		s.send(m.SocketID, msg)
	}
	s.metrics.MessageRelayed(msg.Type)
}

func (s *Service) send(clientID string, msg *model.SignalingMessage) {
	data, err := msg.Encode()
	if err != nil {
		log.Printf("Failed to encode %s message: %v", msg.Type, err)
		return
	}
	s.sender.SendTo(clientID, data)
}
