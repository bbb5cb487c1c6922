package orchestrator

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/roomcast-live/roomcast/internal/model"
)

// Signaler sends signaling messages toward the room.
type Signaler interface {
	Send(msg *model.SignalingMessage) error
}

// PeerFactory builds one peer connection per remote participant.
type PeerFactory func() (PeerConnection, error)

// DefaultPeerFactory creates pion peer connections with the given ICE
// servers. An empty list still works on a LAN.
func DefaultPeerFactory(iceServers []string) PeerFactory {
	return func() (PeerConnection, error) {
		cfg := webrtc.Configuration{}
		if len(iceServers) > 0 {
			cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
		}
		return webrtc.NewPeerConnection(cfg)
	}
}

// Orchestrator owns one peer link per remote participant and drives
// each through negotiation. A newly joined participant stays passive;
// the members already in the room send the offers, so both sides never
// offer at once. The residual collision case is settled by comparing
// socket ids.
type Orchestrator struct {
	signaler Signaler
	newPeer  PeerFactory

	mu     sync.Mutex
	selfID string
	roomID string
	links  map[string]*link
	tracks []webrtc.TrackLocal
	closed bool
}

// New creates an orchestrator. Local tracks are attached to every link
// created afterwards.
func New(signaler Signaler, factory PeerFactory, tracks []webrtc.TrackLocal) *Orchestrator {
	return &Orchestrator{
		signaler: signaler,
		newPeer:  factory,
		links:    make(map[string]*link),
		tracks:   tracks,
	}
}

// HandleSignal dispatches one decoded signaling message. It is safe to
// call from the signaling read loop.
func (o *Orchestrator) HandleSignal(msg *model.SignalingMessage) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}

	switch msg.Type {
	case model.MessageTypeWelcome:
		o.selfID = msg.SocketID

	case model.MessageTypeRoomMembers:
		// The joining side waits for offers from existing members
		o.roomID = msg.RoomID

	case model.MessageTypeUserJoined:
		if msg.SocketID == "" || msg.SocketID == o.selfID {
			return
		}
		if err := o.initiateLocked(msg.SocketID); err != nil {
			log.Printf("Failed to initiate link to %s: %v", msg.SocketID, err)
		}

	case model.MessageTypeOffer:
		if msg.FromSocketID == "" || msg.FromSocketID == o.selfID {
			return
		}
		if err := o.handleOfferLocked(msg); err != nil {
			log.Printf("Failed to handle offer from %s: %v", msg.FromSocketID, err)
		}

	case model.MessageTypeAnswer:
		if msg.FromSocketID == "" || msg.FromSocketID == o.selfID {
			return
		}
		if err := o.handleAnswerLocked(msg); err != nil {
			log.Printf("Failed to handle answer from %s: %v", msg.FromSocketID, err)
		}

	case model.MessageTypeCandidate:
		if msg.FromSocketID == "" || msg.FromSocketID == o.selfID {
			return
		}
		if err := o.handleCandidateLocked(msg); err != nil {
			log.Printf("Failed to handle candidate from %s: %v", msg.FromSocketID, err)
		}

	case model.MessageTypeUserLeft:
		o.destroyLocked(msg.SocketID)
	}
}

// initiateLocked creates a link and sends the opening offer.
func (o *Orchestrator) initiateLocked(remoteID string) error {
	if existing, ok := o.links[remoteID]; ok && existing.state != StateClosed {
		return nil
	}

	l, err := o.createLinkLocked(remoteID, true)
	if err != nil {
		return err
	}

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		o.destroyLocked(remoteID)
		return fmt.Errorf("failed to create offer: %w", err)
	}
	if err := l.pc.SetLocalDescription(offer); err != nil {
		o.destroyLocked(remoteID)
		return fmt.Errorf("failed to set local description: %w", err)
	}
	l.state = StateNegotiating

	return o.sendDescription(model.MessageTypeOffer, remoteID, offer)
}

// handleOfferLocked answers an incoming offer, creating the link when
// the remote is new. When both sides offered at once the peer with the
// smaller socket id keeps its offer and the other side yields.
func (o *Orchestrator) handleOfferLocked(msg *model.SignalingMessage) error {
	remoteID := msg.FromSocketID

	l, ok := o.links[remoteID]
	if ok && l.state != StateClosed {
		if l.initiator {
			if o.selfID < remoteID {
				// our offer stands; the remote will answer it
				return nil
			}
			// yield: drop our attempt and answer theirs
			o.destroyLocked(remoteID)
			ok = false
		}
	}
	if !ok || l.state == StateClosed {
		var err error
		l, err = o.createLinkLocked(remoteID, false)
		if err != nil {
			return err
		}
	}

	var desc webrtc.SessionDescription
	if err := json.Unmarshal(msg.Description, &desc); err != nil {
		return fmt.Errorf("malformed offer description: %w", err)
	}

	l.state = StateNegotiating
	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	if err := l.flushPending(); err != nil {
		log.Printf("Failed to apply buffered candidates from %s: %v", remoteID, err)
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("failed to create answer: %w", err)
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}

	return o.sendDescription(model.MessageTypeAnswer, remoteID, answer)
}

func (o *Orchestrator) handleAnswerLocked(msg *model.SignalingMessage) error {
	l, ok := o.links[msg.FromSocketID]
	if !ok || l.state == StateClosed {
		return fmt.Errorf("answer for unknown link %s", msg.FromSocketID)
	}

	var desc webrtc.SessionDescription
	if err := json.Unmarshal(msg.Description, &desc); err != nil {
		return fmt.Errorf("malformed answer description: %w", err)
	}

	if err := l.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("failed to set remote description: %w", err)
	}
	if err := l.flushPending(); err != nil {
		log.Printf("Failed to apply buffered candidates from %s: %v", msg.FromSocketID, err)
	}

	// Signaling is done; transport setup continues underneath and a
	// failure later still tears the link down
	l.state = StateConnected
	return nil
}

func (o *Orchestrator) handleCandidateLocked(msg *model.SignalingMessage) error {
	l, ok := o.links[msg.FromSocketID]
	if !ok || l.state == StateClosed {
		// candidates can outrun the offer; without a link there is
		// nothing to attach them to
		return nil
	}

	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(msg.Candidate, &candidate); err != nil {
		return fmt.Errorf("malformed candidate: %w", err)
	}
	return l.bufferOrAdd(candidate)
}

// createLinkLocked builds the peer connection, attaches local tracks
// and wires trickle ICE back into the signaling channel.
func (o *Orchestrator) createLinkLocked(remoteID string, initiator bool) (*link, error) {
	pc, err := o.newPeer()
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	l := &link{remoteID: remoteID, pc: pc, state: StateIdle, initiator: initiator}

	for _, track := range o.tracks {
		if _, err := pc.AddTrack(track); err != nil {
			pc.Close()
			return nil, fmt.Errorf("failed to add local track: %w", err)
		}
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		payload, err := json.Marshal(c.ToJSON())
		if err != nil {
			log.Printf("Failed to encode candidate: %v", err)
			return
		}
		o.mu.Lock()
		roomID := o.roomID
		o.mu.Unlock()
		if err := o.signaler.Send(&model.SignalingMessage{
			Type:       model.MessageTypeCandidate,
			RoomID:     roomID,
			ToSocketID: remoteID,
			Candidate:  payload,
		}); err != nil {
			log.Printf("Failed to send candidate to %s: %v", remoteID, err)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		o.mu.Lock()
		defer o.mu.Unlock()
		current, ok := o.links[remoteID]
		if !ok || current != l || l.state == StateClosed {
			return
		}
		switch state {
		case webrtc.PeerConnectionStateConnected:
			l.state = StateConnected
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			o.destroyLocked(remoteID)
		}
	})

	o.links[remoteID] = l
	return l, nil
}

func (o *Orchestrator) sendDescription(msgType, remoteID string, desc webrtc.SessionDescription) error {
	payload, err := json.Marshal(desc)
	if err != nil {
		return fmt.Errorf("failed to encode description: %w", err)
	}
	return o.signaler.Send(&model.SignalingMessage{
		Type:        msgType,
		RoomID:      o.roomID,
		ToSocketID:  remoteID,
		Description: payload,
	})
}

func (o *Orchestrator) destroyLocked(remoteID string) {
	l, ok := o.links[remoteID]
	if !ok {
		return
	}
	l.close()
	delete(o.links, remoteID)
}

// ReplaceVideoTrack swaps the outgoing video track on every live link,
// used when the capture device changes mid-call.
func (o *Orchestrator) ReplaceVideoTrack(track webrtc.TrackLocal) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i, existing := range o.tracks {
		if existing.Kind() == webrtc.RTPCodecTypeVideo {
			o.tracks[i] = track
		}
	}

	var firstErr error
	for remoteID, l := range o.links {
		if l.state == StateClosed {
			continue
		}
		for _, sender := range l.pc.GetSenders() {
			current := sender.Track()
			if current == nil || current.Kind() != webrtc.RTPCodecTypeVideo {
				continue
			}
			if err := sender.ReplaceTrack(track); err != nil {
				log.Printf("Failed to replace track toward %s: %v", remoteID, err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}
	return firstErr
}

// LinkState reports the state of the link toward one remote, StateIdle
// when no link exists.
func (o *Orchestrator) LinkState(remoteID string) LinkState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if l, ok := o.links[remoteID]; ok {
		return l.state
	}
	return StateIdle
}

// LinkCount reports the number of tracked links.
func (o *Orchestrator) LinkCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.links)
}

// Close tears down every link.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	for remoteID, l := range o.links {
		l.close()
		delete(o.links, remoteID)
	}
}
