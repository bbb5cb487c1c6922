package orchestrator

import (
	"log"

	"github.com/pion/webrtc/v3"
)

// LinkState tracks a peer link through its lifecycle.
type LinkState int

const (
	StateIdle LinkState = iota
	StateNegotiating
	StateConnected
	StateClosed
)

func (s LinkState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PeerConnection is the slice of *webrtc.PeerConnection the
// orchestrator needs. Narrowing it keeps the state machine testable
// without standing up real ICE agents.
type PeerConnection interface {
	CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	RemoteDescription() *webrtc.SessionDescription
	AddICECandidate(webrtc.ICECandidateInit) error
	OnICECandidate(func(*webrtc.ICECandidate))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	AddTrack(webrtc.TrackLocal) (*webrtc.RTPSender, error)
	GetSenders() []*webrtc.RTPSender
	Close() error
}

// link is one negotiated connection toward a single remote peer.
type link struct {
	remoteID  string
	pc        PeerConnection
	state     LinkState
	initiator bool

	// pending holds remote candidates that arrived before the remote
	// description was set
	pending []webrtc.ICECandidateInit
}

// bufferOrAdd applies a remote candidate now if the remote description
// is known, otherwise queues it for flushPending.
func (l *link) bufferOrAdd(candidate webrtc.ICECandidateInit) error {
	if l.pc.RemoteDescription() == nil {
		l.pending = append(l.pending, candidate)
		return nil
	}
	return l.pc.AddICECandidate(candidate)
}

// flushPending drains candidates queued while the remote description
// was still unknown. Call only after SetRemoteDescription succeeded.
func (l *link) flushPending() error {
	var firstErr error
	for _, candidate := range l.pending {
		if err := l.pc.AddICECandidate(candidate); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.pending = nil
	return firstErr
}

func (l *link) close() {
	if l.state == StateClosed {
		return
	}
	l.state = StateClosed
	l.pending = nil
	if err := l.pc.Close(); err != nil {
		log.Printf("Failed to close peer connection to %s: %v", l.remoteID, err)
	}
}
