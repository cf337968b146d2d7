package peer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	pion "github.com/pion/webrtc/v4"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/protocol"
)

const dataChannelLabel = "tasting"

var (
	ErrUnknownPeer     = errors.New("unknown peer")
	ErrUnexpectedKind  = errors.New("unexpected signal type")
	ErrMalformedSignal = errors.New("malformed signal payload")
)

// Signaler sends a signaling payload to another connection.
// *client.Controller satisfies it.
type Signaler interface {
	Signal(to string, kind protocol.SignalKind, signal any) error
}

// Negotiator runs one WebRTC offer/answer exchange per remote connection,
// carrying every SDP and ICE message over the signaling relay.
type Negotiator struct {
	api      *pion.API
	config   pion.Configuration
	signaler Signaler
	logger   *slog.Logger

	mu    sync.Mutex
	peers map[string]*pion.PeerConnection

	// pending holds candidates that arrived before the remote description.
	pending map[string][]pion.ICECandidateInit

	// OnState, when set, is called on every peer connection state change.
	OnState func(remoteID string, state pion.PeerConnectionState)
}

func NewNegotiator(stunServers []string, signaler Signaler, logger *slog.Logger) *Negotiator {
	if logger == nil {
		logger = slog.Default()
	}
	var iceServers []pion.ICEServer
	if len(stunServers) > 0 {
		iceServers = []pion.ICEServer{{URLs: stunServers}}
	}
	return &Negotiator{
		api:      pion.NewAPI(),
		config:   pion.Configuration{ICEServers: iceServers},
		signaler: signaler,
		logger:   logger,
		peers:    make(map[string]*pion.PeerConnection),
		pending:  make(map[string][]pion.ICECandidateInit),
	}
}

// Offer opens a data channel to remoteID and sends it an offer.
func (n *Negotiator) Offer(remoteID string) error {
	pc, err := n.peerConnection(remoteID)
	if err != nil {
		return err
	}
	if _, err := pc.CreateDataChannel(dataChannelLabel, nil); err != nil {
		return fmt.Errorf("create data channel: %w", err)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	return n.send(remoteID, protocol.SignalOffer, pc.LocalDescription())
}

// HandleSignal applies a relayed signal. An offer is answered; answers and
// ICE candidates update the existing peer connection.
func (n *Negotiator) HandleSignal(s protocol.SignalOut) error {
	data, err := s.Signal.MarshalJSON()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSignal, err)
	}

	switch s.Type {
	case protocol.SignalOffer:
		var offer pion.SessionDescription
		if err := json.Unmarshal(data, &offer); err != nil || offer.SDP == "" {
			return ErrMalformedSignal
		}
		return n.answer(s.From, offer)

	case protocol.SignalAnswer:
		var answer pion.SessionDescription
		if err := json.Unmarshal(data, &answer); err != nil || answer.SDP == "" {
			return ErrMalformedSignal
		}
		pc, ok := n.lookup(s.From)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownPeer, s.From)
		}
		if err := pc.SetRemoteDescription(answer); err != nil {
			return fmt.Errorf("set remote description: %w", err)
		}
		return n.flush(s.From, pc)

	case protocol.SignalICECandidate:
		var candidate pion.ICECandidateInit
		if err := json.Unmarshal(data, &candidate); err != nil || candidate.Candidate == "" {
			return ErrMalformedSignal
		}
		n.mu.Lock()
		pc, ok := n.peers[s.From]
		if !ok || pc.RemoteDescription() == nil {
			n.pending[s.From] = append(n.pending[s.From], candidate)
			n.mu.Unlock()
			return nil
		}
		n.mu.Unlock()
		if err := pc.AddICECandidate(candidate); err != nil {
			return fmt.Errorf("add ICE candidate: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnexpectedKind, s.Type)
}

func (n *Negotiator) answer(remoteID string, offer pion.SessionDescription) error {
	pc, err := n.peerConnection(remoteID)
	if err != nil {
		return err
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	if err := n.flush(remoteID, pc); err != nil {
		return err
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	return n.send(remoteID, protocol.SignalAnswer, pc.LocalDescription())
}

// peerConnection returns the connection for remoteID, creating it and
// wiring its ICE trickle on first use.
func (n *Negotiator) peerConnection(remoteID string) (*pion.PeerConnection, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if pc, ok := n.peers[remoteID]; ok {
		return pc, nil
	}

	pc, err := n.api.NewPeerConnection(n.config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		if err := n.send(remoteID, protocol.SignalICECandidate, c.ToJSON()); err != nil {
			n.logger.Debug("failed to send ICE candidate", "peer", remoteID, "error", err)
		}
	})
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		n.logger.Debug("peer connection state", "peer", remoteID, "state", state.String())
		if n.OnState != nil {
			n.OnState(remoteID, state)
		}
	})
	n.peers[remoteID] = pc
	return pc, nil
}

// flush applies candidates queued before the remote description was set.
func (n *Negotiator) flush(remoteID string, pc *pion.PeerConnection) error {
	n.mu.Lock()
	queued := n.pending[remoteID]
	delete(n.pending, remoteID)
	n.mu.Unlock()

	for _, candidate := range queued {
		if err := pc.AddICECandidate(candidate); err != nil {
			return fmt.Errorf("add ICE candidate: %w", err)
		}
	}
	return nil
}

func (n *Negotiator) lookup(remoteID string) (*pion.PeerConnection, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	pc, ok := n.peers[remoteID]
	return pc, ok
}

// send converts v to its JSON shape first so the payload reads the same
// whichever codec the signaling connection uses.
func (n *Negotiator) send(remoteID string, kind protocol.SignalKind, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	return n.signaler.Signal(remoteID, kind, wire)
}

// SignalingState reports the negotiation state with remoteID.
func (n *Negotiator) SignalingState(remoteID string) (pion.SignalingState, bool) {
	pc, ok := n.lookup(remoteID)
	if !ok {
		return pion.SignalingStateUnknown, false
	}
	return pc.SignalingState(), true
}

// Remove closes the connection to a peer that left the room.
func (n *Negotiator) Remove(remoteID string) {
	n.mu.Lock()
	pc, ok := n.peers[remoteID]
	delete(n.peers, remoteID)
	delete(n.pending, remoteID)
	n.mu.Unlock()
	if ok {
		if err := pc.Close(); err != nil {
			n.logger.Debug("failed to close peer connection", "peer", remoteID, "error", err)
		}
	}
}

// Close closes every peer connection.
func (n *Negotiator) Close() {
	n.mu.Lock()
	ids := make([]string, 0, len(n.peers))
	for id := range n.peers {
		ids = append(ids, id)
	}
	n.mu.Unlock()
	for _, id := range ids {
		n.Remove(id)
	}
}

// Len returns the number of open peer connections.
func (n *Negotiator) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.peers)
}
