package peer

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/protocol"
)

// loopback delivers signals straight to another negotiator, the way the
// relay would.
type loopback struct {
	from   string
	target *Negotiator
	errs   chan error
}

func (l *loopback) Signal(to string, kind protocol.SignalKind, signal any) error {
	data, err := json.Marshal(signal)
	if err != nil {
		return err
	}
	out := protocol.SignalOut{From: l.from, Signal: protocol.OpaqueJSON(data), Type: kind}
	go func() { l.errs <- l.target.HandleSignal(out) }()
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func negotiated(n *Negotiator, remoteID string) bool {
	pc, ok := n.lookup(remoteID)
	return ok && pc.RemoteDescription() != nil && pc.SignalingState() == pion.SignalingStateStable
}

func TestNegotiator_OfferAnswerOverRelay(t *testing.T) {
	errs := make(chan error, 64)
	hostWire := &loopback{from: "host", errs: errs}
	viewerWire := &loopback{from: "viewer", errs: errs}
	host := NewNegotiator(nil, hostWire, quietLogger())
	viewer := NewNegotiator(nil, viewerWire, quietLogger())
	hostWire.target = viewer
	viewerWire.target = host
	t.Cleanup(host.Close)
	t.Cleanup(viewer.Close)

	require.NoError(t, host.Offer("viewer"))
	require.Eventually(t, func() bool {
		return negotiated(host, "viewer") && negotiated(viewer, "host")
	}, 5*time.Second, 20*time.Millisecond)

	pc, _ := host.lookup("viewer")
	require.Equal(t, pion.SDPTypeAnswer, pc.RemoteDescription().Type)
	pc, _ = viewer.lookup("host")
	require.Equal(t, pion.SDPTypeOffer, pc.RemoteDescription().Type)

	host.Remove("viewer")
	require.Zero(t, host.Len())
	_, ok := host.SignalingState("viewer")
	require.False(t, ok)
}

func TestNegotiator_RejectsBadSignals(t *testing.T) {
	n := NewNegotiator(nil, &loopback{errs: make(chan error, 1)}, quietLogger())
	t.Cleanup(n.Close)

	answer := protocol.SignalOut{From: "stranger", Type: protocol.SignalAnswer, Signal: protocol.OpaqueJSON([]byte(`{"type":"answer","sdp":"v=0"}`))}
	require.ErrorIs(t, n.HandleSignal(answer), ErrUnknownPeer)

	empty := protocol.SignalOut{From: "stranger", Type: protocol.SignalOffer, Signal: protocol.OpaqueJSON([]byte(`{"type":"offer"}`))}
	require.ErrorIs(t, n.HandleSignal(empty), ErrMalformedSignal)

	odd := protocol.SignalOut{From: "stranger", Type: "renegotiate", Signal: protocol.OpaqueJSON([]byte(`{}`))}
	require.ErrorIs(t, n.HandleSignal(odd), ErrUnexpectedKind)

	early := protocol.SignalOut{From: "stranger", Type: protocol.SignalICECandidate, Signal: protocol.OpaqueJSON([]byte(`{"candidate":"candidate:1 1 udp 2130706431 10.0.0.1 5000 typ host"}`))}
	require.NoError(t, n.HandleSignal(early))
	require.Len(t, n.pending["stranger"], 1)
}
