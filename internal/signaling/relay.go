package signaling

import (
	"errors"
	"log/slog"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/protocol"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/room"
)

var ErrNotRoomPeers = errors.New("source and target are not in the same stream")

// RoomLookup resolves the room recorded for a connection.
type RoomLookup interface {
	RoomOf(connID string) (string, bool)
}

// Relay forwards WebRTC signaling payloads from one connection to another.
// Payloads are opaque: they are neither inspected, rewritten nor stored.
type Relay struct {
	emitter room.Emitter
	rooms   RoomLookup
	logger  *slog.Logger
}

// Option configures a Relay.
type Option func(*Relay)

// RequireSameRoom drops envelopes whose source and target are not members of
// the same room. Without it the relay forwards to any live connection.
func RequireSameRoom(rooms RoomLookup) Option {
	return func(r *Relay) { r.rooms = rooms }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

// NewRelay creates a relay that delivers through emitter.
func NewRelay(emitter room.Emitter, opts ...Option) *Relay {
	r := &Relay{emitter: emitter, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Relay forwards req from sourceID to req.To, tagged with sourceID.
// A malformed request returns protocol.ErrMalformedSignal and nothing is sent.
// A target with no live connection is dropped silently.
func (r *Relay) Relay(sourceID string, req protocol.SignalRequest) error {
	if err := req.Validate(); err != nil {
		r.logger.Warn("dropping malformed signal", "from", sourceID, "to", req.To, "type", req.Type)
		return err
	}

	if r.rooms != nil {
		src, ok := r.rooms.RoomOf(sourceID)
		dst, okTarget := r.rooms.RoomOf(req.To)
		if !ok || !okTarget || src != dst {
			r.logger.Warn("dropping cross-room signal", "from", sourceID, "to", req.To)
			return ErrNotRoomPeers
		}
	}

	delivered := r.emitter.Emit(req.To, protocol.EventSignal, protocol.SignalOut{
		From:   sourceID,
		Signal: req.Signal,
		Type:   req.Type,
	})
	if !delivered {
		r.logger.Debug("signal target gone", "from", sourceID, "to", req.To, "type", req.Type)
		return nil
	}
	r.logger.Debug("relayed signal", "from", sourceID, "to", req.To, "type", req.Type)
	return nil
}
