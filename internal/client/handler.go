package client

import (
	"context"
	"log/slog"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/protocol"
)

// Handler routes inbound frames to typed channels.
type Handler struct {
	Joined      chan protocol.Joined
	ViewerCount chan int
	History     chan []protocol.ChatMessage
	Chat        chan protocol.ChatMessage
	Signal      chan protocol.SignalOut
	PeerJoined  chan protocol.PeerInfo
	PeerLeft    chan protocol.PeerLeft
	Error       chan protocol.ErrorPayload

	logger *slog.Logger
}

// NewHandler creates a new frame handler.
func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Joined:      make(chan protocol.Joined, 1),
		ViewerCount: make(chan int, 8),
		History:     make(chan []protocol.ChatMessage, 1),
		Chat:        make(chan protocol.ChatMessage, 32),
		Signal:      make(chan protocol.SignalOut, 32),
		PeerJoined:  make(chan protocol.PeerInfo, 8),
		PeerLeft:    make(chan protocol.PeerLeft, 8),
		Error:       make(chan protocol.ErrorPayload, 4),
		logger:      logger,
	}
}

// Run routes frames until ctx is done or done is closed.
func (h *Handler) Run(ctx context.Context, frames <-chan protocol.Inbound, done <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case in := <-frames:
			h.route(ctx, in)
		}
	}
}

func (h *Handler) route(ctx context.Context, in protocol.Inbound) {
	switch in.Type {
	case protocol.EventJoinedStream:
		deliver(ctx, h, in, h.Joined)
	case protocol.EventViewerCount:
		deliver(ctx, h, in, h.ViewerCount)
	case protocol.EventChatHistory:
		deliver(ctx, h, in, h.History)
	case protocol.EventChatMessage:
		deliver(ctx, h, in, h.Chat)
	case protocol.EventSignal:
		deliver(ctx, h, in, h.Signal)
	case protocol.EventPeerJoined:
		deliver(ctx, h, in, h.PeerJoined)
	case protocol.EventPeerLeft:
		deliver(ctx, h, in, h.PeerLeft)
	case protocol.EventError:
		deliver(ctx, h, in, h.Error)
	case protocol.EventAck, protocol.EventPong:
	default:
		h.logger.Debug("ignoring frame", "event", in.Type)
	}
}

func deliver[T any](ctx context.Context, h *Handler, in protocol.Inbound, ch chan T) {
	var v T
	if err := in.Bind(&v); err != nil {
		h.logger.Warn("failed to parse payload", "event", in.Type, "error", err)
		return
	}
	select {
	case ch <- v:
	case <-ctx.Done():
	}
}
