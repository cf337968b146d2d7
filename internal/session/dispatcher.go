package session

import (
	"errors"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/protocol"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/room"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/signaling"
)

var ErrUnknownEvent = errors.New("unknown event")

// Outbound is the gateway port the dispatcher answers through.
type Outbound interface {
	Emit(connID, event string, payload any) bool
	Ack(connID, ack string, payload any) bool
}

// Dispatcher routes inbound events from the gateway to the registry and
// the relay. The gateway calls Handle from each connection's read path, so
// events of one connection are processed in the order received.
type Dispatcher struct {
	registry *room.Registry
	relay    *signaling.Relay
	out      Outbound
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(registry *room.Registry, relay *signaling.Relay, out Outbound, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		relay:    relay,
		out:      out,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Connected is called once the connection id has been confirmed to the client.
func (d *Dispatcher) Connected(connID, transport string) {
	d.logger.Info("connection opened", "conn", connID, "transport", transport)
}

// Disconnected always releases the connection's room membership,
// whatever the reason the connection ended.
func (d *Dispatcher) Disconnected(connID, reason string) {
	defer d.recoverPanic(connID, protocol.EventDisconnect)

	d.registry.Leave(connID)
	d.logger.Info("connection closed", "conn", connID, "reason", reason)
}

// Handle processes one inbound event.
func (d *Dispatcher) Handle(connID string, in protocol.Inbound) {
	defer d.recoverPanic(connID, in.Type)

	switch in.Type {
	case protocol.EventJoinStream:
		d.handleJoin(connID, in)
	case protocol.EventLeaveStream:
		d.registry.Leave(connID)
	case protocol.EventChatMessage:
		d.handleChat(connID, in)
	case protocol.EventSignal:
		d.handleSignal(connID, in)
	case protocol.EventPing:
		d.handlePing(connID, in)
	default:
		d.logger.Warn("unknown event", "conn", connID, "event", in.Type)
		d.fail(connID, in.Type, ErrUnknownEvent)
	}
}

func (d *Dispatcher) handleJoin(connID string, in protocol.Inbound) {
	req, err := protocol.DecodeJoin(in)
	if err != nil {
		d.logger.Warn("rejected join-stream", "conn", connID, "error", err)
		d.fail(connID, in.Type, err)
		return
	}
	d.registry.Join(connID, req)
}

func (d *Dispatcher) handleChat(connID string, in protocol.Inbound) {
	req, err := protocol.DecodeChat(in)
	if err != nil {
		d.fail(connID, in.Type, err)
		return
	}
	if _, err := d.registry.Post(connID, req); err != nil {
		d.logger.Warn("rejected chat-message", "conn", connID, "error", err)
		d.fail(connID, in.Type, err)
	}
}

func (d *Dispatcher) handleSignal(connID string, in protocol.Inbound) {
	req, err := protocol.DecodeSignal(in)
	if err != nil {
		d.logger.Warn("rejected signal", "conn", connID, "error", err)
		d.fail(connID, in.Type, err)
		return
	}
	if err := d.relay.Relay(connID, req); err != nil {
		d.fail(connID, in.Type, err)
	}
}

func (d *Dispatcher) handlePing(connID string, in protocol.Inbound) {
	pong := protocol.Pong{Time: d.now().UnixMilli()}
	if in.Ack != "" {
		d.out.Ack(connID, in.Ack, pong)
		return
	}
	d.out.Emit(connID, protocol.EventPong, pong)
}

func (d *Dispatcher) fail(connID, event string, err error) {
	d.out.Emit(connID, protocol.EventError, protocol.ErrorPayload{Event: event, Message: err.Error()})
}

func (d *Dispatcher) recoverPanic(connID, event string) {
	if r := recover(); r != nil {
		d.logger.Error("handler panic", "conn", connID, "event", event, "panic", r, "stack", string(debug.Stack()))
	}
}
