package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/protocol"
)

// Handler receives connection lifecycle and inbound events.
// Handle is called from the connection's read path, one event at a time.
// Disconnected is called exactly once, after the last Handle returns.
type Handler interface {
	Connected(connID, transport string)
	Handle(connID string, in protocol.Inbound)
	Disconnected(connID, reason string)
}

// Config controls transports and the heartbeat.
type Config struct {
	// PingInterval is how often websocket pings are written and idle
	// connections are checked.
	PingInterval time.Duration

	// PingTimeout is how long a connection may stay silent before it is
	// closed with reason ping-timeout. Must be greater than PingInterval.
	PingTimeout time.Duration

	// PollWait bounds a long-poll request. Must be less than PingTimeout.
	PollWait time.Duration

	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int

	// MaxMessageSize limits inbound frames and poll bodies.
	MaxMessageSize int64

	// AllowedOrigin is matched against the Origin header; "*" allows all.
	AllowedOrigin string
}

func DefaultConfig() Config {
	return Config{
		PingInterval:   25 * time.Second,
		PingTimeout:    60 * time.Second,
		PollWait:       20 * time.Second,
		SendBuffer:     256,
		MaxMessageSize: 64 * 1024, // enough for SDP payloads
		AllowedOrigin:  "*",
	}
}

// Gateway accepts client handshakes on every supported transport, assigns
// connection ids and delivers outbound events. It never reconnects anything.
type Gateway struct {
	cfg      Config
	handler  Handler
	logger   *slog.Logger
	upgrader websocket.Upgrader
	now      func() time.Time

	mu       sync.RWMutex
	conns    map[string]*Conn
	shutdown atomic.Bool
}

// Option configures a Gateway.
type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

func New(cfg Config, opts ...Option) *Gateway {
	g := &Gateway{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		conns:  make(map[string]*Conn),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  16 * 1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin:     g.checkOrigin,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.cfg.SendBuffer < 1 {
		g.cfg.SendBuffer = DefaultConfig().SendBuffer
	}
	return g
}

// SetHandler installs the event handler. It must be called before serving.
func (g *Gateway) SetHandler(h Handler) {
	g.handler = h
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return g.cfg.AllowedOrigin == "" || g.cfg.AllowedOrigin == "*" || origin == "" || origin == g.cfg.AllowedOrigin
}

// open registers a new connection and queues its confirmation frame before
// anything else can be sent or received on it.
func (g *Gateway) open(transport string, codec protocol.Codec) *Conn {
	c := &Conn{
		id:        uuid.NewString(),
		transport: transport,
		codec:     codec,
		gw:        g,
		out:       make(chan protocol.Frame, g.cfg.SendBuffer),
		done:      make(chan struct{}),
	}
	c.touch()

	g.mu.Lock()
	g.conns[c.id] = c
	g.mu.Unlock()

	c.out <- protocol.Frame{Type: protocol.EventConnectionConfirmed, Payload: protocol.ConnectionConfirmed{ID: c.id}}
	g.handler.Connected(c.id, transport)
	return c
}

func (g *Gateway) lookup(id string) *Conn {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.conns[id]
}

func (g *Gateway) remove(c *Conn) {
	g.mu.Lock()
	if g.conns[c.id] == c {
		delete(g.conns, c.id)
	}
	g.mu.Unlock()
}

func (g *Gateway) snapshot() []*Conn {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Conn, 0, len(g.conns))
	for _, c := range g.conns {
		out = append(out, c)
	}
	return out
}

// Emit queues an event for one connection. It reports false when the
// connection does not exist or is closing.
func (g *Gateway) Emit(connID, event string, payload any) bool {
	c := g.lookup(connID)
	if c == nil {
		return false
	}
	return c.enqueue(protocol.Frame{Type: event, Payload: payload})
}

// Ack answers an inbound frame that carried an ack id.
func (g *Gateway) Ack(connID, ack string, payload any) bool {
	c := g.lookup(connID)
	if c == nil {
		return false
	}
	return c.enqueue(protocol.Frame{Type: protocol.EventAck, Ack: ack, Payload: payload})
}

// Count returns the number of live connections.
func (g *Gateway) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.conns)
}

// Run closes idle connections every PingInterval until ctx is done.
func (g *Gateway) Run(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.reap(g.now())
		}
	}
}

func (g *Gateway) reap(now time.Time) {
	for _, c := range g.snapshot() {
		if idle := now.Sub(c.seen()); idle > g.cfg.PingTimeout {
			g.logger.Info("heartbeat timeout", "conn", c.id, "transport", c.transport, "idle", idle)
			c.close(protocol.ReasonPingTimeout, true)
		}
	}
}

// Shutdown refuses new handshakes and closes every connection with
// reason server-shutdown.
func (g *Gateway) Shutdown() {
	g.shutdown.Store(true)
	for _, c := range g.snapshot() {
		c.close(protocol.ReasonServerShutdown, true)
	}
}
