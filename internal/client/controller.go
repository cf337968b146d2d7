package client

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/protocol"
)

// State is the connection state reported by the Controller.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// Timer is a scheduled continuation.
type Timer interface {
	Stop() bool
}

// Scheduler runs continuations after a delay. Retries and heartbeats are
// scheduled through it rather than waited on.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Update is published on every state change and failed attempt.
type Update struct {
	State     State
	Transport string
	ConnID    string
	Attempt   int
	Err       error
}

// Options configures a Controller.
type Options struct {
	// Transports available to the controller. Strategy decides the order.
	Transports []Transport
	Strategy   Strategy

	// MaxAttempts consecutive failures move the controller to Failed.
	MaxAttempts int

	// RetryDelay is used when BackOff is nil.
	RetryDelay time.Duration
	BackOff    backoff.BackOff

	HandshakeTimeout time.Duration
	Heartbeat        time.Duration

	Scheduler Scheduler
	Logger    *slog.Logger
}

// Controller owns the client side of a session: it connects, retries with
// a narrowing transport set, reconnects after server-initiated disconnects
// and rejoins the last room.
type Controller struct {
	transports       []Transport
	strategy         Strategy
	maxAttempts      int
	backoff          backoff.BackOff
	handshakeTimeout time.Duration
	heartbeat        time.Duration
	scheduler        Scheduler
	logger           *slog.Logger

	mu         sync.Mutex
	state      State
	lastErr    error
	candidates []Transport
	attempts   int
	gen        uint64
	conn       Conn
	connKind   string
	retry      Timer
	beat       Timer
	cancel     context.CancelFunc
	room       *protocol.JoinObject
	ackSeq     int
	closed     bool

	frames  chan protocol.Inbound
	updates chan Update
	stop    chan struct{}
}

func NewController(opts Options) *Controller {
	c := &Controller{
		transports:       opts.Transports,
		strategy:         opts.Strategy,
		maxAttempts:      opts.MaxAttempts,
		backoff:          opts.BackOff,
		handshakeTimeout: opts.HandshakeTimeout,
		heartbeat:        opts.Heartbeat,
		scheduler:        opts.Scheduler,
		logger:           opts.Logger,
		frames:           make(chan protocol.Inbound, 64),
		updates:          make(chan Update, 64),
		stop:             make(chan struct{}),
	}
	if c.strategy == nil {
		c.strategy = PreferStreaming
	}
	if c.maxAttempts < 1 {
		c.maxAttempts = 5
	}
	if c.backoff == nil {
		delay := opts.RetryDelay
		if delay <= 0 {
			delay = 2 * time.Second
		}
		c.backoff = backoff.NewConstantBackOff(delay)
	}
	if c.handshakeTimeout <= 0 {
		c.handshakeTimeout = 10 * time.Second
	}
	if c.scheduler == nil {
		c.scheduler = realScheduler{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Frames yields every inbound frame except connection bookkeeping.
// It is never closed; select on Done as well.
func (c *Controller) Frames() <-chan protocol.Inbound { return c.frames }

// Updates yields state changes. It is closed by Close.
func (c *Controller) Updates() <-chan Update { return c.updates }

// Done is closed by Close.
func (c *Controller) Done() <-chan struct{} { return c.stop }

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the error behind the latest failure, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// ConnID returns the server-assigned id of the live connection.
func (c *Controller) ConnID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return ""
	}
	return c.conn.ID()
}

// Start begins connecting. From Failed it starts over with every transport.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.state != Disconnected && c.state != Failed {
		return nil
	}
	c.candidates = c.strategy(c.transports)
	if len(c.candidates) == 0 {
		return ErrNoTransports
	}
	c.attempts = 0
	c.lastErr = nil
	c.backoff.Reset()
	c.gen++
	c.setStateLocked(Connecting, "", nil)
	c.scheduleAttemptLocked(0)
	return nil
}

// Close disconnects and never reconnects.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	c.stopTimersLocked()
	if c.cancel != nil {
		c.cancel()
	}
	conn := c.conn
	c.conn = nil
	c.setStateLocked(Disconnected, "", nil)
	c.closed = true
	close(c.stop)
	close(c.updates)
	c.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Controller) scheduleAttemptLocked(delay time.Duration) {
	gen := c.gen
	c.retry = c.scheduler.AfterFunc(delay, func() { c.attempt(gen) })
}

func (c *Controller) attempt(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	t := c.candidates[0]
	ctx, cancel := context.WithTimeout(context.Background(), c.handshakeTimeout)
	c.cancel = cancel
	c.mu.Unlock()

	conn, err := t.Connect(ctx)
	cancel()

	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	c.cancel = nil
	if err != nil {
		c.failLocked(t, err)
		c.mu.Unlock()
		return
	}

	c.attempts = 0
	c.lastErr = nil
	c.backoff.Reset()
	c.conn = conn
	c.connKind = t.Kind()
	c.setStateLocked(Connected, "", nil)
	c.logger.Info("connected", "transport", t.Kind(), "conn", conn.ID())
	go c.readLoop(gen, conn)
	if c.heartbeat > 0 {
		c.beat = c.scheduler.AfterFunc(c.heartbeat, func() { c.ping(gen) })
	}
	room := c.room
	c.mu.Unlock()

	if room != nil {
		if err := conn.Send(protocol.Frame{Type: protocol.EventJoinStream, Payload: *room}); err != nil {
			c.logger.Warn("failed to rejoin room", "room", room.StreamID, "error", err)
		}
	}
}

// failLocked records a failed attempt. The failed transport is dropped
// from the candidates unless it is the last one.
func (c *Controller) failLocked(t Transport, err error) {
	c.attempts++
	c.lastErr = err
	c.logger.Warn("connect attempt failed", "transport", t.Kind(), "attempt", c.attempts, "max", c.maxAttempts, "error", err)

	if c.attempts >= c.maxAttempts {
		c.fatalLocked(t, err)
		return
	}
	delay := c.backoff.NextBackOff()
	if delay == backoff.Stop {
		c.fatalLocked(t, err)
		return
	}

	if len(c.candidates) > 1 {
		c.candidates = c.candidates[1:]
	}
	c.publishLocked(Update{State: c.state, Transport: t.Kind(), Attempt: c.attempts, Err: err})
	c.scheduleAttemptLocked(delay)
}

func (c *Controller) fatalLocked(t Transport, err error) {
	c.lastErr = &Error{
		Op:        "connect",
		Transport: t.Kind(),
		Err:       ErrReconnectFailed,
		Details:   fmt.Sprintf("%d attempts, last error: %v", c.attempts, err),
	}
	c.logger.Error("giving up", "attempts", c.attempts, "error", err)
	c.setStateLocked(Failed, t.Kind(), c.lastErr)
}

// readLoop forwards frames from one connection until it ends, then reports
// the loss unless the connection has since been replaced or closed.
func (c *Controller) readLoop(gen uint64, conn Conn) {
	reason := protocol.ReasonTransportClose
	for in := range conn.Incoming() {
		if in.Type == protocol.EventDisconnect {
			var r string
			if err := in.Bind(&r); err == nil && r != "" {
				reason = r
			}
			continue
		}
		select {
		case c.frames <- in:
		case <-c.stop:
			return
		}
	}
	c.lost(gen, reason)
}

// lost reconnects immediately with a fresh attempt counter.
func (c *Controller) lost(gen uint64, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.closed {
		return
	}
	c.logger.Info("connection lost", "transport", c.connKind, "reason", reason)

	c.gen++
	c.stopTimersLocked()
	c.conn = nil
	c.attempts = 0
	c.backoff.Reset()
	c.lastErr = fmt.Errorf("%w: %s", ErrNotConnected, reason)
	c.setStateLocked(Reconnecting, c.connKind, c.lastErr)
	c.scheduleAttemptLocked(0)
}

func (c *Controller) ping(gen uint64) {
	c.mu.Lock()
	if gen != c.gen || c.conn == nil {
		c.mu.Unlock()
		return
	}
	c.ackSeq++
	ack := strconv.Itoa(c.ackSeq)
	conn := c.conn
	c.beat = c.scheduler.AfterFunc(c.heartbeat, func() { c.ping(gen) })
	c.mu.Unlock()

	if err := conn.Send(protocol.Frame{Type: protocol.EventPing, Ack: ack}); err != nil {
		c.logger.Debug("heartbeat failed", "error", err)
	}
}

func (c *Controller) stopTimersLocked() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	if c.beat != nil {
		c.beat.Stop()
		c.beat = nil
	}
}

func (c *Controller) setStateLocked(s State, transport string, err error) {
	c.state = s
	u := Update{State: s, Transport: transport, Attempt: c.attempts, Err: err}
	if c.conn != nil {
		u.ConnID = c.conn.ID()
		u.Transport = c.connKind
	}
	c.publishLocked(u)
}

func (c *Controller) publishLocked(u Update) {
	if c.closed {
		return
	}
	select {
	case c.updates <- u:
	default:
		c.logger.Warn("dropping state update", "state", u.State)
	}
}

// Send writes one event on the live connection.
func (c *Controller) Send(event string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send(protocol.Frame{Type: event, Payload: payload})
}

// Join enters a room. The room is remembered and rejoined after every
// reconnect.
func (c *Controller) Join(req protocol.JoinObject) error {
	c.mu.Lock()
	c.room = &req
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Send(protocol.Frame{Type: protocol.EventJoinStream, Payload: req})
}

// Leave exits the current room.
func (c *Controller) Leave() error {
	c.mu.Lock()
	c.room = nil
	c.mu.Unlock()
	return c.Send(protocol.EventLeaveStream, nil)
}

// Chat posts a message to the current room.
func (c *Controller) Chat(content string) error {
	c.mu.Lock()
	room := c.room
	c.mu.Unlock()
	if room == nil {
		return ErrNoRoom
	}
	return c.Send(protocol.EventChatMessage, protocol.ChatOutgoing{
		StreamID: room.StreamID,
		Message:  protocol.ChatDraft{ID: uuid.NewString(), Content: content},
	})
}

// Signal relays a WebRTC payload to another connection.
func (c *Controller) Signal(to string, kind protocol.SignalKind, signal any) error {
	return c.Send(protocol.EventSignal, protocol.SignalOutgoing{To: to, Signal: signal, Type: kind})
}
