package gateway

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/protocol"
)

// Conn is one client connection on any transport.
type Conn struct {
	id        string
	transport string
	codec     protocol.Codec
	gw        *Gateway

	// out is never closed; writers select on done instead.
	out  chan protocol.Frame
	done chan struct{}

	closeOnce       sync.Once
	reason          string
	serverInitiated bool

	// inMu orders inbound dispatch against Disconnected.
	inMu     sync.Mutex
	lastSeen atomic.Int64

	// polling is set while a long-poll request is waiting on out.
	polling atomic.Bool
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) touch() {
	c.lastSeen.Store(c.gw.now().UnixNano())
}

func (c *Conn) seen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// enqueue never blocks. A full queue means the client is not draining its
// connection; it is dropped rather than stalling the caller.
func (c *Conn) enqueue(f protocol.Frame) bool {
	if c.closed() {
		return false
	}
	select {
	case c.out <- f:
		return true
	default:
		c.gw.logger.Warn("send buffer full, dropping connection", "conn", c.id, "event", f.Type)
		go c.close(protocol.ReasonTransportError, false)
		return false
	}
}

// dispatch hands one inbound frame to the handler unless the connection
// is already closing.
func (c *Conn) dispatch(in protocol.Inbound) {
	c.inMu.Lock()
	defer c.inMu.Unlock()
	if c.closed() {
		return
	}
	c.touch()
	c.gw.handler.Handle(c.id, in)
}

// close tears the connection down once. serverInitiated connections get a
// disconnect frame carrying the reason before the transport closes.
func (c *Conn) close(reason string, serverInitiated bool) {
	c.closeOnce.Do(func() {
		c.reason = reason
		c.serverInitiated = serverInitiated
		close(c.done)
		c.gw.remove(c)

		c.inMu.Lock()
		c.gw.handler.Disconnected(c.id, reason)
		c.inMu.Unlock()
	})
}

// drain returns every queued frame without blocking.
func (c *Conn) drain() []protocol.Frame {
	var frames []protocol.Frame
	for {
		select {
		case f := <-c.out:
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func (c *Conn) farewell() (protocol.Frame, bool) {
	if !c.serverInitiated {
		return protocol.Frame{}, false
	}
	return protocol.Frame{Type: protocol.EventDisconnect, Payload: c.reason}, true
}
