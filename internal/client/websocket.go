package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// WebSocketTransport connects over a persistent websocket stream.
type WebSocketTransport struct {
	URL   string
	Codec protocol.Codec

	// Dialer defaults to a dialer that resolves through Lookup.
	Dialer *websocket.Dialer
}

func (t *WebSocketTransport) Kind() string { return protocol.TransportWebSocket }

func (t *WebSocketTransport) Connect(ctx context.Context) (Conn, error) {
	codec := t.Codec
	if codec == nil {
		codec = protocol.JSON
	}
	dialer := t.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			NetDialContext:   DialContext,
			HandshakeTimeout: 45 * time.Second,
		}
	}

	ws, _, err := dialer.DialContext(ctx, t.URL, nil)
	if err != nil {
		return nil, NewError("dial", t.Kind(), err)
	}

	id, err := awaitConfirm(ctx, ws, codec)
	if err != nil {
		ws.Close()
		return nil, NewError("handshake", t.Kind(), err)
	}

	c := &wsConn{
		id:       id,
		ws:       ws,
		codec:    codec,
		incoming: make(chan protocol.Inbound, 64),
		outgoing: make(chan protocol.Frame, 16),
		done:     make(chan struct{}),
	}
	go c.readPump()
	go c.writePump()
	return c, nil
}

// awaitConfirm reads the first frame, which must be connection_confirmed.
func awaitConfirm(ctx context.Context, ws *websocket.Conn, codec protocol.Codec) (string, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = ws.SetReadDeadline(time.Now())
	})
	defer stop()

	_, data, err := ws.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	in, err := codec.Decode(data)
	if err != nil {
		return "", err
	}
	return confirmedID(in)
}

func confirmedID(in protocol.Inbound) (string, error) {
	if in.Type != protocol.EventConnectionConfirmed {
		return "", fmt.Errorf("%w: expected %s, got %q", ErrHandshake, protocol.EventConnectionConfirmed, in.Type)
	}
	var confirmed protocol.ConnectionConfirmed
	if err := in.Bind(&confirmed); err != nil || confirmed.ID == "" {
		return "", fmt.Errorf("%w: missing connection id", ErrHandshake)
	}
	return confirmed.ID, nil
}

type wsConn struct {
	id       string
	ws       *websocket.Conn
	codec    protocol.Codec
	incoming chan protocol.Inbound
	outgoing chan protocol.Frame
	done     chan struct{}
	once     sync.Once
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Incoming() <-chan protocol.Inbound { return c.incoming }

func (c *wsConn) Send(f protocol.Frame) error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}
	select {
	case c.outgoing <- f:
		return nil
	case <-c.done:
		return ErrNotConnected
	}
}

func (c *wsConn) Close() error {
	c.shutdown()
	return nil
}

func (c *wsConn) shutdown() {
	c.once.Do(func() { close(c.done) })
}

// readPump reads messages from the websocket connection.
func (c *wsConn) readPump() {
	defer func() {
		c.shutdown()
		c.ws.Close()
		close(c.incoming)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	c.ws.SetPingHandler(func(data string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return c.ws.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		in, err := c.codec.Decode(data)
		if err != nil {
			continue
		}
		select {
		case c.incoming <- in:
		case <-c.done:
			return
		}
	}
}

// writePump writes frames to the websocket connection and sends periodic pings.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	messageType := websocket.TextMessage
	if c.codec.Binary() {
		messageType = websocket.BinaryMessage
	}

	for {
		select {
		case f := <-c.outgoing:
			data, err := c.codec.Marshal(f)
			if err != nil {
				continue
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(messageType, data); err != nil {
				c.shutdown()
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}

		case <-c.done:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}
