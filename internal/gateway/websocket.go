package gateway

import (
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/protocol"
)

// Time allowed to write a message to the peer.
const writeWait = 10 * time.Second

// ServeWS upgrades the request to a websocket connection. The codec is
// chosen with the codec query parameter and defaults to JSON.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	if g.shutdown.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	codec, err := protocol.CodecByName(r.URL.Query().Get("codec"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("failed to upgrade connection", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := g.open(protocol.TransportWebSocket, codec)
	g.logger.Debug("websocket connected", "conn", c.id, "codec", codec.Name(), "remote", r.RemoteAddr)

	go c.writePump(ws)
	go c.readPump(ws)
}

// readPump is the only reader of ws. It ends the connection on the first
// read error.
func (c *Conn) readPump(ws *websocket.Conn) {
	timeout := c.gw.cfg.PingTimeout
	ws.SetReadLimit(c.gw.cfg.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(timeout))
	ws.SetPongHandler(func(string) error {
		c.touch()
		return ws.SetReadDeadline(time.Now().Add(timeout))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			reason := readReason(err)
			if reason == protocol.ReasonTransportClose {
				c.gw.logger.Debug("websocket read failed", "conn", c.id, "error", err)
			}
			c.close(reason, reason == protocol.ReasonPingTimeout)
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(timeout))

		in, err := c.codec.Decode(data)
		if err != nil {
			c.gw.logger.Warn("dropping undecodable frame", "conn", c.id, "error", err)
			c.enqueue(protocol.Frame{Type: protocol.EventError, Payload: protocol.ErrorPayload{Message: err.Error()}})
			continue
		}
		c.dispatch(in)
	}
}

func readReason(err error) string {
	var netErr net.Error
	switch {
	case errors.As(err, &netErr) && netErr.Timeout():
		return protocol.ReasonPingTimeout
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		return protocol.ReasonClientClose
	default:
		return protocol.ReasonTransportClose
	}
}

// writePump is the only writer of ws. Once the connection is closed it
// flushes what is queued, sends the farewell frame for server-initiated
// closes and closes the socket.
func (c *Conn) writePump(ws *websocket.Conn) {
	ticker := time.NewTicker(c.gw.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case f := <-c.out:
			if err := c.writeFrame(ws, f); err != nil {
				c.gw.logger.Debug("websocket write failed", "conn", c.id, "error", err)
				c.close(protocol.ReasonTransportError, false)
				return
			}

		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close(protocol.ReasonTransportError, false)
				return
			}

		case <-c.done:
			frames := c.drain()
			if f, ok := c.farewell(); ok {
				frames = append(frames, f)
			}
			for _, f := range frames {
				if err := c.writeFrame(ws, f); err != nil {
					return
				}
			}
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.reason)
			_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}

func (c *Conn) writeFrame(ws *websocket.Conn, f protocol.Frame) error {
	data, err := c.codec.Marshal(f)
	if err != nil {
		c.gw.logger.Error("failed to encode frame", "conn", c.id, "event", f.Type, "error", err)
		return nil
	}
	messageType := websocket.TextMessage
	if c.codec.Binary() {
		messageType = websocket.BinaryMessage
	}
	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(messageType, data)
}
