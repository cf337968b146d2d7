package gateway

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/protocol"
)

// ServePoll implements the long-polling transport. Frames travel as JSON
// arrays in both directions.
//
//	GET    /poll          handshake, returns the connection_confirmed frame
//	GET    /poll?sid=ID   waits up to PollWait for outbound frames
//	POST   /poll?sid=ID   delivers a batch of inbound frames
//	DELETE /poll?sid=ID   closes the connection
func (g *Gateway) ServePoll(w http.ResponseWriter, r *http.Request) {
	sid := r.URL.Query().Get("sid")
	if sid == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "missing sid", http.StatusBadRequest)
			return
		}
		g.handshakePoll(w, r)
		return
	}

	c := g.lookup(sid)
	if c == nil || c.transport != protocol.TransportPolling {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		g.longPoll(w, r, c)
	case http.MethodPost:
		g.receivePoll(w, r, c)
	case http.MethodDelete:
		c.close(protocol.ReasonClientClose, false)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, POST, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (g *Gateway) handshakePoll(w http.ResponseWriter, r *http.Request) {
	if g.shutdown.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	if name := r.URL.Query().Get("codec"); name != "" && name != protocol.JSON.Name() {
		http.Error(w, "polling supports json only", http.StatusBadRequest)
		return
	}
	c := g.open(protocol.TransportPolling, protocol.JSON)
	g.logger.Debug("polling connected", "conn", c.id, "remote", r.RemoteAddr)
	g.writeFrames(w, c.drain())
}

func (g *Gateway) longPoll(w http.ResponseWriter, r *http.Request, c *Conn) {
	if !c.polling.CompareAndSwap(false, true) {
		http.Error(w, "poll already pending", http.StatusConflict)
		return
	}
	defer c.polling.Store(false)
	c.touch()
	defer c.touch()

	timer := time.NewTimer(g.cfg.PollWait)
	defer timer.Stop()

	var frames []protocol.Frame
	select {
	case f := <-c.out:
		frames = append([]protocol.Frame{f}, c.drain()...)
	case <-c.done:
		frames = c.drain()
		if f, ok := c.farewell(); ok {
			frames = append(frames, f)
		}
	case <-timer.C:
	case <-r.Context().Done():
		return
	}
	g.writeFrames(w, frames)
}

func (g *Gateway) receivePoll(w http.ResponseWriter, r *http.Request, c *Conn) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, g.cfg.MaxMessageSize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	batch, err := protocol.DecodeBatch(data)
	if err != nil {
		g.logger.Warn("dropping undecodable batch", "conn", c.id, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	for _, in := range batch {
		c.dispatch(in)
	}
	c.touch()
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) writeFrames(w http.ResponseWriter, frames []protocol.Frame) {
	if frames == nil {
		frames = []protocol.Frame{}
	}
	data, err := protocol.JSON.Marshal(frames)
	if err != nil {
		g.logger.Error("failed to encode poll response", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}
