package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/protocol"
)

type recorder struct {
	gw *Gateway

	mu        sync.Mutex
	connected map[string]string
	closed    map[string]string
}

func (r *recorder) Connected(connID, transport string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected[connID] = transport
}

func (r *recorder) Handle(connID string, in protocol.Inbound) {
	if in.Type != "echo" {
		return
	}
	var body map[string]any
	if err := in.Bind(&body); err != nil {
		r.gw.Emit(connID, protocol.EventError, protocol.ErrorPayload{Event: in.Type, Message: err.Error()})
		return
	}
	r.gw.Emit(connID, "echo", body)
}

func (r *recorder) Disconnected(connID, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed[connID] = reason
}

func (r *recorder) transport(connID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected[connID]
}

func (r *recorder) reason(connID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed[connID]
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type wireFrame struct {
	Type    string          `json:"type"`
	Ack     string          `json:"ack"`
	Payload json.RawMessage `json:"payload"`
}

func newTestGateway(t *testing.T, cfg Config, opts ...Option) (*Gateway, *recorder, *httptest.Server) {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	gw := New(cfg, opts...)
	rec := &recorder{gw: gw, connected: make(map[string]string), closed: make(map[string]string)}
	gw.SetHandler(rec)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.ServeWS)
	mux.HandleFunc("/poll", gw.ServePoll)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return gw, rec, srv
}

func dialWS(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readJSONFrame(t *testing.T, ws *websocket.Conn) wireFrame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	messageType, data, err := ws.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, messageType)
	var f wireFrame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func confirmedID(t *testing.T, f wireFrame) string {
	t.Helper()
	require.Equal(t, protocol.EventConnectionConfirmed, f.Type)
	var confirmed protocol.ConnectionConfirmed
	require.NoError(t, json.Unmarshal(f.Payload, &confirmed))
	require.NotEmpty(t, confirmed.ID)
	return confirmed.ID
}

func TestWebSocket_ConfirmsThenRoutesEvents(t *testing.T) {
	req := require.New(t)
	_, rec, srv := newTestGateway(t, DefaultConfig())

	ws := dialWS(t, srv, "")
	id := confirmedID(t, readJSONFrame(t, ws))

	req.NoError(ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"echo","payload":{"flavor":"oak"}}`)))
	echo := readJSONFrame(t, ws)
	req.Equal("echo", echo.Type)
	req.JSONEq(`{"flavor":"oak"}`, string(echo.Payload))

	req.NoError(ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	req.Eventually(func() bool { return rec.reason(id) == protocol.ReasonClientClose }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_MsgpackCodec(t *testing.T) {
	req := require.New(t)
	_, _, srv := newTestGateway(t, DefaultConfig())

	ws := dialWS(t, srv, "?codec=msgpack")

	var confirm struct {
		Type    string                       `msgpack:"type"`
		Payload protocol.ConnectionConfirmed `msgpack:"payload"`
	}
	messageType, data, err := ws.ReadMessage()
	req.NoError(err)
	req.Equal(websocket.BinaryMessage, messageType)
	req.NoError(msgpack.Unmarshal(data, &confirm))
	req.Equal(protocol.EventConnectionConfirmed, confirm.Type)
	req.NotEmpty(confirm.Payload.ID)

	out, err := msgpack.Marshal(map[string]any{"type": "echo", "payload": map[string]any{"flavor": "caramel"}})
	req.NoError(err)
	req.NoError(ws.WriteMessage(websocket.BinaryMessage, out))

	var echo struct {
		Type    string            `msgpack:"type"`
		Payload map[string]string `msgpack:"payload"`
	}
	_, data, err = ws.ReadMessage()
	req.NoError(err)
	req.NoError(msgpack.Unmarshal(data, &echo))
	req.Equal("echo", echo.Type)
	req.Equal("caramel", echo.Payload["flavor"])
}

func TestWebSocket_UnknownCodecRejected(t *testing.T) {
	_, _, srv := newTestGateway(t, DefaultConfig())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?codec=xml"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebSocket_UndecodableFrameKeepsConnection(t *testing.T) {
	_, _, srv := newTestGateway(t, DefaultConfig())

	ws := dialWS(t, srv, "")
	readJSONFrame(t, ws)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.Equal(t, protocol.EventError, readJSONFrame(t, ws).Type)

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"echo","payload":{}}`)))
	require.Equal(t, "echo", readJSONFrame(t, ws).Type)
}

func TestWebSocket_SilentClientTimesOut(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PingInterval = time.Hour
	cfg.PingTimeout = 100 * time.Millisecond
	_, rec, srv := newTestGateway(t, cfg)

	ws := dialWS(t, srv, "")
	id := confirmedID(t, readJSONFrame(t, ws))

	require.Eventually(t, func() bool { return rec.reason(id) == protocol.ReasonPingTimeout }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocket_ShutdownSendsReason(t *testing.T) {
	req := require.New(t)
	gw, rec, srv := newTestGateway(t, DefaultConfig())

	ws := dialWS(t, srv, "")
	id := confirmedID(t, readJSONFrame(t, ws))

	gw.Shutdown()
	req.Equal(protocol.ReasonServerShutdown, rec.reason(id))

	bye := readJSONFrame(t, ws)
	req.Equal(protocol.EventDisconnect, bye.Type)
	req.JSONEq(`"server-shutdown"`, string(bye.Payload))

	_, _, err := ws.ReadMessage()
	req.True(websocket.IsCloseError(err, websocket.CloseNormalClosure))

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	req.Error(err)
	req.Equal(http.StatusServiceUnavailable, resp.StatusCode)
	req.Zero(gw.Count())
}

func doPoll(t *testing.T, method, url string, body string) (*http.Response, []wireFrame) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	r, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(r)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var frames []wireFrame
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.Unmarshal(data, &frames))
	}
	return resp, frames
}

func pollHandshake(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	resp, frames := doPoll(t, http.MethodGet, srv.URL+"/poll", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, frames, 1)
	return confirmedID(t, frames[0])
}

func TestPolling_RoundTrip(t *testing.T) {
	req := require.New(t)
	_, rec, srv := newTestGateway(t, DefaultConfig())

	id := pollHandshake(t, srv)
	req.Equal(protocol.TransportPolling, rec.transport(id))
	sidURL := srv.URL + "/poll?sid=" + id

	resp, _ := doPoll(t, http.MethodPost, sidURL, `[{"type":"echo","payload":{"n":"1"}},{"type":"echo","payload":{"n":"2"}}]`)
	req.Equal(http.StatusNoContent, resp.StatusCode)

	resp, frames := doPoll(t, http.MethodGet, sidURL, "")
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Len(frames, 2)
	req.JSONEq(`{"n":"1"}`, string(frames[0].Payload))
	req.JSONEq(`{"n":"2"}`, string(frames[1].Payload))

	resp, _ = doPoll(t, http.MethodDelete, sidURL, "")
	req.Equal(http.StatusNoContent, resp.StatusCode)
	req.Equal(protocol.ReasonClientClose, rec.reason(id))

	resp, _ = doPoll(t, http.MethodGet, sidURL, "")
	req.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestPolling_EmptyPollAfterWait(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PollWait = 30 * time.Millisecond
	_, _, srv := newTestGateway(t, cfg)

	id := pollHandshake(t, srv)
	resp, frames := doPoll(t, http.MethodGet, srv.URL+"/poll?sid="+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, frames)
}

func TestPolling_RejectsBadRequests(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxMessageSize = 64
	_, _, srv := newTestGateway(t, cfg)

	resp, _ := doPoll(t, http.MethodGet, srv.URL+"/poll?codec=msgpack", "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doPoll(t, http.MethodPost, srv.URL+"/poll", `[]`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	id := pollHandshake(t, srv)
	resp, _ = doPoll(t, http.MethodPost, srv.URL+"/poll?sid="+id, `{"type":"echo"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = doPoll(t, http.MethodPost, srv.URL+"/poll?sid="+id, `[{"type":"echo","payload":"`+strings.Repeat("x", 128)+`"}]`)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestPolling_PendingPollReceivesFarewell(t *testing.T) {
	req := require.New(t)
	gw, _, srv := newTestGateway(t, DefaultConfig())

	id := pollHandshake(t, srv)
	sidURL := srv.URL + "/poll?sid=" + id

	type result struct {
		resp   *http.Response
		frames []wireFrame
	}
	done := make(chan result, 1)
	go func() {
		resp, frames := doPoll(t, http.MethodGet, sidURL, "")
		done <- result{resp, frames}
	}()
	req.Eventually(func() bool {
		c := gw.lookup(id)
		return c != nil && c.polling.Load()
	}, 2*time.Second, 5*time.Millisecond)

	resp, _ := doPoll(t, http.MethodGet, sidURL, "")
	req.Equal(http.StatusConflict, resp.StatusCode)

	gw.Shutdown()
	got := <-done
	req.Equal(http.StatusOK, got.resp.StatusCode)
	req.Len(got.frames, 1)
	req.Equal(protocol.EventDisconnect, got.frames[0].Type)
	req.JSONEq(`"server-shutdown"`, string(got.frames[0].Payload))
}

func TestGateway_ReapClosesIdleConnections(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	gw, rec, srv := newTestGateway(t, DefaultConfig(), WithClock(clock.Now))

	idle := pollHandshake(t, srv)
	clock.Advance(40 * time.Second)
	active := pollHandshake(t, srv)

	clock.Advance(30 * time.Second)
	gw.reap(clock.Now())

	require.Equal(t, protocol.ReasonPingTimeout, rec.reason(idle))
	require.Empty(t, rec.reason(active))
	require.Equal(t, 1, gw.Count())
}

func TestGateway_FullSendBufferDropsConnection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SendBuffer = 1
	gw, rec, srv := newTestGateway(t, cfg)

	id := pollHandshake(t, srv)
	require.True(t, gw.Emit(id, "first", nil))
	require.False(t, gw.Emit(id, "second", nil))

	require.Eventually(t, func() bool { return rec.reason(id) == protocol.ReasonTransportError }, 2*time.Second, 10*time.Millisecond)
	require.False(t, gw.Emit(id, "third", nil))
	require.False(t, gw.Ack("nobody", "1", nil))
}
