package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/protocol"
)

// PollingTransport connects with HTTP long-polling. It only speaks JSON.
type PollingTransport struct {
	URL string

	// HTTPClient defaults to a client that resolves through Lookup.
	HTTPClient *http.Client
}

func (t *PollingTransport) Kind() string { return protocol.TransportPolling }

func (t *PollingTransport) Connect(ctx context.Context) (Conn, error) {
	hc := t.HTTPClient
	if hc == nil {
		hc = &http.Client{Transport: &http.Transport{DialContext: DialContext}}
	}

	batch, status, err := getBatch(ctx, hc, t.URL)
	if err != nil {
		return nil, NewError("dial", t.Kind(), err)
	}
	if status != http.StatusOK {
		return nil, NewError("handshake", t.Kind(), fmt.Errorf("%w: status %d", ErrHandshake, status))
	}
	if len(batch) == 0 {
		return nil, NewError("handshake", t.Kind(), fmt.Errorf("%w: empty response", ErrHandshake))
	}
	id, err := confirmedID(batch[0])
	if err != nil {
		return nil, NewError("handshake", t.Kind(), err)
	}

	sidURL, err := withSID(t.URL, id)
	if err != nil {
		return nil, NewError("handshake", t.Kind(), err)
	}
	pollCtx, cancel := context.WithCancel(context.Background())
	c := &pollConn{
		id:       id,
		url:      sidURL,
		hc:       hc,
		ctx:      pollCtx,
		cancel:   cancel,
		incoming: make(chan protocol.Inbound, 64),
		done:     make(chan struct{}),
	}
	go c.pollLoop(batch[1:])
	return c, nil
}

func withSID(raw, id string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("sid", id)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func getBatch(ctx context.Context, hc *http.Client, target string) ([]protocol.Inbound, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	batch, err := protocol.DecodeBatch(data)
	return batch, resp.StatusCode, err
}

type pollConn struct {
	id       string
	url      string
	hc       *http.Client
	ctx      context.Context
	cancel   context.CancelFunc
	incoming chan protocol.Inbound
	done     chan struct{}
	once     sync.Once
}

func (c *pollConn) ID() string { return c.id }

func (c *pollConn) Incoming() <-chan protocol.Inbound { return c.incoming }

// Send posts a single-frame batch.
func (c *pollConn) Send(f protocol.Frame) error {
	select {
	case <-c.done:
		return ErrNotConnected
	default:
	}

	data, err := protocol.JSON.Marshal([]protocol.Frame{f})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.ctx, writeWait)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return NewError("send", protocol.TransportPolling, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusNoContent {
		return NewError("send", protocol.TransportPolling, fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}

// Close tells the server the client is leaving and stops polling.
func (c *pollConn) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		c.cancel()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodDelete, c.url, nil)
		if reqErr != nil {
			err = reqErr
			return
		}
		resp, doErr := c.hc.Do(req)
		if doErr != nil {
			err = doErr
			return
		}
		resp.Body.Close()
	})
	return err
}

func (c *pollConn) stop() {
	c.once.Do(func() {
		close(c.done)
		c.cancel()
	})
}

// pollLoop delivers pending frames, then long-polls until the server
// forgets the session or the connection is closed.
func (c *pollConn) pollLoop(pending []protocol.Inbound) {
	defer func() {
		c.stop()
		close(c.incoming)
	}()

	for {
		for _, in := range pending {
			select {
			case c.incoming <- in:
			case <-c.done:
				return
			}
		}

		batch, status, err := getBatch(c.ctx, c.hc, c.url)
		if err != nil || status != http.StatusOK {
			return
		}
		pending = batch
	}
}
