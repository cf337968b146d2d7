// Package clienttest provides deterministic fakes for driving a
// client.Controller in tests.
package clienttest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/client"
	"github.com/EliasMarine/bourbonbuddy-sub001/internal/protocol"
)

var ErrRefused = errors.New("connection refused")

// Scheduler runs continuations only when Advance is called.
type Scheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*timer
}

func NewScheduler() *Scheduler {
	return &Scheduler{}
}

type timer struct {
	s       *Scheduler
	at      time.Duration
	seq     int
	f       func()
	stopped bool
}

func (t *timer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (s *Scheduler) AfterFunc(d time.Duration, f func()) client.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &timer{s: s, at: s.now + d, seq: s.seq, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves the clock forward by d and runs every continuation that
// comes due, including ones scheduled while advancing. It returns the
// number of continuations run.
func (s *Scheduler) Advance(d time.Duration) int {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	ran := 0
	for {
		s.mu.Lock()
		t := s.nextLocked(target)
		if t == nil {
			s.now = target
			s.mu.Unlock()
			return ran
		}
		s.now = t.at
		t.stopped = true
		s.mu.Unlock()

		t.f()
		ran++
	}
}

func (s *Scheduler) nextLocked(target time.Duration) *timer {
	live := s.timers[:0]
	for _, t := range s.timers {
		if !t.stopped {
			live = append(live, t)
		}
	}
	s.timers = live
	sort.Slice(s.timers, func(i, j int) bool {
		if s.timers[i].at != s.timers[j].at {
			return s.timers[i].at < s.timers[j].at
		}
		return s.timers[i].seq < s.timers[j].seq
	})
	if len(s.timers) == 0 || s.timers[0].at > target {
		return nil
	}
	return s.timers[0]
}

// Pending returns the delays, relative to now, of every live continuation.
func (s *Scheduler) Pending() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Duration
	for _, t := range s.timers {
		if !t.stopped {
			out = append(out, t.at-s.now)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Transport is a scripted client.Transport.
type Transport struct {
	kind string

	mu       sync.Mutex
	failures int
	always   error
	calls    int
	conns    []*Conn
}

func NewTransport(kind string) *Transport {
	return &Transport{kind: kind}
}

// FailNext makes the next n connects fail with ErrRefused.
func (t *Transport) FailNext(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures = n
}

// FailAlways makes every connect fail with err; nil restores success.
func (t *Transport) FailAlways(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.always = err
}

func (t *Transport) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Last returns the most recent connection, or nil.
func (t *Transport) Last() *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.conns) == 0 {
		return nil
	}
	return t.conns[len(t.conns)-1]
}

func (t *Transport) Kind() string { return t.kind }

func (t *Transport) Connect(ctx context.Context) (client.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if t.always != nil {
		return nil, t.always
	}
	if t.failures > 0 {
		t.failures--
		return nil, ErrRefused
	}
	c := &Conn{
		id:       fmt.Sprintf("%s-%d", t.kind, t.calls),
		incoming: make(chan protocol.Inbound, 64),
	}
	t.conns = append(t.conns, c)
	return c, nil
}

// Conn is an in-memory client.Conn.
type Conn struct {
	id       string
	incoming chan protocol.Inbound

	mu     sync.Mutex
	sent   []protocol.Frame
	closed bool
	once   sync.Once
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) Incoming() <-chan protocol.Inbound { return c.incoming }

func (c *Conn) Send(f protocol.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return client.ErrNotConnected
	}
	c.sent = append(c.sent, f)
	return nil
}

// Close is the client-initiated close.
func (c *Conn) Close() error {
	c.end()
	return nil
}

// Drop simulates losing the transport.
func (c *Conn) Drop() {
	c.end()
}

// ServerDisconnect delivers a disconnect frame and ends the connection.
func (c *Conn) ServerDisconnect(reason string) {
	c.Push(protocol.EventDisconnect, reason)
	c.end()
}

// Push delivers one JSON-encoded frame to the client.
func (c *Conn) Push(event string, payload any) {
	data, err := protocol.JSON.Marshal(payload)
	if err != nil {
		panic(err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.incoming <- protocol.NewInbound(protocol.JSON, event, data)
	}
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Sent returns a copy of every frame sent on the connection.
func (c *Conn) Sent() []protocol.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Frame(nil), c.sent...)
}

// SentTypes returns the event names sent, in order.
func (c *Conn) SentTypes() []string {
	var out []string
	for _, f := range c.Sent() {
		out = append(out, f.Type)
	}
	return out
}

func (c *Conn) end() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		close(c.incoming)
		c.mu.Unlock()
	})
}
