package client

import (
	"errors"
	"fmt"
)

var (
	ErrReconnectFailed = errors.New("unable to reach the tasting server")
	ErrClosed          = errors.New("client closed")
	ErrNotConnected    = errors.New("not connected")
	ErrHandshake       = errors.New("handshake failed")
	ErrNoTransports    = errors.New("no transports available")
	ErrNoRoom          = errors.New("not in a room")
)

// Error describes a failed client operation.
type Error struct {
	Op        string
	Transport string
	Err       error
	Details   string
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Transport != "" {
		msg = fmt.Sprintf("%s %s", e.Op, e.Transport)
	}
	if e.Details != "" {
		return fmt.Sprintf("%s: %v (%s)", msg, e.Err, e.Details)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op, transport string, err error) *Error {
	return &Error{Op: op, Transport: transport, Err: err}
}
