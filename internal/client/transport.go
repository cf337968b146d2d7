package client

import (
	"context"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/protocol"
)

// Conn is an established connection whose id has been confirmed by the
// server.
type Conn interface {
	ID() string

	// Send queues one frame for the server.
	Send(f protocol.Frame) error

	// Incoming yields inbound frames and is closed when the connection ends.
	Incoming() <-chan protocol.Inbound

	Close() error
}

// Transport opens connections of one kind. Connect returns only after the
// server's connection_confirmed frame has arrived or ctx is done.
type Transport interface {
	Kind() string
	Connect(ctx context.Context) (Conn, error)
}

// Strategy orders the available transports before the first attempt.
type Strategy func(available []Transport) []Transport

// PreferStreaming tries websocket first, then polling, then anything else
// in the order given.
func PreferStreaming(available []Transport) []Transport {
	return order(available, []string{protocol.TransportWebSocket, protocol.TransportPolling}, true)
}

// PollingOnly never attempts a streaming transport.
func PollingOnly(available []Transport) []Transport {
	return order(available, []string{protocol.TransportPolling}, false)
}

// Fixed orders transports by kind. Kinds not listed are dropped.
func Fixed(kinds ...string) Strategy {
	return func(available []Transport) []Transport {
		return order(available, kinds, false)
	}
}

func order(available []Transport, kinds []string, keepRest bool) []Transport {
	var out []Transport
	used := make([]bool, len(available))
	for _, kind := range kinds {
		for i, t := range available {
			if !used[i] && t.Kind() == kind {
				out = append(out, t)
				used[i] = true
			}
		}
	}
	if keepRest {
		for i, t := range available {
			if !used[i] {
				out = append(out, t)
			}
		}
	}
	return out
}
