package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrUnknownCodec = errors.New("unknown codec")
	ErrEmptyPayload = errors.New("empty payload")
)

// Frame is an outbound message. Payload is encoded by the connection's codec.
type Frame struct {
	Type    string `json:"type" msgpack:"type"`
	Ack     string `json:"ack,omitempty" msgpack:"ack,omitempty"`
	Payload any    `json:"payload,omitempty" msgpack:"payload"`
}

// Inbound is a decoded frame whose payload is still in wire form.
type Inbound struct {
	Type    string
	Ack     string
	Payload []byte
	codec   Codec
}

// NewInbound builds an Inbound from an already-encoded payload.
func NewInbound(codec Codec, event string, payload []byte) Inbound {
	return Inbound{Type: event, Payload: payload, codec: codec}
}

// Bind decodes the payload into v using the codec the frame arrived with.
func (in Inbound) Bind(v any) error {
	if len(in.Payload) == 0 {
		return ErrEmptyPayload
	}
	codec := in.codec
	if codec == nil {
		codec = JSON
	}
	return codec.Unmarshal(in.Payload, v)
}

// Codec encodes frames for one connection.
type Codec interface {
	Name() string
	Binary() bool
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Decode(data []byte) (Inbound, error)
}

var (
	JSON    Codec = jsonCodec{}
	MsgPack Codec = msgpackCodec{}
)

// CodecByName resolves the codec requested during a handshake.
// An empty name selects JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return MsgPack, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

type jsonCodec struct{}

func (jsonCodec) Name() string                       { return "json" }
func (jsonCodec) Binary() bool                       { return false }
func (jsonCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (c jsonCodec) Decode(data []byte) (Inbound, error) {
	var w struct {
		Type    string          `json:"type"`
		Ack     string          `json:"ack"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return Inbound{}, fmt.Errorf("decode json frame: %w", err)
	}
	return Inbound{Type: w.Type, Ack: w.Ack, Payload: w.Payload, codec: c}, nil
}

// DecodeBatch decodes a JSON array of frames, as used by long-polling.
func DecodeBatch(data []byte) ([]Inbound, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode json batch: %w", err)
	}
	out := make([]Inbound, 0, len(raws))
	for _, raw := range raws {
		in, err := JSON.Decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, nil
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string                       { return "msgpack" }
func (msgpackCodec) Binary() bool                       { return true }
func (msgpackCodec) Marshal(v any) ([]byte, error)      { return msgpack.Marshal(v) }
func (msgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

func (c msgpackCodec) Decode(data []byte) (Inbound, error) {
	var w struct {
		Type    string             `msgpack:"type"`
		Ack     string             `msgpack:"ack"`
		Payload msgpack.RawMessage `msgpack:"payload"`
	}
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return Inbound{}, fmt.Errorf("decode msgpack frame: %w", err)
	}
	return Inbound{Type: w.Type, Ack: w.Ack, Payload: w.Payload, codec: c}, nil
}
