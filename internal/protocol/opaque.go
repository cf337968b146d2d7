package protocol

import (
	"bytes"
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// Opaque holds a payload the server relays without interpreting it.
// The bytes are kept exactly as received; they are only re-encoded when the
// receiving connection speaks a different codec than the sender.
type Opaque struct {
	raw   []byte
	codec Codec
}

// OpaqueJSON wraps raw JSON bytes.
func OpaqueJSON(raw []byte) Opaque {
	return Opaque{raw: raw, codec: JSON}
}

// Bytes returns the payload in its original encoding.
func (o Opaque) Bytes() []byte { return o.raw }

// IsZero reports whether the payload is absent or null.
func (o Opaque) IsZero() bool {
	if len(o.raw) == 0 {
		return true
	}
	if o.codec != nil && o.codec.Name() == MsgPack.Name() {
		return len(o.raw) == 1 && o.raw[0] == msgpcode.Nil
	}
	return bytes.Equal(bytes.TrimSpace(o.raw), []byte("null"))
}

// Decode unmarshals the payload into v.
func (o Opaque) Decode(v any) error {
	if o.codec == nil {
		return json.Unmarshal(o.raw, v)
	}
	return o.codec.Unmarshal(o.raw, v)
}

func (o Opaque) same(c Codec) bool {
	if o.codec == nil {
		return c.Name() == JSON.Name()
	}
	return o.codec.Name() == c.Name()
}

func (o Opaque) MarshalJSON() ([]byte, error) {
	if len(o.raw) == 0 {
		return []byte("null"), nil
	}
	if o.same(JSON) {
		return o.raw, nil
	}
	var v any
	if err := o.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

func (o *Opaque) UnmarshalJSON(data []byte) error {
	o.raw = append([]byte(nil), data...)
	o.codec = JSON
	return nil
}

func (o Opaque) EncodeMsgpack(enc *msgpack.Encoder) error {
	if len(o.raw) == 0 {
		return enc.EncodeNil()
	}
	if o.same(MsgPack) {
		return enc.Encode(msgpack.RawMessage(o.raw))
	}
	var v any
	if err := o.Decode(&v); err != nil {
		return err
	}
	return enc.Encode(v)
}

func (o *Opaque) DecodeMsgpack(dec *msgpack.Decoder) error {
	raw, err := dec.DecodeRaw()
	if err != nil {
		return err
	}
	o.raw = append([]byte(nil), raw...)
	o.codec = MsgPack
	return nil
}
