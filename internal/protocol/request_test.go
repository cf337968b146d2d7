package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

func encodeFrame(t *testing.T, codec Codec, event string, payload any) Inbound {
	t.Helper()
	data, err := codec.Marshal(Frame{Type: event, Payload: payload})
	require.NoError(t, err)
	in, err := codec.Decode(data)
	require.NoError(t, err)
	return in
}

func TestDecodeJoin_BareAndObjectAreEquivalent(t *testing.T) {
	for _, codec := range []Codec{JSON, MsgPack} {
		t.Run(codec.Name(), func(t *testing.T) {
			req := require.New(t)

			bare, err := DecodeJoin(encodeFrame(t, codec, EventJoinStream, "tasting-42"))
			req.NoError(err)
			req.Equal("tasting-42", bare.StreamID)
			req.Equal(DefaultUserName, bare.UserName)
			req.False(bare.IsHost)
			req.Equal(JoinFormBare, bare.Form)

			obj, err := DecodeJoin(encodeFrame(t, codec, EventJoinStream, JoinObject{
				StreamID: "tasting-42",
				UserName: "Ada",
				IsHost:   true,
			}))
			req.NoError(err)
			req.Equal("tasting-42", obj.StreamID)
			req.Equal("Ada", obj.UserName)
			req.True(obj.IsHost)
			req.Equal(JoinFormObject, obj.Form)
		})
	}
}

func TestDecodeJoin_RejectsUnknownShapes(t *testing.T) {
	cases := map[string]any{
		"number":       42,
		"empty string": "   ",
		"no stream id": map[string]any{"userName": "Ada"},
		"list":         []string{"tasting-42"},
		"null":         nil,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeJoin(encodeFrame(t, JSON, EventJoinStream, payload))
			require.ErrorIs(t, err, ErrMalformedJoin)
		})
	}
}

func TestDecodeJoin_MissingPayload(t *testing.T) {
	in, err := JSON.Decode([]byte(`{"type":"join-stream"}`))
	require.NoError(t, err)

	_, err = DecodeJoin(in)
	require.ErrorIs(t, err, ErrMalformedJoin)
}

func TestDecodeChat_StringAndDraft(t *testing.T) {
	req := require.New(t)

	plain, err := DecodeChat(encodeFrame(t, JSON, EventChatMessage, map[string]any{
		"streamId": "tasting-42",
		"message":  "Welcome",
	}))
	req.NoError(err)
	req.Equal(ChatRequest{StreamID: "tasting-42", Content: "Welcome"}, plain)

	draft, err := DecodeChat(encodeFrame(t, MsgPack, EventChatMessage, ChatOutgoing{
		StreamID: "tasting-42",
		Message:  ChatDraft{ID: "m-1", Content: "Neat"},
	}))
	req.NoError(err)
	req.Equal(ChatRequest{StreamID: "tasting-42", ID: "m-1", Content: "Neat"}, draft)

	_, err = DecodeChat(encodeFrame(t, JSON, EventChatMessage, map[string]any{"streamId": "tasting-42", "message": "  "}))
	req.ErrorIs(err, ErrMalformedChat)

	_, err = DecodeChat(encodeFrame(t, JSON, EventChatMessage, map[string]any{"streamId": "tasting-42"}))
	req.ErrorIs(err, ErrMalformedChat)
}

func TestSignalRequest_Validate(t *testing.T) {
	valid := encodeFrame(t, JSON, EventSignal, map[string]any{
		"to":     "peer-b",
		"signal": map[string]any{"sdp": "v=0"},
		"type":   "offer",
	})
	sig, err := DecodeSignal(valid)
	require.NoError(t, err)
	require.NoError(t, sig.Validate())
	require.JSONEq(t, `{"sdp":"v=0"}`, string(sig.Signal.Bytes()))

	missing := []map[string]any{
		{"signal": map[string]any{"sdp": "v=0"}, "type": "offer"},
		{"to": "peer-b", "type": "offer"},
		{"to": "peer-b", "signal": map[string]any{"sdp": "v=0"}},
		{"to": "peer-b", "signal": map[string]any{"sdp": "v=0"}, "type": "hello"},
	}
	for _, payload := range missing {
		sig, err := DecodeSignal(encodeFrame(t, JSON, EventSignal, payload))
		require.NoError(t, err)
		require.ErrorIs(t, sig.Validate(), ErrMalformedSignal)
	}
}

func TestOpaque_PassesBytesThroughAndTranscodes(t *testing.T) {
	req := require.New(t)
	raw := []byte(`{"candidate":"candidate:1 1 udp 2122260223 10.0.0.2 54321 typ host","sdpMid":"0"}`)

	out := SignalOut{From: "peer-a", Signal: OpaqueJSON(raw), Type: SignalICECandidate}

	data, err := JSON.Marshal(Frame{Type: EventSignal, Payload: out})
	req.NoError(err)
	var decoded struct {
		Payload struct {
			Signal json.RawMessage `json:"signal"`
		} `json:"payload"`
	}
	req.NoError(json.Unmarshal(data, &decoded))
	req.Equal(string(raw), string(decoded.Payload.Signal))

	packed, err := MsgPack.Marshal(Frame{Type: EventSignal, Payload: out})
	req.NoError(err)
	var viaMsgpack struct {
		Payload struct {
			From   string         `msgpack:"from"`
			Signal map[string]any `msgpack:"signal"`
		} `msgpack:"payload"`
	}
	req.NoError(msgpack.Unmarshal(packed, &viaMsgpack))
	req.Equal("peer-a", viaMsgpack.Payload.From)
	req.Equal("0", viaMsgpack.Payload.Signal["sdpMid"])
}

func TestCodecByName(t *testing.T) {
	c, err := CodecByName("")
	require.NoError(t, err)
	require.Equal(t, "json", c.Name())

	c, err = CodecByName("msgpack")
	require.NoError(t, err)
	require.True(t, c.Binary())

	_, err = CodecByName("xml")
	require.ErrorIs(t, err, ErrUnknownCodec)
}
