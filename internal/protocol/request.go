package protocol

import (
	"errors"
	"strings"
)

var (
	ErrMalformedJoin   = errors.New("join-stream requires a stream id")
	ErrMalformedChat   = errors.New("chat-message requires a non-empty message")
	ErrMalformedSignal = errors.New("signal requires to, signal and type")
)

// DefaultUserName is used when a join carries no display name.
const DefaultUserName = "Anonymous"

// JoinForm records which wire encoding a join-stream arrived in.
type JoinForm int

const (
	JoinFormBare JoinForm = iota + 1
	JoinFormObject
)

// JoinRequest is the single internal form of a join-stream event.
type JoinRequest struct {
	StreamID string
	UserName string
	IsHost   bool
	Form     JoinForm
}

// JoinObject is the object encoding of join-stream. Clients send it as-is.
type JoinObject struct {
	StreamID string `json:"streamId" msgpack:"streamId"`
	UserName string `json:"userName,omitempty" msgpack:"userName,omitempty"`
	IsHost   bool   `json:"isHost" msgpack:"isHost"`
}

// DecodeJoin accepts either a bare stream id string or a JoinObject.
func DecodeJoin(in Inbound) (JoinRequest, error) {
	var bare string
	if err := in.Bind(&bare); err == nil {
		if id := strings.TrimSpace(bare); id != "" {
			return JoinRequest{StreamID: id, UserName: DefaultUserName, Form: JoinFormBare}, nil
		}
		return JoinRequest{}, ErrMalformedJoin
	}

	var obj JoinObject
	if err := in.Bind(&obj); err != nil {
		return JoinRequest{}, ErrMalformedJoin
	}
	id := strings.TrimSpace(obj.StreamID)
	if id == "" {
		return JoinRequest{}, ErrMalformedJoin
	}
	name := strings.TrimSpace(obj.UserName)
	if name == "" {
		name = DefaultUserName
	}
	return JoinRequest{StreamID: id, UserName: name, IsHost: obj.IsHost, Form: JoinFormObject}, nil
}

// ChatRequest is a decoded chat-message event.
type ChatRequest struct {
	StreamID string
	ID       string
	Content  string
}

// DecodeChat accepts {streamId, message} where message is a string or a ChatDraft.
func DecodeChat(in Inbound) (ChatRequest, error) {
	var w struct {
		StreamID string `json:"streamId" msgpack:"streamId"`
		Message  Opaque `json:"message" msgpack:"message"`
	}
	if err := in.Bind(&w); err != nil || w.Message.IsZero() {
		return ChatRequest{}, ErrMalformedChat
	}

	req := ChatRequest{StreamID: strings.TrimSpace(w.StreamID)}
	var text string
	if err := w.Message.Decode(&text); err == nil {
		req.Content = text
	} else {
		var draft ChatDraft
		if err := w.Message.Decode(&draft); err != nil {
			return ChatRequest{}, ErrMalformedChat
		}
		req.ID = strings.TrimSpace(draft.ID)
		req.Content = draft.Content
	}
	if strings.TrimSpace(req.Content) == "" {
		return ChatRequest{}, ErrMalformedChat
	}
	return req, nil
}

// SignalRequest is a decoded signal event. Signal is never inspected.
type SignalRequest struct {
	To     string     `json:"to" msgpack:"to"`
	Signal Opaque     `json:"signal" msgpack:"signal"`
	Type   SignalKind `json:"type" msgpack:"type"`
}

// Validate checks that every field needed to forward the envelope is present.
func (r SignalRequest) Validate() error {
	if strings.TrimSpace(r.To) == "" || r.Signal.IsZero() || !r.Type.Valid() {
		return ErrMalformedSignal
	}
	return nil
}

// DecodeSignal decodes a signal event without validating it.
func DecodeSignal(in Inbound) (SignalRequest, error) {
	var req SignalRequest
	if err := in.Bind(&req); err != nil {
		return SignalRequest{}, ErrMalformedSignal
	}
	return req, nil
}

// SignalOutgoing is the client-side signal payload.
type SignalOutgoing struct {
	To     string     `json:"to" msgpack:"to"`
	Signal any        `json:"signal" msgpack:"signal"`
	Type   SignalKind `json:"type" msgpack:"type"`
}
