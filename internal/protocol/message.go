package protocol

import "time"

// Event names shared by the server and every client.
const (
	EventConnectionConfirmed = "connection_confirmed"
	EventJoinStream          = "join-stream"
	EventJoinedStream        = "joined-stream"
	EventLeaveStream         = "leave-stream"
	EventViewerCount         = "viewer-count"
	EventChatHistory         = "chat-history"
	EventChatMessage         = "chat-message"
	EventSignal              = "signal"
	EventPeerJoined          = "peer-joined"
	EventPeerLeft            = "peer-left"
	EventPing                = "ping"
	EventPong                = "pong"
	EventAck                 = "ack"
	EventError               = "error"
	EventDisconnect          = "disconnect"
)

// Disconnect reasons reported by the gateway.
const (
	ReasonTransportClose = "transport-close"
	ReasonTransportError = "transport-error"
	ReasonClientClose    = "client-close"
	ReasonPingTimeout    = "ping-timeout"
	ReasonServerShutdown = "server-shutdown"
)

// Transport names, in the order clients prefer them by default.
const (
	TransportWebSocket = "websocket"
	TransportPolling   = "polling"
)

// SignalKind tags a relayed WebRTC signaling payload.
type SignalKind string

const (
	SignalOffer        SignalKind = "offer"
	SignalAnswer       SignalKind = "answer"
	SignalICECandidate SignalKind = "ice-candidate"
)

// Valid reports whether k is one of the known signaling kinds.
func (k SignalKind) Valid() bool {
	switch k {
	case SignalOffer, SignalAnswer, SignalICECandidate:
		return true
	}
	return false
}

// ConnectionConfirmed is the first frame sent on every connection.
type ConnectionConfirmed struct {
	ID string `json:"id" msgpack:"id"`
}

// Joined confirms a join-stream to the joiner.
type Joined struct {
	StreamID string `json:"streamId" msgpack:"streamId"`
	Count    int    `json:"count" msgpack:"count"`
	UserName string `json:"userName" msgpack:"userName"`
	IsHost   bool   `json:"isHost" msgpack:"isHost"`
}

// ChatMessage is an immutable chat entry as stored and broadcast by the server.
// IDs are supplied by the sender and are advisory only.
type ChatMessage struct {
	ID        string    `json:"id" msgpack:"id"`
	StreamID  string    `json:"streamId" msgpack:"streamId"`
	UserName  string    `json:"userName" msgpack:"userName"`
	IsHost    bool      `json:"isHost" msgpack:"isHost"`
	Content   string    `json:"content" msgpack:"content"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
}

// ChatOutgoing is the client-side chat-message payload.
type ChatOutgoing struct {
	StreamID string    `json:"streamId" msgpack:"streamId"`
	Message  ChatDraft `json:"message" msgpack:"message"`
}

// ChatDraft is the message body a client submits.
type ChatDraft struct {
	ID      string `json:"id,omitempty" msgpack:"id,omitempty"`
	Content string `json:"content" msgpack:"content"`
}

// SignalOut is what the target of a relayed signal receives.
type SignalOut struct {
	From   string     `json:"from" msgpack:"from"`
	Signal Opaque     `json:"signal" msgpack:"signal"`
	Type   SignalKind `json:"type" msgpack:"type"`
}

// PeerInfo announces a new member to the rest of the room.
type PeerInfo struct {
	ID       string `json:"id" msgpack:"id"`
	UserName string `json:"userName" msgpack:"userName"`
	IsHost   bool   `json:"isHost" msgpack:"isHost"`
}

// PeerLeft announces a member that left the room.
type PeerLeft struct {
	ID string `json:"id" msgpack:"id"`
}

// Pong answers a ping.
type Pong struct {
	Time int64 `json:"time" msgpack:"time"`
}

// ErrorPayload is sent to a single connection when one of its events is rejected.
type ErrorPayload struct {
	Event   string `json:"event,omitempty" msgpack:"event,omitempty"`
	Message string `json:"message" msgpack:"message"`
}
