package room

import "github.com/EliasMarine/bourbonbuddy-sub001/internal/protocol"

// DefaultHistoryLimit is the number of chat messages a room keeps.
const DefaultHistoryLimit = 100

// MaxHistoryLimit is the most chat messages any room may keep.
const MaxHistoryLimit = 100

// History is a fixed-capacity FIFO of chat messages. When full, Append
// evicts the oldest entry. It is not safe for concurrent use; the Registry
// serializes every access.
type History struct {
	buf   []protocol.ChatMessage
	head  int
	count int
}

// NewHistory creates a history holding at most limit messages. Limits
// above MaxHistoryLimit are clamped to it.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	limit = min(limit, MaxHistoryLimit)
	return &History{buf: make([]protocol.ChatMessage, limit)}
}

// Append adds msg, dropping the oldest message once the buffer is full.
func (h *History) Append(msg protocol.ChatMessage) {
	idx := (h.head + h.count) % len(h.buf)
	h.buf[idx] = msg
	if h.count == len(h.buf) {
		h.head = (h.head + 1) % len(h.buf)
		return
	}
	h.count++
}

// Snapshot returns a copy of the stored messages, oldest first. The result
// is never nil so that an empty history still encodes as [].
func (h *History) Snapshot() []protocol.ChatMessage {
	out := make([]protocol.ChatMessage, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.buf[(h.head+i)%len(h.buf)]
	}
	return out
}

// Len returns the number of stored messages.
func (h *History) Len() int { return h.count }

// Cap returns the maximum number of stored messages.
func (h *History) Cap() int { return len(h.buf) }
