package room

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/EliasMarine/bourbonbuddy-sub001/internal/protocol"
)

var (
	ErrNotInRoom    = errors.New("connection has not joined a stream")
	ErrRoomMismatch = errors.New("stream id does not match the joined stream")
)

// Emitter delivers one event to one connection. It returns false when the
// connection is no longer live. Implementations must not block.
type Emitter interface {
	Emit(connID, event string, payload any) bool
}

// Member is what the registry records about a joined connection.
type Member struct {
	ConnID   string
	RoomID   string
	UserName string
	IsHost   bool
}

// Stats is a read-only view of one room.
type Stats struct {
	ID        string    `json:"id"`
	Viewers   int       `json:"viewers"`
	Messages  int       `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
}

type room struct {
	id      string
	members map[string]struct{}
	history *History
	created time.Time
}

// Registry owns every room, its member set and its chat history.
// All mutation, and the viewer-count read used for the broadcast that
// follows it, happens under one lock.
type Registry struct {
	mu      sync.Mutex
	rooms   map[string]*room
	members map[string]Member

	emitter      Emitter
	historyLimit int
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithHistoryLimit sets the per-room history size, at most MaxHistoryLimit.
func WithHistoryLimit(limit int) Option {
	return func(r *Registry) { r.historyLimit = min(limit, MaxHistoryLimit) }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates an empty registry that pushes events through emitter.
func NewRegistry(emitter Emitter, opts ...Option) *Registry {
	r := &Registry{
		rooms:        make(map[string]*room),
		members:      make(map[string]Member),
		emitter:      emitter,
		historyLimit: DefaultHistoryLimit,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Join adds connID to the requested room, creating the room if needed, and
// returns the new viewer count. A connection already in another room leaves
// it first. The joiner receives joined-stream and, on its first join of the
// room, the chat-history snapshot;
// every member, joiner included, receives the new viewer-count.
func (r *Registry) Join(connID string, req protocol.JoinRequest) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.members[connID]; ok && current.RoomID != req.StreamID {
		r.leaveLocked(connID)
	}

	rm, ok := r.rooms[req.StreamID]
	if !ok {
		rm = &room{
			id:      req.StreamID,
			members: make(map[string]struct{}),
			history: NewHistory(r.historyLimit),
			created: r.now(),
		}
		r.rooms[req.StreamID] = rm
		r.logger.Info("room created", "room", rm.id)
	}

	_, rejoin := rm.members[connID]
	rm.members[connID] = struct{}{}
	r.members[connID] = Member{
		ConnID:   connID,
		RoomID:   rm.id,
		UserName: req.UserName,
		IsHost:   req.IsHost,
	}
	count := len(rm.members)

	r.logger.Info("connection joined room", "conn", connID, "room", rm.id, "user", req.UserName, "host", req.IsHost, "viewers", count)

	r.emitter.Emit(connID, protocol.EventJoinedStream, protocol.Joined{
		StreamID: rm.id,
		Count:    count,
		UserName: req.UserName,
		IsHost:   req.IsHost,
	})
	r.broadcastLocked(rm, protocol.EventViewerCount, count)
	// A repeated join of the same room on a live connection is already
	// known to the peers and already has the history.
	if !rejoin {
		r.broadcastExceptLocked(rm, connID, protocol.EventPeerJoined, protocol.PeerInfo{
			ID:       connID,
			UserName: req.UserName,
			IsHost:   req.IsHost,
		})
		r.emitter.Emit(connID, protocol.EventChatHistory, rm.history.Snapshot())
	}

	return count
}

// Leave removes connID from the room recorded for it. It is a no-op for a
// connection that is not in a room and reports whether anything changed.
func (r *Registry) Leave(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(connID)
}

func (r *Registry) leaveLocked(connID string) bool {
	m, ok := r.members[connID]
	if !ok {
		return false
	}
	delete(r.members, connID)

	rm, ok := r.rooms[m.RoomID]
	if !ok {
		return true
	}
	delete(rm.members, connID)
	count := len(rm.members)

	if count == 0 {
		delete(r.rooms, rm.id)
		r.logger.Info("room closed", "room", rm.id, "messages", rm.history.Len())
		return true
	}

	r.logger.Info("connection left room", "conn", connID, "room", rm.id, "viewers", count)
	r.broadcastLocked(rm, protocol.EventPeerLeft, protocol.PeerLeft{ID: connID})
	r.broadcastLocked(rm, protocol.EventViewerCount, count)
	return true
}

// Post appends a chat message to the sender's room and broadcasts it to
// every member, sender included. Display name and host flag come from the
// membership record, not from the request.
func (r *Registry) Post(connID string, req protocol.ChatRequest) (protocol.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[connID]
	if !ok {
		return protocol.ChatMessage{}, ErrNotInRoom
	}
	if req.StreamID != "" && req.StreamID != m.RoomID {
		return protocol.ChatMessage{}, ErrRoomMismatch
	}
	rm, ok := r.rooms[m.RoomID]
	if !ok {
		return protocol.ChatMessage{}, ErrNotInRoom
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	msg := protocol.ChatMessage{
		ID:        id,
		StreamID:  rm.id,
		UserName:  m.UserName,
		IsHost:    m.IsHost,
		Content:   req.Content,
		Timestamp: r.now().UTC(),
	}
	rm.history.Append(msg)
	r.broadcastLocked(rm, protocol.EventChatMessage, msg)
	return msg, nil
}

// RoomOf returns the room recorded for connID.
func (r *Registry) RoomOf(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[connID]
	return m.RoomID, ok
}

// Member returns the membership record for connID.
func (r *Registry) Member(connID string) (Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[connID]
	return m, ok
}

// ViewerCount returns the size of a room's member set, zero if it does not exist.
func (r *Registry) ViewerCount(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rm, ok := r.rooms[roomID]; ok {
		return len(rm.members)
	}
	return 0
}

// History returns a copy of a room's chat history.
func (r *Registry) History(roomID string) ([]protocol.ChatMessage, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}
	return rm.history.Snapshot(), true
}

// Stats lists every live room ordered by id.
func (r *Registry) Stats() []Stats {
	r.mu.Lock()
	out := make([]Stats, 0, len(r.rooms))
	for _, rm := range r.rooms {
		out = append(out, Stats{
			ID:        rm.id,
			Viewers:   len(rm.members),
			Messages:  rm.history.Len(),
			CreatedAt: rm.created,
		})
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) broadcastLocked(rm *room, event string, payload any) {
	for id := range rm.members {
		r.emitter.Emit(id, event, payload)
	}
}

func (r *Registry) broadcastExceptLocked(rm *room, skip, event string, payload any) {
	for id := range rm.members {
		if id != skip {
			r.emitter.Emit(id, event, payload)
		}
	}
}
