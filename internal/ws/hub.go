package ws

import (
	"log"
	"sort"
	"sync"

	"chat-realtime/internal/observability"
)

// Hub owns the connection registry, the presence table and room membership for one process.
// Every mutation happens in a single critical section.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	presence map[int]map[string]struct{}
	rooms    map[RoomID]map[string]*Client
	joined   map[string]map[RoomID]struct{}

	// evictions counts EvictUser calls per room; a join checked against the store is
	// rejected when it changed in between.
	evictions map[RoomID]uint64
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:  make(map[string]*Client),
		presence: make(map[int]map[string]struct{}),
		rooms:    make(map[RoomID]map[string]*Client),
		joined:   make(map[string]map[RoomID]struct{}),

		evictions: make(map[RoomID]uint64),
	}
}

// Attach records a live transport connection and joins it to its owner's user room.
// Attaching is not a presence announcement.
func (h *Hub) Attach(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.info.ConnID] = c
	h.joinLocked(c, UserRoom(c.info.UserID))
}

// Detach removes the connection from the registry, every room and the presence table.
// It reports whether this was the owner's last announced connection.
func (h *Hub) Detach(connID string) (userID int, wentOffline bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok {
		return 0, false
	}
	delete(h.clients, connID)
	for room := range h.joined[connID] {
		h.leaveLocked(connID, room)
	}
	delete(h.joined, connID)
	return c.info.UserID, h.removeConnectionLocked(c.info.UserID, connID)
}

// RegisterConnection adds connID to the user's presence set. Idempotent.
func (h *Hub) RegisterConnection(userID int, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.presence[userID]
	if !ok {
		set = make(map[string]struct{})
		h.presence[userID] = set
	}
	set[connID] = struct{}{}
	observability.SetOnlineUsers(len(h.presence))
}

// RemoveConnection drops connID from the user's presence set. It returns true only on the
// transition from one connection to none, which is the single trigger for an offline broadcast.
func (h *Hub) RemoveConnection(userID int, connID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.removeConnectionLocked(userID, connID)
}

func (h *Hub) removeConnectionLocked(userID int, connID string) bool {
	set, ok := h.presence[userID]
	if !ok {
		return false
	}
	if _, present := set[connID]; !present {
		return false
	}
	delete(set, connID)
	if len(set) > 0 {
		return false
	}
	delete(h.presence, userID)
	observability.SetOnlineUsers(len(h.presence))
	return true
}

// IsOnline reports whether the user has at least one announced connection.
func (h *Hub) IsOnline(userID int) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.presence[userID]) > 0
}

// ConnectionsFor returns the user's announced connection ids, sorted.
func (h *Hub) ConnectionsFor(userID int) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.presence[userID]))
	for id := range h.presence[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// OnlineStatus answers a presence query for ids.
func (h *Hub) OnlineStatus(ids []int) map[int]bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[int]bool, len(ids))
	for _, id := range ids {
		out[id] = len(h.presence[id]) > 0
	}
	return out
}

// OnlineUsers returns the number of users currently online.
func (h *Hub) OnlineUsers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.presence)
}

// Join adds an attached connection to room. It returns false when the connection is gone.
func (h *Hub) Join(connID string, room RoomID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok || !room.Valid() {
		return false
	}
	h.joinLocked(c, room)
	return true
}

// JoinResult is the outcome of JoinIfCurrent.
type JoinResult int

const (
	Joined JoinResult = iota
	JoinConnGone
	JoinStale
)

// Generation returns the eviction counter of room, to be passed to JoinIfCurrent.
func (h *Hub) Generation(room RoomID) uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.evictions[room]
}

// JoinIfCurrent joins the connection to room only if nobody was evicted from room since
// gen was read.
func (h *Hub) JoinIfCurrent(connID string, room RoomID, gen uint64) JoinResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[connID]
	if !ok || !room.Valid() {
		return JoinConnGone
	}
	if h.evictions[room] != gen {
		return JoinStale
	}
	h.joinLocked(c, room)
	return Joined
}

func (h *Hub) joinLocked(c *Client, room RoomID) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[c.info.ConnID] = c
	rooms, ok := h.joined[c.info.ConnID]
	if !ok {
		rooms = make(map[RoomID]struct{})
		h.joined[c.info.ConnID] = rooms
	}
	rooms[room] = struct{}{}
}

// Leave removes the connection from room. Idempotent.
func (h *Hub) Leave(connID string, room RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(connID, room)
}

func (h *Hub) leaveLocked(connID string, room RoomID) {
	if members, ok := h.rooms[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if rooms, ok := h.joined[connID]; ok {
		delete(rooms, room)
	}
}

// IsMember reports whether the connection has joined room.
func (h *Hub) IsMember(connID string, room RoomID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][connID]
	return ok
}

// UserInRoom reports whether any connection of userID has joined room.
func (h *Hub) UserInRoom(userID int, room RoomID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.rooms[room] {
		if c.info.UserID == userID {
			return true
		}
	}
	return false
}

// EvictUser removes every connection of userID from room.
func (h *Hub) EvictUser(userID int, room RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.evictions[room]++
	for connID, c := range h.rooms[room] {
		if c.info.UserID == userID {
			h.leaveLocked(connID, room)
		}
	}
}

// EmitToRoom sends the event to every connection in room except exceptConnID and returns
// how many queues accepted it.
func (h *Hub) EmitToRoom(room RoomID, event Event, data any, exceptConnID string) int {
	frame, err := encode(event, data)
	if err != nil {
		log.Printf("websocket encode error event=%s: %v", event, err)
		return 0
	}
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.rooms[room]))
	for connID, c := range h.rooms[room] {
		if connID != exceptConnID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if c.enqueue(event, frame) {
			sent++
		}
	}
	return sent
}

// EmitToConn sends the event to one connection.
func (h *Hub) EmitToConn(connID string, event Event, data any) bool {
	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	frame, err := encode(event, data)
	if err != nil {
		log.Printf("websocket encode error event=%s: %v", event, err)
		return false
	}
	return c.enqueue(event, frame)
}

// BroadcastExceptUser sends the event to every attached connection not owned by userID.
func (h *Hub) BroadcastExceptUser(userID int, event Event, data any) int {
	frame, err := encode(event, data)
	if err != nil {
		log.Printf("websocket encode error event=%s: %v", event, err)
		return 0
	}
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		if c.info.UserID != userID {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	sent := 0
	for _, c := range targets {
		if c.enqueue(event, frame) {
			sent++
		}
	}
	return sent
}

// CloseAll asks every connection to shut down.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		c.Close()
	}
}
