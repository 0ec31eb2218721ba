package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Hub tracks room membership. One Hub is built at startup and shared by
// every connection handler.
type Hub struct {
	log *slog.Logger

	mu     sync.RWMutex
	rooms  map[string]map[string]*Client
	joined map[string]map[string]struct{}
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		log:    log,
		rooms:  make(map[string]map[string]*Client),
		joined: make(map[string]map[string]struct{}),
	}
}

// Join subscribes c to room. Joining twice is a no-op.
func (h *Hub) Join(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	if _, ok := members[c.ID]; ok {
		return
	}
	members[c.ID] = c
	if h.joined[c.ID] == nil {
		h.joined[c.ID] = make(map[string]struct{})
	}
	h.joined[c.ID][room] = struct{}{}
	h.log.Debug("hub.room.join", "room", room, "client_id", c.ID)
}

// Leave unsubscribes the client from room. Leaving a room the client is not
// in is a no-op.
func (h *Hub) Leave(room, clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(room, clientID)
}

func (h *Hub) leaveLocked(room, clientID string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	if _, ok := members[clientID]; !ok {
		return
	}
	delete(members, clientID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	if rooms := h.joined[clientID]; rooms != nil {
		delete(rooms, room)
		if len(rooms) == 0 {
			delete(h.joined, clientID)
		}
	}
	h.log.Debug("hub.room.leave", "room", room, "client_id", clientID)
}

// LeaveAll drops every membership of the client. Connections call it on
// disconnect.
func (h *Hub) LeaveAll(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room := range h.joined[clientID] {
		h.leaveLocked(room, clientID)
	}
}

// Member reports whether the client is subscribed to room.
func (h *Hub) Member(room, clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][clientID]
	return ok
}

// Size returns the number of subscribers of room.
func (h *Hub) Size(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Broadcast sends f to every subscriber of room.
func (h *Hub) Broadcast(room string, f Frame) error {
	return h.BroadcastExcept(room, f, "")
}

// BroadcastExcept sends f to every subscriber of room but exceptID. The
// frame is encoded once, so all subscribers receive identical bytes.
// Subscribers with a full queue miss the frame rather than stall the room.
func (h *Hub) BroadcastExcept(room string, f Frame, exceptID string) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, c := range h.rooms[room] {
		if id == exceptID {
			continue
		}
		if !c.deliver(payload) {
			h.log.Warn("hub.frame.dropped", "room", room, "client_id", id, "event", f.Event)
		}
	}
	return nil
}

// Send delivers f to a single client.
func (h *Hub) Send(c *Client, f Frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if !c.deliver(payload) {
		h.log.Warn("hub.frame.dropped", "client_id", c.ID, "event", f.Event)
	}
	return nil
}
