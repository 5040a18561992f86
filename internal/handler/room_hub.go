package handler

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/gofiber/contrib/websocket"

	"watchparty-backend/internal/notifier"
	"watchparty-backend/internal/presence"
	"watchparty-backend/internal/session"
)

// =============================================================================
// Room Hub - 방 단위 WebSocket 팬아웃 관리
// =============================================================================

// RoomHub manages fan-out rooms and their subscribers
type RoomHub struct {
	rooms    map[string]*hubRoom
	mu       sync.RWMutex
	changes  *notifier.RedisNotifier
	presence *presence.Manager
}

// hubRoom is a single room's fan-out loop and subscriber set
type hubRoom struct {
	ID          string
	subscribers map[string]*Subscriber // session ID -> subscriber
	broadcast   chan []byte
	ctx         context.Context
	cancel      context.CancelFunc
	mu          sync.RWMutex
	hub         *RoomHub
}

// Subscriber is one WebSocket connection attached to a room
type Subscriber struct {
	Session *session.Session
	Conn    *websocket.Conn
	writeMu sync.Mutex
}

// WriteJSON serializes and writes a frame, guarded by the per-conn write mutex
func (s *Subscriber) WriteJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.Conn.WriteJSON(v)
}

// ChangeFrame is sent to subscribers when a row changes
type ChangeFrame struct {
	Type   string              `json:"type"` // "room_change"
	Change *notifier.RowChange `json:"change"`
}

// PresenceFrame is sent to subscribers on presence updates
type PresenceFrame struct {
	Type string         `json:"type"` // "presence"
	Data *presence.Data `json:"data"`
}

// NewRoomHub creates a new RoomHub instance
func NewRoomHub(changes *notifier.RedisNotifier, pm *presence.Manager) *RoomHub {
	return &RoomHub{
		rooms:    make(map[string]*hubRoom),
		changes:  changes,
		presence: pm,
	}
}

// getOrCreateRoom returns the fan-out room, starting its pumps on first use
func (h *RoomHub) getOrCreateRoom(roomID string) *hubRoom {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, exists := h.rooms[roomID]; exists {
		return room
	}

	ctx, cancel := context.WithCancel(context.Background())
	room := &hubRoom{
		ID:          roomID,
		subscribers: make(map[string]*Subscriber),
		broadcast:   make(chan []byte, 100),
		ctx:         ctx,
		cancel:      cancel,
		hub:         h,
	}

	h.rooms[roomID] = room
	go room.run()
	go room.pumpChanges()
	go room.pumpPresence()
	log.Printf("[RoomHub] Created room: %s", roomID)

	return room
}

// removeRoom stops an empty room's pumps
func (h *RoomHub) removeRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if room, exists := h.rooms[roomID]; exists {
		room.cancel()
		delete(h.rooms, roomID)
		log.Printf("[RoomHub] Removed room: %s", roomID)
	}
}

// Attach registers a subscriber on a room
func (h *RoomHub) Attach(roomID string, sub *Subscriber) {
	room := h.getOrCreateRoom(roomID)
	room.mu.Lock()
	room.subscribers[sub.Session.ID] = sub
	room.mu.Unlock()
}

// Detach removes a subscriber, tearing the room down when it empties
func (h *RoomHub) Detach(roomID string, sub *Subscriber) {
	h.mu.RLock()
	room, exists := h.rooms[roomID]
	h.mu.RUnlock()
	if !exists {
		return
	}

	room.mu.Lock()
	delete(room.subscribers, sub.Session.ID)
	empty := len(room.subscribers) == 0
	room.mu.Unlock()

	if empty {
		h.removeRoom(roomID)
	}
}

// SubscriberCount returns how many connections a room currently has
func (h *RoomHub) SubscriberCount(roomID string) int {
	h.mu.RLock()
	room, exists := h.rooms[roomID]
	h.mu.RUnlock()
	if !exists {
		return 0
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	return len(room.subscribers)
}

// run drains the broadcast channel into every subscriber's outbound queue.
// A subscriber with a full queue drops the frame rather than blocking the room.
func (r *hubRoom) run() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case frame := <-r.broadcast:
			r.mu.RLock()
			for _, sub := range r.subscribers {
				select {
				case sub.Session.Outbound <- frame:
				default:
					log.Printf("[RoomHub] Dropping frame for slow subscriber: room=%s session=%s", r.ID, sub.Session.ID)
				}
			}
			r.mu.RUnlock()
		}
	}
}

// pumpChanges forwards row-change notifications into the broadcast channel
func (r *hubRoom) pumpChanges() {
	pubsub := r.hub.changes.Subscribe(r.ctx, r.ID)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-r.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var change notifier.RowChange
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				log.Printf("[RoomHub] Bad change payload: room=%s err=%v", r.ID, err)
				continue
			}
			frame, err := json.Marshal(ChangeFrame{Type: "room_change", Change: &change})
			if err != nil {
				continue
			}
			select {
			case r.broadcast <- frame:
			case <-r.ctx.Done():
				return
			}
		}
	}
}

// pumpPresence forwards presence announcements into the broadcast channel
func (r *hubRoom) pumpPresence() {
	pubsub := r.hub.presence.Subscribe(r.ID)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-r.ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var data presence.Data
			if err := json.Unmarshal([]byte(msg.Payload), &data); err != nil {
				continue
			}
			frame, err := json.Marshal(PresenceFrame{Type: "presence", Data: &data})
			if err != nil {
				continue
			}
			select {
			case r.broadcast <- frame:
			case <-r.ctx.Done():
				return
			}
		}
	}
}
