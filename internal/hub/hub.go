// Package hub groups live connections by room and fans messages out to them.
package hub

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Conn is one live client connection, whatever transport carries it.
type Conn interface {
	ID() string
	Room() string
	Send(data []byte) error
	Close() error
}

type room struct {
	clients map[string]Conn
}

type Hub struct {
	mu    sync.RWMutex
	rooms map[string]*room
	conns map[string]Conn
}

func New() *Hub {
	return &Hub{
		rooms: make(map[string]*room),
		conns: make(map[string]Conn),
	}
}

func (h *Hub) Register(conn Conn) {
	h.mu.Lock()
	r, ok := h.rooms[conn.Room()]
	if !ok {
		r = &room{clients: make(map[string]Conn)}
		h.rooms[conn.Room()] = r
	}
	r.clients[conn.ID()] = conn
	h.conns[conn.ID()] = conn
	count := len(r.clients)
	h.mu.Unlock()

	log.Debug().Str("room", conn.Room()).Str("conn", conn.ID()).Int("clients", count).Msg("registered")
}

// Unregister forgets conn. Rooms with no connections left are dropped.
func (h *Hub) Unregister(conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[conn.ID()] == nil {
		return
	}
	delete(h.conns, conn.ID())
	r, ok := h.rooms[conn.Room()]
	if !ok {
		return
	}
	delete(r.clients, conn.ID())
	if len(r.clients) == 0 {
		delete(h.rooms, conn.Room())
	}
}

// Broadcast sends msg to every connection in roomID except the excluded ids.
func (h *Hub) Broadcast(roomID string, msg []byte, exclude ...string) {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]Conn, 0, len(r.clients))
	for id, c := range r.clients {
		if contains(exclude, id) {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.send(c, msg)
	}
}

func (h *Hub) SendTo(connID string, msg []byte) {
	h.mu.RLock()
	c := h.conns[connID]
	h.mu.RUnlock()
	if c == nil {
		return
	}
	h.send(c, msg)
}

func (h *Hub) send(c Conn, msg []byte) {
	if err := c.Send(msg); err != nil {
		log.Warn().Str("room", c.Room()).Str("conn", c.ID()).Err(err).Msg("send failed, dropping connection")
		h.Unregister(c)
		_ = c.Close()
	}
}

func (h *Hub) Stats() (rooms, clients int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms), len(h.conns)
}

// Online returns how many connections are attached to roomID.
func (h *Hub) Online(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if r, ok := h.rooms[roomID]; ok {
		return len(r.clients)
	}
	return 0
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
