package gateway

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Registry tracks the connections open on this node: sessions by connection
// id, the latest connection per user, and room fanout sets. It is safe for
// concurrent use.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	users map[uuid.UUID]*Conn
	rooms map[uuid.UUID]map[string]*Conn

	// joined remembers each connection's rooms so Unregister can leave them.
	joined map[string][]uuid.UUID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*Conn),
		users:  make(map[uuid.UUID]*Conn),
		rooms:  make(map[uuid.UUID]map[string]*Conn),
		joined: make(map[string][]uuid.UUID),
	}
}

// Register records an authenticated connection. It becomes the user's
// connection for direct sends, replacing any earlier one.
func (r *Registry) Register(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID()] = c
	r.users[c.UserID()] = c
}

// JoinRoom adds a registered connection to a room's fanout set.
func (r *Registry) JoinRoom(roomID uuid.UUID, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c.ID()]; !ok {
		return
	}
	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]*Conn)
		r.rooms[roomID] = members
	}
	if _, ok := members[c.ID()]; ok {
		return
	}
	members[c.ID()] = c
	r.joined[c.ID()] = append(r.joined[c.ID()], roomID)
}

// Unregister removes a connection from the session table, from every room,
// and from the user mapping if it still points at this connection.
func (r *Registry) Unregister(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, c.ID())
	if current, ok := r.users[c.UserID()]; ok && current == c {
		delete(r.users, c.UserID())
	}
	for _, roomID := range r.joined[c.ID()] {
		members := r.rooms[roomID]
		delete(members, c.ID())
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	delete(r.joined, c.ID())
}

// SendToUser enqueues frame on the user's connection, if it is on this node.
func (r *Registry) SendToUser(userID uuid.UUID, frame []byte) bool {
	r.mu.RLock()
	c, ok := r.users[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return c.Enqueue(frame)
}

// BroadcastRoom enqueues frame on every local connection in the room and
// returns how many accepted it.
func (r *Registry) BroadcastRoom(roomID uuid.UUID, frame []byte) int {
	r.mu.RLock()
	targets := make([]*Conn, 0, len(r.rooms[roomID]))
	for _, c := range r.rooms[roomID] {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.Enqueue(frame) {
			delivered++
		}
	}
	return delivered
}

// CloseAll closes every registered connection with a going-away close frame.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	all := make([]*Conn, 0, len(r.conns))
	for _, c := range r.conns {
		all = append(all, c)
	}
	r.mu.RUnlock()

	for _, c := range all {
		c.CloseWith(websocket.CloseGoingAway, "server shutting down")
	}
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Lookup returns the connection currently mapped to a user.
func (r *Registry) Lookup(userID uuid.UUID) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.users[userID]
	return c, ok
}

// RoomMembers returns the ids of the local connections in a room.
func (r *Registry) RoomMembers(roomID uuid.UUID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.rooms[roomID]))
	for id := range r.rooms[roomID] {
		ids = append(ids, id)
	}
	return ids
}

// UserInAnyRoom reports whether any connection of the user is in a room set.
func (r *Registry) UserInAnyRoom(userID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, members := range r.rooms {
		for _, c := range members {
			if c.UserID() == userID {
				return true
			}
		}
	}
	return false
}
