// Package hub tracks live socket connections and their room memberships and
// fans room messages out to members.
package hub

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/VishalGohania/excelidraw/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the authority for who receives a room broadcast.
// All membership changes happen under mu.
type Registry struct {
	mu      sync.Mutex
	conns   map[*Connection]struct{}
	rooms   map[uint]map[*Connection]struct{}
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewRegistry returns an empty registry. A nil m registers collectors on a
// private registry.
func NewRegistry(log *slog.Logger, m *metrics.Metrics) *Registry {
	if log == nil {
		log = slog.Default()
	}
	if m == nil {
		m = metrics.New(prometheus.NewRegistry())
	}
	return &Registry{
		conns:   make(map[*Connection]struct{}),
		rooms:   make(map[uint]map[*Connection]struct{}),
		log:     log,
		metrics: m,
	}
}

// Register adds c to the live set. One account may hold several connections.
func (r *Registry) Register(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c]; ok {
		return
	}
	r.conns[c] = struct{}{}
	r.metrics.Connections.Inc()
}

// Deregister removes c, drops all of its memberships and closes its queue.
// Safe to call more than once.
func (r *Registry) Deregister(c *Connection) {
	r.mu.Lock()
	if _, ok := r.conns[c]; ok {
		delete(r.conns, c)
		for roomID := range c.rooms {
			r.removeMemberLocked(c, roomID)
		}
		r.metrics.Connections.Dec()
	}
	r.mu.Unlock()

	c.close()
}

// CloseAll deregisters every live connection, which makes each write pump
// send a close frame and stop. Returns how many connections were closed.
func (r *Registry) CloseAll() int {
	r.mu.Lock()
	conns := make([]*Connection, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.mu.Unlock()

	for _, c := range conns {
		r.Deregister(c)
	}
	return len(conns)
}

// Join adds roomID to c's room set. Joining twice is a no-op.
// Returns ErrConnectionClosed if c is not registered.
func (r *Registry) Join(c *Connection, roomID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[c]; !ok {
		return ErrConnectionClosed
	}
	if _, ok := c.rooms[roomID]; ok {
		return nil
	}
	c.rooms[roomID] = struct{}{}
	members := r.rooms[roomID]
	if members == nil {
		members = make(map[*Connection]struct{})
		r.rooms[roomID] = members
	}
	members[c] = struct{}{}
	r.metrics.Memberships.Inc()
	return nil
}

// Leave removes roomID from c's room set and reports whether it was there.
func (r *Registry) Leave(c *Connection, roomID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := c.rooms[roomID]; !ok {
		return false
	}
	r.removeMemberLocked(c, roomID)
	return true
}

func (r *Registry) removeMemberLocked(c *Connection, roomID uint) {
	delete(c.rooms, roomID)
	if members := r.rooms[roomID]; members != nil {
		delete(members, c)
		if len(members) == 0 {
			delete(r.rooms, roomID)
		}
	}
	r.metrics.Memberships.Dec()
}

// Rooms returns c's room set in ascending order.
func (r *Registry) Rooms(c *Connection) []uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint, 0, len(c.rooms))
	for id := range c.rooms {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsMember reports whether c has joined roomID.
func (r *Registry) IsMember(c *Connection, roomID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := c.rooms[roomID]
	return ok
}

// Broadcast enqueues payload to every open member of roomID except exclude,
// which may be nil. Membership is snapshotted at call time. A member whose
// send fails is deregistered after the loop; the others still receive it.
// Returns the number of connections the payload was queued for.
func (r *Registry) Broadcast(roomID uint, payload []byte, exclude *Connection) int {
	r.mu.Lock()
	targets := make([]*Connection, 0, len(r.rooms[roomID]))
	for c := range r.rooms[roomID] {
		if c != exclude {
			targets = append(targets, c)
		}
	}
	r.mu.Unlock()

	var failed []*Connection
	delivered := 0
	for _, c := range targets {
		if err := c.Send(payload); err != nil {
			r.log.Warn("broadcast send failed", "connId", c.ID(), "accountId", c.AccountID(), "roomId", roomID, "err", err)
			failed = append(failed, c)
			continue
		}
		delivered++
	}
	for _, c := range failed {
		r.Deregister(c)
	}

	r.metrics.Broadcasts.Inc()
	r.metrics.Deliveries.Add(float64(delivered))
	r.metrics.SendFailures.Add(float64(len(failed)))
	return delivered
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// RoomSize returns the number of connections joined to roomID.
func (r *Registry) RoomSize(roomID uint) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[roomID])
}
