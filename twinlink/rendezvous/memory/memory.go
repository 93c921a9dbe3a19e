// Package memory is an in-process rendezvous transport: rooms are shared
// maps inside one Network. It is useful for tests, examples and embedding
// both sides of an exchange in a single process.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/twinlink/twinlink/twinlink/rendezvous"
)

// Network hosts rooms. All transports created from one Network share them.
type Network struct {
	mu    sync.Mutex
	rooms map[string]*hub
}

func NewNetwork() *Network {
	return &Network{rooms: map[string]*hub{}}
}

// Transport returns the rendezvous transport backed by this network.
func (n *Network) Transport() rendezvous.Transport {
	return transport{network: n}
}

type transport struct {
	network *Network
}

func (t transport) Join(ctx context.Context, roomID, self string) (rendezvous.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := t.network
	n.mu.Lock()
	h, ok := n.rooms[roomID]
	if !ok {
		h = &hub{
			network: n,
			roomID:  roomID,
			entries: map[string]storedEntry{},
			members: map[*room]struct{}{},
		}
		n.rooms[roomID] = h
	}
	n.mu.Unlock()

	return h.join(self), nil
}

type storedEntry struct {
	value []byte
	stamp rendezvous.Stamp
}

type hub struct {
	network   *Network
	roomID    string
	mu        sync.Mutex
	entries   map[string]storedEntry
	members   map[*room]struct{}
	lastNanos int64
}

func (h *hub) join(self string) *room {
	r := &room{
		hub:    h,
		self:   self,
		events: rendezvous.NewQueue[rendezvous.Event](),
	}
	h.mu.Lock()
	for m := range h.members {
		m.events.Push(rendezvous.Event{Type: rendezvous.PeerJoined, Peer: self})
	}
	h.members[r] = struct{}{}
	h.mu.Unlock()
	return r
}

// set applies LWW and, when the write wins, fans the change out to every
// member including the writer (the map's own change feed).
func (h *hub) set(key string, value []byte, stamp rendezvous.Stamp) {
	h.mu.Lock()
	// Stamps are made monotonic per hub so in-process write order is
	// authoritative even on coarse clocks.
	if stamp.Nanos <= h.lastNanos {
		stamp.Nanos = h.lastNanos + 1
	}
	h.lastNanos = stamp.Nanos
	current, exists := h.entries[key]
	if exists && !stamp.After(current.stamp) {
		h.mu.Unlock()
		return
	}
	h.entries[key] = storedEntry{value: append([]byte(nil), value...), stamp: stamp}
	for m := range h.members {
		m.events.Push(rendezvous.Event{
			Type:  rendezvous.EntryChanged,
			Key:   key,
			Value: append([]byte(nil), value...),
		})
	}
	h.mu.Unlock()
}

func (h *hub) leave(r *room) {
	h.mu.Lock()
	if _, ok := h.members[r]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.members, r)
	for m := range h.members {
		m.events.Push(rendezvous.Event{Type: rendezvous.PeerLeft, Peer: r.self})
	}
	empty := len(h.members) == 0
	h.mu.Unlock()

	if empty {
		h.network.mu.Lock()
		if h.network.rooms[h.roomID] == h {
			delete(h.network.rooms, h.roomID)
		}
		h.network.mu.Unlock()
	}
}

type room struct {
	hub    *hub
	self   string
	events *rendezvous.Queue[rendezvous.Event]

	mu     sync.Mutex
	closed bool
}

func (r *room) Set(key string, value []byte) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return rendezvous.ErrRoomClosed
	}
	r.mu.Unlock()
	r.hub.set(key, value, rendezvous.Stamp{Nanos: time.Now().UnixNano(), Peer: r.self})
	return nil
}

func (r *room) Get(key string) ([]byte, bool) {
	r.hub.mu.Lock()
	defer r.hub.mu.Unlock()
	entry, ok := r.hub.entries[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), entry.value...), true
}

func (r *room) Values() map[string][]byte {
	r.hub.mu.Lock()
	defer r.hub.mu.Unlock()
	out := make(map[string][]byte, len(r.hub.entries))
	for key, entry := range r.hub.entries {
		out[key] = append([]byte(nil), entry.value...)
	}
	return out
}

func (r *room) Events() <-chan rendezvous.Event {
	return r.events.Out()
}

func (r *room) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.hub.leave(r)
	r.events.Close()
	return nil
}
