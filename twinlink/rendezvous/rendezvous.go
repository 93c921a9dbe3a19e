// Package rendezvous defines the replicated-map transport contract used by
// the peer exchange: peers joining the same room observe a shared key-value
// map with last-writer-wins merge and a change feed.
//
// Implementations live in subpackages (in-process memory hub, QUIC relay).
// The core never implements distributed consensus itself; it requires LWW
// per key and ordered event delivery per room handle from the transport.
package rendezvous

import (
	"context"
	"errors"
)

var (
	ErrRoomClosed = errors.New("rendezvous: room closed")
)

// EventType tags an event on the room's feed.
type EventType int

const (
	PeerJoined EventType = iota + 1
	PeerLeft
	EntryChanged
)

func (t EventType) String() string {
	switch t {
	case PeerJoined:
		return "PEER_JOINED"
	case PeerLeft:
		return "PEER_LEFT"
	case EntryChanged:
		return "ENTRY_CHANGED"
	default:
		return "UNKNOWN"
	}
}

// Event is one entry of the room's tagged event stream. EntryChanged fires
// for the local peer's own writes too, observed through the map's change
// feed; consumers distinguish by key.
type Event struct {
	Type  EventType
	Peer  string // joining/leaving peer for presence events
	Key   string // changed key for EntryChanged
	Value []byte // new value for EntryChanged
}

// Room is a handle on one replicated map. Events are delivered in transport
// arrival order on a single stream; each event is seen by at most one
// receive from the channel. Close is idempotent and closes the stream.
type Room interface {
	Set(key string, value []byte) error
	Get(key string) ([]byte, bool)
	Values() map[string][]byte
	Events() <-chan Event
	Close() error
}

// Transport opens rooms by rendezvous id. self identifies the local peer on
// the room's presence feed.
type Transport interface {
	Join(ctx context.Context, roomID, self string) (Room, error)
}

// Stamp orders writes for last-writer-wins merge. Later nanos win; the peer
// id breaks exact timestamp ties deterministically.
type Stamp struct {
	Nanos int64
	Peer  string
}

// After reports whether s supersedes other.
func (s Stamp) After(other Stamp) bool {
	if s.Nanos != other.Nanos {
		return s.Nanos > other.Nanos
	}
	return s.Peer > other.Peer
}
