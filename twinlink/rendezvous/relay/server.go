package relay

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	q "github.com/quic-go/quic-go"
	"go.uber.org/zap"

	"github.com/twinlink/twinlink/twinlink/rendezvous"
)

var (
	ErrServerClosed   = errors.New("relay: server closed")
	errExpectedJoin   = errors.New("relay: expected JOIN frame")
	errDuplicatePeer  = errors.New("relay: peer id already present in room")
	errInvalidRoomID  = errors.New("relay: invalid room id")
	errEmptyPeerLabel = errors.New("relay: empty peer id")
)

// ServerOption configures a relay server.
type ServerOption func(*Server)

// WithLogger attaches a structured logger to the server.
func WithLogger(log *zap.Logger) ServerOption {
	return func(s *Server) { s.log = log }
}

// Server hosts rendezvous rooms over QUIC.
type Server struct {
	ln  *q.Listener
	log *zap.Logger

	mu     sync.Mutex
	rooms  map[string]*serverRoom
	closed bool
}

// ListenServer starts a relay server on addr (e.g. "127.0.0.1:0").
func ListenServer(addr string, opts ...ServerOption) (*Server, error) {
	tlsConf, err := newServerTLSConfig()
	if err != nil {
		return nil, err
	}
	ln, err := q.ListenAddr(addr, tlsConf, &q.Config{})
	if err != nil {
		return nil, err
	}
	s := &Server{
		ln:    ln,
		log:   zap.NewNop(),
		rooms: map[string]*serverRoom{},
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.acceptLoop()
	return s, nil
}

// Addr returns the bound listen address.
func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Close stops accepting and tears down the listener. Idempotent.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.ln.Close()
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept(context.Background())
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn q.Connection) {
	defer conn.CloseWithError(0, "")

	ctx, cancel := context.WithTimeout(conn.Context(), 10*time.Second)
	stream, err := conn.AcceptStream(ctx)
	cancel()
	if err != nil {
		return
	}

	member, room, err := s.admit(stream)
	if err != nil {
		s.log.Debug("relay: admission failed", zap.Error(err))
		return
	}
	s.log.Info("relay: peer joined",
		zap.String("room", room.id), zap.String("peer", member.peer))

	defer func() {
		room.remove(member)
		s.dropIfEmpty(room)
		s.log.Info("relay: peer left",
			zap.String("room", room.id), zap.String("peer", member.peer))
	}()

	for {
		frame, err := ReadFrame(stream)
		if err != nil {
			return
		}
		switch frame.Type {
		case MessageTypeSet:
			var body setBody
			if err := json.Unmarshal(frame.Payload, &body); err != nil || body.Key == "" {
				continue
			}
			room.set(body.Key, body.Value, rendezvous.Stamp{
				Nanos: time.Now().UnixNano(),
				Peer:  member.peer,
			})
		case MessageTypeLeave:
			return
		default:
			// Unknown frames are ignored for forward compatibility.
		}
	}
}

// admit reads the JOIN frame, registers the member and replies with STATE.
func (s *Server) admit(stream q.Stream) (*serverMember, *serverRoom, error) {
	frame, err := ReadFrame(stream)
	if err != nil {
		return nil, nil, err
	}
	if frame.Type != MessageTypeJoin {
		return nil, nil, errExpectedJoin
	}
	var body joinBody
	if err := json.Unmarshal(frame.Payload, &body); err != nil {
		return nil, nil, err
	}
	if body.RoomID == "" {
		return nil, nil, errInvalidRoomID
	}
	if body.Peer == "" {
		return nil, nil, errEmptyPeerLabel
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, nil, ErrServerClosed
	}
	room, ok := s.rooms[body.RoomID]
	if !ok {
		room = newServerRoom(body.RoomID)
		s.rooms[body.RoomID] = room
	}
	s.mu.Unlock()

	member := &serverMember{peer: body.Peer, stream: stream}
	state, err := room.add(member)
	if err != nil {
		return nil, nil, err
	}
	if err := member.send(Frame{Type: MessageTypeState, Payload: state}); err != nil {
		room.remove(member)
		s.dropIfEmpty(room)
		return nil, nil, err
	}
	return member, room, nil
}

func (s *Server) dropIfEmpty(room *serverRoom) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room.empty() && s.rooms[room.id] == room {
		delete(s.rooms, room.id)
	}
}

type serverMember struct {
	peer   string
	stream q.Stream
	mu     sync.Mutex
}

func (m *serverMember) send(f Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return WriteFrame(m.stream, f)
}

type serverRoom struct {
	id string

	mu        sync.Mutex
	entries   map[string]wireEntry
	members   []*serverMember
	lastNanos int64
}

func newServerRoom(id string) *serverRoom {
	return &serverRoom{id: id, entries: map[string]wireEntry{}}
}

// add registers the member and returns the marshaled room state. Presence
// is fanned out to the existing members.
func (r *serverRoom) add(member *serverMember) ([]byte, error) {
	r.mu.Lock()
	for _, m := range r.members {
		if m.peer == member.peer {
			r.mu.Unlock()
			return nil, errDuplicatePeer
		}
	}
	state := stateBody{Entries: make(map[string]wireEntry, len(r.entries))}
	for key, entry := range r.entries {
		state.Entries[key] = entry
	}
	for _, m := range r.members {
		state.Peers = append(state.Peers, m.peer)
	}
	others := append([]*serverMember(nil), r.members...)
	r.members = append(r.members, member)
	r.mu.Unlock()

	payload, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	r.fanOut(others, MessageTypePeerJoined, presenceBody{Peer: member.peer})
	return payload, nil
}

func (r *serverRoom) remove(member *serverMember) {
	r.mu.Lock()
	found := false
	for i, m := range r.members {
		if m == member {
			r.members = append(r.members[:i], r.members[i+1:]...)
			found = true
			break
		}
	}
	others := append([]*serverMember(nil), r.members...)
	r.mu.Unlock()

	if found {
		r.fanOut(others, MessageTypePeerLeft, presenceBody{Peer: member.peer})
	}
}

// set applies LWW and fans the winning write out to every member including
// the writer, forming the room's change feed.
func (r *serverRoom) set(key string, value []byte, stamp rendezvous.Stamp) {
	r.mu.Lock()
	// Stamps are made monotonic per room so arrival order at the relay is
	// authoritative even on coarse clocks.
	if stamp.Nanos <= r.lastNanos {
		stamp.Nanos = r.lastNanos + 1
	}
	r.lastNanos = stamp.Nanos
	current, exists := r.entries[key]
	if exists && !stamp.After(rendezvous.Stamp{Nanos: current.Nanos, Peer: current.Peer}) {
		r.mu.Unlock()
		return
	}
	entry := wireEntry{Value: value, Nanos: stamp.Nanos, Peer: stamp.Peer}
	r.entries[key] = entry
	all := append([]*serverMember(nil), r.members...)
	r.mu.Unlock()

	r.fanOut(all, MessageTypeEntry, entryBody{
		Key:   key,
		Value: entry.Value,
		Nanos: entry.Nanos,
		Peer:  entry.Peer,
	})
}

func (r *serverRoom) empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members) == 0
}

func (r *serverRoom) fanOut(members []*serverMember, t MessageType, body interface{}) {
	payload, err := json.Marshal(body)
	if err != nil {
		return
	}
	for _, m := range members {
		// A failed write will surface on the member's own read loop.
		_ = m.send(Frame{Type: t, Payload: payload})
	}
}
