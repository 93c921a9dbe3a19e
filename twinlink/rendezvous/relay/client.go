package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	q "github.com/quic-go/quic-go"
	"go.uber.org/zap"

	"github.com/twinlink/twinlink/twinlink/rendezvous"
)

var errExpectedState = errors.New("relay: expected STATE frame")

// TransportOption configures a client transport.
type TransportOption func(*Transport)

// WithTransportLogger attaches a structured logger to rooms joined through
// this transport.
func WithTransportLogger(log *zap.Logger) TransportOption {
	return func(t *Transport) { t.log = log }
}

// Transport joins rendezvous rooms hosted on a relay server.
type Transport struct {
	addr string
	log  *zap.Logger
}

func NewTransport(addr string, opts ...TransportOption) *Transport {
	t := &Transport{addr: addr, log: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Join dials the relay, announces the room and peer id, and materializes
// the room map from the relay's STATE reply. Subsequent ENTRY and presence
// frames are surfaced on the room's event stream in arrival order.
func (t *Transport) Join(ctx context.Context, roomID, self string) (rendezvous.Room, error) {
	tlsConf, err := newClientTLSConfig()
	if err != nil {
		return nil, err
	}
	conn, err := q.DialAddr(ctx, t.addr, tlsConf, &q.Config{})
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0, "")
		return nil, err
	}

	join, err := json.Marshal(joinBody{RoomID: roomID, Peer: self})
	if err != nil {
		conn.CloseWithError(0, "")
		return nil, err
	}
	if err := WriteFrame(stream, Frame{Type: MessageTypeJoin, Payload: join}); err != nil {
		conn.CloseWithError(0, "")
		return nil, err
	}

	frame, err := ReadFrame(stream)
	if err != nil {
		conn.CloseWithError(0, "")
		return nil, err
	}
	if frame.Type != MessageTypeState {
		conn.CloseWithError(0, "")
		return nil, errExpectedState
	}
	var state stateBody
	if err := json.Unmarshal(frame.Payload, &state); err != nil {
		conn.CloseWithError(0, "")
		return nil, err
	}

	r := &clientRoom{
		conn:    conn,
		stream:  stream,
		log:     t.log,
		entries: make(map[string][]byte, len(state.Entries)),
		events:  rendezvous.NewQueue[rendezvous.Event](),
	}
	for key, entry := range state.Entries {
		r.entries[key] = entry.Value
	}
	go r.readLoop()
	return r, nil
}

type clientRoom struct {
	conn   q.Connection
	stream q.Stream
	log    *zap.Logger
	events *rendezvous.Queue[rendezvous.Event]

	mu      sync.Mutex
	entries map[string][]byte
	closed  bool

	writeMu sync.Mutex
}

// Set sends the write to the relay. The local map is updated when the
// relay's ENTRY echo arrives, so the change feed covers local writes too.
func (r *clientRoom) Set(key string, value []byte) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return rendezvous.ErrRoomClosed
	}
	r.mu.Unlock()

	payload, err := json.Marshal(setBody{Key: key, Value: value})
	if err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return WriteFrame(r.stream, Frame{Type: MessageTypeSet, Payload: payload})
}

func (r *clientRoom) Get(key string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	value, ok := r.entries[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), value...), true
}

func (r *clientRoom) Values() map[string][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string][]byte, len(r.entries))
	for key, value := range r.entries {
		out[key] = append([]byte(nil), value...)
	}
	return out
}

func (r *clientRoom) Events() <-chan rendezvous.Event {
	return r.events.Out()
}

// Close leaves the room and tears down the connection. Idempotent.
func (r *clientRoom) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	r.writeMu.Lock()
	_ = WriteFrame(r.stream, Frame{Type: MessageTypeLeave})
	r.writeMu.Unlock()

	err := r.conn.CloseWithError(0, "")
	r.events.Close()
	return err
}

func (r *clientRoom) readLoop() {
	for {
		frame, err := ReadFrame(r.stream)
		if err != nil {
			r.mu.Lock()
			wasClosed := r.closed
			r.closed = true
			r.mu.Unlock()
			if !wasClosed {
				r.log.Warn("relay: room connection lost", zap.Error(err))
				r.conn.CloseWithError(0, "")
			}
			r.events.Close()
			return
		}

		switch frame.Type {
		case MessageTypeEntry:
			var body entryBody
			if err := json.Unmarshal(frame.Payload, &body); err != nil {
				continue
			}
			r.mu.Lock()
			r.entries[body.Key] = body.Value
			r.mu.Unlock()
			r.events.Push(rendezvous.Event{
				Type:  rendezvous.EntryChanged,
				Key:   body.Key,
				Value: body.Value,
			})
		case MessageTypePeerJoined, MessageTypePeerLeft:
			var body presenceBody
			if err := json.Unmarshal(frame.Payload, &body); err != nil {
				continue
			}
			eventType := rendezvous.PeerJoined
			if frame.Type == MessageTypePeerLeft {
				eventType = rendezvous.PeerLeft
			}
			r.events.Push(rendezvous.Event{Type: eventType, Peer: body.Peer})
		default:
			// Ignore unknown frames for forward compatibility.
		}
	}
}
