package exchange

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/twinlink/twinlink/twinlink/identity"
	"github.com/twinlink/twinlink/twinlink/payload"
	"github.com/twinlink/twinlink/twinlink/rendezvous"
	"github.com/twinlink/twinlink/twinlink/state"
)

var (
	ErrNotConnected   = errors.New("exchange: session not connected")
	ErrConnectionLost = errors.New("exchange: connection lost")
)

// SessionState is the lifecycle state of a Session.
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateConnecting
	StateConnected
	StateError
)

func (s SessionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// EventType tags a session event.
type EventType int

const (
	EventPeerJoined EventType = iota + 1
	EventPeerLeft
	EventEntry
	EventError
)

// Event is one entry of the session's event stream. EventEntry fires for
// every entry change observed on the room, including the local peer's own
// writes; consumers distinguish by twin id.
type Event struct {
	Type  EventType
	Peer  string
	Entry *Entry
	Err   error
}

// Option configures a Session.
type Option func(*Session)

// WithLogger attaches a structured logger to the session.
func WithLogger(log *zap.Logger) Option {
	return func(s *Session) { s.log = log }
}

// Session is a single-rendezvous peer exchange. At most one room is active
// per session; connecting again first disconnects. Connect is not
// reentrant-safe while an attempt is in flight — callers await completion
// before issuing another Connect.
type Session struct {
	ids       *identity.Service
	transport rendezvous.Transport
	twinID    string
	log       *zap.Logger

	mu         sync.Mutex
	st         SessionState
	lastErr    error
	room       rendezvous.Room
	roomID     string
	previewKey identity.SymmetricKey
	events     *rendezvous.Queue[Event]
}

func NewSession(ids *identity.Service, transport rendezvous.Transport, twinID string, opts ...Option) *Session {
	s := &Session{
		ids:       ids,
		transport: transport,
		twinID:    twinID,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) TwinID() string { return s.twinID }

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st
}

// Err returns the error that moved the session into StateError, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// GenerateQRPayload derives a serialized discovery payload from the local
// profile: the embedding hash (or a twin-id hash when no embedding exists)
// is signed with the lazily created key pair and bound to a fresh room id.
// The parsed payload is returned alongside for callers that need the room.
func (s *Session) GenerateQRPayload(profile state.Profile) (string, payload.Payload, error) {
	kp, err := s.ids.KeyPair()
	if err != nil {
		return "", payload.Payload{}, err
	}
	hash := s.embeddingHash(profile)
	sig, err := identity.Sign(hash, kp.Private)
	if err != nil {
		return "", payload.Payload{}, err
	}
	pub, err := identity.ExportPublicKey(kp.Public)
	if err != nil {
		return "", payload.Payload{}, err
	}
	roomID, err := identity.GenerateRoomID()
	if err != nil {
		return "", payload.Payload{}, err
	}

	p := payload.New(hash, sig, pub, roomID, 0)
	encoded, err := p.Serialize()
	if err != nil {
		return "", payload.Payload{}, err
	}
	return encoded, p, nil
}

// ParseQRPayload deserializes a scanned payload. It reports false for
// malformed and for expired payloads; both are normal scan mismatches, not
// errors.
func ParseQRPayload(encoded string) (payload.Payload, bool) {
	p, err := payload.Deserialize(encoded)
	if err != nil {
		return payload.Payload{}, false
	}
	if p.Expired() {
		return payload.Payload{}, false
	}
	return p, true
}

// Connect joins the payload's rendezvous room. An active or in-flight
// connection is fully torn down first; no dual-session state exists. On
// transport failure the session moves to StateError and the error is both
// returned and emitted on the event stream.
func (s *Session) Connect(ctx context.Context, p payload.Payload) error {
	s.Disconnect()

	events := rendezvous.NewQueue[Event]()
	s.mu.Lock()
	s.st = StateConnecting
	s.events = events
	s.mu.Unlock()

	room, err := s.transport.Join(ctx, p.PeerInfo.RoomID, s.twinID)
	if err != nil {
		s.mu.Lock()
		s.st = StateError
		s.lastErr = err
		s.mu.Unlock()
		events.Push(Event{Type: EventError, Err: err})
		s.log.Warn("exchange: connect failed",
			zap.String("room", p.PeerInfo.RoomID), zap.Error(err))
		return fmt.Errorf("exchange: connect: %w", err)
	}

	s.mu.Lock()
	s.room = room
	s.roomID = p.PeerInfo.RoomID
	s.st = StateConnected
	s.lastErr = nil
	s.mu.Unlock()

	go s.forward(room, events)
	s.log.Info("exchange: connected",
		zap.String("room", p.PeerInfo.RoomID), zap.String("twin", s.twinID))
	return nil
}

// Host generates a payload, joins its room and broadcasts the local entry.
// The returned serialized payload is handed to the peer out-of-band.
func (s *Session) Host(ctx context.Context, profile state.Profile) (string, error) {
	encoded, p, err := s.GenerateQRPayload(profile)
	if err != nil {
		return "", err
	}
	if err := s.Connect(ctx, p); err != nil {
		return "", err
	}
	if err := s.Broadcast(profile); err != nil {
		return "", err
	}
	return encoded, nil
}

// Broadcast writes the local peer entry into the replicated map, keyed by
// the local twin id; re-broadcasting overwrites the previous entry. The
// preview (name and headline only) is encrypted under a key derived from a
// fresh random seed; the key never leaves session memory.
func (s *Session) Broadcast(profile state.Profile) error {
	s.mu.Lock()
	room, roomID := s.room, s.roomID
	connected := s.st == StateConnected
	s.mu.Unlock()
	if !connected || room == nil {
		return ErrNotConnected
	}

	kp, err := s.ids.KeyPair()
	if err != nil {
		return err
	}
	hash := s.embeddingHash(profile)
	sig, err := identity.Sign(hash, kp.Private)
	if err != nil {
		return err
	}
	pub, err := identity.ExportPublicKey(kp.Public)
	if err != nil {
		return err
	}

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return fmt.Errorf("exchange: preview seed: %w", err)
	}
	key, err := identity.DerivePreviewKey(seed, roomID)
	if err != nil {
		return err
	}
	previewJSON, err := json.Marshal(preview{Name: profile.Name, Headline: profile.Headline})
	if err != nil {
		return err
	}
	ciphertext, iv, err := identity.Encrypt(string(previewJSON), key)
	if err != nil {
		return err
	}

	entry := Entry{
		TwinID:           s.twinID,
		EmbeddingHash:    hash,
		Signature:        sig,
		PublicKey:        pub,
		EncryptedPreview: ciphertext,
		PreviewIV:        iv,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.previewKey = key
	s.mu.Unlock()

	if err := room.Set(s.twinID, raw); err != nil {
		return fmt.Errorf("exchange: broadcast: %w", err)
	}
	s.log.Debug("exchange: entry broadcast", zap.String("twin", s.twinID))
	return nil
}

// ReceivedEntries returns the decodable entries currently in the map. The
// local entry is not filtered out; callers exclude it by twin id if wanted.
func (s *Session) ReceivedEntries() []Entry {
	s.mu.Lock()
	room := s.room
	s.mu.Unlock()
	if room == nil {
		return nil
	}
	var entries []Entry
	for _, raw := range room.Values() {
		if e, ok := decodeEntry(raw); ok {
			entries = append(entries, e)
		}
	}
	return entries
}

// VerifiedEntries returns the received entries whose signatures verify.
func (s *Session) VerifiedEntries() []Entry {
	var verified []Entry
	for _, e := range s.ReceivedEntries() {
		if VerifyEntry(e) {
			verified = append(verified, e)
		}
	}
	return verified
}

// Events returns the current connection's event stream. The stream is
// created by Connect and closed by Disconnect (or connection loss); before
// any Connect it is already closed.
func (s *Session) Events() <-chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events == nil {
		return closedEvents
	}
	return s.events.Out()
}

// Disconnect tears down the transport and clears all session resources.
// Safe to call multiple times and from any state.
func (s *Session) Disconnect() {
	s.mu.Lock()
	room, events := s.room, s.events
	s.room = nil
	s.events = nil
	s.roomID = ""
	s.previewKey = nil
	s.st = StateDisconnected
	s.lastErr = nil
	s.mu.Unlock()

	if room != nil {
		_ = room.Close() // the forwarder drains and closes the event stream
	} else if events != nil {
		events.Close()
	}
}

// forward translates room events into session events in arrival order. When
// the room's stream ends without a local Disconnect, the session moves to
// StateError.
func (s *Session) forward(room rendezvous.Room, events *rendezvous.Queue[Event]) {
	for ev := range room.Events() {
		switch ev.Type {
		case rendezvous.PeerJoined:
			events.Push(Event{Type: EventPeerJoined, Peer: ev.Peer})
		case rendezvous.PeerLeft:
			events.Push(Event{Type: EventPeerLeft, Peer: ev.Peer})
		case rendezvous.EntryChanged:
			entry, ok := decodeEntry(ev.Value)
			if !ok {
				s.log.Debug("exchange: dropping undecodable entry", zap.String("key", ev.Key))
				continue
			}
			events.Push(Event{Type: EventEntry, Peer: entry.TwinID, Entry: &entry})
		}
	}

	s.mu.Lock()
	lost := s.room == room
	if lost {
		s.room = nil
		s.st = StateError
		s.lastErr = ErrConnectionLost
	}
	s.mu.Unlock()
	if lost {
		events.Push(Event{Type: EventError, Err: ErrConnectionLost})
		s.log.Warn("exchange: connection lost", zap.String("twin", s.twinID))
	}
	events.Close()
}

func (s *Session) embeddingHash(profile state.Profile) string {
	if len(profile.Embedding) > 0 {
		return identity.HashEmbedding(profile.Embedding)
	}
	// No embedding yet: hash the twin id so a payload can still be produced.
	return identity.Hash(s.twinID)
}

var closedEvents = func() <-chan Event {
	ch := make(chan Event)
	close(ch)
	return ch
}()
