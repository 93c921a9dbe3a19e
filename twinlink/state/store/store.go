// Package store persists versioned profile state behind the on-device
// key-value contract. Records are JSON wrapped in an LZ4 frame when
// compression helps, stored verbatim when it does not.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pierrec/lz4/v4"

	"github.com/twinlink/twinlink/twinlink/state"
)

var (
	ErrCorruptRecord = errors.New("store: corrupt record")
)

// KV is the on-device key-value persistence contract. Implementations must
// be safe for concurrent use.
type KV interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
}

// Store persists state snapshots and delta logs per twin id.
type Store struct {
	kv KV
}

func New(kv KV) *Store {
	return &Store{kv: kv}
}

func stateKey(twinID string) string  { return "state/" + twinID }
func deltasKey(twinID string) string { return "deltas/" + twinID }

// SaveState writes the snapshot for its twin id, replacing any prior one.
func (s *Store) SaveState(st state.State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return s.kv.Put(stateKey(st.TwinID), encodeRecord(raw))
}

// LoadState reads the snapshot for twinID. The second return is false when
// no snapshot exists.
func (s *Store) LoadState(twinID string) (state.State, bool, error) {
	value, ok, err := s.kv.Get(stateKey(twinID))
	if err != nil || !ok {
		return state.State{}, false, err
	}
	raw, err := decodeRecord(value)
	if err != nil {
		return state.State{}, false, err
	}
	var st state.State
	if err := json.Unmarshal(raw, &st); err != nil {
		return state.State{}, false, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return st, true, nil
}

// DeleteState removes the snapshot and the delta log for twinID.
func (s *Store) DeleteState(twinID string) error {
	if err := s.kv.Delete(stateKey(twinID)); err != nil {
		return err
	}
	return s.kv.Delete(deltasKey(twinID))
}

// AppendDelta appends d to the delta log of its twin id.
func (s *Store) AppendDelta(d state.Delta) error {
	deltas, err := s.Deltas(d.TwinID)
	if err != nil {
		return err
	}
	deltas = append(deltas, d)
	raw, err := json.Marshal(deltas)
	if err != nil {
		return err
	}
	return s.kv.Put(deltasKey(d.TwinID), encodeRecord(raw))
}

// Deltas returns the delta log for twinID in append order.
func (s *Store) Deltas(twinID string) ([]state.Delta, error) {
	value, ok, err := s.kv.Get(deltasKey(twinID))
	if err != nil || !ok {
		return nil, err
	}
	raw, err := decodeRecord(value)
	if err != nil {
		return nil, err
	}
	var deltas []state.Delta
	if err := json.Unmarshal(raw, &deltas); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return deltas, nil
}

// ClearDeltas drops the delta log for twinID (after reconciliation).
func (s *Store) ClearDeltas(twinID string) error {
	return s.kv.Delete(deltasKey(twinID))
}

const (
	recordRaw = 0x00
	recordLZ4 = 0x01
)

var compressorPool = sync.Pool{
	New: func() interface{} { return lz4.NewWriter(nil) },
}

var decompressorPool = sync.Pool{
	New: func() interface{} { return lz4.NewReader(nil) },
}

// encodeRecord LZ4-compresses raw when that shrinks it; otherwise the record
// is stored verbatim behind the raw flag.
func encodeRecord(raw []byte) []byte {
	var buf bytes.Buffer
	w := compressorPool.Get().(*lz4.Writer)
	defer compressorPool.Put(w)
	w.Reset(&buf)

	if _, err := w.Write(raw); err == nil {
		if err := w.Close(); err == nil && buf.Len() < len(raw) {
			out := make([]byte, 1+buf.Len())
			out[0] = recordLZ4
			copy(out[1:], buf.Bytes())
			return out
		}
	}
	out := make([]byte, 1+len(raw))
	out[0] = recordRaw
	copy(out[1:], raw)
	return out
}

func decodeRecord(value []byte) ([]byte, error) {
	if len(value) == 0 {
		return nil, ErrCorruptRecord
	}
	body := value[1:]
	switch value[0] {
	case recordRaw:
		return body, nil
	case recordLZ4:
		r := decompressorPool.Get().(*lz4.Reader)
		defer decompressorPool.Put(r)
		r.Reset(bytes.NewReader(body))
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, r); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
		}
		return buf.Bytes(), nil
	default:
		return nil, ErrCorruptRecord
	}
}

// MemoryKV is an in-memory KV for tests and examples.
type MemoryKV struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{m: map[string][]byte{}}
}

func (kv *MemoryKV) Get(key string) ([]byte, bool, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	value, ok := kv.m[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

func (kv *MemoryKV) Put(key string, value []byte) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	kv.m[key] = append([]byte(nil), value...)
	return nil
}

func (kv *MemoryKV) Delete(key string) error {
	kv.mu.Lock()
	defer kv.mu.Unlock()
	delete(kv.m, key)
	return nil
}
