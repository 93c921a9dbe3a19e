package store

import (
	"crypto/rand"
	"reflect"
	"strings"
	"testing"

	"github.com/twinlink/twinlink/twinlink/state"
)

func TestStateRoundTrip(t *testing.T) {
	s := New(NewMemoryKV())

	st := state.NewState("twin-a", state.Profile{
		Name:      "Anna",
		Headline:  strings.Repeat("distributed systems ", 40),
		Skills:    []string{"go", "rust"},
		Embedding: []float64{1, 0, 0.5},
	})
	st = st.TouchClock("phone").IncrementVersion()

	if err := s.SaveState(st); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	got, ok, err := s.LoadState("twin-a")
	if err != nil {
		t.Fatalf("LoadState: %v", err)
	}
	if !ok {
		t.Fatalf("expected snapshot to exist")
	}
	if !reflect.DeepEqual(got, st) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, st)
	}

	if _, ok, err := s.LoadState("twin-missing"); err != nil || ok {
		t.Fatalf("missing twin: ok=%v err=%v", ok, err)
	}
}

func TestDeltaLog(t *testing.T) {
	s := New(NewMemoryKV())

	d1 := state.NewDelta("twin-a", 0, []state.Change{{Kind: state.ChangeName, Text: "Anna"}})
	d2 := state.NewDelta("twin-a", 1, []state.Change{{Kind: state.ChangeHeadline, Text: "p2p"}})
	if err := s.AppendDelta(d1); err != nil {
		t.Fatalf("AppendDelta: %v", err)
	}
	if err := s.AppendDelta(d2); err != nil {
		t.Fatalf("AppendDelta: %v", err)
	}

	deltas, err := s.Deltas("twin-a")
	if err != nil {
		t.Fatalf("Deltas: %v", err)
	}
	if len(deltas) != 2 || deltas[0].ID != d1.ID || deltas[1].ID != d2.ID {
		t.Fatalf("delta log order wrong: %+v", deltas)
	}

	if err := s.ClearDeltas("twin-a"); err != nil {
		t.Fatalf("ClearDeltas: %v", err)
	}
	deltas, err = s.Deltas("twin-a")
	if err != nil || len(deltas) != 0 {
		t.Fatalf("expected empty log after clear, got %v (%v)", deltas, err)
	}
}

func TestRecordCompression(t *testing.T) {
	compressible := []byte(strings.Repeat(`{"skill":"go"},`, 200))
	rec := encodeRecord(compressible)
	if rec[0] != recordLZ4 {
		t.Fatalf("repetitive record should be stored compressed")
	}
	if len(rec) >= len(compressible) {
		t.Fatalf("compressed record not smaller: %d vs %d", len(rec), len(compressible))
	}
	got, err := decodeRecord(rec)
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	if string(got) != string(compressible) {
		t.Fatalf("compressed round trip mismatch")
	}

	incompressible := make([]byte, 64)
	if _, err := rand.Read(incompressible); err != nil {
		t.Fatalf("rand: %v", err)
	}
	rec = encodeRecord(incompressible)
	if rec[0] != recordRaw {
		t.Fatalf("random record should fall back to raw storage")
	}
	got, err = decodeRecord(rec)
	if err != nil || string(got) != string(incompressible) {
		t.Fatalf("raw round trip mismatch (%v)", err)
	}

	if _, err := decodeRecord(nil); err == nil {
		t.Fatalf("expected error for empty record")
	}
	if _, err := decodeRecord([]byte{0x7f, 1, 2}); err == nil {
		t.Fatalf("expected error for unknown record flag")
	}
}
