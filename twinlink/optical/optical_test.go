package optical

import (
	"errors"
	"strings"
	"testing"
)

const testPayload = "eyJpZCI6ImExYjJjMyIsInZlcnNpb24iOiIxLjAifQ=="

func TestEncodeReassembleAllFrames(t *testing.T) {
	frames, err := Encode(testPayload, 4, 2)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(frames) != 6 {
		t.Fatalf("expected 6 frames, got %d", len(frames))
	}

	c := NewCollector()
	for _, f := range frames {
		if err := c.Add(f); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if !c.Complete() {
		t.Fatalf("collector should be complete with all frames")
	}
	got, err := c.Reassemble()
	if err != nil {
		t.Fatalf("Reassemble: %v", err)
	}
	if got != testPayload {
		t.Fatalf("reassembled %q, want %q", got, testPayload)
	}
}

func TestReassembleWithLostFrames(t *testing.T) {
	long := strings.Repeat(testPayload, 8)
	frames, err := Encode(long, 4, 2)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Drop two data frames; parity must cover them. Feed out of order.
	c := NewCollector()
	for _, i := range []int{5, 2, 4, 3} {
		if err := c.Add(frames[i]); err != nil {
			t.Fatalf("Add frame %d: %v", i, err)
		}
	}
	if err := c.Add(frames[2]); err != nil { // duplicate, ignored
		t.Fatalf("Add duplicate: %v", err)
	}
	if !c.Complete() {
		t.Fatalf("4 distinct frames of a 4+2 sequence should be complete")
	}
	got, err := c.Reassemble()
	if err != nil {
		t.Fatalf("Reassemble: %v", err)
	}
	if got != long {
		t.Fatalf("reassembled payload mismatch")
	}
}

func TestReassembleTooManyLost(t *testing.T) {
	frames, err := Encode(testPayload, 4, 2)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	c := NewCollector()
	for _, i := range []int{0, 1, 5} {
		if err := c.Add(frames[i]); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if c.Complete() {
		t.Fatalf("3 frames of a 4+2 sequence must not be complete")
	}
	if _, err := c.Reassemble(); !errors.Is(err, ErrTooManyLost) {
		t.Fatalf("expected ErrTooManyLost, got %v", err)
	}
}

func TestCollectorRejectsForeignFrames(t *testing.T) {
	a, _ := Encode(testPayload, 4, 2)
	b, _ := Encode(strings.Repeat(testPayload, 2), 4, 2)

	c := NewCollector()
	if err := c.Add(a[0]); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := c.Add(b[1]); !errors.Is(err, ErrFrameMismatch) {
		t.Fatalf("expected ErrFrameMismatch, got %v", err)
	}
}

func TestFrameWireRoundTrip(t *testing.T) {
	frames, _ := Encode(testPayload, 4, 2)
	encoded, err := EncodeFrame(frames[3])
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	got, err := DecodeFrame(encoded)
	if err != nil {
		t.Fatalf("DecodeFrame: %v", err)
	}
	if got.Index != 3 || got.Total != 6 || got.Size != len(testPayload) {
		t.Fatalf("frame header mismatch: %+v", got)
	}
	if _, err := DecodeFrame("@@@"); !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("expected ErrInvalidFrame for garbage")
	}
}

func TestEncodeValidation(t *testing.T) {
	if _, err := Encode(testPayload, 0, 2); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for zero data frames")
	}
	if _, err := Encode("", 4, 2); !errors.Is(err, ErrInvalidFrame) {
		t.Fatalf("expected ErrInvalidFrame for empty payload")
	}
}
