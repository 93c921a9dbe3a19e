package payload

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testRoom = "0123456789abcdef0123456789abcdef"

func validPayload(lifetime time.Duration) Payload {
	return New("hash-b64", "sig-b64", "pub-b64", testRoom, lifetime)
}

func TestSerializeRoundTrip(t *testing.T) {
	p := validPayload(0)
	encoded, err := p.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	got, err := Deserialize(encoded)
	if err != nil {
		t.Fatalf("Deserialize: %v", err)
	}
	if got != p {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, p)
	}
	if got.Version != Version {
		t.Fatalf("version tag %q, want %q", got.Version, Version)
	}
}

func TestExpiry(t *testing.T) {
	if validPayload(-time.Minute).Expired() != true {
		t.Fatalf("negative lifetime payload should be expired immediately")
	}
	p := validPayload(30 * time.Minute)
	if p.Expired() {
		t.Fatalf("fresh payload should not be expired")
	}
	if p.PeerInfo.ExpiresAt <= p.CreatedAt {
		t.Fatalf("expiresAt must be after createdAt")
	}
}

func TestValidateRejectsMissingFields(t *testing.T) {
	mutations := []func(*Payload){
		func(p *Payload) { p.ID = "" },
		func(p *Payload) { p.Version = "" },
		func(p *Payload) { p.EncryptedEmbeddingHash = "" },
		func(p *Payload) { p.Signature = "" },
		func(p *Payload) { p.PublicKey = "" },
		func(p *Payload) { p.PeerInfo.RoomID = "" },
		func(p *Payload) { p.PeerInfo.RoomID = strings.ToUpper(testRoom) },
		func(p *Payload) { p.PeerInfo.RoomID = testRoom[:31] },
		func(p *Payload) { p.PeerInfo.ExpiresAt = 0 },
		func(p *Payload) { p.CreatedAt = 0 },
	}
	for i, mutate := range mutations {
		p := validPayload(0)
		mutate(&p)
		if err := p.Validate(); !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("mutation %d: expected ErrInvalidPayload, got %v", i, err)
		}
	}
}

func TestDeserializeRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "not base64 at all!!!", "aGVsbG8=", "e30="} {
		if _, err := Deserialize(in); !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("Deserialize(%q): expected ErrInvalidPayload, got %v", in, err)
		}
	}
}
