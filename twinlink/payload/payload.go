// Package payload defines the expiring, signed discovery payload exchanged
// out-of-band (typically as an optical code) to bootstrap a peer exchange.
package payload

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	// Version is the current payload format tag.
	Version = "1.0"
	// DefaultLifetime is the validity window unless overridden.
	DefaultLifetime = 30 * time.Minute
)

var (
	ErrInvalidPayload = errors.New("payload: invalid discovery payload")
	ErrPayloadExpired = errors.New("payload: discovery payload expired")
)

// PeerInfo carries the rendezvous coordinates of the hosting peer.
type PeerInfo struct {
	RoomID    string `json:"roomId"`
	ExpiresAt int64  `json:"expiresAt"` // unix milliseconds
}

// Payload is the discovery record. It is immutable once created: a payload
// is never mutated, only replaced.
type Payload struct {
	ID                     string   `json:"id"`
	Version                string   `json:"version"`
	EncryptedEmbeddingHash string   `json:"encryptedEmbeddingHash"`
	Signature              string   `json:"signature"`
	PublicKey              string   `json:"publicKey"`
	PeerInfo               PeerInfo `json:"peerInfo"`
	CreatedAt              int64    `json:"createdAt"` // unix milliseconds
}

// New builds a payload valid for the given lifetime. A zero lifetime means
// DefaultLifetime; a negative lifetime produces an already-expired payload.
func New(embeddingHash, signature, publicKey, roomID string, lifetime time.Duration) Payload {
	if lifetime == 0 {
		lifetime = DefaultLifetime
	}
	now := time.Now()
	return Payload{
		ID:                     uuid.NewString(),
		Version:                Version,
		EncryptedEmbeddingHash: embeddingHash,
		Signature:              signature,
		PublicKey:              publicKey,
		PeerInfo: PeerInfo{
			RoomID:    roomID,
			ExpiresAt: now.Add(lifetime).UnixMilli(),
		},
		CreatedAt: now.UnixMilli(),
	}
}

// Validate checks the structural shape only: required fields present and
// non-empty, room id well formed. It does not check expiry or signatures.
func (p Payload) Validate() error {
	switch {
	case p.ID == "",
		p.Version == "",
		p.EncryptedEmbeddingHash == "",
		p.Signature == "",
		p.PublicKey == "",
		p.PeerInfo.ExpiresAt == 0,
		p.CreatedAt == 0:
		return ErrInvalidPayload
	}
	if !validRoomID(p.PeerInfo.RoomID) {
		return ErrInvalidPayload
	}
	return nil
}

// Expired reports whether the payload's validity window has passed.
func (p Payload) Expired() bool {
	return time.Now().UnixMilli() > p.PeerInfo.ExpiresAt
}

// Serialize encodes the payload as base64-wrapped canonical JSON, suitable
// for optical transfer.
func (p Payload) Serialize() (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return "", ErrInvalidPayload
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Deserialize reverses Serialize. Malformed encodings and structurally
// invalid payloads yield ErrInvalidPayload; expiry is not checked here.
func Deserialize(encoded string) (Payload, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Payload{}, ErrInvalidPayload
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, ErrInvalidPayload
	}
	if err := p.Validate(); err != nil {
		return Payload{}, err
	}
	return p, nil
}

func validRoomID(s string) bool {
	if len(s) != 32 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
