package relay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFramePayload limits a single relay frame payload.
const MaxFramePayload = 1 << 20 // 1 MiB

var (
	ErrFrameTooLarge = errors.New("relay: frame payload too large")
	ErrInvalidType   = errors.New("relay: invalid message type")
)

type MessageType uint8

const (
	MessageTypeJoin MessageType = iota + 1
	MessageTypeState
	MessageTypeSet
	MessageTypeEntry
	MessageTypePeerJoined
	MessageTypePeerLeft
	MessageTypeLeave
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeJoin:
		return "JOIN"
	case MessageTypeState:
		return "STATE"
	case MessageTypeSet:
		return "SET"
	case MessageTypeEntry:
		return "ENTRY"
	case MessageTypePeerJoined:
		return "PEER_JOINED"
	case MessageTypePeerLeft:
		return "PEER_LEFT"
	case MessageTypeLeave:
		return "LEAVE"
	default:
		return "UNKNOWN"
	}
}

// Frame is the wire container on the control stream.
// Format:
//
//	1 byte: type
//	4 bytes: payload length (big endian)
//	N bytes: payload (JSON)
type Frame struct {
	Type    MessageType
	Payload []byte
}

func WriteFrame(w io.Writer, f Frame) error {
	if f.Type == 0 {
		return ErrInvalidType
	}
	if len(f.Payload) > MaxFramePayload {
		return ErrFrameTooLarge
	}
	buf := make([]byte, 5+len(f.Payload))
	buf[0] = byte(f.Type)
	binary.BigEndian.PutUint32(buf[1:5], uint32(len(f.Payload)))
	copy(buf[5:], f.Payload)
	_, err := w.Write(buf)
	return err
}

func ReadFrame(r io.Reader) (Frame, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, err
	}
	mt := MessageType(header[0])
	if mt == 0 {
		return Frame{}, ErrInvalidType
	}
	payloadLen := binary.BigEndian.Uint32(header[1:5])
	if payloadLen > MaxFramePayload {
		return Frame{}, fmt.Errorf("%w: %d", ErrFrameTooLarge, payloadLen)
	}
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, err
	}
	return Frame{Type: mt, Payload: payload}, nil
}

// Frame payload bodies. []byte fields travel base64 inside the JSON.

type joinBody struct {
	RoomID string `json:"roomId"`
	Peer   string `json:"peer"`
}

type wireEntry struct {
	Value []byte `json:"value"`
	Nanos int64  `json:"nanos"`
	Peer  string `json:"peer"`
}

type stateBody struct {
	Peers   []string             `json:"peers,omitempty"`
	Entries map[string]wireEntry `json:"entries,omitempty"`
}

type setBody struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

type entryBody struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
	Nanos int64  `json:"nanos"`
	Peer  string `json:"peer"`
}

type presenceBody struct {
	Peer string `json:"peer"`
}
