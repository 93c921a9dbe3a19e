package optical

import (
	"encoding/base64"
	"encoding/json"
	"errors"

	"github.com/klauspost/reedsolomon"
)

var (
	ErrInvalidConfig   = errors.New("optical: invalid data/parity frame configuration")
	ErrInvalidFrame    = errors.New("optical: invalid frame")
	ErrFrameMismatch   = errors.New("optical: frame belongs to a different sequence")
	ErrTooManyLost     = errors.New("optical: too many frames lost, cannot recover")
	ErrNothingCaptured = errors.New("optical: no frames captured")
)

// Frame is one optical code in a multi-frame sequence.
type Frame struct {
	Index      int    `json:"index"`
	DataFrames int    `json:"dataFrames"`
	Total      int    `json:"total"`
	Size       int    `json:"size"` // original byte length before shard padding
	Shard      []byte `json:"shard"`
}

// Encode splits the serialized payload into dataFrames Reed-Solomon data
// shards plus parityFrames parity shards, one frame per shard.
func Encode(serialized string, dataFrames, parityFrames int) ([]Frame, error) {
	if dataFrames <= 0 || parityFrames <= 0 {
		return nil, ErrInvalidConfig
	}
	if serialized == "" {
		return nil, ErrInvalidFrame
	}
	enc, err := reedsolomon.New(dataFrames, parityFrames)
	if err != nil {
		return nil, ErrInvalidConfig
	}
	data := []byte(serialized)
	shards, err := enc.Split(data)
	if err != nil {
		return nil, err
	}
	if err := enc.Encode(shards); err != nil {
		return nil, err
	}

	frames := make([]Frame, len(shards))
	for i, shard := range shards {
		frames[i] = Frame{
			Index:      i,
			DataFrames: dataFrames,
			Total:      len(shards),
			Size:       len(data),
			Shard:      shard,
		}
	}
	return frames, nil
}

// EncodeFrame renders a frame as base64 JSON for a QR renderer.
func EncodeFrame(f Frame) (string, error) {
	raw, err := json.Marshal(f)
	if err != nil {
		return "", ErrInvalidFrame
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeFrame parses a scanned frame produced by EncodeFrame.
func DecodeFrame(encoded string) (Frame, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Frame{}, ErrInvalidFrame
	}
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, ErrInvalidFrame
	}
	if f.DataFrames <= 0 || f.Total <= f.DataFrames || f.Index < 0 || f.Index >= f.Total || f.Size <= 0 {
		return Frame{}, ErrInvalidFrame
	}
	return f, nil
}

// Collector accumulates scanned frames until enough are held to reassemble.
// Frames may arrive in any order; duplicates are ignored.
type Collector struct {
	dataFrames int
	total      int
	size       int
	shards     [][]byte
	held       int
}

func NewCollector() *Collector {
	return &Collector{}
}

// Add records a captured frame. The first frame fixes the sequence
// parameters; frames from another sequence are rejected.
func (c *Collector) Add(f Frame) error {
	if f.DataFrames <= 0 || f.Total <= f.DataFrames || f.Index < 0 || f.Index >= f.Total || f.Size <= 0 || len(f.Shard) == 0 {
		return ErrInvalidFrame
	}
	if c.shards == nil {
		c.dataFrames = f.DataFrames
		c.total = f.Total
		c.size = f.Size
		c.shards = make([][]byte, f.Total)
	} else if f.DataFrames != c.dataFrames || f.Total != c.total || f.Size != c.size {
		return ErrFrameMismatch
	}
	if c.shards[f.Index] == nil {
		c.shards[f.Index] = append([]byte(nil), f.Shard...)
		c.held++
	}
	return nil
}

// Complete reports whether enough frames are held to reassemble.
func (c *Collector) Complete() bool {
	return c.shards != nil && c.held >= c.dataFrames
}

// Reassemble reconstructs any missing data shards and returns the original
// serialized payload.
func (c *Collector) Reassemble() (string, error) {
	if c.shards == nil {
		return "", ErrNothingCaptured
	}
	enc, err := reedsolomon.New(c.dataFrames, c.total-c.dataFrames)
	if err != nil {
		return "", ErrInvalidConfig
	}
	shards := make([][]byte, c.total)
	copy(shards, c.shards)
	if err := enc.ReconstructData(shards); err != nil {
		if errors.Is(err, reedsolomon.ErrTooFewShards) {
			return "", ErrTooManyLost
		}
		return "", err
	}

	data := make([]byte, 0, c.size)
	for i := 0; i < c.dataFrames && len(data) < c.size; i++ {
		remaining := c.size - len(data)
		if remaining >= len(shards[i]) {
			data = append(data, shards[i]...)
		} else {
			data = append(data, shards[i][:remaining]...)
		}
	}
	return string(data), nil
}
