package state

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrDeltaRejected = errors.New("state: delta twin id or base version does not match")

// ChangeKind tags one change record inside a delta.
type ChangeKind string

const (
	ChangeSkillsAdded      ChangeKind = "skills-added"
	ChangeSkillsRemoved    ChangeKind = "skills-removed"
	ChangeInterestsAdded   ChangeKind = "interests-added"
	ChangeInterestsRemoved ChangeKind = "interests-removed"
	ChangeHeadline         ChangeKind = "headline-changed"
	ChangeName             ChangeKind = "name-changed"
	ChangeEmbedding        ChangeKind = "embedding-updated"
)

// Change is one tagged change record. Values is used by the skills/interests
// kinds, Text by headline/name, Embedding by embedding-updated.
type Change struct {
	Kind      ChangeKind `json:"kind"`
	Values    []string   `json:"values,omitempty"`
	Text      string     `json:"text,omitempty"`
	Embedding []float64  `json:"embedding,omitempty"`
}

// Delta is an ordered bundle of profile changes computed against a specific
// base version. It applies atomically or not at all.
type Delta struct {
	ID          string   `json:"id"`
	TwinID      string   `json:"twinId"`
	BaseVersion uint64   `json:"baseVersion"`
	Changes     []Change `json:"changes"`
	Timestamp   int64    `json:"timestamp"` // unix milliseconds
}

// NewDelta builds a delta against the given base version.
func NewDelta(twinID string, baseVersion uint64, changes []Change) Delta {
	return Delta{
		ID:          uuid.NewString(),
		TwinID:      twinID,
		BaseVersion: baseVersion,
		Changes:     changes,
		Timestamp:   time.Now().UnixMilli(),
	}
}

// CanAccept reports whether d applies cleanly to s: twin ids match and the
// delta was computed against the current version.
func (s State) CanAccept(d Delta) bool {
	return s.TwinID == d.TwinID && s.Version == d.BaseVersion
}

// Apply materializes the delta's changes onto the profile in record order,
// then increments the version exactly once. A rejected delta leaves the
// state untouched; the caller should request a fresh delta against the
// current version.
func (s State) Apply(d Delta) (State, error) {
	if !s.CanAccept(d) {
		return s, ErrDeltaRejected
	}
	out := s.copy()
	for _, ch := range d.Changes {
		switch ch.Kind {
		case ChangeSkillsAdded:
			out.Profile.Skills = addAll(out.Profile.Skills, ch.Values)
		case ChangeSkillsRemoved:
			out.Profile.Skills = removeAll(out.Profile.Skills, ch.Values)
		case ChangeInterestsAdded:
			out.Profile.Interests = addAll(out.Profile.Interests, ch.Values)
		case ChangeInterestsRemoved:
			out.Profile.Interests = removeAll(out.Profile.Interests, ch.Values)
		case ChangeHeadline:
			out.Profile.Headline = ch.Text
		case ChangeName:
			out.Profile.Name = ch.Text
		case ChangeEmbedding:
			out.Profile.Embedding = append([]float64(nil), ch.Embedding...)
		}
	}
	out.Version++
	out.LastModified = time.Now().UnixMilli()
	return out, nil
}

func addAll(existing, values []string) []string {
	have := make(map[string]bool, len(existing))
	for _, s := range existing {
		have[s] = true
	}
	for _, v := range values {
		if !have[v] {
			existing = append(existing, v)
			have[v] = true
		}
	}
	return existing
}

func removeAll(existing, values []string) []string {
	drop := make(map[string]bool, len(values))
	for _, v := range values {
		drop[v] = true
	}
	kept := existing[:0]
	for _, s := range existing {
		if !drop[s] {
			kept = append(kept, s)
		}
	}
	return kept
}
