package state

import "time"

// Profile is the materialized attribute set of a twin.
type Profile struct {
	Name      string    `json:"name"`
	Headline  string    `json:"headline"`
	Skills    []string  `json:"skills,omitempty"`
	Interests []string  `json:"interests,omitempty"`
	Embedding []float64 `json:"embedding,omitempty"`
}

func (p Profile) clone() Profile {
	p.Skills = append([]string(nil), p.Skills...)
	p.Interests = append([]string(nil), p.Interests...)
	p.Embedding = append([]float64(nil), p.Embedding...)
	return p
}

// State is a versioned profile snapshot. It is owned exclusively by the
// local device for its twin id and changed only through whole-state
// operations; all methods return a new value and leave the receiver intact.
type State struct {
	TwinID       string  `json:"twinId"`
	Version      uint64  `json:"version"`
	Clock        Clock   `json:"vectorClock"`
	Profile      Profile `json:"profile"`
	LastModified int64   `json:"lastModified"` // unix milliseconds
}

// NewState creates the initial snapshot: version 0, empty vector clock.
func NewState(twinID string, profile Profile) State {
	return State{
		TwinID:       twinID,
		Version:      0,
		Clock:        Clock{},
		Profile:      profile.clone(),
		LastModified: time.Now().UnixMilli(),
	}
}

// IncrementVersion bumps the version and refreshes the modification time.
// The vector clock is untouched.
func (s State) IncrementVersion() State {
	out := s.copy()
	out.Version++
	out.LastModified = time.Now().UnixMilli()
	return out
}

// TouchClock increments this node's entry in the vector clock.
func (s State) TouchClock(nodeID string) State {
	out := s.copy()
	out.Clock = s.Clock.Tick(nodeID)
	return out
}

func (s State) copy() State {
	out := s
	out.Clock = make(Clock, len(s.Clock))
	for node, count := range s.Clock {
		out.Clock[node] = count
	}
	out.Profile = s.Profile.clone()
	return out
}
