// Package state models the versioned profile snapshot kept per device:
// a monotonically increasing version, a per-node vector clock for detecting
// concurrent edits across a user's own devices, and deltas that apply
// atomically against a specific base version.
package state

// Clock is a vector clock: node id -> change count. Keys exist only for
// nodes that have made changes.
type Clock map[string]uint64

// Ordering is the result of comparing two clocks. Comparison is a strict
// partial order: identical clocks are Equal (not Concurrent), and clocks
// where neither dominates are Concurrent and must be surfaced to the caller
// for explicit reconciliation.
type Ordering int

const (
	OrderingEqual Ordering = iota
	OrderingBefore
	OrderingAfter
	OrderingConcurrent
)

func (o Ordering) String() string {
	switch o {
	case OrderingEqual:
		return "equal"
	case OrderingBefore:
		return "before"
	case OrderingAfter:
		return "after"
	case OrderingConcurrent:
		return "concurrent"
	default:
		return "unknown"
	}
}

// Compare reports how c relates to other: OrderingAfter when c dominates,
// OrderingBefore when other dominates, OrderingEqual for identical clocks,
// OrderingConcurrent when neither dominates.
func (c Clock) Compare(other Clock) Ordering {
	greater, less := false, false
	for node := range union(c, other) {
		a, b := c[node], other[node]
		if a > b {
			greater = true
		} else if a < b {
			less = true
		}
	}
	switch {
	case greater && less:
		return OrderingConcurrent
	case greater:
		return OrderingAfter
	case less:
		return OrderingBefore
	default:
		return OrderingEqual
	}
}

// Merge returns the componentwise maximum over the union of keys.
func (c Clock) Merge(other Clock) Clock {
	merged := make(Clock, len(c)+len(other))
	for node := range union(c, other) {
		a, b := c[node], other[node]
		if a > b {
			merged[node] = a
		} else {
			merged[node] = b
		}
	}
	return merged
}

// Tick returns a copy of c with the count for nodeID incremented, creating
// the entry at 1 if absent. The receiver is not mutated.
func (c Clock) Tick(nodeID string) Clock {
	out := make(Clock, len(c)+1)
	for node, count := range c {
		out[node] = count
	}
	out[nodeID]++
	return out
}

func union(a, b Clock) map[string]struct{} {
	nodes := make(map[string]struct{}, len(a)+len(b))
	for node := range a {
		nodes[node] = struct{}{}
	}
	for node := range b {
		nodes[node] = struct{}{}
	}
	return nodes
}
