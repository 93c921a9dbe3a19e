package state

import "testing"

func TestCompareOrdering(t *testing.T) {
	a := Clock{"phone": 2, "laptop": 1}
	b := Clock{"phone": 3, "laptop": 1}

	if got := a.Compare(b); got != OrderingBefore {
		t.Fatalf("a vs b: %v, want before", got)
	}
	if got := b.Compare(a); got != OrderingAfter {
		t.Fatalf("b vs a: %v, want after (antisymmetry)", got)
	}

	// Convention: identical clocks compare Equal, never Concurrent.
	if got := a.Compare(Clock{"phone": 2, "laptop": 1}); got != OrderingEqual {
		t.Fatalf("identical clocks: %v, want equal", got)
	}
	if got := (Clock{}).Compare(Clock{}); got != OrderingEqual {
		t.Fatalf("empty clocks: %v, want equal", got)
	}

	c := Clock{"phone": 3}
	d := Clock{"laptop": 1}
	if got := c.Compare(d); got != OrderingConcurrent {
		t.Fatalf("disjoint clocks: %v, want concurrent", got)
	}
	if got := d.Compare(c); got != OrderingConcurrent {
		t.Fatalf("disjoint clocks reversed: %v, want concurrent", got)
	}

	// A missing key counts as zero.
	if got := (Clock{"phone": 1}).Compare(Clock{}); got != OrderingAfter {
		t.Fatalf("clock vs empty: %v, want after", got)
	}
}

func TestMerge(t *testing.T) {
	a := Clock{"phone": 2, "laptop": 5}
	b := Clock{"phone": 4, "tablet": 1}
	merged := a.Merge(b)

	want := Clock{"phone": 4, "laptop": 5, "tablet": 1}
	if len(merged) != len(want) {
		t.Fatalf("merged %v, want %v", merged, want)
	}
	for node, count := range want {
		if merged[node] != count {
			t.Fatalf("merged[%s] = %d, want %d", node, merged[node], count)
		}
	}
	if a["phone"] != 2 || len(b) != 2 {
		t.Fatalf("merge mutated its inputs")
	}
}

func TestTick(t *testing.T) {
	a := Clock{}
	b := a.Tick("phone")
	if b["phone"] != 1 {
		t.Fatalf("tick on absent entry should create it at 1")
	}
	c := b.Tick("phone")
	if c["phone"] != 2 || b["phone"] != 1 || len(a) != 0 {
		t.Fatalf("tick must copy, not mutate")
	}
}
