// Package match ranks peers by profile similarity. Scores are integers in
// [0,100]: cosine similarity over embeddings when both sides carry one,
// attribute overlap otherwise.
package match

import (
	"errors"
	"math"
	"sort"
	"strings"
)

var ErrDimensionMismatch = errors.New("match: embedding dimensions differ")

// Item is one attribute set to be compared. Attributes are free-form tags
// (skills, interests); Embedding is optional.
type Item struct {
	ID         string
	Attributes []string
	Embedding  []float64
}

// Result is an ephemeral match ranking entry.
type Result struct {
	MatchedID        string
	Score            int
	SharedAttributes []string
}

// Score computes the compatibility score between two items together with
// their shared attributes.
//
// With embeddings on both sides, cosine similarity in [-1,1] is mapped
// linearly to [0,100]; a zero-norm vector yields similarity 0. Embeddings of
// unequal dimensionality are an error, never truncated. Without embeddings
// the fallback is min(100, 30 + 10*|shared|).
func Score(a, b Item) (int, []string, error) {
	shared := sharedAttributes(a.Attributes, b.Attributes)

	if len(a.Embedding) > 0 && len(b.Embedding) > 0 {
		if len(a.Embedding) != len(b.Embedding) {
			return 0, nil, ErrDimensionMismatch
		}
		sim := cosine(a.Embedding, b.Embedding)
		return int(math.Round(((sim + 1) / 2) * 100)), shared, nil
	}

	score := 30 + 10*len(shared)
	if score > 100 {
		score = 100
	}
	return score, shared, nil
}

// FindMatches scores every candidate against source and returns results
// sorted descending by score. Ties keep candidate iteration order. A
// non-positive limit returns all results.
func FindMatches(source Item, candidates []Item, limit int) ([]Result, error) {
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		score, shared, err := Score(source, c)
		if err != nil {
			return nil, err
		}
		results = append(results, Result{MatchedID: c.ID, Score: score, SharedAttributes: shared})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// sharedAttributes intersects case-insensitively, preserving the casing and
// order of b's entries.
func sharedAttributes(a, b []string) []string {
	have := make(map[string]bool, len(a))
	for _, s := range a {
		have[strings.ToLower(s)] = true
	}
	var shared []string
	seen := make(map[string]bool)
	for _, s := range b {
		key := strings.ToLower(s)
		if have[key] && !seen[key] {
			seen[key] = true
			shared = append(shared, s)
		}
	}
	return shared
}

func cosine(a, b []float64) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
