// Package normalize filters and deduplicates raw posts before they
// enter the extraction stage.
package normalize

import (
	"strings"

	"demandradar/internal/model"
)

const (
	// maxTitleLen drops spam-length titles.
	maxTitleLen = 200
	// minTitleWords drops low-signal titles ("Help", "Any ideas?").
	minTitleWords = 5
)

// Result reports what normalization kept and why items were dropped.
type Result struct {
	Input      int
	Kept       int
	Pinned     int
	LowSignal  int
	Duplicates int
}

// Normalizer applies the candidate-ranking filters in a fixed order:
// pinned/promoted drop, title-shape filters, then stable exact-title
// dedup keeping the first occurrence.
type Normalizer struct{}

// New creates a Normalizer.
func New() *Normalizer { return &Normalizer{} }

// Normalize filters posts, preserving input order.
func (n *Normalizer) Normalize(posts []model.RawPost) ([]model.RawPost, Result) {
	r := Result{Input: len(posts)}
	seen := make(map[string]struct{}, len(posts))

	kept := make([]model.RawPost, 0, len(posts))
	for _, p := range posts {
		if isPinned(p) {
			r.Pinned++
			continue
		}
		title := strings.TrimSpace(p.Title)
		if len(title) > maxTitleLen || len(strings.Fields(title)) < minTitleWords {
			r.LowSignal++
			continue
		}
		if _, dup := seen[title]; dup {
			r.Duplicates++
			continue
		}
		seen[title] = struct{}{}
		kept = append(kept, p)
	}

	r.Kept = len(kept)
	return kept, r
}

func isPinned(p model.RawPost) bool {
	for _, key := range []string{"stickied", "pinned", "promoted"} {
		if v, ok := p.Metadata[key].(bool); ok && v {
			return true
		}
	}
	return false
}
