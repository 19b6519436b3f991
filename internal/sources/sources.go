// Package sources implements the per-platform adapters that fetch raw
// posts. Each adapter parses a different response shape but emits the
// same RawPost schema.
package sources

import (
	"context"
	"time"

	"demandradar/internal/model"
)

// Adapter fetches a batch of posts for one selector (a subreddit, an
// app id, a store category). Implementations do network I/O only and
// never mutate shared state.
type Adapter interface {
	// Name identifies the adapter in logs and skip reports.
	Name() string
	// FetchBatch returns up to limit posts for the selector. Fewer
	// posts than requested is not an error; it means the source had
	// fewer items.
	FetchBatch(ctx context.Context, selector string, limit int) ([]model.RawPost, error)
}

// Task pairs an adapter with one selector to fetch. The orchestrator
// fans out one task per pair.
type Task struct {
	Adapter  Adapter
	Selector string
}

// nowFunc is swappable in tests that pin ingestion time.
var nowFunc = time.Now

// timestampOr returns t, or the ingestion time when the source omitted
// a usable timestamp.
func timestampOr(t *time.Time, now time.Time) time.Time {
	if t == nil || t.IsZero() {
		return now
	}
	return *t
}

// truncate caps posts at limit without under-fetching.
func truncate(posts []model.RawPost, limit int) []model.RawPost {
	if limit > 0 && len(posts) > limit {
		return posts[:limit]
	}
	return posts
}
