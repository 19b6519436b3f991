package competitive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"demandradar/internal/config"
	"demandradar/internal/model"
)

// fakeSearcher returns canned competitors and counts calls.
type fakeSearcher struct {
	name    string
	results []model.Competitor
	err     error
	calls   int
}

func (f *fakeSearcher) Name() string { return f.name }

func (f *fakeSearcher) SearchCompetitors(_ context.Context, _ []string, _ int) ([]model.Competitor, error) {
	f.calls++
	return f.results, f.err
}

func testEnricher(t *testing.T, appStore, chromeStore Searcher) *Enricher {
	t.Helper()
	cache, err := NewCache(t.TempDir(), 24*time.Hour)
	if err != nil {
		t.Fatalf("creating cache: %v", err)
	}
	return NewEnricher(config.Competitive{}, appStore, chromeStore, cache)
}

func TestDeriveKeywords(t *testing.T) {
	e := testEnricher(t, nil, nil)

	tests := []struct {
		name  string
		title string
		tags  []string
		want  []string
	}{
		{
			name:  "title words and tags",
			title: "Need an app for tracking habits",
			tags:  []string{"habits", "productivity"},
			want:  []string{"need", "tracking", "habits", "productivity"},
		},
		{
			name:  "short words dropped",
			title: "is it me or do all of us",
			want:  []string{"app", "tool"},
		},
		{
			name:  "punctuation trimmed and case folded",
			title: `"Calendar" (sync!) Sucks, honestly.`,
			want:  []string{"calendar", "sync", "sucks", "honestly"},
		},
		{
			name:  "capped at five",
			title: "seven fairly long distinct keywords appear within this title",
			want:  []string{"seven", "fairly", "long", "distinct", "keywords"},
		},
		{
			name:  "duplicates collapse",
			title: "Notes notes NOTES everywhere",
			tags:  []string{"notes"},
			want:  []string{"notes", "everywhere"},
		},
	}

	for _, tt := range tests {
		got := e.DeriveKeywords(tt.title, tt.tags)
		if len(got) != len(tt.want) {
			t.Errorf("%s: keywords = %v, want %v", tt.name, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s: keywords = %v, want %v", tt.name, got, tt.want)
				break
			}
		}
	}
}

func TestEnrichMergesBothStores(t *testing.T) {
	app := &fakeSearcher{name: "appstore", results: []model.Competitor{
		{ID: "a1", Name: "HabitKit", Rating: 4.8, Store: "appstore"},
		{ID: "a2", Name: "Streaks", Rating: 4.1, Store: "appstore"},
	}}
	chrome := &fakeSearcher{name: "chromestore", results: []model.Competitor{
		{ID: "c1", Name: "Habit Tracker", Rating: 3.6, Store: "chromestore"},
	}}
	e := testEnricher(t, app, chrome)

	post := model.RawPost{Title: "Need a habit tracking tool"}
	data, err := e.Enrich(context.Background(), post, model.Opportunity{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if data.AppCount != 3 {
		t.Errorf("expected 3 competitors, got %d", data.AppCount)
	}
	// (4.8 + 4.1 + 3.6) / 3 = 4.166... rounds to 4.2
	if data.AvgRating != 4.2 {
		t.Errorf("avg rating = %v, want 4.2", data.AvgRating)
	}
	if len(data.Competitors) != 3 || data.Competitors[0].ID != "a1" {
		t.Errorf("expected rating-sorted competitors, got %+v", data.Competitors)
	}
}

func TestEnrichUsesCacheWithinTTL(t *testing.T) {
	app := &fakeSearcher{name: "appstore", results: []model.Competitor{
		{ID: "a1", Name: "One", Rating: 4.0},
	}}
	e := testEnricher(t, app, nil)

	post := model.RawPost{Title: "Need a habit tracking tool"}
	if _, err := e.Enrich(context.Background(), post, model.Opportunity{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.Enrich(context.Background(), post, model.Opportunity{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if app.calls != 1 {
		t.Errorf("expected a single store search for a cached keyword set, got %d", app.calls)
	}
}

func TestEnrichRefetchesExpiredEntry(t *testing.T) {
	dir := t.TempDir()
	cache, err := NewCache(dir, 24*time.Hour)
	if err != nil {
		t.Fatalf("creating cache: %v", err)
	}
	app := &fakeSearcher{name: "appstore", results: []model.Competitor{
		{ID: "a1", Name: "One", Rating: 4.0},
	}}
	e := NewEnricher(config.Competitive{}, app, nil, cache)

	post := model.RawPost{Title: "Need a habit tracking tool"}
	keywords := e.DeriveKeywords(post.Title, nil)

	// Plant an entry written 25 hours ago.
	stale, _ := json.Marshal(map[string]any{
		"cached_at": time.Now().Add(-25 * time.Hour),
		"data":      model.CompetitiveData{AppCount: 99},
	})
	if err := os.WriteFile(filepath.Join(dir, Key(keywords)+".json"), stale, 0o644); err != nil {
		t.Fatalf("writing stale entry: %v", err)
	}

	data, err := e.Enrich(context.Background(), post, model.Opportunity{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if app.calls != 1 {
		t.Errorf("expected stale entry to trigger a refetch, got %d calls", app.calls)
	}
	if data.AppCount != 1 {
		t.Errorf("expected fresh data, got %+v", data)
	}
}

func TestEnrichSurvivesOneStoreFailure(t *testing.T) {
	app := &fakeSearcher{name: "appstore", err: errors.New("rate limited")}
	chrome := &fakeSearcher{name: "chromestore", results: []model.Competitor{
		{ID: "c1", Name: "Only Hit", Rating: 4.4},
	}}
	e := testEnricher(t, app, chrome)

	data, err := e.Enrich(context.Background(), model.RawPost{Title: "habit tracking apps"}, model.Opportunity{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if data.AppCount != 1 || data.Competitors[0].ID != "c1" {
		t.Errorf("expected surviving store's results, got %+v", data)
	}
}

func TestEnrichFailsWhenAllStoresFail(t *testing.T) {
	app := &fakeSearcher{name: "appstore", err: errors.New("down")}
	chrome := &fakeSearcher{name: "chromestore", err: errors.New("also down")}
	e := testEnricher(t, app, chrome)

	if _, err := e.Enrich(context.Background(), model.RawPost{Title: "habit tracking apps"}, model.Opportunity{}); err == nil {
		t.Error("expected error when every store search fails")
	}
}

func TestSummarizeDeduplicatesAndCaps(t *testing.T) {
	var competitors []model.Competitor
	for i := 0; i < 15; i++ {
		competitors = append(competitors, model.Competitor{
			ID:     fmt.Sprintf("id%d", i),
			Rating: float64(i%5) + 0.5,
		})
	}
	competitors = append(competitors, model.Competitor{ID: "id3", Rating: 1.0}) // duplicate
	competitors = append(competitors, model.Competitor{ID: "", Rating: 5.0})   // no id

	data := summarize(competitors)
	if data.AppCount != 15 {
		t.Errorf("expected 15 unique competitors, got %d", data.AppCount)
	}
	if len(data.Competitors) != 10 {
		t.Errorf("expected top list capped at 10, got %d", len(data.Competitors))
	}
	for i := 1; i < len(data.Competitors); i++ {
		if data.Competitors[i].Rating > data.Competitors[i-1].Rating {
			t.Errorf("competitors not sorted by rating: %+v", data.Competitors)
			break
		}
	}
}

func TestSummarizeEmpty(t *testing.T) {
	data := summarize(nil)
	if data.AppCount != 0 || data.AvgRating != 0 || data.Competitors != nil {
		t.Errorf("unexpected summary for empty input: %+v", data)
	}
}

func TestKeyIsOrderInsensitive(t *testing.T) {
	a := Key([]string{"notes", "offline", "sync"})
	b := Key([]string{"sync", "notes", "offline"})
	if a != b {
		t.Errorf("keys differ for reordered keywords: %s vs %s", a, b)
	}
	if a == Key([]string{"notes", "offline"}) {
		t.Error("keys collide for different keyword sets")
	}
}
