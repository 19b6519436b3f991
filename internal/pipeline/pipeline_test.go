package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"demandradar/internal/competitive"
	"demandradar/internal/config"
	"demandradar/internal/extract"
	"demandradar/internal/model"
	"demandradar/internal/sources"
)

// fakeAdapter returns canned posts or a fixed error.
type fakeAdapter struct {
	name  string
	posts []model.RawPost
	err   error
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) FetchBatch(_ context.Context, _ string, limit int) ([]model.RawPost, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && len(f.posts) > limit {
		return f.posts[:limit], nil
	}
	return f.posts, nil
}

// stubCompleter always returns the same extraction JSON.
type stubCompleter struct{}

func (stubCompleter) Complete(_ context.Context, _, _ string, _ int) (string, error) {
	return `{"title": "stub idea", "pain_summary": "pain", "unmet_need": true, "solo_doable": true, "monetizable": true, "tags": ["stub"]}`, nil
}

// fixedSearcher returns the same competitor set for every query.
type fixedSearcher struct {
	competitors []model.Competitor
}

func (fixedSearcher) Name() string { return "fixed" }

func (f fixedSearcher) SearchCompetitors(context.Context, []string, int) ([]model.Competitor, error) {
	return f.competitors, nil
}

func testPosts(n int, score int) []model.RawPost {
	var posts []model.RawPost
	for i := 0; i < n; i++ {
		posts = append(posts, model.RawPost{
			ID:           fmt.Sprintf("p%d", i),
			Title:        fmt.Sprintf("Distinct well formed title number %d", i),
			Source:       "test",
			Score:        score + i*10,
			CreatedAt:    time.Now().AddDate(0, 0, -1),
			CommentCount: 5,
		})
	}
	return posts
}

func testPipeline(t *testing.T, tasks []sources.Task) *Pipeline {
	t.Helper()
	cfg := config.Default()
	return NewForTesting(cfg, tasks, nil, nil)
}

func TestRunIsolatesSourceFailures(t *testing.T) {
	good := &fakeAdapter{name: "good", posts: testPosts(3, 50)}
	bad := &fakeAdapter{name: "bad", err: errors.New("upstream 503")}

	p := testPipeline(t, []sources.Task{
		{Adapter: good, Selector: "a"},
		{Adapter: bad, Selector: "b"},
	})

	result, err := p.Run(context.Background(), Options{SkipExtraction: true, SkipCompetitive: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fetch := result.Steps[0]
	if fetch.Name != "Fetching" || fetch.Attempted != 2 || fetch.Succeeded != 1 {
		t.Errorf("unexpected fetch step: %+v", fetch)
	}
	if len(result.Posts) != 3 {
		t.Errorf("expected the healthy source's posts, got %d", len(result.Posts))
	}
}

func TestRunFailsWhenNothingSurvives(t *testing.T) {
	// Titles under five words are all filtered out.
	thin := &fakeAdapter{name: "thin", posts: []model.RawPost{
		{ID: "1", Title: "too short", Source: "test"},
		{ID: "2", Title: "also short", Source: "test"},
	}}

	p := testPipeline(t, []sources.Task{{Adapter: thin, Selector: "a"}})

	result, err := p.Run(context.Background(), Options{SkipExtraction: true, SkipCompetitive: true})
	if !errors.Is(err, model.ErrNoPosts) {
		t.Fatalf("expected ErrNoPosts, got %v", err)
	}

	// Fetch and normalize steps are still reported for diagnostics.
	if len(result.Steps) != 2 {
		t.Errorf("expected 2 steps before abort, got %d", len(result.Steps))
	}
	if result.Steps[1].Err == nil {
		t.Error("expected normalize step to carry the error")
	}
}

func TestRunFailsWhenAllSourcesFail(t *testing.T) {
	bad := &fakeAdapter{name: "bad", err: errors.New("down")}
	p := testPipeline(t, []sources.Task{{Adapter: bad, Selector: "a"}})

	_, err := p.Run(context.Background(), Options{SkipExtraction: true, SkipCompetitive: true})
	if !errors.Is(err, model.ErrNoPosts) {
		t.Fatalf("expected ErrNoPosts, got %v", err)
	}
}

func TestRunSortsByOpportunityScore(t *testing.T) {
	adapter := &fakeAdapter{name: "src", posts: testPosts(5, 10)}
	p := testPipeline(t, []sources.Task{{Adapter: adapter, Selector: "a"}})

	result, err := p.Run(context.Background(), Options{SkipExtraction: true, SkipCompetitive: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for i := 1; i < len(result.Posts); i++ {
		if result.Posts[i].OpportunityScore > result.Posts[i-1].OpportunityScore {
			t.Errorf("posts not sorted by opportunity score: %v then %v",
				result.Posts[i-1].OpportunityScore, result.Posts[i].OpportunityScore)
		}
	}
}

func TestRunFullStages(t *testing.T) {
	adapter := &fakeAdapter{name: "src", posts: testPosts(4, 100)}

	cfg := config.Default()
	extractor := extract.New(cfg.LLM, stubCompleter{})

	cache, err := competitive.NewCache(t.TempDir(), 24*time.Hour)
	if err != nil {
		t.Fatalf("creating cache: %v", err)
	}
	searcher := fixedSearcher{competitors: []model.Competitor{
		{ID: "x1", Name: "Existing App", Rating: 4.0},
	}}
	enricher := competitive.NewEnricher(cfg.Competitive, searcher, nil, cache)

	p := NewForTesting(cfg, []sources.Task{{Adapter: adapter, Selector: "a"}}, extractor, enricher)

	result, err := p.Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := []string{"Fetching", "Normalizing", "Extracting", "Enriching", "Scoring"}
	if len(result.Steps) != len(names) {
		t.Fatalf("expected %d steps, got %d", len(names), len(result.Steps))
	}
	for i, name := range names {
		if result.Steps[i].Name != name {
			t.Errorf("step %d = %s, want %s", i, result.Steps[i].Name, name)
		}
	}

	if len(result.Posts) != 4 {
		t.Fatalf("expected 4 scored posts, got %d", len(result.Posts))
	}
	for _, post := range result.Posts {
		if post.Opportunity.Title != "stub idea" {
			t.Errorf("expected extraction attached, got %+v", post.Opportunity)
		}
		if post.Competitive.AppCount != 1 {
			t.Errorf("expected competitive data attached, got %+v", post.Competitive)
		}
		if post.DemandScore <= 0 {
			t.Errorf("expected positive demand score, got %v", post.DemandScore)
		}
	}
	if result.RunID == "" {
		t.Error("expected a run id")
	}
}

func TestRunRespectsLimitOption(t *testing.T) {
	adapter := &fakeAdapter{name: "src", posts: testPosts(10, 20)}
	p := testPipeline(t, []sources.Task{{Adapter: adapter, Selector: "a"}})

	result, err := p.Run(context.Background(), Options{Limit: 3, SkipExtraction: true, SkipCompetitive: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Posts) != 3 {
		t.Errorf("expected per-source limit of 3, got %d posts", len(result.Posts))
	}
}
