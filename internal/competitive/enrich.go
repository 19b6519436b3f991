// Package competitive attaches market-context signals to posts by
// searching the app and extension stores for similar products.
package competitive

import (
	"context"
	"log"
	"math"
	"sort"
	"strings"
	"sync"

	"demandradar/internal/config"
	"demandradar/internal/model"
)

const (
	maxKeywords    = 5
	minKeywordLen  = 4 // title words shorter than this are noise
	maxCompetitors = 10
)

// Searcher finds existing products matching a keyword set. Both store
// adapters implement it.
type Searcher interface {
	Name() string
	SearchCompetitors(ctx context.Context, keywords []string, limit int) ([]model.Competitor, error)
}

// Enricher derives keywords from a post, searches both stores
// concurrently, and caches the summarized result.
type Enricher struct {
	appStore    Searcher
	chromeStore Searcher
	cache       *Cache
	defaults    []string
	searchLimit int
	topLimit    int
}

// NewEnricher creates an enricher. Either searcher may be nil when the
// corresponding source is disabled.
func NewEnricher(cfg config.Competitive, appStore, chromeStore Searcher, cache *Cache) *Enricher {
	searchLimit := cfg.SearchLimit
	if searchLimit <= 0 {
		searchLimit = 5
	}
	topLimit := cfg.TopExtensions
	if topLimit <= 0 {
		topLimit = 100
	}
	defaults := cfg.DefaultKeywords
	if len(defaults) == 0 {
		defaults = []string{"app", "tool"}
	}
	return &Enricher{
		appStore:    appStore,
		chromeStore: chromeStore,
		cache:       cache,
		defaults:    defaults,
		searchLimit: searchLimit,
		topLimit:    topLimit,
	}
}

// Enrich computes competitive data for one post, consulting the cache
// first. A store search failure contributes nothing rather than
// failing the post; the error is returned only when both stores fail
// outright.
func (e *Enricher) Enrich(ctx context.Context, post model.RawPost, op model.Opportunity) (model.CompetitiveData, error) {
	keywords := e.DeriveKeywords(post.Title, op.Tags)

	key := Key(keywords)
	if e.cache != nil {
		if data, ok := e.cache.Get(key); ok {
			return data, nil
		}
	}

	competitors, err := e.search(ctx, keywords)
	if err != nil {
		return model.CompetitiveData{}, err
	}

	data := summarize(competitors)
	if e.cache != nil {
		if err := e.cache.Put(key, data); err != nil {
			log.Printf("Caching competitive data failed: %v", err)
		}
	}
	return data, nil
}

// DeriveKeywords takes up to maxKeywords deduplicated keywords from
// the post title (words longer than 3 characters) plus opportunity
// tags, falling back to the default set when nothing qualifies.
func (e *Enricher) DeriveKeywords(title string, tags []string) []string {
	seen := make(map[string]struct{})
	var keywords []string

	add := func(word string) {
		word = strings.ToLower(strings.Trim(word, `.,:;!?"'()[]`))
		if word == "" {
			return
		}
		if _, dup := seen[word]; dup {
			return
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
	}

	for _, word := range strings.Fields(title) {
		if len(word) >= minKeywordLen {
			add(word)
		}
	}
	for _, tag := range tags {
		add(tag)
	}

	if len(keywords) > maxKeywords {
		keywords = keywords[:maxKeywords]
	}
	if len(keywords) == 0 {
		keywords = append(keywords, e.defaults...)
	}
	return keywords
}

// search queries both stores concurrently and merges the results.
func (e *Enricher) search(ctx context.Context, keywords []string) ([]model.Competitor, error) {
	type contribution struct {
		searcher Searcher
		limit    int
	}
	var contributions []contribution
	if e.appStore != nil {
		contributions = append(contributions, contribution{e.appStore, e.searchLimit})
	}
	if e.chromeStore != nil {
		contributions = append(contributions, contribution{e.chromeStore, e.topLimit})
	}
	if len(contributions) == 0 {
		return nil, nil
	}

	results := make([][]model.Competitor, len(contributions))
	errs := make([]error, len(contributions))

	var wg sync.WaitGroup
	for i, c := range contributions {
		i, c := i, c
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = c.searcher.SearchCompetitors(ctx, keywords, c.limit)
			if errs[i] != nil {
				log.Printf("Competitor search on %s failed: %v", c.searcher.Name(), errs[i])
			}
		}()
	}
	wg.Wait()

	var merged []model.Competitor
	failures := 0
	for i := range contributions {
		if errs[i] != nil {
			failures++
			continue
		}
		merged = append(merged, results[i]...)
	}
	if failures == len(contributions) {
		return nil, errs[0]
	}
	return merged, nil
}

// summarize deduplicates by store-assigned id, computes count and mean
// rating over the full set, and keeps the top rated competitors.
func summarize(competitors []model.Competitor) model.CompetitiveData {
	seen := make(map[string]struct{}, len(competitors))
	unique := make([]model.Competitor, 0, len(competitors))
	for _, c := range competitors {
		if c.ID == "" {
			continue
		}
		if _, dup := seen[c.ID]; dup {
			continue
		}
		seen[c.ID] = struct{}{}
		unique = append(unique, c)
	}

	data := model.CompetitiveData{AppCount: len(unique)}
	if len(unique) == 0 {
		return data
	}

	total := 0.0
	for _, c := range unique {
		total += c.Rating
	}
	data.AvgRating = math.Round(total/float64(len(unique))*10) / 10

	sort.SliceStable(unique, func(i, j int) bool { return unique[i].Rating > unique[j].Rating })
	if len(unique) > maxCompetitors {
		unique = unique[:maxCompetitors]
	}
	data.Competitors = unique
	return data
}
