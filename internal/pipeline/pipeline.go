// Package pipeline orchestrates the stages of a radar run:
// Fetching -> Normalizing -> Extracting -> Enriching -> Scoring.
// Each stage consumes the complete output of the previous one.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"demandradar/internal/competitive"
	"demandradar/internal/config"
	"demandradar/internal/content"
	"demandradar/internal/extract"
	"demandradar/internal/httpclient"
	"demandradar/internal/llm"
	"demandradar/internal/model"
	"demandradar/internal/normalize"
	"demandradar/internal/score"
	"demandradar/internal/sources"
)

// enrichConcurrency bounds concurrent store searches during the
// enriching stage.
const enrichConcurrency = 4

// Options are the per-run feature toggles.
type Options struct {
	Limit           int
	SkipExtraction  bool
	SkipCompetitive bool
	SkipContentFill bool
}

// StepResult reports attempted vs. succeeded units for one stage so a
// caller can detect degraded (but non-fatal) runs.
type StepResult struct {
	Name      string
	Attempted int
	Succeeded int
	Summary   string
	Err       error
}

// Result holds everything a run produced.
type Result struct {
	RunID     string
	StartedAt time.Time
	Steps     []StepResult
	Posts     []model.ScoredPost
	GoldZone  int
}

// Pipeline wires the stage components together.
type Pipeline struct {
	cfg        *config.Config
	tasks      []sources.Task
	skipped    []string
	filler     *content.Filler
	normalizer *normalize.Normalizer
	extractor  *extract.Extractor
	enricher   *competitive.Enricher
	engine     *score.Engine
}

// New builds a pipeline from config. An adapter whose required
// credential is missing is skipped with a log line; construction fails
// only when no source remains usable.
func New(cfg *config.Config) (*Pipeline, error) {
	client := httpclient.New(httpclient.Options{
		Timeout:     time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
		MaxAttempts: cfg.HTTP.MaxAttempts,
		UserAgent:   cfg.HTTP.UserAgent,
	})

	p := &Pipeline{
		cfg:        cfg,
		normalizer: normalize.New(),
		engine:     score.NewEngine(score.ParamsFromConfig(cfg.Scoring)),
	}

	var appStore *sources.AppStoreAdapter
	var chromeStore *sources.ChromeStoreAdapter

	if cfg.Sources.Reddit.Enabled {
		reddit, err := sources.NewReddit(cfg.Sources.Reddit, client)
		if err != nil {
			log.Printf("Skipping reddit source: %v", err)
			p.skipped = append(p.skipped, "reddit")
		} else {
			for _, sub := range cfg.Sources.Reddit.Subreddits {
				p.tasks = append(p.tasks, sources.Task{Adapter: reddit, Selector: sub})
			}
		}
	}
	if cfg.Sources.ProductHunt.Enabled {
		ph := sources.NewProductHunt(cfg.Sources.ProductHunt, client)
		p.tasks = append(p.tasks, sources.Task{Adapter: ph})
	}
	if cfg.Sources.AppStore.Enabled {
		appStore = sources.NewAppStore(cfg.Sources.AppStore, client)
		for _, appID := range cfg.Sources.AppStore.AppIDs {
			p.tasks = append(p.tasks, sources.Task{Adapter: appStore, Selector: appID})
		}
	}
	if cfg.Sources.ChromeStore.Enabled {
		chromeStore = sources.NewChromeStore(cfg.Sources.ChromeStore, client)
		p.tasks = append(p.tasks, sources.Task{Adapter: chromeStore, Selector: cfg.Sources.ChromeStore.Category})
	}

	if len(p.tasks) == 0 {
		return nil, fmt.Errorf("no usable sources configured")
	}

	if cfg.Content.FetchLinks {
		p.filler = content.New(client)
	}

	p.extractor = extract.New(cfg.LLM, llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKeyEnv))

	cache, err := competitive.NewCache(cfg.GetCacheDir(), time.Duration(cfg.Competitive.CacheTTLHours)*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("setting up competitive cache: %w", err)
	}
	var appSearcher, chromeSearcher competitive.Searcher
	if appStore != nil {
		appSearcher = appStore
	}
	if chromeStore != nil {
		chromeSearcher = chromeStore
	}
	p.enricher = competitive.NewEnricher(cfg.Competitive, appSearcher, chromeSearcher, cache)

	return p, nil
}

// NewForTesting builds a pipeline directly from components.
func NewForTesting(cfg *config.Config, tasks []sources.Task, extractor *extract.Extractor, enricher *competitive.Enricher) *Pipeline {
	return &Pipeline{
		cfg:        cfg,
		tasks:      tasks,
		normalizer: normalize.New(),
		extractor:  extractor,
		enricher:   enricher,
		engine:     score.NewEngine(score.ParamsFromConfig(cfg.Scoring)),
	}
}

// Run executes the full pipeline. It returns model.ErrNoPosts when
// nothing survives normalization; every other failure degrades the run
// instead of aborting it.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Result, error) {
	r := &Result{RunID: uuid.NewString(), StartedAt: time.Now()}

	limit := opts.Limit
	if limit <= 0 {
		limit = p.cfg.Limit
	}

	raw := p.runFetch(ctx, r, limit)

	if p.filler != nil && !opts.SkipContentFill {
		p.runContentFill(ctx, r, raw)
	}

	normalized, ok := p.runNormalize(r, raw)
	if !ok {
		return r, model.ErrNoPosts
	}

	opportunities := p.runExtract(ctx, r, normalized, opts.SkipExtraction)
	enriched := p.runEnrich(ctx, r, normalized, opportunities, opts.SkipCompetitive)
	p.runScore(r, normalized, opportunities, enriched)

	return r, nil
}

// runFetch fans out one task per source/selector and joins once all
// settle. A failing task is recorded and excluded, never fatal, and
// never cancels its siblings.
func (p *Pipeline) runFetch(ctx context.Context, r *Result, limit int) []model.RawPost {
	log.Printf("Stage 1/5: fetching from %d source selectors...", len(p.tasks))

	batches := make([][]model.RawPost, len(p.tasks))
	failures := make([]error, len(p.tasks))

	var g errgroup.Group
	for i, task := range p.tasks {
		i, task := i, task
		g.Go(func() error {
			posts, err := task.Adapter.FetchBatch(ctx, task.Selector, limit)
			if err != nil {
				failures[i] = err
				return nil
			}
			batches[i] = posts
			return nil
		})
	}
	g.Wait()

	step := StepResult{Name: "Fetching", Attempted: len(p.tasks)}
	var all []model.RawPost
	for i, task := range p.tasks {
		if failures[i] != nil {
			if model.IsTransient(failures[i]) {
				log.Printf("Source %s/%s skipped after retries: %v", task.Adapter.Name(), task.Selector, failures[i])
			} else {
				log.Printf("Source %s/%s skipped: %v", task.Adapter.Name(), task.Selector, failures[i])
			}
			continue
		}
		step.Succeeded++
		all = append(all, batches[i]...)
	}
	step.Summary = fmt.Sprintf("%d posts from %d/%d selectors", len(all), step.Succeeded, step.Attempted)
	r.Steps = append(r.Steps, step)
	log.Printf("Fetching complete: %s", step.Summary)
	return all
}

func (p *Pipeline) runContentFill(ctx context.Context, r *Result, posts []model.RawPost) {
	log.Println("Filling content for link posts...")
	res := p.filler.FillMissing(ctx, posts)
	r.Steps = append(r.Steps, StepResult{
		Name:      "ContentFill",
		Attempted: res.Filled + res.Failed,
		Succeeded: res.Filled,
		Summary:   fmt.Sprintf("%d link posts filled, %d failed", res.Filled, res.Failed),
	})
}

func (p *Pipeline) runNormalize(r *Result, posts []model.RawPost) ([]model.RawPost, bool) {
	log.Println("Stage 2/5: normalizing...")
	kept, res := p.normalizer.Normalize(posts)

	step := StepResult{
		Name:      "Normalizing",
		Attempted: res.Input,
		Succeeded: res.Kept,
		Summary: fmt.Sprintf("kept %d of %d (%d pinned, %d low-signal, %d duplicates)",
			res.Kept, res.Input, res.Pinned, res.LowSignal, res.Duplicates),
	}
	if res.Kept == 0 {
		step.Err = model.ErrNoPosts
	}
	r.Steps = append(r.Steps, step)
	log.Printf("Normalizing complete: %s", step.Summary)
	return kept, res.Kept > 0
}

func (p *Pipeline) runExtract(ctx context.Context, r *Result, posts []model.RawPost, skip bool) []model.Opportunity {
	if skip || p.extractor == nil {
		log.Println("Stage 3/5: extraction skipped")
		r.Steps = append(r.Steps, StepResult{Name: "Extracting", Summary: "skipped"})
		return make([]model.Opportunity, len(posts))
	}

	log.Printf("Stage 3/5: extracting opportunities from %d posts...", len(posts))
	opportunities, res := p.extractor.ExtractAll(ctx, posts)
	r.Steps = append(r.Steps, StepResult{
		Name:      "Extracting",
		Attempted: res.Attempted,
		Succeeded: res.Succeeded,
		Summary:   fmt.Sprintf("%d extracted, %d sentinel fallbacks", res.Succeeded, res.Failed),
	})
	return opportunities
}

func (p *Pipeline) runEnrich(ctx context.Context, r *Result, posts []model.RawPost, opportunities []model.Opportunity, skip bool) []model.CompetitiveData {
	enriched := make([]model.CompetitiveData, len(posts))
	if skip || p.enricher == nil {
		log.Println("Stage 4/5: competitive enrichment skipped")
		r.Steps = append(r.Steps, StepResult{Name: "Enriching", Summary: "skipped"})
		return enriched
	}

	log.Printf("Stage 4/5: enriching %d posts with competitive data...", len(posts))
	failures := make([]error, len(posts))

	var g errgroup.Group
	g.SetLimit(enrichConcurrency)
	for i := range posts {
		i := i
		g.Go(func() error {
			enriched[i], failures[i] = p.enricher.Enrich(ctx, posts[i], opportunities[i])
			return nil
		})
	}
	g.Wait()

	step := StepResult{Name: "Enriching", Attempted: len(posts)}
	for i, err := range failures {
		if err != nil {
			log.Printf("Enrichment skipped for %s: %v", posts[i].Key(), err)
			continue
		}
		step.Succeeded++
	}
	step.Summary = fmt.Sprintf("%d/%d posts enriched", step.Succeeded, step.Attempted)
	r.Steps = append(r.Steps, step)
	return enriched
}

func (p *Pipeline) runScore(r *Result, posts []model.RawPost, opportunities []model.Opportunity, enriched []model.CompetitiveData) {
	log.Printf("Stage 5/5: scoring %d posts...", len(posts))
	now := time.Now()

	scored := make([]model.ScoredPost, len(posts))
	gold := 0
	for i := range posts {
		scored[i] = p.engine.Score(posts[i], opportunities[i], enriched[i], now)
		if scored[i].GoldZone {
			gold++
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].OpportunityScore > scored[j].OpportunityScore
	})

	r.Posts = scored
	r.GoldZone = gold
	r.Steps = append(r.Steps, StepResult{
		Name:      "Scoring",
		Attempted: len(posts),
		Succeeded: len(posts),
		Summary:   fmt.Sprintf("%d posts scored, %d in the gold zone", len(posts), gold),
	})
}

// SkippedSources lists adapters disabled at construction (for status
// output).
func (p *Pipeline) SkippedSources() []string { return p.skipped }
