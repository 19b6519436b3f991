// Package extract turns post text into structured Opportunity records
// via the language model.
package extract

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"demandradar/internal/config"
	"demandradar/internal/llm"
	"demandradar/internal/model"
)

const opportunityPrompt = `You analyze posts from product communities to find unmet digital product needs.

Read the post below and decide whether it describes a real product opportunity.

Post source: %[2]s
Post URL: %[3]s
Post text:
%[1]s

Respond with ONLY this JSON:
{
    "title": "short name for the product idea behind this post",
    "pain_summary": "one or two sentences describing the user's pain",
    "unmet_need": true or false,
    "solo_doable": true or false,
    "monetizable": true or false,
    "tags": ["a", "few", "short", "keywords"]
}

unmet_need: true only if no existing product clearly solves this.
solo_doable: true if a single developer could build a first version.
monetizable: true if users would plausibly pay for a solution.`

const maxPostTextLen = 4000

// Result counts extraction outcomes across a batch run. Failed posts
// still carry a sentinel Opportunity, so Attempted == len(input).
type Result struct {
	Attempted int
	Succeeded int
	Fallback  int
	Failed    int
}

// Extractor calls the primary model, retries once on the fallback
// model, and returns a sentinel result when both fail. It never aborts
// a batch.
type Extractor struct {
	completer     llm.Completer
	model         string
	fallbackModel string
	maxTokens     int
	batchSize     int
}

// New creates an extractor from config.
func New(cfg config.LLM, completer llm.Completer) *Extractor {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 10
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &Extractor{
		completer:     completer,
		model:         cfg.Model,
		fallbackModel: cfg.FallbackModel,
		maxTokens:     maxTokens,
		batchSize:     batch,
	}
}

// Extract analyzes one post's text. On primary-model failure it tries
// the fallback model exactly once; on total failure it returns the
// sentinel Opportunity. The bool reports whether extraction succeeded.
func (e *Extractor) Extract(ctx context.Context, text, source, url string) (model.Opportunity, bool) {
	op, err := e.extractWith(ctx, e.model, text, source, url)
	if err == nil {
		return op, true
	}
	log.Printf("Extraction with %s failed (%v), trying %s", e.model, err, e.fallbackModel)

	op, err = e.extractWith(ctx, e.fallbackModel, text, source, url)
	if err == nil {
		return op, true
	}
	log.Printf("Extraction with fallback %s failed: %v", e.fallbackModel, err)

	return model.FailedOpportunity("no usable model response"), false
}

func (e *Extractor) extractWith(ctx context.Context, mdl, text, source, url string) (model.Opportunity, error) {
	if len(text) > maxPostTextLen {
		text = text[:maxPostTextLen] + "..."
	}
	prompt := fmt.Sprintf(opportunityPrompt, text, source, url)

	response, err := e.completer.Complete(ctx, mdl, prompt, e.maxTokens)
	if err != nil {
		return model.Opportunity{}, fmt.Errorf("completing: %w", err)
	}

	var op model.Opportunity
	if err := llm.ParseJSON(response, &op); err != nil {
		return model.Opportunity{}, &model.ExtractionError{Model: mdl, Err: err}
	}
	return op, nil
}

// ExtractAll processes posts in fixed-size batches. Calls within a
// batch run concurrently and are joined before the next batch starts;
// results come back in input order.
func (e *Extractor) ExtractAll(ctx context.Context, posts []model.RawPost) ([]model.Opportunity, Result) {
	opportunities := make([]model.Opportunity, len(posts))
	r := Result{Attempted: len(posts)}

	for start := 0; start < len(posts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(posts) {
			end = len(posts)
		}

		var g errgroup.Group
		succeeded := make([]bool, end-start)
		for i, post := range posts[start:end] {
			i, post := i, post
			g.Go(func() error {
				opportunities[start+i], succeeded[i] = e.Extract(ctx, post.Text(), post.Source, post.URL)
				return nil
			})
		}
		g.Wait()

		for _, ok := range succeeded {
			if ok {
				r.Succeeded++
			} else {
				r.Failed++
			}
		}
	}

	return opportunities, r
}
