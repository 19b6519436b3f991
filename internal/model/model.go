// Package model defines the entities passed between pipeline stages.
package model

import "time"

// RawPost is the source-agnostic unit of discourse emitted by every
// source adapter. Later stages attach new data but never rewrite the
// fields set at ingestion.
type RawPost struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Content      string         `json:"content,omitempty"`
	URL          string         `json:"url"`
	Source       string         `json:"source"`
	Score        int            `json:"score"`
	CreatedAt    time.Time      `json:"created_at"`
	CommentCount int            `json:"comment_count"`
	Author       string         `json:"author,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Key identifies a post within a single ingestion run.
func (p RawPost) Key() string {
	return p.Source + "/" + p.ID
}

// Text combines title and body for extraction input.
func (p RawPost) Text() string {
	if p.Content == "" {
		return p.Title
	}
	return p.Title + "\n" + p.Content
}

// FailedExtractionTag marks the sentinel Opportunity produced when both
// the primary and fallback models fail.
const FailedExtractionTag = "extraction_failed"

// Opportunity is the structured product-idea assessment extracted from
// a post by the language model.
type Opportunity struct {
	Title       string   `json:"title"`
	PainSummary string   `json:"pain_summary"`
	UnmetNeed   bool     `json:"unmet_need"`
	SoloDoable  bool     `json:"solo_doable"`
	Monetizable bool     `json:"monetizable"`
	Tags        []string `json:"tags,omitempty"`
}

// Failed reports whether this is a sentinel result from a failed
// extraction rather than a real assessment.
func (o Opportunity) Failed() bool {
	for _, t := range o.Tags {
		if t == FailedExtractionTag {
			return true
		}
	}
	return false
}

// FailedOpportunity returns the sentinel attached when extraction fails
// on both models. All booleans are false so the post scores neutrally.
func FailedOpportunity(reason string) Opportunity {
	return Opportunity{
		Title:       "extraction failed",
		PainSummary: reason,
		Tags:        []string{FailedExtractionTag},
	}
}

// Competitor is a single existing product found in a store search.
type Competitor struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Rating float64 `json:"rating"`
	URL    string  `json:"url,omitempty"`
	Store  string  `json:"store,omitempty"`
}

// CompetitiveData summarizes the existing supply side for an
// opportunity. Competitors is sorted highest rating first and capped,
// while AppCount and AvgRating cover the full deduplicated set.
type CompetitiveData struct {
	AppCount    int          `json:"app_count"`
	AvgRating   float64      `json:"avg_rating"`
	Competitors []Competitor `json:"competitors,omitempty"`
}

// ScoredPost is the final pipeline output: the raw post plus its
// extraction, competitive context, and scores.
type ScoredPost struct {
	RawPost
	Opportunity      Opportunity     `json:"opportunity"`
	Competitive      CompetitiveData `json:"competitive_data"`
	DemandScore      float64         `json:"demand_score"`
	SupplyScore      float64         `json:"supply_score"`
	OpportunityScore float64         `json:"opportunity_score"`
	GoldZone         bool            `json:"gold_zone"`
}
