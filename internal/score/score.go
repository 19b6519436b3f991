// Package score computes demand, supply, and opportunity scores and
// the gold-zone classification. Everything here is a pure function of
// its inputs; time enters only as an explicit parameter.
package score

import (
	"math"
	"time"

	"demandradar/internal/config"
	"demandradar/internal/model"
)

// Weights and factors of the scoring formulas. They are constants of
// the product, not tunables, but live in one place so they are never
// scattered as literals.
const (
	logScoreWeight  = 10.0
	sentimentWeight = 10.0
	velocityWeight  = 20.0

	appCountWeight = 5.0
	ratingWeight   = 2.0

	sentimentBase        = 0.5
	sentimentUnmetNeed   = 0.3
	sentimentMonetizable = 0.2

	recencyWindowDays  = 30.0
	recencyWeight      = 0.7
	activityWeight     = 0.3
	activityMaxComment = 20.0
)

// Params holds the gold-zone thresholds.
type Params struct {
	GoldMinOpportunity float64
	GoldMinDemand      float64
	GoldMaxSupply      float64
}

// ParamsFromConfig builds scoring parameters from config.
func ParamsFromConfig(cfg config.Scoring) Params {
	return Params{
		GoldMinOpportunity: cfg.GoldMinOpportunity,
		GoldMinDemand:      cfg.GoldMinDemand,
		GoldMaxSupply:      cfg.GoldMaxSupply,
	}
}

// Engine scores enriched posts.
type Engine struct {
	params Params
}

// NewEngine creates a scoring engine.
func NewEngine(params Params) *Engine {
	return &Engine{params: params}
}

// Score computes all scores for one post at the given reference time.
// Scoring the same inputs twice yields identical output.
func (e *Engine) Score(post model.RawPost, op model.Opportunity, comp model.CompetitiveData, now time.Time) model.ScoredPost {
	sentiment := Sentiment(op)
	velocity := Velocity(post.CreatedAt, post.CommentCount, now)

	demand := DemandScore(post.Score, sentiment, velocity)
	supply := SupplyScore(comp.AppCount, comp.AvgRating)
	opportunity := Round1(demand - supply)

	return model.ScoredPost{
		RawPost:          post,
		Opportunity:      op,
		Competitive:      comp,
		DemandScore:      demand,
		SupplyScore:      supply,
		OpportunityScore: opportunity,
		GoldZone:         e.IsGoldZone(demand, supply, opportunity),
	}
}

// IsGoldZone applies the fixed thresholds: high net opportunity, high
// demand, low supply.
func (e *Engine) IsGoldZone(demand, supply, opportunity float64) bool {
	return opportunity >= e.params.GoldMinOpportunity &&
		demand >= e.params.GoldMinDemand &&
		supply <= e.params.GoldMaxSupply
}

// DemandScore = log10(postScore+1)*10 + sentiment*10 + velocity*20,
// rounded to one decimal.
func DemandScore(postScore int, sentiment, velocity float64) float64 {
	raw := math.Log10(float64(postScore)+1)*logScoreWeight +
		sentiment*sentimentWeight +
		velocity*velocityWeight
	return Round1(raw)
}

// SupplyScore = appCount*5 + avgRating*2, rounded to one decimal.
func SupplyScore(appCount int, avgRating float64) float64 {
	return Round1(float64(appCount)*appCountWeight + avgRating*ratingWeight)
}

// Sentiment derives a [0,1] sentiment proxy from the opportunity
// flags: base 0.5, +0.3 for an unmet need, +0.2 if monetizable.
func Sentiment(op model.Opportunity) float64 {
	s := sentimentBase
	if op.UnmetNeed {
		s += sentimentUnmetNeed
	}
	if op.Monetizable {
		s += sentimentMonetizable
	}
	return math.Min(1.0, s)
}

// Velocity combines recency decay (linear falloff to zero over 30
// days, weighted 0.7) with comment activity (20 comments saturates,
// weighted 0.3). The result is in [0,1].
func Velocity(createdAt time.Time, commentCount int, now time.Time) float64 {
	ageDays := now.Sub(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	recency := math.Max(0, 1-math.Floor(ageDays)/recencyWindowDays)
	activity := math.Min(1.0, float64(commentCount)/activityMaxComment)
	return recency*recencyWeight + activity*activityWeight
}

// Round1 rounds to one decimal place. All reported scores pass through
// here so repeated scoring is idempotent.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
