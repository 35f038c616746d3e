// Package captaincy ranks roster members for the captain's armband.
//
// Scoring is a fixed weighted sum, with no randomness:
//
//	score = w_form·norm(form) + w_opp·inverse(difficulty)
//	      + w_under·norm(underlying) + w_sit·situational
//
// norm is min-max across the members being ranked, inverse maps the 1..5
// fixture difficulty scale onto 1..0, and situational is the clamped sum of
// flag bonuses.
package captaincy

import (
	"math"
	"sort"

	"fpl-squad-mcp/internal/model"
)

// Flags are the situational factors for a member's next fixture.
type Flags struct {
	Home           bool `json:"home,omitempty" yaml:"home"`
	PenaltyTaker   bool `json:"penalty_taker,omitempty" yaml:"penalty_taker"`
	SetPieces      bool `json:"set_pieces,omitempty" yaml:"set_pieces"`
	DoubleGameweek bool `json:"double_gameweek,omitempty" yaml:"double_gameweek"`
	BlankGameweek  bool `json:"blank_gameweek,omitempty" yaml:"blank_gameweek"`
}

// Member is a roster member with its scoring inputs. OpponentDifficulty uses
// the FDR scale 1 (easiest) to 5; 0 means unknown and scores as neutral.
type Member struct {
	ID                 int     `json:"id"`
	Name               string  `json:"name,omitempty"`
	Form               float64 `json:"form"`
	OpponentDifficulty float64 `json:"opponent_difficulty"`
	Underlying         float64 `json:"underlying"`
	Situational        Flags   `json:"situational"`
	PredictedValue     float64 `json:"predicted_value"`
}

type Weights struct {
	Form        float64 `json:"form" yaml:"form"`
	Opponent    float64 `json:"opponent" yaml:"opponent"`
	Underlying  float64 `json:"underlying" yaml:"underlying"`
	Situational float64 `json:"situational" yaml:"situational"`
}

func DefaultWeights() Weights {
	return Weights{Form: 0.30, Opponent: 0.25, Underlying: 0.20, Situational: 0.25}
}

func (w Weights) sum() float64 {
	return w.Form + w.Opponent + w.Underlying + w.Situational
}

// normalized scales the weights to sum to 1. All-zero weights mean defaults.
func (w Weights) normalized() (Weights, error) {
	for _, v := range []float64{w.Form, w.Opponent, w.Underlying, w.Situational} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return Weights{}, model.InvalidInput("weights", "must be finite and non-negative")
		}
	}
	if w.sum() == 0 {
		w = DefaultWeights()
	}
	s := w.sum()
	return Weights{
		Form:        w.Form / s,
		Opponent:    w.Opponent / s,
		Underlying:  w.Underlying / s,
		Situational: w.Situational / s,
	}, nil
}

type Bonuses struct {
	Home           float64 `json:"home" yaml:"home"`
	PenaltyTaker   float64 `json:"penalty_taker" yaml:"penalty_taker"`
	SetPieces      float64 `json:"set_pieces" yaml:"set_pieces"`
	DoubleGameweek float64 `json:"double_gameweek" yaml:"double_gameweek"`
	BlankGameweek  float64 `json:"blank_gameweek" yaml:"blank_gameweek"`
}

func DefaultBonuses() Bonuses {
	return Bonuses{Home: 0.30, PenaltyTaker: 0.30, SetPieces: 0.15, DoubleGameweek: 0.40, BlankGameweek: -1.0}
}

// Score sums the bonuses for the flags that are set, clamped to [0,1].
func (b Bonuses) Score(f Flags) float64 {
	s := 0.0
	if f.Home {
		s += b.Home
	}
	if f.PenaltyTaker {
		s += b.PenaltyTaker
	}
	if f.SetPieces {
		s += b.SetPieces
	}
	if f.DoubleGameweek {
		s += b.DoubleGameweek
	}
	if f.BlankGameweek {
		s += b.BlankGameweek
	}
	return clamp01(s)
}

const (
	DefaultConfidenceScale = 0.25
	DefaultAlternates      = 3
)

// Options tunes Select. Zero weights and scale select the defaults; nil
// Bonuses and Alternates do too, so an explicit zero is honoured.
type Options struct {
	Weights Weights
	Bonuses *Bonuses
	// ConfidenceScale is the score gap that maps to full confidence.
	ConfidenceScale float64
	// Alternates is how many picks after the top two are returned.
	Alternates *int
}

func (o Options) withDefaults() (Options, error) {
	w, err := o.Weights.normalized()
	if err != nil {
		return Options{}, err
	}
	o.Weights = w
	if o.Bonuses == nil {
		b := DefaultBonuses()
		o.Bonuses = &b
	}
	if o.ConfidenceScale < 0 || math.IsNaN(o.ConfidenceScale) {
		return Options{}, model.InvalidInput("confidence_scale", "must not be negative")
	}
	if o.ConfidenceScale == 0 {
		o.ConfidenceScale = DefaultConfidenceScale
	}
	if o.Alternates == nil {
		n := DefaultAlternates
		o.Alternates = &n
	}
	if *o.Alternates < 0 {
		return Options{}, model.InvalidInput("alternates", "must not be negative, got %d", *o.Alternates)
	}
	return o, nil
}

// Select ranks members and picks a captain and vice-captain. Ties on score
// go to the higher predicted value, then the lower id. A single member is
// returned as captain with no secondary and zero confidence.
func Select(members []Member, opts Options) (model.CaptaincyRecommendation, error) {
	if len(members) == 0 {
		return model.CaptaincyRecommendation{}, model.InvalidInput("squad", "must not be empty")
	}
	o, err := opts.withDefaults()
	if err != nil {
		return model.CaptaincyRecommendation{}, err
	}
	seen := make(map[int]bool, len(members))
	for _, m := range members {
		if seen[m.ID] {
			return model.CaptaincyRecommendation{}, model.InvalidInput("squad", "member %d appears more than once", m.ID)
		}
		seen[m.ID] = true
		for _, v := range []float64{m.Form, m.OpponentDifficulty, m.Underlying, m.PredictedValue} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return model.CaptaincyRecommendation{}, model.InvalidInput("squad", "member %d has a non-finite input", m.ID)
			}
		}
	}

	scores := score(members, o)
	value := make(map[int]float64, len(members))
	for _, m := range members {
		value[m.ID] = m.PredictedValue
	}
	sort.Slice(scores, func(i, j int) bool {
		a, b := scores[i], scores[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if value[a.ID] != value[b.ID] {
			return value[a.ID] > value[b.ID]
		}
		return a.ID < b.ID
	})
	for i := range scores {
		scores[i].Rank = i + 1
	}

	rec := model.CaptaincyRecommendation{
		PrimaryID:  scores[0].ID,
		Ranked:     scores,
		Alternates: []model.CaptainScore{},
	}
	if len(scores) > 1 {
		rec.SecondaryID = scores[1].ID
		rec.HasSecondary = true
		rec.Confidence = clamp01((scores[0].Score - scores[1].Score) / o.ConfidenceScale)
	}
	if len(scores) > 2 {
		end := min(len(scores), 2+*o.Alternates)
		rec.Alternates = append(rec.Alternates, scores[2:end]...)
	}
	return rec, nil
}

func score(members []Member, o Options) []model.CaptainScore {
	formMin, formMax := math.Inf(1), math.Inf(-1)
	underMin, underMax := math.Inf(1), math.Inf(-1)
	for _, m := range members {
		formMin = math.Min(formMin, m.Form)
		formMax = math.Max(formMax, m.Form)
		underMin = math.Min(underMin, m.Underlying)
		underMax = math.Max(underMax, m.Underlying)
	}

	w := o.Weights
	out := make([]model.CaptainScore, 0, len(members))
	for _, m := range members {
		s := model.CaptainScore{
			ID:             m.ID,
			Name:           m.Name,
			FormNorm:       minMax(m.Form, formMin, formMax),
			FixtureNorm:    inverseDifficulty(m.OpponentDifficulty),
			UnderlyingNorm: minMax(m.Underlying, underMin, underMax),
			Situational:    o.Bonuses.Score(m.Situational),
		}
		s.Score = w.Form*s.FormNorm + w.Opponent*s.FixtureNorm +
			w.Underlying*s.UnderlyingNorm + w.Situational*s.Situational
		out = append(out, s)
	}
	return out
}

func minMax(v, min, max float64) float64 {
	if math.IsInf(min, 1) || math.IsInf(max, -1) || min == max {
		return 0
	}
	return (v - min) / (max - min)
}

// inverseDifficulty maps FDR 1..5 onto 1..0.
func inverseDifficulty(d float64) float64 {
	if d <= 0 {
		return 0.5
	}
	return clamp01((5 - d) / 4)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
