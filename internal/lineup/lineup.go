// Package lineup picks a starting XI, bench order and armbands from a squad.
package lineup

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"fpl-squad-mcp/internal/model"
)

const (
	StartersSize      = 11
	CaptainMultiplier = 2
)

// Formation counts outfield starters; one goalkeeper always starts.
type Formation struct {
	DEF int `json:"def"`
	MID int `json:"mid"`
	FWD int `json:"fwd"`
}

func DefaultFormation() Formation {
	return Formation{DEF: 3, MID: 4, FWD: 3}
}

// ParseFormation reads "D-M-F", e.g. "4-4-2". Empty means the default.
func ParseFormation(s string) (Formation, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultFormation(), nil
	}
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return Formation{}, model.InvalidInput("formation", "want D-M-F, got %q", s)
	}
	n := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Formation{}, model.InvalidInput("formation", "want D-M-F, got %q", s)
		}
		n[i] = v
	}
	f := Formation{DEF: n[0], MID: n[1], FWD: n[2]}
	return f, f.Validate()
}

// Validate applies the FPL formation rules.
func (f Formation) Validate() error {
	switch {
	case f.DEF < 3 || f.DEF > 5:
		return model.InvalidInput("formation", "%s needs 3-5 defenders", f)
	case f.MID < 2 || f.MID > 5:
		return model.InvalidInput("formation", "%s needs 2-5 midfielders", f)
	case f.FWD < 1 || f.FWD > 3:
		return model.InvalidInput("formation", "%s needs 1-3 forwards", f)
	case f.DEF+f.MID+f.FWD != StartersSize-1:
		return model.InvalidInput("formation", "%s must have 10 outfield starters", f)
	}
	return nil
}

func (f Formation) String() string {
	return fmt.Sprintf("%d-%d-%d", f.DEF, f.MID, f.FWD)
}

func (f Formation) needs(c model.Category) int {
	switch c {
	case model.GK:
		return 1
	case model.DEF:
		return f.DEF
	case model.MID:
		return f.MID
	case model.FWD:
		return f.FWD
	}
	return 0
}

type Slot struct {
	Position       int            `json:"position"`
	ID             int            `json:"id"`
	Name           string         `json:"name,omitempty"`
	Category       model.Category `json:"category"`
	PredictedValue float64        `json:"predicted_value"`
	Multiplier     int            `json:"multiplier"`
	Projected      float64        `json:"projected"`
}

type Result struct {
	Formation       string  `json:"formation"`
	Starters        []Slot  `json:"starters"`
	Bench           []Slot  `json:"bench"`
	CaptainID       int     `json:"captain_id"`
	ViceCaptainID   int     `json:"vice_captain_id"`
	ProjectedPoints float64 `json:"projected_points"`
	SquadProjected  float64 `json:"squad_projected"`
	GeneratedAtUTC  string  `json:"generated_at_utc"`
}

// Build fills the formation with the highest-value members of each category
// (preferred ids first), benches the rest, and hands the armbands to the
// captaincy picks when they start or to the two best starters otherwise.
// Only starters score; the captain's projection is doubled.
func Build(squad model.Squad, f Formation, rec *model.CaptaincyRecommendation, preferred []int) (*Result, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	pref := make(map[int]bool, len(preferred))
	for _, id := range preferred {
		pref[id] = true
	}

	byCat := make(map[model.Category][]model.Candidate)
	for _, c := range squad.Members {
		byCat[c.Category] = append(byCat[c.Category], c)
	}
	var starters, bench []model.Candidate
	for _, cat := range model.Categories {
		cs := byCat[cat]
		sort.Slice(cs, func(i, j int) bool {
			if pref[cs[i].ID] != pref[cs[j].ID] {
				return pref[cs[i].ID]
			}
			if cs[i].PredictedValue != cs[j].PredictedValue {
				return cs[i].PredictedValue > cs[j].PredictedValue
			}
			return cs[i].ID < cs[j].ID
		})
		need := f.needs(cat)
		if len(cs) < need {
			return nil, model.InvalidInput("squad", "formation %s needs %d %s, squad has %d", f, need, cat, len(cs))
		}
		starters = append(starters, cs[:need]...)
		bench = append(bench, cs[need:]...)
	}

	// Outfield bench by value, backup keepers last.
	sort.SliceStable(bench, func(i, j int) bool {
		gi, gj := bench[i].Category == model.GK, bench[j].Category == model.GK
		if gi != gj {
			return gj
		}
		return bench[i].PredictedValue > bench[j].PredictedValue
	})

	captain, vice := armbands(starters, rec)

	res := &Result{
		Formation:      f.String(),
		Starters:       make([]Slot, 0, len(starters)),
		Bench:          make([]Slot, 0, len(bench)),
		CaptainID:      captain,
		ViceCaptainID:  vice,
		SquadProjected: squad.TotalValue,
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339),
	}
	for i, c := range starters {
		mult := 1
		if c.ID == captain {
			mult = CaptainMultiplier
		}
		s := slot(i+1, c, mult)
		res.Starters = append(res.Starters, s)
		res.ProjectedPoints += s.Projected
	}
	for i, c := range bench {
		res.Bench = append(res.Bench, slot(len(starters)+i+1, c, 0))
	}
	return res, nil
}

func slot(pos int, c model.Candidate, mult int) Slot {
	return Slot{
		Position:       pos,
		ID:             c.ID,
		Name:           c.Name,
		Category:       c.Category,
		PredictedValue: c.PredictedValue,
		Multiplier:     mult,
		Projected:      c.PredictedValue * float64(mult),
	}
}

func armbands(starters []model.Candidate, rec *model.CaptaincyRecommendation) (int, int) {
	starting := make(map[int]bool, len(starters))
	for _, c := range starters {
		starting[c.ID] = true
	}
	ranked := make([]model.Candidate, len(starters))
	copy(ranked, starters)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].PredictedValue != ranked[j].PredictedValue {
			return ranked[i].PredictedValue > ranked[j].PredictedValue
		}
		return ranked[i].ID < ranked[j].ID
	})

	var picks []int
	if rec != nil {
		for _, s := range rec.Ranked {
			if starting[s.ID] {
				picks = append(picks, s.ID)
			}
		}
	}
	for _, c := range ranked {
		picks = appendUnique(picks, c.ID)
	}
	if len(picks) < 2 {
		return picks[0], 0
	}
	return picks[0], picks[1]
}

func appendUnique(ids []int, id int) []int {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	return append(ids, id)
}
