package optimizer

import (
	"errors"
	"fmt"
	"sort"

	"fpl-squad-mcp/internal/constraints"
	"fpl-squad-mcp/internal/model"
)

// ErrInfeasible matches every *InfeasibleError via errors.Is.
var ErrInfeasible = errors.New("infeasible")

const (
	RuleForcedUnavailable = "forced_include_unavailable"
	RuleCategorySupply    = "category_supply"
	RuleRosterSupply      = "roster_supply"
	RuleCombined          = "combined"
)

// InfeasibleError names the tightest rule that rules out every roster.
type InfeasibleError struct {
	Rule      string                 `json:"rule"`
	Detail    string                 `json:"detail"`
	Violation *constraints.Violation `json:"violation,omitempty"`
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("infeasible (%s): %s", e.Rule, e.Detail)
}

func (e *InfeasibleError) Is(target error) bool {
	return target == ErrInfeasible
}

func (e *InfeasibleError) Unwrap() error {
	if e.Violation == nil {
		return nil
	}
	return e.Violation
}

// presolve runs the cheap necessary conditions before any search. It returns
// the eligible candidates (selectable, not excluded) in ascending id order.
func presolve(pool *model.Pool, m constraints.Model) ([]model.Candidate, error) {
	for _, id := range m.ForcedInclude {
		if _, ok := pool.Lookup(id); !ok {
			return nil, model.InvalidInput("forced_include", "candidate %d is not in the pool", id)
		}
	}
	for _, id := range m.ForcedExclude {
		if _, ok := pool.Lookup(id); !ok {
			return nil, model.InvalidInput("forced_exclude", "candidate %d is not in the pool", id)
		}
	}

	forced, _ := pool.Resolve(m.ForcedInclude)
	for _, c := range forced {
		if !c.Availability.Selectable() {
			return nil, &InfeasibleError{
				Rule:   RuleForcedUnavailable,
				Detail: fmt.Sprintf("candidate %d is forced in but %s", c.ID, c.Availability),
			}
		}
	}
	if vs := constraints.CheckMembers(forced, m, constraints.Partial); len(vs) > 0 {
		return nil, &InfeasibleError{Rule: string(vs[0].Rule), Detail: vs[0].Detail, Violation: vs[0]}
	}

	exclude := m.ExcludeSet()
	var eligible []model.Candidate
	for _, c := range pool.Candidates() {
		if c.Availability.Selectable() && !exclude[c.ID] {
			eligible = append(eligible, c)
		}
	}

	supply := make(map[model.Category]int, len(model.Categories))
	groups := make(map[int]int)
	for _, c := range eligible {
		supply[c.Category]++
		groups[c.Group]++
	}
	for _, cat := range model.Categories {
		if b := m.BoundsFor(cat); supply[cat] < b.Min {
			return nil, &InfeasibleError{
				Rule: RuleCategorySupply,
				Detail: fmt.Sprintf("category %s requires at least %d candidates but only %d are available and not excluded",
					cat, b.Min, supply[cat]),
			}
		}
	}
	// Group quotas cap how many eligible candidates can be used at once.
	usable := 0
	for _, n := range groups {
		usable += min(n, m.MaxPerGroup)
	}
	if usable < m.RosterSize {
		return nil, &InfeasibleError{
			Rule: RuleRosterSupply,
			Detail: fmt.Sprintf("roster needs %d candidates but at most %d can be picked under a quota of %d per group",
				m.RosterSize, usable, m.MaxPerGroup),
		}
	}

	if cost, ok := cheapestCompletion(eligible, forced, m); !ok {
		return nil, &InfeasibleError{
			Rule:   RuleRosterSupply,
			Detail: fmt.Sprintf("category maximums leave fewer than %d eligible candidates", m.RosterSize),
		}
	} else if cost > m.BudgetCeiling {
		return nil, &InfeasibleError{
			Rule: string(constraints.RuleBudget),
			Detail: fmt.Sprintf("cheapest roster meeting the category rules costs %s, above budget %s",
				cost, m.BudgetCeiling),
		}
	}
	return eligible, nil
}

// cheapestCompletion is the minimum cost of a roster containing forced that
// meets size and category bounds, ignoring group quotas. Within a category
// the cheapest candidates are always preferred, so taking the required
// minimums first and then the cheapest remaining slots is exact.
func cheapestCompletion(eligible, forced []model.Candidate, m constraints.Model) (model.Money, bool) {
	taken := make(map[int]bool, len(forced))
	counts := make(map[model.Category]int, len(model.Categories))
	var cost model.Money
	for _, c := range forced {
		taken[c.ID] = true
		counts[c.Category]++
		cost += c.Cost
	}

	byCat := make(map[model.Category][]model.Candidate)
	for _, c := range eligible {
		if !taken[c.ID] {
			byCat[c.Category] = append(byCat[c.Category], c)
		}
	}
	for cat := range byCat {
		cs := byCat[cat]
		sort.SliceStable(cs, func(i, j int) bool { return cs[i].Cost < cs[j].Cost })
	}

	size := len(forced)
	next := make(map[model.Category]int)
	for _, cat := range model.Categories {
		for counts[cat] < m.BoundsFor(cat).Min {
			i := next[cat]
			if i >= len(byCat[cat]) {
				return 0, false
			}
			cost += byCat[cat][i].Cost
			next[cat]++
			counts[cat]++
			size++
		}
	}

	for size < m.RosterSize {
		pick := model.Category(0)
		var pickCost model.Money
		for _, cat := range model.Categories {
			i := next[cat]
			if counts[cat] >= m.BoundsFor(cat).Max || i >= len(byCat[cat]) {
				continue
			}
			if c := byCat[cat][i].Cost; pick == 0 || c < pickCost {
				pick, pickCost = cat, c
			}
		}
		if pick == 0 {
			return 0, false
		}
		cost += pickCost
		next[pick]++
		counts[pick]++
		size++
	}
	return cost, true
}
