package constraints

import (
	"errors"
	"fmt"
	"sort"

	"fpl-squad-mcp/internal/model"
)

// Rule identifies which constraint a selection broke.
type Rule string

const (
	RuleUnknownCandidate   Rule = "unknown_candidate"
	RuleDuplicateCandidate Rule = "duplicate_candidate"
	RuleForcedExclude      Rule = "forced_exclude_present"
	RuleWrongSize          Rule = "wrong_size"
	RuleCategoryAboveMax   Rule = "category_above_max"
	RuleCategoryBelowMin   Rule = "category_below_min"
	RuleGroupQuota         Rule = "group_quota_exceeded"
	RuleBudget             Rule = "budget_exceeded"
	RuleForcedInclude      Rule = "forced_include_missing"
)

// ErrViolation matches every *Violation via errors.Is.
var ErrViolation = errors.New("constraint violation")

// Violation reports a broken rule. Margin is how far past the limit the
// selection is, always positive.
type Violation struct {
	Rule    Rule    `json:"rule"`
	Subject string  `json:"subject,omitempty"`
	Limit   float64 `json:"limit"`
	Actual  float64 `json:"actual"`
	Margin  float64 `json:"margin"`
	Detail  string  `json:"detail"`
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s", v.Rule, v.Detail)
}

func (v *Violation) Is(target error) bool {
	return target == ErrViolation
}

// Mode selects how much of the rule set applies.
type Mode int

const (
	// Full checks a complete roster against every rule.
	Full Mode = iota
	// Partial checks a subset (e.g. forced includes alone): upper bounds only,
	// plus whether the free slots can still reach every category minimum.
	Partial
)

// Validate returns nil or the first violated rule. Rules are checked in a
// fixed order so the reported violation is deterministic.
func Validate(pool *model.Pool, ids []int, m Model, mode Mode) error {
	vs, err := ValidateAll(pool, ids, m, mode)
	if err != nil {
		return err
	}
	if len(vs) > 0 {
		return vs[0]
	}
	return nil
}

// ValidateAll returns every violation. The error is non-nil only when the
// rule set itself is malformed.
func ValidateAll(pool *model.Pool, ids []int, m Model, mode Mode) ([]*Violation, error) {
	if err := m.Check(); err != nil {
		return nil, err
	}
	var out []*Violation
	seen := make(map[int]bool, len(ids))
	members := make([]model.Candidate, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			out = append(out, &Violation{
				Rule: RuleDuplicateCandidate, Subject: fmt.Sprint(id), Limit: 1, Actual: 2, Margin: 1,
				Detail: fmt.Sprintf("candidate %d appears more than once", id),
			})
			continue
		}
		seen[id] = true
		c, ok := pool.Lookup(id)
		if !ok {
			out = append(out, &Violation{
				Rule: RuleUnknownCandidate, Subject: fmt.Sprint(id),
				Detail: fmt.Sprintf("candidate %d is not in the pool", id),
			})
			continue
		}
		members = append(members, c)
	}
	return append(out, CheckMembers(members, m, mode)...), nil
}

// CheckMembers validates already-resolved members. It assumes m passed Check.
func CheckMembers(members []model.Candidate, m Model, mode Mode) []*Violation {
	var out []*Violation

	exclude := m.ExcludeSet()
	for _, c := range members {
		if exclude[c.ID] {
			out = append(out, &Violation{
				Rule: RuleForcedExclude, Subject: fmt.Sprint(c.ID), Limit: 0, Actual: 1, Margin: 1,
				Detail: fmt.Sprintf("candidate %d is forced out but selected", c.ID),
			})
		}
	}

	n := len(members)
	if (mode == Full && n != m.RosterSize) || (mode == Partial && n > m.RosterSize) {
		out = append(out, &Violation{
			Rule: RuleWrongSize, Limit: float64(m.RosterSize), Actual: float64(n),
			Margin: absf(float64(n - m.RosterSize)),
			Detail: fmt.Sprintf("selection has %d candidates, roster size is %d", n, m.RosterSize),
		})
	}

	counts := make(map[model.Category]int, len(model.Categories))
	groups := make(map[int]int)
	var cost model.Money
	for _, c := range members {
		counts[c.Category]++
		groups[c.Group]++
		cost += c.Cost
	}

	for _, cat := range model.Categories {
		b := m.BoundsFor(cat)
		if counts[cat] > b.Max {
			out = append(out, &Violation{
				Rule: RuleCategoryAboveMax, Subject: cat.String(),
				Limit: float64(b.Max), Actual: float64(counts[cat]), Margin: float64(counts[cat] - b.Max),
				Detail: fmt.Sprintf("category %s has %d, max is %d", cat, counts[cat], b.Max),
			})
		}
	}

	switch mode {
	case Full:
		for _, cat := range model.Categories {
			b := m.BoundsFor(cat)
			if counts[cat] < b.Min {
				out = append(out, &Violation{
					Rule: RuleCategoryBelowMin, Subject: cat.String(),
					Limit: float64(b.Min), Actual: float64(counts[cat]), Margin: float64(b.Min - counts[cat]),
					Detail: fmt.Sprintf("category %s has %d, min is %d", cat, counts[cat], b.Min),
				})
			}
		}
	case Partial:
		free := m.RosterSize - n
		needed := 0
		for _, cat := range model.Categories {
			if short := m.BoundsFor(cat).Min - counts[cat]; short > 0 {
				needed += short
			}
		}
		if needed > free && free >= 0 {
			out = append(out, &Violation{
				Rule: RuleCategoryBelowMin, Limit: float64(free), Actual: float64(needed),
				Margin: float64(needed - free),
				Detail: fmt.Sprintf("category minimums need %d more candidates but only %d slots remain", needed, free),
			})
		}
	}

	groupIDs := make([]int, 0, len(groups))
	for g := range groups {
		groupIDs = append(groupIDs, g)
	}
	sort.Ints(groupIDs)
	for _, g := range groupIDs {
		if groups[g] > m.MaxPerGroup {
			out = append(out, &Violation{
				Rule: RuleGroupQuota, Subject: fmt.Sprint(g),
				Limit: float64(m.MaxPerGroup), Actual: float64(groups[g]), Margin: float64(groups[g] - m.MaxPerGroup),
				Detail: fmt.Sprintf("group %d has %d, quota is %d", g, groups[g], m.MaxPerGroup),
			})
		}
	}

	if cost > m.BudgetCeiling {
		out = append(out, &Violation{
			Rule:  RuleBudget,
			Limit: m.BudgetCeiling.Float64(), Actual: cost.Float64(), Margin: (cost - m.BudgetCeiling).Float64(),
			Detail: fmt.Sprintf("total cost %s exceeds budget %s by %s", cost, m.BudgetCeiling, cost-m.BudgetCeiling),
		})
	}

	if mode == Full {
		present := make(map[int]bool, len(members))
		for _, c := range members {
			present[c.ID] = true
		}
		for _, id := range m.ForcedInclude {
			if !present[id] {
				out = append(out, &Violation{
					Rule: RuleForcedInclude, Subject: fmt.Sprint(id), Limit: 1, Actual: 0, Margin: 1,
					Detail: fmt.Sprintf("candidate %d is forced in but missing", id),
				})
			}
		}
	}
	return out
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
