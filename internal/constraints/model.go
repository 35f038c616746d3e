// Package constraints holds the declarative roster rules and the validator
// used both as a pre-solve precondition check and as a feasibility oracle.
package constraints

import (
	"fpl-squad-mcp/internal/model"
)

// Bounds is an inclusive [Min, Max] count range.
type Bounds struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// Model is the active rule set for a roster.
type Model struct {
	RosterSize     int                       `json:"roster_size"`
	CategoryBounds map[model.Category]Bounds `json:"category_bounds"`
	MaxPerGroup    int                       `json:"max_per_group"`
	BudgetCeiling  model.Money               `json:"budget_ceiling"`
	ForcedInclude  []int                     `json:"forced_include,omitempty"`
	ForcedExclude  []int                     `json:"forced_exclude,omitempty"`
}

// FPLDefaults is the standard FPL squad: 2 GK, 5 DEF, 5 MID, 3 FWD,
// at most 3 per club, 100.0m budget.
func FPLDefaults() Model {
	return Model{
		RosterSize: 15,
		CategoryBounds: map[model.Category]Bounds{
			model.GK:  {Min: 2, Max: 2},
			model.DEF: {Min: 5, Max: 5},
			model.MID: {Min: 5, Max: 5},
			model.FWD: {Min: 3, Max: 3},
		},
		MaxPerGroup:   3,
		BudgetCeiling: model.Money(10000),
	}
}

// BoundsFor returns the bounds of a category. Unlisted categories are unconstrained.
func (m Model) BoundsFor(c model.Category) Bounds {
	if b, ok := m.CategoryBounds[c]; ok {
		return b
	}
	return Bounds{Min: 0, Max: m.RosterSize}
}

// Check rejects malformed rule sets. It is the boundary check every operation
// runs before touching a solver.
func (m Model) Check() error {
	if m.RosterSize <= 0 {
		return model.InvalidInput("roster_size", "must be positive, got %d", m.RosterSize)
	}
	if m.MaxPerGroup <= 0 {
		return model.InvalidInput("max_per_group", "must be positive, got %d", m.MaxPerGroup)
	}
	if m.BudgetCeiling < 0 {
		return model.InvalidInput("budget_ceiling", "must not be negative, got %s", m.BudgetCeiling)
	}
	sumMin, sumMax := 0, 0
	for _, c := range model.Categories {
		b := m.BoundsFor(c)
		if b.Min < 0 {
			return model.InvalidInput("category_bounds", "%s min %d is negative", c, b.Min)
		}
		if b.Min > b.Max {
			return model.InvalidInput("category_bounds", "%s min %d exceeds max %d", c, b.Min, b.Max)
		}
		sumMin += b.Min
		sumMax += b.Max
	}
	for c := range m.CategoryBounds {
		if !c.Valid() {
			return model.InvalidInput("category_bounds", "unknown category %d", int(c))
		}
	}
	if sumMin > m.RosterSize {
		return model.InvalidInput("category_bounds", "category minimums sum to %d, above roster size %d", sumMin, m.RosterSize)
	}
	if sumMax < m.RosterSize {
		return model.InvalidInput("category_bounds", "category maximums sum to %d, below roster size %d", sumMax, m.RosterSize)
	}
	if len(m.ForcedInclude) > m.RosterSize {
		return model.InvalidInput("forced_include", "%d ids exceed roster size %d", len(m.ForcedInclude), m.RosterSize)
	}
	include := make(map[int]bool, len(m.ForcedInclude))
	for _, id := range m.ForcedInclude {
		if include[id] {
			return model.InvalidInput("forced_include", "duplicate id %d", id)
		}
		include[id] = true
	}
	exclude := make(map[int]bool, len(m.ForcedExclude))
	for _, id := range m.ForcedExclude {
		if exclude[id] {
			return model.InvalidInput("forced_exclude", "duplicate id %d", id)
		}
		if include[id] {
			return model.InvalidInput("forced_exclude", "id %d is also forced in", id)
		}
		exclude[id] = true
	}
	return nil
}

func (m Model) IncludeSet() map[int]bool {
	return toSet(m.ForcedInclude)
}

func (m Model) ExcludeSet() map[int]bool {
	return toSet(m.ForcedExclude)
}

func toSet(ids []int) map[int]bool {
	out := make(map[int]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}
