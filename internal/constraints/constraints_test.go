package constraints

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fpl-squad-mcp/internal/model"
)

// smallRules: one GK, one or two DEF, zero or one MID, three slots, one per club.
func smallRules() Model {
	return Model{
		RosterSize: 3,
		CategoryBounds: map[model.Category]Bounds{
			model.GK:  {Min: 1, Max: 1},
			model.DEF: {Min: 1, Max: 2},
			model.MID: {Min: 0, Max: 1},
			model.FWD: {Min: 0, Max: 0},
		},
		MaxPerGroup:   1,
		BudgetCeiling: 1500,
	}
}

func smallPool(t *testing.T) *model.Pool {
	t.Helper()
	p, err := model.NewPool([]model.Candidate{
		{ID: 1, Category: model.GK, Group: 1, Cost: 400, PredictedValue: 3},
		{ID: 2, Category: model.GK, Group: 2, Cost: 500, PredictedValue: 4},
		{ID: 3, Category: model.DEF, Group: 3, Cost: 450, PredictedValue: 5},
		{ID: 4, Category: model.DEF, Group: 1, Cost: 600, PredictedValue: 6},
		{ID: 5, Category: model.MID, Group: 4, Cost: 600, PredictedValue: 9},
	})
	require.NoError(t, err)
	return p
}

func TestCheck(t *testing.T) {
	require.NoError(t, FPLDefaults().Check())
	require.NoError(t, smallRules().Check())

	cases := []struct {
		name  string
		mod   func(*Model)
		field string
	}{
		{"roster size", func(m *Model) { m.RosterSize = 0 }, "roster_size"},
		{"group quota", func(m *Model) { m.MaxPerGroup = 0 }, "max_per_group"},
		{"budget", func(m *Model) { m.BudgetCeiling = -1 }, "budget_ceiling"},
		{"min above max", func(m *Model) { m.CategoryBounds[model.DEF] = Bounds{Min: 3, Max: 2} }, "category_bounds"},
		{"minimums too large", func(m *Model) { m.CategoryBounds[model.MID] = Bounds{Min: 2, Max: 2} }, "category_bounds"},
		{"maximums too small", func(m *Model) {
			m.CategoryBounds[model.DEF] = Bounds{Min: 1, Max: 1}
			m.CategoryBounds[model.MID] = Bounds{Min: 0, Max: 0}
		}, "category_bounds"},
		{"too many forced", func(m *Model) { m.ForcedInclude = []int{1, 2, 3, 4} }, "forced_include"},
		{"duplicate forced", func(m *Model) { m.ForcedInclude = []int{1, 1} }, "forced_include"},
		{"forced both ways", func(m *Model) { m.ForcedInclude = []int{1}; m.ForcedExclude = []int{1} }, "forced_exclude"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := smallRules()
			tc.mod(&m)
			var inv *model.InvalidInputError
			require.ErrorAs(t, m.Check(), &inv)
			assert.Equal(t, tc.field, inv.Field)
		})
	}
}

func TestBoundsForUnlisted(t *testing.T) {
	m := smallRules()
	delete(m.CategoryBounds, model.FWD)
	assert.Equal(t, Bounds{Min: 0, Max: 3}, m.BoundsFor(model.FWD))
}

func TestValidateFull(t *testing.T) {
	p := smallPool(t)
	m := smallRules()

	assert.NoError(t, Validate(p, []int{1, 3, 5}, m, Full))

	err := Validate(p, []int{1, 4, 5}, m, Full)
	var v *Violation
	require.ErrorAs(t, err, &v)
	assert.ErrorIs(t, err, ErrViolation)
	assert.Equal(t, RuleGroupQuota, v.Rule)
	assert.Equal(t, "1", v.Subject)

	err = Validate(p, []int{2, 4, 5}, m, Full)
	require.ErrorAs(t, err, &v)
	assert.Equal(t, RuleBudget, v.Rule)
	assert.InDelta(t, 2.0, v.Margin, 1e-9)

	err = Validate(p, []int{1, 3}, m, Full)
	require.ErrorAs(t, err, &v)
	assert.Equal(t, RuleWrongSize, v.Rule)
}

func TestValidateAllOrder(t *testing.T) {
	p := smallPool(t)
	m := smallRules()
	m.ForcedExclude = []int{5}
	m.ForcedInclude = []int{3}

	vs, err := ValidateAll(p, []int{1, 2, 5, 5, 9}, m, Full)
	require.NoError(t, err)
	var rules []Rule
	for _, v := range vs {
		rules = append(rules, v.Rule)
	}
	assert.Equal(t, []Rule{
		RuleDuplicateCandidate,
		RuleUnknownCandidate,
		RuleForcedExclude,
		RuleCategoryAboveMax,
		RuleCategoryBelowMin,
		RuleForcedInclude,
	}, rules)
	for _, v := range vs {
		if v.Rule != RuleUnknownCandidate {
			assert.Positive(t, v.Margin, v.Rule)
		}
	}
}

func TestValidatePartial(t *testing.T) {
	p := smallPool(t)
	m := smallRules()

	assert.NoError(t, Validate(p, []int{1}, m, Partial))
	assert.NoError(t, Validate(p, nil, m, Partial))

	err := Validate(p, []int{1, 2}, m, Partial)
	var v *Violation
	require.ErrorAs(t, err, &v)
	assert.Equal(t, RuleCategoryAboveMax, v.Rule)

	// Two MIDs would fill every slot with no room for GK and DEF.
	m.CategoryBounds[model.MID] = Bounds{Min: 0, Max: 2}
	m.MaxPerGroup = 2
	pool, err := model.NewPool(append(p.Candidates(),
		model.Candidate{ID: 6, Category: model.MID, Group: 4, Cost: 100, PredictedValue: 1}))
	require.NoError(t, err)
	err = Validate(pool, []int{5, 6}, m, Partial)
	require.ErrorAs(t, err, &v)
	assert.Equal(t, RuleCategoryBelowMin, v.Rule)
}

func TestValidateRejectsBadRules(t *testing.T) {
	m := smallRules()
	m.RosterSize = 0
	_, err := ValidateAll(smallPool(t), []int{1}, m, Full)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}
