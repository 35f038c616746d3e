package optimizer

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fpl-squad-mcp/internal/constraints"
	"fpl-squad-mcp/internal/model"
)

func cand(id int, cat model.Category, group int, cost model.Money, value float64) model.Candidate {
	return model.Candidate{
		ID: id, Category: cat, Group: group, Cost: cost,
		PredictedValue: value, Availability: model.Available,
	}
}

func mustPool(t *testing.T, cs ...model.Candidate) *model.Pool {
	t.Helper()
	p, err := model.NewPool(cs)
	require.NoError(t, err)
	return p
}

// examplePool is 20 candidates over four categories and six groups.
func examplePool(t *testing.T) *model.Pool {
	t.Helper()
	var cs []model.Candidate
	for id := 1; id <= 20; id++ {
		var cat model.Category
		switch {
		case id <= 3:
			cat = model.GK
		case id <= 9:
			cat = model.DEF
		case id <= 15:
			cat = model.MID
		default:
			cat = model.FWD
		}
		cost := model.Money(300 + (id*137)%500)
		value := float64((id*7)%11) + cost.Float64()*0.5
		cs = append(cs, cand(id, cat, id%6+1, cost, value))
	}
	return mustPool(t, cs...)
}

func exampleModel() constraints.Model {
	return constraints.Model{
		RosterSize: 10,
		CategoryBounds: map[model.Category]constraints.Bounds{
			model.GK:  {Min: 1, Max: 1},
			model.DEF: {Min: 3, Max: 5},
			model.MID: {Min: 3, Max: 5},
			model.FWD: {Min: 1, Max: 3},
		},
		MaxPerGroup:   2,
		BudgetCeiling: model.Money(5000),
	}
}

// bruteForce returns the best total value over every valid roster.
func bruteForce(pool *model.Pool, m constraints.Model) (float64, bool) {
	var eligible []model.Candidate
	exclude := m.ExcludeSet()
	for _, c := range pool.Candidates() {
		if c.Availability.Selectable() && !exclude[c.ID] {
			eligible = append(eligible, c)
		}
	}
	best := math.Inf(-1)
	found := false
	picked := make([]model.Candidate, 0, m.RosterSize)
	var walk func(i int)
	walk = func(i int) {
		if len(picked) == m.RosterSize {
			if len(constraints.CheckMembers(picked, m, constraints.Full)) == 0 {
				found = true
				v := 0.0
				for _, c := range picked {
					v += c.PredictedValue
				}
				best = math.Max(best, v)
			}
			return
		}
		if len(eligible)-i < m.RosterSize-len(picked) {
			return
		}
		picked = append(picked, eligible[i])
		walk(i + 1)
		picked = picked[:len(picked)-1]
		walk(i + 1)
	}
	walk(0)
	return best, found
}

func TestOptimizeExamplePool(t *testing.T) {
	pool := examplePool(t)
	m := exampleModel()

	squad, err := Optimize(context.Background(), pool, m, Options{})
	require.NoError(t, err)

	assert.Len(t, squad.IDs, 10)
	assert.LessOrEqual(t, squad.TotalCost, m.BudgetCeiling)
	assert.Equal(t, m.BudgetCeiling-squad.TotalCost, squad.BudgetRemaining)
	assert.NoError(t, constraints.Validate(pool, squad.IDs, m, constraints.Full))

	want, ok := bruteForce(pool, m)
	require.True(t, ok)
	assert.InDelta(t, want, squad.TotalValue, 1e-6)
}

func TestOptimizeInfeasibleWhenEveryKeeperIsTooExpensive(t *testing.T) {
	var cs []model.Candidate
	for _, c := range examplePool(t).Candidates() {
		if c.Category == model.GK {
			c.Cost = model.Money(5100)
		}
		cs = append(cs, c)
	}
	pool := mustPool(t, cs...)

	_, err := Optimize(context.Background(), pool, exampleModel(), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInfeasible))

	var inf *InfeasibleError
	require.True(t, errors.As(err, &inf))
	assert.Equal(t, string(constraints.RuleBudget), inf.Rule)
}

func TestOptimizeMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 25; trial++ {
		var cs []model.Candidate
		n := 10 + rng.Intn(5)
		for id := 1; id <= n; id++ {
			cat := model.Categories[rng.Intn(len(model.Categories))]
			cs = append(cs, cand(id, cat, 1+rng.Intn(4), model.Money(100+rng.Intn(900)),
				math.Round(rng.NormFloat64()*300)/100))
		}
		pool := mustPool(t, cs...)
		m := constraints.Model{
			RosterSize: 5,
			CategoryBounds: map[model.Category]constraints.Bounds{
				model.GK:  {Min: 0, Max: 1},
				model.DEF: {Min: 1, Max: 3},
				model.MID: {Min: 1, Max: 3},
				model.FWD: {Min: 0, Max: 2},
			},
			MaxPerGroup:   2,
			BudgetCeiling: model.Money(2500 + rng.Intn(1000)),
		}

		want, feasible := bruteForce(pool, m)
		squad, err := Optimize(context.Background(), pool, m, Options{})
		if !feasible {
			assert.ErrorIs(t, err, ErrInfeasible, "trial %d", trial)
			continue
		}
		require.NoError(t, err, "trial %d", trial)
		assert.NoError(t, constraints.Validate(pool, squad.IDs, m, constraints.Full), "trial %d", trial)
		assert.InDelta(t, want, squad.TotalValue, 1e-6, "trial %d", trial)
	}
}

func TestOptimizeDeterministic(t *testing.T) {
	pool := examplePool(t)
	m := exampleModel()

	first, err := Optimize(context.Background(), pool, m, Options{})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := Optimize(context.Background(), pool, m, Options{})
		require.NoError(t, err)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("squad changed between runs (-first +again):\n%s", diff)
		}
	}
}

func TestOptimizeTieBreaks(t *testing.T) {
	pool := mustPool(t,
		cand(1, model.MID, 1, 500, 5),
		cand(2, model.MID, 2, 400, 5),
		cand(3, model.MID, 3, 400, 5),
		cand(4, model.MID, 4, 400, 5),
	)
	m := constraints.Model{RosterSize: 2, MaxPerGroup: 1, BudgetCeiling: 10000}

	squad, err := Optimize(context.Background(), pool, m, Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, squad.IDs)
	assert.Equal(t, model.Money(800), squad.TotalCost)
}

func TestOptimizeForcedSets(t *testing.T) {
	pool := examplePool(t)
	m := exampleModel()
	base, err := Optimize(context.Background(), pool, m, Options{})
	require.NoError(t, err)

	// Force out the most valuable pick and force in a DEF that was left out.
	var drop, keep int
	for _, c := range base.Members {
		if drop == 0 || c.PredictedValue > mustLookup(t, pool, drop).PredictedValue {
			drop = c.ID
		}
	}
	for _, c := range pool.Candidates() {
		if c.Category == model.DEF && !base.Contains(c.ID) {
			keep = c.ID
			break
		}
	}
	require.NotZero(t, keep)
	m.ForcedExclude = []int{drop}
	m.ForcedInclude = []int{keep}

	squad, err := Optimize(context.Background(), pool, m, Options{})
	require.NoError(t, err)
	assert.True(t, squad.Contains(keep))
	assert.False(t, squad.Contains(drop))
	assert.NoError(t, constraints.Validate(pool, squad.IDs, m, constraints.Full))
	assert.LessOrEqual(t, squad.TotalValue, base.TotalValue+1e-9)

	want, ok := bruteForce(pool, m)
	require.True(t, ok)
	assert.InDelta(t, want, squad.TotalValue, 1e-6)
}

func mustLookup(t *testing.T, pool *model.Pool, id int) model.Candidate {
	t.Helper()
	c, ok := pool.Lookup(id)
	require.True(t, ok)
	return c
}

func TestOptimizeSkipsUnavailable(t *testing.T) {
	cs := examplePool(t).Candidates()
	best := 0
	for i, c := range cs {
		if c.PredictedValue > cs[best].PredictedValue {
			best = i
		}
	}
	cs[best].Availability = model.Unavailable
	pool := mustPool(t, cs...)

	squad, err := Optimize(context.Background(), pool, exampleModel(), Options{})
	require.NoError(t, err)
	assert.False(t, squad.Contains(cs[best].ID))
}

func TestOptimizePresolveFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cs []model.Candidate, m *constraints.Model) []model.Candidate
		rule   string
	}{
		{
			name: "ForcedIncludeUnavailable",
			mutate: func(cs []model.Candidate, m *constraints.Model) []model.Candidate {
				cs[0].Availability = model.Unavailable
				m.ForcedInclude = []int{cs[0].ID}
				return cs
			},
			rule: RuleForcedUnavailable,
		},
		{
			name: "ForcedIncludeBreaksCategoryMax",
			mutate: func(cs []model.Candidate, m *constraints.Model) []model.Candidate {
				m.ForcedInclude = []int{1, 2}
				return cs
			},
			rule: string(constraints.RuleCategoryAboveMax),
		},
		{
			name: "CategorySupply",
			mutate: func(cs []model.Candidate, m *constraints.Model) []model.Candidate {
				m.ForcedExclude = []int{16, 17, 18, 19, 20}
				return cs
			},
			rule: RuleCategorySupply,
		},
		{
			name: "GroupQuotaLimitsSupply",
			mutate: func(cs []model.Candidate, m *constraints.Model) []model.Candidate {
				for i := range cs {
					cs[i].Group = 1 + i%4
				}
				return cs
			},
			rule: RuleRosterSupply,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := exampleModel()
			cs := tc.mutate(examplePool(t).Candidates(), &m)
			_, err := Optimize(context.Background(), mustPool(t, cs...), m, Options{})
			var inf *InfeasibleError
			require.True(t, errors.As(err, &inf), "got %v", err)
			assert.Equal(t, tc.rule, inf.Rule)
		})
	}
}

func TestOptimizeCategorySupplyMessage(t *testing.T) {
	m := exampleModel()
	m.ForcedExclude = []int{16, 17, 18, 19, 20}
	_, err := Optimize(context.Background(), examplePool(t), m, Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "category FWD requires at least 1 candidates but only 0 are available and not excluded")
}

func TestOptimizeInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *constraints.Model)
	}{
		{"ZeroRoster", func(m *constraints.Model) { m.RosterSize = 0 }},
		{"NegativeBudget", func(m *constraints.Model) { m.BudgetCeiling = -1 }},
		{"MinAboveMax", func(m *constraints.Model) { m.CategoryBounds[model.DEF] = constraints.Bounds{Min: 4, Max: 3} }},
		{"UnknownForcedID", func(m *constraints.Model) { m.ForcedInclude = []int{999} }},
		{"IncludeExcludeOverlap", func(m *constraints.Model) {
			m.ForcedInclude = []int{4}
			m.ForcedExclude = []int{4}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := exampleModel()
			tc.mutate(&m)
			_, err := Optimize(context.Background(), examplePool(t), m, Options{})
			assert.ErrorIs(t, err, model.ErrInvalidInput)
		})
	}
}

func TestOptimizeHonoursDeadline(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := Optimize(ctx, examplePool(t), exampleModel(), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.False(t, errors.Is(err, ErrInfeasible))
}
