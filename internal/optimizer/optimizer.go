// Package optimizer picks the highest-value roster from a candidate pool as a
// 0/1 integer program.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fpl-squad-mcp/internal/constraints"
	"fpl-squad-mcp/internal/milp"
	"fpl-squad-mcp/internal/model"
)

type Options struct {
	// MaxNodes caps branch-and-bound nodes per stage; 0 means unlimited.
	MaxNodes int
	// SolveID tags log lines; a fresh uuid is used when empty.
	SolveID string
	Logger  *zap.Logger
}

// Optimize returns the roster of exactly RosterSize candidates with the
// highest total predicted value. Equal-value rosters are ordered by lower
// total cost, then by lower sum of candidate ids. The id rule compares sums,
// not sorted id lists: {2,3} beats {1,10}. Rosters that still tie on the id
// sum resolve by branch order, which is fixed for a given pool, so the
// result is stable for a stable input.
func Optimize(ctx context.Context, pool *model.Pool, m constraints.Model, opts Options) (model.Squad, error) {
	if pool == nil {
		return model.Squad{}, model.InvalidInput("pool", "is required")
	}
	if err := m.Check(); err != nil {
		return model.Squad{}, err
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	solveID := opts.SolveID
	if solveID == "" {
		solveID = uuid.NewString()
	}
	log = log.With(zap.String("component", "optimizer"), zap.String("solve_id", solveID))
	start := time.Now()

	eligible, err := presolve(pool, m)
	if err != nil {
		log.Debug("presolve rejected", zap.Error(err))
		return model.Squad{}, err
	}

	p, stages := formulate(eligible, m)
	log.Debug("formulated",
		zap.Int("variables", p.NumVars),
		zap.Int("constraints", len(p.Constraints)),
		zap.Int("forced", len(m.ForcedInclude)),
	)

	res, err := milp.SolveLex(ctx, p, stages, milp.Options{MaxNodes: opts.MaxNodes, Logger: log})
	if err != nil {
		switch {
		case errors.Is(err, milp.ErrInfeasible):
			return model.Squad{}, &InfeasibleError{
				Rule:   RuleCombined,
				Detail: "no roster satisfies the size, category, group and budget rules together",
			}
		default:
			return model.Squad{}, fmt.Errorf("optimize: %w", err)
		}
	}

	members := make([]model.Candidate, 0, m.RosterSize)
	for _, j := range res.Selected() {
		members = append(members, eligible[j])
	}
	if vs := constraints.CheckMembers(members, m, constraints.Full); len(vs) > 0 {
		return model.Squad{}, fmt.Errorf("optimize: solver returned an invalid roster: %w", vs[0])
	}
	squad := model.NewSquad(members, m.BudgetCeiling)

	log.Debug("solved",
		zap.Float64("value", squad.TotalValue),
		zap.Stringer("cost", squad.TotalCost),
		zap.Int("nodes", res.Nodes),
		zap.Int("lp_iterations", res.LPIters),
		zap.Duration("elapsed", time.Since(start)),
	)
	return squad, nil
}

// formulate builds one binary per eligible candidate, in the order given.
func formulate(eligible []model.Candidate, m constraints.Model) (*milp.Problem, []milp.Stage) {
	n := len(eligible)
	p := milp.NewProblem(n)

	all := make([]int, n)
	ones := make([]float64, n)
	costs := make([]float64, n)
	value := make([]float64, n)
	negCost := make([]float64, n)
	negID := make([]float64, n)
	byCat := make(map[model.Category][]int)
	byGroup := make(map[int][]int)
	var groupOrder []int
	include := m.IncludeSet()
	for j, c := range eligible {
		all[j] = j
		ones[j] = 1
		costs[j] = float64(c.Cost)
		value[j] = c.PredictedValue
		negCost[j] = -float64(c.Cost)
		negID[j] = -float64(c.ID)
		byCat[c.Category] = append(byCat[c.Category], j)
		if _, seen := byGroup[c.Group]; !seen {
			groupOrder = append(groupOrder, c.Group)
		}
		byGroup[c.Group] = append(byGroup[c.Group], j)
		if include[c.ID] {
			p.Fix(j, 1)
		}
	}

	p.AddConstraint("roster_size", all, ones, milp.Equal, float64(m.RosterSize))
	for _, cat := range model.Categories {
		vars := byCat[cat]
		b := m.BoundsFor(cat)
		if len(vars) == 0 {
			continue
		}
		coefs := ones[:len(vars)]
		switch {
		case b.Min == b.Max:
			p.AddConstraint("category:"+cat.String(), vars, coefs, milp.Equal, float64(b.Min))
		default:
			if b.Min > 0 {
				p.AddConstraint("category_min:"+cat.String(), vars, coefs, milp.GreaterEq, float64(b.Min))
			}
			if b.Max < len(vars) && b.Max < m.RosterSize {
				p.AddConstraint("category_max:"+cat.String(), vars, coefs, milp.LessEq, float64(b.Max))
			}
		}
	}
	for _, g := range groupOrder {
		vars := byGroup[g]
		if len(vars) > m.MaxPerGroup {
			p.AddConstraint(fmt.Sprintf("group:%d", g), vars, ones[:len(vars)], milp.LessEq, float64(m.MaxPerGroup))
		}
	}
	p.AddConstraint("budget", all, costs, milp.LessEq, float64(m.BudgetCeiling))

	return p, []milp.Stage{
		{Name: "value", Objective: value},
		{Name: "cost", Objective: negCost},
		{Name: "ids", Objective: negID},
	}
}
