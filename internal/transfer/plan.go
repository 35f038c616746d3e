// Package transfer finds the best set of swaps for an existing roster.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"sort"
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
	SolveID  string
	Logger   *zap.Logger
}

// Plan returns the swaps (at most maxTransfers) that raise the roster's total
// predicted value the most while the result still satisfies m and the swaps
// cost no more than incrementalBudget in total. Among equal gains it prefers
// fewer transfers, then a lower cost delta, then lower candidate ids. When no
// swap set strictly improves the roster the empty plan is returned.
//
// Forced includes already on the roster are never transferred out and forced
// includes off the roster are always brought in. Forced excludes are never
// brought in and are always sold when held. A roster whose forced moves cannot
// fit within maxTransfers and the budgets is rejected as invalid input. Costs
// and values are read from pool, not from whatever the roster was bought at.
func Plan(ctx context.Context, pool *model.Pool, current []int, m constraints.Model,
	incrementalBudget model.Money, maxTransfers int, opts Options) (model.TransferPlan, error) {
	if pool == nil {
		return model.TransferPlan{}, model.InvalidInput("pool", "is required")
	}
	if maxTransfers < 0 {
		return model.TransferPlan{}, model.InvalidInput("max_transfers", "must not be negative, got %d", maxTransfers)
	}
	if incrementalBudget < 0 {
		return model.TransferPlan{}, model.InvalidInput("incremental_budget", "must not be negative, got %s", incrementalBudget)
	}
	if err := m.Check(); err != nil {
		return model.TransferPlan{}, err
	}
	if err := checkForced(pool, m); err != nil {
		return model.TransferPlan{}, err
	}
	roster, err := resolveRoster(pool, current, m)
	if err != nil {
		return model.TransferPlan{}, err
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	solveID := opts.SolveID
	if solveID == "" {
		solveID = uuid.NewString()
	}
	log = log.With(zap.String("component", "transfer"), zap.String("solve_id", solveID))
	start := time.Now()

	f, err := formulate(pool, roster, m, incrementalBudget, maxTransfers)
	if err != nil {
		return model.TransferPlan{}, err
	}
	if !f.forced() && (maxTransfers == 0 || len(f.outs) == 0 || len(f.ins) == 0) {
		log.Debug("nothing to swap", zap.Int("max_transfers", maxTransfers),
			zap.Int("outs", len(f.outs)), zap.Int("ins", len(f.ins)))
		return emptyPlan(), nil
	}
	log.Debug("formulated",
		zap.Int("outs", len(f.outs)),
		zap.Int("ins", len(f.ins)),
		zap.Int("constraints", len(f.p.Constraints)),
	)

	o := milp.Options{MaxNodes: opts.MaxNodes, Logger: log}
	if !f.forced() {
		o.Incumbent = make([]int, f.p.NumVars)
	}
	res, err := milp.SolveLex(ctx, f.p, f.stages, o)
	if errors.Is(err, milp.ErrInfeasible) && f.forced() {
		return model.TransferPlan{}, model.InvalidInput("current_squad",
			"forced moves (%d in, %d out) cannot be made within %d transfers and the budget",
			f.forcedIn, f.forcedOut, maxTransfers)
	}
	if err != nil {
		return model.TransferPlan{}, fmt.Errorf("plan transfers: %w", err)
	}
	if !f.forced() && res.StageValues[0] <= milp.Tolerance(0) {
		log.Debug("no improving plan", zap.Float64("best_gain", res.StageValues[0]))
		return emptyPlan(), nil
	}

	var outs, ins []model.Candidate
	for j, v := range res.X {
		if v != 1 {
			continue
		}
		if j < len(f.outs) {
			outs = append(outs, f.outs[j])
		} else {
			ins = append(ins, f.ins[j-len(f.outs)])
		}
	}
	plan := pair(outs, ins)

	if err := verify(pool, roster, plan, m, incrementalBudget, maxTransfers); err != nil {
		return model.TransferPlan{}, err
	}
	log.Debug("planned",
		zap.Int("transfers", plan.Len()),
		zap.Float64("value_delta", plan.ValueDelta),
		zap.Stringer("cost_delta", plan.CostDelta),
		zap.Int("nodes", res.Nodes),
		zap.Duration("elapsed", time.Since(start)),
	)
	return plan, nil
}

func emptyPlan() model.TransferPlan {
	return model.TransferPlan{Transfers: []model.Transfer{}}
}

// rosterRules is m without forced sets: the rules a current roster must
// already satisfy for the empty plan to be valid.
func rosterRules(m constraints.Model) constraints.Model {
	r := m
	r.ForcedInclude = nil
	r.ForcedExclude = nil
	return r
}

// checkForced rejects forced ids the pool does not know.
func checkForced(pool *model.Pool, m constraints.Model) error {
	for _, id := range m.ForcedInclude {
		if _, ok := pool.Lookup(id); !ok {
			return model.InvalidInput("forced_include", "candidate %d is not in the pool", id)
		}
	}
	for _, id := range m.ForcedExclude {
		if _, ok := pool.Lookup(id); !ok {
			return model.InvalidInput("forced_exclude", "candidate %d is not in the pool", id)
		}
	}
	return nil
}

func resolveRoster(pool *model.Pool, current []int, m constraints.Model) ([]model.Candidate, error) {
	seen := make(map[int]bool, len(current))
	for _, id := range current {
		if seen[id] {
			return nil, model.InvalidInput("current_squad", "candidate %d appears more than once", id)
		}
		seen[id] = true
	}
	roster, err := pool.Resolve(current)
	if err != nil {
		return nil, model.InvalidInput("current_squad", "%v", err)
	}
	if vs := constraints.CheckMembers(roster, rosterRules(m), constraints.Full); len(vs) > 0 {
		return nil, model.InvalidInput("current_squad", "does not satisfy the roster rules: %v", vs[0])
	}
	sort.Slice(roster, func(i, j int) bool { return roster[i].ID < roster[j].ID })
	return roster, nil
}

type formulation struct {
	p      *milp.Problem
	stages []milp.Stage
	outs   []model.Candidate
	ins    []model.Candidate

	// forcedIn and forcedOut count the moves the forced sets require.
	forcedIn  int
	forcedOut int
}

func (f formulation) forced() bool {
	return f.forcedIn > 0 || f.forcedOut > 0
}

// formulate lays out removal indicators first, then addition indicators,
// each in ascending id order. Forced moves are fixed to 1.
func formulate(pool *model.Pool, roster []model.Candidate, m constraints.Model,
	incrementalBudget model.Money, maxTransfers int) (formulation, error) {
	include := m.IncludeSet()
	exclude := m.ExcludeSet()
	onRoster := make(map[int]bool, len(roster))

	var f formulation
	catCount := make(map[model.Category]int)
	groupCount := make(map[int]int)
	var currentCost model.Money
	for _, c := range roster {
		onRoster[c.ID] = true
		catCount[c.Category]++
		groupCount[c.Group]++
		currentCost += c.Cost
		if !include[c.ID] {
			f.outs = append(f.outs, c)
		}
	}
	for _, c := range pool.Candidates() {
		if onRoster[c.ID] || exclude[c.ID] {
			continue
		}
		if !c.Availability.Selectable() {
			if include[c.ID] {
				return f, model.InvalidInput("forced_include", "candidate %d is %s and cannot be brought in", c.ID, c.Availability)
			}
			continue
		}
		f.ins = append(f.ins, c)
	}
	for _, c := range f.outs {
		if exclude[c.ID] {
			f.forcedOut++
		}
	}
	for _, c := range f.ins {
		if include[c.ID] {
			f.forcedIn++
		}
	}
	if need := max(f.forcedIn, f.forcedOut); need > maxTransfers {
		return f, model.InvalidInput("current_squad",
			"forced sets need %d transfers but only %d are allowed", need, maxTransfers)
	}

	nOut := len(f.outs)
	n := nOut + len(f.ins)
	f.p = milp.NewProblem(n)

	value := make([]float64, n)
	fewer := make([]float64, n)
	cheaper := make([]float64, n)
	lowIDs := make([]float64, n)
	costs := make([]float64, n)
	link := make([]float64, n)
	all := make([]int, n)
	outVars := make([]int, nOut)
	byCat := make(map[model.Category][]int)
	byGroup := make(map[int][]int)
	var groupOrder []int

	add := func(j int, c model.Candidate, sign float64) {
		all[j] = j
		value[j] = sign * c.PredictedValue
		costs[j] = sign * float64(c.Cost)
		cheaper[j] = -costs[j]
		lowIDs[j] = -float64(c.ID)
		link[j] = sign
		byCat[c.Category] = append(byCat[c.Category], j)
		if _, ok := byGroup[c.Group]; !ok {
			groupOrder = append(groupOrder, c.Group)
		}
		byGroup[c.Group] = append(byGroup[c.Group], j)
	}
	for j, c := range f.outs {
		add(j, c, -1)
		fewer[j] = -1
		outVars[j] = j
		if exclude[c.ID] {
			f.p.Fix(j, 1)
		}
	}
	for k, c := range f.ins {
		add(nOut+k, c, 1)
		if include[c.ID] {
			f.p.Fix(nOut+k, 1)
		}
	}

	p := f.p
	p.AddConstraint("swap_balance", all, link, milp.Equal, 0)
	p.AddConstraint("max_transfers", outVars, ones(nOut), milp.LessEq, float64(maxTransfers))
	for _, cat := range model.Categories {
		vars := byCat[cat]
		if len(vars) == 0 {
			continue
		}
		b := m.BoundsFor(cat)
		coefs := pick(link, vars)
		have := catCount[cat]
		if b.Min == b.Max {
			p.AddConstraint("category:"+cat.String(), vars, coefs, milp.Equal, float64(b.Min-have))
			continue
		}
		p.AddConstraint("category_min:"+cat.String(), vars, coefs, milp.GreaterEq, float64(b.Min-have))
		p.AddConstraint("category_max:"+cat.String(), vars, coefs, milp.LessEq, float64(b.Max-have))
	}
	for _, g := range groupOrder {
		vars := byGroup[g]
		p.AddConstraint(fmt.Sprintf("group:%d", g), vars, pick(link, vars), milp.LessEq,
			float64(m.MaxPerGroup-groupCount[g]))
	}
	limit := incrementalBudget
	if headroom := m.BudgetCeiling - currentCost; headroom < limit {
		limit = headroom
	}
	p.AddConstraint("budget", all, costs, milp.LessEq, float64(limit))

	f.stages = []milp.Stage{
		{Name: "value_delta", Objective: value},
		{Name: "transfers", Objective: fewer},
		{Name: "cost_delta", Objective: cheaper},
		{Name: "ids", Objective: lowIDs},
	}
	return f, nil
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}

func pick(coefs []float64, vars []int) []float64 {
	out := make([]float64, len(vars))
	for i, j := range vars {
		out[i] = coefs[j]
	}
	return out
}

// pair matches removals to additions of the same category first, then the
// leftovers in ascending id order. Both inputs are in ascending id order.
func pair(outs, ins []model.Candidate) model.TransferPlan {
	usedIn := make([]bool, len(ins))
	usedOut := make([]bool, len(outs))
	var ts []model.Transfer
	for i, o := range outs {
		for k, in := range ins {
			if !usedIn[k] && in.Category == o.Category {
				usedIn[k], usedOut[i] = true, true
				ts = append(ts, swap(o, in))
				break
			}
		}
	}
	k := 0
	for i, o := range outs {
		if usedOut[i] {
			continue
		}
		for usedIn[k] {
			k++
		}
		usedIn[k] = true
		ts = append(ts, swap(o, ins[k]))
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].OutID < ts[j].OutID })

	plan := model.TransferPlan{Transfers: ts}
	for _, t := range ts {
		plan.CostDelta += t.CostDelta
		plan.ValueDelta += t.ValueDelta
	}
	return plan
}

func swap(out, in model.Candidate) model.Transfer {
	return model.Transfer{
		OutID:      out.ID,
		InID:       in.ID,
		OutName:    out.Name,
		InName:     in.Name,
		Category:   in.Category,
		CostDelta:  in.Cost - out.Cost,
		ValueDelta: in.PredictedValue - out.PredictedValue,
	}
}

// verify re-checks the plan against every rule before it leaves the package.
func verify(pool *model.Pool, roster []model.Candidate, plan model.TransferPlan, m constraints.Model,
	incrementalBudget model.Money, maxTransfers int) error {
	if plan.Len() > maxTransfers {
		return fmt.Errorf("plan transfers: %d swaps exceed limit %d", plan.Len(), maxTransfers)
	}
	if plan.CostDelta > incrementalBudget {
		return fmt.Errorf("plan transfers: cost delta %s exceeds budget %s", plan.CostDelta, incrementalBudget)
	}
	ids := make([]int, len(roster))
	for i, c := range roster {
		ids[i] = c.ID
	}
	after, err := pool.Resolve(plan.Apply(ids))
	if err != nil {
		return fmt.Errorf("plan transfers: %w", err)
	}
	if vs := constraints.CheckMembers(after, m, constraints.Full); len(vs) > 0 {
		return fmt.Errorf("plan transfers: resulting roster is invalid: %w", vs[0])
	}
	return nil
}
