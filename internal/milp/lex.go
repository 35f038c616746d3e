package milp

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Stage is one objective of a lexicographic solve. Every stage maximizes;
// negate the coefficients to minimize.
type Stage struct {
	Name      string
	Objective []float64
}

// LexResult carries the final solution and the optimum reached by each stage.
type LexResult struct {
	Solution
	StageValues []float64
}

// SolveLex optimizes the stages in order. Each later stage is solved with
// every earlier objective held at its optimum (within Tolerance) and starts
// from the previous stage's solution as incumbent, so it can only improve on
// a tie. opts.Incumbent seeds the first stage only. p.Objective is ignored.
func SolveLex(ctx context.Context, p *Problem, stages []Stage, opts Options) (LexResult, error) {
	if len(stages) == 0 {
		return LexResult{}, fmt.Errorf("milp: no stages")
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	start := time.Now()

	var res LexResult
	q := p.Clone()
	incumbent := opts.Incumbent
	all := make([]int, p.NumVars)
	for j := range all {
		all[j] = j
	}
	for i, st := range stages {
		if len(st.Objective) != p.NumVars {
			return LexResult{}, fmt.Errorf("milp: stage %q has %d coefficients, want %d", st.Name, len(st.Objective), p.NumVars)
		}
		if i > 0 {
			prev := stages[i-1]
			v := res.StageValues[i-1]
			q.AddConstraint("stage:"+prev.Name, all, prev.Objective, GreaterEq, v-Tolerance(v))
		}
		q.Objective = append([]float64(nil), st.Objective...)

		o := opts
		o.Incumbent = incumbent
		o.Logger = log.With(zap.String("stage", st.Name))
		sol, err := Solve(ctx, q, o)
		res.Nodes += sol.Nodes
		res.LPIters += sol.LPIters
		if err != nil {
			return LexResult{}, fmt.Errorf("stage %s: %w", st.Name, err)
		}
		res.X = sol.X
		res.Objective = sol.Objective
		res.StageValues = append(res.StageValues, sol.Objective)
		incumbent = sol.X

		log.Debug("stage solved",
			zap.String("stage", st.Name),
			zap.Float64("objective", sol.Objective),
			zap.Int("nodes", sol.Nodes),
			zap.Duration("elapsed", sol.Elapsed),
		)
	}
	res.Elapsed = time.Since(start)
	return res, nil
}
