// Package milp is a small exact solver for 0/1 integer programs: depth-first
// branch-and-bound with a dense bounded simplex as the relaxation bound.
//
// A Problem owns no shared state; every Solve call builds its own tableaux,
// so independent solves may run concurrently.
package milp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

// checkTol bounds rounding error when rows are evaluated at a binary point.
const checkTol = 1e-9

type Sense int

const (
	LessEq Sense = iota
	GreaterEq
	Equal
)

func (s Sense) String() string {
	switch s {
	case LessEq:
		return "<="
	case GreaterEq:
		return ">="
	default:
		return "="
	}
}

var (
	ErrInfeasible = errors.New("milp: infeasible")
	ErrNodeLimit  = errors.New("milp: node limit reached")
	ErrNumerical  = errors.New("milp: numerical trouble in relaxation")
)

// Constraint is a sparse row: Σ Coefs[k]·x[Vars[k]] (Sense) RHS.
type Constraint struct {
	Name  string
	Vars  []int
	Coefs []float64
	Sense Sense
	RHS   float64
}

// Problem maximizes Objective·x over binary x.
type Problem struct {
	NumVars     int
	Objective   []float64
	Constraints []Constraint
	fixed       []int8
}

func NewProblem(numVars int) *Problem {
	fixed := make([]int8, numVars)
	for i := range fixed {
		fixed[i] = -1
	}
	return &Problem{
		NumVars:   numVars,
		Objective: make([]float64, numVars),
		fixed:     fixed,
	}
}

func (p *Problem) AddConstraint(name string, vars []int, coefs []float64, sense Sense, rhs float64) {
	p.Constraints = append(p.Constraints, Constraint{
		Name:  name,
		Vars:  append([]int(nil), vars...),
		Coefs: append([]float64(nil), coefs...),
		Sense: sense,
		RHS:   rhs,
	})
}

// Fix pins variable j to 0 or 1.
func (p *Problem) Fix(j int, v int) {
	p.fixed[j] = int8(v)
}

func (p *Problem) Fixed(j int) (int, bool) {
	if p.fixed[j] < 0 {
		return 0, false
	}
	return int(p.fixed[j]), true
}

func (p *Problem) Clone() *Problem {
	q := &Problem{
		NumVars:     p.NumVars,
		Objective:   append([]float64(nil), p.Objective...),
		Constraints: append([]Constraint(nil), p.Constraints...),
		fixed:       append([]int8(nil), p.fixed...),
	}
	return q
}

// Value evaluates the objective at x.
func (p *Problem) Value(x []int) float64 {
	v := 0.0
	for j, c := range p.Objective {
		if x[j] == 1 {
			v += c
		}
	}
	return v
}

// Feasible reports whether x satisfies every row and fixing.
func (p *Problem) Feasible(x []int) bool {
	if len(x) != p.NumVars {
		return false
	}
	for j, f := range p.fixed {
		if f >= 0 && int(f) != x[j] {
			return false
		}
	}
	for _, c := range p.Constraints {
		lhs := 0.0
		for k, j := range c.Vars {
			if x[j] == 1 {
				lhs += c.Coefs[k]
			}
		}
		tol := checkTol * math.Max(1, math.Abs(c.RHS))
		switch c.Sense {
		case LessEq:
			if lhs > c.RHS+tol {
				return false
			}
		case GreaterEq:
			if lhs < c.RHS-tol {
				return false
			}
		case Equal:
			if math.Abs(lhs-c.RHS) > tol {
				return false
			}
		}
	}
	return true
}

type Options struct {
	// MaxNodes bounds the search; 0 means unlimited.
	MaxNodes int
	// FirstFeasible stops at the first integer solution.
	FirstFeasible bool
	// Incumbent is a known feasible solution used for pruning from the start.
	Incumbent []int
	Logger    *zap.Logger
}

type Solution struct {
	X         []int
	Objective float64
	Nodes     int
	LPIters   int
	Elapsed   time.Duration
}

// Selected returns the indices set to 1.
func (s Solution) Selected() []int {
	out := make([]int, 0)
	for j, v := range s.X {
		if v == 1 {
			out = append(out, j)
		}
	}
	return out
}

// Tolerance is the objective slack treated as a tie.
func Tolerance(obj float64) float64 {
	return 1e-9 * math.Max(1, math.Abs(obj))
}

// Solve returns a provably optimal solution (within Tolerance) or
// ErrInfeasible. ctx is checked at every node.
func Solve(ctx context.Context, p *Problem, opts Options) (Solution, error) {
	start := time.Now()
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := newSearch(p)

	var best []int
	bestObj := math.Inf(-1)
	if opts.Incumbent != nil {
		if !p.Feasible(opts.Incumbent) {
			return Solution{}, fmt.Errorf("milp: supplied incumbent is not feasible")
		}
		best = append([]int(nil), opts.Incumbent...)
		bestObj = p.Value(best)
	}

	stack := [][]int8{append([]int8(nil), p.fixed...)}
	nodes, iters := 0, 0
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return Solution{}, fmt.Errorf("milp: solve aborted after %d nodes: %w", nodes, err)
		}
		if opts.MaxNodes > 0 && nodes >= opts.MaxNodes {
			return Solution{}, ErrNodeLimit
		}
		fix := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		nodes++

		res, constObj, free, ok := s.relax(fix)
		iters += res.iters
		if !ok || res.status == lpInfeasible {
			continue
		}
		if res.status != lpOptimal {
			log.Warn("relaxation failed", zap.Int("node", nodes), zap.Int("status", int(res.status)))
			return Solution{}, ErrNumerical
		}
		bound := constObj + res.obj
		if s.integralObj {
			bound = math.Floor(bound + 1e-6)
		}
		if best != nil && bound <= bestObj+Tolerance(bestObj) {
			continue
		}

		branch := -1
		frac := 1.0
		for k, j := range free {
			v := res.x[k]
			if v > 1e-6 && v < 1-1e-6 {
				if d := math.Abs(v - 0.5); d < frac {
					branch, frac = j, d
				}
			}
		}

		if branch < 0 {
			x := make([]int, p.NumVars)
			for j, f := range fix {
				if f == 1 {
					x[j] = 1
				}
			}
			for k, j := range free {
				if res.x[k] > 0.5 {
					x[j] = 1
				}
			}
			if p.Feasible(x) {
				obj := p.Value(x)
				if best == nil || obj > bestObj+Tolerance(bestObj) {
					best, bestObj = x, obj
					log.Debug("incumbent", zap.Int("node", nodes), zap.Float64("objective", obj))
					if opts.FirstFeasible {
						break
					}
				}
				continue
			}
			// Near-integral but not exactly feasible: keep splitting.
			if len(free) == 0 {
				continue
			}
			branch = free[0]
			far := -1.0
			for k, j := range free {
				if d := math.Min(res.x[k], 1-res.x[k]); d > far {
					branch, far = j, d
				}
			}
			log.Debug("rounded relaxation failed verification", zap.Int("node", nodes), zap.Int("branch", branch))
		}

		zero := append([]int8(nil), fix...)
		zero[branch] = 0
		one := append([]int8(nil), fix...)
		one[branch] = 1
		stack = append(stack, zero, one)
	}

	if best == nil {
		return Solution{Nodes: nodes, LPIters: iters, Elapsed: time.Since(start)}, ErrInfeasible
	}
	return Solution{
		X:         best,
		Objective: bestObj,
		Nodes:     nodes,
		LPIters:   iters,
		Elapsed:   time.Since(start),
	}, nil
}

// search caches the dense form of the problem across nodes.
type search struct {
	p           *Problem
	dense       [][]float64
	integralObj bool
}

func newSearch(p *Problem) *search {
	dense := make([][]float64, len(p.Constraints))
	for i, c := range p.Constraints {
		row := make([]float64, p.NumVars)
		for k, j := range c.Vars {
			row[j] += c.Coefs[k]
		}
		dense[i] = row
	}
	integral := true
	for _, c := range p.Objective {
		if c != math.Trunc(c) {
			integral = false
			break
		}
	}
	return &search{p: p, dense: dense, integralObj: integral}
}

// relax solves the LP over the free variables of a node. ok is false when a
// row with no free variables is already violated.
func (s *search) relax(fix []int8) (lpResult, float64, []int, bool) {
	free := make([]int, 0, len(fix))
	constObj := 0.0
	for j, f := range fix {
		switch f {
		case -1:
			free = append(free, j)
		case 1:
			constObj += s.p.Objective[j]
		}
	}

	var rows [][]float64
	var senses []Sense
	var rhs []float64
	for i, c := range s.p.Constraints {
		full := s.dense[i]
		b := c.RHS
		for j, f := range fix {
			if f == 1 {
				b -= full[j]
			}
		}
		row := make([]float64, len(free))
		nz := false
		for k, j := range free {
			if full[j] != 0 {
				row[k] = full[j]
				nz = true
			}
		}
		if !nz {
			tol := checkTol * math.Max(1, math.Abs(c.RHS))
			switch {
			case c.Sense == LessEq && b < -tol,
				c.Sense == GreaterEq && b > tol,
				c.Sense == Equal && math.Abs(b) > tol:
				return lpResult{status: lpInfeasible}, 0, nil, false
			}
			continue
		}
		rows = append(rows, row)
		senses = append(senses, c.Sense)
		rhs = append(rhs, b)
	}

	if len(free) == 0 {
		return lpResult{status: lpOptimal, x: nil, obj: 0}, constObj, free, true
	}
	c := make([]float64, len(free))
	for k, j := range free {
		c[k] = s.p.Objective[j]
	}
	return solveLP(rows, senses, rhs, c), constObj, free, true
}
