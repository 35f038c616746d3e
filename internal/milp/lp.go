package milp

import "math"

const (
	pivotTol    = 1e-9
	costTol     = 1e-9
	feasTol     = 1e-7
	maxDegen    = 50
	iterPerSize = 50
)

type lpStatus int

const (
	lpOptimal lpStatus = iota
	lpInfeasible
	lpUnbounded
	lpIterLimit
)

type lpResult struct {
	status lpStatus
	x      []float64
	obj    float64
	iters  int
}

// tableau is a dense bounded-variable simplex tableau. Nonbasic columns sit
// at their lower bound (0) or, when atUpper is set, at ub.
type tableau struct {
	m, n    int
	t       [][]float64
	beta    []float64
	basis   []int
	isBasic []bool
	atUpper []bool
	ub      []float64
	d       []float64
	iters   int
	limit   int
}

// solveLP maximizes c·x subject to a·x (sense) b and 0 <= x <= 1.
// Rows are dense over the n structural columns.
func solveLP(a [][]float64, senses []Sense, b []float64, c []float64) lpResult {
	m := len(a)
	n := len(c)

	// Normalize rows to non-negative right-hand sides.
	rows := make([][]float64, m)
	rhs := make([]float64, m)
	sns := make([]Sense, m)
	for i := range a {
		rows[i] = append([]float64(nil), a[i]...)
		rhs[i] = b[i]
		sns[i] = senses[i]
		if rhs[i] < 0 {
			for j := range rows[i] {
				rows[i][j] = -rows[i][j]
			}
			rhs[i] = -rhs[i]
			switch sns[i] {
			case LessEq:
				sns[i] = GreaterEq
			case GreaterEq:
				sns[i] = LessEq
			}
		}
	}

	nSlack, nArt := 0, 0
	for _, s := range sns {
		if s != Equal {
			nSlack++
		}
		if s != LessEq {
			nArt++
		}
	}
	total := n + nSlack + nArt
	tb := &tableau{
		m:       m,
		n:       total,
		t:       make([][]float64, m),
		beta:    rhs,
		basis:   make([]int, m),
		isBasic: make([]bool, total),
		atUpper: make([]bool, total),
		ub:      make([]float64, total),
		d:       make([]float64, total),
		limit:   iterPerSize * (m + total),
	}
	for j := 0; j < n; j++ {
		tb.ub[j] = 1
	}
	for j := n; j < total; j++ {
		tb.ub[j] = math.Inf(1)
	}

	artStart := n + nSlack
	slack, art := n, artStart
	isArt := make([]bool, total)
	for i := 0; i < m; i++ {
		row := make([]float64, total)
		copy(row, rows[i])
		switch sns[i] {
		case LessEq:
			row[slack] = 1
			tb.basis[i] = slack
			slack++
		case GreaterEq:
			row[slack] = -1
			slack++
			row[art] = 1
			tb.basis[i] = art
			isArt[art] = true
			art++
		case Equal:
			row[art] = 1
			tb.basis[i] = art
			isArt[art] = true
			art++
		}
		tb.t[i] = row
		tb.isBasic[tb.basis[i]] = true
	}

	if nArt > 0 {
		cost := make([]float64, total)
		for j := artStart; j < total; j++ {
			cost[j] = -1
		}
		tb.pricing(cost)
		if st := tb.iterate(); st != lpOptimal {
			return lpResult{status: st, iters: tb.iters}
		}
		infeas := 0.0
		for i, bv := range tb.basis {
			if isArt[bv] {
				infeas += tb.beta[i]
			}
		}
		if infeas > feasTol {
			return lpResult{status: lpInfeasible, iters: tb.iters}
		}
		// Artificials stay in the tableau pinned at zero.
		for j := artStart; j < total; j++ {
			tb.ub[j] = 0
			tb.atUpper[j] = false
		}
		for i, bv := range tb.basis {
			if isArt[bv] {
				tb.beta[i] = 0
			}
		}
	}

	cost := make([]float64, total)
	copy(cost, c)
	tb.pricing(cost)
	if st := tb.iterate(); st != lpOptimal {
		return lpResult{status: st, iters: tb.iters}
	}

	x := make([]float64, n)
	for j := 0; j < n; j++ {
		if tb.atUpper[j] {
			x[j] = tb.ub[j]
		}
	}
	for i, bv := range tb.basis {
		if bv < n {
			x[bv] = clamp01(tb.beta[i])
		}
	}
	obj := 0.0
	for j := 0; j < n; j++ {
		obj += c[j] * x[j]
	}
	return lpResult{status: lpOptimal, x: x, obj: obj, iters: tb.iters}
}

// pricing recomputes reduced costs for the given cost vector.
func (tb *tableau) pricing(cost []float64) {
	for j := 0; j < tb.n; j++ {
		if tb.isBasic[j] {
			tb.d[j] = 0
			continue
		}
		v := cost[j]
		for i, bv := range tb.basis {
			if cb := cost[bv]; cb != 0 {
				v -= cb * tb.t[i][j]
			}
		}
		tb.d[j] = v
	}
}

func (tb *tableau) iterate() lpStatus {
	degenerate := 0
	for {
		if tb.iters >= tb.limit {
			return lpIterLimit
		}
		bland := degenerate > maxDegen
		enter, dir := tb.chooseEntering(bland)
		if enter < 0 {
			return lpOptimal
		}
		tb.iters++

		limit := tb.ub[enter]
		row := -1
		toUpper := false
		bestPiv := 0.0
		for i := 0; i < tb.m; i++ {
			a := tb.t[i][enter] * dir
			var r float64
			var up bool
			switch {
			case a > pivotTol:
				r = tb.beta[i] / a
			case a < -pivotTol:
				ubv := tb.ub[tb.basis[i]]
				if math.IsInf(ubv, 1) {
					continue
				}
				r = (ubv - tb.beta[i]) / -a
				up = true
			default:
				continue
			}
			if r < 0 {
				r = 0
			}
			abs := math.Abs(a)
			switch {
			case r < limit-pivotTol:
				limit, row, toUpper, bestPiv = r, i, up, abs
			case r <= limit+pivotTol && row >= 0:
				if bland {
					if tb.basis[i] < tb.basis[row] {
						limit, row, toUpper, bestPiv = math.Min(r, limit), i, up, abs
					}
				} else if abs > bestPiv {
					limit, row, toUpper, bestPiv = math.Min(r, limit), i, up, abs
				}
			}
		}

		if math.IsInf(limit, 1) {
			return lpUnbounded
		}
		if limit < pivotTol {
			degenerate++
		} else {
			degenerate = 0
		}

		step := dir * limit
		for i := 0; i < tb.m; i++ {
			if v := tb.t[i][enter]; v != 0 {
				tb.beta[i] -= v * step
			}
		}

		if row < 0 {
			// Bound flip: the entering column hits its own bound first.
			tb.atUpper[enter] = !tb.atUpper[enter]
			continue
		}

		enterVal := step
		if tb.atUpper[enter] {
			enterVal += tb.ub[enter]
		}
		leave := tb.basis[row]
		tb.pivot(row, enter)
		tb.beta[row] = enterVal
		tb.isBasic[leave] = false
		tb.atUpper[leave] = toUpper
		tb.isBasic[enter] = true
		tb.atUpper[enter] = false
		tb.basis[row] = enter
	}
}

// chooseEntering returns the entering column and its direction (+1 up from
// lower, -1 down from upper), or -1 when the basis is optimal.
func (tb *tableau) chooseEntering(bland bool) (int, float64) {
	best, dir := -1, 0.0
	bestVal := 0.0
	for j := 0; j < tb.n; j++ {
		if tb.isBasic[j] || tb.ub[j] <= 0 {
			continue
		}
		dj := tb.d[j]
		var gain float64
		var dj2 float64
		if !tb.atUpper[j] && dj > costTol {
			gain, dj2 = dj, 1
		} else if tb.atUpper[j] && dj < -costTol {
			gain, dj2 = -dj, -1
		} else {
			continue
		}
		if bland {
			return j, dj2
		}
		if gain > bestVal {
			best, dir, bestVal = j, dj2, gain
		}
	}
	return best, dir
}

func (tb *tableau) pivot(r, c int) {
	pr := tb.t[r]
	inv := 1 / pr[c]
	for j := range pr {
		pr[j] *= inv
	}
	pr[c] = 1
	for i := 0; i < tb.m; i++ {
		if i == r {
			continue
		}
		f := tb.t[i][c]
		if f == 0 {
			continue
		}
		ri := tb.t[i]
		for j, v := range pr {
			if v != 0 {
				ri[j] -= f * v
			}
		}
		ri[c] = 0
	}
	if f := tb.d[c]; f != 0 {
		for j, v := range pr {
			if v != 0 {
				tb.d[j] -= f * v
			}
		}
		tb.d[c] = 0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
