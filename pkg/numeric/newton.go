package numeric

import (
	"math"

	"github.com/chazu/kerf/pkg/expr"
	"gonum.org/v1/gonum/mat"
)

// Newton is a damped Newton engine. Each step is the minimum-norm least
// squares correction, so under-determined systems move as little as
// possible from the current values.
type Newton struct {
	Tolerance     float64 // residual accepted as zero
	MaxIterations int
	MaxUnknowns   int
	RankTolerance float64 // singular values below this, relative to the largest, count as zero
	DragWeight    float64 // column scale applied to dragged parameters
}

var _ Engine = (*Newton)(nil)

// DefaultNewton returns an engine with the standard tolerances.
func DefaultNewton() *Newton {
	return &Newton{
		Tolerance:     1e-10,
		MaxIterations: 50,
		MaxUnknowns:   2048,
		RankTolerance: 1e-8,
		DragWeight:    1.0 / 20,
	}
}

// jacobian holds the symbolic partials of every equation with respect to
// every unknown.
type jacobian struct {
	unknowns []int
	cells    [][]*expr.Expr // [equation][unknown], nil when independent
}

func newJacobian(sys *System, unknowns []int) *jacobian {
	j := &jacobian{unknowns: unknowns, cells: make([][]*expr.Expr, len(sys.Equations))}
	for r, eq := range sys.Equations {
		row := make([]*expr.Expr, len(unknowns))
		for c, p := range unknowns {
			if eq.E.DependsOn(p) {
				row[c] = eq.E.Partial(p)
			}
		}
		j.cells[r] = row
	}
	return j
}

// eval fills a dense Jacobian at vals, scaling column c by weights[c].
// gonum rejects empty matrices, so an empty Jacobian is nil.
func (j *jacobian) eval(vals, weights []float64) *mat.Dense {
	if len(j.cells) == 0 || len(j.unknowns) == 0 {
		return nil
	}
	a := mat.NewDense(len(j.cells), len(j.unknowns), nil)
	for r, row := range j.cells {
		for c, cell := range row {
			if cell == nil {
				continue
			}
			v := cell.Eval(vals) * weights[c]
			if math.IsNaN(v) || math.IsInf(v, 0) {
				v = 0
			}
			a.Set(r, c, v)
		}
	}
	return a
}

func residuals(sys *System, vals []float64) ([]float64, float64) {
	f := make([]float64, len(sys.Equations))
	worst := 0.0
	for i, eq := range sys.Equations {
		f[i] = eq.E.Eval(vals)
		if a := math.Abs(f[i]); a > worst || math.IsNaN(a) {
			worst = a
		}
	}
	return f, worst
}

func norm2(f []float64) float64 {
	s := 0.0
	for _, x := range f {
		s += x * x
	}
	return s
}

// Solve runs the iteration and classifies the result.
func (n *Newton) Solve(sys *System) Outcome {
	unknowns := sys.Unknowns()
	if n.MaxUnknowns > 0 && len(unknowns) > n.MaxUnknowns {
		return Outcome{Verdict: TooManyUnknowns}
	}

	start := sys.Values()
	vals := append([]float64(nil), start...)
	weights := make([]float64, len(unknowns))
	ones := make([]float64, len(unknowns))
	for c, p := range unknowns {
		weights[c], ones[c] = 1, 1
		if sys.Params[p].Dragged {
			weights[c] = n.DragWeight
		}
	}

	jac := newJacobian(sys, unknowns)
	f, worst := residuals(sys, vals)
	iter := 0
	for ; worst > n.Tolerance && iter < n.MaxIterations; iter++ {
		if len(unknowns) == 0 {
			break
		}
		dy, ok := n.leastSquares(jac.eval(vals, weights), f)
		if !ok {
			break
		}
		// Backtrack until the residual norm does not grow.
		base := norm2(f)
		step := 1.0
		next := make([]float64, len(vals))
		for tries := 0; tries < 8; tries++ {
			copy(next, vals)
			for c, p := range unknowns {
				next[p] -= step * weights[c] * dy[c]
			}
			nf, _ := residuals(sys, next)
			if norm2(nf) <= base || tries == 7 {
				break
			}
			step /= 2
		}
		vals = next
		f, worst = residuals(sys, vals)
		if math.IsNaN(worst) {
			break
		}
	}
	converged := worst <= n.Tolerance && !math.IsNaN(worst)

	out := Outcome{Iterations: iter, Residual: worst}
	a := jac.eval(vals, ones)
	out.Rank = n.rank(a)
	redundant := out.Rank < len(sys.Equations)
	out.DOF, out.Free = n.freedom(sys, unknowns, a)
	if redundant {
		out.Dependent = n.dependent(a, len(sys.Equations))
	}

	switch {
	case converged && !redundant:
		out.Verdict = Okay
	case converged:
		out.Verdict = RedundantOkay
	case redundant:
		out.Verdict = RedundantDidntConverge
	default:
		out.Verdict = DidntConverge
	}

	final := vals
	if !converged {
		final = start
	}
	for i := range sys.Params {
		sys.Params[i].Value = final[i]
	}
	return out
}

// svd factorizes a with full U and V.
func svd(a *mat.Dense) (s []float64, u, v *mat.Dense, ok bool) {
	var f mat.SVD
	if !f.Factorize(a, mat.SVDFull) {
		return nil, nil, nil, false
	}
	u, v = new(mat.Dense), new(mat.Dense)
	f.UTo(u)
	f.VTo(v)
	return f.Values(nil), u, v, true
}

func (n *Newton) cutoff(s []float64) float64 {
	largest := 0.0
	if len(s) > 0 {
		largest = s[0]
	}
	return n.RankTolerance * math.Max(largest, 1)
}

// leastSquares returns the minimum-norm x with a x ≈ b.
func (n *Newton) leastSquares(a *mat.Dense, b []float64) ([]float64, bool) {
	if a == nil {
		return nil, false
	}
	rows, cols := a.Dims()
	x := make([]float64, cols)
	s, u, v, ok := svd(a)
	if !ok {
		return nil, false
	}
	tol := n.cutoff(s)
	for i, sv := range s {
		if sv <= tol {
			break
		}
		coef := 0.0
		for r := 0; r < rows; r++ {
			coef += u.At(r, i) * b[r]
		}
		coef /= sv
		for c := 0; c < cols; c++ {
			x[c] += coef * v.At(c, i)
		}
	}
	return x, true
}

func (n *Newton) rank(a *mat.Dense) int {
	if a == nil {
		return 0
	}
	s, _, _, ok := svd(a)
	if !ok {
		return 0
	}
	tol := n.cutoff(s)
	r := 0
	for _, sv := range s {
		if sv > tol {
			r++
		}
	}
	return r
}

// dependentWeight is the smallest left null space component that ties a
// row to a redundancy.
const dependentWeight = 1e-6

// dependent returns the rows of a that some combination of other rows
// reproduces: those with weight in the left null space. Without unknowns
// every row is dependent.
func (n *Newton) dependent(a *mat.Dense, rows int) []int {
	var out []int
	if a == nil {
		for r := 0; r < rows; r++ {
			out = append(out, r)
		}
		return out
	}
	s, u, _, ok := svd(a)
	if !ok {
		return nil
	}
	tol := n.cutoff(s)
	rank := 0
	for _, sv := range s {
		if sv > tol {
			rank++
		}
	}
	for r := 0; r < rows; r++ {
		for i := rank; i < rows; i++ {
			if math.Abs(u.At(r, i)) > dependentWeight {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

// freedom projects the Jacobian's null space onto the non-aux unknowns.
// The dimension of that projection is the remaining degrees of freedom,
// and a parameter is free when the null space moves it.
func (n *Newton) freedom(sys *System, unknowns []int, a *mat.Dense) (int, []int) {
	var rows []int // positions within unknowns
	for c, p := range unknowns {
		if !sys.Params[p].Aux {
			rows = append(rows, c)
		}
	}
	if len(rows) == 0 {
		return 0, nil
	}
	cols := len(unknowns)
	var basis [][]float64 // null-space vectors over unknowns
	if a == nil {
		for c := 0; c < cols; c++ {
			e := make([]float64, cols)
			e[c] = 1
			basis = append(basis, e)
		}
	} else {
		s, _, v, ok := svd(a)
		if !ok {
			return 0, nil
		}
		tol := n.cutoff(s)
		for i := 0; i < cols; i++ {
			if i < len(s) && s[i] > tol {
				continue
			}
			basis = append(basis, mat.Col(nil, i, v))
		}
	}
	if len(basis) == 0 {
		return 0, nil
	}

	proj := mat.NewDense(len(rows), len(basis), nil)
	var free []int
	for r, c := range rows {
		moved := 0.0
		for k, vec := range basis {
			proj.Set(r, k, vec[c])
			moved += vec[c] * vec[c]
		}
		if math.Sqrt(moved) > 1e-6 {
			free = append(free, unknowns[c])
		}
	}
	return n.rank(proj), free
}
