// Package numeric solves systems of nonlinear equations over named
// parameters and reports rank, redundancy and remaining freedom.
package numeric

import (
	"fmt"

	"github.com/chazu/kerf/pkg/expr"
)

// Param is one scalar unknown or known input of a System.
type Param struct {
	Name    string
	Value   float64
	Known   bool // fixed input; never changed by the solver
	Dragged bool // soft-pinned; moves as little as possible
	Aux     bool // helper unknown that does not count toward freedom
}

// Equation is one residual that must reach zero.
type Equation struct {
	E   *expr.Expr
	Tag int // caller-defined, e.g. owning constraint index
}

// System is a set of equations over parameters, addressed by index.
type System struct {
	Params    []Param
	Equations []Equation
}

// AddParam appends a parameter and returns its index.
func (s *System) AddParam(p Param) int {
	s.Params = append(s.Params, p)
	return len(s.Params) - 1
}

// AddEquation appends an equation.
func (s *System) AddEquation(e *expr.Expr, tag int) {
	s.Equations = append(s.Equations, Equation{E: e, Tag: tag})
}

// Values returns the current parameter values.
func (s *System) Values() []float64 {
	vals := make([]float64, len(s.Params))
	for i, p := range s.Params {
		vals[i] = p.Value
	}
	return vals
}

// Unknowns returns the indices of parameters the solver may change.
func (s *System) Unknowns() []int {
	var out []int
	for i, p := range s.Params {
		if !p.Known {
			out = append(out, i)
		}
	}
	return out
}

// Verdict is the outcome class of a solve.
type Verdict int

const (
	Okay Verdict = iota
	DidntConverge
	RedundantOkay
	RedundantDidntConverge
	TooManyUnknowns
)

func (v Verdict) String() string {
	switch v {
	case Okay:
		return "okay"
	case DidntConverge:
		return "didn't converge"
	case RedundantOkay:
		return "redundant (okay)"
	case RedundantDidntConverge:
		return "redundant (didn't converge)"
	case TooManyUnknowns:
		return "too many unknowns"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}

// Converged reports whether parameter values were updated.
func (v Verdict) Converged() bool {
	return v == Okay || v == RedundantOkay
}

// Outcome reports the result of a solve.
type Outcome struct {
	Verdict    Verdict
	DOF        int   // independent directions of non-aux unknowns left free
	Rank       int   // rank of the Jacobian
	Free       []int // parameter indices that can still move
	Dependent  []int // equation indices that take part in a redundancy
	Iterations int
	Residual   float64 // largest absolute residual at the final point
}

// Engine solves a System in place. On a non-converged verdict every
// parameter keeps its input value.
type Engine interface {
	Solve(sys *System) Outcome
}
