// Package expr provides symbolic scalar expressions over solver
// parameters, with evaluation and exact partial derivatives.
package expr

import (
	"fmt"
	"math"
	"sort"
)

// Op is the node kind of an expression tree.
type Op int

const (
	OpConst Op = iota
	OpParam
	OpPlus
	OpMinus
	OpTimes
	OpDiv
	OpNegate
	OpSqrt
	OpSquare
	OpSin
	OpCos
)

func (o Op) String() string {
	switch o {
	case OpConst:
		return "const"
	case OpParam:
		return "param"
	case OpPlus:
		return "+"
	case OpMinus:
		return "-"
	case OpTimes:
		return "*"
	case OpDiv:
		return "/"
	case OpNegate:
		return "neg"
	case OpSqrt:
		return "sqrt"
	case OpSquare:
		return "sq"
	case OpSin:
		return "sin"
	case OpCos:
		return "cos"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Expr is an immutable expression node. Parameters are referenced by
// their index in the value slice passed to Eval.
type Expr struct {
	op    Op
	value float64
	param int
	a, b  *Expr
}

var (
	zero = &Expr{op: OpConst}
	one  = &Expr{op: OpConst, value: 1}
)

// Const returns a constant expression.
func Const(v float64) *Expr {
	switch v {
	case 0:
		return zero
	case 1:
		return one
	}
	return &Expr{op: OpConst, value: v}
}

// Param returns the expression for parameter i.
func Param(i int) *Expr {
	return &Expr{op: OpParam, param: i}
}

// Op returns the node kind.
func (e *Expr) Op() Op { return e.op }

// Constant returns the value of a constant node.
func (e *Expr) Constant() (float64, bool) {
	if e.op == OpConst {
		return e.value, true
	}
	return 0, false
}

func (e *Expr) isConst(v float64) bool {
	return e.op == OpConst && e.value == v
}

func unary(op Op, a *Expr) *Expr {
	if a.op == OpConst {
		return Const(apply(op, a.value, 0))
	}
	return &Expr{op: op, a: a}
}

func binary(op Op, a, b *Expr) *Expr {
	if a.op == OpConst && b.op == OpConst {
		return Const(apply(op, a.value, b.value))
	}
	return &Expr{op: op, a: a, b: b}
}

func (e *Expr) Plus(b *Expr) *Expr {
	switch {
	case e.isConst(0):
		return b
	case b.isConst(0):
		return e
	}
	return binary(OpPlus, e, b)
}

func (e *Expr) Minus(b *Expr) *Expr {
	switch {
	case b.isConst(0):
		return e
	case e.isConst(0):
		return b.Negate()
	}
	return binary(OpMinus, e, b)
}

func (e *Expr) Times(b *Expr) *Expr {
	switch {
	case e.isConst(0) || b.isConst(0):
		return zero
	case e.isConst(1):
		return b
	case b.isConst(1):
		return e
	}
	return binary(OpTimes, e, b)
}

func (e *Expr) Div(b *Expr) *Expr {
	switch {
	case e.isConst(0):
		return zero
	case b.isConst(1):
		return e
	}
	return binary(OpDiv, e, b)
}

// ScaledBy multiplies by a constant.
func (e *Expr) ScaledBy(s float64) *Expr { return e.Times(Const(s)) }

func (e *Expr) Negate() *Expr {
	if e.op == OpNegate {
		return e.a
	}
	return unary(OpNegate, e)
}

func (e *Expr) Sqrt() *Expr   { return unary(OpSqrt, e) }
func (e *Expr) Square() *Expr { return unary(OpSquare, e) }
func (e *Expr) Sin() *Expr    { return unary(OpSin, e) }
func (e *Expr) Cos() *Expr    { return unary(OpCos, e) }

func apply(op Op, a, b float64) float64 {
	switch op {
	case OpPlus:
		return a + b
	case OpMinus:
		return a - b
	case OpTimes:
		return a * b
	case OpDiv:
		return a / b
	case OpNegate:
		return -a
	case OpSqrt:
		return math.Sqrt(a)
	case OpSquare:
		return a * a
	case OpSin:
		return math.Sin(a)
	case OpCos:
		return math.Cos(a)
	}
	panic(fmt.Sprintf("expr: apply %v", op))
}

// Eval evaluates the expression with parameter i taking values[i].
func (e *Expr) Eval(values []float64) float64 {
	switch e.op {
	case OpConst:
		return e.value
	case OpParam:
		return values[e.param]
	case OpPlus, OpMinus, OpTimes, OpDiv:
		return apply(e.op, e.a.Eval(values), e.b.Eval(values))
	default:
		return apply(e.op, e.a.Eval(values), 0)
	}
}

// Partial returns the derivative of e with respect to parameter p.
func (e *Expr) Partial(p int) *Expr {
	switch e.op {
	case OpConst:
		return zero
	case OpParam:
		if e.param == p {
			return one
		}
		return zero
	}
	if !e.DependsOn(p) {
		return zero
	}
	da := e.a.Partial(p)
	switch e.op {
	case OpPlus:
		return da.Plus(e.b.Partial(p))
	case OpMinus:
		return da.Minus(e.b.Partial(p))
	case OpTimes:
		return da.Times(e.b).Plus(e.a.Times(e.b.Partial(p)))
	case OpDiv:
		// (a/b)' = (a'b - ab') / b^2
		num := da.Times(e.b).Minus(e.a.Times(e.b.Partial(p)))
		return num.Div(e.b.Square())
	case OpNegate:
		return da.Negate()
	case OpSqrt:
		return da.Div(e.Times(Const(2)))
	case OpSquare:
		return Const(2).Times(e.a).Times(da)
	case OpSin:
		return e.a.Cos().Times(da)
	case OpCos:
		return e.a.Sin().Negate().Times(da)
	}
	panic(fmt.Sprintf("expr: partial of %v", e.op))
}

// DependsOn reports whether parameter p occurs in e.
func (e *Expr) DependsOn(p int) bool {
	switch e.op {
	case OpConst:
		return false
	case OpParam:
		return e.param == p
	}
	if e.a.DependsOn(p) {
		return true
	}
	return e.b != nil && e.b.DependsOn(p)
}

// Params returns the distinct parameters in e, ascending.
func (e *Expr) Params() []int {
	seen := make(map[int]bool)
	e.collect(seen)
	out := make([]int, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

func (e *Expr) collect(seen map[int]bool) {
	switch e.op {
	case OpConst:
		return
	case OpParam:
		seen[e.param] = true
		return
	}
	e.a.collect(seen)
	if e.b != nil {
		e.b.collect(seen)
	}
}

func (e *Expr) String() string {
	switch e.op {
	case OpConst:
		return fmt.Sprintf("%g", e.value)
	case OpParam:
		return fmt.Sprintf("p%d", e.param)
	case OpPlus, OpMinus, OpTimes, OpDiv:
		return fmt.Sprintf("(%v %v %v)", e.a, e.op, e.b)
	default:
		return fmt.Sprintf("%v(%v)", e.op, e.a)
	}
}
