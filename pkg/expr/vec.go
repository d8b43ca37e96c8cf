package expr

import "github.com/chazu/kerf/pkg/model"

// Vec is a 3-vector of expressions.
type Vec struct {
	X, Y, Z *Expr
}

// VecConst lifts a numeric vector.
func VecConst(v model.Vec3) Vec {
	return Vec{Const(v.X), Const(v.Y), Const(v.Z)}
}

// VecParams returns the vector of parameters x, y and z.
func VecParams(x, y, z int) Vec {
	return Vec{Param(x), Param(y), Param(z)}
}

func (a Vec) Plus(b Vec) Vec  { return Vec{a.X.Plus(b.X), a.Y.Plus(b.Y), a.Z.Plus(b.Z)} }
func (a Vec) Minus(b Vec) Vec { return Vec{a.X.Minus(b.X), a.Y.Minus(b.Y), a.Z.Minus(b.Z)} }

func (a Vec) ScaledBy(s *Expr) Vec {
	return Vec{a.X.Times(s), a.Y.Times(s), a.Z.Times(s)}
}

func (a Vec) Negate() Vec { return Vec{a.X.Negate(), a.Y.Negate(), a.Z.Negate()} }

func (a Vec) Dot(b Vec) *Expr {
	return a.X.Times(b.X).Plus(a.Y.Times(b.Y)).Plus(a.Z.Times(b.Z))
}

func (a Vec) Cross(b Vec) Vec {
	return Vec{
		a.Y.Times(b.Z).Minus(a.Z.Times(b.Y)),
		a.Z.Times(b.X).Minus(a.X.Times(b.Z)),
		a.X.Times(b.Y).Minus(a.Y.Times(b.X)),
	}
}

// Magnitude returns the Euclidean length.
func (a Vec) Magnitude() *Expr {
	return a.X.Square().Plus(a.Y.Square()).Plus(a.Z.Square()).Sqrt()
}

// Components returns x, y, z in order.
func (a Vec) Components() []*Expr { return []*Expr{a.X, a.Y, a.Z} }

// Eval evaluates all three components.
func (a Vec) Eval(values []float64) model.Vec3 {
	return model.Vec3{X: a.X.Eval(values), Y: a.Y.Eval(values), Z: a.Z.Eval(values)}
}

// Quat is a quaternion of expressions; see model.Quat for the convention.
type Quat struct {
	W, X, Y, Z *Expr
}

// QuatConst lifts a numeric quaternion.
func QuatConst(q model.Quat) Quat {
	return Quat{Const(q.W), Const(q.X), Const(q.Y), Const(q.Z)}
}

// QuatParams returns the quaternion of parameters w, x, y and z.
func QuatParams(w, x, y, z int) Quat {
	return Quat{Param(w), Param(x), Param(y), Param(z)}
}

func (q Quat) Mul(b Quat) Quat {
	return Quat{
		W: q.W.Times(b.W).Minus(q.X.Times(b.X)).Minus(q.Y.Times(b.Y)).Minus(q.Z.Times(b.Z)),
		X: q.W.Times(b.X).Plus(q.X.Times(b.W)).Plus(q.Y.Times(b.Z)).Minus(q.Z.Times(b.Y)),
		Y: q.W.Times(b.Y).Minus(q.X.Times(b.Z)).Plus(q.Y.Times(b.W)).Plus(q.Z.Times(b.X)),
		Z: q.W.Times(b.Z).Plus(q.X.Times(b.Y)).Minus(q.Y.Times(b.X)).Plus(q.Z.Times(b.W)),
	}
}

// Magnitude2 returns the squared norm.
func (q Quat) Magnitude2() *Expr {
	return q.W.Square().Plus(q.X.Square()).Plus(q.Y.Square()).Plus(q.Z.Square())
}

func (q Quat) U() Vec {
	two := Const(2)
	return Vec{
		q.W.Square().Plus(q.X.Square()).Minus(q.Y.Square()).Minus(q.Z.Square()),
		two.Times(q.X.Times(q.Y).Plus(q.W.Times(q.Z))),
		two.Times(q.X.Times(q.Z).Minus(q.W.Times(q.Y))),
	}
}

func (q Quat) V() Vec {
	two := Const(2)
	return Vec{
		two.Times(q.X.Times(q.Y).Minus(q.W.Times(q.Z))),
		q.W.Square().Minus(q.X.Square()).Plus(q.Y.Square()).Minus(q.Z.Square()),
		two.Times(q.Y.Times(q.Z).Plus(q.W.Times(q.X))),
	}
}

func (q Quat) N() Vec {
	two := Const(2)
	return Vec{
		two.Times(q.X.Times(q.Z).Plus(q.W.Times(q.Y))),
		two.Times(q.Y.Times(q.Z).Minus(q.W.Times(q.X))),
		q.W.Square().Minus(q.X.Square()).Minus(q.Y.Square()).Plus(q.Z.Square()),
	}
}

// Rotate maps v from the quaternion's frame into world space.
func (q Quat) Rotate(v Vec) Vec {
	return q.U().ScaledBy(v.X).Plus(q.V().ScaledBy(v.Y)).Plus(q.N().ScaledBy(v.Z))
}

// Components returns w, x, y, z in order.
func (q Quat) Components() []*Expr { return []*Expr{q.W, q.X, q.Y, q.Z} }

// Eval evaluates all four components.
func (q Quat) Eval(values []float64) model.Quat {
	return model.Quat{W: q.W.Eval(values), X: q.X.Eval(values), Y: q.Y.Eval(values), Z: q.Z.Eval(values)}
}
