package expr

import (
	"math"
	"testing"

	"github.com/chazu/kerf/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstantFolding(t *testing.T) {
	e := Const(2).Plus(Const(3)).Times(Const(4))
	v, ok := e.Constant()
	require.True(t, ok)
	assert.Equal(t, 20.0, v)

	p := Param(0)
	assert.Same(t, p, p.Plus(Const(0)))
	assert.Same(t, p, p.Times(Const(1)))
	assert.Same(t, p, p.Negate().Negate())
	assert.Equal(t, OpConst, p.Times(Const(0)).Op())
}

func TestPartialMatchesFiniteDifference(t *testing.T) {
	x, y := Param(0), Param(1)
	cases := map[string]*Expr{
		"product":  x.Times(y).Plus(x.Square()),
		"quotient": x.Div(y.Plus(Const(3))),
		"sqrt":     x.Square().Plus(y.Square()).Sqrt(),
		"trig":     x.Sin().Times(y.Cos()).Minus(y.Negate()),
		"nested":   x.Times(y).Sin().Square().Div(Const(2)),
	}
	vals := []float64{0.7, -1.3}
	const h = 1e-6
	for name, e := range cases {
		t.Run(name, func(t *testing.T) {
			for p := range vals {
				plus := append([]float64(nil), vals...)
				minus := append([]float64(nil), vals...)
				plus[p] += h
				minus[p] -= h
				fd := (e.Eval(plus) - e.Eval(minus)) / (2 * h)
				assert.InDelta(t, fd, e.Partial(p).Eval(vals), 1e-6, "param %d of %v", p, e)
			}
		})
	}
}

func TestPartialOfUnrelatedParamIsZero(t *testing.T) {
	e := Param(0).Times(Param(1)).Sin()
	d := e.Partial(5)
	v, ok := d.Constant()
	require.True(t, ok)
	assert.Equal(t, 0.0, v)
	assert.Equal(t, []int{0, 1}, e.Params())
}

func TestQuatBasisMatchesModel(t *testing.T) {
	q := model.QuatFromAxisAngle(model.Vec3{X: 1, Y: 2, Z: 0.5}, 0.8)
	eq := QuatParams(0, 1, 2, 3)
	vals := []float64{q.W, q.X, q.Y, q.Z}

	assert.True(t, eq.U().Eval(vals).Equal(q.U(), 1e-12))
	assert.True(t, eq.V().Eval(vals).Equal(q.V(), 1e-12))
	assert.True(t, eq.N().Eval(vals).Equal(q.N(), 1e-12))
	assert.InDelta(t, 1, eq.Magnitude2().Eval(vals), 1e-12)

	v := model.Vec3{X: 1, Y: -2, Z: 3}
	assert.True(t, eq.Rotate(VecConst(v)).Eval(vals).Equal(q.Rotate(v), 1e-12))

	r := model.QuatFromAxisAngle(model.Vec3{Z: 1}, 0.3)
	prod := QuatConst(r).Mul(eq).Eval(vals)
	want := r.Mul(q)
	assert.InDelta(t, want.W, prod.W, 1e-12)
	assert.InDelta(t, want.X, prod.X, 1e-12)
}

func TestVecOps(t *testing.T) {
	a := VecParams(0, 1, 2)
	b := VecConst(model.Vec3{X: 0, Y: 0, Z: 1})
	vals := []float64{3, 4, 0}
	assert.InDelta(t, 5, a.Magnitude().Eval(vals), 1e-12)
	assert.InDelta(t, 0, a.Dot(b).Eval(vals), 1e-12)
	assert.True(t, a.Cross(b).Eval(vals).Equal(model.Vec3{X: 4, Y: -3}, 1e-12))
	assert.InDelta(t, math.Sqrt(50), a.Minus(b.ScaledBy(Const(5))).Magnitude().Eval(vals), 1e-12)
}
