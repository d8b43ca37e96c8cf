package solver

import (
	"testing"
	"time"

	"github.com/chazu/kerf/pkg/model"
	"github.com/chazu/kerf/pkg/numeric"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sketch struct {
	t  *testing.T
	m  *model.Model
	g  *model.Group
	wp *model.Entity
}

func newSketch(t *testing.T) *sketch {
	t.Helper()
	m := model.New()
	g := &model.Group{Kind: model.GroupSketch, Name: "sketch"}
	require.NoError(t, m.AddGroup(g))
	wp := &model.Entity{Kind: model.EntityWorkplane, Group: g.ID}
	wp.SetQuat(model.PlaneNormal, model.IdentityQuat)
	require.NoError(t, m.AddEntity(wp))
	g.Workplane = wp.ID
	return &sketch{t: t, m: m, g: g, wp: wp}
}

func (s *sketch) point(group *model.Group, u, v float64) *model.Entity {
	e := &model.Entity{Kind: model.EntityPoint2D, Group: group.ID, Workplane: s.wp.ID}
	e.SetPoint2(0, u, v)
	require.NoError(s.t, s.m.AddEntity(e))
	return e
}

func (s *sketch) constrain(group *model.Group, c *model.Constraint) *model.Constraint {
	c.Group = group.ID
	require.NoError(s.t, s.m.AddConstraint(c))
	return c
}

func at(e *model.Entity) model.PointRef { return model.PointRef{Entity: e.ID} }

func newHost() *Host { return NewHost(numeric.DefaultNewton(), nil) }

func TestSolveWritesBack(t *testing.T) {
	s := newSketch(t)
	p1, p2, p3 := s.point(s.g, 0, 0), s.point(s.g, 5, 5), s.point(s.g, 0, 0)
	s.constrain(s.g, &model.Constraint{Kind: model.ConstraintCoincident, Points: []model.PointRef{at(p1), at(p2)}})
	s.constrain(s.g, &model.Constraint{Kind: model.ConstraintHorizontalDistance, Points: []model.PointRef{at(p3), at(p2)}, Datum: 3})
	s.constrain(s.g, &model.Constraint{Kind: model.ConstraintFixed, Points: []model.PointRef{at(p3)}})

	res, err := newHost().Solve(s.m, s.g.ID, Options{WantFree: true})
	require.NoError(t, err)
	assert.Equal(t, numeric.Okay, res.Verdict)
	assert.GreaterOrEqual(t, res.DOF, 1)

	u1, v1 := p1.Point2(0)
	u2, v2 := p2.Point2(0)
	assert.InDelta(t, 3, u2, 1e-9)
	assert.InDelta(t, u1, u2, 1e-9)
	assert.InDelta(t, v1, v2, 1e-9)

	assert.Contains(t, res.Free, at(p2))
	assert.NotContains(t, res.Free, at(p3))
}

func TestSolveFailureLeavesModel(t *testing.T) {
	s := newSketch(t)
	a, b := s.point(s.g, 0, 0), s.point(s.g, 5, 5)
	s.constrain(s.g, &model.Constraint{Kind: model.ConstraintFixed, Points: []model.PointRef{at(a)}})
	s.constrain(s.g, &model.Constraint{Kind: model.ConstraintHorizontalDistance, Points: []model.PointRef{at(a), at(b)}, Datum: 3})
	s.constrain(s.g, &model.Constraint{Kind: model.ConstraintHorizontalDistance, Points: []model.PointRef{at(a), at(b)}, Datum: 7})
	before := s.m.Clone()

	res, err := newHost().Solve(s.m, s.g.ID, Options{})
	require.NoError(t, err)
	assert.Contains(t, []numeric.Verdict{numeric.DidntConverge, numeric.RedundantDidntConverge}, res.Verdict)
	assert.Equal(t, before, s.m)
}

func TestSolveOnlyTouchesTargetGroup(t *testing.T) {
	s := newSketch(t)
	base := s.point(s.g, 1, 2)
	later := &model.Group{Kind: model.GroupSketch, Name: "later", Workplane: s.wp.ID}
	require.NoError(t, s.m.AddGroup(later))
	q := s.point(later, 4, 4)
	s.constrain(later, &model.Constraint{Kind: model.ConstraintCoincident, Points: []model.PointRef{at(base), at(q)}})

	before := s.m.Clone()
	res, err := newHost().Solve(s.m, later.ID, Options{})
	require.NoError(t, err)
	require.Equal(t, numeric.Okay, res.Verdict)

	u, v := q.Point2(0)
	assert.InDelta(t, 1, u, 1e-9)
	assert.InDelta(t, 2, v, 1e-9)
	for id, e := range before.Entities {
		if e.Group != later.ID {
			assert.Equal(t, e.Params, s.m.Entity(id).Params, "entity %s outside the group changed", id.Short())
		}
	}
}

func TestSolveStoresAuxAndMeasurements(t *testing.T) {
	s := newSketch(t)
	l := &model.Entity{Kind: model.EntityLine2D, Group: s.g.ID, Workplane: s.wp.ID}
	l.SetPoint2(model.PointEnd, 10, 0)
	require.NoError(t, s.m.AddEntity(l))
	s.constrain(s.g, &model.Constraint{Kind: model.ConstraintFixed, Points: []model.PointRef{{Entity: l.ID, Point: model.PointStart}}})
	s.constrain(s.g, &model.Constraint{Kind: model.ConstraintFixed, Points: []model.PointRef{{Entity: l.ID, Point: model.PointEnd}}, At: [4]float64{10, 0}})
	p := s.point(s.g, 4, 3)
	on := s.constrain(s.g, &model.Constraint{Kind: model.ConstraintPointOnLine, Points: []model.PointRef{at(p)}, Entities: []model.ID{l.ID}})
	meas := s.constrain(s.g, &model.Constraint{Kind: model.ConstraintDistance, Points: []model.PointRef{{Entity: l.ID, Point: model.PointStart}, at(p)}, Measurement: true})

	res, err := newHost().Solve(s.m, s.g.ID, Options{})
	require.NoError(t, err)
	require.Equal(t, numeric.Okay, res.Verdict)

	assert.True(t, on.AuxValid)
	u, v := p.Point2(0)
	assert.InDelta(t, 0, v, 1e-9)
	assert.InDelta(t, u/10, on.Aux, 1e-9)
	assert.InDelta(t, u, meas.Datum, 1e-9)
}

func TestFindRemovable(t *testing.T) {
	s := newSketch(t)
	a, b := s.point(s.g, 0, 0), s.point(s.g, 3, 1)
	s.constrain(s.g, &model.Constraint{Kind: model.ConstraintFixed, Points: []model.PointRef{at(a)}})
	d1 := s.constrain(s.g, &model.Constraint{Kind: model.ConstraintHorizontalDistance, Points: []model.PointRef{at(a), at(b)}, Datum: 3})
	d2 := s.constrain(s.g, &model.Constraint{Kind: model.ConstraintHorizontalDistance, Points: []model.PointRef{at(a), at(b)}, Datum: 3})

	h := newHost()
	sess := h.Acquire()
	defer sess.Release()

	res, err := sess.Solve(s.m, s.g.ID, Options{})
	require.NoError(t, err)
	require.Equal(t, numeric.RedundantOkay, res.Verdict)

	before := s.m.Clone()
	removable, err := sess.FindRemovable(s.m, s.g.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []model.ID{d1.ID, d2.ID}, removable)
	assert.Equal(t, before, s.m)
}

func TestFindRemovableCountsStillRedundant(t *testing.T) {
	s := newSketch(t)
	a, b := s.point(s.g, 0, 0), s.point(s.g, 3, 1)
	s.constrain(s.g, &model.Constraint{Kind: model.ConstraintFixed, Points: []model.PointRef{at(a)}})
	var dups []model.ID
	for i := 0; i < 3; i++ {
		c := s.constrain(s.g, &model.Constraint{Kind: model.ConstraintHorizontalDistance, Points: []model.PointRef{at(a), at(b)}, Datum: 3})
		dups = append(dups, c.ID)
	}
	// independent of the duplicates, so never a suspect
	s.constrain(s.g, &model.Constraint{Kind: model.ConstraintVerticalDistance, Points: []model.PointRef{at(a), at(b)}, Datum: 1})

	h := newHost()
	sess := h.Acquire()
	defer sess.Release()

	res, err := sess.Solve(s.m, s.g.ID, Options{})
	require.NoError(t, err)
	require.Equal(t, numeric.RedundantOkay, res.Verdict)
	assert.Equal(t, 0, res.DOF)

	removable, err := sess.FindRemovable(s.m, s.g.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, dups, removable)
}

func TestFindRemovableCleanGroup(t *testing.T) {
	s := newSketch(t)
	a, b := s.point(s.g, 0, 0), s.point(s.g, 3, 1)
	s.constrain(s.g, &model.Constraint{Kind: model.ConstraintFixed, Points: []model.PointRef{at(a)}})
	s.constrain(s.g, &model.Constraint{Kind: model.ConstraintHorizontalDistance, Points: []model.PointRef{at(a), at(b)}, Datum: 3})

	h := newHost()
	sess := h.Acquire()
	defer sess.Release()
	removable, err := sess.FindRemovable(s.m, s.g.ID)
	require.NoError(t, err)
	assert.Empty(t, removable)
}

func TestSolveMovesWorkplaneOfTargetGroup(t *testing.T) {
	m := model.New()
	base := &model.Group{Kind: model.GroupSketch, Name: "base"}
	require.NoError(t, m.AddGroup(base))
	anchor := &model.Entity{Kind: model.EntityPoint3D, Group: base.ID}
	anchor.SetPoint3(0, model.Vec3{X: 1, Y: 2, Z: 3})
	require.NoError(t, m.AddEntity(anchor))

	g := &model.Group{Kind: model.GroupSketch, Name: "plane"}
	require.NoError(t, m.AddGroup(g))
	wp := &model.Entity{Kind: model.EntityWorkplane, Group: g.ID}
	wp.SetQuat(model.PlaneNormal, model.IdentityQuat)
	require.NoError(t, m.AddEntity(wp))
	g.Workplane = wp.ID
	require.NoError(t, m.AddConstraint(&model.Constraint{
		Kind:   model.ConstraintCoincident,
		Group:  g.ID,
		Points: []model.PointRef{at(anchor), {Entity: wp.ID, Point: model.PlaneOrigin}},
	}))

	res, err := newHost().Solve(m, g.ID, Options{})
	require.NoError(t, err)
	require.Equal(t, numeric.Okay, res.Verdict)
	assert.Equal(t, 3, res.DOF, "only the orientation is left")
	assert.Equal(t, model.Vec3{X: 1, Y: 2, Z: 3}, anchor.Point3(0), "earlier groups are inputs")

	origin := wp.Point3(model.PlaneOrigin)
	assert.InDelta(t, 1, origin.X, 1e-9)
	assert.InDelta(t, 2, origin.Y, 1e-9)
	assert.InDelta(t, 3, origin.Z, 1e-9)
	q := wp.Quat(model.PlaneNormal)
	assert.InDelta(t, 1, q.W*q.W+q.X*q.X+q.Y*q.Y+q.Z*q.Z, 1e-9)
}

func TestSessionIsExclusive(t *testing.T) {
	h := newHost()
	sess := h.Acquire()

	acquired := make(chan struct{})
	go func() {
		other := h.Acquire()
		close(acquired)
		other.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("second session acquired while the first was held")
	case <-time.After(50 * time.Millisecond):
	}

	sess.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second session never acquired")
	}
}

func TestReleasedSession(t *testing.T) {
	s := newSketch(t)
	h := newHost()
	sess := h.Acquire()
	sess.Release()
	sess.Release()

	_, err := sess.Solve(s.m, s.g.ID, Options{})
	assert.ErrorIs(t, err, ErrReleased)
	_, err = sess.FindRemovable(s.m, s.g.ID)
	assert.ErrorIs(t, err, ErrReleased)
	assert.Equal(t, uint64(0), h.Solves())
}

func TestSolveReportsBuildErrors(t *testing.T) {
	s := newSketch(t)
	_, err := newHost().Solve(s.m, model.NewID(), Options{})
	assert.ErrorIs(t, err, model.ErrNotFound)
}
