package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sketchWithLine builds a model holding one sketch group with a workplane
// and a single line.
func sketchWithLine(t *testing.T) (*Model, *Group, *Entity, *Entity) {
	t.Helper()
	m := New()
	g := &Group{Kind: GroupSketch, Name: "sketch"}
	require.NoError(t, m.AddGroup(g))

	wp := &Entity{Kind: EntityWorkplane, Group: g.ID}
	wp.SetQuat(PlaneNormal, IdentityQuat)
	require.NoError(t, m.AddEntity(wp))
	g.Workplane = wp.ID

	line := &Entity{Kind: EntityLine2D, Group: g.ID, Workplane: wp.ID}
	line.SetPoint2(PointStart, 0, 0)
	line.SetPoint2(PointEnd, 10, 0)
	require.NoError(t, m.AddEntity(line))
	return m, g, wp, line
}

func TestDerivedIDDeterministic(t *testing.T) {
	g, s := NewID(), NewID()
	a := DerivedID(g, s, 1)
	assert.Equal(t, a, DerivedID(g, s, 1))
	assert.NotEqual(t, a, DerivedID(g, s, 2))
	assert.NotEqual(t, a, DerivedID(NewID(), s, 1))
	assert.False(t, a.IsZero())
}

func TestIDTextRoundTrip(t *testing.T) {
	id := NewID()
	text, err := id.MarshalText()
	require.NoError(t, err)

	var back ID
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, id, back)

	parsed, err := ParseID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.Len(t, id.Short(), 8)
}

func TestQuatBasis(t *testing.T) {
	const tol = 1e-12
	assert.True(t, IdentityQuat.U().Equal(Vec3{X: 1}, tol))
	assert.True(t, IdentityQuat.V().Equal(Vec3{Y: 1}, tol))
	assert.True(t, IdentityQuat.N().Equal(Vec3{Z: 1}, tol))

	for _, n := range []Vec3{{X: 1}, {Y: -1}, {Z: -1}, {1, 2, 3}} {
		q := QuatFromNormal(n)
		assert.InDelta(t, 1, q.Len(), 1e-12)
		assert.True(t, q.N().Equal(n.Unit(), 1e-9), "normal %v got %v", n, q.N())
		assert.InDelta(t, 0, q.U().Dot(q.V()), 1e-12)
	}

	q := QuatFromAxisAngle(Vec3{Z: 1}, math.Pi/2)
	assert.True(t, q.Rotate(Vec3{X: 1}).Equal(Vec3{Y: 1}, 1e-12))
	axis, angle := q.AxisAngle()
	assert.True(t, axis.Equal(Vec3{Z: 1}, 1e-12))
	assert.InDelta(t, math.Pi/2, angle, 1e-12)

	back := QuatFromBasis(q.U(), q.V())
	assert.True(t, back.N().Equal(q.N(), 1e-12))
}

func TestAddEntityRequiresWorkplane(t *testing.T) {
	m, g, _, _ := sketchWithLine(t)
	err := m.AddEntity(&Entity{Kind: EntityPoint2D, Group: g.ID})
	assert.Error(t, err)
}

func TestAddConstraintChecksArity(t *testing.T) {
	m, g, _, line := sketchWithLine(t)
	err := m.AddConstraint(&Constraint{
		Kind:   ConstraintDistance,
		Group:  g.ID,
		Points: []PointRef{{Entity: line.ID, Point: PointStart}},
	})
	assert.Error(t, err)

	err = m.AddConstraint(&Constraint{
		Kind:   ConstraintDistance,
		Group:  g.ID,
		Points: []PointRef{{Entity: line.ID, Point: PointStart}, {Entity: line.ID, Point: 7}},
	})
	assert.Error(t, err, "control point out of range")

	require.NoError(t, m.AddConstraint(&Constraint{
		Kind:     ConstraintHorizontal,
		Group:    g.ID,
		Entities: []ID{line.ID},
	}))
}

func TestForwardReferenceRejected(t *testing.T) {
	m, first, _, _ := sketchWithLine(t)
	second := &Group{Kind: GroupSketch, Name: "later"}
	require.NoError(t, m.AddGroup(second))
	p := &Entity{Kind: EntityPoint3D, Group: second.ID}
	require.NoError(t, m.AddEntity(p))

	err := m.AddConstraint(&Constraint{
		Kind:   ConstraintFixed,
		Group:  first.ID,
		Points: []PointRef{{Entity: p.ID}},
	})
	assert.ErrorIs(t, err, ErrForwardReference)

	err = m.AddConstraint(&Constraint{
		Kind:   ConstraintFixed,
		Group:  second.ID,
		Points: []PointRef{{Entity: NewID()}},
	})
	assert.ErrorIs(t, err, ErrDanglingReference)
}

func TestMoveGroup(t *testing.T) {
	m, first, _, line := sketchWithLine(t)
	ext := &Group{Kind: GroupExtrude, Name: "extrude", Source: first.ID}
	require.NoError(t, m.AddGroup(ext))
	other := &Group{Kind: GroupSketch, Name: "other"}
	require.NoError(t, m.AddGroup(other))

	err := m.MoveGroup(ext.ID, 0)
	assert.ErrorIs(t, err, ErrForwardReference)
	assert.Equal(t, 0, first.Index, "rejected move leaves order unchanged")
	assert.Equal(t, 1, ext.Index)

	require.NoError(t, m.MoveGroup(other.ID, 0))
	assert.Equal(t, []string{"other", "sketch", "extrude"}, groupNames(m))

	// A constraint in "other" may not reach into "sketch" once it is later.
	err = m.AddConstraint(&Constraint{
		Kind:     ConstraintHorizontal,
		Group:    other.ID,
		Entities: []ID{line.ID},
	})
	assert.ErrorIs(t, err, ErrForwardReference)
	assert.Empty(t, Validate(m))
}

func TestDeleteGroupCascades(t *testing.T) {
	m, first, _, _ := sketchWithLine(t)
	ext := &Group{Kind: GroupExtrude, Name: "extrude", Source: first.ID}
	require.NoError(t, m.AddGroup(ext))
	arr := &Group{Kind: GroupArray, Name: "array", Source: ext.ID}
	require.NoError(t, m.AddGroup(arr))
	keep := &Group{Kind: GroupSketch, Name: "keep"}
	require.NoError(t, m.AddGroup(keep))

	deleted, err := m.DeleteGroup(first.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []ID{first.ID, ext.ID, arr.ID}, deleted)
	assert.Equal(t, []string{"keep"}, groupNames(m))
	assert.Equal(t, 0, keep.Index)
	assert.Empty(t, m.Entities)

	_, err = m.DeleteGroup(first.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveEntityDropsConstraints(t *testing.T) {
	m, g, _, line := sketchWithLine(t)
	c := &Constraint{Kind: ConstraintHorizontal, Group: g.ID, Entities: []ID{line.ID}}
	require.NoError(t, m.AddConstraint(c))

	removed, err := m.RemoveEntity(line.ID)
	require.NoError(t, err)
	assert.Equal(t, []ID{c.ID}, removed)
	assert.Empty(t, m.Constraints)
}

func TestCloneIsIndependent(t *testing.T) {
	m, g, _, line := sketchWithLine(t)
	c := m.Clone()
	c.Entities[line.ID].SetPoint2(PointEnd, 99, 99)
	c.Groups[g.ID].Report(SeverityError, "boom")

	u, _ := line.Point2(PointEnd)
	assert.Equal(t, 10.0, u)
	assert.Empty(t, g.Status)
}

func TestValidateFindings(t *testing.T) {
	m, g, _, line := sketchWithLine(t)
	line.SetPoint2(PointEnd, 0, 0)
	m.Groups[g.ID].Name = "dup"
	require.NoError(t, m.AddGroup(&Group{Kind: GroupSketch, Name: "dup"}))
	require.NoError(t, m.AddGroup(&Group{Kind: GroupExtrude, Name: "orphan"}))

	errs := Validate(m)
	require.True(t, HasErrors(errs))
	assert.Equal(t, SeverityError, errs[0].Severity)

	var msgs []string
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	assert.Contains(t, msgs, `extrude group "orphan" has no source`)
	assert.Contains(t, msgs, "line-2d has zero length")
}

func TestEntityLayout(t *testing.T) {
	wp := NewID()
	cases := []struct {
		e    Entity
		want []int
	}{
		{Entity{Kind: EntityLine2D, Workplane: wp}, []int{2, 2}},
		{Entity{Kind: EntityArc3D}, []int{3, 3, 3, 4}},
		{Entity{Kind: EntityCubic, Workplane: wp}, []int{2, 2, 2, 2}},
		{Entity{Kind: EntityCubic}, []int{3, 3, 3, 3}},
		{Entity{Kind: EntityCircle3D}, []int{3, 1, 4}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.e.Layout(), tc.e.Kind.String())
	}
}

func groupNames(m *Model) []string {
	var names []string
	for _, g := range m.Timeline() {
		names = append(names, g.Name)
	}
	return names
}

func TestConstraintReferences(t *testing.T) {
	a, b, l := NewID(), NewID(), NewID()
	c := &Constraint{
		Kind:      ConstraintPointOnLine,
		Workplane: NewID(),
		Points:    []PointRef{{Entity: a, Point: 0}},
		Entities:  []ID{l},
	}
	assert.Equal(t, []PointRef{{Entity: a, Point: 0}, {Entity: l, Point: WholeEntity}}, c.References())
	assert.Equal(t, []ID{c.Workplane, a, l}, c.ReferencedEntities())

	sym := &Constraint{
		Kind:     ConstraintSymmetric,
		Points:   []PointRef{{Entity: a, Point: PointEnd}, {Entity: b, Point: PointStart}},
		Entities: []ID{l},
	}
	assert.Len(t, sym.References(), 3)
	assert.Equal(t, PointRef{Entity: l, Point: WholeEntity}, sym.References()[2])
}

func TestConstraintReplacePoint(t *testing.T) {
	a, b, l, n := NewID(), NewID(), NewID(), NewID()
	tests := []struct {
		name      string
		c         Constraint
		old, repl PointRef
		changed   bool
		points    []PointRef
		entities  []ID
	}{
		{
			name:    "point ref",
			c:       Constraint{Kind: ConstraintCoincident, Points: []PointRef{{Entity: a, Point: PointEnd}, {Entity: b, Point: PointStart}}},
			old:     PointRef{Entity: a, Point: PointEnd},
			repl:    PointRef{Entity: n, Point: 0},
			changed: true,
			points:  []PointRef{{Entity: n, Point: 0}, {Entity: b, Point: PointStart}},
		},
		{
			name:     "whole entity",
			c:        Constraint{Kind: ConstraintEqualLength, Entities: []ID{l, b}},
			old:      PointRef{Entity: l, Point: WholeEntity},
			repl:     PointRef{Entity: n, Point: WholeEntity},
			changed:  true,
			entities: []ID{n, b},
		},
		{
			name:    "other control point of the same entity",
			c:       Constraint{Kind: ConstraintFixed, Points: []PointRef{{Entity: a, Point: PointStart}}},
			old:     PointRef{Entity: a, Point: PointEnd},
			repl:    PointRef{Entity: n, Point: 0},
			changed: false,
			points:  []PointRef{{Entity: a, Point: PointStart}},
		},
		{
			name:     "entity ref leaves points alone",
			c:        Constraint{Kind: ConstraintPointOnLine, Points: []PointRef{{Entity: l, Point: PointStart}}, Entities: []ID{b}},
			old:      PointRef{Entity: l, Point: WholeEntity},
			repl:     PointRef{Entity: n, Point: WholeEntity},
			changed:  false,
			points:   []PointRef{{Entity: l, Point: PointStart}},
			entities: []ID{b},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.c.Clone()
			assert.Equal(t, tt.changed, c.ReplacePoint(tt.old, tt.repl))
			assert.Equal(t, tt.points, c.Points)
			assert.Equal(t, tt.entities, c.Entities)
		})
	}
}
