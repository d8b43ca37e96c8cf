package engine

import (
	"math"
	"reflect"
	"testing"

	"github.com/chazu/kerf/pkg/model"
)

// ---------------------------------------------------------------------------
// Preprocessing tests
// ---------------------------------------------------------------------------

func TestPreprocessKeywords(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		expect string
	}{
		{
			name:   "simple keyword",
			input:  `(extrude base :depth 5)`,
			expect: `(extrude base "__kw_depth" 5)`,
		},
		{
			name:   "multiple keywords",
			input:  `(circle :center c :radius 5)`,
			expect: `(circle "__kw_center" c "__kw_radius" 5)`,
		},
		{
			name:   "keyword in string preserved",
			input:  `"thing with :keyword inside"`,
			expect: `"thing with :keyword inside"`,
		},
		{
			name:   "assignment operator preserved",
			input:  `(def x := 10)`,
			expect: `(def x := 10)`,
		},
		{
			name:   "kebab-case identifier",
			input:  `(equal-length a b)`,
			expect: `(equal_length a b)`,
		},
		{
			name:   "nested kebab-case identifiers",
			input:  `(coincident (end-of a) (start-of b))`,
			expect: `(coincident (end_of a) (start_of b))`,
		},
		{
			name:   "minus operator preserved",
			input:  `(- 10 5)`,
			expect: `(- 10 5)`,
		},
		{
			name:   "negative literal preserved",
			input:  `(line -1 0 10 -2.5)`,
			expect: `(line -1 0 10 -2.5)`,
		},
		{
			name:   "comment converted to // style",
			input:  `;; comment with :keyword`,
			expect: `// comment with :keyword`,
		},
		{
			name:   "single semicolon comment",
			input:  `; simple comment`,
			expect: `// simple comment`,
		},
		{
			name:   "hyphen in keyword preserved",
			input:  `:other-side`,
			expect: `"__kw_other-side"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := preprocessSource(tt.input)
			if got != tt.expect {
				t.Errorf("preprocessSource(%q) = %q, want %q", tt.input, got, tt.expect)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func evalOK(t *testing.T, source string) *model.Model {
	t.Helper()
	m, evalErrs, err := NewEngine(nil).Evaluate(source)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) > 0 {
		t.Fatalf("eval errors: %v", evalErrs)
	}
	if m == nil {
		t.Fatal("expected non-nil model")
	}
	return m
}

func entitiesOfKind(m *model.Model, kind model.EntityKind) []*model.Entity {
	var out []*model.Entity
	for _, g := range m.Timeline() {
		for _, e := range m.EntitiesIn(g.ID) {
			if e.Kind == kind {
				out = append(out, e)
			}
		}
	}
	return out
}

func constraintsOfKind(m *model.Model, kind model.ConstraintKind) []*model.Constraint {
	var out []*model.Constraint
	for _, g := range m.Timeline() {
		for _, c := range m.ConstraintsIn(g.ID) {
			if c.Kind == kind {
				out = append(out, c)
			}
		}
	}
	return out
}

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

const rectangle = `
(def base (sketch "base"))
(def sides (polygon (vec2 0 0) (vec2 10 0) (vec2 10 5) (vec2 0 5)))
(def bottom (nth sides 0))
(horizontal bottom)
(vertical (nth sides 1))
(distance (start-of bottom) (end-of bottom) 10)
(fixed (start-of bottom))
`

// ---------------------------------------------------------------------------
// Sketch tests
// ---------------------------------------------------------------------------

func TestSketchCreatesWorkplane(t *testing.T) {
	m := evalOK(t, `(sketch "base")`)

	g := m.GroupNamed("base")
	if g == nil {
		t.Fatal("expected group named 'base'")
	}
	if g.Kind != model.GroupSketch {
		t.Errorf("expected sketch group, got %s", g.Kind)
	}
	wp := m.Entity(g.Workplane)
	if wp == nil || wp.Kind != model.EntityWorkplane {
		t.Fatalf("expected a workplane entity, got %v", wp)
	}
	n := wp.Quat(model.PlaneNormal).N()
	if !n.Equal(model.Vec3{Z: 1}, 1e-9) {
		t.Errorf("default normal = %v, want +Z", n)
	}
	if !g.Pending() || !g.GeneratePending || !g.SolvePending || !g.SolidPending {
		t.Errorf("evaluated groups should be fully pending, got %+v", g)
	}
}

func TestSketchOrientation(t *testing.T) {
	m := evalOK(t, `(sketch "side" :origin (vec3 0 0 4) :normal (vec3 1 0 0) :u (vec3 0 1 0))`)

	wp := m.Entity(m.GroupNamed("side").Workplane)
	q := wp.Quat(model.PlaneNormal)
	if !q.N().Equal(model.Vec3{X: 1}, 1e-9) {
		t.Errorf("normal = %v, want +X", q.N())
	}
	if !q.U().Equal(model.Vec3{Y: 1}, 1e-9) {
		t.Errorf("u = %v, want +Y", q.U())
	}
	if !wp.Point3(model.PlaneOrigin).Equal(model.Vec3{Z: 4}, 1e-12) {
		t.Errorf("origin = %v, want (0,0,4)", wp.Point3(model.PlaneOrigin))
	}
}

func TestSketchOnExistingWorkplane(t *testing.T) {
	m := evalOK(t, `
(sketch "base")
(sketch "second" :on (workplane-of "base"))
(line 0 0 1 1)
`)
	base, second := m.GroupNamed("base"), m.GroupNamed("second")
	if second.Workplane != base.Workplane {
		t.Fatal("second sketch should reuse the base workplane")
	}
	if n := len(entitiesOfKind(m, model.EntityWorkplane)); n != 1 {
		t.Errorf("expected 1 workplane, got %d", n)
	}
	lines := m.EntitiesIn(second.ID)
	if len(lines) != 1 || lines[0].Workplane != base.Workplane {
		t.Errorf("line should live in the shared workplane: %+v", lines)
	}
}

func TestFreeSketchMakes3DEntities(t *testing.T) {
	m := evalOK(t, `
(sketch "wire" :free)
(line 0 0 0 1 2 3)
(point (vec3 4 5 6))
`)
	lines := entitiesOfKind(m, model.EntityLine3D)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line-3d, got %d", len(lines))
	}
	if !lines[0].Point3(model.PointEnd).Equal(model.Vec3{X: 1, Y: 2, Z: 3}, 1e-12) {
		t.Errorf("end = %v", lines[0].Point3(model.PointEnd))
	}
	if n := len(entitiesOfKind(m, model.EntityPoint3D)); n != 1 {
		t.Errorf("expected 1 point-3d, got %d", n)
	}
	if !m.GroupNamed("wire").Workplane.IsZero() {
		t.Error("free sketch should have no workplane")
	}
}

// ---------------------------------------------------------------------------
// Entity tests
// ---------------------------------------------------------------------------

func TestPolygonWithConstraints(t *testing.T) {
	m := evalOK(t, rectangle)

	lines := entitiesOfKind(m, model.EntityLine2D)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d", len(lines))
	}
	counts := map[model.ConstraintKind]int{
		model.ConstraintCoincident: 4,
		model.ConstraintHorizontal: 1,
		model.ConstraintVertical:   1,
		model.ConstraintDistance:   1,
		model.ConstraintFixed:      1,
	}
	for kind, want := range counts {
		if got := len(constraintsOfKind(m, kind)); got != want {
			t.Errorf("%s: got %d constraints, want %d", kind, got, want)
		}
	}
	d := constraintsOfKind(m, model.ConstraintDistance)[0]
	if d.Datum != 10 {
		t.Errorf("distance datum = %g, want 10", d.Datum)
	}
	if d.Workplane != m.GroupNamed("base").Workplane {
		t.Error("sketch constraints should be measured in the sketch workplane")
	}
}

func TestVariableReference(t *testing.T) {
	m := evalOK(t, `
(def width 20)
(sketch "s")
(line 0 0 width (* width 0.5))
`)
	l := entitiesOfKind(m, model.EntityLine2D)[0]
	u, v := l.Point2(model.PointEnd)
	if u != 20 || v != 10 {
		t.Errorf("end = (%g, %g), want (20, 10)", u, v)
	}
}

func TestArcCircleCubic(t *testing.T) {
	m := evalOK(t, `
(sketch "s")
(arc :center (vec2 0 0) :from (vec2 5 0) :to (vec2 0 3))
(circle (vec2 1 1) 2.5)
(circle :center (vec2 9 9) :radius 1 :construction)
(cubic 0 0 1 2 3 2 4 0)
`)
	arc := entitiesOfKind(m, model.EntityArc2D)[0]
	u, v := arc.Point2(model.ArcTo)
	if !near(u, 0) || !near(v, 5) {
		t.Errorf("arc end should be pulled onto the radius, got (%g, %g)", u, v)
	}
	circles := entitiesOfKind(m, model.EntityCircle2D)
	if len(circles) != 2 {
		t.Fatalf("expected 2 circles, got %d", len(circles))
	}
	var construction int
	for _, c := range circles {
		if c.Construction {
			construction++
			continue
		}
		if c.Radius() != 2.5 {
			t.Errorf("radius = %g, want 2.5", c.Radius())
		}
	}
	if construction != 1 {
		t.Errorf("expected 1 construction circle, got %d", construction)
	}
	cubic := entitiesOfKind(m, model.EntityCubic)[0]
	if !cubic.InWorkplane() {
		t.Error("cubic in a workplane sketch should be 2D")
	}
	if u, v := cubic.Point2(2); u != 3 || v != 2 {
		t.Errorf("cubic control 2 = (%g, %g), want (3, 2)", u, v)
	}
}

func TestPointAccessors(t *testing.T) {
	m := evalOK(t, `
(sketch "s")
(def a (arc (vec2 0 0) (vec2 5 0) (vec2 0 5)))
(def l (line 0 5 -4 5))
(coincident (end-of a) (start-of l))
(point-on-circle (control l 1) a)
(def p (point 1 1))
(midpoint p l)
`)
	co := constraintsOfKind(m, model.ConstraintCoincident)[0]
	if co.Points[0].Point != model.ArcTo || co.Points[1].Point != model.PointStart {
		t.Errorf("coincident refs = %v", co.Points)
	}
	poc := constraintsOfKind(m, model.ConstraintPointOnCircle)[0]
	if poc.Points[0].Point != model.PointEnd || len(poc.Entities) != 1 {
		t.Errorf("point-on-circle refs = %v / %v", poc.Points, poc.Entities)
	}
	mid := constraintsOfKind(m, model.ConstraintMidpoint)[0]
	if len(mid.Points) != 1 || mid.Points[0].Point != 0 {
		t.Errorf("a point entity should be passed as its control point 0, got %v", mid.Points)
	}
}

func TestMeasurementAndFlags(t *testing.T) {
	m := evalOK(t, `
(sketch "s")
(def a (line 0 0 10 0))
(def b (line 0 0 0 10))
(distance (start-of a) (end-of a) :measure)
(angle a b 90 :other :label (vec2 3 3))
`)
	d := constraintsOfKind(m, model.ConstraintDistance)[0]
	if !d.Measurement {
		t.Error("distance should be a measurement")
	}
	ang := constraintsOfKind(m, model.ConstraintAngle)[0]
	if !ang.Other || ang.Other2 {
		t.Errorf("angle flags other=%v other2=%v", ang.Other, ang.Other2)
	}
	if ang.Datum != 90 {
		t.Errorf("angle datum = %g, want 90", ang.Datum)
	}
	if ang.Offset != (model.Vec3{X: 3, Y: 3}) {
		t.Errorf("label offset = %v", ang.Offset)
	}
}

func TestFixedCapturesPosition(t *testing.T) {
	m := evalOK(t, `
(sketch "s")
(def p (point 3 -4))
(fixed p)
`)
	c := constraintsOfKind(m, model.ConstraintFixed)[0]
	if c.At[0] != 3 || c.At[1] != -4 {
		t.Errorf("fixed At = %v, want (3, -4)", c.At)
	}
}

// ---------------------------------------------------------------------------
// Derivation tests
// ---------------------------------------------------------------------------

func TestDerivations(t *testing.T) {
	m := evalOK(t, rectangle+`
(extrude base :depth 5 :name "block")
(revolve "base" :axis (vec3 0 1 0) :angle 90 :name "swept")
(lathe base :origin (vec3 -1 0 0) :axis (vec3 0 1 0) :name "turned")
(linear-array (group "block") :step (vec3 12 0 0) :count 3 :name "row")
(mirror base :normal (vec3 1 0 0) :name "flipped")
(clone base :offset (vec3 0 0 10) :name "copy" :body "block" :difference)
`)
	tests := []struct {
		name   string
		kind   model.GroupKind
		source string
		check  func(tr model.Transform) bool
	}{
		{"block", model.GroupExtrude, "base", func(tr model.Transform) bool {
			return tr.Offset.Equal(model.Vec3{Z: 5}, 1e-9)
		}},
		{"swept", model.GroupRevolve, "base", func(tr model.Transform) bool {
			return near(tr.Angle, math.Pi/2) && tr.Axis == model.Vec3{Y: 1}
		}},
		{"turned", model.GroupLathe, "base", func(tr model.Transform) bool {
			return tr.Origin == model.Vec3{X: -1} && tr.Angle == 0
		}},
		{"row", model.GroupArray, "block", func(tr model.Transform) bool {
			return tr.Count == 3 && tr.Offset == model.Vec3{X: 12}
		}},
		{"flipped", model.GroupMirror, "base", func(tr model.Transform) bool {
			return tr.Axis == model.Vec3{X: 1}
		}},
		{"copy", model.GroupClone, "base", func(tr model.Transform) bool {
			return tr.Offset == model.Vec3{Z: 10}
		}},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := m.GroupNamed(tt.name)
			if g == nil {
				t.Fatalf("no group %q", tt.name)
			}
			if g.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", g.Kind, tt.kind)
			}
			if g.Index != i+1 {
				t.Errorf("index = %d, want %d", g.Index, i+1)
			}
			if g.Source != m.GroupNamed(tt.source).ID {
				t.Errorf("source should be %q", tt.source)
			}
			if !tt.check(g.Transform) {
				t.Errorf("unexpected transform %+v", g.Transform)
			}
		})
	}

	cp := m.GroupNamed("copy")
	if cp.Combine != model.CombineDifference || cp.Body != m.GroupNamed("block").ID {
		t.Errorf("copy combine=%s body=%s", cp.Combine, cp.Body.Short())
	}
}

func TestDerivationClosesSketch(t *testing.T) {
	_, evalErrs, err := NewEngine(nil).Evaluate(rectangle + `
(extrude base :depth 5)
(line 0 0 1 1)
`)
	if err != nil {
		t.Fatalf("fatal error: %v", err)
	}
	if len(evalErrs) == 0 {
		t.Fatal("expected an error adding a line after the sketch was closed")
	}
}

func TestBuiltinErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
	}{
		{"constraint outside sketch", `(horizontal 1)`},
		{"distance without value", `(sketch "s") (def a (line 0 0 1 0)) (distance (start-of a) (end-of a))`},
		{"horizontal with value", `(sketch "s") (def a (line 0 0 1 0)) (horizontal a 3)`},
		{"wrong arity", `(sketch "s") (def a (line 0 0 1 0)) (parallel a)`},
		{"unknown keyword", `(sketch "s") (def a (line 0 0 1 0)) (horizontal a :bogus 1)`},
		{"3d coordinate in workplane", `(sketch "s") (point (vec3 1 2 3))`},
		{"incomplete coordinate", `(sketch "s") (line 0 0 1)`},
		{"duplicate group name", `(sketch "s") (sketch "s")`},
		{"missing source", `(extrude "nothing" :depth 2)`},
		{"extrude without depth", `(sketch "s") (extrude "s")`},
		{"array count", `(sketch "s") (linear-array "s" :step (vec3 1 0 0) :count 0)`},
		{"revolve without angle", `(sketch "s") (revolve "s" :axis (vec3 0 1 0))`},
		{"negative radius", `(sketch "s") (circle (vec2 0 0) -1)`},
		{"start-of a circle", `(sketch "s") (start-of (circle (vec2 0 0) 1))`},
		{"u out of plane", `(sketch "s" :u (vec3 0 0 1))`},
		{"on a non-workplane", `(sketch "s") (def l (line 0 0 1 1)) (sketch "t" :on l)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, evalErrs, err := NewEngine(nil).Evaluate(tt.source)
			if err != nil {
				t.Fatalf("expected non-fatal eval error, got fatal: %v", err)
			}
			if m != nil {
				t.Fatal("expected nil model on eval error")
			}
			if len(evalErrs) == 0 {
				t.Fatal("expected at least one eval error")
			}
			if evalErrs[0].Message == "" {
				t.Error("eval error message should not be empty")
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Determinism and lint
// ---------------------------------------------------------------------------

func TestEvaluateSameSourceSameModel(t *testing.T) {
	source := rectangle + `(extrude base :depth 5)`
	a := evalOK(t, source)
	b := evalOK(t, source)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("evaluating the same source twice should give identical models")
	}
}

func TestGroupIDsSurviveInsertion(t *testing.T) {
	a := evalOK(t, rectangle)
	b := evalOK(t, `(sketch "first") (point 0 0)`+rectangle)
	if a.GroupNamed("base").ID != b.GroupNamed("base").ID {
		t.Error("group identity should depend on its name only")
	}
	if b.GroupNamed("base").Index != 1 {
		t.Errorf("base index = %d, want 1", b.GroupNamed("base").Index)
	}
}

func TestLintReportsWarnings(t *testing.T) {
	m := evalOK(t, `(sketch "s") (line 2 2 2 2)`)
	warnings := Lint(m)
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %v", warnings)
	}
	if warnings[0].ID != entitiesOfKind(m, model.EntityLine2D)[0].ID {
		t.Error("warning should name the degenerate line")
	}
	if len(Lint(evalOK(t, rectangle))) != 0 {
		t.Error("a clean sketch should lint clean")
	}
}
