// Package profile assembles a sketch group's curves into the closed,
// oriented loops a solid kernel sweeps.
package profile

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/model"
	"github.com/samber/lo"
)

// Tolerance is the distance under which two curve ends join.
const Tolerance = 1e-6

var (
	// ErrNoWorkplane means the group has no plane to build a profile in.
	ErrNoWorkplane = errors.New("profile needs a workplane")
	// ErrNotClosed means some curve end meets no other curve.
	ErrNotClosed = errors.New("profile is not closed")
	// ErrNoFaces means the group has no closed curves at all.
	ErrNoFaces = errors.New("profile has zero faces")
)

// Options sets how finely curves are flattened.
type Options struct {
	ArcSegments   int // per full turn
	CurveSegments int // per cubic
}

// DefaultOptions matches the kernel's default mesh resolution.
func DefaultOptions() Options {
	return Options{ArcSegments: 32, CurveSegments: 16}
}

// Normalized replaces unusable segment counts with the defaults.
func (o Options) Normalized() Options {
	if o.ArcSegments < 4 {
		o.ArcSegments = DefaultOptions().ArcSegments
	}
	if o.CurveSegments < 2 {
		o.CurveSegments = DefaultOptions().CurveSegments
	}
	return o
}

// Build flattens the non-construction curves of group into a region in
// the group's workplane. Outer loops run counter-clockwise and holes
// clockwise.
func Build(m *model.Model, group model.ID, opts Options) (kernel.Region, error) {
	g := m.Group(group)
	if g == nil {
		return kernel.Region{}, fmt.Errorf("profile %s: %w", group.Short(), model.ErrNotFound)
	}
	wp := m.Entity(g.Workplane)
	if wp == nil || wp.Kind != model.EntityWorkplane {
		return kernel.Region{}, fmt.Errorf("profile %q: %w", g.Name, ErrNoWorkplane)
	}
	opts = opts.Normalized()

	curves := lo.Filter(m.EntitiesIn(group), func(e *model.Entity, _ int) bool {
		return !e.Construction && e.Workplane == wp.ID && e.InWorkplane() && e.IsCurve()
	})

	var loops [][][2]float64
	var open []polyline
	for _, e := range curves {
		pts, closed := Flatten(e, opts)
		if len(pts) < 2 {
			continue
		}
		if closed {
			loops = append(loops, pts)
			continue
		}
		open = append(open, pts)
	}

	chained, err := chain(open)
	if err != nil {
		return kernel.Region{}, fmt.Errorf("profile %q: %w", g.Name, err)
	}
	loops = append(loops, chained...)
	if len(loops) == 0 {
		return kernel.Region{}, fmt.Errorf("profile %q: %w", g.Name, ErrNoFaces)
	}

	return kernel.Region{
		Origin:      wp.Point3(model.PlaneOrigin),
		Orientation: wp.Quat(model.PlaneNormal).Unit(),
		Loops:       orient(loops),
	}, nil
}

type polyline = [][2]float64

// Flatten samples one workplane curve in (u, v). Circles come back
// closed, without the repeated end point.
func Flatten(e *model.Entity, opts Options) (pts [][2]float64, closed bool) {
	opts = opts.Normalized()
	switch e.Kind {
	case model.EntityLine2D:
		a, b := pt(e, model.PointStart), pt(e, model.PointEnd)
		return polyline{a, b}, false

	case model.EntityArc2D:
		c, from, to := pt(e, model.ArcCenter), pt(e, model.ArcFrom), pt(e, model.ArcTo)
		r := math.Hypot(from[0]-c[0], from[1]-c[1])
		a0 := math.Atan2(from[1]-c[1], from[0]-c[0])
		a1 := math.Atan2(to[1]-c[1], to[0]-c[0])
		sweep := a1 - a0
		for sweep <= 0 {
			sweep += 2 * math.Pi
		}
		n := int(math.Ceil(sweep / (2 * math.Pi) * float64(opts.ArcSegments)))
		if n < 1 {
			n = 1
		}
		out := make(polyline, 0, n+1)
		out = append(out, from)
		for i := 1; i < n; i++ {
			a := a0 + sweep*float64(i)/float64(n)
			out = append(out, [2]float64{c[0] + r*math.Cos(a), c[1] + r*math.Sin(a)})
		}
		// end exactly on the stored point so chaining sees the same value
		return append(out, to), false

	case model.EntityCircle2D:
		c, r := pt(e, model.CircleCenter), math.Abs(e.Radius())
		if r == 0 {
			return nil, true
		}
		n := opts.ArcSegments
		out := make(polyline, n)
		for i := range out {
			a := 2 * math.Pi * float64(i) / float64(n)
			out[i] = [2]float64{c[0] + r*math.Cos(a), c[1] + r*math.Sin(a)}
		}
		return out, true

	case model.EntityCubic:
		var p [4][2]float64
		for i := range p {
			p[i] = pt(e, i)
		}
		n := opts.CurveSegments
		out := make(polyline, 0, n+1)
		for i := 0; i <= n; i++ {
			t := float64(i) / float64(n)
			s := 1 - t
			b0, b1, b2, b3 := s*s*s, 3*s*s*t, 3*s*t*t, t*t*t
			out = append(out, [2]float64{
				b0*p[0][0] + b1*p[1][0] + b2*p[2][0] + b3*p[3][0],
				b0*p[0][1] + b1*p[1][1] + b2*p[2][1] + b3*p[3][1],
			})
		}
		return out, false
	}
	return nil, false
}

func pt(e *model.Entity, i int) [2]float64 {
	u, v := e.Point2(i)
	return [2]float64{u, v}
}

func near(a, b [2]float64) bool {
	return math.Hypot(a[0]-b[0], a[1]-b[1]) <= Tolerance
}

// chain joins open polylines end to end into closed loops.
func chain(open []polyline) ([]polyline, error) {
	used := make([]bool, len(open))
	var loops []polyline
	for start := range open {
		if used[start] {
			continue
		}
		used[start] = true
		cur := append(polyline(nil), open[start]...)
		for !near(cur[0], cur[len(cur)-1]) || len(cur) < 3 {
			end := cur[len(cur)-1]
			next := -1
			reversed := false
			for j, p := range open {
				if used[j] {
					continue
				}
				if near(p[0], end) {
					next = j
					break
				}
				if near(p[len(p)-1], end) {
					next, reversed = j, true
					break
				}
			}
			if next < 0 {
				return nil, fmt.Errorf("%w: open end at (%.6g, %.6g)", ErrNotClosed, end[0], end[1])
			}
			used[next] = true
			seg := open[next]
			if reversed {
				seg = lo.Reverse(append(polyline(nil), seg...))
			}
			cur = append(cur, seg[1:]...)
		}
		loops = append(loops, cur[:len(cur)-1])
	}
	return loops, nil
}

// Area returns the signed area of a closed polyline; positive is
// counter-clockwise.
func Area(loop [][2]float64) float64 {
	var a float64
	for i := range loop {
		p, q := loop[i], loop[(i+1)%len(loop)]
		a += p[0]*q[1] - q[0]*p[1]
	}
	return a / 2
}

// Contains reports whether p lies inside loop, by the even-odd rule.
func Contains(loop [][2]float64, p [2]float64) bool {
	in := false
	for i, j := 0, len(loop)-1; i < len(loop); j, i = i, i+1 {
		a, b := loop[i], loop[j]
		if (a[1] > p[1]) != (b[1] > p[1]) &&
			p[0] < (b[0]-a[0])*(p[1]-a[1])/(b[1]-a[1])+a[0] {
			in = !in
		}
	}
	return in
}

// orient marks loops nested an odd number of times as holes and winds
// them clockwise; the rest wind counter-clockwise. Larger loops first.
func orient(loops []polyline) []kernel.Loop {
	sort.SliceStable(loops, func(i, j int) bool {
		return math.Abs(Area(loops[i])) > math.Abs(Area(loops[j]))
	})
	out := make([]kernel.Loop, len(loops))
	for i, l := range loops {
		depth := 0
		for j, other := range loops {
			if j != i && math.Abs(Area(other)) > math.Abs(Area(l)) && Contains(other, l[0]) {
				depth++
			}
		}
		hole := depth%2 == 1
		if (Area(l) > 0) == hole {
			l = lo.Reverse(append(polyline(nil), l...))
		}
		out[i] = kernel.Loop{Points: l, Hole: hole}
	}
	return out
}
