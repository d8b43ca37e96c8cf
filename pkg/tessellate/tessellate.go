// Package tessellate turns a regenerated document into display geometry
// using a geometry kernel: one triangle mesh per body and one polyline
// per curve.
package tessellate

import (
	"fmt"
	"math"

	"github.com/chazu/kerf/pkg/document"
	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/model"
	"github.com/chazu/kerf/pkg/profile"
)

// Tessellate produces one triangle mesh per body, in body order. Bodies
// without a solid or with nothing left to mesh are skipped. The
// tessellator never mutates its input.
func Tessellate(bodies []document.Body, k kernel.Kernel) ([]*kernel.Mesh, error) {
	var meshes []*kernel.Mesh
	for _, b := range bodies {
		if b.Solid == nil {
			continue
		}
		mesh, err := k.ToMesh(b.Solid)
		if err != nil {
			return nil, fmt.Errorf("tessellate: ToMesh failed for body %q: %w", b.Name, err)
		}
		if mesh.IsEmpty() {
			continue
		}

		// Set the part name: prefer the body's Name, fall back to short ID.
		if b.Name != "" {
			mesh.PartName = b.Name
		} else {
			mesh.PartName = b.ID.Short()
		}
		meshes = append(meshes, mesh)
	}
	return meshes, nil
}

// Wire is one curve sampled into a world-space polyline.
type Wire struct {
	Group        string    `json:"group"`
	Entity       model.ID  `json:"entity"`
	Points       []float32 `json:"points"` // [x0,y0,z0, x1,y1,z1, ...]
	Closed       bool      `json:"closed"`
	Construction bool      `json:"construction"`
	Generated    bool      `json:"generated"`
}

// Wires samples every curve of m in timeline order.
func Wires(m *model.Model, opts profile.Options) []Wire {
	opts = opts.Normalized()
	var wires []Wire
	for _, g := range m.Timeline() {
		for _, e := range m.EntitiesIn(g.ID) {
			if !e.IsCurve() {
				continue
			}
			pts, closed := sample(m, e, opts)
			if len(pts) < 2 {
				continue
			}
			w := Wire{
				Group:        g.Name,
				Entity:       e.ID,
				Points:       make([]float32, 0, 3*len(pts)),
				Closed:       closed,
				Construction: e.Construction,
				Generated:    e.Generated,
			}
			for _, p := range pts {
				w.Points = append(w.Points, float32(p.X), float32(p.Y), float32(p.Z))
			}
			wires = append(wires, w)
		}
	}
	return wires
}

// sample returns the world-space polyline of a curve.
func sample(m *model.Model, e *model.Entity, opts profile.Options) ([]model.Vec3, bool) {
	if e.InWorkplane() {
		wp := m.Entity(e.Workplane)
		if wp == nil {
			return nil, false
		}
		plane := kernel.Region{
			Origin:      wp.Point3(model.PlaneOrigin),
			Orientation: wp.Quat(model.PlaneNormal).Unit(),
		}
		uv, closed := profile.Flatten(e, opts)
		out := make([]model.Vec3, len(uv))
		for i, p := range uv {
			out[i] = plane.World(p)
		}
		return out, closed
	}

	switch e.Kind {
	case model.EntityLine3D:
		return []model.Vec3{e.Point3(model.PointStart), e.Point3(model.PointEnd)}, false

	case model.EntityArc3D:
		c, from, to := e.Point3(model.ArcCenter), e.Point3(model.ArcFrom), e.Point3(model.ArcTo)
		u := from.Sub(c)
		r := u.Len()
		if r == 0 {
			return nil, false
		}
		u = u.Unit()
		v := e.Quat(model.ArcNormal).Unit().N().Cross(u)
		d := to.Sub(c)
		sweep := math.Atan2(d.Dot(v), d.Dot(u))
		for sweep <= 0 {
			sweep += 2 * math.Pi
		}
		n := int(math.Ceil(sweep / (2 * math.Pi) * float64(opts.ArcSegments)))
		if n < 1 {
			n = 1
		}
		out := make([]model.Vec3, 0, n+1)
		for i := 0; i < n; i++ {
			a := sweep * float64(i) / float64(n)
			out = append(out, c.Add(u.Scale(r*math.Cos(a))).Add(v.Scale(r*math.Sin(a))))
		}
		return append(out, to), false

	case model.EntityCircle3D:
		c, r := e.Point3(model.CircleCenter), math.Abs(e.Radius())
		if r == 0 {
			return nil, true
		}
		q := e.Quat(model.CircleNormal).Unit()
		u, v := q.U(), q.V()
		out := make([]model.Vec3, opts.ArcSegments)
		for i := range out {
			a := 2 * math.Pi * float64(i) / float64(len(out))
			out[i] = c.Add(u.Scale(r * math.Cos(a))).Add(v.Scale(r * math.Sin(a)))
		}
		return out, true

	case model.EntityCubic:
		var p [4]model.Vec3
		for i := range p {
			p[i] = e.Point3(i)
		}
		n := opts.CurveSegments
		out := make([]model.Vec3, 0, n+1)
		for i := 0; i <= n; i++ {
			t := float64(i) / float64(n)
			s := 1 - t
			out = append(out, p[0].Scale(s*s*s).
				Add(p[1].Scale(3*s*s*t)).
				Add(p[2].Scale(3*s*t*t)).
				Add(p[3].Scale(t*t*t)))
		}
		return out, false
	}
	return nil, false
}
