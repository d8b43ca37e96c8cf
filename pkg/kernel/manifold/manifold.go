//go:build manifold

// Package manifold provides a CGo-based geometry kernel binding to the
// Manifold library (https://github.com/elalish/manifold). Manifold provides
// guaranteed-manifold mesh boolean operations with exact faceted output,
// where the sdfx kernel approximates surfaces by marching cubes.
//
// This package requires the Manifold C library (manifoldc) to be installed.
// Build with: go build -tags=manifold
package manifold

/*
#cgo CFLAGS: -I/usr/local/include
#cgo LDFLAGS: -L/usr/local/lib -lmanifoldc

#include <stdlib.h>
#include <manifold/manifoldc.h>
*/
import "C"

import (
	"fmt"
	"math"
	"runtime"
	"unsafe"

	"github.com/chazu/kerf/pkg/kernel"
	"github.com/chazu/kerf/pkg/model"
)

// Compile-time interface checks.
var _ kernel.Kernel = (*ManifoldKernel)(nil)
var _ kernel.Solid = (*manifoldSolid)(nil)

// manifoldSolid wraps a C ManifoldManifold pointer and implements kernel.Solid.
type manifoldSolid struct {
	ptr *C.ManifoldManifold
}

// BoundingBox returns the axis-aligned bounding box of the solid.
func (s *manifoldSolid) BoundingBox() (min, max [3]float64) {
	alloc := C.manifold_alloc_box()
	bbox := C.manifold_bounding_box(alloc, s.ptr)
	defer C.manifold_delete_box(bbox)

	min[0] = float64(C.manifold_box_min_x(bbox))
	min[1] = float64(C.manifold_box_min_y(bbox))
	min[2] = float64(C.manifold_box_min_z(bbox))
	max[0] = float64(C.manifold_box_max_x(bbox))
	max[1] = float64(C.manifold_box_max_y(bbox))
	max[2] = float64(C.manifold_box_max_z(bbox))
	return min, max
}

// newSolid wraps a C ManifoldManifold pointer with Go-side finalizer
// for automatic memory management.
func newSolid(ptr *C.ManifoldManifold) *manifoldSolid {
	s := &manifoldSolid{ptr: ptr}
	runtime.SetFinalizer(s, func(s *manifoldSolid) {
		if s.ptr != nil {
			C.manifold_delete_manifold(s.ptr)
			s.ptr = nil
		}
	})
	return s
}

func unwrap(s kernel.Solid) *C.ManifoldManifold {
	return s.(*manifoldSolid).ptr
}

// ManifoldKernel implements kernel.Kernel using the Manifold C library.
type ManifoldKernel struct {
	settings
}

// New creates a new ManifoldKernel.
func New(opts ...Option) (kernel.Kernel, error) {
	return &ManifoldKernel{settings: newSettings(opts)}, nil
}

// polygons copies loops into a Manifold polygon set owned by the caller.
func polygons(loops [][][2]float64) *C.ManifoldPolygons {
	simple := make([]*C.ManifoldSimplePolygon, len(loops))
	for i, l := range loops {
		size := C.size_t(len(l)) * C.size_t(unsafe.Sizeof(C.ManifoldVec2{}))
		pts := (*C.ManifoldVec2)(C.malloc(size))
		view := unsafe.Slice(pts, len(l))
		for j, p := range l {
			view[j] = C.ManifoldVec2{x: C.double(p[0]), y: C.double(p[1])}
		}
		simple[i] = C.manifold_simple_polygon(C.manifold_alloc_simple_polygon(), pts, C.size_t(len(l)))
		C.free(unsafe.Pointer(pts))
	}
	ps := C.manifold_polygons(C.manifold_alloc_polygons(),
		(**C.ManifoldSimplePolygon)(unsafe.Pointer(&simple[0])), C.size_t(len(simple)))
	for _, s := range simple {
		C.manifold_delete_simple_polygon(s)
	}
	return ps
}

// transform applies a, returning a new manifold.
func transform(m *C.ManifoldManifold, a affine) *C.ManifoldManifold {
	return C.manifold_transform(C.manifold_alloc_manifold(), m,
		C.double(a[0].X), C.double(a[0].Y), C.double(a[0].Z),
		C.double(a[1].X), C.double(a[1].Y), C.double(a[1].Z),
		C.double(a[2].X), C.double(a[2].Y), C.double(a[2].Z),
		C.double(a[3].X), C.double(a[3].Y), C.double(a[3].Z),
	)
}

// Extrude sweeps r along dir, which must be normal to r's workplane.
func (k *ManifoldKernel) Extrude(r kernel.Region, dir model.Vec3) (kernel.Solid, error) {
	src, err := loops(r)
	if err != nil {
		return nil, fmt.Errorf("manifold extrude: %w", err)
	}
	h, frame, err := extrusion(r, dir)
	if err != nil {
		return nil, fmt.Errorf("manifold extrude: %w", err)
	}
	ps := polygons(src)
	defer C.manifold_delete_polygons(ps)

	raw := C.manifold_extrude(C.manifold_alloc_manifold(), ps,
		C.double(math.Abs(h)), C.int(0), C.double(0), C.double(1), C.double(1))
	defer C.manifold_delete_manifold(raw)
	return newSolid(transform(raw, frame)), nil
}

// Revolve sweeps r about the axis through origin. The axis must lie in
// r's workplane with the profile on one side of it.
func (k *ManifoldKernel) Revolve(r kernel.Region, origin, axis model.Vec3, angle float64) (kernel.Solid, error) {
	src, frame, err := revolution(r, origin, axis, angle)
	if err != nil {
		return nil, fmt.Errorf("manifold revolve: %w", err)
	}
	ps := polygons(src)
	defer C.manifold_delete_polygons(ps)

	raw := C.manifold_revolve(C.manifold_alloc_manifold(), ps,
		C.int(k.segments), C.double(sweepDegrees(angle)))
	defer C.manifold_delete_manifold(raw)
	return newSolid(transform(raw, frame)), nil
}

// Union returns the boolean union of two solids.
func (k *ManifoldKernel) Union(a, b kernel.Solid) kernel.Solid {
	return newSolid(C.manifold_union(C.manifold_alloc_manifold(), unwrap(a), unwrap(b)))
}

// Difference returns the boolean difference (a minus b).
func (k *ManifoldKernel) Difference(a, b kernel.Solid) kernel.Solid {
	return newSolid(C.manifold_difference(C.manifold_alloc_manifold(), unwrap(a), unwrap(b)))
}

// Intersection returns the boolean intersection of two solids.
func (k *ManifoldKernel) Intersection(a, b kernel.Solid) kernel.Solid {
	return newSolid(C.manifold_intersection(C.manifold_alloc_manifold(), unwrap(a), unwrap(b)))
}

// Translate moves the solid by d.
func (k *ManifoldKernel) Translate(s kernel.Solid, d model.Vec3) kernel.Solid {
	ptr := C.manifold_translate(C.manifold_alloc_manifold(), unwrap(s),
		C.double(d.X), C.double(d.Y), C.double(d.Z),
	)
	return newSolid(ptr)
}

// Rotate turns a solid by angle radians about the axis through origin.
func (k *ManifoldKernel) Rotate(s kernel.Solid, origin, axis model.Vec3, angle float64) kernel.Solid {
	return newSolid(transform(unwrap(s), rotationAbout(origin, axis, angle)))
}

// Mirror reflects a solid in the plane through origin with the given
// normal.
func (k *ManifoldKernel) Mirror(s kernel.Solid, origin, normal model.Vec3) kernel.Solid {
	return newSolid(transform(unwrap(s), reflection(origin, normal)))
}

// ToMesh extracts a triangle mesh from the solid using Manifold's MeshGL
// format. Vertex positions and normals are interleaved in MeshGL; this
// method separates them into the kernel.Mesh flat-array layout.
func (k *ManifoldKernel) ToMesh(s kernel.Solid) (*kernel.Mesh, error) {
	meshGL := C.manifold_get_meshgl(C.manifold_alloc_meshgl(), unwrap(s))
	defer C.manifold_delete_meshgl(meshGL)

	numVert := int(C.manifold_meshgl_num_vert(meshGL))
	numTri := int(C.manifold_meshgl_num_tri(meshGL))
	if numVert == 0 || numTri == 0 {
		return &kernel.Mesh{}, nil
	}

	// The first 3 properties are position; normals, when present, follow.
	numProp := int(C.manifold_meshgl_num_prop(meshGL))

	propData := make([]float32, numVert*numProp)
	C.manifold_meshgl_vert_properties(
		(*C.float)(unsafe.Pointer(&propData[0])),
		meshGL,
	)

	indices := make([]uint32, numTri*3)
	C.manifold_meshgl_tri_verts(
		(*C.uint32_t)(unsafe.Pointer(&indices[0])),
		meshGL,
	)

	vertices := make([]float32, numVert*3)
	var normals []float32
	hasNormals := numProp >= 6
	if hasNormals {
		normals = make([]float32, numVert*3)
	}
	for i := 0; i < numVert; i++ {
		base := i * numProp
		copy(vertices[i*3:i*3+3], propData[base:base+3])
		if hasNormals {
			copy(normals[i*3:i*3+3], propData[base+3:base+6])
		}
	}
	if !hasNormals {
		normals = vertexNormals(vertices, indices)
	}

	mesh := &kernel.Mesh{
		Vertices: vertices,
		Normals:  normals,
		Indices:  indices,
	}
	if mesh.VertexCount() != numVert {
		return nil, fmt.Errorf("manifold: vertex count mismatch: got %d, expected %d",
			mesh.VertexCount(), numVert)
	}
	return mesh, nil
}
