//go:build manifold

// Package manifold binds the Manifold C library
// (https://github.com/elalish/manifold) as a geometry kernel. Meshes come
// back indexed and guaranteed manifold.
//
// This package requires manifoldc to be installed.
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
	"runtime"
	"unsafe"

	"github.com/chazu/tensile/pkg/kernel"
)

var _ kernel.Kernel = (*ManifoldKernel)(nil)
var _ kernel.Solid = (*manifoldSolid)(nil)

// manifoldSolid owns a C ManifoldManifold pointer.
type manifoldSolid struct {
	ptr *C.ManifoldManifold
}

func (s *manifoldSolid) BoundingBox() (min, max [3]float64) {
	bbox := C.manifold_bounding_box(C.manifold_alloc_box(), s.ptr)
	defer C.manifold_delete_box(bbox)

	min = [3]float64{
		float64(C.manifold_box_min_x(bbox)),
		float64(C.manifold_box_min_y(bbox)),
		float64(C.manifold_box_min_z(bbox)),
	}
	max = [3]float64{
		float64(C.manifold_box_max_x(bbox)),
		float64(C.manifold_box_max_y(bbox)),
		float64(C.manifold_box_max_z(bbox)),
	}
	return min, max
}

// newSolid frees ptr when the solid is collected.
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

// ManifoldKernel implements kernel.Kernel with the Manifold C library.
type ManifoldKernel struct{}

func New() (kernel.Kernel, error) {
	return &ManifoldKernel{}, nil
}

func (k *ManifoldKernel) Name() string { return "manifold" }

// Box creates a box centred on the origin.
func (k *ManifoldKernel) Box(x, y, z float64) kernel.Solid {
	ptr := C.manifold_cube(C.manifold_alloc_manifold(),
		C.double(x), C.double(y), C.double(z),
		C.int(1), // center
	)
	return newSolid(ptr)
}

// Extrude sweeps a simple polygon in the XY plane along +Z.
func (k *ManifoldKernel) Extrude(outline [][2]float64, depth float64) kernel.Solid {
	n := len(outline)
	if n < 3 {
		return newSolid(C.manifold_empty(C.manifold_alloc_manifold()))
	}

	pts := (*[1 << 28]C.ManifoldVec2)(C.malloc(C.size_t(n) * C.size_t(unsafe.Sizeof(C.ManifoldVec2{}))))[:n:n]
	defer C.free(unsafe.Pointer(&pts[0]))
	for i, p := range outline {
		pts[i] = C.ManifoldVec2{x: C.double(p[0]), y: C.double(p[1])}
	}

	simple := C.manifold_simple_polygon(C.manifold_alloc_simple_polygon(), &pts[0], C.size_t(n))
	defer C.manifold_delete_simple_polygon(simple)

	polys := C.manifold_polygons(C.manifold_alloc_polygons(), &simple, 1)
	defer C.manifold_delete_polygons(polys)

	ptr := C.manifold_extrude(C.manifold_alloc_manifold(), polys,
		C.double(depth),
		C.int(0),    // slices
		C.double(0), // twist
		C.double(1), // top scale x
		C.double(1), // top scale y
	)
	return newSolid(ptr)
}

func (k *ManifoldKernel) Translate(s kernel.Solid, x, y, z float64) kernel.Solid {
	ms, ok := s.(*manifoldSolid)
	if !ok {
		return s
	}
	ptr := C.manifold_translate(C.manifold_alloc_manifold(), ms.ptr,
		C.double(x), C.double(y), C.double(z),
	)
	return newSolid(ptr)
}

// ToMesh reads the solid's MeshGL. Positions are the first three vertex
// properties; normals follow when present, otherwise they are averaged
// from the incident faces.
func (k *ManifoldKernel) ToMesh(s kernel.Solid) (*kernel.Mesh, error) {
	ms, ok := s.(*manifoldSolid)
	if !ok {
		return nil, fmt.Errorf("manifold: unsupported solid %T", s)
	}

	meshGL := C.manifold_get_meshgl(C.manifold_alloc_meshgl(), ms.ptr)
	defer C.manifold_delete_meshgl(meshGL)

	numVert := int(C.manifold_meshgl_num_vert(meshGL))
	numTri := int(C.manifold_meshgl_num_tri(meshGL))
	if numVert == 0 || numTri == 0 {
		return nil, fmt.Errorf("manifold: solid has no geometry")
	}
	numProp := int(C.manifold_meshgl_num_prop(meshGL))

	props := make([]float32, numVert*numProp)
	C.manifold_meshgl_vert_properties((*C.float)(unsafe.Pointer(&props[0])), meshGL)

	indices := make([]uint32, numTri*3)
	C.manifold_meshgl_tri_verts((*C.uint32_t)(unsafe.Pointer(&indices[0])), meshGL)

	vertices := make([]float32, numVert*3)
	var normals []float32
	if numProp >= 6 {
		normals = make([]float32, numVert*3)
	}
	for i := 0; i < numVert; i++ {
		base := i * numProp
		copy(vertices[i*3:i*3+3], props[base:base+3])
		if normals != nil {
			copy(normals[i*3:i*3+3], props[base+3:base+6])
		}
	}

	mesh := &kernel.Mesh{Vertices: vertices, Normals: normals, Indices: indices}
	if normals == nil {
		mesh.Normals = vertexNormals(mesh)
	}
	return mesh, mesh.Validate()
}
