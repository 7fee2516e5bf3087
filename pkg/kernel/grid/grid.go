// Package grid implements the kernel.Kernel interface with explicit,
// structured meshes. Boxes are subdivided into a fixed segment grid on
// every face and emitted as indexed meshes; extrusions are emitted as
// triangle soups with ear-clipped caps.
package grid

import (
	"errors"
	"fmt"

	"github.com/chazu/tensile/pkg/kernel"
)

// Compile-time interface check.
var _ kernel.Kernel = (*GridKernel)(nil)

// DefaultSegments is the number of segments along each edge of a box face.
// Ten segments give 11 distinct coordinates along every axis, enough
// vertices for a visible stress gradient.
const DefaultSegments = 10

// ErrDegenerate reports a solid that cannot produce any non-degenerate
// triangle.
var ErrDegenerate = errors.New("grid: degenerate solid")

// boxSolid is an axis-aligned box centred on offset.
type boxSolid struct {
	size   [3]float64
	offset [3]float64
}

func (s *boxSolid) BoundingBox() (min, max [3]float64) {
	for a := 0; a < 3; a++ {
		min[a] = s.offset[a] - s.size[a]/2
		max[a] = s.offset[a] + s.size[a]/2
	}
	return min, max
}

// extrudeSolid is a planar outline in XY extruded along +Z.
type extrudeSolid struct {
	outline [][2]float64
	depth   float64
	offset  [3]float64
}

func (s *extrudeSolid) BoundingBox() (min, max [3]float64) {
	if len(s.outline) == 0 {
		return s.offset, s.offset
	}
	min = [3]float64{s.outline[0][0], s.outline[0][1], 0}
	max = [3]float64{s.outline[0][0], s.outline[0][1], s.depth}
	for _, p := range s.outline[1:] {
		for a := 0; a < 2; a++ {
			if p[a] < min[a] {
				min[a] = p[a]
			}
			if p[a] > max[a] {
				max[a] = p[a]
			}
		}
	}
	for a := 0; a < 3; a++ {
		min[a] += s.offset[a]
		max[a] += s.offset[a]
	}
	return min, max
}

// GridKernel implements kernel.Kernel with structured meshes.
type GridKernel struct {
	segments int
}

// New returns a GridKernel using DefaultSegments.
func New() *GridKernel {
	return &GridKernel{segments: DefaultSegments}
}

// NewWithSegments returns a GridKernel with n segments per box edge.
// Values below 1 select DefaultSegments.
func NewWithSegments(n int) *GridKernel {
	if n < 1 {
		n = DefaultSegments
	}
	return &GridKernel{segments: n}
}

// Name returns "grid".
func (k *GridKernel) Name() string { return "grid" }

// Box creates a box with the given dimensions centred on the origin.
func (k *GridKernel) Box(x, y, z float64) kernel.Solid {
	return &boxSolid{size: [3]float64{x, y, z}}
}

// Extrude creates a prism from a closed outline in the XY plane.
func (k *GridKernel) Extrude(outline [][2]float64, depth float64) kernel.Solid {
	return &extrudeSolid{
		outline: append([][2]float64(nil), outline...),
		depth:   depth,
	}
}

// Translate moves a solid by (x, y, z). Solids from other kernels are
// returned unchanged.
func (k *GridKernel) Translate(s kernel.Solid, x, y, z float64) kernel.Solid {
	switch v := s.(type) {
	case *boxSolid:
		c := *v
		c.offset = [3]float64{v.offset[0] + x, v.offset[1] + y, v.offset[2] + z}
		return &c
	case *extrudeSolid:
		c := *v
		c.offset = [3]float64{v.offset[0] + x, v.offset[1] + y, v.offset[2] + z}
		return &c
	}
	return s
}

// ToMesh converts a solid to a triangle mesh.
func (k *GridKernel) ToMesh(s kernel.Solid) (*kernel.Mesh, error) {
	switch v := s.(type) {
	case *boxSolid:
		return k.boxMesh(v)
	case *extrudeSolid:
		return extrudeMesh(v)
	}
	return nil, fmt.Errorf("grid: unsupported solid %T", s)
}

// face describes one side of a box: the axis its normal runs along, the
// sign of that normal and the two in-plane axes ordered so that u x v
// points outward.
type face struct {
	w    int
	sign float64
	u, v int
}

var boxFaces = [6]face{
	{w: 0, sign: +1, u: 1, v: 2},
	{w: 0, sign: -1, u: 2, v: 1},
	{w: 1, sign: +1, u: 2, v: 0},
	{w: 1, sign: -1, u: 0, v: 2},
	{w: 2, sign: +1, u: 0, v: 1},
	{w: 2, sign: -1, u: 1, v: 0},
}

// boxMesh emits each face as a (segments+1)^2 vertex grid. Face grids do
// not share vertices, so every vertex carries its face's flat normal.
func (k *GridKernel) boxMesh(b *boxSolid) (*kernel.Mesh, error) {
	for a := 0; a < 3; a++ {
		if !(b.size[a] > 0) {
			return nil, fmt.Errorf("%w: box size %v", ErrDegenerate, b.size)
		}
	}

	n := k.segments
	perFace := (n + 1) * (n + 1)
	vertices := make([]float32, 0, 6*perFace*3)
	normals := make([]float32, 0, 6*perFace*3)
	indices := make([]uint32, 0, 6*n*n*6)

	for _, f := range boxFaces {
		base := uint32(len(vertices) / 3)
		var normal [3]float32
		normal[f.w] = float32(f.sign)

		for i := 0; i <= n; i++ {
			for j := 0; j <= n; j++ {
				var p [3]float64
				p[f.w] = f.sign * b.size[f.w] / 2
				p[f.u] = gridCoord(b.size[f.u], i, n)
				p[f.v] = gridCoord(b.size[f.v], j, n)
				vertices = append(vertices,
					float32(p[0]+b.offset[0]),
					float32(p[1]+b.offset[1]),
					float32(p[2]+b.offset[2]))
				normals = append(normals, normal[0], normal[1], normal[2])
			}
		}

		at := func(i, j int) uint32 { return base + uint32(i*(n+1)+j) }
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				a, bb, c, d := at(i, j), at(i+1, j), at(i+1, j+1), at(i, j+1)
				indices = append(indices, a, bb, c, a, c, d)
			}
		}
	}

	return &kernel.Mesh{
		Vertices: vertices,
		Normals:  normals,
		Indices:  indices,
	}, nil
}

// gridCoord returns the i-th of n+1 evenly spaced coordinates spanning a
// centred interval of the given size. Endpoints are exact so that faces
// meeting at an edge agree on its coordinates.
func gridCoord(size float64, i, n int) float64 {
	half := size / 2
	switch i {
	case 0:
		return -half
	case n:
		return half
	}
	return -half + size*float64(i)/float64(n)
}

// extrudeMesh emits the prism as a triangle soup: both caps plus two
// triangles per outline edge.
func extrudeMesh(e *extrudeSolid) (*kernel.Mesh, error) {
	if !(e.depth > 0) {
		return nil, fmt.Errorf("%w: extrusion depth %v", ErrDegenerate, e.depth)
	}
	outline := cleanOutline(e.outline)
	if len(outline) < 3 {
		return nil, fmt.Errorf("%w: outline has %d usable points", ErrDegenerate, len(outline))
	}
	if signedArea(outline) < 0 {
		reverse(outline)
	}
	caps, err := earClip(outline)
	if err != nil {
		return nil, err
	}

	m := &soupBuilder{offset: e.offset}
	for _, t := range caps {
		a, b, c := outline[t[0]], outline[t[1]], outline[t[2]]
		// Top cap faces +Z with the outline's CCW winding.
		m.add(
			[3]float64{a[0], a[1], e.depth},
			[3]float64{b[0], b[1], e.depth},
			[3]float64{c[0], c[1], e.depth})
		// Bottom cap faces -Z, so its winding is reversed.
		m.add(
			[3]float64{a[0], a[1], 0},
			[3]float64{c[0], c[1], 0},
			[3]float64{b[0], b[1], 0})
	}
	for i := range outline {
		p, q := outline[i], outline[(i+1)%len(outline)]
		a := [3]float64{p[0], p[1], 0}
		b := [3]float64{q[0], q[1], 0}
		c := [3]float64{q[0], q[1], e.depth}
		d := [3]float64{p[0], p[1], e.depth}
		m.add(a, b, c)
		m.add(a, c, d)
	}

	return &kernel.Mesh{
		Vertices: m.vertices,
		Normals:  m.normals,
	}, nil
}

// soupBuilder accumulates unshared triangles with flat normals.
type soupBuilder struct {
	offset   [3]float64
	vertices []float32
	normals  []float32
}

func (s *soupBuilder) add(a, b, c [3]float64) {
	pts := [3][3]float32{}
	for i, p := range [3][3]float64{a, b, c} {
		pts[i] = [3]float32{
			float32(p[0] + s.offset[0]),
			float32(p[1] + s.offset[1]),
			float32(p[2] + s.offset[2]),
		}
	}
	n := kernel.FaceNormal(pts[0], pts[1], pts[2])
	for _, p := range pts {
		s.vertices = append(s.vertices, p[0], p[1], p[2])
		s.normals = append(s.normals, n[0], n[1], n[2])
	}
}
