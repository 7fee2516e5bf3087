// Package sdfx implements the kernel.Kernel interface using the
// github.com/deadsy/sdfx SDF-based CAD library. Meshes come out of
// marching cubes as triangle soups.
package sdfx

import (
	"errors"
	"fmt"

	"github.com/chazu/tensile/pkg/kernel"
	"github.com/deadsy/sdfx/render"
	"github.com/deadsy/sdfx/sdf"
	v2 "github.com/deadsy/sdfx/vec/v2"
	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Compile-time interface check.
var _ kernel.Kernel = (*SdfxKernel)(nil)

// DefaultMeshCells controls marching cubes tessellation resolution along
// the longest axis. It is kept low: every soup vertex becomes a graph node.
const DefaultMeshCells = 40

// minTriangleArea filters the slivers marching cubes produces near edges.
const minTriangleArea = 1e-9

// ErrEmptyMesh reports a solid that tessellated to nothing.
var ErrEmptyMesh = errors.New("sdfx: empty mesh")

// sdfxSolid wraps an sdf.SDF3 to implement kernel.Solid. Construction
// errors are carried along and surface from ToMesh.
type sdfxSolid struct {
	s   sdf.SDF3
	err error
}

// BoundingBox returns the axis-aligned bounding box.
func (s *sdfxSolid) BoundingBox() (min, max [3]float64) {
	if s.err != nil || s.s == nil {
		return min, max
	}
	bb := s.s.BoundingBox()
	min = [3]float64{bb.Min.X, bb.Min.Y, bb.Min.Z}
	max = [3]float64{bb.Max.X, bb.Max.Y, bb.Max.Z}
	return min, max
}

// SdfxKernel implements kernel.Kernel using sdfx.
type SdfxKernel struct {
	cells int
}

// New returns a new SdfxKernel using DefaultMeshCells.
func New() *SdfxKernel {
	return &SdfxKernel{cells: DefaultMeshCells}
}

// NewWithCells returns a kernel tessellating with the given number of
// marching cubes cells. Values below 4 select DefaultMeshCells.
func NewWithCells(cells int) *SdfxKernel {
	if cells < 4 {
		cells = DefaultMeshCells
	}
	return &SdfxKernel{cells: cells}
}

// Name returns "sdfx".
func (k *SdfxKernel) Name() string { return "sdfx" }

// unwrap extracts the underlying solid from a kernel.Solid.
func unwrap(s kernel.Solid) (*sdfxSolid, error) {
	v, ok := s.(*sdfxSolid)
	if !ok {
		return nil, fmt.Errorf("sdfx: unsupported solid %T", s)
	}
	return v, v.err
}

// wrap creates a kernel.Solid from an sdf.SDF3.
func wrap(s sdf.SDF3, err error) kernel.Solid {
	return &sdfxSolid{s: s, err: err}
}

// Box creates a box with the given dimensions centred on the origin.
func (k *SdfxKernel) Box(x, y, z float64) kernel.Solid {
	s, err := sdf.Box3D(v3.Vec{X: x, Y: y, Z: z}, 0)
	if err != nil {
		return wrap(nil, fmt.Errorf("sdfx.Box3D: %w", err))
	}
	return wrap(s, nil)
}

// Extrude creates a prism from a closed outline in the XY plane, spanning
// z = 0 to z = depth. sdf.Extrude3D centres on z = 0, so we shift by half
// the depth.
func (k *SdfxKernel) Extrude(outline [][2]float64, depth float64) kernel.Solid {
	if !(depth > 0) {
		return wrap(nil, fmt.Errorf("sdfx: extrusion depth %v must be positive", depth))
	}
	pts := make([]v2.Vec, len(outline))
	for i, p := range outline {
		pts[i] = v2.Vec{X: p[0], Y: p[1]}
	}
	poly, err := sdf.Polygon2D(pts)
	if err != nil {
		return wrap(nil, fmt.Errorf("sdfx.Polygon2D: %w", err))
	}
	s := sdf.Extrude3D(poly, depth)
	m := sdf.Translate3d(v3.Vec{X: 0, Y: 0, Z: depth / 2})
	return wrap(sdf.Transform3D(s, m), nil)
}

// Translate moves a solid by (x, y, z).
func (k *SdfxKernel) Translate(s kernel.Solid, x, y, z float64) kernel.Solid {
	v, err := unwrap(s)
	if err != nil {
		return wrap(nil, err)
	}
	m := sdf.Translate3d(v3.Vec{X: x, Y: y, Z: z})
	return wrap(sdf.Transform3D(v.s, m), nil)
}

// ToMesh converts a solid to a triangle soup using marching cubes.
func (k *SdfxKernel) ToMesh(s kernel.Solid) (*kernel.Mesh, error) {
	v, err := unwrap(s)
	if err != nil {
		return nil, err
	}

	renderer := render.NewMarchingCubesUniform(k.cells)
	triangles := render.ToTriangles(v.s, renderer)

	vertices := make([]float32, 0, len(triangles)*9)
	normals := make([]float32, 0, len(triangles)*9)

	for _, tri := range triangles {
		var pts [3][3]float32
		for j := 0; j < 3; j++ {
			p := tri[j]
			pts[j] = [3]float32{float32(p.X), float32(p.Y), float32(p.Z)}
		}
		if kernel.TriangleArea(pts[0], pts[1], pts[2]) < minTriangleArea {
			continue
		}
		n := kernel.FaceNormal(pts[0], pts[1], pts[2])
		for _, p := range pts {
			vertices = append(vertices, p[0], p[1], p[2])
			normals = append(normals, n[0], n[1], n[2])
		}
	}

	if len(vertices) == 0 {
		return nil, ErrEmptyMesh
	}

	return &kernel.Mesh{
		Vertices: vertices,
		Normals:  normals,
	}, nil
}
