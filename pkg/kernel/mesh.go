package kernel

import (
	"errors"
	"fmt"
)

// ErrInvalidMesh reports a mesh whose buffers are inconsistent.
var ErrInvalidMesh = errors.New("kernel: invalid mesh")

// Mesh is a triangle mesh suitable for rendering.
// All arrays are flat: vertices has 3 floats per vertex (x,y,z),
// normals has 3 floats per vertex, indices has 3 uint32s per triangle.
//
// Indices may be nil, in which case the mesh is a triangle soup: every
// consecutive run of 3 vertices forms one triangle.
//
// A Mesh is owned by the pipeline run that created it and is never
// mutated after construction; consumers derive copies.
type Mesh struct {
	Vertices []float32 `json:"vertices"`          // [x0,y0,z0, x1,y1,z1, ...]
	Normals  []float32 `json:"normals,omitempty"` // [nx0,ny0,nz0, ...]
	Indices  []uint32  `json:"indices,omitempty"` // [i0,i1,i2, ...] triangles, nil for soups
	PartName string    `json:"partName"`          // archetype or part this came from
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	return len(m.Vertices) / 3
}

// Indexed reports whether the mesh carries explicit face indices.
func (m *Mesh) Indexed() bool {
	return m.Indices != nil
}

// TriangleCount returns the number of triangles.
func (m *Mesh) TriangleCount() int {
	if m.Indexed() {
		return len(m.Indices) / 3
	}
	return m.VertexCount() / 3
}

// Triangle returns the vertex indices of triangle i. For soups these are
// the sequential indices 3i, 3i+1, 3i+2.
func (m *Mesh) Triangle(i int) [3]uint32 {
	if m.Indexed() {
		return [3]uint32{m.Indices[3*i], m.Indices[3*i+1], m.Indices[3*i+2]}
	}
	b := uint32(3 * i)
	return [3]uint32{b, b + 1, b + 2}
}

// Vertex returns the position of vertex i.
func (m *Mesh) Vertex(i int) [3]float32 {
	return [3]float32{m.Vertices[3*i], m.Vertices[3*i+1], m.Vertices[3*i+2]}
}

// IsEmpty returns true if the mesh has no geometry.
func (m *Mesh) IsEmpty() bool {
	return len(m.Vertices) == 0
}

// Validate checks buffer shapes and that every face index is in range.
func (m *Mesh) Validate() error {
	if len(m.Vertices)%3 != 0 {
		return fmt.Errorf("%w: vertex buffer length %d is not a multiple of 3", ErrInvalidMesh, len(m.Vertices))
	}
	if m.Normals != nil && len(m.Normals) != len(m.Vertices) {
		return fmt.Errorf("%w: normals length %d != vertices length %d", ErrInvalidMesh, len(m.Normals), len(m.Vertices))
	}
	n := m.VertexCount()
	if !m.Indexed() {
		if n%3 != 0 {
			return fmt.Errorf("%w: soup vertex count %d is not a multiple of 3", ErrInvalidMesh, n)
		}
		return nil
	}
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("%w: index buffer length %d is not a multiple of 3", ErrInvalidMesh, len(m.Indices))
	}
	for i, idx := range m.Indices {
		if int(idx) >= n {
			return fmt.Errorf("%w: index %d at position %d out of range (%d vertices)", ErrInvalidMesh, idx, i, n)
		}
	}
	return nil
}

// Bounds returns the axis-aligned bounding box of the vertices.
// An empty mesh returns zero vectors.
func (m *Mesh) Bounds() (min, max [3]float32) {
	if m.IsEmpty() {
		return min, max
	}
	min = m.Vertex(0)
	max = min
	for i := 1; i < m.VertexCount(); i++ {
		v := m.Vertex(i)
		for a := 0; a < 3; a++ {
			if v[a] < min[a] {
				min[a] = v[a]
			}
			if v[a] > max[a] {
				max[a] = v[a]
			}
		}
	}
	return min, max
}

// TriangleArea returns the area of triangle i.
func (m *Mesh) TriangleArea(i int) float64 {
	t := m.Triangle(i)
	return TriangleArea(m.Vertex(int(t[0])), m.Vertex(int(t[1])), m.Vertex(int(t[2])))
}

// TriangleArea returns the area of the triangle (a, b, c).
func TriangleArea(a, b, c [3]float32) float64 {
	n := cross(sub(b, a), sub(c, a))
	return 0.5 * length(n)
}

// FaceNormal returns the unit normal of (a, b, c) by the right-hand rule,
// or the zero vector for a degenerate triangle.
func FaceNormal(a, b, c [3]float32) [3]float32 {
	n := cross(sub(b, a), sub(c, a))
	l := length(n)
	if l == 0 {
		return [3]float32{}
	}
	return [3]float32{float32(float64(n[0]) / l), float32(float64(n[1]) / l), float32(float64(n[2]) / l)}
}
