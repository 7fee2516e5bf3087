package manifold

import (
	"math"

	"github.com/chazu/tensile/pkg/kernel"
)

// vertexNormals averages the area-weighted normals of the faces around
// each vertex of an indexed mesh.
func vertexNormals(m *kernel.Mesh) []float32 {
	acc := make([]float64, len(m.Vertices))
	for t := 0; t < m.TriangleCount(); t++ {
		tri := m.Triangle(t)
		a, b, c := m.Vertex(int(tri[0])), m.Vertex(int(tri[1])), m.Vertex(int(tri[2]))
		n := kernel.FaceNormal(a, b, c)
		area := kernel.TriangleArea(a, b, c)
		for _, v := range tri {
			for axis := 0; axis < 3; axis++ {
				acc[int(v)*3+axis] += float64(n[axis]) * area
			}
		}
	}

	out := make([]float32, len(acc))
	for i := 0; i < len(acc); i += 3 {
		l := math.Sqrt(acc[i]*acc[i] + acc[i+1]*acc[i+1] + acc[i+2]*acc[i+2])
		if l < 1e-12 {
			continue
		}
		out[i], out[i+1], out[i+2] = float32(acc[i]/l), float32(acc[i+1]/l), float32(acc[i+2]/l)
	}
	return out
}
