package graph

import (
	"errors"
	"fmt"

	"github.com/chazu/tensile/pkg/kernel"
)

// FeatureDim is the width of a node feature vector: raw x, y, z.
const FeatureDim = 3

// ErrInvalidGraph reports a malformed mesh or graph.
var ErrInvalidGraph = errors.New("graph: invalid graph")

// Graph is a node feature matrix plus a directed edge list in COO form.
// It is immutable once built.
type Graph struct {
	// Features is node-major, Dim values per node.
	Features []float32
	// Dim is the feature width. FromMesh always sets FeatureDim.
	Dim int
	// EdgeIndex holds every "from" index followed by every "to" index,
	// a 2 x E matrix in row-major order.
	EdgeIndex []int64
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	if g.Dim <= 0 {
		return 0
	}
	return len(g.Features) / g.Dim
}

// EdgeCount returns the number of edges, duplicates included.
func (g *Graph) EdgeCount() int {
	return len(g.EdgeIndex) / 2
}

// Edge returns the endpoints of edge i.
func (g *Graph) Edge(i int) (from, to int64) {
	e := g.EdgeCount()
	return g.EdgeIndex[i], g.EdgeIndex[e+i]
}

// Node returns the feature vector of node i. The slice aliases the
// graph's storage and must not be modified.
func (g *Graph) Node(i int) []float32 {
	return g.Features[i*g.Dim : (i+1)*g.Dim]
}

// X returns the x coordinate of node i.
func (g *Graph) X(i int) float32 {
	return g.Features[i*g.Dim]
}

// Rows returns the features as one slice per node, the nested form used
// by JSON model protocols.
func (g *Graph) Rows() [][]float32 {
	n := g.NodeCount()
	out := make([][]float32, n)
	for i := range out {
		out[i] = append([]float32(nil), g.Node(i)...)
	}
	return out
}

// EdgeRows returns the edge index as its two rows.
func (g *Graph) EdgeRows() [2][]int64 {
	e := g.EdgeCount()
	return [2][]int64{
		append([]int64(nil), g.EdgeIndex[:e]...),
		append([]int64(nil), g.EdgeIndex[e:]...),
	}
}

// FromMesh builds the graph of m. Indexed meshes use their face indices;
// soups group vertices into consecutive triples. A mesh with F triangles
// yields exactly 3F edges.
func FromMesh(m *kernel.Mesh) (*Graph, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil mesh", ErrInvalidGraph)
	}
	if len(m.Vertices)%FeatureDim != 0 {
		return nil, fmt.Errorf("%w: vertex buffer length %d is not a multiple of %d", ErrInvalidGraph, len(m.Vertices), FeatureDim)
	}
	n := m.VertexCount()

	var tris int
	if m.Indexed() {
		if len(m.Indices)%3 != 0 {
			return nil, fmt.Errorf("%w: index buffer length %d is not a multiple of 3", ErrInvalidGraph, len(m.Indices))
		}
		for i, idx := range m.Indices {
			if int(idx) >= n {
				return nil, fmt.Errorf("%w: face index %d at position %d out of range (%d vertices)", ErrInvalidGraph, idx, i, n)
			}
		}
		tris = len(m.Indices) / 3
	} else {
		if n%3 != 0 {
			return nil, fmt.Errorf("%w: soup vertex count %d is not a multiple of 3", ErrInvalidGraph, n)
		}
		tris = n / 3
	}

	e := 3 * tris
	edges := make([]int64, 2*e)
	from, to := edges[:e], edges[e:]
	for t := 0; t < tris; t++ {
		var a, b, c int64
		if m.Indexed() {
			a, b, c = int64(m.Indices[3*t]), int64(m.Indices[3*t+1]), int64(m.Indices[3*t+2])
		} else {
			a, b, c = int64(3*t), int64(3*t+1), int64(3*t+2)
		}
		from[3*t], to[3*t] = a, b
		from[3*t+1], to[3*t+1] = b, c
		from[3*t+2], to[3*t+2] = c, a
	}

	return &Graph{
		Features:  append([]float32(nil), m.Vertices...),
		Dim:       FeatureDim,
		EdgeIndex: edges,
	}, nil
}
