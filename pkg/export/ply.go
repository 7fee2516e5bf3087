// Package export writes coloured meshes to interchange formats.
package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/chazu/tensile/pkg/colorize"
	"github.com/chazu/tensile/pkg/kernel"
)

// ErrColorMismatch reports a colour slice that does not have one entry
// per vertex.
var ErrColorMismatch = errors.New("export: color count does not match vertex count")

// WritePLY writes m as ASCII PLY 1.0 with per-vertex 8-bit colours.
// colors may be nil for an uncoloured mesh. Soups are written with the
// implicit triangles 3i, 3i+1, 3i+2.
func WritePLY(w io.Writer, m *kernel.Mesh, colors []colorize.RGB) error {
	if m == nil {
		return fmt.Errorf("%w: nil mesh", kernel.ErrInvalidMesh)
	}
	if err := m.Validate(); err != nil {
		return err
	}
	n := m.VertexCount()
	if colors != nil && len(colors) != n {
		return fmt.Errorf("%w: %d colors for %d vertices", ErrColorMismatch, len(colors), n)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "ply")
	fmt.Fprintln(bw, "format ascii 1.0")
	if m.PartName != "" {
		fmt.Fprintf(bw, "comment part %s\n", m.PartName)
	}
	fmt.Fprintf(bw, "element vertex %d\n", n)
	fmt.Fprintln(bw, "property float x")
	fmt.Fprintln(bw, "property float y")
	fmt.Fprintln(bw, "property float z")
	if colors != nil {
		fmt.Fprintln(bw, "property uchar red")
		fmt.Fprintln(bw, "property uchar green")
		fmt.Fprintln(bw, "property uchar blue")
	}
	fmt.Fprintf(bw, "element face %d\n", m.TriangleCount())
	fmt.Fprintln(bw, "property list uchar int vertex_indices")
	fmt.Fprintln(bw, "end_header")

	for i := 0; i < n; i++ {
		v := m.Vertex(i)
		if colors == nil {
			fmt.Fprintf(bw, "%g %g %g\n", v[0], v[1], v[2])
			continue
		}
		r, g, b := colors[i].Bytes()
		fmt.Fprintf(bw, "%g %g %g %d %d %d\n", v[0], v[1], v[2], r, g, b)
	}
	for i := 0; i < m.TriangleCount(); i++ {
		t := m.Triangle(i)
		fmt.Fprintf(bw, "3 %d %d %d\n", t[0], t[1], t[2])
	}
	return bw.Flush()
}
