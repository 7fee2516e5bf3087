// Package kernel defines the abstract geometry kernel interface.
// Implementations (grid, sdfx, manifold) build solids behind this interface and
// turn them into triangle meshes. The kernel abstraction allows swapping
// meshing backends without changing the rest of the pipeline.
package kernel

// Solid is an opaque handle to a geometry kernel solid.
// Implementations wrap their internal representation.
type Solid interface {
	// BoundingBox returns the axis-aligned bounding box.
	BoundingBox() (min, max [3]float64)
}

// Kernel is the abstract geometry kernel interface.
type Kernel interface {
	// Name identifies the kernel in logs and results.
	Name() string

	// Primitives
	Box(x, y, z float64) Solid                         // centred on the origin
	Extrude(outline [][2]float64, depth float64) Solid // outline in XY, extruded along +Z

	// Transforms
	Translate(s Solid, x, y, z float64) Solid

	// Mesh output
	ToMesh(s Solid) (*Mesh, error)
}
