// Package tessellate turns a ShapeSpec into a triangle mesh using a
// geometry kernel. Both archetypes are placed with their bounding box
// centred on the origin, so the fixed end of a cantilever sits at
// x = -length/2.
package tessellate

import (
	"fmt"
	"math"

	"github.com/chazu/tensile/pkg/kernel"
	"github.com/chazu/tensile/pkg/kernel/grid"
	"github.com/chazu/tensile/pkg/prompt"
)

// Resolve returns a copy of spec that the generator can always build:
// unknown archetypes become a default Beam, missing or non-positive
// dimensions take the archetype's defaults, and an L-bracket's thickness
// is clamped to the value LOutline will use.
func Resolve(spec prompt.ShapeSpec) prompt.ShapeSpec {
	if !spec.Archetype.Known() {
		return prompt.ShapeSpec{
			Archetype:  prompt.Beam,
			Dimensions: prompt.DefaultDimensions(prompt.Beam),
		}
	}
	dims := prompt.DefaultDimensions(spec.Archetype)
	for p, v := range spec.Dimensions {
		if _, used := dims[p]; used && v > 0 && !math.IsInf(v, 0) {
			dims[p] = v
		}
	}
	if spec.Archetype == prompt.LBracket {
		dims[prompt.ParamThickness] = clampThickness(dims.Length(), dims.Height(), dims.Thickness())
	}
	return prompt.ShapeSpec{Archetype: spec.Archetype, Dimensions: dims}
}

func clampThickness(l, h, t float64) float64 {
	return math.Min(t, math.Min(l/2, h/2))
}

// Build constructs the mesh for spec with k. The spec is resolved first,
// so only kernel failures are reported.
func Build(spec prompt.ShapeSpec, k kernel.Kernel) (*kernel.Mesh, error) {
	spec = Resolve(spec)

	var solid kernel.Solid
	switch spec.Archetype {
	case prompt.LBracket:
		solid = lBracket(k, spec.Dimensions)
	default:
		d := spec.Dimensions
		solid = k.Box(d.Length(), d.Width(), d.Height())
	}

	mesh, err := k.ToMesh(solid)
	if err != nil {
		return nil, fmt.Errorf("tessellate: %s kernel failed for %s: %w", k.Name(), spec.Archetype, err)
	}
	if mesh.IsEmpty() {
		return nil, fmt.Errorf("tessellate: %s kernel produced an empty mesh for %s", k.Name(), spec.Archetype)
	}
	if err := mesh.Validate(); err != nil {
		return nil, fmt.Errorf("tessellate: %s kernel: %w", k.Name(), err)
	}
	mesh.PartName = spec.Archetype.String()
	return mesh, nil
}

// Generate is Build that never fails. Any kernel error degrades to
// Fallback.
func Generate(spec prompt.ShapeSpec, k kernel.Kernel) *kernel.Mesh {
	mesh, err := Build(spec, k)
	if err != nil {
		return Fallback()
	}
	return mesh
}

// Fallback returns the grid kernel's default Beam.
func Fallback() *kernel.Mesh {
	spec := prompt.ShapeSpec{Archetype: prompt.Beam, Dimensions: prompt.DefaultDimensions(prompt.Beam)}
	mesh, err := Build(spec, grid.New())
	if err != nil {
		// The grid kernel cannot fail on positive box dimensions.
		panic(fmt.Sprintf("tessellate: default beam: %v", err))
	}
	return mesh
}

// LOutline returns the six-point L profile in the XY plane: a foot of
// length l along X and an upright of height h along Y, both t thick.
// The thickness is clamped so the outline never collapses.
func LOutline(l, h, t float64) [][2]float64 {
	t = clampThickness(l, h, t)
	return [][2]float64{
		{0, 0},
		{l, 0},
		{l, t},
		{t, t},
		{t, h},
		{0, h},
	}
}

// lBracket extrudes the L profile by the width and centres its bounding box.
func lBracket(k kernel.Kernel, d prompt.Dimensions) kernel.Solid {
	l, h, w := d.Length(), d.Height(), d.Width()
	solid := k.Extrude(LOutline(l, h, d.Thickness()), w)
	return k.Translate(solid, -l/2, -h/2, -w/2)
}
