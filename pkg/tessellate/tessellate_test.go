package tessellate_test

import (
	"errors"
	"math"
	"testing"

	"github.com/chazu/tensile/pkg/kernel"
	"github.com/chazu/tensile/pkg/kernel/grid"
	"github.com/chazu/tensile/pkg/kernel/sdfx"
	"github.com/chazu/tensile/pkg/prompt"
	"github.com/chazu/tensile/pkg/tessellate"
)

// newKernel returns a fresh grid kernel for testing.
func newKernel() kernel.Kernel {
	return grid.New()
}

func distinct(m *kernel.Mesh, axis int) int {
	seen := make(map[float32]bool)
	for i := 0; i < m.VertexCount(); i++ {
		seen[m.Vertex(i)[axis]] = true
	}
	return len(seen)
}

func TestLongBeam(t *testing.T) {
	spec := prompt.Parse("a long, thin beam")
	m := tessellate.Generate(spec, newKernel())

	if m.PartName != "beam" {
		t.Errorf("expected PartName %q, got %q", "beam", m.PartName)
	}
	if !m.Indexed() {
		t.Fatal("beam mesh should be indexed")
	}
	for axis := 0; axis < 3; axis++ {
		if got := distinct(m, axis); got != 11 {
			t.Errorf("axis %d: %d grid coordinates, want 11", axis, got)
		}
	}
	min, max := m.Bounds()
	if min != [3]float32{-10, -1, -1} || max != [3]float32{10, 1, 1} {
		t.Errorf("bounds = %v %v, want ±(10,1,1)", min, max)
	}
}

func TestTallLBracket(t *testing.T) {
	spec := prompt.Parse("a tall l-bracket")
	m := tessellate.Generate(spec, newKernel())

	if m.PartName != "l-bracket" {
		t.Errorf("expected PartName %q, got %q", "l-bracket", m.PartName)
	}
	if m.Indexed() {
		t.Fatal("l-bracket should be a triangle soup")
	}
	if err := m.Validate(); err != nil {
		t.Fatalf("invalid mesh: %v", err)
	}
	for i := 0; i < m.TriangleCount(); i++ {
		if m.TriangleArea(i) <= 0 {
			t.Fatalf("triangle %d has zero area", i)
		}
	}
	// length 10, height 4, width 2, centred.
	min, max := m.Bounds()
	if min != [3]float32{-5, -2, -1} || max != [3]float32{5, 2, 1} {
		t.Errorf("bounds = %v %v", min, max)
	}
}

func TestLOutlineClampsThickness(t *testing.T) {
	tests := []struct {
		name      string
		l, h, th  float64
		wantThick float64
	}{
		{"default", 10, 10, 2, 2},
		{"thick against height", 10, 2, 2, 1},
		{"thick against length", 2, 10, 5, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := tessellate.LOutline(tt.l, tt.h, tt.th)
			if len(o) != 6 {
				t.Fatalf("expected 6 points, got %d", len(o))
			}
			if o[2][1] != tt.wantThick || o[3][0] != tt.wantThick {
				t.Errorf("thickness = %v/%v, want %v", o[2][1], o[3][0], tt.wantThick)
			}
		})
	}
}

func TestThickBracketStillBuilds(t *testing.T) {
	spec := prompt.ShapeSpec{
		Archetype: prompt.LBracket,
		Dimensions: prompt.Dimensions{
			prompt.ParamLength:    10,
			prompt.ParamWidth:     2,
			prompt.ParamHeight:    1,
			prompt.ParamThickness: 2,
		},
	}
	m, err := tessellate.Build(spec, newKernel())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if m.TriangleCount() == 0 {
		t.Fatal("expected triangles")
	}
}

func TestResolve(t *testing.T) {
	got := tessellate.Resolve(prompt.ShapeSpec{Archetype: prompt.Archetype(42)})
	if got.Archetype != prompt.Beam {
		t.Errorf("unknown archetype resolved to %s", got.Archetype)
	}
	if got.Dimensions.Length() != 10 {
		t.Errorf("length = %v, want 10", got.Dimensions.Length())
	}

	got = tessellate.Resolve(prompt.ShapeSpec{
		Archetype: prompt.LBracket,
		Dimensions: prompt.Dimensions{
			prompt.ParamLength: -3,
			prompt.ParamHeight: math.Inf(1),
			prompt.ParamWidth:  7,
		},
	})
	if got.Dimensions.Length() != 10 || got.Dimensions.Height() != 10 {
		t.Errorf("invalid values not replaced: %s", got.Dimensions)
	}
	if got.Dimensions.Width() != 7 {
		t.Errorf("width = %v, want 7", got.Dimensions.Width())
	}
	if !got.Valid() {
		t.Errorf("resolved spec %s is not valid", got)
	}
}

func TestResolveClampsBracketThickness(t *testing.T) {
	tests := []struct {
		name string
		dims prompt.Dimensions
		want float64
	}{
		{"default", prompt.Dimensions{}, 2},
		{"flat", prompt.Dimensions{prompt.ParamHeight: 1}, 0.5},
		{"short", prompt.Dimensions{prompt.ParamLength: 3}, 1.5},
		{"thin", prompt.Dimensions{prompt.ParamThickness: 0.25}, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tessellate.Resolve(prompt.ShapeSpec{Archetype: prompt.LBracket, Dimensions: tt.dims})
			if th := got.Dimensions.Thickness(); th != tt.want {
				t.Errorf("thickness = %v, want %v", th, tt.want)
			}
			d := got.Dimensions
			o := tessellate.LOutline(d.Length(), d.Height(), d.Thickness())
			if o[2][1] != d.Thickness() {
				t.Errorf("outline thickness %v differs from resolved %v", o[2][1], d.Thickness())
			}
		})
	}

	beam := tessellate.Resolve(prompt.ShapeSpec{Archetype: prompt.Beam, Dimensions: prompt.Dimensions{prompt.ParamHeight: 1}})
	if _, ok := beam.Dimensions.Get(prompt.ParamThickness); ok {
		t.Errorf("beam gained a thickness: %s", beam.Dimensions)
	}
}

func TestUnknownArchetypeDegradesToBeam(t *testing.T) {
	m := tessellate.Generate(prompt.ShapeSpec{Archetype: prompt.Archetype(99)}, newKernel())
	if m.PartName != "beam" {
		t.Errorf("expected beam, got %q", m.PartName)
	}
	if m.VertexCount() != 726 {
		t.Errorf("vertex count = %d, want 726", m.VertexCount())
	}
}

// failingKernel refuses to mesh anything.
type failingKernel struct{ kernel.Kernel }

var errBroken = errors.New("broken kernel")

func (failingKernel) Name() string { return "failing" }

func (failingKernel) ToMesh(kernel.Solid) (*kernel.Mesh, error) { return nil, errBroken }

// emptyKernel meshes everything to nothing.
type emptyKernel struct{ kernel.Kernel }

func (emptyKernel) Name() string { return "empty" }

func (emptyKernel) ToMesh(kernel.Solid) (*kernel.Mesh, error) { return &kernel.Mesh{}, nil }

func TestKernelFailureFallsBack(t *testing.T) {
	tests := []struct {
		name string
		k    kernel.Kernel
	}{
		{"error", failingKernel{grid.New()}},
		{"empty", emptyKernel{grid.New()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := prompt.Parse("a tall l-bracket")
			if _, err := tessellate.Build(spec, tt.k); err == nil {
				t.Fatal("Build should report the kernel failure")
			}
			m := tessellate.Generate(spec, tt.k)
			if m.IsEmpty() {
				t.Fatal("Generate must never return an empty mesh")
			}
			if m.PartName != "beam" {
				t.Errorf("fallback PartName = %q, want beam", m.PartName)
			}
		})
	}

	_, err := tessellate.Build(prompt.Parse("beam"), failingKernel{grid.New()})
	if !errors.Is(err, errBroken) {
		t.Errorf("expected wrapped kernel error, got %v", err)
	}
}

func TestSdfxKernel(t *testing.T) {
	k := sdfx.NewWithCells(16)
	for _, text := range []string{"a beam", "a tall l-bracket"} {
		m, err := tessellate.Build(prompt.Parse(text), k)
		if err != nil {
			t.Fatalf("%q: Build failed: %v", text, err)
		}
		if m.Indexed() {
			t.Errorf("%q: sdfx meshes should be soups", text)
		}
		if m.TriangleCount() == 0 {
			t.Errorf("%q: no triangles", text)
		}
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	spec := prompt.Parse("a short wide beam")
	a := tessellate.Generate(spec, newKernel())
	b := tessellate.Generate(spec, newKernel())
	if len(a.Vertices) != len(b.Vertices) {
		t.Fatalf("vertex buffers differ in length")
	}
	for i := range a.Vertices {
		if a.Vertices[i] != b.Vertices[i] {
			t.Fatalf("vertex %d differs: %v vs %v", i/3, a.Vertices[i], b.Vertices[i])
		}
	}
}
