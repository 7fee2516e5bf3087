package kernel

import (
	"errors"
	"math"
	"testing"
)

// --- Mesh helper method tests ---

func TestMeshVertexCount(t *testing.T) {
	tests := []struct {
		name     string
		vertices []float32
		want     int
	}{
		{"empty", nil, 0},
		{"one vertex", []float32{1, 2, 3}, 1},
		{"four vertices", []float32{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0}, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Mesh{Vertices: tt.vertices}
			if got := m.VertexCount(); got != tt.want {
				t.Errorf("VertexCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMeshTriangleCount(t *testing.T) {
	tests := []struct {
		name     string
		vertices []float32
		indices  []uint32
		want     int
	}{
		{"empty", nil, nil, 0},
		{"one indexed triangle", make([]float32, 9), []uint32{0, 1, 2}, 1},
		{"two indexed triangles", make([]float32, 12), []uint32{0, 1, 2, 2, 3, 0}, 2},
		{"soup of two", make([]float32, 18), nil, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &Mesh{Vertices: tt.vertices, Indices: tt.indices}
			if got := m.TriangleCount(); got != tt.want {
				t.Errorf("TriangleCount() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMeshTriangle(t *testing.T) {
	indexed := &Mesh{Vertices: make([]float32, 12), Indices: []uint32{0, 1, 2, 2, 3, 0}}
	if got := indexed.Triangle(1); got != [3]uint32{2, 3, 0} {
		t.Errorf("indexed Triangle(1) = %v", got)
	}
	soup := &Mesh{Vertices: make([]float32, 18)}
	if got := soup.Triangle(1); got != [3]uint32{3, 4, 5} {
		t.Errorf("soup Triangle(1) = %v", got)
	}
}

func TestMeshIsEmpty(t *testing.T) {
	t.Run("empty mesh", func(t *testing.T) {
		m := &Mesh{}
		if !m.IsEmpty() {
			t.Error("IsEmpty() = false for empty mesh, want true")
		}
	})
	t.Run("non-empty mesh", func(t *testing.T) {
		m := &Mesh{Vertices: []float32{1, 2, 3}}
		if m.IsEmpty() {
			t.Error("IsEmpty() = true for non-empty mesh, want false")
		}
	})
}

func TestMeshValidate(t *testing.T) {
	tests := []struct {
		name    string
		mesh    Mesh
		wantErr bool
	}{
		{"valid indexed", Mesh{Vertices: make([]float32, 9), Indices: []uint32{0, 1, 2}}, false},
		{"valid soup", Mesh{Vertices: make([]float32, 9)}, false},
		{"ragged vertices", Mesh{Vertices: make([]float32, 8)}, true},
		{"ragged soup", Mesh{Vertices: make([]float32, 12)}, true},
		{"ragged indices", Mesh{Vertices: make([]float32, 9), Indices: []uint32{0, 1}}, true},
		{"index out of range", Mesh{Vertices: make([]float32, 9), Indices: []uint32{0, 1, 3}}, true},
		{"normals mismatch", Mesh{Vertices: make([]float32, 9), Normals: make([]float32, 3)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.mesh.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidMesh) {
					t.Fatalf("Validate() = %v, want ErrInvalidMesh", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() = %v", err)
			}
		})
	}
}

func TestMeshBounds(t *testing.T) {
	m := &Mesh{Vertices: []float32{-1, 2, 3, 4, -5, 6, 0, 0, -7}}
	min, max := m.Bounds()
	if min != [3]float32{-1, -5, -7} || max != [3]float32{4, 2, 6} {
		t.Errorf("Bounds() = %v %v", min, max)
	}
}

func TestTriangleArea(t *testing.T) {
	a := TriangleArea([3]float32{0, 0, 0}, [3]float32{2, 0, 0}, [3]float32{0, 2, 0})
	if math.Abs(a-2) > 1e-9 {
		t.Errorf("area = %v, want 2", a)
	}
	if TriangleArea([3]float32{0, 0, 0}, [3]float32{1, 1, 1}, [3]float32{2, 2, 2}) != 0 {
		t.Error("collinear triangle should have zero area")
	}
	n := FaceNormal([3]float32{0, 0, 0}, [3]float32{1, 0, 0}, [3]float32{0, 1, 0})
	if n != [3]float32{0, 0, 1} {
		t.Errorf("FaceNormal = %v, want +Z", n)
	}
}

// --- Compile-time interface check with a stub kernel ---

// stubSolid is a minimal Solid implementation for testing.
type stubSolid struct {
	minBB, maxBB [3]float64
}

func (s *stubSolid) BoundingBox() (min, max [3]float64) {
	return s.minBB, s.maxBB
}

// stubKernel is a minimal Kernel implementation that proves the interface
// is satisfiable. All methods return trivial results.
type stubKernel struct{}

func (k *stubKernel) Name() string { return "stub" }

func (k *stubKernel) Box(x, y, z float64) Solid {
	return &stubSolid{
		minBB: [3]float64{-x / 2, -y / 2, -z / 2},
		maxBB: [3]float64{x / 2, y / 2, z / 2},
	}
}

func (k *stubKernel) Extrude(outline [][2]float64, depth float64) Solid {
	return &stubSolid{maxBB: [3]float64{0, 0, depth}}
}

func (k *stubKernel) Translate(s Solid, _, _, _ float64) Solid { return s }

func (k *stubKernel) ToMesh(_ Solid) (*Mesh, error) {
	return &Mesh{}, nil
}

// Compile-time checks that the stubs implement the interfaces.
var _ Solid = (*stubSolid)(nil)
var _ Kernel = (*stubKernel)(nil)

func TestStubKernelBoxBoundingBox(t *testing.T) {
	var k Kernel = &stubKernel{}
	s := k.Box(10, 20, 30)
	min, max := s.BoundingBox()
	if min != [3]float64{-5, -10, -15} {
		t.Errorf("Box min = %v, want [-5 -10 -15]", min)
	}
	if max != [3]float64{5, 10, 15} {
		t.Errorf("Box max = %v, want [5 10 15]", max)
	}
}
