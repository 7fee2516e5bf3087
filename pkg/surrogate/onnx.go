//go:build onnx

package surrogate

import (
	"context"
	"fmt"
	"sync"

	"github.com/chazu/tensile/pkg/graph"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortOnce sync.Once
	ortErr  error
)

// initRuntime initialises the process-wide onnxruntime environment once.
func initRuntime(lib string) error {
	ortOnce.Do(func() {
		if lib != "" {
			ort.SetSharedLibraryPath(lib)
		}
		ortErr = ort.InitializeEnvironment()
	})
	return ortErr
}

// ONNXModel runs an exported graph model with onnxruntime. The session
// is created with dynamic axes, so any node and edge count is accepted.
type ONNXModel struct {
	path    string
	session *ort.DynamicAdvancedSession
}

var _ Model = (*ONNXModel)(nil)

// OpenONNX loads the model file at path.
func OpenONNX(ctx context.Context, path string, opts LoaderOptions) (Model, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := initRuntime(opts.SharedLibrary); err != nil {
		return nil, fmt.Errorf("surrogate: onnxruntime init: %w", err)
	}
	s, err := ort.NewDynamicAdvancedSession(path,
		[]string{InputName, EdgeName}, []string{OutputName}, nil)
	if err != nil {
		return nil, fmt.Errorf("surrogate: open %s: %w", path, err)
	}
	return &ONNXModel{path: path, session: s}, nil
}

// Run feeds x as (N, dim) float32 and edge_index as (2, E) int64.
func (m *ONNXModel) Run(ctx context.Context, g *graph.Graph) ([]float32, error) {
	x, err := ort.NewTensor(ort.NewShape(int64(g.NodeCount()), int64(g.Dim)), g.Features)
	if err != nil {
		return nil, fmt.Errorf("surrogate: %s tensor: %w", InputName, err)
	}
	defer x.Destroy()

	edges, err := ort.NewTensor(ort.NewShape(2, int64(g.EdgeCount())), g.EdgeIndex)
	if err != nil {
		return nil, fmt.Errorf("surrogate: %s tensor: %w", EdgeName, err)
	}
	defer edges.Destroy()

	// A nil output is allocated by the session with the shape it produces.
	outputs := []ort.Value{nil}
	if err := m.session.Run([]ort.Value{x, edges}, outputs); err != nil {
		return nil, fmt.Errorf("surrogate: run: %w", err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("surrogate: %s has type %T, want float32 tensor", OutputName, outputs[0])
	}
	return append([]float32(nil), out.GetData()...), nil
}

// Close destroys the session.
func (m *ONNXModel) Close() error {
	return m.session.Destroy()
}
