// Package surrogate loads and serves the pre-trained graph model that
// predicts per-node stress. A Model is shared read-only between concurrent
// requests through a Handle.
package surrogate

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/chazu/tensile/pkg/graph"
)

// Tensor names fixed by the model artifact.
const (
	InputName  = "x"
	EdgeName   = "edge_index"
	OutputName = "output"
)

var (
	// ErrModelUnavailable reports that no model is ready for inference.
	ErrModelUnavailable = errors.New("surrogate: model unavailable")
	// ErrModelLoading is returned alongside ErrModelUnavailable while the
	// first load is still in progress.
	ErrModelLoading = errors.New("surrogate: model loading")
	// ErrNoSource reports a handle with nothing to load.
	ErrNoSource = errors.New("surrogate: no model source configured")
)

// Model runs the surrogate over one graph. Implementations must be safe
// for concurrent Run calls.
type Model interface {
	// Run returns one value per node of g, read from the output tensor.
	// Callers validate the length.
	Run(ctx context.Context, g *graph.Graph) ([]float32, error)
	Close() error
}

// Loader opens a model from a source string.
type Loader func(ctx context.Context, source string) (Model, error)

// LoaderOptions configures the built-in backends.
type LoaderOptions struct {
	// SharedLibrary is the onnxruntime shared library path. Empty uses the
	// platform default.
	SharedLibrary string
	// HTTPClient is used by the remote backend. Nil gets a client with
	// RequestTimeout.
	HTTPClient *http.Client
	// RequestTimeout bounds each remote call when HTTPClient is nil.
	RequestTimeout time.Duration
}

// NewLoader returns a Loader that picks a backend from the source:
// http(s) URLs are served by a remote predictor, anything else is opened
// as an ONNX file.
func NewLoader(opts LoaderOptions) Loader {
	return func(ctx context.Context, source string) (Model, error) {
		switch {
		case source == "":
			return nil, ErrNoSource
		case IsRemote(source):
			m, err := OpenRemote(ctx, source, opts)
			if err != nil {
				return nil, err
			}
			return m, nil
		default:
			return OpenONNX(ctx, source, opts)
		}
	}
}

// IsRemote reports whether source names a remote predictor.
func IsRemote(source string) bool {
	s := strings.ToLower(source)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
