//go:build !onnx

package surrogate

import (
	"context"
	"errors"
)

// ErrONNXNotBuilt is returned when the binary was built without the onnx tag.
var ErrONNXNotBuilt = errors.New("surrogate: ONNX support not available; build with -tags onnx")

// OpenONNX reports that local model files cannot be opened in this build.
// Remote predictors still work.
func OpenONNX(_ context.Context, _ string, _ LoaderOptions) (Model, error) {
	return nil, ErrONNXNotBuilt
}
