//go:build !manifold

// Package manifold binds the Manifold C library as a geometry kernel.
// Without the "manifold" build tag this stub is compiled and New fails.
//
// Build with: go build -tags=manifold
package manifold

import (
	"errors"

	"github.com/chazu/tensile/pkg/kernel"
)

// ErrNotBuilt is returned by New when the binary lacks Manifold support.
var ErrNotBuilt = errors.New("manifold kernel not available: build with -tags=manifold")

func New() (kernel.Kernel, error) {
	return nil, ErrNotBuilt
}
