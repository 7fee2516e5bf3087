// Package stress estimates a per-node stress field over a mesh graph.
// Two strategies share one contract: a closed-form cantilever estimate
// and a learned surrogate model.
package stress

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/chazu/tensile/pkg/graph"
	"github.com/chazu/tensile/pkg/surrogate"
)

// ErrShapeMismatch reports a model output whose length differs from the
// node count.
var ErrShapeMismatch = errors.New("stress: output shape mismatch")

// Field is one stress value per graph node, aligned by index.
type Field []float64

// Max returns the largest finite value and its index, or (NaN, -1) when
// there is none.
func (f Field) Max() (float64, int) {
	best, at := math.NaN(), -1
	for i, v := range f {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if at < 0 || v > best {
			best, at = v, i
		}
	}
	return best, at
}

// Mean returns the mean of the finite values, or 0 when there are none.
func (f Field) Mean() float64 {
	var sum float64
	var n int
	for _, v := range f {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// NonFinite counts NaN and infinite values.
func (f Field) NonFinite() int {
	var n int
	for _, v := range f {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			n++
		}
	}
	return n
}

// Strategy turns a graph into a stress field.
type Strategy interface {
	Name() string
	Infer(ctx context.Context, g *graph.Graph) (Field, error)
}

// Analytic is the closed-form cantilever estimate: the fixed end sits at
// x = -Length/2 and stress grows with the squared distance from it.
type Analytic struct {
	Length float64
}

var _ Strategy = Analytic{}

// Name returns "analytic".
func (Analytic) Name() string { return "analytic" }

// Infer computes (x + Length/2)^2 per node.
func (a Analytic) Infer(_ context.Context, g *graph.Graph) (Field, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	half := a.Length / 2
	out := make(Field, g.NodeCount())
	for i := range out {
		d := float64(g.X(i)) + half
		out[i] = d * d
	}
	return out, nil
}

// Learned runs the shared surrogate model.
type Learned struct {
	Models *surrogate.Handle
}

var _ Strategy = Learned{}

// Name returns "learned".
func (Learned) Name() string { return "learned" }

// Infer packages the graph as the model's x and edge_index tensors and
// checks the output has one value per node. It fails with
// surrogate.ErrModelUnavailable when no model is serving.
func (l Learned) Infer(ctx context.Context, g *graph.Graph) (Field, error) {
	if l.Models == nil {
		return nil, fmt.Errorf("%w: no model handle", surrogate.ErrModelUnavailable)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if g.Dim != graph.FeatureDim {
		return nil, fmt.Errorf("%w: model expects %d features per node, graph has %d",
			graph.ErrInvalidGraph, graph.FeatureDim, g.Dim)
	}

	out, err := l.Models.Run(ctx, g)
	if err != nil {
		return nil, err
	}
	if len(out) != g.NodeCount() {
		return nil, fmt.Errorf("%w: model returned %d values for %d nodes",
			ErrShapeMismatch, len(out), g.NodeCount())
	}

	field := make(Field, len(out))
	for i, v := range out {
		field[i] = float64(v)
	}
	return field, nil
}
