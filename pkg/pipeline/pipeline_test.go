package pipeline_test

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/chazu/tensile/pkg/graph"
	"github.com/chazu/tensile/pkg/kernel"
	"github.com/chazu/tensile/pkg/kernel/grid"
	"github.com/chazu/tensile/pkg/pipeline"
	"github.com/chazu/tensile/pkg/prompt"
	"github.com/chazu/tensile/pkg/stress"
	"github.com/chazu/tensile/pkg/surrogate"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// shortModel always returns one value too few.
type shortModel struct{}

func (shortModel) Run(_ context.Context, g *graph.Graph) ([]float32, error) {
	return make([]float32, g.NodeCount()-1), nil
}

func (shortModel) Close() error { return nil }

// tipModel returns each node's x coordinate.
type tipModel struct{}

func (tipModel) Run(_ context.Context, g *graph.Graph) ([]float32, error) {
	out := make([]float32, g.NodeCount())
	for i := range out {
		out[i] = g.X(i)
	}
	return out, nil
}

func (tipModel) Close() error { return nil }

// slowModel blocks until its context ends.
type slowModel struct{}

func (slowModel) Run(ctx context.Context, _ *graph.Graph) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowModel) Close() error { return nil }

// brokenKernel fails every mesh request.
type brokenKernel struct{ kernel.Kernel }

func (brokenKernel) Name() string { return "broken" }

func (brokenKernel) ToMesh(kernel.Solid) (*kernel.Mesh, error) {
	return nil, errors.New("boom")
}

func handleFor(m surrogate.Model) *surrogate.Handle {
	h := surrogate.New("test", surrogate.WithLoader(func(context.Context, string) (surrogate.Model, error) {
		return m, nil
	}))
	Expect(h.Load(context.Background())).To(Succeed())
	DeferCleanup(h.Close)
	return h
}

func distinctX(m *kernel.Mesh) int {
	seen := map[float32]bool{}
	for i := 0; i < m.VertexCount(); i++ {
		seen[m.Vertex(i)[0]] = true
	}
	return len(seen)
}

var _ = Describe("Pipeline", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("geometry", func() {
		It("builds a long thin beam on an 11-coordinate grid", func() {
			res, err := pipeline.New().Run(ctx, "a long, thin beam")
			Expect(err).NotTo(HaveOccurred())

			Expect(res.Spec.Archetype).To(Equal(prompt.Beam))
			Expect(res.Spec.Dimensions).To(Equal(prompt.Dimensions{
				prompt.ParamLength: 20, prompt.ParamWidth: 2, prompt.ParamHeight: 2,
			}))
			Expect(distinctX(res.Mesh)).To(Equal(11))
			Expect(res.Summary.Nodes).To(Equal(726))
			Expect(res.Summary.Edges).To(Equal(3 * res.Summary.Triangles))
		})

		It("builds a tall l-bracket without zero-area faces", func() {
			res, err := pipeline.New().Run(ctx, "a tall l-bracket")
			Expect(err).NotTo(HaveOccurred())

			Expect(res.Spec.Archetype).To(Equal(prompt.LBracket))
			Expect(res.Spec.Dimensions).To(Equal(prompt.Dimensions{
				prompt.ParamLength: 10, prompt.ParamWidth: 2, prompt.ParamHeight: 4, prompt.ParamThickness: 2,
			}))
			Expect(res.Mesh.Indexed()).To(BeFalse())
			for i := 0; i < res.Mesh.TriangleCount(); i++ {
				Expect(res.Mesh.TriangleArea(i)).To(BeNumerically(">", 0), "triangle %d", i)
			}
		})

		It("reports the clamped thickness of a flat l-bracket", func() {
			res, err := pipeline.New().Run(ctx, "a flat l-bracket")
			Expect(err).NotTo(HaveOccurred())

			Expect(res.Spec.Dimensions.Height()).To(Equal(1.0))
			Expect(res.Spec.Dimensions.Thickness()).To(Equal(0.5))
			Expect(res.Summary.Dimensions.Thickness()).To(Equal(0.5))
		})

		It("falls back to the default beam when the kernel fails", func() {
			res, err := pipeline.New(pipeline.WithKernel(brokenKernel{grid.New()})).Run(ctx, "a long l-bracket")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Summary.Fallback).To(BeTrue())
			Expect(res.Summary.Kernel).To(Equal("grid"))
			Expect(res.Spec.Archetype).To(Equal(prompt.Beam))
			Expect(res.Spec.Dimensions.Length()).To(Equal(10.0))
			Expect(res.Mesh.VertexCount()).To(BeNumerically(">", 0))
		})
	})

	Describe("analytic stress", func() {
		It("grows with the squared distance from the fixed end", func() {
			res, err := pipeline.New().Run(ctx, "a long beam")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Summary.Strategy).To(Equal("analytic"))

			Expect(res.Field).To(HaveLen(res.Graph.NodeCount()))
			for i, v := range res.Field {
				x := float64(res.Graph.X(i))
				Expect(v).To(BeNumerically("~", (x+10)*(x+10), 1e-9))
				Expect(v).To(BeNumerically(">=", 0))
			}

			_, at := res.Field.Max()
			Expect(res.Graph.X(at)).To(BeNumerically("==", 10))
			Expect(res.Summary.MaxStress).To(BeNumerically("~", 400, 1e-9))
			Expect(res.Colors[at].Hex()).To(Equal("#ff0000"))
			Expect(res.Colors).To(HaveLen(res.Mesh.VertexCount()))
			Expect(res.Summary.Degenerate).To(BeFalse())
		})

		It("is idempotent for the same prompt", func() {
			p := pipeline.New()
			a, err := p.Run(ctx, "a short wide beam")
			Expect(err).NotTo(HaveOccurred())
			b, err := p.Run(ctx, "a short wide beam")
			Expect(err).NotTo(HaveOccurred())
			Expect(b.Field).To(Equal(a.Field))
			Expect(b.Colors).To(Equal(a.Colors))
			Expect(b.Summary.RunID).NotTo(Equal(a.Summary.RunID))
		})
	})

	Describe("learned stress", func() {
		It("uses the model output when it has one value per node", func() {
			p := pipeline.New(pipeline.WithMode(pipeline.ModeLearned), pipeline.WithModels(handleFor(tipModel{})))
			res, err := p.Run(ctx, "a beam")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Summary.Strategy).To(Equal("learned"))
			for i, v := range res.Field {
				Expect(v).To(Equal(float64(res.Graph.X(i))))
			}
		})

		It("rejects a short output and leaves the previous colours alone", func() {
			prev, err := pipeline.New().Run(ctx, "a beam")
			Expect(err).NotTo(HaveOccurred())
			before := append(prev.Colors[:0:0], prev.Colors...)

			p := pipeline.New(pipeline.WithMode(pipeline.ModeLearned), pipeline.WithModels(handleFor(shortModel{})))
			res, err := p.Run(ctx, "a beam")
			Expect(res).To(BeNil())
			Expect(err).To(MatchError(stress.ErrShapeMismatch))

			var se *pipeline.StageError
			Expect(errors.As(err, &se)).To(BeTrue())
			Expect(se.Stage).To(Equal(pipeline.StageInference))
			Expect(se.RunID).NotTo(BeEmpty())

			Expect(prev.Colors).To(Equal(before))
		})

		It("reports an unavailable model in learned mode", func() {
			h := surrogate.New("never")
			DeferCleanup(h.Close)
			_, err := pipeline.New(pipeline.WithMode(pipeline.ModeLearned), pipeline.WithModels(h)).Run(ctx, "a beam")
			Expect(err).To(MatchError(surrogate.ErrModelUnavailable))
		})

		It("falls back to analytic in auto mode until the model is ready", func() {
			h := surrogate.New("never")
			DeferCleanup(h.Close)
			res, err := pipeline.New(pipeline.WithMode(pipeline.ModeAuto), pipeline.WithModels(h)).Run(ctx, "a beam")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Summary.Strategy).To(Equal("analytic"))

			res, err = pipeline.New(pipeline.WithMode(pipeline.ModeAuto), pipeline.WithModels(handleFor(tipModel{}))).Run(ctx, "a beam")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Summary.Strategy).To(Equal("learned"))
		})

		It("times out without disturbing the model handle", func() {
			h := handleFor(slowModel{})
			p := pipeline.New(
				pipeline.WithMode(pipeline.ModeLearned),
				pipeline.WithModels(h),
				pipeline.WithTimeout(20*time.Millisecond),
			)
			_, err := p.Run(ctx, "a beam")
			Expect(err).To(MatchError(context.DeadlineExceeded))
			Expect(h.State()).To(Equal(surrogate.StateReady))
		})
	})

	Describe("degenerate fields", func() {
		It("colours a NaN field flat and reports it", func() {
			p := pipeline.New(pipeline.WithMode(pipeline.ModeLearned), pipeline.WithModels(handleFor(nanModel{})))
			res, err := p.Run(ctx, "a beam")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Summary.Degenerate).To(BeTrue())
			Expect(res.Summary.NonFinite).To(Equal(res.Summary.Nodes))
			Expect(res.Summary.MaxStress).To(BeZero())
			Expect(res.Colors[0]).To(Equal(res.Colors[len(res.Colors)-1]))
		})
	})

	Describe("metrics", func() {
		It("counts runs and tracks model state", func() {
			reg := prometheus.NewRegistry()
			m := pipeline.NewMetrics(reg)

			p := pipeline.New(pipeline.WithMetrics(m))
			_, err := p.Run(ctx, "a beam")
			Expect(err).NotTo(HaveOccurred())
			Expect(testutil.ToFloat64(m.Runs.WithLabelValues("analytic", "ok"))).To(Equal(1.0))

			Expect(testutil.ToFloat64(m.ModelState.WithLabelValues("not-loaded"))).To(Equal(1.0))
			m.ModelStateHook(surrogate.StateLoading, surrogate.StateReady)
			Expect(testutil.ToFloat64(m.ModelState.WithLabelValues("ready"))).To(Equal(1.0))
			Expect(testutil.ToFloat64(m.ModelState.WithLabelValues("not-loaded"))).To(Equal(0.0))

			count, err := testutil.GatherAndCount(reg, "tensile_inference_seconds")
			Expect(err).NotTo(HaveOccurred())
			Expect(count).To(Equal(1))
		})
	})

	It("parses strategy names", func() {
		for _, name := range []string{"analytic", "learned", "auto"} {
			m, err := pipeline.ParseMode(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(m)).To(Equal(name))
		}
		_, err := pipeline.ParseMode("fea")
		Expect(err).To(HaveOccurred())
	})
})

// nanModel returns NaN for every node.
type nanModel struct{}

func (nanModel) Run(_ context.Context, g *graph.Graph) ([]float32, error) {
	out := make([]float32, g.NodeCount())
	for i := range out {
		out[i] = float32(math.NaN())
	}
	return out, nil
}

func (nanModel) Close() error { return nil }
