// Package pipeline runs a prompt through every stage: parse, geometry,
// graph, stress inference and colouring. A Pipeline is safe for
// concurrent use; each run works on fresh data and shares only the
// surrogate model handle.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/chazu/tensile/pkg/colorize"
	"github.com/chazu/tensile/pkg/graph"
	"github.com/chazu/tensile/pkg/kernel"
	"github.com/chazu/tensile/pkg/kernel/grid"
	"github.com/chazu/tensile/pkg/logging"
	"github.com/chazu/tensile/pkg/prompt"
	"github.com/chazu/tensile/pkg/stress"
	"github.com/chazu/tensile/pkg/surrogate"
	"github.com/chazu/tensile/pkg/tessellate"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTimeout bounds stress inference when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Mode selects the stress strategy.
type Mode string

const (
	ModeAnalytic Mode = "analytic"
	ModeLearned  Mode = "learned"
	ModeAuto     Mode = "auto" // learned when the model is ready, otherwise analytic
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeAnalytic, ModeLearned, ModeAuto:
		return m, nil
	}
	return "", fmt.Errorf("pipeline: unknown strategy %q", s)
}

// Summary describes a successful run.
type Summary struct {
	RunID      string            `json:"run_id"`
	Prompt     string            `json:"prompt"`
	Archetype  prompt.Archetype  `json:"archetype"`
	Dimensions prompt.Dimensions `json:"dimensions"`
	Kernel     string            `json:"kernel"`
	Fallback   bool              `json:"fallback"`
	Strategy   string            `json:"strategy"`
	Nodes      int               `json:"nodes"`
	Edges      int               `json:"edges"`
	Triangles  int               `json:"triangles"`
	MaxStress  float64           `json:"max_stress"`
	MeanStress float64           `json:"mean_stress"`
	NonFinite  int               `json:"non_finite"`
	Degenerate bool              `json:"degenerate"`
	DurationMS float64           `json:"duration_ms"`
}

// Result carries every artefact of a run.
type Result struct {
	Spec    prompt.ShapeSpec
	Mesh    *kernel.Mesh
	Graph   *graph.Graph
	Field   stress.Field
	Colors  []colorize.RGB
	Summary Summary
}

// Pipeline wires the stages together.
type Pipeline struct {
	parser  *prompt.Parser
	kernel  kernel.Kernel
	models  *surrogate.Handle
	mode    Mode
	timeout time.Duration
	log     *zap.Logger
	metrics *Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithParser replaces the default keyword parser.
func WithParser(p *prompt.Parser) Option {
	return func(pl *Pipeline) {
		if p != nil {
			pl.parser = p
		}
	}
}

// WithKernel selects the geometry kernel.
func WithKernel(k kernel.Kernel) Option {
	return func(pl *Pipeline) {
		if k != nil {
			pl.kernel = k
		}
	}
}

// WithModels attaches the surrogate model handle used by the learned
// strategy.
func WithModels(h *surrogate.Handle) Option {
	return func(pl *Pipeline) { pl.models = h }
}

func WithMode(m Mode) Option {
	return func(pl *Pipeline) { pl.mode = m }
}

func WithTimeout(d time.Duration) Option {
	return func(pl *Pipeline) {
		if d > 0 {
			pl.timeout = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(pl *Pipeline) { pl.log = logging.OrNop(l) }
}

func WithMetrics(m *Metrics) Option {
	return func(pl *Pipeline) {
		if m != nil {
			pl.metrics = m
		}
	}
}

// New returns a pipeline with the default parser, the grid kernel and
// the analytic strategy unless options say otherwise.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{
		parser:  prompt.NewParser(nil),
		kernel:  grid.New(),
		mode:    ModeAnalytic,
		timeout: DefaultTimeout,
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = NewMetrics(nil)
	}
	return p
}

func (p *Pipeline) Mode() Mode                { return p.mode }
func (p *Pipeline) Kernel() kernel.Kernel     { return p.kernel }
func (p *Pipeline) Models() *surrogate.Handle { return p.models }
func (p *Pipeline) Metrics() *Metrics         { return p.metrics }

// Run executes every stage for text. A failure returns a *StageError and
// no colours.
func (p *Pipeline) Run(ctx context.Context, text string) (*Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := p.log.With(zap.String("run_id", runID))

	spec := tessellate.Resolve(p.parser.Parse(text))
	log.Debug("parsed prompt", zap.String("prompt", text), zap.Stringer("spec", spec))

	mesh, err := tessellate.Build(spec, p.kernel)
	fallback := err != nil
	if fallback {
		log.Warn("geometry failed, using default beam", zap.Error(err))
		mesh = tessellate.Fallback()
		spec = tessellate.Resolve(prompt.ShapeSpec{Archetype: prompt.Beam})
	}

	g, err := graph.FromMesh(mesh)
	if err != nil {
		p.metrics.observeRun("none", "error")
		return nil, &StageError{RunID: runID, Stage: StageGraph, Wrapped: err}
	}

	strategy := p.strategy(spec)
	ictx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	inferStart := time.Now()
	field, err := strategy.Infer(ictx, g)
	p.metrics.observeInference(strategy.Name(), time.Since(inferStart))
	if err != nil {
		p.metrics.observeRun(strategy.Name(), "error")
		log.Warn("inference failed", zap.String("strategy", strategy.Name()), zap.Error(err))
		return nil, &StageError{RunID: runID, Stage: StageInference, Wrapped: err}
	}

	nonFinite := field.NonFinite()
	if nonFinite > 0 {
		log.Warn("stress field has non-finite values", zap.Int("count", nonFinite))
	}
	colors := colorize.Colorize(field)
	maxStress, _ := field.Max()
	if nonFinite == len(field) {
		maxStress = 0
	}

	res := &Result{
		Spec:   spec,
		Mesh:   mesh,
		Graph:  g,
		Field:  field,
		Colors: colors,
		Summary: Summary{
			RunID:      runID,
			Prompt:     text,
			Archetype:  spec.Archetype,
			Dimensions: spec.Dimensions.Clone(),
			Kernel:     p.kernel.Name(),
			Fallback:   fallback,
			Strategy:   strategy.Name(),
			Nodes:      g.NodeCount(),
			Edges:      g.EdgeCount(),
			Triangles:  mesh.TriangleCount(),
			MaxStress:  maxStress,
			MeanStress: field.Mean(),
			NonFinite:  nonFinite,
			Degenerate: colorize.Degenerate(field),
			DurationMS: float64(time.Since(start).Microseconds()) / 1000,
		},
	}
	if fallback {
		res.Summary.Kernel = "grid"
	}

	p.metrics.observeRun(strategy.Name(), "ok")
	log.Info("run complete",
		zap.Stringer("spec", spec),
		zap.String("strategy", strategy.Name()),
		zap.Int("nodes", res.Summary.Nodes),
		zap.Float64("max_stress", res.Summary.MaxStress),
		zap.Float64("duration_ms", res.Summary.DurationMS))
	return res, nil
}

// strategy picks the stress strategy for spec under the configured mode.
func (p *Pipeline) strategy(spec prompt.ShapeSpec) stress.Strategy {
	analytic := stress.Analytic{Length: spec.Dimensions.Length()}
	switch p.mode {
	case ModeLearned:
		return stress.Learned{Models: p.models}
	case ModeAuto:
		if p.models != nil && p.models.State() == surrogate.StateReady {
			return stress.Learned{Models: p.models}
		}
	}
	return analytic
}
