package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chazu/tensile/pkg/config"
	"github.com/chazu/tensile/pkg/engine"
	"github.com/chazu/tensile/pkg/kernel"
	"github.com/chazu/tensile/pkg/kernel/grid"
	"github.com/chazu/tensile/pkg/kernel/manifold"
	"github.com/chazu/tensile/pkg/kernel/sdfx"
	"github.com/chazu/tensile/pkg/logging"
	"github.com/chazu/tensile/pkg/pipeline"
	"github.com/chazu/tensile/pkg/prompt"
	"github.com/chazu/tensile/pkg/surrogate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

// ErrBadFeedback reports a feedback value other than "good" or "bad".
var ErrBadFeedback = errors.New("feedback must be \"good\" or \"bad\"")

// App owns the long-lived pieces behind the CLI and HTTP server: the
// pipeline, the shared model handle and the last successful result.
type App struct {
	cfg      *config.Config
	log      *zap.Logger
	registry *prometheus.Registry
	metrics  *pipeline.Metrics
	models   *surrogate.Handle
	pipeline *pipeline.Pipeline

	mu         sync.Mutex
	generation uint64 // incremented by every run
	lastGen    uint64 // generation of last
	last       *pipeline.Result
}

// NewApp builds an App from cfg. The model is not loaded until Start.
func NewApp(cfg *config.Config, log *zap.Logger) (*App, error) {
	log = logging.OrNop(log)

	mode, err := pipeline.ParseMode(cfg.Inference.Strategy)
	if err != nil {
		return nil, err
	}
	k, err := newKernel(cfg.Geometry)
	if err != nil {
		return nil, err
	}

	var parser *prompt.Parser
	if cfg.Prompt.RulesFile != "" {
		table, err := engine.LoadRules(cfg.Prompt.RulesFile)
		if err != nil {
			return nil, fmt.Errorf("load rules: %w", err)
		}
		parser = prompt.NewParser(table)
		log.Info("keyword rules loaded", zap.String("file", cfg.Prompt.RulesFile))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := pipeline.NewMetrics(reg)

	models := surrogate.New(cfg.Model.Source,
		surrogate.WithLogger(log.Named("surrogate")),
		surrogate.WithLoader(surrogate.NewLoader(surrogate.LoaderOptions{SharedLibrary: cfg.Model.SharedLibrary})),
		surrogate.WithLoadTimeout(cfg.Model.LoadTimeout),
		surrogate.WithStateHook(metrics.ModelStateHook),
	)

	return &App{
		cfg:      cfg,
		log:      log,
		registry: reg,
		metrics:  metrics,
		models:   models,
		pipeline: pipeline.New(
			pipeline.WithParser(parser),
			pipeline.WithKernel(k),
			pipeline.WithModels(models),
			pipeline.WithMode(mode),
			pipeline.WithTimeout(cfg.Inference.Timeout),
			pipeline.WithLogger(log.Named("pipeline")),
			pipeline.WithMetrics(metrics),
		),
	}, nil
}

func newKernel(cfg config.GeometryConfig) (kernel.Kernel, error) {
	switch cfg.Kernel {
	case "", "grid":
		return grid.New(), nil
	case "sdfx":
		return sdfx.NewWithCells(cfg.MeshCells), nil
	case "manifold":
		return manifold.New()
	}
	return nil, fmt.Errorf("unknown geometry kernel %q", cfg.Kernel)
}

// Start begins loading the model in the background. Requests are served
// meanwhile; learned inference reports the model as loading.
func (a *App) Start(ctx context.Context) {
	if a.cfg.Model.Source == "" {
		a.log.Info("no model source configured, learned inference disabled")
		return
	}
	a.models.LoadAsync(ctx, a.retryPolicy())
}

// ReloadModel re-reads the model source in the background.
func (a *App) ReloadModel(ctx context.Context) error {
	if a.cfg.Model.Source == "" {
		return surrogate.ErrNoSource
	}
	a.models.ReloadAsync(ctx, a.retryPolicy())
	return nil
}

func (a *App) retryPolicy() surrogate.RetryPolicy {
	return surrogate.RetryPolicy{
		Interval:    a.cfg.Model.RetryInterval,
		MaxAttempts: a.cfg.Model.MaxAttempts,
	}
}

// Generate runs the pipeline for text. A successful result becomes the
// last result unless a newer run has already been published; a failure
// never replaces it.
func (a *App) Generate(ctx context.Context, text string) (*pipeline.Result, error) {
	a.mu.Lock()
	a.generation++
	gen := a.generation
	a.mu.Unlock()

	res, err := a.pipeline.Run(ctx, text)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	if gen > a.lastGen {
		a.lastGen = gen
		a.last = res
	}
	a.mu.Unlock()
	return res, nil
}

// Last returns the most recent successful result, or nil.
func (a *App) Last() *pipeline.Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.last
}

// Feedback records a user's verdict on a prediction.
func (a *App) Feedback(runID, verdict, text string) error {
	if verdict != "good" && verdict != "bad" {
		return ErrBadFeedback
	}
	a.metrics.Feedback.WithLabelValues(verdict).Inc()
	a.log.Info("feedback",
		zap.String("run_id", runID),
		zap.String("feedback", verdict),
		zap.String("prompt", text))
	return nil
}

func (a *App) ModelStatus() surrogate.Status { return a.models.Status() }

func (a *App) Registry() *prometheus.Registry { return a.registry }

// Close stops model loading and releases the model.
func (a *App) Close() error {
	return a.models.Close()
}
