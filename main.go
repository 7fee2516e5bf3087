package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/chazu/tensile/pkg/colorize"
	"github.com/chazu/tensile/pkg/config"
	"github.com/chazu/tensile/pkg/engine"
	"github.com/chazu/tensile/pkg/export"
	"github.com/chazu/tensile/pkg/logging"
	"github.com/chazu/tensile/pkg/pipeline"
	"github.com/chazu/tensile/pkg/prompt"
	"github.com/gin-gonic/gin"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	addr       string
	strategy   string
	kernelName string
	plot       bool
	outFile    string
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	swatchStops = []float64{0, 0.25, 0.5, 0.75, 1}
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "tensile",
		Short:         "prompt-driven part geometry with stress colouring",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (yaml)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")

	generateCmd := &cobra.Command{
		Use:   "generate [prompt]",
		Short: "generate a part and print its stress summary",
		Args:  cobra.ExactArgs(1),
		RunE:  runGenerate,
	}
	generateCmd.Flags().StringVar(&strategy, "strategy", "", "analytic, learned or auto")
	generateCmd.Flags().StringVar(&kernelName, "kernel", "", "geometry kernel: grid, sdfx or manifold")
	generateCmd.Flags().BoolVar(&plot, "plot", false, "plot stress along the length")

	exportCmd := &cobra.Command{
		Use:   "export [prompt]",
		Short: "write the coloured mesh as ASCII PLY",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	exportCmd.Flags().StringVarP(&outFile, "output", "o", "part.ply", "output file")
	exportCmd.Flags().StringVar(&strategy, "strategy", "", "analytic, learned or auto")
	exportCmd.Flags().StringVar(&kernelName, "kernel", "", "geometry kernel: grid, sdfx or manifold")

	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "keyword rule scripts",
	}
	rulesCheckCmd := &cobra.Command{
		Use:   "check [file]",
		Short: "evaluate a rule script and print the keyword table",
		Args:  cobra.ExactArgs(1),
		RunE:  runRulesCheck,
	}
	rulesCmd.AddCommand(rulesCheckCmd)

	rootCmd.AddCommand(serveCmd, generateCmd, exportCmd, rulesCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig applies the config file, then the environment, then flags.
func loadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if strategy != "" {
		cfg.Inference.Strategy = strategy
	}
	if kernelName != "" {
		cfg.Geometry.Kernel = kernelName
	}
	return cfg, cfg.Validate()
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	app, err := NewApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	app.Start(ctx)

	gin.SetMode(cfg.Server.Mode)
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      NewRouter(app, logger.Named("http")),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("addr", cfg.Server.Addr),
			zap.String("strategy", cfg.Inference.Strategy),
			zap.String("kernel", cfg.Geometry.Kernel))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server exited gracefully")
	return nil
}

// runOnce builds an App and runs one prompt. A learned or auto strategy
// waits for the model load to finish first.
func runOnce(text string) (*pipeline.Result, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Log.Level = "warn"
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	defer logger.Sync()

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, err
	}
	defer app.Close()

	ctx := context.Background()
	if cfg.Model.Source != "" && cfg.Inference.Strategy != string(pipeline.ModeAnalytic) {
		if err := app.models.Load(ctx); err != nil {
			logger.Warn("model unavailable", zap.Error(err))
		}
	}
	return app.Generate(ctx, text)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	res, err := runOnce(args[0])
	if err != nil {
		return err
	}
	fmt.Println(renderSummary(res.Summary))
	if plot {
		fmt.Println(renderProfile(res))
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	res, err := runOnce(args[0])
	if err != nil {
		return err
	}
	f, err := os.Create(outFile)
	if err != nil {
		return err
	}
	if err := export.WritePLY(f, res.Mesh, res.Colors); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d vertices, %d triangles, %s strategy)\n",
		outFile, res.Mesh.VertexCount(), res.Mesh.TriangleCount(), res.Summary.Strategy)
	return nil
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	table, err := engine.LoadRules(args[0])
	if err != nil {
		return err
	}
	fmt.Println(renderTable(table))
	return nil
}

// ----------------------------------------------------------------------------
// Rendering
// ----------------------------------------------------------------------------

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value)
}

func renderSummary(s pipeline.Summary) string {
	lines := []string{
		titleStyle.Render(fmt.Sprintf("%s  %s", s.Archetype, s.Dimensions)),
		row("prompt", s.Prompt),
		row("kernel", s.Kernel),
		row("strategy", s.Strategy),
		row("mesh", fmt.Sprintf("%d nodes, %d edges, %d triangles", s.Nodes, s.Edges, s.Triangles)),
		row("max stress", fmt.Sprintf("%.4g", s.MaxStress)),
		row("mean stress", fmt.Sprintf("%.4g", s.MeanStress)),
		row("took", fmt.Sprintf("%.1f ms", s.DurationMS)),
		row("scale", swatches()),
	}
	if s.Fallback {
		lines = append(lines, warnStyle.Render("geometry kernel failed; showing the default beam"))
	}
	if s.NonFinite > 0 {
		lines = append(lines, warnStyle.Render(fmt.Sprintf("%d non-finite stress values coloured as zero", s.NonFinite)))
	}
	if s.Degenerate {
		lines = append(lines, warnStyle.Render("stress field is flat"))
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}

// swatches renders the colour scale from zero to peak stress.
func swatches() string {
	var b strings.Builder
	for _, n := range swatchStops {
		c := colorize.Color(n)
		b.WriteString(lipgloss.NewStyle().Background(lipgloss.Color(c.Hex())).Render("   "))
	}
	return b.String() + valueStyle.Render("  low -> high")
}

// renderProfile plots the peak stress at each distinct x coordinate.
func renderProfile(res *pipeline.Result) string {
	peak := map[float32]float64{}
	for i, v := range res.Field {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		x := res.Graph.X(i)
		if cur, ok := peak[x]; !ok || v > cur {
			peak[x] = v
		}
	}
	if len(peak) == 0 {
		return warnStyle.Render("no finite stress values to plot")
	}

	xs := make([]float32, 0, len(peak))
	for x := range peak {
		xs = append(xs, x)
	}
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	data := make([]float64, len(xs))
	for i, x := range xs {
		data[i] = peak[x]
	}

	return asciigraph.Plot(data,
		asciigraph.Height(10),
		asciigraph.Width(60),
		asciigraph.Caption(fmt.Sprintf("peak stress along x (%g .. %g)", xs[0], xs[len(xs)-1])),
	)
}

func renderTable(t *prompt.Table) string {
	lines := []string{titleStyle.Render("archetype rules")}
	for _, r := range t.Archetypes {
		lines = append(lines, row(fmt.Sprintf("%q", r.Keyword), r.Archetype.String()))
	}
	lines = append(lines, "", titleStyle.Render("dimension rules"))
	for _, r := range t.Dimensions {
		lines = append(lines, row(fmt.Sprintf("%q", r.Keyword), fmt.Sprintf("%s = %g", r.Param, r.Value)))
	}
	lines = append(lines, "", titleStyle.Render("defaults"))
	for _, a := range []prompt.Archetype{prompt.Beam, prompt.LBracket} {
		if d, ok := t.Defaults[a]; ok {
			lines = append(lines, row(a.String(), d.String()))
		}
	}
	return panelStyle.Render(strings.Join(lines, "\n"))
}
