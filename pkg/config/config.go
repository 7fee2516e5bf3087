// Package config loads tensile's runtime configuration. Values start from
// DefaultConfig, are overlaid by an optional YAML file and then by
// TENSILE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAddr             = ":8080"
	DefaultServerMode       = "release"
	DefaultReadTimeout      = 15 * time.Second
	DefaultWriteTimeout     = 60 * time.Second
	DefaultModelLoadTimeout = 60 * time.Second
	DefaultRetryInterval    = 10 * time.Second
	DefaultInferenceTimeout = 30 * time.Second
	DefaultStrategy         = "auto"
	DefaultKernel           = "grid"
	DefaultMeshCells        = 40
	DefaultLogLevel         = "info"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvAddr     = "TENSILE_ADDR"
	EnvModel    = "TENSILE_MODEL"
	EnvStrategy = "TENSILE_STRATEGY"
	EnvLogLevel = "TENSILE_LOG_LEVEL"
	EnvRules    = "TENSILE_RULES"
)

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Model     ModelConfig     `yaml:"model"`
	Inference InferenceConfig `yaml:"inference"`
	Geometry  GeometryConfig  `yaml:"geometry"`
	Prompt    PromptConfig    `yaml:"prompt"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	Mode         string        `yaml:"mode"` // gin mode: debug, release or test
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// ModelConfig locates the surrogate model. Source is an .onnx path or an
// http(s) predictor endpoint; empty disables the learned strategy.
type ModelConfig struct {
	Source        string        `yaml:"source"`
	SharedLibrary string        `yaml:"shared_library"`
	LoadTimeout   time.Duration `yaml:"load_timeout"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	MaxAttempts   int           `yaml:"max_attempts"`
}

type InferenceConfig struct {
	Strategy string        `yaml:"strategy"` // analytic, learned or auto
	Timeout  time.Duration `yaml:"timeout"`
}

type GeometryConfig struct {
	Kernel    string `yaml:"kernel"` // grid, sdfx or manifold
	MeshCells int    `yaml:"mesh_cells"`
}

type PromptConfig struct {
	RulesFile string `yaml:"rules_file"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         DefaultAddr,
			Mode:         DefaultServerMode,
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
		},
		Model: ModelConfig{
			LoadTimeout:   DefaultModelLoadTimeout,
			RetryInterval: DefaultRetryInterval,
		},
		Inference: InferenceConfig{
			Strategy: DefaultStrategy,
			Timeout:  DefaultInferenceTimeout,
		},
		Geometry: GeometryConfig{
			Kernel:    DefaultKernel,
			MeshCells: DefaultMeshCells,
		},
		Log: LogConfig{
			Level: DefaultLogLevel,
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides fields from TENSILE_* variables. Unset or empty
// variables leave the field alone.
func (c *Config) ApplyEnv() {
	setFromEnv(EnvAddr, &c.Server.Addr)
	setFromEnv(EnvModel, &c.Model.Source)
	setFromEnv(EnvStrategy, &c.Inference.Strategy)
	setFromEnv(EnvLogLevel, &c.Log.Level)
	setFromEnv(EnvRules, &c.Prompt.RulesFile)
}

func setFromEnv(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

// Validate checks enumerations and ranges. Every problem is reported.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...))
	}

	if c.Server.Addr == "" {
		bad("server.addr is empty")
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		bad("server.mode %q (want debug, release or test)", c.Server.Mode)
	}
	if c.Server.ReadTimeout < 0 || c.Server.WriteTimeout < 0 {
		bad("server timeouts must not be negative")
	}

	switch c.Inference.Strategy {
	case "analytic", "learned", "auto":
	default:
		bad("inference.strategy %q (want analytic, learned or auto)", c.Inference.Strategy)
	}
	if c.Inference.Strategy == "learned" && c.Model.Source == "" {
		bad("inference.strategy learned needs model.source")
	}
	if c.Inference.Timeout <= 0 {
		bad("inference.timeout must be positive")
	}
	if c.Model.LoadTimeout < 0 || c.Model.RetryInterval < 0 {
		bad("model timeouts must not be negative")
	}

	switch c.Geometry.Kernel {
	case "grid", "sdfx", "manifold":
	default:
		bad("geometry.kernel %q (want grid, sdfx or manifold)", c.Geometry.Kernel)
	}
	if c.Geometry.Kernel == "sdfx" && c.Geometry.MeshCells <= 0 {
		bad("geometry.mesh_cells must be positive for sdfx")
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		bad("log.level %q", c.Log.Level)
	}

	return errors.Join(errs...)
}
