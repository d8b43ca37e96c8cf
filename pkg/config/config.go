// Package config loads kerf settings from YAML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. KERF_SOLVER_TOLERANCE.
const EnvPrefix = "KERF_"

// Config is the complete application configuration.
type Config struct {
	Log     Log     `yaml:"log"`
	Solver  Solver  `yaml:"solver"`
	Kernel  Kernel  `yaml:"kernel"`
	History History `yaml:"history"`
	Script  Script  `yaml:"script"`
}

// Log selects the logger mode: dev, prod or nop.
type Log struct {
	Mode string `yaml:"mode"`
}

// Solver tunes the numeric engine.
type Solver struct {
	Tolerance     float64 `yaml:"tolerance"`
	MaxIterations int     `yaml:"max_iterations"`
	MaxUnknowns   int     `yaml:"max_unknowns"`
	RankTolerance float64 `yaml:"rank_tolerance"`
	DragWeight    float64 `yaml:"drag_weight"`
}

// Kernel selects and tunes the solid kernel.
type Kernel struct {
	Backend       string `yaml:"backend"` // sdfx or manifold
	MeshCells     int    `yaml:"mesh_cells"`
	ArcSegments   int    `yaml:"arc_segments"`
	CurveSegments int    `yaml:"curve_segments"`
}

// History bounds the undo stack.
type History struct {
	Limit int `yaml:"limit"`
}

// Script bounds DSL evaluation. Timeout accepts Go durations, e.g. "5s".
type Script struct {
	Timeout time.Duration `yaml:"timeout"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: Log{Mode: "dev"},
		Solver: Solver{
			Tolerance:     1e-10,
			MaxIterations: 50,
			MaxUnknowns:   2048,
			RankTolerance: 1e-8,
			DragWeight:    1.0 / 20,
		},
		Kernel: Kernel{
			Backend:       "sdfx",
			MeshCells:     200,
			ArcSegments:   32,
			CurveSegments: 16,
		},
		History: History{Limit: 100},
		Script:  Script{Timeout: 5 * time.Second},
	}
}

// Load builds a configuration from defaults, the YAML file at path (if path
// is non-empty) and KERF_* environment variables, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

// applyEnv overlays environment variables. They take priority over files.
func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = strings.ToLower(v)
		}
	}
	num := func(name string, dst *float64) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = f
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}

	str("LOG_MODE", &c.Log.Mode)

	num("SOLVER_TOLERANCE", &c.Solver.Tolerance)
	integer("SOLVER_MAX_ITERATIONS", &c.Solver.MaxIterations)
	integer("SOLVER_MAX_UNKNOWNS", &c.Solver.MaxUnknowns)
	num("SOLVER_RANK_TOLERANCE", &c.Solver.RankTolerance)
	num("SOLVER_DRAG_WEIGHT", &c.Solver.DragWeight)

	str("KERNEL_BACKEND", &c.Kernel.Backend)
	integer("KERNEL_MESH_CELLS", &c.Kernel.MeshCells)
	integer("KERNEL_ARC_SEGMENTS", &c.Kernel.ArcSegments)
	integer("KERNEL_CURVE_SEGMENTS", &c.Kernel.CurveSegments)

	integer("HISTORY_LIMIT", &c.History.Limit)

	duration("SCRIPT_TIMEOUT", &c.Script.Timeout)

	return errors.Join(errs...)
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	switch c.Log.Mode {
	case "dev", "development", "prod", "production", "nop", "none", "off":
	default:
		errs = append(errs, fmt.Errorf("log.mode: unknown mode %q", c.Log.Mode))
	}

	if c.Solver.Tolerance <= 0 {
		errs = append(errs, errors.New("solver.tolerance must be positive"))
	}
	if c.Solver.MaxIterations < 1 {
		errs = append(errs, errors.New("solver.max_iterations must be at least 1"))
	}
	if c.Solver.MaxUnknowns < 1 {
		errs = append(errs, errors.New("solver.max_unknowns must be at least 1"))
	}
	if c.Solver.RankTolerance <= 0 || c.Solver.RankTolerance >= 1 {
		errs = append(errs, errors.New("solver.rank_tolerance must be in (0, 1)"))
	}
	if c.Solver.DragWeight <= 0 || c.Solver.DragWeight > 1 {
		errs = append(errs, errors.New("solver.drag_weight must be in (0, 1]"))
	}

	switch c.Kernel.Backend {
	case "sdfx", "manifold":
	default:
		errs = append(errs, fmt.Errorf("kernel.backend: unknown backend %q", c.Kernel.Backend))
	}
	if c.Kernel.MeshCells < 8 {
		errs = append(errs, errors.New("kernel.mesh_cells must be at least 8"))
	}
	if c.Kernel.ArcSegments < 4 {
		errs = append(errs, errors.New("kernel.arc_segments must be at least 4"))
	}
	if c.Kernel.CurveSegments < 2 {
		errs = append(errs, errors.New("kernel.curve_segments must be at least 2"))
	}

	if c.History.Limit < 1 {
		errs = append(errs, errors.New("history.limit must be at least 1"))
	}

	if c.Script.Timeout <= 0 {
		errs = append(errs, errors.New("script.timeout must be positive"))
	}

	return errors.Join(errs...)
}
