// Package config is the run configuration of the planner CLI. What the demo
// script toggled through module-level booleans lives here as an explicit
// document, loadable from YAML and overridable by flags.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Solver tunes the delegated NLP backend.
type Solver struct {
	Tol            float64 `yaml:"tol"`
	MaxOuter       int     `yaml:"max_outer"`
	SubIterations  int     `yaml:"sub_iterations"`
	InitialPenalty float64 `yaml:"initial_penalty"`
	MaxPenalty     float64 `yaml:"max_penalty"`
}

// Config is the full run configuration.
type Config struct {
	// Paths.
	Params string `yaml:"params"`  // vehicle parameter document
	Out    string `yaml:"out"`     // result YAML
	OutDir string `yaml:"out_dir"` // plots, frames, csv

	// Resampling.
	Ts     float64 `yaml:"ts"`     // control grid step, seconds
	Refine int     `yaml:"refine"` // frame grid density multiplier over Ts

	// Feature toggles.
	Simulate bool `yaml:"simulate"` // diagnostic closed-loop pass
	Plots    bool `yaml:"plots"`
	Frames   bool `yaml:"frames"`
	GIF      bool `yaml:"gif"`
	Animate  bool `yaml:"animate"`
	CSV      bool `yaml:"csv"`

	Solver Solver `yaml:"solver"`
}

// Default mirrors the demo script's stock settings.
func Default() Config {
	return Config{
		Params: "truck_trailer_para.yaml",
		Out:    "truck_trailer_x_u.yaml",
		OutDir: "output",
		Ts:     0.1,
		Refine: 2,
		Plots:  true,
		Solver: Solver{
			Tol:            1e-4,
			MaxOuter:       150,
			SubIterations:  2500,
			InitialPenalty: 10,
			MaxPenalty:     1e8,
		},
	}
}

// Load reads a config document, filling unset values from Default. A missing
// file is not an error: the defaults stand.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the pipeline cannot work with.
func (c Config) Validate() error {
	if c.Ts <= 0 {
		return fmt.Errorf("ts must be positive, got %v", c.Ts)
	}
	if c.Refine < 1 {
		return fmt.Errorf("refine must be at least 1, got %d", c.Refine)
	}
	if c.Params == "" {
		return fmt.Errorf("params path must be set")
	}
	if c.Out == "" {
		return fmt.Errorf("out path must be set")
	}
	return nil
}
