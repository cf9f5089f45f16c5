// Package result holds the resampled maneuver document: planned positions,
// headings, and controls on the fixed-step control grid, in the same shape
// the planner writes to disk.
package result

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Signals are the pose trajectories: trailer axle, truck axle, and headings.
type Signals struct {
	PX1    []float64 `yaml:"px1"`
	PY1    []float64 `yaml:"py1"`
	Theta1 []float64 `yaml:"theta1"`
	PX0    []float64 `yaml:"px0"`
	PY0    []float64 `yaml:"py0"`
	Theta0 []float64 `yaml:"theta0"`
}

// Controls are the applied inputs: steering angle and longitudinal velocity.
type Controls struct {
	Delta []float64 `yaml:"delta"`
	VL    []float64 `yaml:"v_l"`
}

// Trajectory is the full result document.
type Trajectory struct {
	X Signals   `yaml:"x"`
	U Controls  `yaml:"u"`
	T []float64 `yaml:"t"`
}

// Len is the number of samples.
func (tr *Trajectory) Len() int { return len(tr.T) }

// Validate checks that every signal covers the same sample count and that
// time is strictly increasing.
func (tr *Trajectory) Validate() error {
	n := len(tr.T)
	if n == 0 {
		return fmt.Errorf("empty trajectory")
	}
	for name, sig := range map[string][]float64{
		"px1": tr.X.PX1, "py1": tr.X.PY1, "theta1": tr.X.Theta1,
		"px0": tr.X.PX0, "py0": tr.X.PY0, "theta0": tr.X.Theta0,
		"delta": tr.U.Delta, "v_l": tr.U.VL,
	} {
		if len(sig) != n {
			return fmt.Errorf("signal %s has %d samples, want %d", name, len(sig), n)
		}
	}
	for i := 1; i < n; i++ {
		if tr.T[i] <= tr.T[i-1] {
			return fmt.Errorf("time not strictly increasing at sample %d", i)
		}
	}
	return nil
}

// Save writes the document as YAML.
func Save(path string, tr *Trajectory) error {
	if err := tr.Validate(); err != nil {
		return fmt.Errorf("result document: %w", err)
	}
	data, err := yaml.Marshal(tr)
	if err != nil {
		return fmt.Errorf("encoding result document: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing result document: %w", err)
	}
	return nil
}

// Load reads and validates a result document.
func Load(path string) (*Trajectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading result document: %w", err)
	}
	var tr Trajectory
	if err := yaml.Unmarshal(data, &tr); err != nil {
		return nil, fmt.Errorf("parsing result document: %w", err)
	}
	if err := tr.Validate(); err != nil {
		return nil, fmt.Errorf("result document %s: %w", path, err)
	}
	return &tr, nil
}

// WriteCSV exports the document as one row per sample, for spreadsheet
// inspection alongside the YAML.
func WriteCSV(path string, tr *Trajectory) error {
	if err := tr.Validate(); err != nil {
		return fmt.Errorf("result document: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"t", "px1", "py1", "theta1", "px0", "py0", "theta0", "delta", "v_l"}); err != nil {
		return fmt.Errorf("writing csv header: %w", err)
	}
	row := make([]string, 9)
	for i := range tr.T {
		for j, v := range []float64{
			tr.T[i], tr.X.PX1[i], tr.X.PY1[i], tr.X.Theta1[i],
			tr.X.PX0[i], tr.X.PY0[i], tr.X.Theta0[i], tr.U.Delta[i], tr.U.VL[i],
		} {
			row[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("writing csv row %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing csv: %w", err)
	}
	return nil
}
