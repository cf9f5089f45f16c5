package physics

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Vehicle holds the geometry of one body in the rig.
// All values are in metres.
type Vehicle struct {
	L float64 `yaml:"L"` // wheelbase: axle to front coupling point
	M float64 `yaml:"M"` // hitch offset behind the axle
	W float64 `yaml:"W"` // body width
}

// Params is the vehicle parameter document consumed at startup.
type Params struct {
	Truck    Vehicle `yaml:"truck"`
	Trailer1 Vehicle `yaml:"trailer1"`
}

// DefaultParams returns the stock tractor-trailer geometry used by the demo.
func DefaultParams() Params {
	return Params{
		Truck:    Vehicle{L: 0.4, M: 0.1, W: 0.2},
		Trailer1: Vehicle{L: 0.8, M: 0.1, W: 0.2},
	}
}

// Validate rejects geometry the kinematic model cannot represent.
func (p Params) Validate() error {
	if p.Truck.L <= 0 {
		return fmt.Errorf("truck wheelbase L must be positive, got %v", p.Truck.L)
	}
	if p.Trailer1.L <= 0 {
		return fmt.Errorf("trailer wheelbase L must be positive, got %v", p.Trailer1.L)
	}
	if p.Truck.M < 0 || p.Trailer1.M < 0 {
		return fmt.Errorf("hitch offsets must be non-negative, got truck %v trailer %v", p.Truck.M, p.Trailer1.M)
	}
	if p.Truck.W <= 0 || p.Trailer1.W <= 0 {
		return fmt.Errorf("body widths must be positive, got truck %v trailer %v", p.Truck.W, p.Trailer1.W)
	}
	return nil
}

// LoadParams reads and validates a vehicle parameter document.
func LoadParams(path string) (Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Params{}, fmt.Errorf("reading vehicle parameters: %w", err)
	}

	var p Params
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Params{}, fmt.Errorf("parsing vehicle parameters: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Params{}, fmt.Errorf("vehicle parameters %s: %w", path, err)
	}
	return p, nil
}

// SaveParams writes the parameter document, creating or truncating path.
func SaveParams(path string, p Params) error {
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding vehicle parameters: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing vehicle parameters: %w", err)
	}
	return nil
}
