package planner

import (
	"fmt"

	"go.uber.org/zap"

	"truck-trailer-planner/internal/common"
	"truck-trailer-planner/internal/corridor"
	"truck-trailer-planner/internal/physics"
	"truck-trailer-planner/internal/result"
)

// Resample re-evaluates the solved maneuver on a fixed-step control grid:
// the approach stage on [0, t1), the turn stage on [t1, t2), concatenated
// into one timeline.
func (s *Solution) Resample(ts float64) (*result.Trajectory, error) {
	if ts <= 0 {
		return nil, fmt.Errorf("resample step must be positive, got %v", ts)
	}

	times := s.Approach.ControlTimes(ts)
	n1 := len(times)
	times = append(times, s.Turn.ControlTimes(ts)...)

	tr := &result.Trajectory{
		X: result.Signals{
			PX1:    make([]float64, len(times)),
			PY1:    make([]float64, len(times)),
			Theta1: make([]float64, len(times)),
			PX0:    make([]float64, len(times)),
			PY0:    make([]float64, len(times)),
			Theta0: make([]float64, len(times)),
		},
		U: result.Controls{
			Delta: make([]float64, len(times)),
			VL:    make([]float64, len(times)),
		},
		T: times,
	}

	x := make([]float64, s.rig.StateDim())
	for i, t := range times {
		if i < n1 {
			s.Approach.State(x, t)
		} else {
			s.Turn.State(x, t)
		}
		axle := s.rig.TruckAxle(x)

		tr.X.PX1[i] = x[physics.SX1]
		tr.X.PY1[i] = x[physics.SY1]
		tr.X.Theta1[i] = x[physics.STheta1]
		tr.X.PX0[i] = axle.X
		tr.X.PY0[i] = axle.Y
		tr.X.Theta0[i] = x[physics.STheta0]
		tr.U.Delta[i] = x[physics.SDelta0]
		tr.U.VL[i] = x[physics.SV0]
	}

	if err := tr.Validate(); err != nil {
		return nil, fmt.Errorf("resampled trajectory: %w", err)
	}
	return tr, nil
}

// CorridorViolation is the worst half-plane value over every footprint
// corner of both bodies across the whole trajectory, using the stage split
// at t1 to pick the active region. Non-positive means the corridor holds.
func CorridorViolation(tr *result.Trajectory, rig physics.Rig, c corridor.Corner, t1 float64) float64 {
	entry, exit := c.EntryRegion(), c.ExitRegion()
	worst := 0.0
	first := true
	for i := range tr.T {
		region := entry
		if tr.T[i] >= t1 {
			region = exit
		}

		truck := physics.Footprint(
			common.Vec2{X: tr.X.PX0[i], Y: tr.X.PY0[i]}, tr.X.Theta0[i], rig.Truck)
		trailer := physics.Footprint(
			common.Vec2{X: tr.X.PX1[i], Y: tr.X.PY1[i]}, tr.X.Theta1[i], rig.Trailer)

		for _, p := range truck {
			if v := region.MaxViolation(p); first || v > worst {
				worst, first = v, false
			}
		}
		for _, p := range trailer {
			if v := region.MaxViolation(p); v > worst {
				worst = v
			}
		}
	}
	return worst
}

// SimResult is the diagnostic closed-loop pass: the plant rolled forward
// from the planned controls, with no feedback correction applied.
type SimResult struct {
	Theta1, X1, Y1 []float64
	Theta0         []float64
	PX0, PY0       []float64

	// ArticulationError is planned minus simulated hitch angle per sample.
	ArticulationError    []float64
	MaxArticulationError float64
}

// Simulate steps the one-step integrator through the resampled control
// sequence. The first sample seeds the plant; every later state is purely
// integrated, so the result measures open-loop drift against the plan.
func Simulate(tr *result.Trajectory, rig physics.Rig, logger *zap.Logger) *SimResult {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := tr.Len()
	sim := physics.NewSimulator(rig)

	out := &SimResult{
		Theta1:            make([]float64, n),
		X1:                make([]float64, n),
		Y1:                make([]float64, n),
		Theta0:            make([]float64, n),
		PX0:               make([]float64, n),
		PY0:               make([]float64, n),
		ArticulationError: make([]float64, n),
	}

	x := physics.TowState{
		Theta1: tr.X.Theta1[0],
		X1:     tr.X.PX1[0],
		Y1:     tr.X.PY1[0],
		Theta0: tr.X.Theta0[0],
	}
	record := func(i int, x physics.TowState) {
		out.Theta1[i] = x.Theta1
		out.X1[i] = x.X1
		out.Y1[i] = x.Y1
		out.Theta0[i] = x.Theta0
		axle := sim.TruckAxle(x)
		out.PX0[i] = axle.X
		out.PY0[i] = axle.Y

		planned := tr.X.Theta0[i] - tr.X.Theta1[i]
		err := planned - x.Articulation()
		out.ArticulationError[i] = err
		if a := abs(err); a > out.MaxArticulationError {
			out.MaxArticulationError = a
		}
	}

	record(0, x)
	for k := 0; k < n-1; k++ {
		dt := tr.T[k+1] - tr.T[k]
		x = sim.Step(x, tr.U.Delta[k], tr.U.VL[k], dt)
		record(k+1, x)
	}

	logger.Info("closed-loop simulation finished",
		zap.Int("samples", n),
		zap.Float64("max_articulation_error", out.MaxArticulationError))
	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
