package planner

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truck-trailer-planner/internal/corridor"
	"truck-trailer-planner/internal/ocp"
	"truck-trailer-planner/internal/physics"
	"truck-trailer-planner/internal/result"
)

func testPlanner(t *testing.T) *Planner {
	t.Helper()
	c := corridor.DefaultCorner()
	p, err := New(physics.DefaultParams(), c, DefaultOptions(c), nil)
	require.NoError(t, err)
	return p
}

func TestNewRejectsBadParams(t *testing.T) {
	params := physics.DefaultParams()
	params.Truck.L = 0
	c := corridor.DefaultCorner()
	_, err := New(params, c, DefaultOptions(c), nil)
	assert.Error(t, err)
}

func TestDefaultGuessPacks(t *testing.T) {
	p := testPlanner(t)

	z, err := p.problem.PackGuess(p.DefaultGuess())
	require.NoError(t, err)
	require.Len(t, z, p.problem.Dim())

	// The seed starts at the start pose and creeps up the entry leg.
	assert.InDelta(t, 0.1, p.approach.StateAt(z, 0)[physics.SV0], 1e-12)
	assert.InDelta(t, math.Pi/2, p.approach.StateAt(z, 0)[physics.STheta1], 1e-12)
	assert.InDelta(t, 0, p.approach.StateAt(z, 0)[physics.SY1], 1e-12)
	assert.InDelta(t, 1.0, p.approach.StateAt(z, p.approach.N)[physics.SY1], 1e-9)

	// The turn swings right: the steering guess sits on its stop after the
	// first interval and is released again at the end.
	assert.InDelta(t, -math.Pi/6, p.turn.StateAt(z, 1)[physics.SDelta0], 1e-9)
	assert.InDelta(t, 0, p.turn.StateAt(z, p.turn.N)[physics.SDelta0], 1e-9)
	assert.Less(t, p.turn.StateAt(z, p.turn.N)[physics.STheta0], math.Pi/2)

	// The rollout seed is dynamically consistent: every shooting defect,
	// the start-pose pins, and the junction stitch are already satisfied.
	// Only the four terminal pins carry residual.
	spec := p.problem.Build()
	dst := make([]float64, spec.EqDim)
	spec.Equalities(dst, z)
	nx := physics.NumStates
	nDefect := (p.approach.N + p.turn.N) * nx
	for i := 0; i < nDefect+5; i++ {
		assert.InDelta(t, 0, dst[i], 1e-9, "equality %d", i)
	}
	for i := nDefect + 9; i < spec.EqDim; i++ {
		assert.InDelta(t, 0, dst[i], 1e-9, "equality %d", i)
	}
}

// The corridor path constraint must hold (<= 0) for poses inside the legal
// region and flag poses that poke a footprint corner through a wall.
func TestCorridorPathConstraint(t *testing.T) {
	p := testPlanner(t)

	spec := p.problem.Build()
	z, err := p.problem.PackGuess(p.DefaultGuess())
	require.NoError(t, err)

	// The default guess keeps the rig clear of the entry-leg walls; every
	// inequality at node 0 (articulation band + 3 planes x 8 corners)
	// should be satisfied.
	dst := make([]float64, spec.IneqDim)
	spec.Inequalities(dst, z)
	perNode := 2 + 3*8
	for i := 0; i < perNode; i++ {
		assert.LessOrEqual(t, dst[i], 0.0, "inequality %d", i)
	}

	// Shove the trailer through the right wall and the same block must go
	// positive somewhere.
	p.approach.StateAt(z, 0)[physics.SX1] = 1.5
	spec.Inequalities(dst, z)
	worst := 0.0
	for i := 0; i < perNode; i++ {
		if dst[i] > worst {
			worst = dst[i]
		}
	}
	assert.Greater(t, worst, 0.0)
}

// The stock corner maneuver solved end to end: the turn picks up exactly
// where the approach ends, the goal pose is reached, and every resampled
// footprint corner stays inside its corridor region.
func TestSolveCornerManeuver(t *testing.T) {
	if testing.Short() {
		t.Skip("full corner solve")
	}

	c := corridor.DefaultCorner()
	opts := DefaultOptions(c)
	p, err := New(physics.DefaultParams(), c, opts, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	sol, err := p.Solve(ctx, nil)
	require.NoError(t, err)

	assert.Greater(t, sol.T1, 0.0)
	assert.Greater(t, sol.T2, sol.T1)

	// Junction continuity across the stitch.
	junction := sol.Approach.NodeStates()
	handoff := sol.Turn.NodeStates()
	for i, v := range junction[len(junction)-1] {
		assert.InDelta(t, v, handoff[0][i], 1e-3, "state %d", i)
	}

	// Terminal pose.
	end := handoff[len(handoff)-1]
	assert.InDelta(t, opts.Goal.X1, end[physics.SX1], 1e-3)
	assert.InDelta(t, opts.Goal.Y1, end[physics.SY1], 1e-3)
	assert.InDelta(t, opts.Goal.Theta1, end[physics.STheta1], 1e-3)
	assert.InDelta(t, opts.Goal.Theta0, end[physics.STheta0], 1e-3)

	// Corridor containment on the resampled grid. Between shooting nodes
	// nothing is imposed, so allow a small corner-cutting slack.
	tr, err := sol.Resample(0.1)
	require.NoError(t, err)
	assert.Less(t, CorridorViolation(tr, p.Rig(), c, sol.T1), 0.02)
}

func TestResampleTimeline(t *testing.T) {
	p := testPlanner(t)

	// The packed default guess chains the stage horizons: approach
	// [0, 10), turn [10, 20). Samplers integrate it like any solution.
	z, err := p.problem.PackGuess(p.DefaultGuess())
	require.NoError(t, err)
	sol, err := p.bind(&ocp.Gist{Z: z})
	require.NoError(t, err)
	assert.InDelta(t, 10, sol.T1, 1e-12)
	assert.InDelta(t, 20, sol.T2, 1e-12)

	tr, err := sol.Resample(0.5)
	require.NoError(t, err)
	require.NoError(t, tr.Validate())

	assert.InDelta(t, 0, tr.T[0], 1e-12)
	for i := 1; i < tr.Len(); i++ {
		assert.Greater(t, tr.T[i], tr.T[i-1])
	}
	// Half-open timeline: [0, t2) at step Ts.
	assert.Equal(t, 40, tr.Len())
	assert.Less(t, tr.T[tr.Len()-1], sol.T2)

	// Truck pose columns are consistent with the rig geometry.
	rig := p.Rig()
	for i := 0; i < tr.Len(); i += 7 {
		x := make([]float64, rig.StateDim())
		x[physics.SX1] = tr.X.PX1[i]
		x[physics.SY1] = tr.X.PY1[i]
		x[physics.STheta1] = tr.X.Theta1[i]
		x[physics.STheta0] = tr.X.Theta0[i]
		axle := rig.TruckAxle(x)
		assert.InDelta(t, axle.X, tr.X.PX0[i], 1e-9)
		assert.InDelta(t, axle.Y, tr.X.PY0[i], 1e-9)
	}
}

func TestResampleRejectsBadStep(t *testing.T) {
	p := testPlanner(t)
	z, err := p.problem.PackGuess(p.DefaultGuess())
	require.NoError(t, err)
	sol, err := p.bind(&ocp.Gist{Z: z})
	require.NoError(t, err)

	_, err = sol.Resample(0)
	assert.Error(t, err)
}

// trajectoryAt builds a one-sample trajectory with the rig at the given
// trailer pose, both headings aligned.
func trajectoryAt(rig physics.Rig, x1, y1, theta float64) *result.Trajectory {
	x := make([]float64, rig.StateDim())
	x[physics.SX1] = x1
	x[physics.SY1] = y1
	x[physics.STheta1] = theta
	x[physics.STheta0] = theta
	axle := rig.TruckAxle(x)
	return &result.Trajectory{
		X: result.Signals{
			PX1:    []float64{x1},
			PY1:    []float64{y1},
			Theta1: []float64{theta},
			PX0:    []float64{axle.X},
			PY0:    []float64{axle.Y},
			Theta0: []float64{theta},
		},
		U: result.Controls{Delta: []float64{0}, VL: []float64{0}},
		T: []float64{0},
	}
}

func TestCorridorViolation(t *testing.T) {
	rig := physics.NewRig(physics.DefaultParams())
	c := corridor.DefaultCorner()

	inside := trajectoryAt(rig, 0, 0.5, math.Pi/2)
	assert.LessOrEqual(t, CorridorViolation(inside, rig, c, 10), 0.0)

	// Trailer axle on the right wall: half the body width sticks out.
	onWall := trajectoryAt(rig, 0.5, 0.5, math.Pi/2)
	assert.InDelta(t, rig.Trailer.W/2, CorridorViolation(onWall, rig, c, 10), 1e-9)
}

// Driving straight up the entry leg at constant speed is reproduced exactly
// by the plant, so the open-loop drift and articulation error stay at noise
// level.
func TestSimulateStraightPlan(t *testing.T) {
	rig := physics.NewRig(physics.DefaultParams())

	n := 21
	ts := 0.1
	tr := &result.Trajectory{
		X: result.Signals{
			PX1:    make([]float64, n),
			PY1:    make([]float64, n),
			Theta1: make([]float64, n),
			PX0:    make([]float64, n),
			PY0:    make([]float64, n),
			Theta0: make([]float64, n),
		},
		U: result.Controls{Delta: make([]float64, n), VL: make([]float64, n)},
		T: make([]float64, n),
	}
	for i := 0; i < n; i++ {
		tr.T[i] = float64(i) * ts
		tr.X.PY1[i] = 0.1 * tr.T[i]
		tr.X.Theta1[i] = math.Pi / 2
		tr.X.Theta0[i] = math.Pi / 2
		tr.X.PX0[i] = 0
		tr.X.PY0[i] = tr.X.PY1[i] + rig.Trailer.L + rig.Truck.M
		tr.U.VL[i] = 0.1
	}

	sim := Simulate(tr, rig, nil)
	require.Len(t, sim.Y1, n)

	// Seeded from the first sample.
	assert.Equal(t, tr.X.PY1[0], sim.Y1[0])

	for i := 0; i < n; i++ {
		assert.InDelta(t, tr.X.PY1[i], sim.Y1[i], 1e-9, "sample %d", i)
		assert.InDelta(t, 0, sim.ArticulationError[i], 1e-9)
	}
	assert.Less(t, sim.MaxArticulationError, 1e-9)
}

// A steered plan the trajectory does not follow leaves a bounded, nonzero
// articulation error: the diagnostic signal the simulator exists for.
func TestSimulateReportsDrift(t *testing.T) {
	rig := physics.NewRig(physics.DefaultParams())

	base := trajectoryAt(rig, 0, 0, math.Pi/2)
	tr := &result.Trajectory{
		X: result.Signals{
			PX1:    []float64{0, 0},
			PY1:    []float64{0, 0.01},
			Theta1: []float64{math.Pi / 2, math.Pi / 2},
			PX0:    []float64{base.X.PX0[0], base.X.PX0[0]},
			PY0:    []float64{base.X.PY0[0], base.X.PY0[0] + 0.01},
			Theta0: []float64{math.Pi / 2, math.Pi / 2},
		},
		U: result.Controls{Delta: []float64{0.3, 0.3}, VL: []float64{0.1, 0.1}},
		T: []float64{0, 0.1},
	}

	sim := Simulate(tr, rig, nil)
	assert.Greater(t, sim.MaxArticulationError, 0.0)
	assert.Less(t, sim.MaxArticulationError, 0.1)

	// Check vec2 plumbing: truck axle derived from the simulated pose.
	x := physics.TowState{Theta1: sim.Theta1[1], X1: sim.X1[1], Y1: sim.Y1[1], Theta0: sim.Theta0[1]}
	axle := physics.NewSimulator(rig).TruckAxle(x)
	assert.InDelta(t, axle.X, sim.PX0[1], 1e-12)
	assert.InDelta(t, axle.Y, sim.PY0[1], 1e-12)
}
