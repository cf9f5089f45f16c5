// Package planner formulates the two-stage truck-trailer corner maneuver as
// a staged optimal-control problem and drives it through the transcription
// and solve layers: an approach stage down the entry leg, a turn stage
// through the corner, stitched at a free junction time.
package planner

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"

	"truck-trailer-planner/internal/common"
	"truck-trailer-planner/internal/corridor"
	"truck-trailer-planner/internal/nlp"
	"truck-trailer-planner/internal/ocp"
	"truck-trailer-planner/internal/physics"
)

// Pose fixes the four pose states at a trajectory boundary. Steering and
// velocity stay free there.
type Pose struct {
	X1, Y1         float64
	Theta1, Theta0 float64
}

// Options tune the problem formulation. DefaultOptions reproduces the demo
// maneuver.
type Options struct {
	// Shooting grids and horizon guesses per stage.
	N1, M1 int
	T1     float64
	N2, M2 int
	T2     float64

	Start Pose
	Goal  Pose

	// Path bounds.
	MaxSpeed        float64
	MaxAccel        float64
	MaxSteer        float64
	MaxSteerRate    float64
	MaxArticulation float64

	// Rate regularization weight. Small enough to keep the minimum-time
	// character of the objective.
	ControlWeight float64

	Solver nlp.Options
}

// DefaultOptions is the stock corner maneuver for the given environment:
// start at the bottom of the entry leg facing up, end on the exit-leg
// centerline facing right.
func DefaultOptions(c corridor.Corner) Options {
	return Options{
		N1: 10, M1: 2, T1: 10,
		N2: 5, M2: 2, T2: 10,
		Start:           Pose{X1: 0, Y1: 0, Theta1: math.Pi / 2, Theta0: math.Pi / 2},
		Goal:            Pose{X1: 1.5, Y1: c.GoalY(), Theta1: 0, Theta0: 0},
		MaxSpeed:        0.2,
		MaxAccel:        1,
		MaxSteer:        math.Pi / 6,
		MaxSteerRate:    math.Pi / 10,
		MaxArticulation: math.Pi / 2,
		ControlWeight:   1e-3,
		Solver: nlp.Options{
			Tol:           1e-4,
			MaxOuter:      150,
			SubIterations: 2500,
			RaiseOnFail:   true,
		},
	}
}

// Planner holds the assembled two-stage problem.
type Planner struct {
	rig    physics.Rig
	corner corridor.Corner
	opts   Options
	logger *zap.Logger

	problem  *ocp.Problem
	approach *ocp.Stage
	turn     *ocp.Stage
}

// New assembles the corner problem: two stages with their corridor triples,
// the junction stitch, the pinned start pose and time, and the pinned goal
// pose. A nil logger is replaced by a no-op.
func New(params physics.Params, c corridor.Corner, opts Options, logger *zap.Logger) (*Planner, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Planner{
		rig:     physics.NewRig(params),
		corner:  c,
		opts:    opts,
		logger:  logger,
		problem: ocp.NewProblem(logger),
	}

	p.approach = p.buildStage("approach", c.EntryRegion(), opts.N1, opts.M1, 0, opts.T1)
	p.turn = p.buildStage("turn", c.ExitRegion(), opts.N2, opts.M2, opts.T1, opts.T2)
	p.problem.AddStage(p.approach)
	p.problem.AddStage(p.turn)
	if err := p.problem.Stitch(p.approach, p.turn); err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	p.problem.PinStartTime(p.approach, 0)
	p.problem.PinInitial(p.approach, physics.SX1, opts.Start.X1)
	p.problem.PinInitial(p.approach, physics.SY1, opts.Start.Y1)
	p.problem.PinInitial(p.approach, physics.STheta1, opts.Start.Theta1)
	p.problem.PinInitial(p.approach, physics.STheta0, opts.Start.Theta0)

	p.problem.PinTerminal(p.turn, physics.SX1, opts.Goal.X1)
	p.problem.PinTerminal(p.turn, physics.SY1, opts.Goal.Y1)
	p.problem.PinTerminal(p.turn, physics.STheta1, opts.Goal.Theta1)
	p.problem.PinTerminal(p.turn, physics.STheta0, opts.Goal.Theta0)

	return p, nil
}

// buildStage declares one stage: kinematics, box bounds on the first-order
// controls and their rates, the articulation band, and containment of both
// footprints in the stage's corridor.
func (p *Planner) buildStage(name string, region corridor.Region, n, m int, t0, t float64) *ocp.Stage {
	s := ocp.NewStage(name, p.rig, n, m)
	s.SetHorizonGuess(t0, t)
	s.SetStateBounds(physics.SDelta0, -p.opts.MaxSteer, p.opts.MaxSteer)
	s.SetStateBounds(physics.SV0, -p.opts.MaxSpeed, p.opts.MaxSpeed)
	s.SetControlBounds(physics.UDeltaRate, -p.opts.MaxSteerRate, p.opts.MaxSteerRate)
	s.SetControlBounds(physics.UAccel, -p.opts.MaxAccel, p.opts.MaxAccel)
	s.SetControlWeight(p.opts.ControlWeight)

	maxBeta := p.opts.MaxArticulation
	s.AddPathConstraint(2, func(dst, x []float64) {
		beta := physics.Articulation(x)
		dst[0] = beta - maxBeta
		dst[1] = -beta - maxBeta
	})

	// Corridor containment: every corner of both footprints on the legal
	// side of every stage half-plane.
	rig := p.rig
	s.AddPathConstraint(len(region)*8, func(dst, x []float64) {
		at := 0
		truck := rig.TruckFootprint(x)
		trailer := rig.TrailerFootprint(x)
		for _, h := range region {
			for _, c := range truck {
				dst[at] = h.Eval(c)
				at++
			}
			for _, c := range trailer {
				dst[at] = h.Eval(c)
				at++
			}
		}
	})

	return s
}

// DefaultGuess seeds the solve with a forward rollout of the model, so the
// shooting defects of the seed vanish and the solver starts from a
// dynamically consistent trajectory: creep up the entry leg at half the speed
// cap, then swing the steering to its stop and back through the corner.
func (p *Planner) DefaultGuess() []ocp.StageGuess {
	start := p.opts.Start
	x0 := make([]float64, physics.NumStates)
	x0[physics.STheta1] = start.Theta1
	x0[physics.SX1] = start.X1
	x0[physics.SY1] = start.Y1
	x0[physics.STheta0] = start.Theta0
	x0[physics.SV0] = p.opts.MaxSpeed / 2

	u1 := make([][]float64, p.opts.N1)
	for k := range u1 {
		u1[k] = make([]float64, physics.NumControls)
	}
	g1 := p.approach.RolloutGuess(x0, u1, p.opts.T1)

	// Ramp the steering to its stop over the first interval, hold, release
	// over the last. The swing sign follows the commanded heading change.
	dt := p.opts.T2 / float64(p.opts.N2)
	rate := common.Clamp(p.opts.MaxSteer/dt, 0, p.opts.MaxSteerRate)
	swing := common.WrapAngle(p.opts.Goal.Theta0 - start.Theta0)
	if swing < 0 {
		rate = -rate
	}
	u2 := make([][]float64, p.opts.N2)
	for k := range u2 {
		u2[k] = make([]float64, physics.NumControls)
	}
	u2[0][physics.UDeltaRate] = rate
	u2[p.opts.N2-1][physics.UDeltaRate] = -rate
	g2 := p.turn.RolloutGuess(g1.Terminal(), u2, p.opts.T2)

	return []ocp.StageGuess{g1, g2}
}

// Solution is a solved maneuver: the junction and end times, the opaque
// solution handle, and per-stage samplers bound to it.
type Solution struct {
	T1, T2 float64
	Gist   *ocp.Gist

	Approach *ocp.Sampler
	Turn     *ocp.Sampler

	rig physics.Rig
}

// Solve packs the guess, delegates to the NLP backend, and binds samplers to
// the solution. Non-convergence surfaces as an error when the solver options
// say so.
func (p *Planner) Solve(ctx context.Context, guess []ocp.StageGuess) (*Solution, error) {
	if guess == nil {
		guess = p.DefaultGuess()
	}
	z0, err := p.problem.PackGuess(guess)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	gist, err := p.problem.Solve(ctx, z0, p.opts.Solver)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}

	sol, err := p.bind(gist)
	if err != nil {
		return nil, err
	}
	p.logger.Info("maneuver planned",
		zap.Float64("junction_time", sol.T1),
		zap.Float64("total_time", sol.T2))
	return sol, nil
}

// bind wraps a gist in samplers. Split out so tests can drive hand-built
// decision vectors through the sampling path.
func (p *Planner) bind(gist *ocp.Gist) (*Solution, error) {
	s1, err := ocp.NewSampler(p.approach, gist)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	s2, err := ocp.NewSampler(p.turn, gist)
	if err != nil {
		return nil, fmt.Errorf("planner: %w", err)
	}
	_, t1 := s1.Times()
	_, t2 := s2.Times()
	return &Solution{T1: t1, T2: t2, Gist: gist, Approach: s1, Turn: s2, rig: p.rig}, nil
}

// Rig exposes the kinematic model used in the formulation.
func (p *Planner) Rig() physics.Rig { return p.rig }

// Corner exposes the environment.
func (p *Planner) Corner() corridor.Corner { return p.corner }
