package ocp

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/interp"

	"truck-trailer-planner/internal/nlp"
)

// pin is the equality constraint z[idx] == val.
type pin struct {
	idx int
	val float64
}

// stitch links two adjacent stages at their junction.
type stitch struct {
	a, b *Stage
}

// Problem is a staged optimal-control problem. Stages are added in trajectory
// order; boundary pins and stitches are plain equality constraints on top of
// each stage's shooting defects.
type Problem struct {
	stages   []*Stage
	pins     []pin
	stitches []stitch
	dim      int
	logger   *zap.Logger
}

// NewProblem returns an empty problem. A nil logger is replaced by a no-op.
func NewProblem(logger *zap.Logger) *Problem {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Problem{logger: logger}
}

// AddStage appends a stage and assigns its slice of the decision vector.
func (p *Problem) AddStage(s *Stage) {
	s.offset = p.dim
	s.bound = true
	p.dim += s.dim()
	p.stages = append(p.stages, s)
}

// Stitch enforces trajectory continuity from a into b: a's final time equals
// b's start time, and the full state vector matches at the junction.
func (p *Problem) Stitch(a, b *Stage) error {
	if err := a.checkBound(); err != nil {
		return err
	}
	if err := b.checkBound(); err != nil {
		return err
	}
	if a.nx != b.nx {
		return fmt.Errorf("cannot stitch %q (%d states) to %q (%d states)", a.Name, a.nx, b.Name, b.nx)
	}
	p.stitches = append(p.stitches, stitch{a: a, b: b})
	return nil
}

// PinStartTime fixes a stage's start time.
func (p *Problem) PinStartTime(s *Stage, t0 float64) {
	p.pins = append(p.pins, pin{idx: s.t0Index(), val: t0})
}

// PinInitial fixes state component i at the stage's first shooting node.
func (p *Problem) PinInitial(s *Stage, i int, val float64) {
	p.pins = append(p.pins, pin{idx: s.stateIndex(0) + i, val: val})
}

// PinTerminal fixes state component i at the stage's last shooting node.
func (p *Problem) PinTerminal(s *Stage, i int, val float64) {
	p.pins = append(p.pins, pin{idx: s.stateIndex(s.N) + i, val: val})
}

// Dim is the length of the assembled decision vector.
func (p *Problem) Dim() int { return p.dim }

// eqDim counts defects, pins, and stitch equalities.
func (p *Problem) eqDim() int {
	n := len(p.pins)
	for _, s := range p.stages {
		n += s.N * s.nx
	}
	for _, st := range p.stitches {
		n += 1 + st.a.nx
	}
	return n
}

func (p *Problem) ineqDim() int {
	n := 0
	for _, s := range p.stages {
		n += (s.N + 1) * s.pathDim()
	}
	return n
}

// Build assembles the staged problem into a nonlinear program. The returned
// spec closes over the stages, so later stage mutation is undefined.
func (p *Problem) Build() nlp.Spec {
	lower := make([]float64, p.dim)
	upper := make([]float64, p.dim)
	for _, s := range p.stages {
		s.bounds(lower, upper)
	}

	stages := p.stages
	pins := p.pins
	stitches := p.stitches

	return nlp.Spec{
		Dim: p.dim,
		Objective: func(z []float64) float64 {
			v := 0.0
			for _, s := range stages {
				v += s.objective(z)
			}
			return v
		},
		EqDim: p.eqDim(),
		Equalities: func(dst, z []float64) {
			at := 0
			for _, s := range stages {
				s.defects(dst[at:at+s.N*s.nx], z)
				at += s.N * s.nx
			}
			for _, pn := range pins {
				dst[at] = z[pn.idx] - pn.val
				at++
			}
			for _, st := range stitches {
				_, atf := st.a.Times(z)
				bt0, _ := st.b.Times(z)
				dst[at] = bt0 - atf
				at++
				xa := st.a.StateAt(z, st.a.N)
				xb := st.b.StateAt(z, 0)
				for i := range xa {
					dst[at] = xb[i] - xa[i]
					at++
				}
			}
		},
		IneqDim: p.ineqDim(),
		Inequalities: func(dst, z []float64) {
			at := 0
			for _, s := range stages {
				d := (s.N + 1) * s.pathDim()
				s.pathValues(dst[at:at+d], z)
				at += d
			}
		},
		Lower: lower,
		Upper: upper,
	}
}

// SignalGuess seeds one state or control signal over a stage. A single value
// holds constant; longer series are treated as equally spaced over the stage
// horizon and interpolated piecewise linearly onto the shooting grid.
type SignalGuess []float64

// resample maps the guess onto n grid points.
func (g SignalGuess) resample(n int) ([]float64, error) {
	out := make([]float64, n)
	switch {
	case len(g) == 0:
		return out, nil
	case len(g) == 1:
		for i := range out {
			out[i] = g[0]
		}
		return out, nil
	case len(g) == n:
		copy(out, g)
		return out, nil
	}

	xs := make([]float64, len(g))
	for i := range xs {
		xs[i] = float64(i) / float64(len(g)-1)
	}
	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, g); err != nil {
		return nil, fmt.Errorf("interpolating guess: %w", err)
	}
	for i := range out {
		out[i] = pl.Predict(float64(i) / float64(n-1))
	}
	return out, nil
}

// StageGuess is the warm start for one stage, mirroring the parametric solve
// signature: a duration guess plus per-signal series on the control grid.
type StageGuess struct {
	T float64
	X []SignalGuess // length nx
	U []SignalGuess // length nu, optional
}

// RolloutGuess integrates the stage dynamics from x0 under the given
// per-interval controls with the stage's own fixed-step map, so the shooting
// defects of the resulting guess vanish by construction. u must hold N
// control vectors; a non-positive T falls back to the horizon guess.
func (s *Stage) RolloutGuess(x0 []float64, u [][]float64, T float64) StageGuess {
	if T <= 0 {
		T = s.tGuess
	}
	g := StageGuess{
		T: T,
		X: make([]SignalGuess, s.nx),
		U: make([]SignalGuess, s.nu),
	}
	for i := range g.X {
		g.X[i] = make(SignalGuess, s.N+1)
	}
	for i := range g.U {
		g.U[i] = make(SignalGuess, s.N)
	}

	x := append([]float64(nil), x0...)
	h := T / float64(s.N)
	for k := 0; ; k++ {
		for i := range g.X {
			g.X[i][k] = x[i]
		}
		if k == s.N {
			break
		}
		for i := range g.U {
			g.U[i][k] = u[k][i]
		}
		s.Propagate(x, x, u[k], h)
	}
	return g
}

// Terminal returns the guess's final node state, for chaining rollouts
// across stages.
func (g StageGuess) Terminal() []float64 {
	out := make([]float64, len(g.X))
	for i, sig := range g.X {
		out[i] = sig[len(sig)-1]
	}
	return out
}

// PackGuess assembles per-stage guesses into a full decision vector. Start
// times chain: each stage begins where the previous guess ends.
func (p *Problem) PackGuess(guesses []StageGuess) ([]float64, error) {
	if len(guesses) != len(p.stages) {
		return nil, fmt.Errorf("got %d stage guesses, want %d", len(guesses), len(p.stages))
	}

	z := make([]float64, p.dim)
	t0 := 0.0
	if len(p.stages) > 0 {
		t0 = p.stages[0].t0Guess
	}

	for si, s := range p.stages {
		g := guesses[si]
		if len(g.X) != s.nx {
			return nil, fmt.Errorf("stage %q: got %d state guesses, want %d", s.Name, len(g.X), s.nx)
		}
		if g.U != nil && len(g.U) != s.nu {
			return nil, fmt.Errorf("stage %q: got %d control guesses, want %d", s.Name, len(g.U), s.nu)
		}
		T := g.T
		if T <= 0 {
			T = s.tGuess
		}

		z[s.t0Index()] = t0
		z[s.tIndex()] = T

		for i, sig := range g.X {
			vals, err := sig.resample(s.N + 1)
			if err != nil {
				return nil, fmt.Errorf("stage %q state %d: %w", s.Name, i, err)
			}
			for k := 0; k <= s.N; k++ {
				z[s.stateIndex(k)+i] = vals[k]
			}
		}
		if g.U != nil {
			for i, sig := range g.U {
				vals, err := sig.resample(s.N)
				if err != nil {
					return nil, fmt.Errorf("stage %q control %d: %w", s.Name, i, err)
				}
				for k := 0; k < s.N; k++ {
					z[s.controlIndex(k)+i] = vals[k]
				}
			}
		}

		t0 += T
	}
	return z, nil
}

// Solve transcribes the problem and delegates to the nlp backend. The
// returned gist re-evaluates the optimum at arbitrary times via samplers.
func (p *Problem) Solve(ctx context.Context, z0 []float64, opts nlp.Options) (*Gist, error) {
	spec := p.Build()
	p.logger.Info("solving staged problem",
		zap.Int("stages", len(p.stages)),
		zap.Int("variables", spec.Dim),
		zap.Int("equalities", spec.EqDim),
		zap.Int("inequalities", spec.IneqDim))

	res, err := nlp.Solve(ctx, spec, z0, opts, p.logger)
	if err != nil {
		return nil, fmt.Errorf("solving staged problem: %w", err)
	}
	p.logger.Info("solve finished",
		zap.String("status", res.Status.String()),
		zap.Float64("objective", res.F),
		zap.Float64("eq_residual", res.EqResidual),
		zap.Float64("ineq_residual", res.IneqResidual),
		zap.Int("outer_iterations", res.Outer))

	return &Gist{Z: res.Z, Objective: res.F, Status: res.Status}, nil
}

// Gist is the opaque solution handle: the full optimized decision vector in
// problem layout. Samplers bound to it re-evaluate any stage signal at
// arbitrary time points.
type Gist struct {
	Z         []float64
	Objective float64
	Status    nlp.Status
}

// Times reads a stage's solved horizon out of the gist.
func (g *Gist) Times(s *Stage) (t0, tf float64) {
	return s.Times(g.Z)
}
