// Package nlp solves smooth nonlinear programs with equality and inequality
// constraints. The numerical core is delegated: each subproblem is minimized
// by gonum's L-BFGS, and this package only contributes the
// augmented-Lagrangian outer loop that folds the constraints into the
// subproblem objective and drives the multipliers to convergence. Subproblem
// gradients are assembled from finite-difference Jacobians of the objective
// and the raw constraint blocks; differencing the penalized scalar directly
// would lose the gradient in roundoff once the penalty grows.
package nlp

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

var (
	// ErrInfeasible is returned when the penalty has hit its cap and the
	// constraint residual stopped improving.
	ErrInfeasible = errors.New("nlp: problem appears infeasible")

	// ErrMaxIterations is returned when the outer loop runs out of
	// iterations before the residuals reach tolerance.
	ErrMaxIterations = errors.New("nlp: maximum outer iterations reached")
)

// Spec is a nonlinear program
//
//	min  f(z)
//	s.t. ce(z) = 0, ci(z) <= 0, lo <= z <= hi.
type Spec struct {
	Dim int

	Objective func(z []float64) float64

	// EqDim equality constraints written into dst by Equalities.
	EqDim      int
	Equalities func(dst, z []float64)

	// IneqDim inequality constraints, satisfied when <= 0.
	IneqDim      int
	Inequalities func(dst, z []float64)

	// Variable bounds. Nil means unbounded; individual entries may be
	// +-Inf. Bounds are enforced the same way as inequalities.
	Lower, Upper []float64
}

// Options tune the outer loop. Zero values fall back to defaults.
type Options struct {
	Tol            float64 // residual tolerance, default 1e-6
	MaxOuter       int     // outer iterations, default 60
	SubIterations  int     // L-BFGS iteration cap per subproblem, default 400
	InitialPenalty float64 // default 10
	MaxPenalty     float64 // default 1e8
	PenaltyGrowth  float64 // default 10
	RaiseOnFail    bool    // return an error instead of a best-effort result
}

func (o Options) withDefaults() Options {
	if o.Tol <= 0 {
		o.Tol = 1e-6
	}
	if o.MaxOuter <= 0 {
		o.MaxOuter = 60
	}
	if o.SubIterations <= 0 {
		o.SubIterations = 400
	}
	if o.InitialPenalty <= 0 {
		o.InitialPenalty = 10
	}
	if o.MaxPenalty <= 0 {
		o.MaxPenalty = 1e8
	}
	if o.PenaltyGrowth <= 1 {
		o.PenaltyGrowth = 10
	}
	return o
}

// Status reports how a solve ended.
type Status int

const (
	Failure Status = iota
	Optimal
	MaxIterations
	Infeasible
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case MaxIterations:
		return "max iterations"
	case Infeasible:
		return "infeasible"
	default:
		return "failure"
	}
}

// Result carries the final iterate and convergence diagnostics.
type Result struct {
	Z      []float64
	F      float64
	Status Status

	EqResidual   float64 // max |ce|
	IneqResidual float64 // max(0, ci) including bound violations
	Outer        int     // outer iterations performed

	EqMultipliers   []float64
	IneqMultipliers []float64
}

// alTerm is the Rockafellar inequality contribution for one constraint
// value g with multiplier lam: (max(0, lam + mu*g)^2 - lam^2) / (2 mu).
func alTerm(lam, g, mu float64) float64 {
	t := lam + mu*g
	if t > 0 {
		return (t*t - lam*lam) / (2 * mu)
	}
	return -lam * lam / (2 * mu)
}

// lagrangian evaluates the augmented Lagrangian and its gradient at z,
// reusing the scratch buffers for constraint values and Jacobians.
type lagrangian struct {
	spec Spec
	mu   float64

	lamEq   []float64
	lamIneq []float64
	lamLo   []float64 // lower-bound multipliers, nil without bounds
	lamHi   []float64

	ce []float64
	ci []float64

	jacEq   *mat.Dense
	jacIneq *mat.Dense

	grads *fd.Settings
	jacs  *fd.JacobianSettings
}

func newLagrangian(spec Spec, mu float64) *lagrangian {
	l := &lagrangian{
		spec:    spec,
		mu:      mu,
		lamEq:   make([]float64, spec.EqDim),
		lamIneq: make([]float64, spec.IneqDim),
		ce:      make([]float64, spec.EqDim),
		ci:      make([]float64, spec.IneqDim),
		grads:   &fd.Settings{Formula: fd.Central},
		jacs:    &fd.JacobianSettings{Formula: fd.Central},
	}
	if spec.EqDim > 0 {
		l.jacEq = mat.NewDense(spec.EqDim, spec.Dim, nil)
	}
	if spec.IneqDim > 0 {
		l.jacIneq = mat.NewDense(spec.IneqDim, spec.Dim, nil)
	}
	if spec.Lower != nil {
		l.lamLo = make([]float64, spec.Dim)
	}
	if spec.Upper != nil {
		l.lamHi = make([]float64, spec.Dim)
	}
	return l
}

func (l *lagrangian) value(z []float64) float64 {
	v := l.spec.Objective(z)
	if l.spec.EqDim > 0 {
		l.spec.Equalities(l.ce, z)
		for i, c := range l.ce {
			v += l.lamEq[i]*c + 0.5*l.mu*c*c
		}
	}
	if l.spec.IneqDim > 0 {
		l.spec.Inequalities(l.ci, z)
		for i, g := range l.ci {
			v += alTerm(l.lamIneq[i], g, l.mu)
		}
	}
	if l.lamLo != nil {
		for i, lo := range l.spec.Lower {
			if !math.IsInf(lo, -1) {
				v += alTerm(l.lamLo[i], lo-z[i], l.mu)
			}
		}
	}
	if l.lamHi != nil {
		for i, hi := range l.spec.Upper {
			if !math.IsInf(hi, 1) {
				v += alTerm(l.lamHi[i], z[i]-hi, l.mu)
			}
		}
	}
	return v
}

// grad writes the augmented-Lagrangian gradient into dst. The objective and
// constraint blocks are differenced separately and combined with the exact
// multiplier weights, so the accuracy does not degrade with the penalty.
// Bound rows have unit Jacobians and are folded in analytically.
func (l *lagrangian) grad(dst, z []float64) {
	fd.Gradient(dst, l.spec.Objective, z, l.grads)

	if l.spec.EqDim > 0 {
		fd.Jacobian(l.jacEq, l.spec.Equalities, z, l.jacs)
		l.spec.Equalities(l.ce, z)
		for i, c := range l.ce {
			floats.AddScaled(dst, l.lamEq[i]+l.mu*c, l.jacEq.RawRowView(i))
		}
	}
	if l.spec.IneqDim > 0 {
		fd.Jacobian(l.jacIneq, l.spec.Inequalities, z, l.jacs)
		l.spec.Inequalities(l.ci, z)
		for i, g := range l.ci {
			if w := l.lamIneq[i] + l.mu*g; w > 0 {
				floats.AddScaled(dst, w, l.jacIneq.RawRowView(i))
			}
		}
	}
	if l.lamLo != nil {
		for i, lo := range l.spec.Lower {
			if math.IsInf(lo, -1) {
				continue
			}
			if w := l.lamLo[i] + l.mu*(lo-z[i]); w > 0 {
				dst[i] -= w
			}
		}
	}
	if l.lamHi != nil {
		for i, hi := range l.spec.Upper {
			if math.IsInf(hi, 1) {
				continue
			}
			if w := l.lamHi[i] + l.mu*(z[i]-hi); w > 0 {
				dst[i] += w
			}
		}
	}
}

// residuals returns the feasibility measures at z.
func (l *lagrangian) residuals(z []float64) (eq, ineq float64) {
	if l.spec.EqDim > 0 {
		l.spec.Equalities(l.ce, z)
		eq = floats.Norm(l.ce, math.Inf(1))
	}
	if l.spec.IneqDim > 0 {
		l.spec.Inequalities(l.ci, z)
		for _, g := range l.ci {
			if g > ineq {
				ineq = g
			}
		}
	}
	if l.lamLo != nil {
		for i, lo := range l.spec.Lower {
			if g := lo - z[i]; !math.IsInf(lo, -1) && g > ineq {
				ineq = g
			}
		}
	}
	if l.lamHi != nil {
		for i, hi := range l.spec.Upper {
			if g := z[i] - hi; !math.IsInf(hi, 1) && g > ineq {
				ineq = g
			}
		}
	}
	return eq, ineq
}

// update performs the first-order multiplier update at z.
func (l *lagrangian) update(z []float64) {
	if l.spec.EqDim > 0 {
		l.spec.Equalities(l.ce, z)
		for i, c := range l.ce {
			l.lamEq[i] += l.mu * c
		}
	}
	if l.spec.IneqDim > 0 {
		l.spec.Inequalities(l.ci, z)
		for i, g := range l.ci {
			l.lamIneq[i] = math.Max(0, l.lamIneq[i]+l.mu*g)
		}
	}
	if l.lamLo != nil {
		for i, lo := range l.spec.Lower {
			if !math.IsInf(lo, -1) {
				l.lamLo[i] = math.Max(0, l.lamLo[i]+l.mu*(lo-z[i]))
			}
		}
	}
	if l.lamHi != nil {
		for i, hi := range l.spec.Upper {
			if !math.IsInf(hi, 1) {
				l.lamHi[i] = math.Max(0, l.lamHi[i]+l.mu*(z[i]-hi))
			}
		}
	}
}

// Solve minimizes spec starting from z0. The context is checked between
// outer iterations; cancellation abandons the solve with the context error.
func Solve(ctx context.Context, spec Spec, z0 []float64, opts Options, logger *zap.Logger) (Result, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(z0) != spec.Dim {
		return Result{}, fmt.Errorf("nlp: guess dimension %d, want %d", len(z0), spec.Dim)
	}
	opts = opts.withDefaults()

	lag := newLagrangian(spec, opts.InitialPenalty)
	z := append([]float64(nil), z0...)
	bestRes := math.Inf(1)

	res := Result{Status: Failure}
	for outer := 1; outer <= opts.MaxOuter; outer++ {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("nlp: solve abandoned: %w", err)
		}

		problem := optimize.Problem{
			Func: lag.value,
			Grad: lag.grad,
		}
		settings := &optimize.Settings{
			MajorIterations:   opts.SubIterations,
			GradientThreshold: opts.Tol,
			Converger:         &optimize.FunctionConverge{Absolute: 1e-12, Iterations: 100},
		}

		sub, err := optimize.Minimize(problem, z, settings, &optimize.LBFGS{})
		if err != nil && sub == nil {
			return res, fmt.Errorf("nlp: subproblem failed: %w", err)
		}
		// Linesearch stalls still return an iterate; keep going with it.
		copy(z, sub.X)

		eqRes, ineqRes := lag.residuals(z)
		worst := math.Max(eqRes, ineqRes)

		logger.Debug("outer iteration",
			zap.Int("outer", outer),
			zap.Float64("objective", spec.Objective(z)),
			zap.Float64("eq_residual", eqRes),
			zap.Float64("ineq_residual", ineqRes),
			zap.Float64("penalty", lag.mu))

		res = Result{
			Z:               append([]float64(nil), z...),
			F:               spec.Objective(z),
			EqResidual:      eqRes,
			IneqResidual:    ineqRes,
			Outer:           outer,
			EqMultipliers:   append([]float64(nil), lag.lamEq...),
			IneqMultipliers: append([]float64(nil), lag.lamIneq...),
		}

		if worst <= opts.Tol {
			res.Status = Optimal
			return res, nil
		}

		lag.update(z)
		if worst > 0.5*bestRes {
			// Residual is not shrinking fast enough; tighten the penalty.
			if lag.mu >= opts.MaxPenalty {
				res.Status = Infeasible
				if opts.RaiseOnFail {
					return res, fmt.Errorf("residual %.3g at penalty cap: %w", worst, ErrInfeasible)
				}
				return res, nil
			}
			lag.mu = math.Min(lag.mu*opts.PenaltyGrowth, opts.MaxPenalty)
		}
		if worst < bestRes {
			bestRes = worst
		}
	}

	res.Status = MaxIterations
	if opts.RaiseOnFail {
		return res, fmt.Errorf("residual %.3g after %d iterations: %w",
			math.Max(res.EqResidual, res.IneqResidual), opts.MaxOuter, ErrMaxIterations)
	}
	return res, nil
}
