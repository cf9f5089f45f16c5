// Package ocp transcribes staged optimal-control problems into nonlinear
// programs. A Stage is one phase of the trajectory with a free start time and
// duration, discretized by fixed-step multiple shooting; a Problem stitches
// stages together and hands the assembled program to the nlp package.
package ocp

import (
	"fmt"
	"math"
)

// Dynamics is a first-order ODE model x' = f(x, u).
type Dynamics interface {
	StateDim() int
	ControlDim() int
	Derivative(dst, x, u []float64)
}

// pathConstraint is an inequality g(x) <= 0 imposed at every shooting node.
type pathConstraint struct {
	dim int
	f   func(dst, x []float64)
}

// Stage is one phase of the trajectory. Its slice of the decision vector is
// laid out as [t0, T, X0..XN, U0..UN-1]: free start time, free duration, the
// state at each shooting node, and the piecewise-constant control on each
// shooting interval.
type Stage struct {
	Name string

	// Shooting grid: N intervals, M integrator substeps per interval.
	N, M int

	dyn    Dynamics
	nx, nu int

	t0Guess     float64
	tGuess      float64
	minDuration float64

	stateLo, stateHi []float64
	ctrlLo, ctrlHi   []float64
	paths            []pathConstraint

	timeWeight float64
	ctrlWeight float64

	offset int // assigned by Problem.AddStage
	bound  bool
}

// NewStage builds a stage over dyn with n shooting intervals and m RK4
// substeps per interval. States and controls start unbounded.
func NewStage(name string, dyn Dynamics, n, m int) *Stage {
	nx, nu := dyn.StateDim(), dyn.ControlDim()
	s := &Stage{
		Name:        name,
		N:           n,
		M:           m,
		dyn:         dyn,
		nx:          nx,
		nu:          nu,
		tGuess:      1,
		minDuration: 1e-2,
		timeWeight:  1,
		stateLo:     make([]float64, nx),
		stateHi:     make([]float64, nx),
		ctrlLo:      make([]float64, nu),
		ctrlHi:      make([]float64, nu),
	}
	for i := range s.stateLo {
		s.stateLo[i] = math.Inf(-1)
		s.stateHi[i] = math.Inf(1)
	}
	for i := range s.ctrlLo {
		s.ctrlLo[i] = math.Inf(-1)
		s.ctrlHi[i] = math.Inf(1)
	}
	return s
}

// SetHorizonGuess seeds the free start time and duration.
func (s *Stage) SetHorizonGuess(t0, t float64) {
	s.t0Guess = t0
	s.tGuess = t
}

// SetStateBounds boxes state component i at every shooting node.
func (s *Stage) SetStateBounds(i int, lo, hi float64) {
	s.stateLo[i] = lo
	s.stateHi[i] = hi
}

// SetControlBounds boxes control component i on every shooting interval.
func (s *Stage) SetControlBounds(i int, lo, hi float64) {
	s.ctrlLo[i] = lo
	s.ctrlHi[i] = hi
}

// AddPathConstraint imposes g(x) <= 0 (componentwise, dim entries) at every
// shooting node including the terminal one.
func (s *Stage) AddPathConstraint(dim int, f func(dst, x []float64)) {
	s.paths = append(s.paths, pathConstraint{dim: dim, f: f})
}

// SetTimeWeight scales the stage's duration term in the objective.
// The default weight of 1 gives a plain minimum-time stage.
func (s *Stage) SetTimeWeight(w float64) { s.timeWeight = w }

// SetControlWeight adds w*|u|^2 regularization over the shooting intervals.
func (s *Stage) SetControlWeight(w float64) { s.ctrlWeight = w }

// SetMinDuration keeps the free duration away from zero.
func (s *Stage) SetMinDuration(d float64) { s.minDuration = d }

func (s *Stage) StateDim() int   { return s.nx }
func (s *Stage) ControlDim() int { return s.nu }

// dim is the stage's share of the decision vector.
func (s *Stage) dim() int {
	return 2 + (s.N+1)*s.nx + s.N*s.nu
}

func (s *Stage) t0Index() int { return s.offset }
func (s *Stage) tIndex() int  { return s.offset + 1 }

func (s *Stage) stateIndex(k int) int {
	return s.offset + 2 + k*s.nx
}

func (s *Stage) controlIndex(k int) int {
	return s.offset + 2 + (s.N+1)*s.nx + k*s.nu
}

// StateAt views the node-k state block of a decision vector.
func (s *Stage) StateAt(z []float64, k int) []float64 {
	i := s.stateIndex(k)
	return z[i : i+s.nx]
}

// ControlAt views the interval-k control block of a decision vector.
func (s *Stage) ControlAt(z []float64, k int) []float64 {
	i := s.controlIndex(k)
	return z[i : i+s.nu]
}

// Times reads the stage's start and end time from a decision vector.
func (s *Stage) Times(z []float64) (t0, tf float64) {
	return z[s.t0Index()], z[s.t0Index()] + z[s.tIndex()]
}

// pathDim is the total inequality count contributed per shooting node.
func (s *Stage) pathDim() int {
	d := 0
	for _, p := range s.paths {
		d += p.dim
	}
	return d
}

// Propagate advances x by dt under constant control u using the stage's
// fixed-step integrator: M classical RK4 substeps. dst and x may alias.
func (s *Stage) Propagate(dst, x, u []float64, dt float64) {
	cur := append([]float64(nil), x...)
	h := dt / float64(s.M)

	k1 := make([]float64, s.nx)
	k2 := make([]float64, s.nx)
	k3 := make([]float64, s.nx)
	k4 := make([]float64, s.nx)
	tmp := make([]float64, s.nx)

	for step := 0; step < s.M; step++ {
		s.dyn.Derivative(k1, cur, u)
		for i := range tmp {
			tmp[i] = cur[i] + 0.5*h*k1[i]
		}
		s.dyn.Derivative(k2, tmp, u)
		for i := range tmp {
			tmp[i] = cur[i] + 0.5*h*k2[i]
		}
		s.dyn.Derivative(k3, tmp, u)
		for i := range tmp {
			tmp[i] = cur[i] + h*k3[i]
		}
		s.dyn.Derivative(k4, tmp, u)
		for i := range cur {
			cur[i] += h / 6 * (k1[i] + 2*k2[i] + 2*k3[i] + k4[i])
		}
	}
	copy(dst, cur)
}

// defects writes the N*nx shooting defects X_{k+1} - Phi(X_k, U_k) into dst.
func (s *Stage) defects(dst, z []float64) {
	h := z[s.tIndex()] / float64(s.N)
	next := make([]float64, s.nx)
	for k := 0; k < s.N; k++ {
		s.Propagate(next, s.StateAt(z, k), s.ControlAt(z, k), h)
		xk1 := s.StateAt(z, k+1)
		for i := range next {
			dst[k*s.nx+i] = xk1[i] - next[i]
		}
	}
}

// pathValues writes the stage's path inequalities over all N+1 nodes.
func (s *Stage) pathValues(dst, z []float64) {
	at := 0
	for k := 0; k <= s.N; k++ {
		x := s.StateAt(z, k)
		for _, p := range s.paths {
			p.f(dst[at:at+p.dim], x)
			at += p.dim
		}
	}
}

// objective is the stage's contribution: weighted duration plus optional
// control regularization.
func (s *Stage) objective(z []float64) float64 {
	v := s.timeWeight * z[s.tIndex()]
	if s.ctrlWeight > 0 {
		for k := 0; k < s.N; k++ {
			u := s.ControlAt(z, k)
			for _, ui := range u {
				v += s.ctrlWeight * ui * ui
			}
		}
	}
	return v
}

// bounds fills the stage's slice of the variable bound vectors.
func (s *Stage) bounds(lower, upper []float64) {
	lower[s.t0Index()] = math.Inf(-1)
	upper[s.t0Index()] = math.Inf(1)
	lower[s.tIndex()] = s.minDuration
	upper[s.tIndex()] = math.Inf(1)

	for k := 0; k <= s.N; k++ {
		i := s.stateIndex(k)
		copy(lower[i:i+s.nx], s.stateLo)
		copy(upper[i:i+s.nx], s.stateHi)
	}
	for k := 0; k < s.N; k++ {
		i := s.controlIndex(k)
		copy(lower[i:i+s.nu], s.ctrlLo)
		copy(upper[i:i+s.nu], s.ctrlHi)
	}
}

func (s *Stage) checkBound() error {
	if !s.bound {
		return fmt.Errorf("stage %q was not added to a problem", s.Name)
	}
	return nil
}
