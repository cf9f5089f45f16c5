package nlp

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSolveUnconstrained(t *testing.T) {
	spec := Spec{
		Dim: 2,
		Objective: func(z []float64) float64 {
			return (z[0]-1)*(z[0]-1) + (z[1]+2)*(z[1]+2)
		},
	}

	res, err := Solve(context.Background(), spec, []float64{0, 0}, Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, Optimal, res.Status)
	assert.InDelta(t, 1, res.Z[0], 1e-4)
	assert.InDelta(t, -2, res.Z[1], 1e-4)
}

// min x^2 + y^2 subject to x + y = 1 has its optimum at (0.5, 0.5).
func TestSolveEqualityConstrained(t *testing.T) {
	spec := Spec{
		Dim: 2,
		Objective: func(z []float64) float64 {
			return z[0]*z[0] + z[1]*z[1]
		},
		EqDim: 1,
		Equalities: func(dst, z []float64) {
			dst[0] = z[0] + z[1] - 1
		},
	}

	res, err := Solve(context.Background(), spec, []float64{0, 0}, Options{Tol: 1e-6}, nil)
	require.NoError(t, err)
	assert.Equal(t, Optimal, res.Status)
	assert.InDelta(t, 0.5, res.Z[0], 1e-4)
	assert.InDelta(t, 0.5, res.Z[1], 1e-4)
	assert.LessOrEqual(t, res.EqResidual, 1e-6)
}

// min (x-2)^2 subject to x <= 1 is active at the boundary.
func TestSolveInequalityConstrained(t *testing.T) {
	spec := Spec{
		Dim: 1,
		Objective: func(z []float64) float64 {
			return (z[0] - 2) * (z[0] - 2)
		},
		IneqDim: 1,
		Inequalities: func(dst, z []float64) {
			dst[0] = z[0] - 1
		},
	}

	res, err := Solve(context.Background(), spec, []float64{0}, Options{Tol: 1e-6}, nil)
	require.NoError(t, err)
	assert.Equal(t, Optimal, res.Status)
	assert.InDelta(t, 1, res.Z[0], 1e-4)
	assert.LessOrEqual(t, res.IneqResidual, 1e-6)
}

// An inactive inequality leaves the unconstrained optimum untouched.
func TestSolveInactiveInequality(t *testing.T) {
	spec := Spec{
		Dim: 1,
		Objective: func(z []float64) float64 {
			return (z[0] + 1) * (z[0] + 1)
		},
		IneqDim: 1,
		Inequalities: func(dst, z []float64) {
			dst[0] = z[0] - 5
		},
	}

	res, err := Solve(context.Background(), spec, []float64{4}, Options{}, nil)
	require.NoError(t, err)
	assert.InDelta(t, -1, res.Z[0], 1e-4)
}

func TestSolveVariableBounds(t *testing.T) {
	spec := Spec{
		Dim: 2,
		Objective: func(z []float64) float64 {
			return (z[0]+3)*(z[0]+3) + z[1]*z[1]
		},
		Lower: []float64{-1, math.Inf(-1)},
		Upper: []float64{math.Inf(1), math.Inf(1)},
	}

	res, err := Solve(context.Background(), spec, []float64{0, 1}, Options{Tol: 1e-6}, nil)
	require.NoError(t, err)
	assert.Equal(t, Optimal, res.Status)
	assert.InDelta(t, -1, res.Z[0], 1e-4)
	assert.InDelta(t, 0, res.Z[1], 1e-4)
}

// Conflicting bounds can never be satisfied; with RaiseOnFail the sentinel
// surfaces once the penalty is exhausted.
func TestSolveInfeasible(t *testing.T) {
	spec := Spec{
		Dim:       1,
		Objective: func(z []float64) float64 { return z[0] * z[0] },
		Lower:     []float64{1},
		Upper:     []float64{-1},
	}

	res, err := Solve(context.Background(), spec, []float64{0}, Options{RaiseOnFail: true}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInfeasible)
	assert.Equal(t, Infeasible, res.Status)
}

func TestSolveCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	spec := Spec{
		Dim:       1,
		Objective: func(z []float64) float64 { return z[0] * z[0] },
	}
	_, err := Solve(ctx, spec, []float64{1}, Options{}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

// The subproblem gradient must stay accurate when the penalty is large;
// differencing the penalized scalar directly would drown the objective part
// in roundoff and stall the outer loop far from feasibility.
func TestLagrangianGradientLargePenalty(t *testing.T) {
	spec := Spec{
		Dim:       2,
		Objective: func(z []float64) float64 { return z[0] + 2*z[1] },
		EqDim:     1,
		Equalities: func(dst, z []float64) {
			dst[0] = z[0]*z[0] + z[1] - 1
		},
		IneqDim: 1,
		Inequalities: func(dst, z []float64) {
			dst[0] = -z[1]
		},
	}
	l := newLagrangian(spec, 1e8)
	l.lamEq[0] = 3
	l.lamIneq[0] = 2

	z := []float64{0.3, 0.4}
	got := make([]float64, 2)
	l.grad(got, z)

	ce := z[0]*z[0] + z[1] - 1
	we := l.lamEq[0] + l.mu*ce
	want := []float64{1 + we*2*z[0], 2 + we} // inequality inactive at z
	assert.InEpsilon(t, want[0], got[0], 1e-8)
	assert.InEpsilon(t, want[1], got[1], 1e-8)
}

func TestSolveGuessDimension(t *testing.T) {
	spec := Spec{
		Dim:       2,
		Objective: func(z []float64) float64 { return 0 },
	}
	_, err := Solve(context.Background(), spec, []float64{1}, Options{}, nil)
	assert.Error(t, err)
}
