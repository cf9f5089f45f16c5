package physics

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"truck-trailer-planner/internal/common"
)

func testRig() Rig {
	return NewRig(DefaultParams())
}

func TestParamsRoundTrip(t *testing.T) {
	p := DefaultParams()
	p.Trailer1.L = 1.1

	path := filepath.Join(t.TempDir(), "rig.yaml")
	require.NoError(t, SaveParams(path, p))

	got, err := LoadParams(path)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestParamsValidate(t *testing.T) {
	p := DefaultParams()
	require.NoError(t, p.Validate())

	p.Truck.L = 0
	assert.Error(t, p.Validate())

	p = DefaultParams()
	p.Trailer1.W = -0.2
	assert.Error(t, p.Validate())
}

func TestLoadParamsMissingFile(t *testing.T) {
	_, err := LoadParams(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

// A rig rolling straight ahead with zero articulation translates along its
// heading and turns nothing.
func TestDerivativeStraightLine(t *testing.T) {
	r := testRig()
	x := make([]float64, NumStates)
	x[STheta1] = math.Pi / 4
	x[STheta0] = math.Pi / 4
	x[SV0] = 0.2

	dst := make([]float64, NumStates)
	r.Derivative(dst, x, []float64{0, 0})

	assert.InDelta(t, 0, dst[STheta1], 1e-12)
	assert.InDelta(t, 0, dst[STheta0], 1e-12)
	assert.InDelta(t, 0.2*math.Cos(math.Pi/4), dst[SX1], 1e-12)
	assert.InDelta(t, 0.2*math.Sin(math.Pi/4), dst[SY1], 1e-12)
}

// Left steer at forward speed yields positive truck yaw rate with the
// magnitude v/L0*tan(delta).
func TestDerivativeYawRate(t *testing.T) {
	r := testRig()
	x := make([]float64, NumStates)
	x[SDelta0] = math.Pi / 8
	x[SV0] = 0.15

	dst := make([]float64, NumStates)
	r.Derivative(dst, x, []float64{0, 0})

	want := 0.15 / r.Truck.L * math.Tan(math.Pi/8)
	assert.Greater(t, dst[STheta0], 0.0)
	assert.InDelta(t, want, dst[STheta0], 1e-12)
}

// The control rates pass straight through to the steering and velocity slots.
func TestDerivativeControlPassthrough(t *testing.T) {
	r := testRig()
	x := make([]float64, NumStates)
	dst := make([]float64, NumStates)
	r.Derivative(dst, x, []float64{0.3, -0.7})

	assert.Equal(t, 0.3, dst[SDelta0])
	assert.Equal(t, -0.7, dst[SV0])
}

// Truck axle = trailer axle + L1 along the trailer heading + M0 along the
// truck heading.
func TestTruckAxleGeometry(t *testing.T) {
	r := testRig()
	x := make([]float64, NumStates)
	x[SX1] = 1
	x[SY1] = 2
	x[STheta1] = 0
	x[STheta0] = math.Pi / 2

	p := r.TruckAxle(x)
	assert.InDelta(t, 1+r.Trailer.L, p.X, 1e-12)
	assert.InDelta(t, 2+r.Truck.M, p.Y, 1e-12)
}

// The hitch sits M0 behind the truck axle, which is the same point as L1
// ahead of the trailer axle.
func TestHitchIdentity(t *testing.T) {
	r := testRig()
	x := make([]float64, NumStates)
	x[SX1] = -0.4
	x[SY1] = 0.9
	x[STheta1] = 0.3
	x[STheta0] = 1.1

	h := r.Hitch(x)
	assert.InDelta(t, x[SX1]+r.Trailer.L*math.Cos(0.3), h.X, 1e-12)
	assert.InDelta(t, x[SY1]+r.Trailer.L*math.Sin(0.3), h.Y, 1e-12)

	axle := r.TruckAxle(x)
	assert.InDelta(t, axle.X-r.Truck.M*math.Cos(1.1), h.X, 1e-12)
	assert.InDelta(t, axle.Y-r.Truck.M*math.Sin(1.1), h.Y, 1e-12)
}

func TestFootprintCorners(t *testing.T) {
	veh := Vehicle{L: 0.8, M: 0.1, W: 0.2}

	t.Run("axis aligned", func(t *testing.T) {
		c := Footprint(common.Vec2{X: 2, Y: 3}, 0, veh)
		assert.InDelta(t, 2+0.8, c[0].X, 1e-12)
		assert.InDelta(t, 3+0.1, c[0].Y, 1e-12)
		assert.InDelta(t, 2+0.8, c[1].X, 1e-12)
		assert.InDelta(t, 3-0.1, c[1].Y, 1e-12)
		assert.InDelta(t, 2-0.1, c[2].X, 1e-12)
		assert.InDelta(t, 3-0.1, c[2].Y, 1e-12)
		assert.InDelta(t, 2-0.1, c[3].X, 1e-12)
		assert.InDelta(t, 3+0.1, c[3].Y, 1e-12)
	})

	t.Run("rotation preserves diagonal", func(t *testing.T) {
		c := Footprint(common.Vec2{}, 0.7, veh)
		want := math.Hypot(0.8+0.1, 0.2)
		assert.InDelta(t, want, c[0].Sub(c[2]).Len(), 1e-12)
		assert.InDelta(t, want, c[1].Sub(c[3]).Len(), 1e-12)
	})
}

// RK4 on the plant reproduces straight-line motion exactly and matches a much
// finer Euler integration on a curved maneuver.
func TestSimulatorStep(t *testing.T) {
	sim := NewSimulator(testRig())

	t.Run("straight", func(t *testing.T) {
		x := TowState{Theta1: 0, X1: 0, Y1: 0, Theta0: 0}
		x = sim.Step(x, 0, 0.2, 0.5)
		assert.InDelta(t, 0.1, x.X1, 1e-12)
		assert.InDelta(t, 0, x.Y1, 1e-12)
		assert.InDelta(t, 0, x.Theta0, 1e-12)
		assert.InDelta(t, 0, x.Theta1, 1e-12)
	})

	t.Run("matches fine euler", func(t *testing.T) {
		r := testRig()
		start := TowState{Theta1: math.Pi / 2, X1: 0, Y1: 0, Theta0: math.Pi / 2}
		delta, v := 0.3, 0.15

		got := sim.Step(start, delta, v, 0.1)

		// Euler at 1e-5 resolution over the same interval.
		xs := make([]float64, NumStates)
		xs[STheta1] = start.Theta1
		xs[SX1] = start.X1
		xs[SY1] = start.Y1
		xs[STheta0] = start.Theta0
		xs[SDelta0] = delta
		xs[SV0] = v
		dst := make([]float64, NumStates)
		h := 1e-5
		for i := 0; i < 10000; i++ {
			r.Derivative(dst, xs, []float64{0, 0})
			for j := 0; j < 4; j++ {
				xs[j] += h * dst[j]
			}
		}

		assert.InDelta(t, xs[STheta1], got.Theta1, 1e-7)
		assert.InDelta(t, xs[SX1], got.X1, 1e-7)
		assert.InDelta(t, xs[SY1], got.Y1, 1e-7)
		assert.InDelta(t, xs[STheta0], got.Theta0, 1e-7)
	})
}

func TestTowStateArticulation(t *testing.T) {
	x := TowState{Theta1: 0.2, Theta0: 0.5}
	assert.InDelta(t, 0.3, x.Articulation(), 1e-12)
}
