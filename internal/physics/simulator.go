package physics

import (
	"math"

	"truck-trailer-planner/internal/common"
)

// TowState is the plant state of the closed-loop simulator: the four pose
// components, with steering and velocity supplied as exogenous inputs.
type TowState struct {
	Theta1 float64 // trailer heading
	X1     float64 // trailer axle x
	Y1     float64 // trailer axle y
	Theta0 float64 // truck heading
}

// towDeriv is the time derivative of a TowState.
type towDeriv struct {
	DTheta1, DX1, DY1, DTheta0 float64
}

// Simulator steps the tow-vehicle plant one interval at a time. It is a
// diagnostic tool: the planner never consumes its output.
type Simulator struct {
	rig Rig
}

// NewSimulator builds a one-step-ahead integrator for the rig.
func NewSimulator(rig Rig) *Simulator {
	return &Simulator{rig: rig}
}

func (s *Simulator) deriv(x TowState, delta, v float64) towDeriv {
	beta := x.Theta0 - x.Theta1
	sb, cb := math.Sin(beta), math.Cos(beta)

	dtheta0 := v / s.rig.Truck.L * math.Tan(delta)
	dtheta1 := v/s.rig.Trailer.L*sb - s.rig.Truck.M/s.rig.Trailer.L*cb*dtheta0
	v1 := v*cb + s.rig.Truck.M*sb*dtheta0

	return towDeriv{
		DTheta1: dtheta1,
		DX1:     v1 * math.Cos(x.Theta1),
		DY1:     v1 * math.Sin(x.Theta1),
		DTheta0: dtheta0,
	}
}

// Step advances the plant by dt seconds with the inputs held constant, using
// one classical RK4 step.
func (s *Simulator) Step(x TowState, delta, v, dt float64) TowState {
	addScaled := func(a TowState, k towDeriv, h float64) TowState {
		a.Theta1 += h * k.DTheta1
		a.X1 += h * k.DX1
		a.Y1 += h * k.DY1
		a.Theta0 += h * k.DTheta0
		return a
	}

	k1 := s.deriv(x, delta, v)
	k2 := s.deriv(addScaled(x, k1, 0.5*dt), delta, v)
	k3 := s.deriv(addScaled(x, k2, 0.5*dt), delta, v)
	k4 := s.deriv(addScaled(x, k3, dt), delta, v)

	x.Theta1 += dt / 6 * (k1.DTheta1 + 2*k2.DTheta1 + 2*k3.DTheta1 + k4.DTheta1)
	x.X1 += dt / 6 * (k1.DX1 + 2*k2.DX1 + 2*k3.DX1 + k4.DX1)
	x.Y1 += dt / 6 * (k1.DY1 + 2*k2.DY1 + 2*k3.DY1 + k4.DY1)
	x.Theta0 += dt / 6 * (k1.DTheta0 + 2*k2.DTheta0 + 2*k3.DTheta0 + k4.DTheta0)
	return x
}

// TruckAxle returns the truck rear-axle position for a plant state.
func (s *Simulator) TruckAxle(x TowState) common.Vec2 {
	return s.rig.truckAxle(x.X1, x.Y1, x.Theta1, x.Theta0)
}

// Articulation returns the hitch angle of a plant state.
func (x TowState) Articulation() float64 {
	return x.Theta0 - x.Theta1
}
