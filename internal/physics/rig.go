package physics

import (
	"math"

	"truck-trailer-planner/internal/common"
)

// State vector layout of the planning model. Steering angle and velocity are
// first-order controls: they live in the state and their rates are the
// decision controls.
const (
	STheta1 = iota // trailer heading
	SX1            // trailer axle x
	SY1            // trailer axle y
	STheta0        // truck heading
	SDelta0        // truck steering angle
	SV0            // truck longitudinal velocity
	NumStates
)

// Control vector layout: rates of the first-order controls.
const (
	UDeltaRate = iota // steering rate
	UAccel            // velocity rate
	NumControls
)

// Rig is the truck-trailer kinematic model. The trailer axle is the
// reference point; the truck pose is derived through the hitch.
type Rig struct {
	Truck   Vehicle
	Trailer Vehicle
}

// NewRig builds the kinematic model from a parameter document.
func NewRig(p Params) Rig {
	return Rig{Truck: p.Truck, Trailer: p.Trailer1}
}

func (r Rig) StateDim() int   { return NumStates }
func (r Rig) ControlDim() int { return NumControls }

// Derivative evaluates dst = f(x, u) for the six-state planning model.
//
// The trailer yaw rate follows from hitch kinematics: the hitch point moves
// with the truck body, and the trailer axle trails it at distance L1. The
// hitch sits M0 behind the truck axle, so truck yaw couples into both the
// trailer yaw rate and the trailer forward speed.
func (r Rig) Derivative(dst, x, u []float64) {
	beta := x[STheta0] - x[STheta1]
	sb, cb := math.Sin(beta), math.Cos(beta)

	dtheta0 := x[SV0] / r.Truck.L * math.Tan(x[SDelta0])
	dtheta1 := x[SV0]/r.Trailer.L*sb - r.Truck.M/r.Trailer.L*cb*dtheta0
	v1 := x[SV0]*cb + r.Truck.M*sb*dtheta0

	dst[STheta1] = dtheta1
	dst[SX1] = v1 * math.Cos(x[STheta1])
	dst[SY1] = v1 * math.Sin(x[STheta1])
	dst[STheta0] = dtheta0
	dst[SDelta0] = u[UDeltaRate]
	dst[SV0] = u[UAccel]
}

// Articulation returns the angle between truck and trailer headings at the hitch.
func Articulation(x []float64) float64 {
	return x[STheta0] - x[STheta1]
}

// TruckAxle returns the truck rear-axle position for a planning state.
func (r Rig) TruckAxle(x []float64) common.Vec2 {
	return r.truckAxle(x[SX1], x[SY1], x[STheta1], x[STheta0])
}

func (r Rig) truckAxle(x1, y1, theta1, theta0 float64) common.Vec2 {
	return common.Vec2{
		X: x1 + r.Trailer.L*math.Cos(theta1) + r.Truck.M*math.Cos(theta0),
		Y: y1 + r.Trailer.L*math.Sin(theta1) + r.Truck.M*math.Sin(theta0),
	}
}

// Hitch returns the coupling point between the two bodies.
func (r Rig) Hitch(x []float64) common.Vec2 {
	return common.Vec2{
		X: x[SX1] + r.Trailer.L*math.Cos(x[STheta1]),
		Y: x[SY1] + r.Trailer.L*math.Sin(x[STheta1]),
	}
}

// Footprint returns the four body corners of a vehicle at the given axle
// pose. The rectangle spans [-M, +L] along the heading and +/- W/2 across it,
// ordered front-left, front-right, rear-right, rear-left.
func Footprint(pos common.Vec2, heading float64, v Vehicle) [4]common.Vec2 {
	half := v.W / 2
	offsets := [4]common.Vec2{
		{X: v.L, Y: half},
		{X: v.L, Y: -half},
		{X: -v.M, Y: -half},
		{X: -v.M, Y: half},
	}

	var out [4]common.Vec2
	for i, off := range offsets {
		out[i] = pos.Add(off.Rot(heading))
	}
	return out
}

// TruckFootprint returns the truck body corners for a planning state.
func (r Rig) TruckFootprint(x []float64) [4]common.Vec2 {
	return Footprint(r.TruckAxle(x), x[STheta0], r.Truck)
}

// TrailerFootprint returns the trailer body corners for a planning state.
func (r Rig) TrailerFootprint(x []float64) [4]common.Vec2 {
	return Footprint(common.Vec2{X: x[SX1], Y: x[SY1]}, x[STheta1], r.Trailer)
}
