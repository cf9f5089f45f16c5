// Package corridor describes the drivable region of a corner maneuver as an
// intersection of half-planes and evaluates footprint containment against it.
package corridor

import (
	"math"

	"truck-trailer-planner/internal/common"
)

// HalfPlane is the closed region {p : Nx*p.X + Ny*p.Y + C <= 0}. The normal
// (Nx, Ny) points out of the drivable area.
type HalfPlane struct {
	Nx float64 `yaml:"nx"`
	Ny float64 `yaml:"ny"`
	C  float64 `yaml:"c"`
}

// Through builds the half-plane with outward normal n whose boundary passes
// through p.
func Through(n, p common.Vec2) HalfPlane {
	return HalfPlane{Nx: n.X, Ny: n.Y, C: -n.Dot(p)}
}

// Eval returns the signed constraint value at p. Non-positive means inside.
func (h HalfPlane) Eval(p common.Vec2) float64 {
	return h.Nx*p.X + h.Ny*p.Y + h.C
}

// Contains reports whether p lies inside or on the boundary.
func (h HalfPlane) Contains(p common.Vec2) bool {
	return h.Eval(p) <= 0
}

// Boundary clips the zero line of h to the axis-aligned box [lo, hi] and
// returns the visible segment. ok is false when the line misses the box.
func (h HalfPlane) Boundary(lo, hi common.Vec2) (a, b common.Vec2, ok bool) {
	corners := [4]common.Vec2{
		{X: lo.X, Y: lo.Y},
		{X: hi.X, Y: lo.Y},
		{X: hi.X, Y: hi.Y},
		{X: lo.X, Y: hi.Y},
	}

	var hits []common.Vec2
	for i := range corners {
		p, q := corners[i], corners[(i+1)%4]
		fp, fq := h.Eval(p), h.Eval(q)
		if fp == 0 {
			hits = append(hits, p)
			continue
		}
		if (fp < 0) == (fq < 0) || fq == 0 {
			continue
		}
		t := fp / (fp - fq)
		hits = append(hits, p.Add(q.Sub(p).Scale(t)))
	}

	for i := 0; i < len(hits); i++ {
		for j := i + 1; j < len(hits); j++ {
			if hits[i].Sub(hits[j]).Len() > 1e-9 {
				return hits[i], hits[j], true
			}
		}
	}
	return common.Vec2{}, common.Vec2{}, false
}

// Region is the intersection of half-planes.
type Region []HalfPlane

// Contains reports whether p satisfies every half-plane.
func (r Region) Contains(p common.Vec2) bool {
	for _, h := range r {
		if !h.Contains(p) {
			return false
		}
	}
	return true
}

// MaxViolation returns the worst constraint value over the region; values
// above zero measure how far p sticks out.
func (r Region) MaxViolation(p common.Vec2) float64 {
	worst := math.Inf(-1)
	for _, h := range r {
		if v := h.Eval(p); v > worst {
			worst = v
		}
	}
	return worst
}

// Corner is an L-shaped corridor: a vertical entry leg meeting a horizontal
// exit leg. Outer and Inner are the two wall corner points; Grade tilts the
// whole corridor by that angle (zero keeps it axis-aligned).
type Corner struct {
	Outer common.Vec2
	Inner common.Vec2
	Grade float64
}

// DefaultCorner is the reference corner environment.
func DefaultCorner() Corner {
	return Corner{
		Outer: common.Vec2{X: -0.5, Y: 2.4},
		Inner: common.Vec2{X: 0.5, Y: 2.0},
	}
}

func (c Corner) leftNormal() common.Vec2 {
	return common.Vec2{X: -math.Cos(c.Grade), Y: math.Sin(c.Grade)}
}

// topNormal is the entry-leg normal turned a quarter turn with the corridor.
func (c Corner) topNormal() common.Vec2 {
	return c.leftNormal().Perp().Scale(-1)
}

// LeftWall bounds the entry leg on the outer side.
func (c Corner) LeftWall() HalfPlane {
	return Through(c.leftNormal(), c.Outer)
}

// RightWall bounds the entry leg on the inner side.
func (c Corner) RightWall() HalfPlane {
	return Through(c.leftNormal().Scale(-1), c.Inner)
}

// TopWall bounds the exit leg from above.
func (c Corner) TopWall() HalfPlane {
	return Through(c.topNormal(), c.Outer)
}

// BottomWall bounds the exit leg from below.
func (c Corner) BottomWall() HalfPlane {
	return Through(c.topNormal().Scale(-1), c.Inner)
}

// EntryRegion is the drivable area of the vertical approach leg.
func (c Corner) EntryRegion() Region {
	return Region{c.LeftWall(), c.RightWall(), c.TopWall()}
}

// ExitRegion is the drivable area of the horizontal leg after the turn.
func (c Corner) ExitRegion() Region {
	return Region{c.TopWall(), c.BottomWall(), c.LeftWall()}
}

// Walls lists every wall once, for drawing.
func (c Corner) Walls() []HalfPlane {
	return []HalfPlane{c.LeftWall(), c.RightWall(), c.TopWall(), c.BottomWall()}
}

// GoalY is the centerline height of the exit leg.
func (c Corner) GoalY() float64 {
	return (c.Outer.Y + c.Inner.Y) / 2
}
