package ocp

import (
	"fmt"

	"truck-trailer-planner/internal/common"
)

// Sampler re-evaluates one stage of a solved gist at arbitrary times. States
// are re-integrated from the nearest shooting node with the same fixed-step
// map used in transcription, so samples at node times reproduce the node
// values exactly; controls are piecewise constant per shooting interval.
type Sampler struct {
	stage *Stage
	gist  *Gist
}

// NewSampler binds a stage to a gist.
func NewSampler(s *Stage, g *Gist) (*Sampler, error) {
	if err := s.checkBound(); err != nil {
		return nil, err
	}
	if len(g.Z) < s.offset+s.dim() {
		return nil, fmt.Errorf("gist too short for stage %q", s.Name)
	}
	return &Sampler{stage: s, gist: g}, nil
}

// Times returns the stage's solved start and end time.
func (sm *Sampler) Times() (t0, tf float64) {
	return sm.stage.Times(sm.gist.Z)
}

// interval locates the shooting interval containing t and the offset into it.
// Times outside the stage clamp to the boundary nodes.
func (sm *Sampler) interval(t float64) (k int, dt float64) {
	t0, tf := sm.Times()
	h := (tf - t0) / float64(sm.stage.N)

	if t <= t0 {
		return 0, 0
	}
	if t >= tf {
		return sm.stage.N - 1, h
	}
	k = int((t - t0) / h)
	if k > sm.stage.N-1 {
		k = sm.stage.N - 1
	}
	return k, t - t0 - float64(k)*h
}

// State evaluates the stage's state vector at time t into dst.
func (sm *Sampler) State(dst []float64, t float64) {
	k, dt := sm.interval(t)
	xk := sm.stage.StateAt(sm.gist.Z, k)
	if dt == 0 {
		copy(dst, xk)
		return
	}
	sm.stage.Propagate(dst, xk, sm.stage.ControlAt(sm.gist.Z, k), dt)
}

// Control evaluates the decision control (piecewise constant) at time t.
func (sm *Sampler) Control(dst []float64, t float64) {
	k, _ := sm.interval(t)
	copy(dst, sm.stage.ControlAt(sm.gist.Z, k))
}

// Grid samples the state on an equally spaced time series. Each row of the
// result is one state vector.
func (sm *Sampler) Grid(times []float64) [][]float64 {
	out := make([][]float64, len(times))
	for i, t := range times {
		out[i] = make([]float64, sm.stage.nx)
		sm.State(out[i], t)
	}
	return out
}

// ControlTimes returns the fixed-step sample times [t0, tf) with step ts,
// matching the original control-grid convention: the start is included, the
// stage end is not. A non-positive step yields nil.
func (sm *Sampler) ControlTimes(ts float64) []float64 {
	if ts <= 0 {
		return nil
	}
	t0, tf := sm.Times()
	var out []float64
	for k := 0; ; k++ {
		t := t0 + float64(k)*ts
		if t >= tf {
			break
		}
		out = append(out, t)
	}
	return out
}

// NodeStates copies the solved shooting-node states, one row per node.
func (sm *Sampler) NodeStates() [][]float64 {
	out := make([][]float64, sm.stage.N+1)
	for k := 0; k <= sm.stage.N; k++ {
		out[k] = append([]float64(nil), sm.stage.StateAt(sm.gist.Z, k)...)
	}
	return out
}

// NodePositions projects two state components into points, for plot markers.
func (sm *Sampler) NodePositions(xi, yi int) []common.Vec2 {
	nodes := sm.NodeStates()
	out := make([]common.Vec2, len(nodes))
	for i, x := range nodes {
		out[i] = common.Vec2{X: x[xi], Y: x[yi]}
	}
	return out
}
