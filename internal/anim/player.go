// Package anim replays a solved maneuver in a window: corridor walls, both
// vehicle footprints with the hitch linkage, trailed paths, and a HUD with
// the live control values.
package anim

import (
	"fmt"
	"image/color"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"truck-trailer-planner/internal/common"
	"truck-trailer-planner/internal/corridor"
	"truck-trailer-planner/internal/physics"
	"truck-trailer-planner/internal/result"
)

const (
	WindowWidth  = 900
	WindowHeight = 900

	viewMargin      = 0.9 // fraction of the window the corridor box fills
	fastMultiplier  = 4.0
	ticksPerSecond  = 60.0
	headingOverhang = 0.15 // metres past the front axle
)

var (
	colorBackground = color.RGBA{245, 245, 245, 255}
	colorWall       = color.RGBA{30, 30, 30, 255}
	colorTruck      = color.RGBA{120, 120, 120, 255}
	colorTrailer    = color.RGBA{210, 40, 40, 255}
	colorHeading    = color.RGBA{240, 200, 0, 255}
	colorHitch      = color.RGBA{40, 40, 210, 255}
	colorTruckPath  = color.RGBA{120, 120, 120, 120}
	colorTrailPath  = color.RGBA{210, 40, 40, 120}
	colorHUD        = color.RGBA{0, 0, 0, 180}
)

// Player is the playback game. It steps a clock through the trajectory
// timeline and draws the sample nearest the clock.
type Player struct {
	rig    physics.Rig
	corner corridor.Corner
	tr     *result.Trajectory

	clock   float64
	paused  bool
	fast    bool
	looping bool

	// World-to-screen transform, fitted once. World y points up, screen y
	// points down.
	scale          float32
	offX, offY     float32
	worldLo        common.Vec2
	worldH, worldW float64
}

// NewPlayer fits the view to the corridor box padded to cover the whole
// trajectory.
func NewPlayer(tr *result.Trajectory, rig physics.Rig, c corridor.Corner) *Player {
	lo := common.Vec2{X: c.Outer.X, Y: 0}
	hi := common.Vec2{X: c.Inner.X, Y: c.Outer.Y}
	for i := range tr.T {
		lo.X = math.Min(lo.X, math.Min(tr.X.PX0[i], tr.X.PX1[i]))
		lo.Y = math.Min(lo.Y, math.Min(tr.X.PY0[i], tr.X.PY1[i]))
		hi.X = math.Max(hi.X, math.Max(tr.X.PX0[i], tr.X.PX1[i]))
		hi.Y = math.Max(hi.Y, math.Max(tr.X.PY0[i], tr.X.PY1[i]))
	}
	pad := 0.5
	lo = lo.Sub(common.Vec2{X: pad, Y: pad})
	hi = hi.Add(common.Vec2{X: pad, Y: pad})

	p := &Player{
		rig:     rig,
		corner:  c,
		tr:      tr,
		looping: true,
		worldLo: lo,
		worldW:  hi.X - lo.X,
		worldH:  hi.Y - lo.Y,
	}

	scaleW := float64(WindowWidth) / p.worldW
	scaleH := float64(WindowHeight) / p.worldH
	s := scaleW
	if scaleH < s {
		s = scaleH
	}
	p.scale = float32(s * viewMargin)
	p.offX = (WindowWidth - float32(p.worldW)*p.scale) / 2
	p.offY = (WindowHeight - float32(p.worldH)*p.scale) / 2
	return p
}

func (p *Player) toScreen(w common.Vec2) (float32, float32) {
	sx := float32(w.X-p.worldLo.X)*p.scale + p.offX
	sy := WindowHeight - (float32(w.Y-p.worldLo.Y)*p.scale + p.offY)
	return sx, sy
}

// sample is the index whose time the clock has reached.
func (p *Player) sample() int {
	i := 0
	for i < p.tr.Len()-1 && p.tr.T[i+1] <= p.clock {
		i++
	}
	return i
}

func (p *Player) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		p.paused = !p.paused
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyS) {
		p.fast = !p.fast
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		p.clock = 0
	}

	if p.paused {
		return nil
	}
	dt := 1.0 / ticksPerSecond
	if p.fast {
		dt *= fastMultiplier
	}
	p.clock += dt

	end := p.tr.T[p.tr.Len()-1]
	if p.clock > end {
		if p.looping {
			p.clock = 0
		} else {
			p.clock = end
		}
	}
	return nil
}

func (p *Player) drawWalls(screen *ebiten.Image) {
	lo := p.worldLo
	hi := common.Vec2{X: lo.X + p.worldW, Y: lo.Y + p.worldH}
	for _, w := range p.corner.Walls() {
		a, b, ok := w.Boundary(lo, hi)
		if !ok {
			continue
		}
		ax, ay := p.toScreen(a)
		bx, by := p.toScreen(b)
		vector.StrokeLine(screen, ax, ay, bx, by, 2, colorWall, true)
	}
}

func (p *Player) drawPath(screen *ebiten.Image, xs, ys []float64, upto int, col color.RGBA) {
	for j := 0; j < upto; j++ {
		ax, ay := p.toScreen(common.Vec2{X: xs[j], Y: ys[j]})
		bx, by := p.toScreen(common.Vec2{X: xs[j+1], Y: ys[j+1]})
		vector.StrokeLine(screen, ax, ay, bx, by, 2, col, true)
	}
}

func (p *Player) fillFootprint(screen *ebiten.Image, corners [4]common.Vec2, col color.RGBA) {
	var path vector.Path
	for i, c := range corners {
		sx, sy := p.toScreen(c)
		if i == 0 {
			path.MoveTo(sx, sy)
		} else {
			path.LineTo(sx, sy)
		}
	}
	path.Close()

	var cs ebiten.ColorScale
	cs.ScaleWithColor(col)
	vector.FillPath(screen, &path, nil, &vector.DrawPathOptions{
		AntiAlias:  true,
		ColorScale: cs,
	})
}

func (p *Player) Draw(screen *ebiten.Image) {
	screen.Fill(colorBackground)
	p.drawWalls(screen)

	i := p.sample()
	p.drawPath(screen, p.tr.X.PX0, p.tr.X.PY0, i, colorTruckPath)
	p.drawPath(screen, p.tr.X.PX1, p.tr.X.PY1, i, colorTrailPath)

	truckPos := common.Vec2{X: p.tr.X.PX0[i], Y: p.tr.X.PY0[i]}
	trailerPos := common.Vec2{X: p.tr.X.PX1[i], Y: p.tr.X.PY1[i]}
	th0, th1 := p.tr.X.Theta0[i], p.tr.X.Theta1[i]

	p.fillFootprint(screen, physics.Footprint(trailerPos, th1, p.rig.Trailer), colorTrailer)
	p.fillFootprint(screen, physics.Footprint(truckPos, th0, p.rig.Truck), colorTruck)

	// Truck heading tick past the front axle.
	tip := truckPos.Add(common.Vec2{X: p.rig.Truck.L + headingOverhang}.Rot(th0))
	hx, hy := p.toScreen(truckPos)
	tx, ty := p.toScreen(tip)
	vector.StrokeLine(screen, hx, hy, tx, ty, 2, colorHeading, true)

	// Hitch bar and pivot.
	hitch := trailerPos.Add(common.Vec2{X: p.rig.Trailer.L}.Rot(th1))
	ax, ay := p.toScreen(trailerPos)
	bx, by := p.toScreen(hitch)
	vector.StrokeLine(screen, ax, ay, bx, by, 2, colorHitch, true)
	vector.FillCircle(screen, bx, by, 3, colorHitch, true)

	// HUD panel.
	vector.FillRect(screen, 0, 0, 180, 120, colorHUD, true)
	beta := th0 - th1
	msg := "MANEUVER PLAYBACK\n"
	msg += "-----------------\n"
	msg += fmt.Sprintf("t:     %6.2f s\n", p.tr.T[i])
	msg += fmt.Sprintf("v:     %6.3f m/s\n", p.tr.U.VL[i])
	msg += fmt.Sprintf("delta: %6.3f rad\n", p.tr.U.Delta[i])
	msg += fmt.Sprintf("beta:  %6.3f rad\n", beta)
	if p.paused {
		msg += "[PAUSED]\n"
	} else if p.fast {
		msg += "[x4]\n"
	}
	msg += "Space=pause S=speed R=restart"
	ebitenutil.DebugPrint(screen, msg)
}

func (p *Player) Layout(outsideWidth, outsideHeight int) (int, int) {
	return WindowWidth, WindowHeight
}

// Run opens the window and plays the trajectory until it is closed.
func Run(tr *result.Trajectory, rig physics.Rig, c corridor.Corner) error {
	if err := tr.Validate(); err != nil {
		return fmt.Errorf("animating: %w", err)
	}
	ebiten.SetWindowSize(WindowWidth, WindowHeight)
	ebiten.SetWindowTitle("Truck-Trailer Planner")
	return ebiten.RunGame(NewPlayer(tr, rig, c))
}
