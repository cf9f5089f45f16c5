// Package viz renders a planned maneuver: static overview and control-trace
// plots, per-sample footprint frames, and optional GIF assembly when ffmpeg
// is on the PATH.
package viz

import (
	"bufio"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"truck-trailer-planner/internal/common"
	"truck-trailer-planner/internal/corridor"
	"truck-trailer-planner/internal/physics"
	"truck-trailer-planner/internal/planner"
	"truck-trailer-planner/internal/result"
)

var (
	colorTruck   = color.RGBA{128, 128, 128, 255}
	colorTrailer = color.RGBA{200, 30, 30, 255}
	colorWall    = color.RGBA{20, 20, 20, 255}
	colorWheel   = color.RGBA{10, 10, 10, 255}
	colorHitch   = color.RGBA{30, 30, 200, 255}
	colorMarker  = color.RGBA{0, 0, 0, 255}
	colorSim     = color.RGBA{30, 120, 30, 255}
)

// Scene carries what every figure needs besides the trajectory itself.
type Scene struct {
	Rig    physics.Rig
	Corner corridor.Corner
}

// worldBox is the drawing window: the corridor corner extents padded to fit
// the whole trajectory.
func (sc Scene) worldBox(tr *result.Trajectory) (lo, hi common.Vec2) {
	lo = common.Vec2{X: sc.Corner.Outer.X, Y: 0}
	hi = common.Vec2{X: sc.Corner.Inner.X, Y: sc.Corner.Outer.Y}
	grow := func(x, y float64) {
		lo.X = math.Min(lo.X, x)
		lo.Y = math.Min(lo.Y, y)
		hi.X = math.Max(hi.X, x)
		hi.Y = math.Max(hi.Y, y)
	}
	for i := range tr.T {
		grow(tr.X.PX0[i], tr.X.PY0[i])
		grow(tr.X.PX1[i], tr.X.PY1[i])
	}
	pad := 0.4
	lo = lo.Sub(common.Vec2{X: pad, Y: pad})
	hi = hi.Add(common.Vec2{X: pad, Y: pad})
	return lo, hi
}

func stylePlot(p *plot.Plot) {
	p.Title.TextStyle.Font.Size = vg.Points(16)
	p.X.Label.TextStyle.Font.Size = vg.Points(13)
	p.Y.Label.TextStyle.Font.Size = vg.Points(13)
	p.X.Tick.Label.Font.Size = vg.Points(11)
	p.Y.Tick.Label.Font.Size = vg.Points(11)
	p.X.Padding = vg.Points(10)
	p.Y.Padding = vg.Points(10)
}

// savePNG rasterizes the plot at 300 DPI.
func savePNG(p *plot.Plot, widthIn, heightIn float64, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating plot directory: %w", err)
	}
	c := vgimg.NewWith(
		vgimg.UseWH(vg.Length(widthIn)*vg.Inch, vg.Length(heightIn)*vg.Inch),
		vgimg.UseDPI(300),
	)
	p.Draw(draw.New(c))

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating plot file: %w", err)
	}
	defer f.Close()

	bw := bufio.NewWriter(f)
	defer bw.Flush()
	if _, err := (vgimg.PngCanvas{Canvas: c}).WriteTo(bw); err != nil {
		return fmt.Errorf("writing plot %s: %w", path, err)
	}
	return nil
}

func pathLine(xs, ys []float64, col color.Color, width vg.Length) (*plotter.Line, error) {
	pts := make(plotter.XYs, len(xs))
	for i := range xs {
		pts[i].X = xs[i]
		pts[i].Y = ys[i]
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, err
	}
	line.LineStyle.Color = col
	line.LineStyle.Width = width
	return line, nil
}

// addWalls clips each corridor wall to the drawing window and adds it.
func addWalls(p *plot.Plot, sc Scene, lo, hi common.Vec2) error {
	for _, w := range sc.Corner.Walls() {
		a, b, ok := w.Boundary(lo, hi)
		if !ok {
			continue
		}
		line, err := pathLine([]float64{a.X, b.X}, []float64{a.Y, b.Y}, colorWall, vg.Points(1.5))
		if err != nil {
			return err
		}
		line.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(3)}
		p.Add(line)
	}
	return nil
}

// SaveOverview draws the corridor walls, both axle paths, and stage boundary
// markers, matching the demo's first figure.
func SaveOverview(path string, sc Scene, tr *result.Trajectory, markers []common.Vec2) error {
	p := plot.New()
	p.Title.Text = "Truck-trailer corner maneuver"
	p.X.Label.Text = "x [m]"
	p.Y.Label.Text = "y [m]"
	stylePlot(p)

	lo, hi := sc.worldBox(tr)
	p.X.Min, p.X.Max = lo.X, hi.X
	p.Y.Min, p.Y.Max = lo.Y, hi.Y

	if err := addWalls(p, sc, lo, hi); err != nil {
		return err
	}

	truck, err := pathLine(tr.X.PX0, tr.X.PY0, colorTruck, vg.Points(2))
	if err != nil {
		return err
	}
	trailer, err := pathLine(tr.X.PX1, tr.X.PY1, colorTrailer, vg.Points(2))
	if err != nil {
		return err
	}
	p.Add(truck, trailer)
	p.Legend.Add("truck", truck)
	p.Legend.Add("trailer", trailer)

	if len(markers) > 0 {
		pts := make(plotter.XYs, len(markers))
		for i, m := range markers {
			pts[i].X = m.X
			pts[i].Y = m.Y
		}
		mk, err := plotter.NewScatter(pts)
		if err != nil {
			return err
		}
		mk.GlyphStyle.Shape = draw.CrossGlyph{}
		mk.GlyphStyle.Color = colorMarker
		mk.GlyphStyle.Radius = vg.Points(4)
		p.Add(mk)
	}

	// Square canvas keeps the aspect ratio close to equal for the padded
	// corner window.
	return savePNG(p, 7, 7*(hi.Y-lo.Y)/(hi.X-lo.X), path)
}

// SaveControlTraces plots the steering angle and longitudinal velocity over
// the concatenated timeline.
func SaveControlTraces(path string, tr *result.Trajectory) error {
	p := plot.New()
	p.Title.Text = "Control signals"
	p.X.Label.Text = "t [s]"
	stylePlot(p)

	delta, err := pathLine(tr.T, tr.U.Delta, colorTrailer, vg.Points(2))
	if err != nil {
		return err
	}
	v, err := pathLine(tr.T, tr.U.VL, colorHitch, vg.Points(2))
	if err != nil {
		return err
	}
	p.Add(delta, v)
	p.Legend.Add("delta [rad]", delta)
	p.Legend.Add("v [m/s]", v)
	p.Legend.Top = true

	return savePNG(p, 8, 5, path)
}

// SaveArticulationComparison overlays the planned and simulated hitch angles
// when the diagnostic simulator ran.
func SaveArticulationComparison(path string, tr *result.Trajectory, sim *planner.SimResult) error {
	planned := make([]float64, tr.Len())
	simulated := make([]float64, tr.Len())
	for i := range planned {
		planned[i] = tr.X.Theta0[i] - tr.X.Theta1[i]
		simulated[i] = sim.Theta0[i] - sim.Theta1[i]
	}

	p := plot.New()
	p.Title.Text = "Articulation angle: plan vs simulation"
	p.X.Label.Text = "t [s]"
	p.Y.Label.Text = "beta [rad]"
	stylePlot(p)

	want, err := pathLine(tr.T, planned, colorTrailer, vg.Points(2))
	if err != nil {
		return err
	}
	got, err := pathLine(tr.T, simulated, colorSim, vg.Points(2))
	if err != nil {
		return err
	}
	got.LineStyle.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
	p.Add(want, got)
	p.Legend.Add("planned", want)
	p.Legend.Add("simulated", got)
	p.Legend.Top = true

	return savePNG(p, 8, 5, path)
}
