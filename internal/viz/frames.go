package viz

import (
	"fmt"
	"image/color"
	"os"
	"os/exec"
	"path/filepath"

	"go.uber.org/zap"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"truck-trailer-planner/internal/common"
	"truck-trailer-planner/internal/physics"
	"truck-trailer-planner/internal/result"
)

var (
	fillTruck   = color.RGBA{128, 128, 128, 90}
	fillTrailer = color.RGBA{200, 30, 30, 90}
)

// addFootprint draws a filled body rectangle with its outline.
func addFootprint(p *plot.Plot, corners [4]common.Vec2, fill color.Color, outline color.RGBA) error {
	pts := make(plotter.XYs, 4)
	for i, c := range corners {
		pts[i].X = c.X
		pts[i].Y = c.Y
	}
	poly, err := plotter.NewPolygon(pts)
	if err != nil {
		return err
	}
	poly.Color = fill
	poly.LineStyle.Color = outline
	poly.LineStyle.Width = vg.Points(1.5)
	p.Add(poly)
	return nil
}

// addWheel draws one wheel as a short thick segment centered at pos and
// rotated to angle.
func addWheel(p *plot.Plot, pos common.Vec2, angle, length float64) error {
	half := common.Vec2{X: length / 2}.Rot(angle)
	a, b := pos.Sub(half), pos.Add(half)
	line, err := pathLine([]float64{a.X, b.X}, []float64{a.Y, b.Y}, colorWheel, vg.Points(3))
	if err != nil {
		return err
	}
	p.Add(line)
	return nil
}

// addRigPose draws the full rig at one sample: both footprints, axle wheels,
// the steered front wheel, and the hitch bar with its pivot dot.
func addRigPose(p *plot.Plot, rig physics.Rig, tr *result.Trajectory, i int) error {
	truckPos := common.Vec2{X: tr.X.PX0[i], Y: tr.X.PY0[i]}
	trailerPos := common.Vec2{X: tr.X.PX1[i], Y: tr.X.PY1[i]}
	th0, th1 := tr.X.Theta0[i], tr.X.Theta1[i]

	if err := addFootprint(p, physics.Footprint(trailerPos, th1, rig.Trailer), fillTrailer, colorTrailer); err != nil {
		return err
	}
	if err := addFootprint(p, physics.Footprint(truckPos, th0, rig.Truck), fillTruck, colorTruck); err != nil {
		return err
	}

	wheelLen := rig.Truck.L * 0.35
	lateral := func(heading, w float64) common.Vec2 {
		return common.Vec2{Y: w / 2}.Rot(heading)
	}

	// Truck rear axle pair and the steered front pair.
	off := lateral(th0, rig.Truck.W*0.8)
	for _, s := range []float64{1, -1} {
		if err := addWheel(p, truckPos.Add(off.Scale(s)), th0, wheelLen); err != nil {
			return err
		}
	}
	front := truckPos.Add(common.Vec2{X: rig.Truck.L}.Rot(th0))
	for _, s := range []float64{1, -1} {
		if err := addWheel(p, front.Add(off.Scale(s)), th0+tr.U.Delta[i], wheelLen); err != nil {
			return err
		}
	}

	// Trailer axle pair.
	off = lateral(th1, rig.Trailer.W*0.8)
	for _, s := range []float64{1, -1} {
		if err := addWheel(p, trailerPos.Add(off.Scale(s)), th1, wheelLen); err != nil {
			return err
		}
	}

	// Hitch bar from the trailer axle to the coupling point.
	hitch := trailerPos.Add(common.Vec2{X: rig.Trailer.L}.Rot(th1))
	bar, err := pathLine(
		[]float64{trailerPos.X, hitch.X}, []float64{trailerPos.Y, hitch.Y},
		colorHitch, vg.Points(1.5))
	if err != nil {
		return err
	}
	p.Add(bar)

	dot, err := plotter.NewScatter(plotter.XYs{{X: hitch.X, Y: hitch.Y}})
	if err != nil {
		return err
	}
	dot.GlyphStyle.Shape = draw.CircleGlyph{}
	dot.GlyphStyle.Color = colorHitch
	dot.GlyphStyle.Radius = vg.Points(2.5)
	p.Add(dot)
	return nil
}

// RenderFrames writes one PNG per sample into dir as frame_%04d.png.
func RenderFrames(dir string, sc Scene, tr *result.Trajectory, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating frames directory: %w", err)
	}
	lo, hi := sc.worldBox(tr)

	for i := range tr.T {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("t = %.1f s", tr.T[i])
		p.X.Label.Text = "x [m]"
		p.Y.Label.Text = "y [m]"
		stylePlot(p)
		p.X.Min, p.X.Max = lo.X, hi.X
		p.Y.Min, p.Y.Max = lo.Y, hi.Y

		if err := addWalls(p, sc, lo, hi); err != nil {
			return err
		}
		// Trailed path up to the current sample.
		trail, err := pathLine(tr.X.PX1[:i+1], tr.X.PY1[:i+1], colorTrailer, vg.Points(1))
		if err != nil {
			return err
		}
		p.Add(trail)
		if err := addRigPose(p, sc.Rig, tr, i); err != nil {
			return err
		}

		name := filepath.Join(dir, fmt.Sprintf("frame_%04d.png", i))
		if err := savePNG(p, 5, 5*(hi.Y-lo.Y)/(hi.X-lo.X), name); err != nil {
			return err
		}
	}
	logger.Info("frames rendered", zap.Int("count", tr.Len()), zap.String("dir", dir))
	return nil
}

// EncodeGIF assembles the rendered frames with ffmpeg. A missing ffmpeg is
// not an error: the frames stay on disk and the GIF is skipped.
func EncodeGIF(dir, out string, fps int, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		logger.Warn("ffmpeg not found on PATH, skipping gif")
		return nil
	}
	if fps <= 0 {
		fps = 10
	}

	cmd := exec.Command("ffmpeg",
		"-y",
		"-framerate", fmt.Sprintf("%d", fps),
		"-i", filepath.Join(dir, "frame_%04d.png"),
		out,
	)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg encoding: %w", err)
	}
	logger.Info("gif written", zap.String("out", out))
	return nil
}
