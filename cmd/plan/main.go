// Command plan solves the truck-trailer corner maneuver: it loads the
// vehicle parameter document, plans the two-stage trajectory, writes the
// resampled result, and optionally plots, renders frames, simulates, and
// animates.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"truck-trailer-planner/internal/anim"
	"truck-trailer-planner/internal/common"
	"truck-trailer-planner/internal/config"
	"truck-trailer-planner/internal/corridor"
	"truck-trailer-planner/internal/nlp"
	"truck-trailer-planner/internal/physics"
	"truck-trailer-planner/internal/planner"
	"truck-trailer-planner/internal/result"
	"truck-trailer-planner/internal/viz"
)

var (
	logger *zap.Logger

	verbose    bool
	configPath string
	cfg        config.Config
)

var rootCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan a minimum-time truck-trailer corner maneuver",
	Long: `plan formulates a two-stage optimal-control problem for a truck-trailer
rig driving through a corner-shaped corridor, solves it, resamples the
optimal trajectory onto a fixed-step control grid, and writes the result
document. Plots, footprint frames, a GIF, a diagnostic closed-loop
simulation, and a live animation are optional.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zc := zap.NewProductionConfig()
		zc.Encoding = "console"
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		if verbose {
			zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zc.Build()
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, loaded)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

// applyFlagOverrides merges the config document with explicitly set flags;
// flags win.
func applyFlagOverrides(cmd *cobra.Command, loaded config.Config) {
	set := func(name string) bool { return cmd.Flags().Changed(name) }
	merged := loaded
	if set("params") {
		merged.Params = cfg.Params
	}
	if set("out") {
		merged.Out = cfg.Out
	}
	if set("out-dir") {
		merged.OutDir = cfg.OutDir
	}
	if set("ts") {
		merged.Ts = cfg.Ts
	}
	if set("refine") {
		merged.Refine = cfg.Refine
	}
	if set("simulate") {
		merged.Simulate = cfg.Simulate
	}
	if set("plots") {
		merged.Plots = cfg.Plots
	}
	if set("frames") {
		merged.Frames = cfg.Frames
	}
	if set("gif") {
		merged.GIF = cfg.GIF
	}
	if set("animate") {
		merged.Animate = cfg.Animate
	}
	if set("csv") {
		merged.CSV = cfg.CSV
	}
	if set("tol") {
		merged.Solver.Tol = cfg.Solver.Tol
	}
	cfg = merged
}

func run(ctx context.Context) error {
	params, err := physics.LoadParams(cfg.Params)
	if err != nil {
		return err
	}
	logger.Info("vehicle parameters loaded",
		zap.String("path", cfg.Params),
		zap.Float64("truck_wheelbase", params.Truck.L),
		zap.Float64("trailer_wheelbase", params.Trailer1.L))

	corner := corridor.DefaultCorner()
	opts := planner.DefaultOptions(corner)
	opts.Solver = nlp.Options{
		Tol:            cfg.Solver.Tol,
		MaxOuter:       cfg.Solver.MaxOuter,
		SubIterations:  cfg.Solver.SubIterations,
		InitialPenalty: cfg.Solver.InitialPenalty,
		MaxPenalty:     cfg.Solver.MaxPenalty,
		RaiseOnFail:    true,
	}

	pl, err := planner.New(params, corner, opts, logger)
	if err != nil {
		return err
	}

	sol, err := pl.Solve(ctx, nil)
	if err != nil {
		return err
	}

	tr, err := sol.Resample(cfg.Ts)
	if err != nil {
		return err
	}
	if v := planner.CorridorViolation(tr, pl.Rig(), corner, sol.T1); v > 0 {
		logger.Warn("resampled trajectory exceeds the corridor between shooting nodes",
			zap.Float64("violation", v))
	}

	if err := result.Save(cfg.Out, tr); err != nil {
		return err
	}
	logger.Info("result written", zap.String("path", cfg.Out), zap.Int("samples", tr.Len()))

	if cfg.CSV {
		csvPath := filepath.Join(cfg.OutDir, "trajectory.csv")
		if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		if err := result.WriteCSV(csvPath, tr); err != nil {
			return err
		}
		logger.Info("csv written", zap.String("path", csvPath))
	}

	var sim *planner.SimResult
	if cfg.Simulate {
		sim = planner.Simulate(tr, pl.Rig(), logger)
	}

	scene := viz.Scene{Rig: pl.Rig(), Corner: corner}
	if cfg.Plots {
		if err := savePlots(scene, tr, sim, sol); err != nil {
			return err
		}
	}

	if cfg.Frames || cfg.GIF {
		framesDir := filepath.Join(cfg.OutDir, "frames")
		frameTr := tr
		if cfg.Refine > 1 {
			// Denser grid for smooth frames.
			if frameTr, err = sol.Resample(cfg.Ts / float64(cfg.Refine)); err != nil {
				return err
			}
		}
		if err := viz.RenderFrames(framesDir, scene, frameTr, logger); err != nil {
			return err
		}
		if cfg.GIF {
			gifPath := filepath.Join(cfg.OutDir, "maneuver.gif")
			if err := viz.EncodeGIF(framesDir, gifPath, 10*cfg.Refine, logger); err != nil {
				return err
			}
		}
	}

	if cfg.Animate {
		if err := anim.Run(tr, pl.Rig(), corner); err != nil {
			return err
		}
	}
	return nil
}

func savePlots(scene viz.Scene, tr *result.Trajectory, sim *planner.SimResult, sol *planner.Solution) error {
	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	// Stage boundary markers: start and end of each stage.
	n1 := sol.Approach.NodePositions(physics.SX1, physics.SY1)
	n2 := sol.Turn.NodePositions(physics.SX1, physics.SY1)
	markers := []common.Vec2{n1[0], n1[len(n1)-1], n2[0], n2[len(n2)-1]}
	overview := filepath.Join(cfg.OutDir, "overview.png")
	if err := viz.SaveOverview(overview, scene, tr, markers); err != nil {
		return err
	}
	controls := filepath.Join(cfg.OutDir, "controls.png")
	if err := viz.SaveControlTraces(controls, tr); err != nil {
		return err
	}
	logger.Info("plots written", zap.String("dir", cfg.OutDir))

	if sim != nil {
		beta := filepath.Join(cfg.OutDir, "articulation.png")
		if err := viz.SaveArticulationComparison(beta, tr, sim); err != nil {
			return err
		}
	}
	return nil
}

var initParamsCmd = &cobra.Command{
	Use:   "init-params",
	Short: "Write the default vehicle parameter document",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(cfg.Params); err == nil {
			return fmt.Errorf("refusing to overwrite %s", cfg.Params)
		}
		if err := physics.SaveParams(cfg.Params, physics.DefaultParams()); err != nil {
			return err
		}
		logger.Info("parameter document written", zap.String("path", cfg.Params))
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVar(&configPath, "config", "planner.yaml", "run configuration document")
	pf.StringVar(&cfg.Params, "params", "", "vehicle parameter document")

	f := rootCmd.Flags()
	f.StringVar(&cfg.Out, "out", "", "result document path")
	f.StringVar(&cfg.OutDir, "out-dir", "", "directory for plots, frames, csv")
	f.Float64Var(&cfg.Ts, "ts", 0, "control grid step in seconds")
	f.IntVar(&cfg.Refine, "refine", 0, "frame grid density multiplier")
	f.BoolVar(&cfg.Simulate, "simulate", false, "run the diagnostic closed-loop simulation")
	f.BoolVar(&cfg.Plots, "plots", false, "write overview and control plots")
	f.BoolVar(&cfg.Frames, "frames", false, "render per-sample footprint frames")
	f.BoolVar(&cfg.GIF, "gif", false, "assemble frames into a gif (needs ffmpeg)")
	f.BoolVar(&cfg.Animate, "animate", false, "open the playback window after solving")
	f.BoolVar(&cfg.CSV, "csv", false, "export the trajectory as csv")
	f.Float64Var(&cfg.Solver.Tol, "tol", 0, "solver residual tolerance")

	rootCmd.AddCommand(initParamsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
