// Command animate replays a saved result document in a window.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"truck-trailer-planner/internal/anim"
	"truck-trailer-planner/internal/corridor"
	"truck-trailer-planner/internal/physics"
	"truck-trailer-planner/internal/result"
)

var (
	resultPath string
	paramsPath string
)

var rootCmd = &cobra.Command{
	Use:          "animate",
	Short:        "Replay a solved truck-trailer maneuver",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		params, err := physics.LoadParams(paramsPath)
		if err != nil {
			return err
		}
		tr, err := result.Load(resultPath)
		if err != nil {
			return err
		}
		return anim.Run(tr, physics.NewRig(params), corridor.DefaultCorner())
	},
}

func init() {
	rootCmd.Flags().StringVar(&resultPath, "result", "truck_trailer_x_u.yaml", "result document to replay")
	rootCmd.Flags().StringVar(&paramsPath, "params", "truck_trailer_para.yaml", "vehicle parameter document")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
