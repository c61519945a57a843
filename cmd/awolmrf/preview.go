package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"awolmrf/internal/models"
	"awolmrf/pkg/visualization"
	"awolmrf/pkg/volumeio"
)

func newPreviewCmd() *cobra.Command {
	var (
		intensityPath string
		axis          string
		opacity       float64
	)

	cmd := &cobra.Command{
		Use:   "preview LABELS DIR",
		Short: "Render label overlays as PNG slices for visual inspection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			labels, err := volumeio.LoadLabels(args[0])
			if err != nil {
				return fmt.Errorf("failed to load labels %s: %w", args[0], err)
			}

			var intensity *models.IntensityVolume
			if intensityPath != "" {
				if intensity, err = volumeio.LoadIntensity(intensityPath); err != nil {
					return fmt.Errorf("failed to load intensity %s: %w", intensityPath, err)
				}
			}

			viewer, err := visualization.NewViewer(labels, intensity)
			if err != nil {
				return err
			}
			viewer.Opacity = opacity

			axes := []string{axis}
			if axis == "all" {
				axes = []string{"x", "y", "z"}
			}
			for _, a := range axes {
				dir := args[1]
				if len(axes) > 1 {
					dir = filepath.Join(dir, a)
				}
				n, err := viewer.SaveSliceSequence(a, dir)
				if err != nil {
					return fmt.Errorf("failed to save %s-axis slices: %w", a, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Saved %d %s-axis slices to: %s\n", n, a, dir)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&intensityPath, "intensity", "i", "", "intensity volume drawn under the labels")
	f.StringVarP(&axis, "axis", "a", "z", "slice axis: x, y, z or all")
	f.Float64Var(&opacity, "opacity", 0.5, "label overlay opacity in [0, 1]")
	return cmd
}
