package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "awolmrf",
		Short: "Refine a multi-atlas label fusion with AWoL-MRF",
		Long: `awolmrf fuses several candidate segmentations of the same volume by
majority vote, then relabels the voxels the candidates disagree on using
patches ordered by a minimum spanning tree and a Markov random field.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage awolmrf configuration files",
	}
	configCmd.AddCommand(newConfigInitCmd())

	rootCmd.AddCommand(newRunCmd(), newPreviewCmd(), configCmd)
	return rootCmd
}
