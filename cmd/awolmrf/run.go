package main

import (
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"awolmrf/internal/models"
	"awolmrf/pkg/config"
	"awolmrf/pkg/fusion"
	"awolmrf/pkg/logging"
	"awolmrf/pkg/volumeio"
)

// runOptions holds the flags of the run command. Only flags set on the
// command line override the configuration file.
type runOptions struct {
	configPath          string
	intensity           string
	confidence          string
	beta                float64
	patchLength         int
	mixingRatio         int
	thresholds          []float64
	sameThreshold       bool
	differentThresholds bool
	workers             int
	noBoundingBox       bool
	clobber             bool
	format              string
	logLevel            string
	logFile             string
	logJSON             bool
	verbose             bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "run CANDIDATE... OUTPUT",
		Short: "Fuse candidate label volumes and refine the disputed voxels",
		Long: `Fuse candidate label volumes and refine the disputed voxels.

Each CANDIDATE is either a directory of grayscale PNG slices or a .vol
file; the intensity volume may also use JPEG slices. All inputs must share
one shape and geometry. OUTPUT takes the geometry of the intensity volume
and is written as a slice directory unless it ends in .vol or --format says
otherwise. Slice directories do not keep geometry.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFusion(cmd, opts, args[:len(args)-1], args[len(args)-1])
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	f.StringVarP(&opts.intensity, "intensity", "i", "", "intensity volume (required)")
	f.StringVar(&opts.confidence, "confidence", "", "also write the confidence volume, undetermined voxels as -1, to this .vol file")
	f.Float64VarP(&opts.beta, "beta", "b", defaults.Fusion.Beta, "weight of the pairwise potential")
	f.IntVarP(&opts.patchLength, "patch-length", "p", defaults.Fusion.PatchLength, "patch radius in voxels")
	f.IntVarP(&opts.mixingRatio, "mixing-ratio", "r", defaults.Fusion.MixingRatio, "confident neighbors a seed must exceed")
	f.Float64SliceVarP(&opts.thresholds, "thresholds", "t", defaults.Fusion.Thresholds, "per-label confidence thresholds, background first")
	f.BoolVar(&opts.sameThreshold, "same-threshold", false, "repeat the last threshold for labels without one")
	f.BoolVar(&opts.differentThresholds, "different-thresholds", false, "require one threshold per label")
	f.IntVarP(&opts.workers, "workers", "w", defaults.Processing.Workers, "goroutines used for vote counting and indexing")
	f.BoolVar(&opts.noBoundingBox, "no-bbox", false, "process the whole volume instead of the foreground bounding box")
	f.BoolVar(&opts.clobber, "clobber", false, "overwrite an existing output")
	f.StringVar(&opts.format, "format", defaults.Output.Format, "output format: auto, slices or vol")
	f.StringVar(&opts.logLevel, "log-level", defaults.Logging.Level, "log level")
	f.StringVar(&opts.logFile, "log-file", "", "write the log to a rotated file")
	f.BoolVar(&opts.logJSON, "log-json", false, "log in JSON")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "shorthand for --log-level debug")
	cmd.MarkFlagsMutuallyExclusive("same-threshold", "different-thresholds")
	_ = cmd.MarkFlagRequired("intensity")

	return cmd
}

// applyFlags overrides cfg with the flags set on the command line
func applyFlags(cmd *cobra.Command, opts *runOptions, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("beta") {
		cfg.Fusion.Beta = opts.beta
	}
	if changed("patch-length") {
		cfg.Fusion.PatchLength = opts.patchLength
	}
	if changed("mixing-ratio") {
		cfg.Fusion.MixingRatio = opts.mixingRatio
	}
	if changed("thresholds") {
		cfg.Fusion.Thresholds = opts.thresholds
	}
	if changed("same-threshold") {
		cfg.Fusion.SameThreshold = true
	}
	if changed("different-thresholds") {
		cfg.Fusion.SameThreshold = false
	}
	if changed("workers") {
		cfg.Processing.Workers = opts.workers
	}
	if changed("no-bbox") {
		cfg.Processing.BoundingBox = !opts.noBoundingBox
	}
	if changed("clobber") {
		cfg.Output.Clobber = opts.clobber
	}
	if changed("format") {
		cfg.Output.Format = opts.format
	}
	if changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.verbose {
		cfg.Logging.Level = "debug"
	}
	if changed("log-file") {
		cfg.Logging.File = opts.logFile
	}
	if changed("log-json") {
		cfg.Logging.JSON = opts.logJSON
	}
}

func runFusion(cmd *cobra.Command, opts *runOptions, inputs []string, output string) error {
	cfg := config.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.LoadConfig(opts.configPath); err != nil {
			return err
		}
	}
	applyFlags(cmd, opts, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closer, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		JSON:       cfg.Logging.JSON,
		Stderr:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}
	defer closer.Close()

	// SaveLabels checks again once the run is over
	for _, path := range []string{output, opts.confidence} {
		if path != "" && volumeio.Exists(path) && !cfg.Output.Clobber {
			return fmt.Errorf("%s: %w (use --clobber to overwrite)", path, volumeio.ErrExists)
		}
	}
	format, err := volumeio.ResolveFormat(output, cfg.Output.Format)
	if err != nil {
		return err
	}

	start := time.Now()
	candidates, intensity, err := loadInputs(logger, inputs, opts.intensity)
	if err != nil {
		return err
	}

	params := cfg.FusionParams()
	if cfg.Processing.BoundingBox {
		if box, ok := models.ForegroundBox(candidates...); ok {
			params.BoundingBox = &box
		} else {
			logger.Debug("Candidates hold no foreground, processing the whole volume")
		}
	}

	refiner, err := fusion.NewRefiner(candidates, intensity, params, logger)
	if err != nil {
		return err
	}
	if opts.confidence != "" {
		if err := saveConfidence(logger, refiner, opts.confidence, cfg.Output.Clobber); err != nil {
			return err
		}
	}
	fused, err := refiner.Run()
	if err != nil {
		return err
	}

	if format == volumeio.FormatSlices && fused.Geometry != models.DefaultGeometry() {
		logger.WithField("geometry", fused.Geometry.String()).Warn("Slice output does not keep the geometry of the inputs")
	}
	if err := volumeio.SaveLabels(output, fused, format, cfg.Output.Clobber); err != nil {
		return fmt.Errorf("failed to save output: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"output":  output,
		"elapsed": time.Since(start),
	}).Info("Saved fused labels")

	printReport(cmd.OutOrStdout(), refiner.Report(), output, time.Since(start))
	return nil
}

// saveConfidence writes the confidence volume of the refiner as a container
func saveConfidence(logger logrus.FieldLogger, refiner *fusion.Refiner, path string, clobber bool) error {
	confidence, err := refiner.FullConfidence()
	if err != nil {
		return err
	}
	if err := volumeio.SaveLabels(path, confidence, volumeio.FormatVol, clobber); err != nil {
		return fmt.Errorf("failed to save confidence: %w", err)
	}
	logger.WithField("path", path).Info("Saved confidence volume")
	return nil
}

// loadInputs reads the candidates and the intensity volume and checks that
// they share one shape and one geometry
func loadInputs(logger logrus.FieldLogger, inputs []string, intensityPath string) ([]*models.LabelVolume, *models.IntensityVolume, error) {
	candidates := make([]*models.LabelVolume, len(inputs))
	shapes := make([]models.Shape, len(inputs))
	geoms := make([]models.Geometry, len(inputs))
	for i, path := range inputs {
		v, err := volumeio.LoadLabels(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to load candidate %s: %w", path, err)
		}
		candidates[i] = v
		shapes[i] = v.Shape
		geoms[i] = v.Geometry
		logger.WithFields(logrus.Fields{"path": path, "shape": v.Shape.String()}).Debug("Loaded candidate")
	}

	intensity, err := volumeio.LoadIntensity(intensityPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load intensity %s: %w", intensityPath, err)
	}

	names := append(append([]string(nil), inputs...), intensityPath)
	shapes = append(shapes, intensity.Shape)
	if err := models.CheckShapes(candidates[0].Shape, shapes, names); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", fusion.ErrShapeMismatch, err)
	}
	geoms = append(geoms, intensity.Geometry)
	if err := models.CheckGeometry(candidates[0].Geometry, geoms, names); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", fusion.ErrGeometryMismatch, err)
	}

	logger.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"shape":      intensity.Shape.String(),
		"voxels":     humanize.Comma(int64(intensity.Shape.Len())),
	}).Info("Loaded inputs")
	return candidates, intensity, nil
}

func printReport(w io.Writer, report fusion.Report, output string, elapsed time.Duration) {
	fmt.Fprintln(w, "AWoL-MRF label fusion")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintf(w, "Candidates:            %d\n", report.Candidates)
	fmt.Fprintf(w, "Labels:                %v\n", report.Labels)
	fmt.Fprintf(w, "Processed region:      %s (%s voxels)\n", report.Box, humanize.Comma(int64(report.Shape.Len())))
	fmt.Fprintf(w, "Low-confidence voxels: %s\n", humanize.Comma(int64(report.LowConfidence)))
	fmt.Fprintf(w, "Seeds:                 %s\n", humanize.Comma(int64(report.Seeds)))
	fmt.Fprintf(w, "Patches walked:        %s (%s skipped)\n", humanize.Comma(int64(report.PatchesWalked)), humanize.Comma(int64(report.PatchesSkipped)))
	fmt.Fprintf(w, "Relabel votes:         %s\n", humanize.Comma(int64(report.Votes)))
	fmt.Fprintf(w, "Resolved by walk:      %s\n", humanize.Comma(int64(report.ResolvedByWalk)))
	fmt.Fprintf(w, "Resolved by majority:  %s\n", humanize.Comma(int64(report.ResolvedByMajority)))
	fmt.Fprintf(w, "Refinement time:       %.2f seconds\n", report.Elapsed.Seconds())
	fmt.Fprintf(w, "Total time:            %.2f seconds\n", elapsed.Seconds())
	fmt.Fprintf(w, "Output:                %s\n", output)
}

func newConfigInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init PATH",
		Short: "Write a configuration file holding the default values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if volumeio.Exists(path) && !force {
				return fmt.Errorf("%s: %w (use --clobber to overwrite)", path, volumeio.ErrExists)
			}
			if err := config.CreateDefaultConfigFile(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "clobber", false, "overwrite an existing file")
	return cmd
}
