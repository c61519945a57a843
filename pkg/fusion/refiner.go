package fusion

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"awolmrf/internal/models"
)

// Report summarizes one refinement run
type Report struct {
	// Candidates is the number of candidate label volumes
	Candidates int

	// Labels holds the distinct label values, ascending
	Labels []int32

	// Shape is the shape of the processed (possibly cropped) volume
	Shape models.Shape

	// Box is the processed region of the input volume
	Box models.BoundingBox

	// LowConfidence counts the voxels whose votes failed the dynamic threshold
	LowConfidence int

	// Seeds counts the low-confidence voxels qualified to anchor a patch
	Seeds int

	// PatchesWalked counts the patches relabeled along their MST sequence
	PatchesWalked int

	// PatchesSkipped counts the patches with nothing left to resolve
	PatchesSkipped int

	// Votes counts the relabeling decisions over all walks
	Votes int

	// ResolvedByWalk counts the low-confidence voxels labeled by a walk
	ResolvedByWalk int

	// ResolvedByMajority counts the low-confidence voxels no walk reached,
	// which fall back to the majority vote
	ResolvedByMajority int

	// Elapsed is the duration of Run
	Elapsed time.Duration
}

// Refiner resolves the low-confidence voxels of a majority vote fusion with
// the AWoL-MRF algorithm:
//
// 1. Counting the candidate votes and classifying voxel confidence
// 2. Indexing the neighborhoods of the low-confidence voxels
// 3. Ranking seeds by the number of confident voxels around them
// 4. For each seed, building its patch, ordering the patch's low-confidence
// voxels along a minimum spanning tree and relabeling them with MRF energies
// 5. Falling back to the majority vote for voxels no patch reached
//
// Vote counting and classification happen in NewRefiner; Run performs the rest.
type Refiner struct {
	params Params
	logger logrus.FieldLogger

	// fullShape is the shape of the inputs before cropping
	fullShape models.Shape

	// box is the processed region of the inputs
	box models.BoundingBox

	// geometry of the intensity volume, carried by every full-size output
	geometry models.Geometry

	intensity  *models.IntensityVolume
	votes      *VoteTensor
	mode       *Mode
	thresholds []float64
	confidence *models.LabelVolume

	report Report
}

// NewRefiner validates the inputs and parameters, crops them to the
// parameters' bounding box and classifies voxel confidence. Invalid inputs
// are rejected before any vote is counted.
func NewRefiner(candidates []*models.LabelVolume, intensity *models.IntensityVolume, params Params, logger logrus.FieldLogger) (*Refiner, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	if intensity == nil {
		return nil, fmt.Errorf("%w: missing intensity volume", ErrShapeMismatch)
	}

	full := candidates[0].Shape
	if intensity.Shape != full || len(intensity.Data) != full.Len() {
		return nil, fmt.Errorf("%w: intensity is %s, candidates are %s", ErrShapeMismatch, intensity.Shape, full)
	}

	r := &Refiner{
		params:    params,
		logger:    logger,
		fullShape: full,
		box:       models.FullBox(full),
		geometry:  intensity.Geometry,
		intensity: intensity,
	}

	if params.BoundingBox != nil {
		box := params.BoundingBox.Expand(params.PatchLength, full)
		if box.Empty() {
			return nil, fmt.Errorf("%w: bounding box %s is empty", ErrInvalidParams, *params.BoundingBox)
		}
		cropped := make([]*models.LabelVolume, len(candidates))
		for i, c := range candidates {
			if c.Shape != full {
				return nil, fmt.Errorf("%w: candidate %d is %s, candidate 0 is %s", ErrShapeMismatch, i, c.Shape, full)
			}
			var err error
			if cropped[i], err = c.Crop(box); err != nil {
				return nil, err
			}
		}
		var err error
		if r.intensity, err = intensity.Crop(box); err != nil {
			return nil, err
		}
		candidates = cropped
		r.box = box
		logger.WithFields(logrus.Fields{
			"box":   box.String(),
			"shape": box.Size().String(),
		}).Debug("Cropped inputs to bounding box")
	}

	start := time.Now()
	votes, err := AggregateVotes(candidates, params.Workers)
	if err != nil {
		return nil, err
	}
	thresholds, err := params.thresholdsFor(len(votes.Values))
	if err != nil {
		return nil, err
	}
	r.votes = votes
	r.thresholds = thresholds
	r.mode = votes.Mode(params.Workers)
	if r.confidence, err = Classify(votes, r.mode, thresholds, params.Workers); err != nil {
		return nil, err
	}

	r.report = Report{
		Candidates:    len(candidates),
		Labels:        votes.Values,
		Shape:         votes.Shape,
		Box:           r.box,
		LowConfidence: r.confidence.Count(models.Undetermined),
	}
	logger.WithFields(logrus.Fields{
		"candidates":     len(candidates),
		"labels":         votes.Values,
		"thresholds":     thresholds,
		"voxels":         humanize.Comma(int64(votes.Shape.Len())),
		"low_confidence": humanize.Comma(int64(r.report.LowConfidence)),
		"elapsed":        time.Since(start),
	}).Info("Classified voxel confidence")
	return r, nil
}

// Confidence returns the confidence volume: the majority label of every
// high-confidence voxel and models.Undetermined elsewhere
func (r *Refiner) Confidence() *models.LabelVolume {
	return r.confidence
}

// FullConfidence returns a copy of the confidence volume embedded in the
// shape and geometry of the inputs. Voxels outside the processed region are
// background.
func (r *Refiner) FullConfidence() (*models.LabelVolume, error) {
	return r.output(r.confidence.Clone())
}

// Votes returns the vote tensor of the processed region
func (r *Refiner) Votes() *VoteTensor {
	return r.votes
}

// Mode returns the majority vote of the processed region
func (r *Refiner) Mode() *Mode {
	return r.mode
}

// Thresholds returns the per-label thresholds used for classification
func (r *Refiner) Thresholds() []float64 {
	return r.thresholds
}

// Report returns the summary of the last run
func (r *Refiner) Report() Report {
	return r.report
}

// lowConfidence returns the indices of the undetermined voxels, ascending
func (r *Refiner) lowConfidence() []int {
	lcv := make([]int, 0, r.report.LowConfidence)
	for p, label := range r.confidence.Data {
		if label == models.Undetermined {
			lcv = append(lcv, p)
		}
	}
	return lcv
}

// Run relabels the low-confidence voxels and returns the fused label volume
// in the shape of the inputs. Voxels outside the processed region are background.
func (r *Refiner) Run() (*models.LabelVolume, error) {
	start := time.Now()
	defer func() { r.report.Elapsed = time.Since(start) }()
	r.report.Seeds, r.report.PatchesWalked, r.report.PatchesSkipped, r.report.Votes = 0, 0, 0, 0
	r.report.ResolvedByWalk, r.report.ResolvedByMajority = 0, 0

	lcv := r.lowConfidence()
	if len(lcv) == 0 {
		r.logger.Warn("No low-confidence voxel was found")
		return r.output(MajorityVolume(r.votes.Shape, r.mode, r.votes.Values))
	}

	hood := NewNeighborhood(r.votes.Shape, lcv, r.params.Workers)
	r.logger.WithField("voxels", humanize.Comma(int64(len(lcv)))).Debug("Indexed low-confidence neighborhoods")

	seeds := SelectSeeds(lcv, hood, r.confidence, r.params.MixingRatio)
	r.report.Seeds = len(seeds)
	r.logger.WithFields(logrus.Fields{
		"seeds":        humanize.Comma(int64(len(seeds))),
		"mixing_ratio": r.params.MixingRatio,
	}).Info("Selected seeds")

	working := r.confidence.Clone()
	if len(seeds) > 0 {
		r.walkPatches(seeds, hood, working)
	}

	r.report.ResolvedByWalk = len(lcv) - working.Count(models.Undetermined)
	r.report.ResolvedByMajority = Resolve(working, r.mode, r.votes.Values)

	r.logger.WithFields(logrus.Fields{
		"walked":      r.report.PatchesWalked,
		"skipped":     r.report.PatchesSkipped,
		"votes":       humanize.Comma(int64(r.report.Votes)),
		"by_walk":     humanize.Comma(int64(r.report.ResolvedByWalk)),
		"by_majority": humanize.Comma(int64(r.report.ResolvedByMajority)),
		"elapsed":     time.Since(start),
	}).Info("Resolved low-confidence voxels")

	return r.output(working)
}

// walkPatches consumes the seed queue. Each walk reads the working labels
// left by the previous walks, so patches are processed strictly in order.
func (r *Refiner) walkPatches(seeds []Seed, hood *Neighborhood, working *models.LabelVolume) {
	builder := NewPatchBuilder(hood, r.confidence, r.intensity, r.votes.Values, r.params.PatchLength)
	relabeler := NewRelabeler(r.params.Beta, hood, r.intensity, working, NewTally())

	queue := NewSeedQueue(seeds)
	for queue.Len() > 0 {
		seed, _ := queue.Pop()
		patch, ok := builder.Build(seed.Index, working)
		if !ok {
			r.report.PatchesSkipped++
			continue
		}
		seq := MSTSequence(patch, hood, r.intensity)
		votes := relabeler.Walk(seq, patch.Stats)
		r.report.PatchesWalked++
		r.report.Votes += votes

		r.logger.WithFields(logrus.Fields{
			"seed":      seed.Index,
			"score":     seed.Score,
			"voxels":    len(patch.Voxels),
			"uncertain": len(patch.Uncertain),
			"labels":    len(patch.Stats),
			"votes":     votes,
		}).Debug("Walked patch")
	}
}

// output embeds the processed region back into the full input shape and
// gives it the geometry of the intensity volume
func (r *Refiner) output(labels *models.LabelVolume) (*models.LabelVolume, error) {
	out := labels
	if r.box != models.FullBox(r.fullShape) {
		var err error
		if out, err = models.Embed(labels, r.fullShape, r.box); err != nil {
			return nil, err
		}
	}
	out.Geometry = r.geometry
	return out, nil
}
