package fusion

import (
	"gonum.org/v1/gonum/stat"

	"awolmrf/internal/models"
)

// LabelStats is the Gaussian intensity model of one label inside a patch
type LabelStats struct {
	Label  int32
	Mean   float64
	StdDev float64
}

// Patch is the neighborhood of a seed within which labels are relabeled together
type Patch struct {
	Seed int

	// Voxels holds every voxel within the patch radius, ascending
	Voxels []int

	// Uncertain holds the patch voxels that were low-confidence at
	// classification, ascending. It always contains Seed.
	Uncertain []int

	// Stats holds the intensity model of every label with at least two
	// high-confidence voxels in the patch, in ascending label order.
	Stats []LabelStats
}

// PatchBuilder gathers patches around seeds
type PatchBuilder struct {
	hood       *Neighborhood
	confidence *models.LabelVolume
	intensity  *models.IntensityVolume
	values     []int32
	radiusSq   float64
}

// NewPatchBuilder returns a builder for patches of the given radius
func NewPatchBuilder(hood *Neighborhood, confidence *models.LabelVolume, intensity *models.IntensityVolume, values []int32, radius int) *PatchBuilder {
	return &PatchBuilder{
		hood:       hood,
		confidence: confidence,
		intensity:  intensity,
		values:     values,
		radiusSq:   float64(radius * radius),
	}
}

// Build returns the patch around seed. The boolean is false when every
// voxel of the patch has already been resolved in working; such a patch
// would not update any additional voxel and is skipped.
func (b *PatchBuilder) Build(seed int, working *models.LabelVolume) (*Patch, bool) {
	voxels := b.hood.Within(seed, b.radiusSq)

	pending := false
	for _, p := range voxels {
		if working.Data[p] == models.Undetermined {
			pending = true
			break
		}
	}
	if !pending {
		return nil, false
	}

	patch := &Patch{Seed: seed, Voxels: voxels}
	samples := make(map[int32][]float64)
	for _, p := range voxels {
		label := b.confidence.Data[p]
		if label == models.Undetermined {
			patch.Uncertain = append(patch.Uncertain, p)
			continue
		}
		samples[label] = append(samples[label], b.intensity.Data[p])
	}

	for _, label := range b.values {
		points := samples[label]
		if len(points) < 2 {
			continue
		}
		mean, std := stat.PopMeanStdDev(points, nil)
		patch.Stats = append(patch.Stats, LabelStats{Label: label, Mean: mean, StdDev: std})
	}
	return patch, true
}
