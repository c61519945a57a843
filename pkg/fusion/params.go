package fusion

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/go-playground/validator/v10"

	"awolmrf/internal/models"
)

var (
	// ErrNoCandidates is returned when no candidate label volume is given
	ErrNoCandidates = errors.New("no candidate label volumes")

	// ErrShapeMismatch is returned when the inputs do not share one shape
	ErrShapeMismatch = errors.New("volume shapes differ")

	// ErrGeometryMismatch is returned when the inputs are not placed alike in physical space
	ErrGeometryMismatch = errors.New("volume geometries differ")

	// ErrLabelSetMismatch is returned when a candidate has a different set of label values
	ErrLabelSetMismatch = errors.New("label values differ between candidates")

	// ErrThresholdCount is returned when thresholds do not match the label values
	// and broadcasting is disabled
	ErrThresholdCount = errors.New("number of thresholds does not match number of labels")

	// ErrInvalidParams wraps a parameter range violation
	ErrInvalidParams = errors.New("invalid parameters")
)

var validate = validator.New()

// Params holds the AWoL-MRF parameters.
type Params struct {
	// Beta weighs the pairwise potential. Negative values reward agreement
	// with already labeled neighbors.
	Beta float64

	// MixingRatio is the number of high-confidence voxels a low-confidence
	// voxel must exceed in its 26-neighborhood to become a seed.
	MixingRatio int `validate:"gte=0"`

	// PatchLength is the radius of a patch around its seed, in voxels.
	PatchLength int `validate:"gte=0"`

	// SameThreshold broadcasts the last threshold to labels without one
	SameThreshold bool

	// Thresholds holds one threshold per label value, in ascending label order.
	// A voxel is high-confidence for label k when its votes reach
	// (1/n + Thresholds[k]) * number of candidates.
	Thresholds []float64 `validate:"required,min=1,dive,gte=0,lte=1"`

	// BoundingBox restricts processing to a sub-volume. It is expanded by
	// PatchLength before cropping. Nil processes the whole volume.
	BoundingBox *models.BoundingBox

	// Workers bounds the goroutines used for vote counting and classification
	Workers int `validate:"gte=0"`
}

// DefaultParams returns the parameters used when none are given
func DefaultParams() Params {
	return Params{
		Beta:          -0.2,
		MixingRatio:   10,
		PatchLength:   5,
		SameThreshold: true,
		Thresholds:    []float64{0.2, 0.2},
		Workers:       runtime.NumCPU(),
	}
}

// Validate checks the parameter ranges
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

// thresholdsFor returns one threshold per label value. With SameThreshold,
// the last threshold is repeated for missing labels and extra thresholds are
// ignored. The receiver's slice is never modified.
func (p Params) thresholdsFor(numLabels int) ([]float64, error) {
	n := len(p.Thresholds)
	if n != numLabels && !p.SameThreshold {
		return nil, fmt.Errorf("%w: %d thresholds for %d labels", ErrThresholdCount, n, numLabels)
	}
	out := make([]float64, numLabels)
	copy(out, p.Thresholds)
	for i := n; i < numLabels; i++ {
		out[i] = p.Thresholds[n-1]
	}
	return out, nil
}
