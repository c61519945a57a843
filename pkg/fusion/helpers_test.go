package fusion

import (
	"awolmrf/internal/models"
)

// filledLabels creates a label volume holding label everywhere
func filledLabels(shape models.Shape, label int32) *models.LabelVolume {
	v := models.NewLabelVolume(shape)
	for i := range v.Data {
		v.Data[i] = label
	}
	return v
}

// constantIntensity creates an intensity volume holding value everywhere
func constantIntensity(shape models.Shape, value float64) *models.IntensityVolume {
	v := models.NewIntensityVolume(shape)
	for i := range v.Data {
		v.Data[i] = value
	}
	return v
}

// disputedCube builds two 3x3x3 candidates that agree everywhere except at
// the center, where the first votes 1 and the second votes 2. The two
// x-neighbors of the center hold xLabel and the other four direct neighbors
// hold otherLabel in both candidates; remaining voxels hold 1.
func disputedCube(xLabel, otherLabel int32) []*models.LabelVolume {
	shape := models.Shape{Depth: 3, Height: 3, Width: 3}
	a := filledLabels(shape, 1)
	for _, c := range [][3]int{{1, 0, 1}, {1, 2, 1}, {0, 1, 1}, {2, 1, 1}} {
		a.Set(c[0], c[1], c[2], otherLabel)
	}
	a.Set(1, 1, 0, xLabel)
	a.Set(1, 1, 2, xLabel)
	b := a.Clone()
	a.Set(1, 1, 1, 1)
	b.Set(1, 1, 1, 2)
	return []*models.LabelVolume{a, b}
}

// scenarioParams returns the parameters of the single disputed voxel scenario
func scenarioParams() Params {
	p := DefaultParams()
	p.Thresholds = []float64{0.2, 0.2}
	p.MixingRatio = 0
	p.PatchLength = 1
	p.Beta = -0.2
	p.Workers = 2
	return p
}
