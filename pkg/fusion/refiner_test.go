package fusion

import (
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"awolmrf/internal/models"
)

// TestDisputedVoxelFollowsNeighbors runs the single disputed voxel scenario:
// equal singleton energies, so the pairwise term picks the label held by
// most of the six direct neighbors.
func TestDisputedVoxelFollowsNeighbors(t *testing.T) {
	tests := []struct {
		name       string
		xLabel     int32
		otherLabel int32
		want       int32
	}{
		{"majority neighbors label 1", 2, 1, 1},
		{"majority neighbors label 2", 1, 2, 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			candidates := disputedCube(tc.xLabel, tc.otherLabel)
			shape := candidates[0].Shape
			logger, _ := test.NewNullLogger()

			r, err := NewRefiner(candidates, constantIntensity(shape, 50), scenarioParams(), logger)
			require.NoError(t, err)

			center := shape.Index(1, 1, 1)
			assert.Equal(t, models.Undetermined, r.Confidence().Data[center])
			assert.Equal(t, 1, r.Report().LowConfidence)

			out, err := r.Run()
			require.NoError(t, err)
			assert.Equal(t, tc.want, out.Data[center])

			for p := range out.Data {
				if p != center {
					assert.Equal(t, candidates[0].Data[p], out.Data[p], "voxel %d", p)
				}
			}

			report := r.Report()
			assert.Equal(t, 1, report.Seeds)
			assert.Equal(t, 1, report.PatchesWalked)
			assert.Equal(t, 0, report.PatchesSkipped)
			assert.Equal(t, 1, report.Votes)
			assert.Equal(t, 1, report.ResolvedByWalk)
			assert.Equal(t, 0, report.ResolvedByMajority)
		})
	}
}

// TestOverlappingPatches disputes a row of four voxels along x. With a
// patch radius of 2 the first two seeds cover the whole row, revisiting the
// middle voxels, and the last two seeds find nothing left to resolve.
func TestOverlappingPatches(t *testing.T) {
	shape := models.Shape{Depth: 8, Height: 8, Width: 8}
	truth := models.NewLabelVolume(shape)
	for z := 2; z < shape.Depth; z++ {
		for y := range shape.Height {
			for x := range shape.Width {
				truth.Set(z, y, x, 1+int32(x/4))
			}
		}
	}

	candidates := make([]*models.LabelVolume, 5)
	for i := range candidates {
		candidates[i] = truth.Clone()
	}
	disputed := []int32{1, 1, 2, 2, 0}
	row := make([]int, 0, 4)
	for x := 2; x <= 5; x++ {
		p := shape.Index(4, 4, x)
		row = append(row, p)
		for i, c := range candidates {
			c.Data[p] = disputed[i]
		}
	}

	rng := rand.New(rand.NewSource(7))
	intensity := models.NewIntensityVolume(shape)
	for p := range intensity.Data {
		intensity.Data[p] = 40*float64(truth.Data[p]) + 10*rng.Float64()
	}

	params := DefaultParams()
	params.MixingRatio = 5
	params.PatchLength = 2
	params.Workers = 3

	logger, _ := test.NewNullLogger()
	r, err := NewRefiner(candidates, intensity, params, logger)
	require.NoError(t, err)
	confidence := r.Confidence().Clone()
	for _, p := range row {
		require.Equal(t, models.Undetermined, confidence.Data[p])
	}

	out, err := r.Run()
	require.NoError(t, err)

	report := r.Report()
	assert.Equal(t, 4, report.LowConfidence)
	assert.Equal(t, 4, report.Seeds)
	assert.Equal(t, 2, report.PatchesWalked)
	assert.Equal(t, 2, report.PatchesSkipped)
	assert.Equal(t, 6, report.Votes)
	assert.Greater(t, report.Votes, report.ResolvedByWalk)
	assert.Equal(t, 4, report.ResolvedByWalk)
	assert.Equal(t, 0, report.ResolvedByMajority)

	for p, label := range confidence.Data {
		if label != models.Undetermined {
			assert.Equal(t, label, out.Data[p], "confident voxel %d changed", p)
		}
	}
	for _, p := range row {
		assert.Contains(t, []int32{1, 2}, out.Data[p])
	}
}

func TestUnanimousVolumeReturnsMajority(t *testing.T) {
	shape := models.Shape{Depth: 4, Height: 3, Width: 5}
	a := filledLabels(shape, 0)
	for x := 1; x < 4; x++ {
		a.Set(1, 1, x, 1)
		a.Set(2, 1, x, 1)
	}
	candidates := []*models.LabelVolume{a, a.Clone(), a.Clone()}

	logger, hook := test.NewNullLogger()
	r, err := NewRefiner(candidates, constantIntensity(shape, 10), DefaultParams(), logger)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Report().LowConfidence)

	out, err := r.Run()
	require.NoError(t, err)
	assert.Equal(t, a.Data, out.Data)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "No low-confidence voxel was found" {
			warned = true
		}
	}
	assert.True(t, warned, "expected a warning about missing low-confidence voxels")
}

func TestUnreachableSeedsFallBackToMajority(t *testing.T) {
	candidates := disputedCube(2, 2)
	shape := candidates[0].Shape
	params := scenarioParams()
	params.MixingRatio = 26

	logger, _ := test.NewNullLogger()
	r, err := NewRefiner(candidates, constantIntensity(shape, 50), params, logger)
	require.NoError(t, err)

	out, err := r.Run()
	require.NoError(t, err)

	center := shape.Index(1, 1, 1)
	// one vote each; the majority tie goes to the lowest label
	assert.Equal(t, int32(1), out.Data[center])

	report := r.Report()
	assert.Equal(t, 0, report.Seeds)
	assert.Equal(t, 0, report.PatchesWalked)
	assert.Equal(t, 0, report.Votes)
	assert.Equal(t, 1, report.ResolvedByMajority)

	majority := MajorityVolume(shape, r.Mode(), r.Votes().Values)
	assert.Equal(t, majority.Data, out.Data)
}

func TestBoundingBoxOutputIsEmbedded(t *testing.T) {
	cube := disputedCube(2, 1)
	shape := models.Shape{Depth: 9, Height: 9, Width: 9}
	candidates := make([]*models.LabelVolume, len(cube))
	for i, c := range cube {
		v := models.NewLabelVolume(shape)
		for z := 0; z < 3; z++ {
			for y := 0; y < 3; y++ {
				for x := 0; x < 3; x++ {
					v.Set(z+3, y+3, x+3, c.At(z, y, x))
				}
			}
		}
		// outside the expanded box, dropped from the output
		v.Set(0, 0, 0, 2)
		candidates[i] = v
	}

	params := scenarioParams()
	box, ok := models.ForegroundBox(candidates[0])
	require.True(t, ok)
	assert.Equal(t, models.BoundingBox{MaxX: 6, MaxY: 6, MaxZ: 6}, box)
	box = models.BoundingBox{MinX: 3, MinY: 3, MinZ: 3, MaxX: 6, MaxY: 6, MaxZ: 6}
	params.BoundingBox = &box

	intensity := constantIntensity(shape, 50)
	intensity.Geometry.Spacing = [3]float64{0.5, 0.5, 2}
	intensity.Geometry.Origin = [3]float64{10, -20, 30}

	logger, _ := test.NewNullLogger()
	r, err := NewRefiner(candidates, intensity, params, logger)
	require.NoError(t, err)
	assert.Equal(t, models.Shape{Depth: 5, Height: 5, Width: 5}, r.Report().Shape)

	confidence, err := r.FullConfidence()
	require.NoError(t, err)
	require.Equal(t, shape, confidence.Shape)
	assert.Equal(t, models.Undetermined, confidence.At(4, 4, 4))
	assert.Equal(t, int32(0), confidence.At(0, 0, 0))
	assert.Equal(t, intensity.Geometry, confidence.Geometry)

	out, err := r.Run()
	require.NoError(t, err)
	require.Equal(t, shape, out.Shape)
	assert.Equal(t, int32(1), out.At(4, 4, 4))
	assert.Equal(t, int32(0), out.At(0, 0, 0))
	assert.Equal(t, int32(2), out.At(4, 4, 3))
	assert.Equal(t, intensity.Geometry, out.Geometry)

	// the confidence copy is not touched by the run
	assert.Equal(t, models.Undetermined, confidence.At(4, 4, 4))
}

func TestNewRefinerRejectsInvalidInputs(t *testing.T) {
	shape := models.Shape{Depth: 2, Height: 2, Width: 2}
	intensity := constantIntensity(shape, 1)
	logger, _ := test.NewNullLogger()

	_, err := NewRefiner(nil, intensity, DefaultParams(), logger)
	assert.ErrorIs(t, err, ErrNoCandidates)

	a := filledLabels(shape, 1)
	_, err = NewRefiner([]*models.LabelVolume{a}, constantIntensity(models.Shape{Depth: 1, Height: 2, Width: 2}, 1), DefaultParams(), logger)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	b := filledLabels(shape, 1)
	b.Data[0] = 3
	_, err = NewRefiner([]*models.LabelVolume{a, b}, intensity, DefaultParams(), logger)
	assert.ErrorIs(t, err, ErrLabelSetMismatch)

	params := DefaultParams()
	params.PatchLength = -1
	_, err = NewRefiner([]*models.LabelVolume{a}, intensity, params, logger)
	assert.ErrorIs(t, err, ErrInvalidParams)

	params = DefaultParams()
	params.SameThreshold = false
	params.Thresholds = []float64{0.2, 0.2, 0.2}
	c := filledLabels(shape, 1)
	c.Data[0] = 0
	_, err = NewRefiner([]*models.LabelVolume{c}, intensity, params, logger)
	assert.ErrorIs(t, err, ErrThresholdCount)
}
