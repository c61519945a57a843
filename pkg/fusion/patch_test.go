package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"awolmrf/internal/models"
)

func lineVolume(labels []int32) *models.LabelVolume {
	return &models.LabelVolume{Shape: models.Shape{Depth: 1, Height: 1, Width: len(labels)}, Data: labels}
}

func lineIntensity(values []float64) *models.IntensityVolume {
	return &models.IntensityVolume{Shape: models.Shape{Depth: 1, Height: 1, Width: len(values)}, Data: values}
}

func TestSelectSeedsRanksByConfidentNeighbors(t *testing.T) {
	u := models.Undetermined
	labels := lineVolume([]int32{1, u, 1, u, u, 1})
	lcv := []int{1, 3, 4}
	hood := NewNeighborhood(labels.Shape, lcv, 1)

	seeds := SelectSeeds(lcv, hood, labels, 0)
	assert.Equal(t, []Seed{{Index: 1, Score: 2}, {Index: 3, Score: 1}, {Index: 4, Score: 1}}, seeds)

	seeds = SelectSeeds(lcv, hood, labels, 1)
	assert.Equal(t, []Seed{{Index: 1, Score: 2}}, seeds)

	assert.Empty(t, SelectSeeds(lcv, hood, labels, 2))
}

func TestSeedQueuePopsInOrder(t *testing.T) {
	q := NewSeedQueue([]Seed{{Index: 4, Score: 9}, {Index: 2, Score: 3}})
	assert.Equal(t, 2, q.Len())

	s, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, 4, s.Index)
	s, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, 2, s.Index)

	_, ok = q.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, q.Len())
}

func TestBuildPatchStats(t *testing.T) {
	u := models.Undetermined
	confidence := lineVolume([]int32{1, 1, u, 2, 2, 2})
	intensity := lineIntensity([]float64{10, 12, 50, 20, 22, 24})
	hood := NewNeighborhood(confidence.Shape, []int{2}, 1)
	builder := NewPatchBuilder(hood, confidence, intensity, []int32{1, 2}, 2)

	patch, ok := builder.Build(2, confidence.Clone())
	require.True(t, ok)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, patch.Voxels)
	assert.Equal(t, []int{2}, patch.Uncertain)
	require.Len(t, patch.Stats, 2)
	assert.Equal(t, int32(1), patch.Stats[0].Label)
	assert.InDelta(t, 11, patch.Stats[0].Mean, 1e-12)
	assert.InDelta(t, 1, patch.Stats[0].StdDev, 1e-12)
	assert.Equal(t, int32(2), patch.Stats[1].Label)
	assert.InDelta(t, 21, patch.Stats[1].Mean, 1e-12)
	assert.InDelta(t, 1, patch.Stats[1].StdDev, 1e-12)

	// a label needs two samples to enter the statistics
	narrow := NewPatchBuilder(hood, confidence, intensity, []int32{1, 2}, 1)
	patch, ok = narrow.Build(2, confidence.Clone())
	require.True(t, ok)
	assert.Empty(t, patch.Stats)
}

func TestBuildPatchSkipsResolvedPatches(t *testing.T) {
	u := models.Undetermined
	confidence := lineVolume([]int32{1, 1, u, 2, 2, 2})
	intensity := lineIntensity([]float64{10, 12, 50, 20, 22, 24})
	hood := NewNeighborhood(confidence.Shape, []int{2}, 1)
	builder := NewPatchBuilder(hood, confidence, intensity, []int32{1, 2}, 2)

	working := confidence.Clone()
	working.Data[2] = 1
	patch, ok := builder.Build(2, working)
	assert.False(t, ok)
	assert.Nil(t, patch)
	assert.Equal(t, []int32{1, 1, 1, 2, 2, 2}, working.Data)
}
