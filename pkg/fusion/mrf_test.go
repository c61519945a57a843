package fusion

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"awolmrf/internal/models"
)

func TestSingletonEnergy(t *testing.T) {
	s := LabelStats{Label: 1, Mean: 10, StdDev: 2}
	base := math.Log(math.Sqrt(2*math.Pi) * 2)
	assert.InDelta(t, base, SingletonEnergy(10, s), 1e-12)
	assert.InDelta(t, base+0.5, SingletonEnergy(12, s), 1e-12)
	assert.InDelta(t, base+2, SingletonEnergy(6, s), 1e-12)

	// constant intensity models stay finite and comparable
	flat1 := SingletonEnergy(50, LabelStats{Label: 1, Mean: 50})
	flat2 := SingletonEnergy(50, LabelStats{Label: 2, Mean: 50})
	assert.False(t, math.IsNaN(flat1) || math.IsInf(flat1, 0))
	assert.Equal(t, flat1, flat2)
	assert.Greater(t, SingletonEnergy(51, LabelStats{Label: 1, Mean: 50}), flat1)
}

func TestPairwiseEnergy(t *testing.T) {
	u := models.Undetermined
	working := lineVolume([]int32{1, 1, u, 2})
	neighbors := []int{0, 1, 2, 3}

	assert.InDelta(t, -0.2, PairwiseEnergy(-0.2, 1, neighbors, working), 1e-12)
	assert.InDelta(t, 0.2, PairwiseEnergy(-0.2, 2, neighbors, working), 1e-12)
	assert.InDelta(t, 0.6, PairwiseEnergy(-0.2, 3, neighbors, working), 1e-12)
	assert.Equal(t, 0.0, PairwiseEnergy(-0.2, 1, nil, working))
}

// walkLine relabels voxels 2, 3 and 4 of a line whose confident ends
// disagree, in the given order.
func walkLine(t *testing.T, seq []int) *models.LabelVolume {
	u := models.Undetermined
	working := lineVolume([]int32{1, 1, u, u, u, 2, 2})
	intensity := lineIntensity([]float64{50, 50, 50, 50, 50, 50, 50})
	hood := NewNeighborhood(working.Shape, []int{2, 3, 4}, 1)
	stats := []LabelStats{{Label: 1, Mean: 50}, {Label: 2, Mean: 50}}

	tally := NewTally()
	r := NewRelabeler(-0.2, hood, intensity, working, tally)
	require.Equal(t, len(seq), r.Walk(seq, stats))
	assert.Equal(t, len(seq), tally.Len())
	return working
}

func TestWalkOrderMatters(t *testing.T) {
	forward := walkLine(t, []int{2, 3, 4})
	assert.Equal(t, []int32{1, 1, 1, 1, 1, 2, 2}, forward.Data)

	backward := walkLine(t, []int{4, 3, 2})
	assert.Equal(t, []int32{1, 1, 1, 2, 2, 2, 2}, backward.Data)
}

func TestChooseWithoutStats(t *testing.T) {
	working := lineVolume([]int32{1, models.Undetermined, 1})
	hood := NewNeighborhood(working.Shape, []int{1}, 1)
	r := NewRelabeler(-0.2, hood, lineIntensity([]float64{1, 1, 1}), working, NewTally())

	_, _, ok := r.Choose(1, nil)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Walk([]int{1}, nil))
	assert.Equal(t, models.Undetermined, working.Data[1])
}

func TestTallyFavoursRecentVoteOnTies(t *testing.T) {
	tests := []struct {
		votes []int32
		want  int32
	}{
		{[]int32{1}, 1},
		{[]int32{1, 2}, 2},
		{[]int32{1, 2, 1}, 1},
		{[]int32{1, 1, 2}, 1},
		{[]int32{1, 1, 2, 2}, 2},
		{[]int32{3, 1, 2}, 2},
	}
	for _, tc := range tests {
		tally := NewTally()
		var leader int32
		for _, v := range tc.votes {
			leader = tally.Vote(7, v)
		}
		assert.Equal(t, tc.want, leader, "votes %v", tc.votes)
		got, ok := tally.Leader(7)
		assert.True(t, ok)
		assert.Equal(t, tc.want, got)
	}

	tally := NewTally()
	_, ok := tally.Leader(1)
	assert.False(t, ok)
	tally.Vote(1, 4)
	tally.Vote(1, 4)
	assert.Equal(t, 2, tally.Votes(1, 4))
	assert.Equal(t, 0, tally.Votes(1, 5))
	assert.Equal(t, 0, tally.Votes(2, 4))
}

func TestResolveFillsUndeterminedWithMajority(t *testing.T) {
	candidates := disputedCube(2, 2)
	vt, err := AggregateVotes(candidates, 1)
	require.NoError(t, err)
	mode := vt.Mode(1)
	labels, err := Classify(vt, mode, []float64{0.2, 0.2}, 1)
	require.NoError(t, err)

	working := labels.Clone()
	assert.Equal(t, 1, Resolve(working, mode, vt.Values))
	assert.Equal(t, MajorityVolume(vt.Shape, mode, vt.Values).Data, working.Data)

	// resolving a resolved volume is a no-op
	again := working.Clone()
	assert.Equal(t, 0, Resolve(again, mode, vt.Values))
	assert.Equal(t, working.Data, again.Data)
}
