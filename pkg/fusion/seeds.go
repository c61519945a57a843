package fusion

import (
	"sort"

	"awolmrf/internal/models"
)

// Seed is a low-confidence voxel that anchors a patch. Score is the number
// of high-confidence voxels in its 26-neighborhood.
type Seed struct {
	Index int
	Score int
}

// SelectSeeds ranks the low-confidence voxels lcv by the number of confident
// voxels around them. A voxel becomes a seed when that number exceeds
// mixingRatio. Seeds are ordered by descending score; equal scores keep the
// order of lcv.
func SelectSeeds(lcv []int, hood *Neighborhood, labels *models.LabelVolume, mixingRatio int) []Seed {
	var seeds []Seed
	for _, p := range lcv {
		confident := 0
		for _, q := range hood.Extended(p) {
			if labels.Data[q] != models.Undetermined {
				confident++
			}
		}
		if confident > mixingRatio {
			seeds = append(seeds, Seed{Index: p, Score: confident})
		}
	}
	sort.SliceStable(seeds, func(i, j int) bool { return seeds[i].Score > seeds[j].Score })
	return seeds
}

// SeedQueue hands out seeds front to back
type SeedQueue struct {
	seeds []Seed
	next  int
}

// NewSeedQueue wraps ranked seeds in a queue
func NewSeedQueue(seeds []Seed) *SeedQueue {
	return &SeedQueue{seeds: seeds}
}

// Len returns the number of seeds not yet consumed
func (q *SeedQueue) Len() int {
	return len(q.seeds) - q.next
}

// Pop removes and returns the highest ranked remaining seed
func (q *SeedQueue) Pop() (Seed, bool) {
	if q.next >= len(q.seeds) {
		return Seed{}, false
	}
	s := q.seeds[q.next]
	q.next++
	return s, true
}
