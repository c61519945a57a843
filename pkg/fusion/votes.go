package fusion

import (
	"fmt"
	"math"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"awolmrf/internal/models"
)

// VoteTensor counts, for every label value and voxel, how many candidate
// volumes vote for that label. For each voxel the counts sum to NumVolumes.
type VoteTensor struct {
	Shape models.Shape

	// Values holds the distinct label values in ascending order
	Values []int32

	// Counts is indexed [label index][voxel index]
	Counts [][]uint16

	// NumVolumes is the number of candidate volumes that voted
	NumVolumes int
}

// Mode is the majority vote of every voxel: the index into VoteTensor.Values
// of the most voted label and its vote count. Ties go to the lowest index.
type Mode struct {
	Index []int
	Count []uint16
}

// Label returns the majority label value of voxel p
func (m *Mode) Label(values []int32, p int) int32 {
	return values[m.Index[p]]
}

// slabs splits the voxels of shape into at most workers disjoint ranges of
// whole z-slices
func slabs(shape models.Shape, workers int) [][2]int {
	workers = max(workers, 1)
	plane := shape.Height * shape.Width
	slab := max((shape.Depth+workers-1)/workers, 1)

	var ranges [][2]int
	for z := 0; z < shape.Depth; z += slab {
		ranges = append(ranges, [2]int{z * plane, min(z+slab, shape.Depth) * plane})
	}
	return ranges
}

// forEachSlab runs fn over the slabs of shape, one goroutine per slab.
// fn must only write voxels inside its own range.
func forEachSlab(shape models.Shape, workers int, fn func(lo, hi int)) {
	var wg sync.WaitGroup
	for _, r := range slabs(shape, workers) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(r[0], r[1])
		}()
	}
	wg.Wait()
}

// tryEachSlab is forEachSlab for functions that can fail. It returns the
// first error.
func tryEachSlab(shape models.Shape, workers int, fn func(lo, hi int) error) error {
	var g errgroup.Group
	for _, r := range slabs(shape, workers) {
		g.Go(func() error { return fn(r[0], r[1]) })
	}
	return g.Wait()
}

// AggregateVotes tallies the candidate label volumes. All candidates must
// share one shape and one set of distinct label values.
func AggregateVotes(candidates []*models.LabelVolume, workers int) (*VoteTensor, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	if len(candidates) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d candidates exceeds %d", ErrInvalidParams, len(candidates), math.MaxUint16)
	}
	shape := candidates[0].Shape
	if shape.Len() == 0 {
		return nil, fmt.Errorf("%w: empty volume %s", ErrInvalidParams, shape)
	}
	for i, c := range candidates {
		if c.Shape != shape || len(c.Data) != shape.Len() {
			return nil, fmt.Errorf("%w: candidate %d is %s with %d voxels, candidate 0 is %s",
				ErrShapeMismatch, i, c.Shape, len(c.Data), shape)
		}
	}

	// Distinct label values of every candidate, computed concurrently
	valueSets := make([][]int32, len(candidates))
	var g errgroup.Group
	g.SetLimit(max(workers, 1))
	for i, c := range candidates {
		g.Go(func() error {
			valueSets[i] = c.Values()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	values := valueSets[0]
	for i, vs := range valueSets[1:] {
		if !slices.Equal(vs, values) {
			return nil, fmt.Errorf("%w: candidate %d has %v, candidate 0 has %v", ErrLabelSetMismatch, i+1, vs, values)
		}
	}

	if values[0] < 0 {
		return nil, fmt.Errorf("%w: negative label %d", ErrInvalidParams, values[0])
	}

	lookup := make(map[int32]int, len(values))
	for i, v := range values {
		lookup[v] = i
	}

	vt := &VoteTensor{
		Shape:      shape,
		Values:     values,
		Counts:     make([][]uint16, len(values)),
		NumVolumes: len(candidates),
	}
	for k := range vt.Counts {
		vt.Counts[k] = make([]uint16, shape.Len())
	}

	err := tryEachSlab(shape, workers, func(lo, hi int) error {
		for _, c := range candidates {
			for p := lo; p < hi; p++ {
				k, ok := lookup[c.Data[p]]
				if !ok {
					return fmt.Errorf("%w: unexpected label %d at voxel %d", ErrLabelSetMismatch, c.Data[p], p)
				}
				vt.Counts[k][p]++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vt, nil
}

// Candidates returns n(p), the number of label values with at least one vote at voxel p
func (vt *VoteTensor) Candidates(p int) int {
	n := 0
	for k := range vt.Counts {
		if vt.Counts[k][p] > 0 {
			n++
		}
	}
	return n
}

// Mode computes the majority label of every voxel
func (vt *VoteTensor) Mode(workers int) *Mode {
	n := vt.Shape.Len()
	m := &Mode{Index: make([]int, n), Count: make([]uint16, n)}
	forEachSlab(vt.Shape, workers, func(lo, hi int) {
		for p := lo; p < hi; p++ {
			best := 0
			for k := 1; k < len(vt.Counts); k++ {
				if vt.Counts[k][p] > vt.Counts[best][p] {
					best = k
				}
			}
			m.Index[p] = best
			m.Count[p] = vt.Counts[best][p]
		}
	})
	return m
}

// Classify builds the confidence volume. A voxel keeps its majority label
// when it is unanimous among the voting labels (n(p) = 1) or when the
// majority count reaches (1/n(p) + threshold) * NumVolumes. Every other voxel
// is set to models.Undetermined.
func Classify(vt *VoteTensor, mode *Mode, thresholds []float64, workers int) (*models.LabelVolume, error) {
	if len(thresholds) != len(vt.Values) {
		return nil, fmt.Errorf("%w: %d thresholds for %d labels", ErrThresholdCount, len(thresholds), len(vt.Values))
	}
	out := models.NewLabelVolume(vt.Shape)
	nimg := float64(vt.NumVolumes)
	forEachSlab(vt.Shape, workers, func(lo, hi int) {
		for p := lo; p < hi; p++ {
			k := mode.Index[p]
			n := vt.Candidates(p)
			minVotes := (1.0/float64(n) + thresholds[k]) * nimg
			if n == 1 || float64(mode.Count[p]) >= minVotes {
				out.Data[p] = vt.Values[k]
			} else {
				out.Data[p] = models.Undetermined
			}
		}
	})
	return out, nil
}
