package fusion

import (
	"math"

	"awolmrf/internal/models"
)

// minStdDev bounds the standard deviation of a label's intensity model from
// below, so labels with constant intensity in a patch keep a finite energy.
const minStdDev = 1e-6

// SingletonEnergy is the negative log-likelihood of value under the label's
// Gaussian intensity model.
func SingletonEnergy(value float64, s LabelStats) float64 {
	sigma := math.Max(s.StdDev, minStdDev)
	d := value - s.Mean
	return math.Log(math.Sqrt(2*math.Pi)*sigma) + d*d/(2*sigma*sigma)
}

// PairwiseEnergy weighs the agreement of label with the current labels of
// the neighbors: beta * (agreeing - disagreeing), where undetermined
// neighbors count as neither.
func PairwiseEnergy(beta float64, label int32, neighbors []int, working *models.LabelVolume) float64 {
	same, pending := 0, 0
	for _, q := range neighbors {
		switch working.Data[q] {
		case label:
			same++
		case models.Undetermined:
			pending++
		}
	}
	return beta * float64(2*same+pending-len(neighbors))
}

// Relabeler walks MST sequences and assigns the minimum energy label to each
// visited voxel. It owns the working labels and the tally; walks must run
// one after the other.
type Relabeler struct {
	beta      float64
	hood      *Neighborhood
	intensity *models.IntensityVolume
	working   *models.LabelVolume
	tally     *Tally
}

// NewRelabeler returns a relabeler writing into working
func NewRelabeler(beta float64, hood *Neighborhood, intensity *models.IntensityVolume, working *models.LabelVolume, tally *Tally) *Relabeler {
	return &Relabeler{beta: beta, hood: hood, intensity: intensity, working: working, tally: tally}
}

// Choose returns the label of stats minimizing the total energy of voxel p
// and that energy. Ties keep the earlier label in stats. The boolean is
// false when stats is empty.
func (r *Relabeler) Choose(p int, stats []LabelStats) (int32, float64, bool) {
	neighbors := r.hood.Direct(p)
	value := r.intensity.Data[p]

	var best int32
	energy := math.Inf(1)
	found := false
	for _, s := range stats {
		e := SingletonEnergy(value, s) + PairwiseEnergy(r.beta, s.Label, neighbors, r.working)
		if !found || e < energy {
			best, energy, found = s.Label, e, true
		}
	}
	return best, energy, found
}

// Walk relabels the voxels of seq in order. Each decision is one vote in the
// voxel's tally and the tally leader becomes its working label, which later
// voxels of the walk see through the pairwise term. Walk returns the number
// of votes cast.
func (r *Relabeler) Walk(seq []int, stats []LabelStats) int {
	votes := 0
	for _, p := range seq {
		label, _, ok := r.Choose(p, stats)
		if !ok {
			return votes
		}
		r.working.Data[p] = r.tally.Vote(p, label)
		votes++
	}
	return votes
}
