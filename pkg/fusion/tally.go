package fusion

// voxelTally counts the labels assigned to one voxel and tracks the leader
type voxelTally struct {
	counts map[int32]int
	leader int32
}

// Tally counts, per voxel, how often each label was assigned by patch walks.
// A voxel's working label is the label leading its tally.
type Tally struct {
	voxels map[int]*voxelTally
}

// NewTally returns an empty tally
func NewTally() *Tally {
	return &Tally{voxels: make(map[int]*voxelTally)}
}

// Vote records one assignment of label to voxel p and returns the label now
// leading p's tally. After the increment, the voted label takes the lead
// when its count equals or exceeds the current leader's: ties favour the
// most recent vote.
func (t *Tally) Vote(p int, label int32) int32 {
	vt, ok := t.voxels[p]
	if !ok {
		vt = &voxelTally{counts: make(map[int32]int, 2), leader: label}
		t.voxels[p] = vt
	}
	vt.counts[label]++
	if vt.counts[label] >= vt.counts[vt.leader] {
		vt.leader = label
	}
	return vt.leader
}

// Leader returns the label leading p's tally. The boolean is false when p
// never received a vote.
func (t *Tally) Leader(p int) (int32, bool) {
	vt, ok := t.voxels[p]
	if !ok {
		return 0, false
	}
	return vt.leader, true
}

// Votes returns how often label was assigned to p
func (t *Tally) Votes(p int, label int32) int {
	if vt, ok := t.voxels[p]; ok {
		return vt.counts[label]
	}
	return 0
}

// Len returns the number of voxels with at least one vote
func (t *Tally) Len() int {
	return len(t.voxels)
}
