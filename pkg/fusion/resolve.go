package fusion

import "awolmrf/internal/models"

// Resolve assigns the majority vote label to every voxel of working that is
// still undetermined and returns how many voxels it filled. Resolved voxels
// are left alone, so resolving twice changes nothing.
func Resolve(working *models.LabelVolume, mode *Mode, values []int32) int {
	filled := 0
	for p, label := range working.Data {
		if label == models.Undetermined {
			working.Data[p] = mode.Label(values, p)
			filled++
		}
	}
	return filled
}

// MajorityVolume returns the majority vote label of every voxel
func MajorityVolume(shape models.Shape, mode *Mode, values []int32) *models.LabelVolume {
	out := models.NewLabelVolume(shape)
	for p := range out.Data {
		out.Data[p] = mode.Label(values, p)
	}
	return out
}
