package models

import (
	"fmt"
	"sort"
)

// Undetermined marks a low-confidence voxel in a label volume. Real labels are
// non-negative, so the sentinel never collides with a label value.
const Undetermined int32 = -1

// Shape holds the dimensions of a volume in voxels.
// Volumes are stored as a 1D array in z-major order: z*Height*Width + y*Width + x.
type Shape struct {
	Depth  int
	Height int
	Width  int
}

// Len returns the number of voxels addressed by the shape
func (s Shape) Len() int {
	return s.Depth * s.Height * s.Width
}

// Index returns the linear voxel index of (z, y, x)
func (s Shape) Index(z, y, x int) int {
	return z*s.Height*s.Width + y*s.Width + x
}

// Coord is the inverse of Index
func (s Shape) Coord(idx int) (z, y, x int) {
	plane := s.Height * s.Width
	z = idx / plane
	rem := idx - z*plane
	y = rem / s.Width
	x = rem - y*s.Width
	return z, y, x
}

// Contains reports whether (z, y, x) lies inside the volume
func (s Shape) Contains(z, y, x int) bool {
	return z >= 0 && y >= 0 && x >= 0 && z < s.Depth && y < s.Height && x < s.Width
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d", s.Depth, s.Height, s.Width)
}

// LabelVolume is a dense 3D array of integer labels. Background is 0.
type LabelVolume struct {
	Shape
	Geometry Geometry

	// Data holds one label per voxel in z-major order
	Data []int32
}

// NewLabelVolume allocates a zero (background) label volume with the default geometry
func NewLabelVolume(shape Shape) *LabelVolume {
	return &LabelVolume{Shape: shape, Geometry: DefaultGeometry(), Data: make([]int32, shape.Len())}
}

// At returns the label at (z, y, x)
func (v *LabelVolume) At(z, y, x int) int32 {
	return v.Data[v.Index(z, y, x)]
}

// Set writes the label at (z, y, x)
func (v *LabelVolume) Set(z, y, x int, label int32) {
	v.Data[v.Index(z, y, x)] = label
}

// Clone returns a deep copy of the volume
func (v *LabelVolume) Clone() *LabelVolume {
	data := make([]int32, len(v.Data))
	copy(data, v.Data)
	return &LabelVolume{Shape: v.Shape, Geometry: v.Geometry, Data: data}
}

// Values returns the distinct label values of the volume in ascending order
func (v *LabelVolume) Values() []int32 {
	seen := make(map[int32]struct{})
	for _, label := range v.Data {
		seen[label] = struct{}{}
	}
	values := make([]int32, 0, len(seen))
	for label := range seen {
		values = append(values, label)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	return values
}

// Count returns the number of voxels holding label
func (v *LabelVolume) Count(label int32) int {
	n := 0
	for _, l := range v.Data {
		if l == label {
			n++
		}
	}
	return n
}

// IntensityVolume is a dense 3D array of scalar intensities
type IntensityVolume struct {
	Shape
	Geometry Geometry

	// Data holds one intensity per voxel in z-major order
	Data []float64
}

// NewIntensityVolume allocates a zero intensity volume
func NewIntensityVolume(shape Shape) *IntensityVolume {
	return &IntensityVolume{Shape: shape, Geometry: DefaultGeometry(), Data: make([]float64, shape.Len())}
}

// At returns the intensity at (z, y, x)
func (v *IntensityVolume) At(z, y, x int) float64 {
	return v.Data[v.Index(z, y, x)]
}

// Set writes the intensity at (z, y, x)
func (v *IntensityVolume) Set(z, y, x int, value float64) {
	v.Data[v.Index(z, y, x)] = value
}

// CheckShapes returns an error naming the first input whose shape differs from ref.
// names[i] labels shapes[i] in the error message.
func CheckShapes(ref Shape, shapes []Shape, names []string) error {
	for i, s := range shapes {
		if s != ref {
			name := fmt.Sprintf("input %d", i)
			if i < len(names) {
				name = names[i]
			}
			return fmt.Errorf("shape of %s is %s, expected %s", name, s, ref)
		}
	}
	return nil
}
