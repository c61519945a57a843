package models

import (
	"fmt"
	"math"
)

// GeometryTolerance is the largest difference between two geometry
// components that still counts as equal
const GeometryTolerance = 1e-6

// Geometry places a voxel grid in physical space. Vectors are ordered
// (x, y, z); Direction is the row-major 3x3 matrix whose columns are the
// physical directions of the x, y and z voxel axes.
type Geometry struct {
	Spacing   [3]float64
	Origin    [3]float64
	Direction [9]float64
}

// DefaultGeometry returns unit spacing, a zero origin and identity directions.
// Slice directories carry no geometry and are read with this one.
func DefaultGeometry() Geometry {
	return Geometry{
		Spacing:   [3]float64{1, 1, 1},
		Direction: [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1},
	}
}

// Validate checks that spacings are positive and every component is finite
func (g Geometry) Validate() error {
	for i, s := range g.Spacing {
		if !(s > 0) || math.IsInf(s, 0) {
			return fmt.Errorf("spacing %d is %g, expected a positive value", i, s)
		}
	}
	for _, v := range append(g.Origin[:], g.Direction[:]...) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("geometry %s is not finite", g)
		}
	}
	return nil
}

// Equal reports whether every component of g and o differs by at most tol
func (g Geometry) Equal(o Geometry, tol float64) bool {
	return near(g.Spacing[:], o.Spacing[:], tol) &&
		near(g.Origin[:], o.Origin[:], tol) &&
		near(g.Direction[:], o.Direction[:], tol)
}

func near(a, b []float64, tol float64) bool {
	for i := range a {
		if math.Abs(a[i]-b[i]) > tol {
			return false
		}
	}
	return true
}

// Shifted returns the geometry of the same grid with its first voxel moved
// to voxel (x, y, z). Cropping shifts by the box's min corner and embedding
// shifts back.
func (g Geometry) Shifted(x, y, z int) Geometry {
	step := [3]float64{float64(x) * g.Spacing[0], float64(y) * g.Spacing[1], float64(z) * g.Spacing[2]}
	out := g
	for row := range 3 {
		for col := range 3 {
			out.Origin[row] += g.Direction[3*row+col] * step[col]
		}
	}
	return out
}

func (g Geometry) String() string {
	return fmt.Sprintf("spacing %v origin %v direction %v", g.Spacing, g.Origin, g.Direction)
}

// CheckGeometry returns an error naming the first input whose geometry
// differs from ref, and which component differs. names[i] labels geoms[i].
func CheckGeometry(ref Geometry, geoms []Geometry, names []string) error {
	for i, g := range geoms {
		name := fmt.Sprintf("input %d", i)
		if i < len(names) {
			name = names[i]
		}
		switch {
		case !near(g.Origin[:], ref.Origin[:], GeometryTolerance):
			return fmt.Errorf("origin of %s is %v, expected %v", name, g.Origin, ref.Origin)
		case !near(g.Spacing[:], ref.Spacing[:], GeometryTolerance):
			return fmt.Errorf("spacing of %s is %v, expected %v", name, g.Spacing, ref.Spacing)
		case !near(g.Direction[:], ref.Direction[:], GeometryTolerance):
			return fmt.Errorf("direction of %s is %v, expected %v", name, g.Direction, ref.Direction)
		}
	}
	return nil
}
