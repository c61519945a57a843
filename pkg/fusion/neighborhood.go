package fusion

import (
	"sort"
	"sync"
	"gonum.org/v1/gonum/spatial/kdtree"

	"awolmrf/internal/models"
)

// Squared radii of the neighbor relations. Voxel coordinates are integers, so
// squared distances are exact and a ball of squared radius 1 is the
// 6-neighborhood and one of squared radius 3 the 26-neighborhood.
const (
	directRadiusSq   = 1
	extendedRadiusSq = 3
)

// voxelPoint is a voxel position that remembers its linear index
type voxelPoint struct {
	X, Y, Z float64
	Index   int
}

// Compare implements the kdtree.Comparable interface
func (p voxelPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(voxelPoint)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p voxelPoint) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two voxels
func (p voxelPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(voxelPoint)
	dx := p.X - q.X
	dy := p.Y - q.Y
	dz := p.Z - q.Z
	return dx*dx + dy*dy + dz*dz
}

// voxelPoints is a collection of voxelPoint that satisfies kdtree.Interface
type voxelPoints []voxelPoint

func (p voxelPoints) Index(i int) kdtree.Comparable         { return p[i] }
func (p voxelPoints) Len() int                              { return len(p) }
func (p voxelPoints) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p voxelPoints) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(voxelPlane{voxelPoints: p, Dim: d}, kdtree.MedianOfRandoms(voxelPlane{voxelPoints: p, Dim: d}, 100))
}

// voxelPlane implements sort.Interface and kdtree.SortSlicer for voxelPoints
type voxelPlane struct {
	voxelPoints
	kdtree.Dim
}

func (p voxelPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.voxelPoints[i].X < p.voxelPoints[j].X
	case 1:
		return p.voxelPoints[i].Y < p.voxelPoints[j].Y
	case 2:
		return p.voxelPoints[i].Z < p.voxelPoints[j].Z
	default:
		panic("illegal dimension")
	}
}

func (p voxelPlane) Slice(start, end int) kdtree.SortSlicer {
	return voxelPlane{voxelPoints: p.voxelPoints[start:end], Dim: p.Dim}
}

func (p voxelPlane) Swap(i, j int) {
	p.voxelPoints[i], p.voxelPoints[j] = p.voxelPoints[j], p.voxelPoints[i]
}

// Neighborhood answers exact fixed-radius queries over every voxel of a
// volume and holds the direct (6-connected) and extended (26-connected)
// neighbor lists of the voxels it was built for.
//
// Neighbor lists are ascending and never contain the voxel itself.
type Neighborhood struct {
	shape    models.Shape
	tree     *kdtree.Tree
	direct   map[int][]int
	extended map[int][]int
}

// NewNeighborhood indexes every voxel of the shape and precomputes the
// neighbor lists of keys. Lists are computed concurrently; the tree is only
// read after construction.
func NewNeighborhood(shape models.Shape, keys []int, workers int) *Neighborhood {
	points := make(voxelPoints, shape.Len())
	for idx := range points {
		z, y, x := shape.Coord(idx)
		points[idx] = voxelPoint{X: float64(x), Y: float64(y), Z: float64(z), Index: idx}
	}

	n := &Neighborhood{
		shape:    shape,
		tree:     kdtree.New(points, false),
		direct:   make(map[int][]int, len(keys)),
		extended: make(map[int][]int, len(keys)),
	}

	direct := make([][]int, len(keys))
	extended := make([][]int, len(keys))
	workers = max(workers, 1)
	chunk := max((len(keys)+workers-1)/workers, 1)

	var wg sync.WaitGroup
	for lo := 0; lo < len(keys); lo += chunk {
		hi := min(lo+chunk, len(keys))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				direct[i] = withoutSelf(n.Within(keys[i], directRadiusSq), keys[i])
				extended[i] = withoutSelf(n.Within(keys[i], extendedRadiusSq), keys[i])
			}
		}()
	}
	wg.Wait()

	for i, key := range keys {
		n.direct[key] = direct[i]
		n.extended[key] = extended[i]
	}
	return n
}

// Within returns, in ascending order, the indices of all voxels whose squared
// distance to voxel p is at most radiusSq. The result includes p.
func (n *Neighborhood) Within(p int, radiusSq float64) []int {
	z, y, x := n.shape.Coord(p)
	q := voxelPoint{X: float64(x), Y: float64(y), Z: float64(z), Index: p}

	keeper := kdtree.NewDistKeeper(radiusSq)
	n.tree.NearestSet(keeper, q)

	found := make([]int, 0, keeper.Len())
	for _, item := range keeper.Heap {
		found = append(found, item.Comparable.(voxelPoint).Index)
	}
	sort.Ints(found)
	return found
}

// Direct returns the 6-connected neighbors of p. p must be one of the keys
// the neighborhood was built for.
func (n *Neighborhood) Direct(p int) []int {
	return n.direct[p]
}

// Extended returns the 26-connected neighbors of p. p must be one of the
// keys the neighborhood was built for.
func (n *Neighborhood) Extended(p int) []int {
	return n.extended[p]
}

// IsDirect reports whether q is a 6-connected neighbor of p
func (n *Neighborhood) IsDirect(p, q int) bool {
	list := n.direct[p]
	i := sort.SearchInts(list, q)
	return i < len(list) && list[i] == q
}

func withoutSelf(list []int, self int) []int {
	i := sort.SearchInts(list, self)
	if i < len(list) && list[i] == self {
		return append(list[:i], list[i+1:]...)
	}
	return list
}
