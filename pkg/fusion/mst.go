package fusion

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"awolmrf/internal/models"
)

// nonAdjacentPenalty scales the Euclidean distance between voxels that are
// not 6-connected, so the tree prefers adjacent voxels whenever it can.
const nonAdjacentPenalty = 100

// TreeEdge is an edge of a spanning tree between local node indices U < V
type TreeEdge struct {
	U, V   int
	Weight float64
}

// PatchWeights builds the complete graph over the given voxels. Direct
// neighbors are weighted by their intensity difference, every other pair by
// nonAdjacentPenalty times their Euclidean distance.
func PatchWeights(voxels []int, hood *Neighborhood, intensity *models.IntensityVolume) *mat.SymDense {
	n := len(voxels)
	w := mat.NewSymDense(n, nil)
	shape := intensity.Shape
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			u, v := voxels[i], voxels[j]
			if hood.IsDirect(u, v) {
				w.SetSym(i, j, math.Abs(intensity.Data[u]-intensity.Data[v]))
				continue
			}
			uz, uy, ux := shape.Coord(u)
			vz, vy, vx := shape.Coord(v)
			dz, dy, dx := float64(uz-vz), float64(uy-vy), float64(ux-vx)
			w.SetSym(i, j, nonAdjacentPenalty*math.Sqrt(dx*dx+dy*dy+dz*dz))
		}
	}
	return w
}

// MinimumSpanningTree grows a minimum spanning tree of the complete graph
// from node 0 with Prim's algorithm. On equal weights the lowest node index
// is attached first and keeps its first cheapest parent. Edges are returned
// sorted by (U, V).
func MinimumSpanningTree(w *mat.SymDense) []TreeEdge {
	n := w.SymmetricDim()
	if n == 0 {
		return nil
	}
	inTree := make([]bool, n)
	best := make([]float64, n)
	parent := make([]int, n)
	for i := range best {
		best[i] = math.Inf(1)
		parent[i] = -1
	}
	best[0] = 0

	edges := make([]TreeEdge, 0, n-1)
	for range n {
		u := -1
		for v := 0; v < n; v++ {
			if !inTree[v] && (u < 0 || best[v] < best[u]) {
				u = v
			}
		}
		inTree[u] = true
		if p := parent[u]; p >= 0 {
			edges = append(edges, TreeEdge{U: min(p, u), V: max(p, u), Weight: best[u]})
		}
		for v := 0; v < n; v++ {
			if !inTree[v] && w.At(u, v) < best[v] {
				best[v] = w.At(u, v)
				parent[v] = u
			}
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].U != edges[j].U {
			return edges[i].U < edges[j].U
		}
		return edges[i].V < edges[j].V
	})
	return edges
}

// WalkTree orders the n nodes of a spanning tree starting at root. At every
// step the cheapest tree edge with exactly one visited endpoint is taken and
// its other endpoint appended; ties go to the first such edge in edges.
func WalkTree(n int, edges []TreeEdge, root int) []int {
	visited := make([]bool, n)
	visited[root] = true
	order := make([]int, 1, n)
	order[0] = root

	used := make([]bool, len(edges))
	for len(order) < n {
		next := -1
		for i, e := range edges {
			if used[i] || visited[e.U] == visited[e.V] {
				continue
			}
			if next < 0 || e.Weight < edges[next].Weight {
				next = i
			}
		}
		if next < 0 {
			// not a spanning tree; the remaining nodes are unreachable
			break
		}
		used[next] = true
		e := edges[next]
		if visited[e.U] {
			order = append(order, e.V)
			visited[e.V] = true
		} else {
			order = append(order, e.U)
			visited[e.U] = true
		}
	}
	return order
}

// MSTSequence returns the order in which the uncertain voxels of the patch
// are relabeled. It starts at the seed and visits every uncertain voxel once.
func MSTSequence(patch *Patch, hood *Neighborhood, intensity *models.IntensityVolume) []int {
	nodes := patch.Uncertain
	if len(nodes) <= 1 {
		return append([]int(nil), nodes...)
	}
	root := sort.SearchInts(nodes, patch.Seed)

	edges := MinimumSpanningTree(PatchWeights(nodes, hood, intensity))
	local := WalkTree(len(nodes), edges, root)

	seq := make([]int, len(local))
	for i, l := range local {
		seq[i] = nodes[l]
	}
	return seq
}
