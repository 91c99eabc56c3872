package index

import (
	"container/heap"
	"math"
	"math/rand"
	"slices"

	"github.com/pixelsift/pixelsift/distance"
)

const (
	// leafCapacity bounds how many items a tree node may hold before it is
	// split by a random hyperplane.
	leafCapacity = 16

	// maxSplitAttempts bounds how often a split retries picking a usable
	// hyperplane before giving up and cutting the item set in half.
	maxSplitAttempts = 3

	// maxTreeDepth guards against pathological inputs (e.g. many identical
	// vectors) that random hyperplanes cannot separate.
	maxTreeDepth = 64
)

// treeNode is one node of a random-projection tree. Internal nodes carry a
// splitting hyperplane; leaves carry item ids. plane == nil marks a leaf.
type treeNode struct {
	plane  []float32
	offset float32
	left   *treeNode
	right  *treeNode
	items  []uint32
}

func (n *treeNode) leaf() bool { return n.plane == nil }

// forest is a read-only set of random-projection trees over one vector
// generation. It is built once and never mutated; mutations of the index
// build a new forest.
type forest struct {
	dim   int
	trees []*treeNode
}

// buildForest builds treeCount random-projection trees over vectors.
func buildForest(vectors [][]float32, dim, treeCount int, rng *rand.Rand) *forest {
	f := &forest{dim: dim, trees: make([]*treeNode, 0, treeCount)}

	all := make([]uint32, len(vectors))
	for i := range all {
		all[i] = uint32(i)
	}

	for t := 0; t < treeCount; t++ {
		items := slices.Clone(all)
		f.trees = append(f.trees, buildTree(vectors, items, rng, 0))
	}

	return f
}

func buildTree(vectors [][]float32, items []uint32, rng *rand.Rand, depth int) *treeNode {
	if len(items) <= leafCapacity || depth >= maxTreeDepth {
		return &treeNode{items: items}
	}

	for attempt := 0; attempt < maxSplitAttempts; attempt++ {
		plane, offset, ok := pickHyperplane(vectors, items, rng)
		if !ok {
			continue
		}

		var left, right []uint32
		for _, id := range items {
			if distance.Dot(vectors[id], plane) < offset {
				left = append(left, id)
			} else {
				right = append(right, id)
			}
		}
		if len(left) == 0 || len(right) == 0 {
			continue
		}

		return &treeNode{
			plane:  plane,
			offset: offset,
			left:   buildTree(vectors, left, rng, depth+1),
			right:  buildTree(vectors, right, rng, depth+1),
		}
	}

	// No usable hyperplane found: cut in half to keep the tree balanced.
	rng.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
	mid := len(items) / 2
	return &treeNode{
		plane:  zeroPlane(len(vectors[items[0]])),
		offset: 0,
		left:   buildTree(vectors, items[:mid], rng, depth+1),
		right:  buildTree(vectors, items[mid:], rng, depth+1),
	}
}

// pickHyperplane picks two distinct random items and splits on the plane
// equidistant to both, the classic random-projection split for angular
// distance.
func pickHyperplane(vectors [][]float32, items []uint32, rng *rand.Rand) ([]float32, float32, bool) {
	a := items[rng.Intn(len(items))]
	b := items[rng.Intn(len(items))]
	for tries := 0; b == a && tries < maxSplitAttempts; tries++ {
		b = items[rng.Intn(len(items))]
	}
	if a == b {
		return nil, 0, false
	}

	va, vb := vectors[a], vectors[b]
	plane := make([]float32, len(va))
	for i := range plane {
		plane[i] = va[i] - vb[i]
	}
	if distance.IsZero(plane) {
		return nil, 0, false
	}

	mid := make([]float32, len(va))
	for i := range mid {
		mid[i] = (va[i] + vb[i]) / 2
	}

	return plane, distance.Dot(plane, mid), true
}

func zeroPlane(dim int) []float32 {
	return make([]float32, dim)
}

// candidates walks all trees in best-first order and collects at least
// searchK item ids (or every reachable item, whichever is smaller).
// total is the number of indexed items, used for deduplication.
func (f *forest) candidates(q []float32, searchK, total int) []uint32 {
	if searchK > total {
		searchK = total
	}

	pending := make(traversalQueue, 0, len(f.trees))
	for _, root := range f.trees {
		pending = append(pending, traversalItem{node: root, priority: math.MaxFloat32})
	}
	heap.Init(&pending)

	seen := make([]bool, total)
	out := make([]uint32, 0, searchK)

	for pending.Len() > 0 && len(out) < searchK {
		item := heap.Pop(&pending).(traversalItem)
		n := item.node

		if n.leaf() {
			for _, id := range n.items {
				if !seen[id] {
					seen[id] = true
					out = append(out, id)
				}
			}
			continue
		}

		margin := distance.Dot(q, n.plane) - n.offset
		heap.Push(&pending, traversalItem{node: n.right, priority: minPriority(item.priority, margin)})
		heap.Push(&pending, traversalItem{node: n.left, priority: minPriority(item.priority, -margin)})
	}

	return out
}

func minPriority(a, b float32) float32 {
	if b < a {
		return b
	}
	return a
}
