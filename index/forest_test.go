package index

import (
	"math/rand"
	"testing"

	"github.com/pixelsift/pixelsift/distance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomVectors(n, dim int, rng *rand.Rand) [][]float32 {
	vectors := make([][]float32, n)
	for i := range vectors {
		vectors[i] = make([]float32, dim)
		for d := range vectors[i] {
			vectors[i][d] = rng.Float32()*2 - 1
		}
	}
	return vectors
}

func TestBuildForest(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	vectors := randomVectors(500, 16, rng)

	f := buildForest(vectors, 16, 4, rng)
	require.Len(t, f.trees, 4)

	// Every tree holds every item exactly once.
	for _, root := range f.trees {
		seen := make(map[uint32]int)
		var walk func(n *treeNode)
		walk = func(n *treeNode) {
			if n.leaf() {
				for _, id := range n.items {
					seen[id]++
				}
				return
			}
			walk(n.left)
			walk(n.right)
		}
		walk(root)

		require.Len(t, seen, len(vectors))
		for id, count := range seen {
			assert.Equalf(t, 1, count, "item %d duplicated in tree", id)
		}
	}
}

func TestForestCandidatesCoverQuery(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	vectors := randomVectors(300, 8, rng)

	f := buildForest(vectors, 8, 3, rng)

	// With a budget covering the whole set, traversal is exhaustive.
	cands := f.candidates(vectors[42], len(vectors), len(vectors))
	assert.Len(t, cands, len(vectors))

	// With a smaller budget, the exact item is still among the candidates:
	// its own leaf has the best margin on every tree.
	cands = f.candidates(vectors[42], 64, len(vectors))
	assert.Contains(t, cands, uint32(42))
}

func TestForestIdenticalVectors(t *testing.T) {
	// Unsplittable input must still terminate and keep every item.
	rng := rand.New(rand.NewSource(3))
	vectors := make([][]float32, 100)
	for i := range vectors {
		vectors[i] = []float32{1, 2, 3, 4}
	}

	f := buildForest(vectors, 4, 2, rng)
	cands := f.candidates([]float32{1, 2, 3, 4}, len(vectors), len(vectors))
	assert.Len(t, cands, len(vectors))
}

func TestForestRecall(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	vectors := randomVectors(1000, 12, rng)
	f := buildForest(vectors, 12, 8, rng)

	hits := 0
	const queries = 50
	for qi := 0; qi < queries; qi++ {
		q := vectors[rng.Intn(len(vectors))]

		// Exact nearest by brute force.
		best, bestDist := -1, float32(0)
		for id, v := range vectors {
			d := distance.AngularBetween(q, v)
			if best < 0 || d < bestDist {
				best, bestDist = id, d
			}
		}

		for _, id := range f.candidates(q, 256, len(vectors)) {
			if int(id) == best {
				hits++
				break
			}
		}
	}

	// Self-queries must essentially always recover their exact match.
	assert.GreaterOrEqual(t, hits, queries*9/10)
}
