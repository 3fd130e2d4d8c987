// Package ubindex implements the layered upper-bound dot-product index:
// given a unit-length sparse query vector and a threshold λ, it returns a
// superset of the indexed vectors whose dot product with the query could
// possibly reach λ. Supersetness is exact in one direction — no indexed
// vector meeting the threshold is ever missed; false positives are
// expected and left for the caller to filter with a true dot product.
//
// This is the sub-linear retrieval engine behind spherical k-means on
// sparse data (pkg/kmeans) and the neighborhood query DBSCAN (pkg/dbscan)
// is built on.
package ubindex

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/go-kmeans/kmvector/pkg/vector"
)

// layerEpsilon is the slack used throughout the build/query math (λ²-ε /
// 1-λ²+ε comparisons) to keep the superset guarantee exact under
// floating-point rounding.
const layerEpsilon = 1e-6

// entry is one (vector_id, min_occurrences) registration under a
// coordinate in a single layer.
type entry struct {
	id  int64
	min int32
}

// layer holds one threshold's worth of token->entries maps.
type layer struct {
	threshold float32
	tokens    map[int32][]entry
}

func (l *layer) isZero() bool {
	return l.threshold <= layerEpsilon
}

// DotProductIndex is the layered upper-bound index over unit-length
// sparse vectors described above.
type DotProductIndex struct {
	mu sync.RWMutex

	layers   []layer         // sorted ascending by threshold
	inverted map[int32][]int64 // global coordinate -> vector ids (unordered, one entry per id per coordinate)
	vectors  map[int64]*vector.Vector

	maxID int64
	count int
}

// New constructs an index with one layer per given threshold. Thresholds
// must be non-negative (negative similarity thresholds are out of scope);
// duplicates are collapsed.
func New(thresholds []float32) (*DotProductIndex, error) {
	if len(thresholds) == 0 {
		return nil, fmt.Errorf("ubindex: at least one threshold is required")
	}
	uniq := make(map[float32]struct{}, len(thresholds))
	sorted := make([]float32, 0, len(thresholds))
	for _, th := range thresholds {
		if th < 0 {
			return nil, fmt.Errorf("ubindex: negative threshold unsupported: %v", th)
		}
		if _, ok := uniq[th]; ok {
			continue
		}
		uniq[th] = struct{}{}
		sorted = append(sorted, th)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	layers := make([]layer, len(sorted))
	for i, th := range sorted {
		layers[i] = layer{threshold: th, tokens: make(map[int32][]entry)}
	}

	return &DotProductIndex{
		layers:   layers,
		inverted: make(map[int32][]int64),
		vectors:  make(map[int64]*vector.Vector),
	}, nil
}

// MinDotProduct returns the smallest configured layer threshold.
func (idx *DotProductIndex) MinDotProduct() float32 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.layers[0].threshold
}

// VectorsCount returns the number of live entries in the index.
func (idx *DotProductIndex) VectorsCount() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.count
}

// MaxID returns the maximum id assigned so far (0 if the index is empty).
func (idx *DotProductIndex) MaxID() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.maxID
}

// VectorByID returns the vector registered under id, for dot-product
// verification by the caller.
func (idx *DotProductIndex) VectorByID(id int64) (*vector.Vector, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	v, ok := idx.vectors[id]
	return v, ok
}

// Set replaces the index contents wholesale: it clears the index, then
// adds each vector in vectors under its position as id (0-based). This is
// the bulk-load path the k-means driver uses to rebuild the centroid
// index every iteration.
func (idx *DotProductIndex) Set(vectors []*vector.Vector) error {
	idx.Clear()
	for i, v := range vectors {
		if err := idx.Add(v, int64(i)); err != nil {
			return fmt.Errorf("ubindex: set: vector %d: %w", i, err)
		}
	}
	return nil
}

// Clear discards all registered vectors and layer contents, leaving the
// configured thresholds intact.
func (idx *DotProductIndex) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for i := range idx.layers {
		idx.layers[i].tokens = make(map[int32][]entry)
	}
	idx.inverted = make(map[int32][]int64)
	idx.vectors = make(map[int64]*vector.Vector)
	idx.maxID = 0
	idx.count = 0
}

// Add registers v under id. v must be sparse, non-zero, and unit-length
// (within vector.unitTolerance); build rejects anything else.
func (idx *DotProductIndex) Add(v *vector.Vector, id int64) error {
	if v == nil {
		return fmt.Errorf("ubindex: nil vector added to index")
	}
	if !v.IsSparse() {
		return fmt.Errorf("ubindex: dense vector added to index: only sparse vectors are supported")
	}
	if v.SquaredSum() < 1e-12 {
		return fmt.Errorf("ubindex: zero vector added to index")
	}
	if !v.IsUnit() {
		return fmt.Errorf("ubindex: non-unit vector added to index")
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.vectors[id] = v
	idx.count++
	if id > idx.maxID {
		idx.maxID = id
	}

	coords := v.Indexes()
	values := v.Values()

	// Global inverted list: every coordinate of v points at id,
	// regardless of which layers end up registering it.
	for _, c := range coords {
		idx.inverted[c] = append(idx.inverted[c], id)
	}

	order := v.IndexOrderByAbsDescending() // largest |value| first

	for li := range idx.layers {
		l := &idx.layers[li]
		if l.isZero() {
			// Degenerate layer: plain inverted index, every coordinate
			// registered with a trivial single-match requirement.
			for _, c := range coords {
				l.tokens[c] = append(l.tokens[c], entry{id: id, min: 1})
			}
			continue
		}
		registerLayer(l, coords, values, order, id)
	}

	return nil
}

// registerLayer walks v's coordinates from largest to smallest |value|,
// registering each under layer l with the minimum concurrent-match count
// a query would need at that coordinate (and weaker ones) to possibly
// reach l.threshold, per spec.md §4.2's build algorithm.
func registerLayer(l *layer, coords []int32, values []float32, order []int, id int64) {
	lambda := l.threshold
	lambdaSq := lambda * lambda
	n := len(order)

	// cum[i] = sum of sq[0:i] (squared values of the i strongest
	// coordinates); cum[n] is the full squared sum (≈1, v is unit-length).
	cum := make([]float32, n+1)
	for i, pos := range order {
		x := values[pos]
		cum[i+1] = cum[i] + x*x
	}

	windowEnd := -1 // rightmost index included in the current sliding window; monotonic across i

	for i := 0; i < n; i++ {
		if cum[i] > 1-lambdaSq+layerEpsilon {
			break // Lemma 2: remaining coordinates can't combine to reach lambda
		}
		val := absFloat32(values[order[i]])
		if val <= layerEpsilon {
			break
		}

		coord := coords[order[i]]

		if val >= lambda {
			l.tokens[coord] = append(l.tokens[coord], entry{id: id, min: 1})
			continue
		}

		if windowEnd < i-1 {
			windowEnd = i - 1
		}
		needed := lambdaSq - layerEpsilon
		for cum[windowEnd+1]-cum[i] < needed && windowEnd+1 < n {
			windowEnd++
		}

		count := windowEnd - i + 1
		if count < 1 {
			count = 1
		}
		l.tokens[coord] = append(l.tokens[coord], entry{id: id, min: int32(count)})
	}
}

func absFloat32(x float32) float32 {
	return float32(math.Abs(float64(x)))
}
