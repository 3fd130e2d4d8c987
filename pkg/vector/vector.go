// Package vector implements the dense/sparse vector abstraction that
// underlies the clustering engine: a single Vector type that can hold
// either a fixed-dimension dense array or a sparse (index, value) pair
// list, with O(1) expected lookup into sparse coordinates and a set of
// SIMD-width arithmetic primitives used by the upper-bound index and the
// k-means driver.
package vector

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"
)

// Vector is a dense or sparse numeric vector. The zero value is not
// usable; construct with NewDense, NewSparse, or NewSparseFromMap.
//
// A Vector's logical shape is immutable after construction: a sparse
// vector cannot gain new non-zero coordinates, and a dense vector cannot
// change length. Individual stored values may be overwritten with Set,
// which invalidates the cached aggregates below.
type Vector struct {
	dense    []float32
	sparse   bool
	indexes  []int32 // sparse only, ascending-by-insertion order preserved as given
	values   []float32
	hashIdx  *sparseHashIndex // nil for dense, and for sparse vectors with len <= 2

	mu sync.Mutex

	sqSumSet atomic.Bool
	sqSum    float32

	unitSet atomic.Bool
	isUnit  bool

	maxSet atomic.Bool
	maxAbs float32

	sortedSet  atomic.Bool
	sortedPerm []int // permutation of [0,len) ordering indexes/values by |value| ascending
}

// NewDense constructs a dense vector from the given values. The slice is
// copied; callers may reuse or mutate it afterwards.
func NewDense(values []float32) *Vector {
	cp := make([]float32, len(values))
	copy(cp, values)
	return &Vector{dense: cp}
}

// NewSparse constructs a sparse vector from parallel index/value slices.
// indexes must be non-negative and unique; duplicates fail construction
// per spec.
func NewSparse(indexes []int32, values []float32) (*Vector, error) {
	if len(indexes) != len(values) {
		return nil, fmt.Errorf("vector: mismatched sparse index/value lengths: %d vs %d", len(indexes), len(values))
	}
	seen := make(map[int32]struct{}, len(indexes))
	for _, idx := range indexes {
		if idx < 0 {
			return nil, fmt.Errorf("vector: negative sparse coordinate %d", idx)
		}
		if _, dup := seen[idx]; dup {
			return nil, fmt.Errorf("vector: duplicate sparse index %d", idx)
		}
		seen[idx] = struct{}{}
	}

	idxCopy := make([]int32, len(indexes))
	copy(idxCopy, indexes)
	valCopy := make([]float32, len(values))
	copy(valCopy, values)

	v := &Vector{sparse: true, indexes: idxCopy, values: valCopy}
	v.hashIdx = buildSparseHashIndex(idxCopy)
	return v, nil
}

// NewSparseFromMap constructs a sparse vector from a coordinate->value
// mapping. Map iteration order is not guaranteed, but since keys are
// unique by construction, duplicates cannot occur.
func NewSparseFromMap(m map[int]float32) *Vector {
	idx := make([]int32, 0, len(m))
	val := make([]float32, 0, len(m))
	for k, v := range m {
		idx = append(idx, int32(k))
		val = append(val, v)
	}
	vec := &Vector{sparse: true, indexes: idx, values: val}
	vec.hashIdx = buildSparseHashIndex(idx)
	return vec
}

// IsSparse reports whether the vector uses sparse storage.
func (v *Vector) IsSparse() bool { return v.sparse }

// Len returns the number of stored (dense) or non-zero-by-construction
// (sparse) coordinates.
func (v *Vector) Len() int {
	if v.sparse {
		return len(v.indexes)
	}
	return len(v.dense)
}

// Dim returns the logical dimension: len(dense) for dense vectors, or the
// maximum stored coordinate + 1 for sparse vectors (0 for an empty
// sparse vector).
func (v *Vector) Dim() int {
	if !v.sparse {
		return len(v.dense)
	}
	maxIdx := int32(-1)
	for _, i := range v.indexes {
		if i > maxIdx {
			maxIdx = i
		}
	}
	return int(maxIdx + 1)
}

// Indexes returns the sparse coordinate slice (nil for dense vectors).
// The caller must not mutate the returned slice.
func (v *Vector) Indexes() []int32 { return v.indexes }

// Values returns the underlying value slice (dense array, or sparse
// non-zero values in the same order as Indexes()). The caller must not
// mutate the returned slice.
func (v *Vector) Values() []float32 {
	if v.sparse {
		return v.values
	}
	return v.dense
}

// ValueAt returns the value at coordinate i, or 0 if absent (out of
// range for dense, or not stored for sparse).
func (v *Vector) ValueAt(i int) float32 {
	val, _ := v.Lookup(i)
	return val
}

// Lookup returns the value at coordinate i and whether it is present.
// For dense vectors "present" means in range (values are always
// "present" conceptually, but out-of-range reports false, 0). For sparse
// vectors it reports whether the coordinate is one of the stored
// non-zero entries.
func (v *Vector) Lookup(i int) (float32, bool) {
	if !v.sparse {
		if i < 0 || i >= len(v.dense) {
			return 0, false
		}
		return v.dense[i], true
	}

	n := len(v.indexes)
	if n == 0 {
		return 0, false
	}
	coord := int32(i)

	// Two-element (or fewer) sparse vectors short-circuit without hashing.
	if n <= 2 {
		for pos, idx := range v.indexes {
			if idx == coord {
				return v.values[pos], true
			}
		}
		return 0, false
	}

	return v.hashIdx.lookup(v.indexes, v.values, coord)
}

// Set overwrites the value at coordinate i. For sparse vectors, i must
// already be a stored coordinate — a sparse vector cannot gain new
// non-zero coordinates after construction. Set invalidates all cached
// aggregates.
func (v *Vector) Set(i int, value float32) error {
	v.invalidate()

	if !v.sparse {
		if i < 0 || i >= len(v.dense) {
			return fmt.Errorf("vector: dense index %d out of range [0,%d)", i, len(v.dense))
		}
		v.dense[i] = value
		return nil
	}

	coord := int32(i)
	for pos, idx := range v.indexes {
		if idx == coord {
			v.values[pos] = value
			return nil
		}
	}
	return fmt.Errorf("vector: coordinate %d is not a stored sparse coordinate", i)
}

// invalidate clears all cached aggregates. Must be called before the new
// value becomes observable to other goroutines (the "valid" flags are
// cleared first, so a racing reader either recomputes or sees the old,
// still-consistent cached value — never a torn one).
func (v *Vector) invalidate() {
	v.sqSumSet.Store(false)
	v.unitSet.Store(false)
	v.maxSet.Store(false)
	v.sortedSet.Store(false)
}

// Clone returns a deep copy of v, including its storage but not its
// caches (caches are recomputed lazily on the clone).
func (v *Vector) Clone() *Vector {
	if !v.sparse {
		return NewDense(v.dense)
	}
	idx := make([]int32, len(v.indexes))
	copy(idx, v.indexes)
	val := make([]float32, len(v.values))
	copy(val, v.values)
	clone := &Vector{sparse: true, indexes: idx, values: val}
	clone.hashIdx = buildSparseHashIndex(idx)
	return clone
}

// SquaredSum returns Sum(v_i^2), using a lazily computed and cached
// value. Concurrent callers may race to compute it; all will agree on
// the result, and the "valid" flag is only set after the value is
// published (release-ordered via atomic.Bool, matching Go's memory
// model for atomics).
func (v *Vector) SquaredSum() float32 {
	if v.sqSumSet.Load() {
		return v.sqSum
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sqSumSet.Load() {
		return v.sqSum
	}
	sum := squaredSumSIMD(v.Values())
	v.sqSum = sum
	v.sqSumSet.Store(true)
	return sum
}

// MaxAbsValue returns the maximum absolute coordinate value, cached the
// same way as SquaredSum.
func (v *Vector) MaxAbsValue() float32 {
	if v.maxSet.Load() {
		return v.maxAbs
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.maxSet.Load() {
		return v.maxAbs
	}
	var m float32
	for _, x := range v.Values() {
		a := float32(math.Abs(float64(x)))
		if a > m {
			m = a
		}
	}
	v.maxAbs = m
	v.maxSet.Store(true)
	return m
}

// unitTolerance is the slack spec.md uses to decide "close enough to
// unit length" — both for IsUnit and as the no-op threshold in
// NormalizeAsUnitVector.
const unitTolerance = 2e-5

// IsUnit reports whether Sum(v_i^2) is within unitTolerance of 1.
func (v *Vector) IsUnit() bool {
	if v.unitSet.Load() {
		return v.isUnit
	}
	// SquaredSum takes v.mu itself, so it is read before the lock is held.
	sq := v.SquaredSum()
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.unitSet.Load() {
		return v.isUnit
	}
	v.isUnit = math.Abs(float64(sq)-1) <= unitTolerance
	v.unitSet.Store(true)
	return v.isUnit
}

// sortedByAbsAscending returns (and caches) a permutation of this
// vector's sparse coordinates ordered by |value| ascending. Used by the
// upper-bound index builder, which needs this ordering for every layer
// it registers a vector into; caching it here means repeated Add calls
// (e.g. rebuilding the centroid index every k-means iteration) don't
// re-sort from scratch for a vector already sorted.
func (v *Vector) sortedByAbsAscending() []int {
	if !v.sparse {
		return nil
	}
	if v.sortedSet.Load() {
		return v.sortedPerm
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.sortedSet.Load() {
		return v.sortedPerm
	}
	perm := make([]int, len(v.values))
	for i := range perm {
		perm[i] = i
	}
	vals := v.values
	// simple insertion sort is fine: index build happens once per vector
	// per index rebuild, and typical sparse vectors are short.
	for i := 1; i < len(perm); i++ {
		j := i
		for j > 0 && absf32(vals[perm[j-1]]) > absf32(vals[perm[j]]) {
			perm[j-1], perm[j] = perm[j], perm[j-1]
			j--
		}
	}
	v.sortedPerm = perm
	v.sortedSet.Store(true)
	return perm
}

// IndexOrderByAbsDescending returns a permutation of this sparse vector's
// coordinate positions ordered by |value| descending: the order the
// upper-bound index builder walks a vector's coordinates in when
// registering it into a layer (largest-magnitude coordinates first).
// Returns nil for dense vectors.
func (v *Vector) IndexOrderByAbsDescending() []int {
	if !v.sparse {
		return nil
	}
	asc := v.sortedByAbsAscending()
	n := len(asc)
	desc := make([]int, n)
	for i, p := range asc {
		desc[n-1-i] = p
	}
	return desc
}

func absf32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
