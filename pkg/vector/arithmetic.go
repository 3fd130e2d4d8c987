package vector

import (
	"fmt"
	"math"
)

// MultiplyWith scales every coordinate of v by s in place, invalidating
// the cached aggregates.
func (v *Vector) MultiplyWith(s float32) {
	v.invalidate()
	if !v.sparse {
		scaleInPlace(v.dense, s)
		return
	}
	scaleInPlace(v.values, s)
}

// DivideBy scales every coordinate of v by 1/s in place. Panics on s==0,
// a caller bug (dividing by zero has no sensible vector result).
func (v *Vector) DivideBy(s float32) {
	if s == 0 {
		panic("vector: divide by zero")
	}
	v.MultiplyWith(1 / s)
}

// DotProduct computes the dot product of v and other, using the
// appropriate dense/sparse strategy:
//
//   - dense x dense: blocked SIMD-width accumulation.
//   - sparse x sparse: iterate the smaller vector's coordinates, probe
//     the larger's hash index — this bounds work to min(|v|, |other|)
//     regardless of which side is structurally larger.
//   - sparse x dense (or the reverse): iterate the sparse side's
//     coordinates, index into the dense side directly.
func (v *Vector) DotProduct(other *Vector) float32 {
	switch {
	case !v.sparse && !other.sparse:
		return dotProductDense(v.dense, other.dense)

	case v.sparse && other.sparse:
		smaller, larger := v, other
		if len(larger.indexes) < len(smaller.indexes) {
			smaller, larger = larger, smaller
		}
		var sum float32
		for pos, idx := range smaller.indexes {
			if val, ok := larger.Lookup(int(idx)); ok {
				sum += smaller.values[pos] * val
			}
		}
		return sum

	case v.sparse && !other.sparse:
		return sparseDotDense(v, other.dense)

	default: // !v.sparse && other.sparse
		return sparseDotDense(other, v.dense)
	}
}

// sparseDotDense computes the dot product between a sparse vector and a
// dense array, iterating only the sparse side's non-zero coordinates.
func sparseDotDense(sparseVec *Vector, dense []float32) float32 {
	var sum float32
	for pos, idx := range sparseVec.indexes {
		i := int(idx)
		if i >= 0 && i < len(dense) {
			sum += sparseVec.values[pos] * dense[i]
		}
	}
	return sum
}

// DotProductWithMap computes the dot product of a sparse vector against
// a coordinate->value mapping, using the same probe pattern as
// sparse-vs-sparse: iterate the vector's (typically much smaller)
// coordinate list and look values up in the map.
func (v *Vector) DotProductWithMap(m map[int]float32) float32 {
	var sum float32
	if !v.sparse {
		for i, val := range v.dense {
			if mv, ok := m[i]; ok {
				sum += val * mv
			}
		}
		return sum
	}
	for pos, idx := range v.indexes {
		if mv, ok := m[int(idx)]; ok {
			sum += v.values[pos] * mv
		}
	}
	return sum
}

// SquaredEuclideanDistance computes Sum((v_i - other_i)^2).
//
// Dense x dense uses the symmetric SIMD-width blocked loop. For sparse
// vectors it starts from other's cached squared sum, then iterates the
// smaller vector's coordinates, subtracting out the contribution at each
// shared coordinate and replacing it with the true squared difference;
// this avoids ever materializing the larger vector densely. The result
// is clamped to 0 to cancel floating-point rounding that could otherwise
// produce a tiny negative distance.
func (v *Vector) SquaredEuclideanDistance(other *Vector) float32 {
	if !v.sparse && !other.sparse {
		if len(v.dense) != len(other.dense) {
			panic("vector: squared-euclidean-distance requires equal-length dense vectors")
		}
		return squaredEuclideanDense(v.dense, other.dense)
	}

	if v.sparse && other.sparse {
		smaller, larger := v, other
		if len(larger.indexes) < len(smaller.indexes) {
			smaller, larger = larger, smaller
		}
		dist := larger.SquaredSum()
		for pos, idx := range smaller.indexes {
			a := smaller.values[pos]
			b, ok := larger.Lookup(int(idx))
			dist -= b * b
			diff := a - b
			if !ok {
				diff = a
			}
			dist += diff * diff
		}
		if dist < 0 {
			dist = 0
		}
		return dist
	}

	// one sparse, one dense: densify logically via direct indexing.
	sparseVec, dense := v, other.dense
	if !v.sparse {
		sparseVec, dense = other, v.dense
	}
	dist := squaredSumSIMD(dense)
	for pos, idx := range sparseVec.indexes {
		i := int(idx)
		a := sparseVec.values[pos]
		var b float32
		if i >= 0 && i < len(dense) {
			b = dense[i]
		}
		dist -= b * b
		diff := a - b
		dist += diff * diff
	}
	if dist < 0 {
		dist = 0
	}
	return dist
}

// CosineDistance returns 1 - DotProduct(v, other). Both vectors must be
// unit-length (per IsUnit, within unitTolerance) — cosine distance is
// undefined for non-unit vectors in this library, matching spec.md
// §4.1.
func (v *Vector) CosineDistance(other *Vector) (float32, error) {
	if !v.IsUnit() || !other.IsUnit() {
		return 0, fmt.Errorf("vector: cosine distance requires unit-length vectors")
	}
	return 1 - v.DotProduct(other), nil
}

// NormalizeAsUnitVector divides v by sqrt(SquaredSum()) in place. It is a
// no-op if the squared sum is approximately zero (can't normalize a zero
// vector) or if v is already unit-length within tolerance.
func (v *Vector) NormalizeAsUnitVector() {
	sq := v.SquaredSum()
	if sq < 1e-12 {
		return
	}
	if math.Abs(float64(sq)-1) <= unitTolerance {
		return
	}
	norm := float32(math.Sqrt(float64(sq)))
	v.DivideBy(norm)
	// the scaled vector is unit by construction; cache it directly
	// instead of re-deriving it from a freshly (re)computed squared sum.
	v.mu.Lock()
	v.sqSum = 1
	v.sqSumSet.Store(true)
	v.isUnit = true
	v.unitSet.Store(true)
	v.mu.Unlock()
}

// ValueEquals reports whether v and other agree on every coordinate
// within eps, under the max-norm: max_i |v_i - other_i| <= eps. Handles
// all storage combinations, including double-direction coverage for
// sparse/sparse pairs so a coordinate present in only one side is still
// compared against the implicit zero on the other.
func (v *Vector) ValueEquals(other *Vector, eps float32) bool {
	switch {
	case !v.sparse && !other.sparse:
		if len(v.dense) != len(other.dense) {
			return false
		}
		for i := range v.dense {
			if absf32(v.dense[i]-other.dense[i]) > eps {
				return false
			}
		}
		return true

	case v.sparse && other.sparse:
		for pos, idx := range v.indexes {
			b, _ := other.Lookup(int(idx))
			if absf32(v.values[pos]-b) > eps {
				return false
			}
		}
		for pos, idx := range other.indexes {
			a, ok := v.Lookup(int(idx))
			if !ok {
				if absf32(other.values[pos]) > eps {
					return false
				}
			}
			_ = a
		}
		return true

	default:
		sparseVec, dense := v, other
		if !v.sparse {
			sparseVec, dense = other, v
		}
		seen := make(map[int32]struct{}, len(sparseVec.indexes))
		for pos, idx := range sparseVec.indexes {
			seen[idx] = struct{}{}
			var d float32
			if int(idx) < dense.Len() && int(idx) >= 0 {
				d = dense.dense[idx]
			}
			if absf32(sparseVec.values[pos]-d) > eps {
				return false
			}
		}
		for i, d := range dense.dense {
			if _, ok := seen[int32(i)]; ok {
				continue
			}
			if absf32(d) > eps {
				return false
			}
		}
		return true
	}
}

// DefaultValueEqualsEpsilon is the default tolerance used by ValueEquals
// callers that don't need a custom epsilon (spec.md §4.1 default: 1e-6).
const DefaultValueEqualsEpsilon = 1e-6
