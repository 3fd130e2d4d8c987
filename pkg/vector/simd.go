package vector

// This file holds the portable SIMD-width arithmetic primitives the
// upper-bound index and k-means driver sit on top of. spec.md §9 allows
// either an intrinsics path gated on CPU feature detection or a portable
// abstraction that processes data in SIMD-width blocks; this module takes
// the latter: every hot loop below is unrolled into lanes-of-8 blocks
// (matching a 256-bit/8-float register) with a scalar tail, so a future
// build-tagged assembly implementation of laneWidth can drop in without
// changing any caller.
const laneWidth = 8

// dotProductDense computes the dot product of two equal-length dense
// vectors using 8-wide accumulation (independent partial sums per lane
// to break the sequential add dependency chain, then a horizontal
// reduction), with a scalar tail for the remainder.
func dotProductDense(a, b []float32) float32 {
	if len(a) != len(b) {
		panic("vector: dense dot product requires equal-length vectors")
	}

	var acc [laneWidth]float32
	n := len(a)
	blocks := n - n%laneWidth

	for i := 0; i < blocks; i += laneWidth {
		acc[0] += a[i+0] * b[i+0]
		acc[1] += a[i+1] * b[i+1]
		acc[2] += a[i+2] * b[i+2]
		acc[3] += a[i+3] * b[i+3]
		acc[4] += a[i+4] * b[i+4]
		acc[5] += a[i+5] * b[i+5]
		acc[6] += a[i+6] * b[i+6]
		acc[7] += a[i+7] * b[i+7]
	}

	sum := acc[0] + acc[1] + acc[2] + acc[3] + acc[4] + acc[5] + acc[6] + acc[7]
	for i := blocks; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

// squaredEuclideanDense computes Sum((a_i-b_i)^2) for equal-length dense
// vectors, same lane-width accumulation strategy as dotProductDense.
func squaredEuclideanDense(a, b []float32) float32 {
	if len(a) != len(b) {
		panic("vector: dense squared-euclidean requires equal-length vectors")
	}

	var acc [laneWidth]float32
	n := len(a)
	blocks := n - n%laneWidth

	for i := 0; i < blocks; i += laneWidth {
		for l := 0; l < laneWidth; l++ {
			d := a[i+l] - b[i+l]
			acc[l] += d * d
		}
	}

	sum := acc[0] + acc[1] + acc[2] + acc[3] + acc[4] + acc[5] + acc[6] + acc[7]
	for i := blocks; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// squaredSumSIMD computes Sum(v_i^2) with the same blocking strategy.
func squaredSumSIMD(v []float32) float32 {
	var acc [laneWidth]float32
	n := len(v)
	blocks := n - n%laneWidth

	for i := 0; i < blocks; i += laneWidth {
		for l := 0; l < laneWidth; l++ {
			acc[l] += v[i+l] * v[i+l]
		}
	}

	sum := acc[0] + acc[1] + acc[2] + acc[3] + acc[4] + acc[5] + acc[6] + acc[7]
	for i := blocks; i < n; i++ {
		sum += v[i] * v[i]
	}
	return sum
}

// scaleInPlace multiplies every element of v by s, in lane-width blocks.
func scaleInPlace(v []float32, s float32) {
	n := len(v)
	blocks := n - n%laneWidth
	for i := 0; i < blocks; i += laneWidth {
		for l := 0; l < laneWidth; l++ {
			v[i+l] *= s
		}
	}
	for i := blocks; i < n; i++ {
		v[i] *= s
	}
}

// squareAbsSIMD returns a new slice holding v_i^2 for every element.
func squareAbsSIMD(v []float32) []float32 {
	out := make([]float32, len(v))
	n := len(v)
	blocks := n - n%laneWidth
	for i := 0; i < blocks; i += laneWidth {
		for l := 0; l < laneWidth; l++ {
			out[i+l] = v[i+l] * v[i+l]
		}
	}
	for i := blocks; i < n; i++ {
		out[i] = v[i] * v[i]
	}
	return out
}
