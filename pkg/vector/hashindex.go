package vector

import "math/bits"

// sparseHashIndex is the coordinate->position hash index built once per
// sparse vector at construction, giving ValueAt/Lookup effectively O(1)
// expected cost instead of a linear scan.
//
// Each bucket holds one of three things, collapsed into a single int32 to
// halve memory and avoid chasing a pointer for the common case:
//
//   - emptySentinel: the bucket is empty.
//   - a negative value other than emptySentinel: the bitwise complement
//     of the single position stored at this bucket (no collision).
//   - a non-negative value: an index into the overflow `entries` array,
//     where entries[block] is the collision count followed by that many
//     positions.
type sparseHashIndex struct {
	buckets []int32
	entries []int32
	n       uint64 // bucket count, used for the fast-reduce hash
}

const emptySentinel int32 = -1 << 31

// nextSize picks a bucket count roughly 1.3x the entry count, nudged to
// an odd number to spread hashes across buckets (a cheap stand-in for
// picking a prime without a factorization table).
func nextSize(entries int) uint64 {
	n := entries + entries/3 + 1
	if n < 4 {
		n = 4
	}
	if n%2 == 0 {
		n++
	}
	return uint64(n)
}

// coordHash spreads an int32 coordinate's bits using the 64-bit golden
// ratio multiplicative constant, the standard cheap integer hash.
func coordHash(coord int32) uint64 {
	x := uint64(uint32(coord))
	x *= 0x9E3779B97F4A7C15
	x ^= x >> 32
	return x
}

// fastReduce maps a 64-bit hash into [0, n) using Lemire's multiply-high
// trick: this is the "two 64-bit multiplies and two shifts" fast-mod
// spec.md describes — a single 64x64->128 multiply (done here as one
// bits.Mul64 call) followed by taking the high word, with no division.
func fastReduce(hash, n uint64) uint64 {
	hi, _ := bits.Mul64(hash, n)
	return hi
}

// buildSparseHashIndex builds the hash index for a sparse vector's
// coordinate list. Vectors with 2 or fewer coordinates get no hash index
// at all (nil) — the caller short-circuits to a linear scan instead, per
// spec.md §4.1 and §9 ("must gracefully handle |v|=0,1 without
// allocating any hash storage").
func buildSparseHashIndex(indexes []int32) *sparseHashIndex {
	if len(indexes) <= 2 {
		return nil
	}

	n := nextSize(len(indexes))
	buckets := make([]int32, n)
	for i := range buckets {
		buckets[i] = emptySentinel
	}

	// First pass: count collisions per bucket.
	counts := make([]int32, n)
	for _, idx := range indexes {
		b := fastReduce(coordHash(idx), n)
		counts[b]++
	}

	var entries []int32
	blockStart := make([]int32, n)
	for b, c := range counts {
		if c <= 1 {
			continue
		}
		blockStart[b] = int32(len(entries))
		entries = append(entries, c) // header: collision count
		entries = append(entries, make([]int32, c)...)
	}

	fill := make([]int32, n) // how many positions we've placed in each multi-entry block so far
	for pos, idx := range indexes {
		b := fastReduce(coordHash(idx), n)
		if counts[b] == 1 {
			buckets[b] = ^int32(pos)
			continue
		}
		block := blockStart[b]
		slot := block + 1 + fill[b]
		entries[slot] = int32(pos)
		fill[b]++
		buckets[b] = block
	}

	return &sparseHashIndex{buckets: buckets, entries: entries, n: n}
}

// lookup resolves coord to its stored value via the hash index, falling
// back to comparing the actual coordinate at each candidate position
// (required since bucket collisions are possible even after hashing).
func (h *sparseHashIndex) lookup(indexes []int32, values []float32, coord int32) (float32, bool) {
	b := fastReduce(coordHash(coord), h.n)
	bucket := h.buckets[b]

	if bucket == emptySentinel {
		return 0, false
	}

	if bucket < 0 {
		pos := int(^bucket)
		if indexes[pos] == coord {
			return values[pos], true
		}
		return 0, false
	}

	block := bucket
	count := h.entries[block]
	for i := int32(0); i < count; i++ {
		pos := int(h.entries[block+1+i])
		if indexes[pos] == coord {
			return values[pos], true
		}
	}
	return 0, false
}
