package ubindex

import (
	"fmt"
	"sort"

	"github.com/go-kmeans/kmvector/pkg/vector"
)

// ScoredID pairs a registered vector id with a true dot product against
// some query, as returned by KNearest and Nearest.
type ScoredID struct {
	ID    int64
	Score float32
}

// Nearby returns a superset of {id : q·v_id >= lambda}. Supersetness is
// exact: no vector meeting the threshold is ever omitted; the caller must
// verify candidates with a true dot product if exactness is required.
func (idx *DotProductIndex) Nearby(q *vector.Vector, lambda float32) ([]int64, error) {
	if lambda < 0 {
		return nil, fmt.Errorf("ubindex: negative threshold unsupported: %v", lambda)
	}
	if q == nil || q.Len() == 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	l := idx.pickLayerLocked(lambda)
	if l == nil {
		return idx.exhaustiveFallbackLocked(q), nil
	}
	if l.isZero() {
		// The zero layer is a plain inverted index, so its candidates are
		// filtered by the true dot product: the result is exactly the
		// indexed vectors with a positive dot product against q.
		var out []int64
		for _, id := range idx.exhaustiveFallbackLocked(q) {
			if q.DotProduct(idx.vectors[id]) > 0 {
				out = append(out, id)
			}
		}
		return out, nil
	}

	coords := q.Indexes()
	if !q.IsSparse() {
		// Dense queries degrade to the exhaustive fallback: the layer
		// structures are keyed by sparse coordinate lists only.
		return idx.exhaustiveFallbackLocked(q), nil
	}

	if len(coords) == 1 {
		return singleCoordMatches(l, coords[0]), nil
	}

	return idx.countingStrategyLocked(l, coords), nil
}

// NearbyDefault calls Nearby using the index's smallest configured
// threshold, matching the zero-argument nearby(q) form of the external
// interface.
func (idx *DotProductIndex) NearbyDefault(q *vector.Vector) ([]int64, error) {
	return idx.Nearby(q, idx.MinDotProduct())
}

// pickLayerLocked returns the layer with the largest threshold <= lambda,
// or nil if none qualifies (lambda is below every configured threshold).
// Caller must hold idx.mu.
func (idx *DotProductIndex) pickLayerLocked(lambda float32) *layer {
	var best *layer
	for i := range idx.layers {
		l := &idx.layers[i]
		if l.threshold <= lambda {
			best = l // layers are sorted ascending, so the last match is the largest qualifying threshold
		} else {
			break
		}
	}
	return best
}

// exhaustiveFallbackLocked unions the global inverted lists for every
// coordinate of q, deduplicated. Used when no layer threshold qualifies
// and as the always-correct degenerate-query path.
func (idx *DotProductIndex) exhaustiveFallbackLocked(q *vector.Vector) []int64 {
	seen := acquireIDSet()
	defer releaseIDSet(seen)

	var out []int64
	if q.IsSparse() {
		for _, c := range q.Indexes() {
			for _, id := range idx.inverted[c] {
				if seen.add(id) {
					out = append(out, id)
				}
			}
		}
		return out
	}
	// Dense query: every coordinate with a non-zero value participates.
	for i, x := range q.Values() {
		if x == 0 {
			continue
		}
		for _, id := range idx.inverted[int32(i)] {
			if seen.add(id) {
				out = append(out, id)
			}
		}
	}
	return out
}

func singleCoordMatches(l *layer, coord int32) []int64 {
	entries := l.tokens[coord]
	out := make([]int64, 0, len(entries))
	for _, e := range entries {
		if e.min == 1 {
			out = append(out, e.id)
		}
	}
	return out
}

// countingStrategyLocked implements spec.md §4.2's general-case query: a
// skew-guard-bounded counting pass over the global inverted list, then an
// admission pass over the layer's token->entries maps.
func (idx *DotProductIndex) countingStrategyLocked(l *layer, coords []int32) []int64 {
	cnt := acquireCounter()
	defer releaseCounter(cnt)

	skewGuard := 3
	if g := idx.count / 4; g > skewGuard {
		skewGuard = g
	}

	offset := int32(0)
	for _, c := range coords {
		ids := idx.inverted[c]
		if len(ids) >= skewGuard {
			offset++
			continue
		}
		for _, id := range ids {
			cnt.inc(id)
		}
	}

	qLen := int32(len(coords))
	seen := acquireIDSet()
	defer releaseIDSet(seen)

	var out []int64
	for _, c := range coords {
		for _, e := range l.tokens[c] {
			if seen.has(e.id) {
				continue
			}
			if e.min == 1 || (e.min <= qLen && cnt.get(e.id) >= e.min-offset) {
				seen.add(e.id)
				out = append(out, e.id)
				if len(out) == idx.count {
					return out
				}
			}
		}
	}
	return out
}

// KNearest returns the k highest-dot-product indexed vectors against q
// with a positive dot product of at least lambdaMin, descending layer by layer until at least
// k candidates are confirmed above the current layer's threshold (which
// guarantees the top-k across the entire index, since any vector missing
// from the current candidate set necessarily scores below that layer's
// threshold and so cannot outrank a candidate already above it).
func (idx *DotProductIndex) KNearest(q *vector.Vector, k int, lambdaMin float32) ([]ScoredID, error) {
	if k <= 0 {
		return nil, fmt.Errorf("ubindex: k must be positive, got %d", k)
	}
	if lambdaMin < 0 {
		return nil, fmt.Errorf("ubindex: negative threshold unsupported: %v", lambdaMin)
	}
	if q == nil || q.Len() == 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[int64]struct{})
	var candidates []ScoredID

	collect := func(ids []int64) {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			v, ok := idx.vectors[id]
			if !ok {
				continue
			}
			dp := q.DotProduct(v)
			if dp > 0 {
				candidates = append(candidates, ScoredID{ID: id, Score: dp})
			}
		}
	}

	for i := len(idx.layers) - 1; i >= 0; i-- {
		l := &idx.layers[i]
		if l.threshold < lambdaMin {
			break
		}
		collect(idx.nearbyAtLayerLocked(q, l))

		above := 0
		for _, c := range candidates {
			if c.Score >= l.threshold {
				above++
			}
		}
		if above >= k {
			return topKAbove(candidates, l.threshold, k), nil
		}
	}

	// Fell through every qualifying layer: fall back to the exhaustive
	// inverted list, guaranteed to be a superset of every positive match.
	collect(idx.exhaustiveFallbackLocked(q))
	return topKAbove(candidates, lambdaMin, k), nil
}

// nearbyAtLayerLocked runs the single-coordinate/counting-strategy query
// against one specific layer (used internally by KNearest, which needs
// per-layer candidate sets rather than Nearby's picked-layer semantics).
func (idx *DotProductIndex) nearbyAtLayerLocked(q *vector.Vector, l *layer) []int64 {
	if !q.IsSparse() {
		return idx.exhaustiveFallbackLocked(q)
	}
	coords := q.Indexes()
	if len(coords) == 1 {
		return singleCoordMatches(l, coords[0])
	}
	return idx.countingStrategyLocked(l, coords)
}

func topKAbove(candidates []ScoredID, threshold float32, k int) []ScoredID {
	filtered := make([]ScoredID, 0, len(candidates))
	for _, c := range candidates {
		if c.Score >= threshold {
			filtered = append(filtered, c)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].Score != filtered[j].Score {
			return filtered[i].Score > filtered[j].Score
		}
		return filtered[i].ID < filtered[j].ID
	})
	if len(filtered) > k {
		filtered = filtered[:k]
	}
	return filtered
}

// Nearest returns the single best-scoring candidate across all layers.
// ok is false if no indexed vector has a positive dot product with q.
func (idx *DotProductIndex) Nearest(q *vector.Vector) (result ScoredID, ok bool) {
	top, err := idx.KNearest(q, 1, 0)
	if err != nil || len(top) == 0 {
		return ScoredID{}, false
	}
	return top[0], true
}
