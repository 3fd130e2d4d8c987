package kmeans

import (
	"fmt"
	"sync"

	"github.com/go-kmeans/kmvector/pkg/vector"
)

// changeMode tracks how much re-materialization a cluster's accumulator
// needs after a batch of differential updates: unchanged clusters reuse
// their previous centroid outright.
type changeMode int

const (
	modeUnchanged changeMode = iota
	modeValuesOnly
	modeStructural
)

// accumulator is a cluster's running sum of assigned member vectors,
// either as a fixed-size dense array or a sparse coordinate->value map.
type accumulator struct {
	dense  []float32
	sparse map[int32]float32
	size   int
}

func newAccumulator(sparseStorage bool, dim int) *accumulator {
	if sparseStorage {
		return &accumulator{sparse: make(map[int32]float32)}
	}
	return &accumulator{dense: make([]float32, dim)}
}

func (a *accumulator) reset(dim int) {
	a.size = 0
	if a.sparse != nil {
		for k := range a.sparse {
			delete(a.sparse, k)
		}
		return
	}
	for i := range a.dense {
		a.dense[i] = 0
	}
}

func (a *accumulator) addSparse(v *vector.Vector) {
	for pos, c := range v.Indexes() {
		a.sparse[c] += v.Values()[pos]
	}
	a.size++
}

func (a *accumulator) addDense(v *vector.Vector) {
	vals := v.Values()
	for i, x := range vals {
		a.dense[i] += x
	}
	a.size++
}

// materialize builds a Vector from the accumulator's current sum:
// unit-normalized if spherical, otherwise divided by member count.
func (a *accumulator) materialize(spherical bool, dim int) *vector.Vector {
	if a.sparse != nil {
		idx := make([]int32, 0, len(a.sparse))
		val := make([]float32, 0, len(a.sparse))
		for c, sum := range a.sparse {
			v := sum
			if !spherical && a.size > 0 {
				v = sum / float32(a.size)
			}
			idx = append(idx, c)
			val = append(val, v)
		}
		vec, err := vector.NewSparse(idx, val)
		if err != nil {
			// accumulator coordinates are unique map keys by construction.
			panic(fmt.Sprintf("kmeans: invariant violated materializing sparse centroid: %v", err))
		}
		if spherical {
			vec.NormalizeAsUnitVector()
		}
		return vec
	}

	out := make([]float32, dim)
	copy(out, a.dense)
	if !spherical && a.size > 0 {
		inv := 1 / float32(a.size)
		for i := range out {
			out[i] *= inv
		}
	}
	vec := vector.NewDense(out)
	if spherical {
		vec.NormalizeAsUnitVector()
	}
	return vec
}

// fullCentroidUpdate recomputes every cluster's centroid from scratch:
// clears accumulators, sweeps the data once per cluster (embarrassingly
// parallel — each worker only ever touches its own accumulator, so there
// is no cross-goroutine write contention), then materializes.
func fullCentroidUpdate(data []*vector.Vector, labels []int, accs []*accumulator, spherical, sparseStorage bool, dim int) []*vector.Vector {
	k := len(accs)
	var wg sync.WaitGroup
	wg.Add(k)
	for c := 0; c < k; c++ {
		go func(c int) {
			defer wg.Done()
			acc := accs[c]
			acc.reset(dim)
			for i, label := range labels {
				if label != c {
					continue
				}
				if sparseStorage {
					acc.addSparse(data[i])
				} else {
					acc.addDense(data[i])
				}
			}
		}(c)
	}
	wg.Wait()

	centroids := make([]*vector.Vector, k)
	for c := 0; c < k; c++ {
		centroids[c] = accs[c].materialize(spherical, dim)
	}
	return centroids
}

// labelChange is one point's reassignment from one cluster to another,
// the unit the differential centroid update consumes.
type labelChange struct {
	from, to int
	dataIdx  int
}

// differentialCentroidUpdate applies a batch of label changes to the
// existing accumulators in place, then re-materializes only the clusters
// whose accumulator actually moved (modeUnchanged clusters keep their
// previous centroid untouched). Used for the spherical+sparse case when
// the number of changes is small relative to the full dataset.
//
// Subtracting a coordinate the "from" accumulator never held signals a
// bookkeeping bug upstream (a point was labeled into a cluster whose
// accumulator never absorbed it) and is treated as an internal invariant
// violation, not a recoverable error.
func differentialCentroidUpdate(data []*vector.Vector, changes []labelChange, accs []*accumulator, prev []*vector.Vector, spherical bool, dim int) []*vector.Vector {
	modes := make([]changeMode, len(accs))

	for _, ch := range changes {
		v := data[ch.dataIdx]
		fromAcc, toAcc := accs[ch.from], accs[ch.to]

		for pos, c := range v.Indexes() {
			x := v.Values()[pos]
			cur, ok := fromAcc.sparse[c]
			if !ok {
				panic(fmt.Sprintf("kmeans: differential subtract of absent coordinate %d from cluster %d", c, ch.from))
			}
			fromAcc.sparse[c] = cur - x
		}
		fromAcc.size--
		if modes[ch.from] < modeValuesOnly {
			modes[ch.from] = modeValuesOnly
		}

		for pos, c := range v.Indexes() {
			x := v.Values()[pos]
			if _, ok := toAcc.sparse[c]; !ok {
				modes[ch.to] = modeStructural
			}
			toAcc.sparse[c] += x
		}
		toAcc.size++
		if modes[ch.to] < modeValuesOnly {
			modes[ch.to] = modeValuesOnly
		}
	}

	out := make([]*vector.Vector, len(accs))
	for c := range accs {
		switch modes[c] {
		case modeUnchanged:
			out[c] = prev[c]
		default:
			out[c] = accs[c].materialize(spherical, dim)
		}
	}
	return out
}
