package dbscan

import (
	"fmt"
	"math"

	"github.com/go-kmeans/kmvector/pkg/ubindex"
	"github.com/go-kmeans/kmvector/pkg/vector"
)

// DBSCAN is a configured density-based clustering driver.
type DBSCAN struct {
	Config Config
}

// New constructs a driver with the given configuration.
func New(cfg Config) *DBSCAN {
	return &DBSCAN{Config: cfg}
}

// Result is the outcome of a Cluster call: labels use -1 for noise
// points, matching spec.md §6; ClusterSizes[c] is the number of points
// labeled c.
type Result struct {
	Labels       []int
	ClusterSizes []int
}

// Cluster assigns every point in data to a cluster or to noise (-1).
// Cosine distance requires every vector to already be unit-length
// (NormalizeAsUnitVector beforehand, matching pkg/kmeans's spherical
// convention); Cluster returns an error rather than silently
// renormalizing, since that would be a visible change to caller-owned
// vectors outside of Cluster's contract.
func (d *DBSCAN) Cluster(data []*vector.Vector) (*Result, error) {
	if err := d.Config.validate(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("dbscan: no data provided")
	}
	if d.Config.DistanceMethod == Cosine {
		for i, v := range data {
			if !v.IsUnit() {
				return nil, fmt.Errorf("dbscan: cosine distance requires unit-length vectors, point %d is not unit", i)
			}
		}
	}

	neighbors, err := d.neighborLists(data)
	if err != nil {
		return nil, err
	}

	n := len(data)
	isCore := make([]bool, n)
	for i, nb := range neighbors {
		if len(nb) >= d.Config.MinNumSamples-1 {
			isCore[i] = true
		}
	}

	uf := newUnionFind(n)
	for i := range data {
		if !isCore[i] {
			continue
		}
		for _, j := range neighbors[i] {
			if isCore[j] {
				uf.union(i, j)
			}
		}
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}

	rootLabel := make(map[int]int)
	for i := range data {
		if !isCore[i] {
			continue
		}
		root := uf.find(i)
		id, ok := rootLabel[root]
		if !ok {
			id = len(rootLabel)
			rootLabel[root] = id
		}
		labels[i] = id
	}

	// Border points: assigned to the cluster of any core neighbor, not
	// expanded further themselves.
	for i := range data {
		if isCore[i] || labels[i] != -1 {
			continue
		}
		for _, j := range neighbors[i] {
			if isCore[j] {
				labels[i] = labels[j]
				break
			}
		}
	}

	sizes := make([]int, len(rootLabel))
	for _, l := range labels {
		if l >= 0 {
			sizes[l]++
		}
	}

	return &Result{Labels: labels, ClusterSizes: sizes}, nil
}

// neighborLists returns, for every point i, the indices of every other
// point within Config.MaxDistance. Sparse unit-length cosine data is
// routed through pkg/ubindex's sub-linear neighborhood query; every
// other combination falls back to a parallel brute-force scan.
func (d *DBSCAN) neighborLists(data []*vector.Vector) ([][]int, error) {
	if d.Config.DistanceMethod == Cosine && allSparse(data) {
		return d.neighborListsIndexed(data)
	}
	return d.neighborListsBruteForce(data)
}

func allSparse(data []*vector.Vector) bool {
	for _, v := range data {
		if !v.IsSparse() {
			return false
		}
	}
	return true
}

// neighborListsIndexed builds a single-layer upper-bound dot-product
// index over data (layer threshold = 1 - MaxDistance, the dot product
// floor equivalent to a cosine-distance ceiling of MaxDistance) and
// queries it once per point, verifying each candidate with a true
// cosine distance to discard the index's false positives.
func (d *DBSCAN) neighborListsIndexed(data []*vector.Vector) ([][]int, error) {
	lambda := 1 - d.Config.MaxDistance
	if lambda < 0 {
		lambda = 0
	}

	idx, err := ubindex.New([]float32{lambda})
	if err != nil {
		return nil, fmt.Errorf("dbscan: building index: %w", err)
	}
	if err := idx.Set(data); err != nil {
		return nil, fmt.Errorf("dbscan: indexing points: %w", err)
	}

	out := make([][]int, len(data))
	var firstErr error
	parallelFor(len(data), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			candidates, err := idx.Nearby(data[i], lambda)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			var nb []int
			for _, id := range candidates {
				j := int(id)
				if j == i {
					continue
				}
				dist, err := data[i].CosineDistance(data[j])
				if err != nil {
					continue
				}
				if dist <= d.Config.MaxDistance {
					nb = append(nb, j)
				}
			}
			out[i] = nb
		}
	})
	if firstErr != nil {
		return nil, fmt.Errorf("dbscan: querying index: %w", firstErr)
	}
	return out, nil
}

func (d *DBSCAN) neighborListsBruteForce(data []*vector.Vector) ([][]int, error) {
	n := len(data)
	out := make([][]int, n)
	dist := distanceFunc(d.Config.DistanceMethod)

	var firstErr error
	parallelFor(n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			var nb []int
			for j := 0; j < n; j++ {
				if j == i {
					continue
				}
				v, err := dist(data[i], data[j])
				if err != nil {
					if firstErr == nil {
						firstErr = err
					}
					continue
				}
				if v <= d.Config.MaxDistance {
					nb = append(nb, j)
				}
			}
			out[i] = nb
		}
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

func distanceFunc(method DistanceMethod) func(a, b *vector.Vector) (float32, error) {
	if method == Cosine {
		return func(a, b *vector.Vector) (float32, error) {
			return a.CosineDistance(b)
		}
	}
	return func(a, b *vector.Vector) (float32, error) {
		return float32(math.Sqrt(float64(a.SquaredEuclideanDistance(b)))), nil
	}
}
