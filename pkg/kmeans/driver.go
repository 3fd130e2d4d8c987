package kmeans

import (
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"

	"github.com/go-kmeans/kmvector/pkg/ubindex"
	"github.com/go-kmeans/kmvector/pkg/vector"
)

// Result is the outcome of a Cluster call.
type Result struct {
	Labels     []int
	Centroids  []*vector.Vector
	Distortion float64
}

// KMeans is a configured clustering driver. The zero value is usable with
// Config left at its zero value, but callers should start from
// DefaultConfig.
type KMeans struct {
	Config Config
}

// New constructs a driver with the given configuration.
func New(cfg Config) *KMeans {
	return &KMeans{Config: cfg}
}

// batchSize is the number of data points assigned to one parallel-for
// slice, chosen to amortize goroutine-scheduling overhead over a large
// per-slice unit of work (spec.md §5).
func batchSize() int {
	n := runtime.NumCPU()
	if n < 1 {
		n = 1
	}
	return n * 3000
}

// parallelFor runs fn(lo, hi) for consecutive [lo,hi) ranges covering
// [0,n), one goroutine per range, and waits for all to finish. Each
// worker only ever writes to its own partition of shared output slices,
// so no synchronization beyond the final join is required.
func parallelFor(n int, fn func(lo, hi int)) {
	bs := batchSize()
	if n <= bs {
		fn(0, n)
		return
	}
	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += bs {
		hi := lo + bs
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, hi)
	}
	wg.Wait()
}

// EnsureUnitVectors normalizes every vector in data to unit length in
// place, idempotently and safely under concurrent/parallel invocation:
// NormalizeAsUnitVector is itself a no-op on an already-unit vector, and
// each worker only ever touches the elements in its own partition of the
// slice, so there is no shared mutable state to race on.
func EnsureUnitVectors(data []*vector.Vector) {
	parallelFor(len(data), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			data[i].NormalizeAsUnitVector()
		}
	})
}

// Cluster runs up to numRuns independent clustering attempts (falling
// back to Config.NumRuns if numRuns <= 0) and returns the run with the
// lowest distortion.
func (km *KMeans) Cluster(data []*vector.Vector, k int, numRuns int) (*Result, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("kmeans: empty data")
	}
	if k < 1 {
		return nil, fmt.Errorf("kmeans: k must be >= 1, got %d", k)
	}
	if numRuns <= 0 {
		numRuns = km.Config.NumRuns
	}
	if numRuns < 1 {
		numRuns = 1
	}

	sparseStorage := data[0].IsSparse()
	dim := data[0].Dim()
	for _, v := range data {
		if v.IsSparse() != sparseStorage {
			return nil, fmt.Errorf("kmeans: mixed dense/sparse storage in data")
		}
		if !sparseStorage && v.Dim() != dim {
			return nil, fmt.Errorf("kmeans: dense vectors must share one dimension, got %d and %d", dim, v.Dim())
		}
	}

	if km.Config.Spherical {
		EnsureUnitVectors(data)
	}

	if k > len(data) {
		k = len(data)
	}

	rng := rand.New(rand.NewSource(km.Config.RandomSeed))

	var best *Result
	for r := 0; r < numRuns; r++ {
		res, err := km.clusterRun(data, k, sparseStorage, dim, rng)
		if err != nil {
			return nil, err
		}
		if best == nil || res.Distortion < best.Distortion {
			best = res
		}
	}
	return best, nil
}

// clusterRun performs one full init->iterate->converge pass. When
// Config.SamplingRatio is in (0,1), the init/iterate/converge loop runs
// over a random subset of data (at least k points) instead of the full
// set, and the winning centroids are projected back over every point in
// data with one final exhaustive assignment pass.
func (km *KMeans) clusterRun(data []*vector.Vector, k int, sparseStorage bool, dim int, rng *rand.Rand) (*Result, error) {
	n := len(data)
	dist := distanceFunc(km.Config.Spherical)

	sampleData := data
	sampling := km.Config.SamplingRatio > 0 && km.Config.SamplingRatio < 1
	if sampling {
		sampleData = sampleWithoutReplacement(data, km.Config.SamplingRatio, k, rng)
	}
	sn := len(sampleData)

	centroids, k := km.initCentroids(sampleData, k, sparseStorage, dim, rng)

	labels := make([]int, sn)
	assignAllExhaustive(sampleData, centroids, dist, labels)

	accs := make([]*accumulator, k)
	for c := range accs {
		accs[c] = newAccumulator(sparseStorage, dim)
	}

	maxIter := km.Config.IterationMultiplier * sn
	if maxIter < 1 {
		maxIter = 1
	}

	var changes []labelChange
	var idx *ubindex.DotProductIndex
	indexEligible := km.Config.Spherical && sparseStorage && km.Config.IndexedMeans && k >= km.Config.MinClustersForIndexedMeans

	converged := false
	for iter := 0; iter < maxIter; iter++ {
		var newCentroids []*vector.Vector
		if changes != nil && len(changes) <= km.Config.MaxChangesForDifferential && sparseStorage && km.Config.Spherical {
			newCentroids = differentialCentroidUpdate(sampleData, changes, accs, centroids, km.Config.Spherical, dim)
		} else {
			newCentroids = fullCentroidUpdate(sampleData, labels, accs, km.Config.Spherical, sparseStorage, dim)
		}

		newCentroids, labels, accs = pruneEmptyClusters(newCentroids, accs, labels)
		k = len(newCentroids)

		changedSet := make(map[int]bool, k)
		anyChanged := false
		for c := 0; c < k && c < len(centroids); c++ {
			if !centroids[c].ValueEquals(newCentroids[c], vector.DefaultValueEqualsEpsilon) {
				changedSet[c] = true
				anyChanged = true
			}
		}
		for c := len(centroids); c < k; c++ {
			changedSet[c] = true
			anyChanged = true
		}

		if km.Config.ClustersChangedMap && !anyChanged {
			centroids = newCentroids
			converged = true
			break
		}

		var moveSum float64
		for c := 0; c < k && c < len(centroids); c++ {
			moveSum += float64(centroids[c].SquaredEuclideanDistance(newCentroids[c]))
		}
		if moveSum <= km.Config.ConvergenceTolerance {
			converged = true
		}

		centroids = newCentroids

		if k <= 1 {
			break
		}

		if indexEligible {
			var err error
			idx, err = rebuildCentroidIndex(centroids)
			if err != nil {
				indexEligible = false // degrade silently to exhaustive scan for the rest of the run
			}
		}

		newLabels := make([]int, sn)
		copy(newLabels, labels)
		changeCount := 0
		var iterChanges []labelChange
		var mu sync.Mutex

		parallelFor(sn, func(lo, hi int) {
			var local []labelChange
			localCount := 0
			for i := lo; i < hi; i++ {
				cur := labels[i]
				var candidates []int
				useIndex := false
				if km.Config.ClustersChangedMap && !changedSet[cur] {
					candidates = restrictedCandidates(changedSet, cur, k)
				} else if indexEligible && idx != nil {
					useIndex = true
				} else {
					candidates = allCandidates(k)
				}

				var newLabel int
				if useIndex {
					newLabel = assignViaIndex(sampleData[i], centroids, idx, cur, dist)
				} else {
					newLabel = assignBest(sampleData[i], centroids, candidates, dist)
				}

				if newLabel != cur {
					newLabels[i] = newLabel
					local = append(local, labelChange{from: cur, to: newLabel, dataIdx: i})
					localCount++
				}
			}
			if localCount > 0 {
				mu.Lock()
				iterChanges = append(iterChanges, local...)
				changeCount += localCount
				mu.Unlock()
			}
		})

		labels = newLabels
		changes = iterChanges

		if converged || changeCount == 0 {
			break
		}
	}

	if sampling {
		labels = make([]int, n)
		assignAllExhaustive(data, centroids, dist, labels)
	}

	distortion := computeDistortion(data, centroids, labels, km.Config.Spherical)

	return &Result{Labels: labels, Centroids: centroids, Distortion: distortion}, nil
}

// sampleWithoutReplacement draws a uniform random subset of data sized to
// ratio*len(data), never smaller than k (a sample too small to seed k
// centroids defeats the point of sampling).
func sampleWithoutReplacement(data []*vector.Vector, ratio float64, k int, rng *rand.Rand) []*vector.Vector {
	n := len(data)
	size := int(math.Ceil(ratio * float64(n)))
	if size < k {
		size = k
	}
	if size >= n {
		return data
	}
	perm := rng.Perm(n)
	sample := make([]*vector.Vector, size)
	for i, idx := range perm[:size] {
		sample[i] = data[idx]
	}
	return sample
}

func allCandidates(k int) []int {
	out := make([]int, k)
	for i := range out {
		out[i] = i
	}
	return out
}

func restrictedCandidates(changedSet map[int]bool, cur, k int) []int {
	out := make([]int, 0, len(changedSet)+1)
	for c := 0; c < k; c++ {
		if changedSet[c] {
			out = append(out, c)
		}
	}
	out = append(out, cur)
	return out
}

// distanceFunc returns the per-geometry point-to-centroid distance: 1 −
// dot product for spherical, squared Euclidean otherwise.
func distanceFunc(spherical bool) func(a, b *vector.Vector) float32 {
	if spherical {
		return func(a, b *vector.Vector) float32 {
			d, err := a.CosineDistance(b)
			if err != nil {
				// both sides are driver-maintained unit vectors; a
				// mismatch here is an internal invariant violation.
				panic(fmt.Sprintf("kmeans: cosine distance requires unit vectors: %v", err))
			}
			return d
		}
	}
	return func(a, b *vector.Vector) float32 {
		return a.SquaredEuclideanDistance(b)
	}
}

func assignBest(point *vector.Vector, centroids []*vector.Vector, candidates []int, dist func(a, b *vector.Vector) float32) int {
	best := candidates[0]
	bestDist := dist(point, centroids[best])
	for _, c := range candidates[1:] {
		d := dist(point, centroids[c])
		if d < bestDist {
			bestDist = d
			best = c
		}
	}
	return best
}

func assignAllExhaustive(data []*vector.Vector, centroids []*vector.Vector, dist func(a, b *vector.Vector) float32, labels []int) {
	k := len(centroids)
	parallelFor(len(data), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			labels[i] = assignBest(data[i], centroids, allCandidates(k), dist)
		}
	})
}

// centroidIndexThresholds is the fixed layer ladder used for the
// per-iteration centroid index rebuild: a handful of thresholds spanning
// low to high similarity gives the query path several candidate layers
// to descend through without the build cost of a finer ladder.
var centroidIndexThresholds = []float32{0, 0.1, 0.3, 0.5, 0.7}

func rebuildCentroidIndex(centroids []*vector.Vector) (*ubindex.DotProductIndex, error) {
	idx, err := ubindex.New(centroidIndexThresholds)
	if err != nil {
		return nil, err
	}
	if err := idx.Set(centroids); err != nil {
		return nil, err
	}
	return idx, nil
}

// indexedAssignMinNonZeroDivisor determines the "very few non-zeros"
// exemption: points with fewer than k/indexedAssignMinNonZeroDivisor
// non-zero coordinates always use the index, regardless of maxSim.
const indexedAssignMinNonZeroDivisor = 50

// assignViaIndex implements spec.md §4.2's indexed-reassignment
// strategy: compute the similarity to the current centroid, and either
// query the index at that threshold (guaranteed to return every centroid
// at least as similar) or fall back to an exhaustive scan when the
// current similarity is too low to bound the search usefully.
func assignViaIndex(point *vector.Vector, centroids []*vector.Vector, idx *ubindex.DotProductIndex, cur int, dist func(a, b *vector.Vector) float32) int {
	maxSim := point.DotProduct(centroids[cur])
	k := len(centroids)

	useIndex := maxSim >= idx.MinDotProduct()+1e-6
	if !useIndex && point.Len() < k/indexedAssignMinNonZeroDivisor {
		useIndex = true
	}

	if !useIndex {
		return assignBest(point, centroids, allCandidates(k), dist)
	}

	candidateIDs, err := idx.Nearby(point, maxSim)
	if err != nil || len(candidateIDs) == 0 {
		return assignBest(point, centroids, allCandidates(k), dist)
	}

	best := cur
	bestSim := maxSim
	for _, id := range candidateIDs {
		c := int(id)
		if c == cur || c >= k {
			continue
		}
		sim := point.DotProduct(centroids[c])
		if sim > bestSim {
			bestSim = sim
			best = c
		}
	}
	return best
}

// pruneEmptyClusters removes any cluster whose accumulator absorbed zero
// members, renumbering survivors consecutively and left-shifting labels
// and accumulators accordingly in a single pass.
func pruneEmptyClusters(centroids []*vector.Vector, accs []*accumulator, labels []int) ([]*vector.Vector, []int, []*accumulator) {
	k := len(centroids)
	keep := make([]bool, k)
	remap := make([]int, k)
	survivors := 0
	for c := 0; c < k; c++ {
		if accs[c].size > 0 {
			keep[c] = true
			remap[c] = survivors
			survivors++
		} else {
			remap[c] = -1
		}
	}
	if survivors == k {
		return centroids, labels, accs
	}

	newCentroids := make([]*vector.Vector, 0, survivors)
	newAccs := make([]*accumulator, 0, survivors)
	for c := 0; c < k; c++ {
		if keep[c] {
			newCentroids = append(newCentroids, centroids[c])
			newAccs = append(newAccs, accs[c])
		}
	}

	newLabels := make([]int, len(labels))
	for i, l := range labels {
		if l < 0 || l >= k || remap[l] < 0 {
			panic(fmt.Sprintf("kmeans: invariant violated: label %d has no surviving cluster after pruning", l))
		}
		newLabels[i] = remap[l]
	}

	return newCentroids, newLabels, newAccs
}

func computeDistortion(data []*vector.Vector, centroids []*vector.Vector, labels []int, spherical bool) float64 {
	var sum float64
	for i, v := range data {
		c := centroids[labels[i]]
		if spherical {
			d, _ := v.CosineDistance(c)
			sum += float64(d)
		} else {
			sum += math.Sqrt(float64(v.SquaredEuclideanDistance(c)))
		}
	}
	return sum
}

// GetClustering assigns each point in data to its nearest centroid,
// without running any iterations — a one-shot exhaustive labeling
// against an already-trained centroid set.
func (km *KMeans) GetClustering(data []*vector.Vector, centroids []*vector.Vector) ([]int, error) {
	if len(centroids) == 0 {
		return nil, fmt.Errorf("kmeans: no centroids to assign against")
	}
	dist := distanceFunc(km.Config.Spherical)
	labels := make([]int, len(data))
	assignAllExhaustive(data, centroids, dist, labels)
	return labels, nil
}

// GetClusterCounts returns, for k clusters, how many entries of labels
// equal each cluster index.
func (km *KMeans) GetClusterCounts(labels []int, k int) []int {
	counts := make([]int, k)
	for _, l := range labels {
		if l >= 0 && l < k {
			counts[l]++
		}
	}
	return counts
}
