// Package kmeans implements the k-Means/Spherical k-Means clustering
// driver: k-means++ or uniform seeding, exhaustive or index-accelerated
// assignment, full or differential centroid recomputation, empty-cluster
// pruning, and multi-run distortion scoring.
package kmeans

// Config holds every tunable of the clustering driver. The zero value is
// not meaningful; start from DefaultConfig.
type Config struct {
	// PlusPlusInit seeds centroids by D²-weighted sampling when true,
	// or by uniform sampling without replacement when false.
	PlusPlusInit bool

	// Spherical selects cosine-distance clustering on unit-normalized
	// vectors instead of squared-Euclidean clustering.
	Spherical bool

	// ClustersChangedMap restricts each iteration's reassignment scan to
	// centroids that moved since the previous iteration (plus the
	// point's current centroid), skipping unchanged ones.
	ClustersChangedMap bool

	// IndexedMeans uses the upper-bound dot-product index for the
	// assignment step when the run is spherical, the data is sparse,
	// and k is at least MinClustersForIndexedMeans.
	IndexedMeans bool

	// SamplingRatio, in (0,1], runs the init/iterate/converge loop on a
	// uniform random sample of the data (never smaller than k points)
	// instead of the full set, then projects the winning centroids back
	// over every point with one final exhaustive assignment pass. 1.0 (or
	// any value outside (0,1)) disables sampling.
	SamplingRatio float64

	// MaxChangesForDifferential is the largest number of (from, to)
	// label changes in one iteration for which the differential
	// centroid update is used; above it, the driver falls back to a
	// full recompute.
	MaxChangesForDifferential int

	// ConvergenceTolerance is the Σ‖c_new − c_old‖² threshold below
	// which the run is considered converged.
	ConvergenceTolerance float64

	// MinClustersForIndexedMeans is the smallest k for which the index
	// overhead is considered amortized.
	MinClustersForIndexedMeans int

	// NumRuns is the number of independent runs to score by distortion,
	// keeping the best. Cluster's numRuns argument overrides this when
	// positive.
	NumRuns int

	// RandomSeed seeds every random draw (init sampling) for
	// reproducibility across runs within one process.
	RandomSeed int64

	// IterationMultiplier bounds the iteration loop at
	// IterationMultiplier * len(data) iterations.
	IterationMultiplier int
}

// DefaultConfig returns the configuration spec.md §4.4 lists as defaults.
func DefaultConfig() Config {
	return Config{
		PlusPlusInit:               true,
		Spherical:                  false,
		ClustersChangedMap:         true,
		IndexedMeans:               true,
		SamplingRatio:              1.0,
		MaxChangesForDifferential:  1000,
		ConvergenceTolerance:       1e-4,
		MinClustersForIndexedMeans: 120,
		NumRuns:                    1,
		RandomSeed:                 1,
		IterationMultiplier:        10,
	}
}
