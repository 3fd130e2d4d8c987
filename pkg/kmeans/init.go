package kmeans

import (
	"math/rand"

	"github.com/go-kmeans/kmvector/pkg/vector"
)

// minMassForAnotherCentroid is the total remaining D²-weighted mass
// below which k-means++ seeding stops early: the data is already well
// covered by the centroids chosen so far, and drawing another would be
// numerically meaningless (every point already has a near-zero distance
// to its nearest chosen centroid).
const minMassForAnotherCentroid = 1e-5

// initCentroids seeds k initial centroids, returning the possibly
// smaller effective k (k-means++ seeding can saturate before reaching
// the requested k, per spec.md §4.4).
func (km *KMeans) initCentroids(data []*vector.Vector, k int, sparseStorage bool, dim int, rng *rand.Rand) ([]*vector.Vector, int) {
	if km.Config.PlusPlusInit {
		return kmeansPlusPlusInit(data, k, km.Config.Spherical, rng)
	}
	return uniformInit(data, k, rng), k
}

func kmeansPlusPlusInit(data []*vector.Vector, k int, spherical bool, rng *rand.Rand) ([]*vector.Vector, int) {
	n := len(data)
	dist := distanceFunc(spherical)

	centroids := make([]*vector.Vector, 0, k)
	first := rng.Intn(n)
	centroids = append(centroids, data[first].Clone())

	minDist := make([]float64, n)
	for i := range minDist {
		minDist[i] = float64(dist(data[i], centroids[0]))
	}

	for len(centroids) < k {
		var total float64
		for _, d := range minDist {
			total += d
		}
		if total < minMassForAnotherCentroid {
			break // seeding saturated; reduce numClusters to what was drawn
		}

		target := rng.Float64() * total
		var cumulative float64
		chosen := n - 1
		for i, d := range minDist {
			cumulative += d
			if cumulative >= target {
				chosen = i
				break
			}
		}

		next := data[chosen].Clone()
		centroids = append(centroids, next)

		parallelFor(n, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				d := float64(dist(data[i], next))
				if d < minDist[i] {
					minDist[i] = d
				}
			}
		})
	}

	return centroids, len(centroids)
}

func uniformInit(data []*vector.Vector, k int, rng *rand.Rand) []*vector.Vector {
	n := len(data)
	perm := rng.Perm(n)
	centroids := make([]*vector.Vector, k)
	for i := 0; i < k; i++ {
		centroids[i] = data[perm[i]].Clone()
	}
	return centroids
}
