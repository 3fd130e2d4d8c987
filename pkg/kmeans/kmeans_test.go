package kmeans

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/go-kmeans/kmvector/pkg/vector"
)

func denseVectors(rows [][]float32) []*vector.Vector {
	out := make([]*vector.Vector, len(rows))
	for i, r := range rows {
		out[i] = vector.NewDense(r)
	}
	return out
}

// S1: dense 2D, 4 points, k=2, plus_plus_init, Euclidean.
func TestClusterDense2DFourPoints(t *testing.T) {
	data := denseVectors([][]float32{
		{0.1, 0.8},
		{0.2, 0.7},
		{0.5, 0.45},
		{0.6, 0.5},
	})

	km := New(DefaultConfig())
	res, err := km.Cluster(data, 2, 3)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}

	if len(res.Labels) != len(data) {
		t.Fatalf("got %d labels, want %d", len(res.Labels), len(data))
	}
	if res.Labels[0] != res.Labels[1] || res.Labels[2] != res.Labels[3] || res.Labels[0] == res.Labels[2] {
		t.Fatalf("expected points {0,1} and {2,3} split into separate clusters, got labels %v", res.Labels)
	}

	wantA := vector.NewDense([]float32{0.15, 0.75})
	wantB := vector.NewDense([]float32{0.55, 0.475})
	gotA := res.Centroids[res.Labels[0]]
	gotB := res.Centroids[res.Labels[2]]
	if !gotA.ValueEquals(wantA, 1e-3) {
		t.Errorf("centroid A = %v, want ~%v", gotA.Values(), wantA.Values())
	}
	if !gotB.ValueEquals(wantB, 1e-3) {
		t.Errorf("centroid B = %v, want ~%v", gotB.Values(), wantB.Values())
	}
}

// S2: sparse bag-of-index-value points mirroring S1, spherical.
func TestClusterSparseSphericalFourPoints(t *testing.T) {
	mk := func(pairs map[int32]float32) *vector.Vector {
		idx := make([]int32, 0, len(pairs))
		val := make([]float32, 0, len(pairs))
		for k, v := range pairs {
			idx = append(idx, k)
			val = append(val, v)
		}
		vec, err := vector.NewSparse(idx, val)
		if err != nil {
			t.Fatalf("NewSparse: %v", err)
		}
		return vec
	}

	data := []*vector.Vector{
		mk(map[int32]float32{1: 0.1, 3: 0.9}),
		mk(map[int32]float32{1: 0.2, 3: 0.8}),
		mk(map[int32]float32{2: 0.5, 4: 0.45}),
		mk(map[int32]float32{2: 0.6, 4: 0.5}),
	}

	cfg := DefaultConfig()
	cfg.Spherical = true
	cfg.IndexedMeans = false // k=2 is far below MinClustersForIndexedMeans anyway
	km := New(cfg)

	res, err := km.Cluster(data, 2, 3)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if res.Labels[0] != res.Labels[1] || res.Labels[2] != res.Labels[3] || res.Labels[0] == res.Labels[2] {
		t.Fatalf("expected points {0,1} and {2,3} split into separate clusters, got labels %v", res.Labels)
	}
	for _, c := range res.Centroids {
		if !c.IsUnit() {
			t.Errorf("centroid is not unit-length: squared sum %v", c.SquaredSum())
		}
	}
	pairCentroid := res.Centroids[res.Labels[0]]
	if v3 := pairCentroid.ValueAt(3); v3 <= pairCentroid.ValueAt(1) {
		t.Errorf("expected coordinate 3 to dominate the first pair's centroid, got coord1=%v coord3=%v", pairCentroid.ValueAt(1), v3)
	}
}

func TestClusterLabelsAndKBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	data := make([]*vector.Vector, 50)
	for i := range data {
		data[i] = vector.NewDense([]float32{float32(rng.NormFloat64()), float32(rng.NormFloat64())})
	}

	km := New(DefaultConfig())
	res, err := km.Cluster(data, 5, 1)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if len(res.Labels) != len(data) {
		t.Fatalf("got %d labels, want %d", len(res.Labels), len(data))
	}
	kFinal := len(res.Centroids)
	if kFinal > 5 {
		t.Fatalf("k_final = %d, want <= 5", kFinal)
	}
	for _, l := range res.Labels {
		if l < 0 || l >= kFinal {
			t.Errorf("label %d out of range [0,%d)", l, kFinal)
		}
	}
}

func TestClusterKGreaterThanNReducesToN(t *testing.T) {
	data := denseVectors([][]float32{{0, 0}, {1, 1}, {2, 2}})
	km := New(DefaultConfig())
	res, err := km.Cluster(data, 10, 1)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if len(res.Centroids) > len(data) {
		t.Fatalf("k_final = %d, want <= %d", len(res.Centroids), len(data))
	}
}

func TestClusterRejectsEmptyData(t *testing.T) {
	km := New(DefaultConfig())
	if _, err := km.Cluster(nil, 2, 1); err == nil {
		t.Fatal("expected error clustering empty data")
	}
}

func TestClusterRejectsKLessThanOne(t *testing.T) {
	km := New(DefaultConfig())
	data := denseVectors([][]float32{{0, 0}})
	if _, err := km.Cluster(data, 0, 1); err == nil {
		t.Fatal("expected error for k < 1")
	}
}

func TestMultiRunNeverWorseThanSingleRun(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	data := make([]*vector.Vector, 60)
	for i := range data {
		data[i] = vector.NewDense([]float32{float32(rng.NormFloat64()) * 3, float32(rng.NormFloat64()) * 3})
	}

	cfg := DefaultConfig()

	var worst float64
	for r := 0; r < 5; r++ {
		cfg.RandomSeed = int64(100 + r)
		single := New(cfg)
		res, err := single.Cluster(data, 4, 1)
		if err != nil {
			t.Fatalf("Cluster: %v", err)
		}
		if res.Distortion > worst {
			worst = res.Distortion
		}
	}

	cfg.RandomSeed = 1
	multi := New(cfg)
	best, err := multi.Cluster(data, 4, 5)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}
	if best.Distortion > worst+1e-9 {
		t.Errorf("5-run distortion %v exceeds worst single-run distortion %v", best.Distortion, worst)
	}
}

// S3: SamplingRatio < 1 must still label every input point, and the
// resulting centroids must land close to the two well-separated blobs
// even though the iterative loop only ever sees a fraction of them.
func TestClusterWithSamplingRatioLabelsFullSet(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	data := make([]*vector.Vector, 400)
	for i := range data {
		cx, cy := float32(0), float32(0)
		if i >= 200 {
			cx, cy = 20, 20
		}
		data[i] = vector.NewDense([]float32{
			cx + float32(rng.NormFloat64())*0.5,
			cy + float32(rng.NormFloat64())*0.5,
		})
	}

	cfg := DefaultConfig()
	cfg.SamplingRatio = 0.1
	km := New(cfg)
	res, err := km.Cluster(data, 2, 1)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}

	if len(res.Labels) != len(data) {
		t.Fatalf("got %d labels, want %d", len(res.Labels), len(data))
	}
	for i := 1; i < 200; i++ {
		if res.Labels[i] != res.Labels[0] {
			t.Fatalf("expected first blob to share a label, point %d diverged: %v", i, res.Labels[:5])
		}
	}
	for i := 201; i < 400; i++ {
		if res.Labels[i] != res.Labels[200] {
			t.Fatalf("expected second blob to share a label, point %d diverged", i)
		}
	}
	if res.Labels[0] == res.Labels[200] {
		t.Fatalf("expected the two blobs to land in different clusters, got %v", res.Labels[0])
	}
}

// TestSampleWithoutReplacementRespectsBounds checks the sampling helper
// never returns fewer than k points nor more than len(data).
func TestSampleWithoutReplacementRespectsBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	data := denseVectors([][]float32{{0}, {1}, {2}, {3}, {4}, {5}, {6}, {7}, {8}, {9}})

	sample := sampleWithoutReplacement(data, 0.3, 2, rng)
	if len(sample) < 2 || len(sample) > len(data) {
		t.Fatalf("sample size %d out of bounds for 10 points, ratio 0.3, k 2", len(sample))
	}

	sample = sampleWithoutReplacement(data, 0.1, 5, rng)
	if len(sample) != 5 {
		t.Fatalf("expected the k floor to win when ratio*n < k, got %d", len(sample))
	}
}

func TestEnsureUnitVectorsIdempotentUnderConcurrency(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	data := make([]*vector.Vector, 200)
	for i := range data {
		v := make([]float32, 8)
		for j := range v {
			v[j] = float32(rng.NormFloat64())
		}
		data[i] = vector.NewDense(v)
	}

	var wg sync.WaitGroup
	for p := 0; p < 8; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			EnsureUnitVectors(data)
		}()
	}
	wg.Wait()

	for i, v := range data {
		if !v.IsUnit() {
			t.Errorf("vector %d is not unit-length after concurrent EnsureUnitVectors: squared sum %v", i, v.SquaredSum())
		}
	}
}

func TestGetClusteringAndClusterCounts(t *testing.T) {
	data := denseVectors([][]float32{{0, 0}, {0, 1}, {10, 10}, {10, 11}})
	km := New(DefaultConfig())
	res, err := km.Cluster(data, 2, 2)
	if err != nil {
		t.Fatalf("Cluster: %v", err)
	}

	labels, err := km.GetClustering(data, res.Centroids)
	if err != nil {
		t.Fatalf("GetClustering: %v", err)
	}
	if len(labels) != len(data) {
		t.Fatalf("got %d labels, want %d", len(labels), len(data))
	}

	counts := km.GetClusterCounts(labels, len(res.Centroids))
	total := 0
	for _, c := range counts {
		total += c
	}
	if total != len(data) {
		t.Errorf("cluster counts sum to %d, want %d", total, len(data))
	}
}
