package ubindex

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/go-kmeans/kmvector/pkg/vector"
)

// randomUnitSparse builds a random unit-length sparse vector over
// [0,dim) with approximately density*dim non-zero coordinates.
func randomUnitSparse(rng *rand.Rand, dim int, density float64) *vector.Vector {
	var idx []int32
	var val []float32
	for i := 0; i < dim; i++ {
		if rng.Float64() < density {
			idx = append(idx, int32(i))
			val = append(val, float32(rng.NormFloat64()))
		}
	}
	if len(idx) == 0 {
		idx = []int32{int32(rng.Intn(dim))}
		val = []float32{1}
	}
	v, err := vector.NewSparse(idx, val)
	if err != nil {
		panic(err)
	}
	v.NormalizeAsUnitVector()
	return v
}

func bruteForceMatches(query *vector.Vector, vectors map[int64]*vector.Vector, lambda float32) map[int64]bool {
	out := make(map[int64]bool)
	for id, v := range vectors {
		if query.DotProduct(v) >= lambda {
			out[id] = true
		}
	}
	return out
}

func TestNearbySupersetGuarantee(t *testing.T) {
	rng := rand.New(rand.NewSource(123))
	idx, err := New([]float32{0.05, 0.25, 0.4, 0.6})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vectors := make(map[int64]*vector.Vector)
	for id := int64(0); id < 300; id++ {
		v := randomUnitSparse(rng, 80, 0.1)
		if err := idx.Add(v, id); err != nil {
			t.Fatalf("Add(%d): %v", id, err)
		}
		vectors[id] = v
	}

	for q := 0; q < 10; q++ {
		query := randomUnitSparse(rng, 80, 0.1)
		for _, lambda := range []float32{0.05, 0.25, 0.4, 0.6} {
			truth := bruteForceMatches(query, vectors, lambda)
			got, err := idx.Nearby(query, lambda)
			if err != nil {
				t.Fatalf("Nearby: %v", err)
			}
			gotSet := make(map[int64]bool, len(got))
			for _, id := range got {
				gotSet[id] = true
			}
			for id := range truth {
				if !gotSet[id] {
					t.Fatalf("lambda=%v: id %d scores >= lambda but is missing from nearby() result (false negative)", lambda, id)
				}
			}
		}
	}
}

func TestNearbyZeroThresholdIsExactPositiveMatches(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	idx, err := New([]float32{0})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vectors := make(map[int64]*vector.Vector)
	for id := int64(0); id < 150; id++ {
		v := randomUnitSparse(rng, 40, 0.15)
		if err := idx.Add(v, id); err != nil {
			t.Fatalf("Add(%d): %v", id, err)
		}
		vectors[id] = v
	}

	query := randomUnitSparse(rng, 40, 0.15)
	want := make(map[int64]bool)
	for id, v := range vectors {
		if query.DotProduct(v) > 0 {
			want[id] = true
		}
	}

	got, err := idx.Nearby(query, 0)
	if err != nil {
		t.Fatalf("Nearby: %v", err)
	}
	gotSet := make(map[int64]bool, len(got))
	for _, id := range got {
		if gotSet[id] {
			t.Fatalf("duplicate id %d in nearby() result", id)
		}
		gotSet[id] = true
	}

	if len(gotSet) != len(want) {
		t.Fatalf("nearby(q) at lambda=0 returned %d ids, want exactly %d positive-dot matches", len(gotSet), len(want))
	}
	for id := range want {
		if !gotSet[id] {
			t.Fatalf("id %d has positive dot product but is missing from the zero-threshold result", id)
		}
	}
}

func TestKNearestMatchesBruteForceTopK(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	idx, err := New([]float32{0.0, 0.2, 0.4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vectors := make(map[int64]*vector.Vector)
	for id := int64(0); id < 400; id++ {
		v := randomUnitSparse(rng, 60, 0.12)
		if err := idx.Add(v, id); err != nil {
			t.Fatalf("Add(%d): %v", id, err)
		}
		vectors[id] = v
	}

	query := randomUnitSparse(rng, 60, 0.12)
	const k = 5

	type scored struct {
		id    int64
		score float32
	}
	var all []scored
	for id, v := range vectors {
		dp := query.DotProduct(v)
		if dp > 0 {
			all = append(all, scored{id, dp})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].id < all[j].id
	})
	want := all
	if len(want) > k {
		want = want[:k]
	}

	got, err := idx.KNearest(query, k, 0)
	if err != nil {
		t.Fatalf("KNearest: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("KNearest returned %d results, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].ID != want[i].id {
			t.Errorf("rank %d: got id %d (score %v), want id %d (score %v)", i, got[i].ID, got[i].Score, want[i].id, want[i].score)
		}
	}
}

func TestAddRejectsNonUnitVector(t *testing.T) {
	idx, _ := New([]float32{0.1})
	v, _ := vector.NewSparse([]int32{0, 1}, []float32{1, 1}) // squared sum 2, not unit
	if err := idx.Add(v, 1); err == nil {
		t.Fatal("expected error adding a non-unit vector")
	}
}

func TestAddRejectsDenseVector(t *testing.T) {
	idx, _ := New([]float32{0.1})
	v := vector.NewDense([]float32{1, 0, 0})
	if err := idx.Add(v, 1); err == nil {
		t.Fatal("expected error adding a dense vector")
	}
}

func TestAddRejectsZeroVector(t *testing.T) {
	idx, _ := New([]float32{0.1})
	v, _ := vector.NewSparse([]int32{0}, []float32{0})
	if err := idx.Add(v, 1); err == nil {
		t.Fatal("expected error adding a zero vector")
	}
}

func TestNewRejectsNegativeThreshold(t *testing.T) {
	if _, err := New([]float32{-0.1}); err == nil {
		t.Fatal("expected error for negative threshold")
	}
}

// TestNearbySupersetAdversarialSkewedCoordinate exercises the skew-guard
// path: one coordinate is shared by nearly every indexed vector, forcing
// the counting strategy to skip it and fall back to the offset
// adjustment. The superset guarantee must still hold.
func TestNearbySupersetAdversarialSkewedCoordinate(t *testing.T) {
	rng := rand.New(rand.NewSource(555))
	idx, err := New([]float32{0.3})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	vectors := make(map[int64]*vector.Vector)
	const n = 500
	for id := int64(0); id < n; id++ {
		idxs := []int32{0} // shared hot coordinate present in every vector
		vals := []float32{float32(0.1 + 0.05*rng.Float64())}
		extra := 1 + rng.Intn(4)
		for e := 0; e < extra; e++ {
			c := int32(1 + rng.Intn(60))
			idxs = append(idxs, c)
			vals = append(vals, float32(rng.NormFloat64()))
		}
		v, err := vector.NewSparse(idxs, vals)
		if err != nil {
			continue
		}
		v.NormalizeAsUnitVector()
		if err := idx.Add(v, id); err != nil {
			continue
		}
		vectors[id] = v
	}

	query := randomUnitSparse(rng, 61, 1.0) // dense-ish query touching most coordinates including 0
	truth := bruteForceMatches(query, vectors, 0.3)
	got, err := idx.Nearby(query, 0.3)
	if err != nil {
		t.Fatalf("Nearby: %v", err)
	}
	gotSet := make(map[int64]bool, len(got))
	for _, id := range got {
		gotSet[id] = true
	}
	for id := range truth {
		if !gotSet[id] {
			t.Fatalf("adversarial skewed-coordinate case: id %d scores >= lambda but is missing (false negative)", id)
		}
	}
}
