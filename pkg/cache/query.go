package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/go-kmeans/kmvector/pkg/ubindex"
	"github.com/go-kmeans/kmvector/pkg/vector"
)

// QueryCache caches pkg/ubindex Nearby/KNearest results keyed on namespace
// and query parameters, so repeated queries against an unchanged index skip
// the scan entirely. Callers must invalidate (or Clear) the cache whenever
// the underlying index is rebuilt.
type QueryCache struct {
	cache *LRUCache
}

// NewQueryCache creates a query cache with the given capacity and TTL.
func NewQueryCache(capacity int, ttl time.Duration) *QueryCache {
	return &QueryCache{cache: NewLRUCache(capacity, ttl)}
}

// NearbyKey builds a cache key for a Nearby(q, lambda) call.
func NearbyKey(namespace string, q *vector.Vector, lambda float32) Key {
	h := sha256.New()
	fmt.Fprintf(h, "%s|", namespace)
	binary.Write(h, binary.LittleEndian, q.Indexes())
	binary.Write(h, binary.LittleEndian, q.Values())
	binary.Write(h, binary.LittleEndian, lambda)
	return Key(fmt.Sprintf("nearby:%x", h.Sum(nil)[:16]))
}

// KNearestKey builds a cache key for a KNearest(q, k, lambdaMin) call.
func KNearestKey(namespace string, q *vector.Vector, k int, lambdaMin float32) Key {
	h := sha256.New()
	fmt.Fprintf(h, "%s|", namespace)
	binary.Write(h, binary.LittleEndian, q.Indexes())
	binary.Write(h, binary.LittleEndian, q.Values())
	binary.Write(h, binary.LittleEndian, int32(k))
	binary.Write(h, binary.LittleEndian, lambdaMin)
	return Key(fmt.Sprintf("knearest:%x", h.Sum(nil)[:16]))
}

// GetNearby retrieves cached candidate ids for a Nearby query.
func (qc *QueryCache) GetNearby(key Key) ([]int64, bool) {
	value, found := qc.cache.Get(key)
	if !found {
		return nil, false
	}
	ids, ok := value.([]int64)
	if !ok {
		qc.cache.Invalidate(key)
		return nil, false
	}
	return ids, true
}

// PutNearby stores candidate ids for a Nearby query.
func (qc *QueryCache) PutNearby(key Key, ids []int64) {
	qc.cache.Put(key, ids)
}

// GetKNearest retrieves cached scored ids for a KNearest query.
func (qc *QueryCache) GetKNearest(key Key) ([]ubindex.ScoredID, bool) {
	value, found := qc.cache.Get(key)
	if !found {
		return nil, false
	}
	results, ok := value.([]ubindex.ScoredID)
	if !ok {
		qc.cache.Invalidate(key)
		return nil, false
	}
	return results, true
}

// PutKNearest stores scored ids for a KNearest query.
func (qc *QueryCache) PutKNearest(key Key, results []ubindex.ScoredID) {
	qc.cache.Put(key, results)
}

// Clear removes all cached query results, used whenever a namespace's index
// is rebuilt via BuildIndex.
func (qc *QueryCache) Clear() {
	qc.cache.Clear()
}

// Stats returns cache performance statistics.
func (qc *QueryCache) Stats() Stats {
	return qc.cache.Stats()
}

// Size returns the number of cached entries.
func (qc *QueryCache) Size() int {
	return qc.cache.Size()
}
