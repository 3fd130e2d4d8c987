package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-kmeans/kmvector/pkg/cache"
	"github.com/go-kmeans/kmvector/pkg/dbscan"
	"github.com/go-kmeans/kmvector/pkg/kmeans"
	"github.com/go-kmeans/kmvector/pkg/observability"
	"github.com/go-kmeans/kmvector/pkg/ubindex"
	"github.com/go-kmeans/kmvector/pkg/vector"
)

// Handler serves the clustering HTTP API directly against pkg/kmeans,
// pkg/ubindex, and pkg/dbscan, backed by a Store of per-namespace state.
// There is no gRPC hop: every request is handled in-process.
type Handler struct {
	store   *Store
	metrics *observability.Metrics
}

// NewHandler creates a handler over store, recording request/clustering
// metrics to m.
func NewHandler(store *Store, m *observability.Metrics) *Handler {
	return &Handler{store: store, metrics: m}
}

// vectorJSON is the wire representation of a vector: exactly one of Dense
// or SparseIndexes/SparseValues must be set.
type vectorJSON struct {
	Dense         []float32 `json:"dense,omitempty"`
	SparseIndexes []int32   `json:"sparse_indexes,omitempty"`
	SparseValues  []float32 `json:"sparse_values,omitempty"`
}

func (vj vectorJSON) toVector() (*vector.Vector, error) {
	if len(vj.Dense) > 0 {
		return vector.NewDense(vj.Dense), nil
	}
	if len(vj.SparseIndexes) > 0 {
		return vector.NewSparse(vj.SparseIndexes, vj.SparseValues)
	}
	return nil, fmt.Errorf("vector must set either dense or sparse_indexes/sparse_values")
}

func fromVector(v *vector.Vector) vectorJSON {
	if v.IsSparse() {
		return vectorJSON{SparseIndexes: v.Indexes(), SparseValues: v.Values()}
	}
	return vectorJSON{Dense: v.Values()}
}

func decodeVectors(raw []vectorJSON) ([]*vector.Vector, error) {
	out := make([]*vector.Vector, len(raw))
	for i, vj := range raw {
		v, err := vj.toVector()
		if err != nil {
			return nil, fmt.Errorf("vector %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// HealthCheck handles GET /v1/health.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]string{"status": "healthy"}, http.StatusOK)
}

// GetStats handles GET /v1/stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]interface{}{"namespaces": h.store.stats()}, http.StatusOK)
}

// GetCentroids handles GET /v1/namespaces/{ns}/centroids, returning the
// centroids from the namespace's last Cluster call.
func (h *Handler) GetCentroids(w http.ResponseWriter, r *http.Request, namespace string) {
	if r.Method != http.MethodGet {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ns := h.store.namespace(namespace)
	ns.mu.RLock()
	centroids := ns.centroids
	ns.mu.RUnlock()

	out := make([]vectorJSON, len(centroids))
	for i, c := range centroids {
		out[i] = fromVector(c)
	}
	writeJSON(w, map[string]interface{}{"centroids": out}, http.StatusOK)
}

// setVectorsRequest is the body of POST /v1/namespaces/{ns}/vectors.
type setVectorsRequest struct {
	Vectors []vectorJSON `json:"vectors"`
}

// SetVectors handles POST /v1/namespaces/{ns}/vectors, replacing a
// namespace's stored vector set wholesale.
func (h *Handler) SetVectors(w http.ResponseWriter, r *http.Request, namespace string) {
	start := time.Now()
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req setVectorsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.recordError("SetVectors", "bad_request")
		writeError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	vectors, err := decodeVectors(req.Vectors)
	if err != nil {
		h.recordError("SetVectors", "validation_error")
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.store.setVectors(namespace, vectors); err != nil {
		h.recordError("SetVectors", "quota_exceeded")
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	h.recordRequest("SetVectors", "success", start)
	writeJSON(w, map[string]interface{}{"count": len(vectors)}, http.StatusCreated)
}

// clusterRequest is the body of POST /v1/namespaces/{ns}/cluster.
type clusterRequest struct {
	K         int      `json:"k"`
	NumRuns   int      `json:"num_runs,omitempty"`
	Spherical *bool    `json:"spherical,omitempty"`
	Seed      *int64   `json:"random_seed,omitempty"`
}

type clusterResponse struct {
	Labels     []int   `json:"labels"`
	Distortion float64 `json:"distortion"`
	Clusters   int     `json:"clusters"`
}

// Cluster handles POST /v1/namespaces/{ns}/cluster: runs kmeans.Cluster
// over the namespace's stored vectors and keeps the winning centroids for
// later Assign and GetCentroids calls.
func (h *Handler) Cluster(w http.ResponseWriter, r *http.Request, namespace string) {
	start := time.Now()
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req clusterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.recordError("Cluster", "bad_request")
		writeError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	ns := h.store.namespace(namespace)
	ns.mu.RLock()
	data := ns.vectors
	ns.mu.RUnlock()
	if len(data) == 0 {
		h.recordError("Cluster", "empty_namespace")
		writeError(w, errNamespaceEmpty(namespace).Error(), http.StatusUnprocessableEntity)
		return
	}

	cfg := h.store.cfg.Cluster
	kcfg := kmeans.Config{
		PlusPlusInit:               cfg.PlusPlusInit,
		Spherical:                  cfg.Spherical,
		ClustersChangedMap:         cfg.ClustersChangedMap,
		IndexedMeans:               cfg.IndexedMeans,
		SamplingRatio:              cfg.SamplingRatio,
		MaxChangesForDifferential:  cfg.MaxChangesForDifferential,
		ConvergenceTolerance:       cfg.ConvergenceTolerance,
		MinClustersForIndexedMeans: cfg.MinClustersForIndexedMeans,
		NumRuns:                    cfg.NumRuns,
		RandomSeed:                 1,
		IterationMultiplier:        10,
	}
	if req.Spherical != nil {
		kcfg.Spherical = *req.Spherical
	}
	if req.Seed != nil {
		kcfg.RandomSeed = *req.Seed
	}

	numRuns := req.NumRuns
	if numRuns <= 0 {
		numRuns = kcfg.NumRuns
	}

	result, err := kmeans.New(kcfg).Cluster(data, req.K, numRuns)
	if err != nil {
		h.recordError("Cluster", "clustering_error")
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ns.mu.Lock()
	ns.centroids = result.Centroids
	ns.labels = result.Labels
	ns.mu.Unlock()

	geometry := "euclidean"
	if kcfg.Spherical {
		geometry = "spherical"
	}
	if h.metrics != nil {
		clustersPruned := req.K - len(result.Centroids)
		if clustersPruned < 0 {
			clustersPruned = 0
		}
		h.metrics.RecordClusteringRun(namespace, geometry, time.Since(start), numRuns, result.Distortion, clustersPruned)
	}
	h.recordRequest("Cluster", "success", start)

	writeJSON(w, clusterResponse{
		Labels:     result.Labels,
		Distortion: result.Distortion,
		Clusters:   len(result.Centroids),
	}, http.StatusOK)
}

// assignRequest is the body of POST /v1/namespaces/{ns}/assign.
type assignRequest struct {
	Centroids []vectorJSON `json:"centroids,omitempty"`
}

// Assign handles POST /v1/namespaces/{ns}/assign: reassigns the namespace's
// stored vectors to either the provided centroids or, if omitted, the
// centroids from the namespace's last Cluster call.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request, namespace string) {
	start := time.Now()
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req assignRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.recordError("GetClustering", "bad_request")
			writeError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}
	}

	ns := h.store.namespace(namespace)
	ns.mu.RLock()
	data := ns.vectors
	centroids := ns.centroids
	ns.mu.RUnlock()
	if len(data) == 0 {
		h.recordError("GetClustering", "empty_namespace")
		writeError(w, errNamespaceEmpty(namespace).Error(), http.StatusUnprocessableEntity)
		return
	}

	if len(req.Centroids) > 0 {
		var err error
		centroids, err = decodeVectors(req.Centroids)
		if err != nil {
			h.recordError("GetClustering", "validation_error")
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if len(centroids) == 0 {
		h.recordError("GetClustering", "no_centroids")
		writeError(w, fmt.Sprintf("namespace %q has no centroids; POST /v1/namespaces/%s/cluster first or supply centroids", namespace, namespace), http.StatusUnprocessableEntity)
		return
	}

	labels, err := kmeans.New(h.store.kmeansConfig()).GetClustering(data, centroids)
	if err != nil {
		h.recordError("GetClustering", "assignment_error")
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.recordRequest("GetClustering", "success", start)
	writeJSON(w, map[string]interface{}{"labels": labels}, http.StatusOK)
}

// buildIndexRequest is the body of POST /v1/namespaces/{ns}/index.
type buildIndexRequest struct {
	Thresholds []float32 `json:"thresholds,omitempty"`
}

// BuildIndex handles POST /v1/namespaces/{ns}/index: builds a
// ubindex.DotProductIndex over the namespace's stored vectors, which must
// all be sparse and unit-length.
func (h *Handler) BuildIndex(w http.ResponseWriter, r *http.Request, namespace string) {
	start := time.Now()
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req buildIndexRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.recordError("BuildIndex", "bad_request")
			writeError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}
	}
	thresholds := req.Thresholds
	if len(thresholds) == 0 {
		thresholds = h.store.cfg.Index.Thresholds
	}

	ns := h.store.namespace(namespace)
	ns.mu.RLock()
	data := ns.vectors
	ns.mu.RUnlock()
	if len(data) == 0 {
		h.recordError("BuildIndex", "empty_namespace")
		writeError(w, errNamespaceEmpty(namespace).Error(), http.StatusUnprocessableEntity)
		return
	}

	idx, err := ubindex.New(thresholds)
	if err != nil {
		h.recordError("BuildIndex", "bad_request")
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := idx.Set(data); err != nil {
		h.recordError("BuildIndex", "index_error")
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	ns.mu.Lock()
	ns.index = idx
	ns.queryCache.Clear()
	ns.mu.Unlock()

	if h.metrics != nil {
		h.metrics.RecordIndexBuild(time.Since(start))
	}
	h.recordRequest("BuildIndex", "success", start)
	writeJSON(w, map[string]interface{}{"vectors_indexed": idx.VectorsCount()}, http.StatusOK)
}

// nearbyRequest is the body of POST /v1/namespaces/{ns}/nearby.
type nearbyRequest struct {
	Query  vectorJSON `json:"query"`
	Lambda *float32   `json:"lambda,omitempty"`
}

// Nearby handles POST /v1/namespaces/{ns}/nearby, serving repeated queries
// from the namespace's query cache.
func (h *Handler) Nearby(w http.ResponseWriter, r *http.Request, namespace string) {
	start := time.Now()
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req nearbyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.recordError("Nearby", "bad_request")
		writeError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	q, err := req.Query.toVector()
	if err != nil {
		h.recordError("Nearby", "validation_error")
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ns := h.store.namespace(namespace)
	ns.mu.RLock()
	idx := ns.index
	qc := ns.queryCache
	ns.mu.RUnlock()
	if idx == nil {
		h.recordError("Nearby", "no_index")
		writeError(w, errNamespaceNoIndex(namespace).Error(), http.StatusUnprocessableEntity)
		return
	}

	lambda := idx.MinDotProduct()
	if req.Lambda != nil {
		lambda = *req.Lambda
	}

	key := cache.NearbyKey(namespace, q, lambda)
	if ids, found := qc.GetNearby(key); found {
		h.metricCacheHit()
		h.recordRequest("Nearby", "success", start)
		writeJSON(w, map[string]interface{}{"ids": ids}, http.StatusOK)
		return
	}
	h.metricCacheMiss()

	ids, err := idx.Nearby(q, lambda)
	if err != nil {
		h.recordError("Nearby", "query_error")
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	qc.PutNearby(key, ids)

	if h.metrics != nil {
		h.metrics.RecordIndexQuery(time.Since(start), len(ids))
		h.metrics.UpdateCacheSize(qc.Size())
	}
	h.recordRequest("Nearby", "success", start)
	writeJSON(w, map[string]interface{}{"ids": ids}, http.StatusOK)
}

// knearestRequest is the body of POST /v1/namespaces/{ns}/knearest.
type knearestRequest struct {
	Query     vectorJSON `json:"query"`
	K         int        `json:"k"`
	LambdaMin float32    `json:"lambda_min,omitempty"`
}

// KNearest handles POST /v1/namespaces/{ns}/knearest.
func (h *Handler) KNearest(w http.ResponseWriter, r *http.Request, namespace string) {
	start := time.Now()
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req knearestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.recordError("KNearest", "bad_request")
		writeError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	q, err := req.Query.toVector()
	if err != nil {
		h.recordError("KNearest", "validation_error")
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ns := h.store.namespace(namespace)
	ns.mu.RLock()
	idx := ns.index
	qc := ns.queryCache
	ns.mu.RUnlock()
	if idx == nil {
		h.recordError("KNearest", "no_index")
		writeError(w, errNamespaceNoIndex(namespace).Error(), http.StatusUnprocessableEntity)
		return
	}

	key := cache.KNearestKey(namespace, q, req.K, req.LambdaMin)
	if results, found := qc.GetKNearest(key); found {
		h.metricCacheHit()
		h.recordRequest("KNearest", "success", start)
		writeJSON(w, map[string]interface{}{"results": results}, http.StatusOK)
		return
	}
	h.metricCacheMiss()

	results, err := idx.KNearest(q, req.K, req.LambdaMin)
	if err != nil {
		h.recordError("KNearest", "query_error")
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	qc.PutKNearest(key, results)

	if h.metrics != nil {
		h.metrics.RecordIndexQuery(time.Since(start), len(results))
		h.metrics.UpdateCacheSize(qc.Size())
	}
	h.recordRequest("KNearest", "success", start)
	writeJSON(w, map[string]interface{}{"results": results}, http.StatusOK)
}

// dbscanRequest is the body of POST /v1/namespaces/{ns}/dbscan.
type dbscanRequest struct {
	MaxDistance    *float32 `json:"max_distance,omitempty"`
	MinNumSamples  int      `json:"min_num_samples,omitempty"`
	DistanceMethod string   `json:"distance_method,omitempty"`
}

type dbscanResponse struct {
	Labels       []int `json:"labels"`
	ClusterSizes []int `json:"cluster_sizes"`
}

// DBSCAN handles POST /v1/namespaces/{ns}/dbscan.
func (h *Handler) DBSCAN(w http.ResponseWriter, r *http.Request, namespace string) {
	start := time.Now()
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req dbscanRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.recordError("DBSCAN", "bad_request")
			writeError(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
			return
		}
	}

	cfg := dbscan.Config{
		MaxDistance:   h.store.cfg.DBSCAN.MaxDistance,
		MinNumSamples: h.store.cfg.DBSCAN.MinNumSamples,
	}
	if h.store.cfg.DBSCAN.DistanceMethod == "cosine" {
		cfg.DistanceMethod = dbscan.Cosine
	}
	if req.MaxDistance != nil {
		cfg.MaxDistance = *req.MaxDistance
	}
	if req.MinNumSamples > 0 {
		cfg.MinNumSamples = req.MinNumSamples
	}
	switch req.DistanceMethod {
	case "cosine":
		cfg.DistanceMethod = dbscan.Cosine
	case "euclidean":
		cfg.DistanceMethod = dbscan.Euclidean
	}

	ns := h.store.namespace(namespace)
	ns.mu.RLock()
	data := ns.vectors
	ns.mu.RUnlock()
	if len(data) == 0 {
		h.recordError("DBSCAN", "empty_namespace")
		writeError(w, errNamespaceEmpty(namespace).Error(), http.StatusUnprocessableEntity)
		return
	}

	result, err := dbscan.New(cfg).Cluster(data)
	if err != nil {
		h.recordError("DBSCAN", "clustering_error")
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	corePoints, noisePoints := 0, 0
	for _, l := range result.Labels {
		if l == -1 {
			noisePoints++
		} else {
			corePoints++
		}
	}
	if h.metrics != nil {
		h.metrics.RecordDBSCANRun(namespace, corePoints, noisePoints)
	}
	h.recordRequest("DBSCAN", "success", start)

	writeJSON(w, dbscanResponse{Labels: result.Labels, ClusterSizes: result.ClusterSizes}, http.StatusOK)
}

func (h *Handler) recordRequest(method, status string, start time.Time) {
	if h.metrics != nil {
		h.metrics.RecordRequest(method, status, time.Since(start))
	}
}

func (h *Handler) recordError(method, errorType string) {
	if h.metrics != nil {
		h.metrics.RecordError(method, errorType)
		h.metrics.RecordRequest(method, "error", 0)
	}
}

func (h *Handler) metricCacheHit() {
	if h.metrics != nil {
		h.metrics.RecordCacheHit()
	}
}

func (h *Handler) metricCacheMiss() {
	if h.metrics != nil {
		h.metrics.RecordCacheMiss()
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, fmt.Sprintf("failed to encode response: %v", err), http.StatusInternalServerError)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":  message,
		"status": statusCode,
	})
}

// ParseIntQuery parses an integer query parameter, falling back to
// defaultValue when absent or malformed.
func ParseIntQuery(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
