package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-kmeans/kmvector/pkg/api/rest"
	"github.com/go-kmeans/kmvector/pkg/api/rest/middleware"
	"github.com/go-kmeans/kmvector/pkg/config"
	"github.com/go-kmeans/kmvector/pkg/observability"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := config.Default()
	restConfig := rest.Config{
		Host:        cfg.REST.Host,
		Port:        cfg.REST.Port,
		CORSEnabled: false,
		Auth:        middleware.AuthConfig{Enabled: false},
		RateLimit:   middleware.RateLimitConfig{Enabled: false},
	}
	server := rest.NewServer(restConfig, cfg, observability.NewMetrics())
	return httptest.NewServer(server.Handler())
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

type vectorJSON struct {
	Dense         []float32 `json:"dense,omitempty"`
	SparseIndexes []int32   `json:"sparse_indexes,omitempty"`
	SparseValues  []float32 `json:"sparse_values,omitempty"`
}

func TestRESTClusteringWorkflow(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	vectors := []vectorJSON{
		{Dense: []float32{0, 0}},
		{Dense: []float32{0.1, 0.1}},
		{Dense: []float32{10, 10}},
		{Dense: []float32{10.1, 9.9}},
	}

	resp := postJSON(t, ts.URL+"/v1/namespaces/docs/vectors", map[string]interface{}{"vectors": vectors})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("SetVectors status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/v1/namespaces/docs/cluster", map[string]interface{}{"k": 2, "num_runs": 3})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Cluster status = %d", resp.StatusCode)
	}
	var clusterResp struct {
		Labels     []int   `json:"labels"`
		Distortion float64 `json:"distortion"`
		Clusters   int     `json:"clusters"`
	}
	decodeJSON(t, resp, &clusterResp)
	if len(clusterResp.Labels) != 4 {
		t.Fatalf("expected 4 labels, got %d", len(clusterResp.Labels))
	}
	if clusterResp.Labels[0] != clusterResp.Labels[1] || clusterResp.Labels[2] != clusterResp.Labels[3] {
		t.Errorf("expected the two close pairs to share a cluster, got %v", clusterResp.Labels)
	}
	if clusterResp.Labels[0] == clusterResp.Labels[2] {
		t.Errorf("expected the two far pairs to land in different clusters, got %v", clusterResp.Labels)
	}

	resp, err := http.Get(ts.URL + "/v1/namespaces/docs/centroids")
	if err != nil {
		t.Fatalf("GetCentroids: %v", err)
	}
	var centroidsResp struct {
		Centroids []vectorJSON `json:"centroids"`
	}
	decodeJSON(t, resp, &centroidsResp)
	if len(centroidsResp.Centroids) != 2 {
		t.Fatalf("expected 2 centroids, got %d", len(centroidsResp.Centroids))
	}

	resp, err = http.Get(ts.URL + "/v1/stats")
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GetStats status = %d", resp.StatusCode)
	}
}

func TestRESTIndexAndKNearest(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	vectors := []vectorJSON{
		{SparseIndexes: []int32{0, 1}, SparseValues: []float32{1, 0}},
		{SparseIndexes: []int32{0, 1}, SparseValues: []float32{0, 1}},
		{SparseIndexes: []int32{0, 1}, SparseValues: []float32{0.8, 0.6}},
	}
	resp := postJSON(t, ts.URL+"/v1/namespaces/idx/vectors", map[string]interface{}{"vectors": vectors})
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/v1/namespaces/idx/index", map[string]interface{}{})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("BuildIndex status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	query := vectorJSON{SparseIndexes: []int32{0, 1}, SparseValues: []float32{1, 0}}
	resp = postJSON(t, ts.URL+"/v1/namespaces/idx/knearest", map[string]interface{}{"query": query, "k": 2})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("KNearest status = %d", resp.StatusCode)
	}
	var knResp struct {
		Results []struct {
			ID    int64   `json:"id"`
			Score float32 `json:"score"`
		} `json:"results"`
	}
	decodeJSON(t, resp, &knResp)
	if len(knResp.Results) == 0 {
		t.Fatal("expected at least one result")
	}
	if knResp.Results[0].ID != 0 {
		t.Errorf("expected id 0 (exact match) to rank first, got %d", knResp.Results[0].ID)
	}
}

func TestRESTDBSCAN(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	vectors := []vectorJSON{
		{Dense: []float32{0, 0}},
		{Dense: []float32{0.1, 0}},
		{Dense: []float32{0, 0.1}},
		{Dense: []float32{10, 10}},
		{Dense: []float32{10.1, 10}},
		{Dense: []float32{10, 10.1}},
	}
	resp := postJSON(t, ts.URL+"/v1/namespaces/blobs/vectors", map[string]interface{}{"vectors": vectors})
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/v1/namespaces/blobs/dbscan", map[string]interface{}{
		"max_distance":   0.5,
		"min_num_samples": 2,
		"distance_method": "euclidean",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("DBSCAN status = %d", resp.StatusCode)
	}
	var dbResp struct {
		Labels       []int `json:"labels"`
		ClusterSizes []int `json:"cluster_sizes"`
	}
	decodeJSON(t, resp, &dbResp)
	if len(dbResp.Labels) != 6 {
		t.Fatalf("expected 6 labels, got %d", len(dbResp.Labels))
	}
	if dbResp.Labels[0] != dbResp.Labels[1] || dbResp.Labels[1] != dbResp.Labels[2] {
		t.Errorf("expected first blob to share a cluster label, got %v", dbResp.Labels)
	}
}

func TestRESTClusterRejectsEmptyNamespace(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/v1/namespaces/empty/cluster", map[string]interface{}{"k": 2})
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for an empty namespace, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}
