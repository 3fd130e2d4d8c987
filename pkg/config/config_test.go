package config

import (
	"os"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	// Test Server defaults
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Expected host 0.0.0.0, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxConnections != 1000 {
		t.Errorf("Expected max connections 1000, got %d", cfg.Server.MaxConnections)
	}
	if cfg.Server.RequestTimeout != 30*time.Second {
		t.Errorf("Expected request timeout 30s, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected shutdown timeout 10s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.EnableTLS {
		t.Error("Expected TLS disabled by default")
	}

	// Test Cluster defaults
	if !cfg.Cluster.PlusPlusInit {
		t.Error("Expected PlusPlusInit enabled by default")
	}
	if cfg.Cluster.Spherical {
		t.Error("Expected Spherical disabled by default")
	}
	if cfg.Cluster.NumRuns != 1 {
		t.Errorf("Expected NumRuns=1, got %d", cfg.Cluster.NumRuns)
	}
	if cfg.Cluster.MinClustersForIndexedMeans != 120 {
		t.Errorf("Expected MinClustersForIndexedMeans=120, got %d", cfg.Cluster.MinClustersForIndexedMeans)
	}

	// Test Index defaults
	if len(cfg.Index.Thresholds) == 0 {
		t.Error("Expected non-empty default index thresholds")
	}

	// Test DBSCAN defaults
	if cfg.DBSCAN.MaxDistance != 0.5 {
		t.Errorf("Expected DBSCAN max distance 0.5, got %v", cfg.DBSCAN.MaxDistance)
	}
	if cfg.DBSCAN.MinNumSamples != 5 {
		t.Errorf("Expected DBSCAN min_num_samples 5, got %d", cfg.DBSCAN.MinNumSamples)
	}
	if cfg.DBSCAN.DistanceMethod != "euclidean" {
		t.Errorf("Expected DBSCAN distance_method euclidean, got %s", cfg.DBSCAN.DistanceMethod)
	}

	// Test Cache defaults
	if !cfg.Cache.Enabled {
		t.Error("Expected cache enabled by default")
	}
	if cfg.Cache.Capacity != 1000 {
		t.Errorf("Expected cache capacity 1000, got %d", cfg.Cache.Capacity)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("Expected cache TTL 5m, got %v", cfg.Cache.TTL)
	}

	// Test Database defaults
	if cfg.Database.DataDir != "./data" {
		t.Errorf("Expected data dir ./data, got %s", cfg.Database.DataDir)
	}
	if cfg.Database.MaxNamespaces != 100 {
		t.Errorf("Expected max namespaces 100, got %d", cfg.Database.MaxNamespaces)
	}

	// Test REST defaults
	if cfg.REST.Host != "0.0.0.0" {
		t.Errorf("Expected rest host 0.0.0.0, got %s", cfg.REST.Host)
	}
	if cfg.REST.Port != 8080 {
		t.Errorf("Expected rest port 8080, got %d", cfg.REST.Port)
	}
	if !cfg.REST.CORSEnabled {
		t.Error("Expected rest CORS enabled by default")
	}
	if cfg.REST.AuthEnabled {
		t.Error("Expected rest auth disabled by default")
	}
	if !cfg.REST.RateLimitEnabled {
		t.Error("Expected rest rate limit enabled by default")
	}
	if cfg.REST.RateLimitPerSec != 100 {
		t.Errorf("Expected rest rate limit per sec 100, got %v", cfg.REST.RateLimitPerSec)
	}
}

func TestLoadFromEnv(t *testing.T) {
	envVars := []string{
		"VECTOR_HOST", "VECTOR_PORT", "VECTOR_MAX_CONNECTIONS",
		"VECTOR_REQUEST_TIMEOUT", "VECTOR_ENABLE_TLS",
		"VECTOR_CLUSTER_SPHERICAL", "VECTOR_CLUSTER_PLUSPLUS_INIT",
		"VECTOR_CLUSTER_NUM_RUNS", "VECTOR_CLUSTER_CONVERGENCE_TOLERANCE",
		"VECTOR_CLUSTER_MIN_FOR_INDEXED_MEANS",
		"VECTOR_DBSCAN_MAX_DISTANCE", "VECTOR_DBSCAN_MIN_NUM_SAMPLES",
		"VECTOR_DBSCAN_DISTANCE_METHOD",
		"VECTOR_CACHE_ENABLED", "VECTOR_CACHE_CAPACITY", "VECTOR_CACHE_TTL",
		"VECTOR_DATA_DIR", "VECTOR_MAX_NAMESPACES",
		"VECTOR_REST_HOST", "VECTOR_REST_PORT", "VECTOR_REST_CORS_ENABLED",
		"VECTOR_REST_AUTH_ENABLED", "VECTOR_REST_JWT_SECRET",
		"VECTOR_REST_RATE_LIMIT_PER_SEC", "VECTOR_REST_RATE_LIMIT_BURST",
	}

	originalEnv := make(map[string]string)
	for _, key := range envVars {
		originalEnv[key] = os.Getenv(key)
	}
	defer func() {
		for key, value := range originalEnv {
			if value == "" {
				os.Unsetenv(key)
			} else {
				os.Setenv(key, value)
			}
		}
	}()

	os.Setenv("VECTOR_HOST", "127.0.0.1")
	os.Setenv("VECTOR_PORT", "9090")
	os.Setenv("VECTOR_MAX_CONNECTIONS", "5000")
	os.Setenv("VECTOR_REQUEST_TIMEOUT", "60s")
	os.Setenv("VECTOR_ENABLE_TLS", "true")

	os.Setenv("VECTOR_CLUSTER_SPHERICAL", "true")
	os.Setenv("VECTOR_CLUSTER_PLUSPLUS_INIT", "false")
	os.Setenv("VECTOR_CLUSTER_NUM_RUNS", "5")
	os.Setenv("VECTOR_CLUSTER_CONVERGENCE_TOLERANCE", "0.001")
	os.Setenv("VECTOR_CLUSTER_MIN_FOR_INDEXED_MEANS", "50")

	os.Setenv("VECTOR_DBSCAN_MAX_DISTANCE", "0.25")
	os.Setenv("VECTOR_DBSCAN_MIN_NUM_SAMPLES", "8")
	os.Setenv("VECTOR_DBSCAN_DISTANCE_METHOD", "cosine")

	os.Setenv("VECTOR_CACHE_ENABLED", "false")
	os.Setenv("VECTOR_CACHE_CAPACITY", "5000")
	os.Setenv("VECTOR_CACHE_TTL", "10m")

	os.Setenv("VECTOR_DATA_DIR", "/var/lib/vectordb")
	os.Setenv("VECTOR_MAX_NAMESPACES", "250")

	os.Setenv("VECTOR_REST_HOST", "127.0.0.1")
	os.Setenv("VECTOR_REST_PORT", "9191")
	os.Setenv("VECTOR_REST_CORS_ENABLED", "false")
	os.Setenv("VECTOR_REST_AUTH_ENABLED", "true")
	os.Setenv("VECTOR_REST_JWT_SECRET", "s3cr3t")
	os.Setenv("VECTOR_REST_RATE_LIMIT_PER_SEC", "50")
	os.Setenv("VECTOR_REST_RATE_LIMIT_BURST", "75")

	cfg := LoadFromEnv()

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Expected host 127.0.0.1, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxConnections != 5000 {
		t.Errorf("Expected max connections 5000, got %d", cfg.Server.MaxConnections)
	}
	if cfg.Server.RequestTimeout != 60*time.Second {
		t.Errorf("Expected request timeout 60s, got %v", cfg.Server.RequestTimeout)
	}
	if !cfg.Server.EnableTLS {
		t.Error("Expected TLS enabled")
	}

	if !cfg.Cluster.Spherical {
		t.Error("Expected Spherical enabled")
	}
	if cfg.Cluster.PlusPlusInit {
		t.Error("Expected PlusPlusInit disabled")
	}
	if cfg.Cluster.NumRuns != 5 {
		t.Errorf("Expected NumRuns=5, got %d", cfg.Cluster.NumRuns)
	}
	if cfg.Cluster.ConvergenceTolerance != 0.001 {
		t.Errorf("Expected ConvergenceTolerance=0.001, got %v", cfg.Cluster.ConvergenceTolerance)
	}
	if cfg.Cluster.MinClustersForIndexedMeans != 50 {
		t.Errorf("Expected MinClustersForIndexedMeans=50, got %d", cfg.Cluster.MinClustersForIndexedMeans)
	}

	if cfg.DBSCAN.MaxDistance != 0.25 {
		t.Errorf("Expected DBSCAN max distance 0.25, got %v", cfg.DBSCAN.MaxDistance)
	}
	if cfg.DBSCAN.MinNumSamples != 8 {
		t.Errorf("Expected DBSCAN min_num_samples 8, got %d", cfg.DBSCAN.MinNumSamples)
	}
	if cfg.DBSCAN.DistanceMethod != "cosine" {
		t.Errorf("Expected DBSCAN distance_method cosine, got %s", cfg.DBSCAN.DistanceMethod)
	}

	if cfg.Cache.Enabled {
		t.Error("Expected cache disabled")
	}
	if cfg.Cache.Capacity != 5000 {
		t.Errorf("Expected cache capacity 5000, got %d", cfg.Cache.Capacity)
	}
	if cfg.Cache.TTL != 10*time.Minute {
		t.Errorf("Expected cache TTL 10m, got %v", cfg.Cache.TTL)
	}

	if cfg.Database.DataDir != "/var/lib/vectordb" {
		t.Errorf("Expected data dir /var/lib/vectordb, got %s", cfg.Database.DataDir)
	}
	if cfg.Database.MaxNamespaces != 250 {
		t.Errorf("Expected max namespaces 250, got %d", cfg.Database.MaxNamespaces)
	}

	if cfg.REST.Host != "127.0.0.1" {
		t.Errorf("Expected rest host 127.0.0.1, got %s", cfg.REST.Host)
	}
	if cfg.REST.Port != 9191 {
		t.Errorf("Expected rest port 9191, got %d", cfg.REST.Port)
	}
	if cfg.REST.CORSEnabled {
		t.Error("Expected rest CORS disabled")
	}
	if !cfg.REST.AuthEnabled {
		t.Error("Expected rest auth enabled")
	}
	if cfg.REST.JWTSecret != "s3cr3t" {
		t.Errorf("Expected rest jwt secret s3cr3t, got %s", cfg.REST.JWTSecret)
	}
	if cfg.REST.RateLimitPerSec != 50 {
		t.Errorf("Expected rest rate limit per sec 50, got %v", cfg.REST.RateLimitPerSec)
	}
	if cfg.REST.RateLimitBurst != 75 {
		t.Errorf("Expected rest rate limit burst 75, got %d", cfg.REST.RateLimitBurst)
	}
}

func TestLoadFromEnv_InvalidValues(t *testing.T) {
	originalPort := os.Getenv("VECTOR_PORT")
	defer func() {
		if originalPort == "" {
			os.Unsetenv("VECTOR_PORT")
		} else {
			os.Setenv("VECTOR_PORT", originalPort)
		}
	}()

	os.Setenv("VECTOR_PORT", "invalid")
	cfg := LoadFromEnv()

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080 for invalid value, got %d", cfg.Server.Port)
	}
}

func TestLoadFromEnv_DefaultsWhenNotSet(t *testing.T) {
	envVars := []string{
		"VECTOR_HOST", "VECTOR_PORT", "VECTOR_CLUSTER_SPHERICAL",
		"VECTOR_DBSCAN_MAX_DISTANCE", "VECTOR_CACHE_ENABLED", "VECTOR_DATA_DIR",
	}
	originalEnv := make(map[string]string)
	for _, key := range envVars {
		originalEnv[key] = os.Getenv(key)
		os.Unsetenv(key)
	}
	defer func() {
		for key, value := range originalEnv {
			if value != "" {
				os.Setenv(key, value)
			}
		}
	}()

	cfg := LoadFromEnv()
	defaults := Default()

	if cfg.Server.Host != defaults.Server.Host {
		t.Errorf("Expected default host, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != defaults.Server.Port {
		t.Errorf("Expected default port, got %d", cfg.Server.Port)
	}
	if cfg.Cluster.Spherical != defaults.Cluster.Spherical {
		t.Errorf("Expected default spherical, got %v", cfg.Cluster.Spherical)
	}
	if cfg.DBSCAN.MaxDistance != defaults.DBSCAN.MaxDistance {
		t.Errorf("Expected default dbscan max distance, got %v", cfg.DBSCAN.MaxDistance)
	}
	if cfg.Cache.Enabled != defaults.Cache.Enabled {
		t.Errorf("Expected default cache enabled, got %v", cfg.Cache.Enabled)
	}
	if cfg.Database.DataDir != defaults.Database.DataDir {
		t.Errorf("Expected default data dir, got %s", cfg.Database.DataDir)
	}
}

func TestValidate(t *testing.T) {
	validBase := func() *Config {
		c := Default()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid default config", mutate: func(c *Config) {}, wantErr: false},
		{name: "invalid port (too low)", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "invalid port (too high)", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "invalid num_runs", mutate: func(c *Config) { c.Cluster.NumRuns = 0 }, wantErr: true},
		{name: "invalid sampling ratio", mutate: func(c *Config) { c.Cluster.SamplingRatio = 2 }, wantErr: true},
		{name: "empty index thresholds", mutate: func(c *Config) { c.Index.Thresholds = nil }, wantErr: true},
		{name: "negative index threshold", mutate: func(c *Config) { c.Index.Thresholds = []float32{-0.1} }, wantErr: true},
		{name: "negative dbscan max distance", mutate: func(c *Config) { c.DBSCAN.MaxDistance = -1 }, wantErr: true},
		{name: "invalid dbscan min_num_samples", mutate: func(c *Config) { c.DBSCAN.MinNumSamples = 0 }, wantErr: true},
		{name: "invalid dbscan distance method", mutate: func(c *Config) { c.DBSCAN.DistanceMethod = "manhattan" }, wantErr: true},
		{name: "no data dir", mutate: func(c *Config) { c.Database.DataDir = "" }, wantErr: true},
		{name: "invalid rest port", mutate: func(c *Config) { c.REST.Port = 70000 }, wantErr: true},
		{name: "rest auth enabled without secret", mutate: func(c *Config) { c.REST.AuthEnabled = true }, wantErr: true},
		{name: "invalid rest rate limit per sec", mutate: func(c *Config) { c.REST.RateLimitPerSec = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestServerConfig_Address(t *testing.T) {
	cfg := ServerConfig{
		Host: "localhost",
		Port: 8080,
	}

	addr := cfg.Address()
	expected := "localhost:8080"

	if addr != expected {
		t.Errorf("Expected address %s, got %s", expected, addr)
	}

	defaultCfg := Default()
	addr = defaultCfg.Server.Address()
	expected = "0.0.0.0:8080"

	if addr != expected {
		t.Errorf("Expected default address %s, got %s", expected, addr)
	}
}
