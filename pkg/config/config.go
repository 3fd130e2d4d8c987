package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all server configuration.
type Config struct {
	Server   ServerConfig
	REST     RESTConfig
	Cluster  ClusterConfig
	Index    IndexConfig
	DBSCAN   DBSCANConfig
	Cache    CacheConfig
	Database DatabaseConfig
}

// RESTConfig holds the REST-specific listener, CORS, auth, and rate-limit
// settings layered on top of ServerConfig's host/port/timeouts.
type RESTConfig struct {
	Host        string
	Port        int
	CORSEnabled bool
	CORSOrigins []string

	AuthEnabled bool
	JWTSecret   string
	PublicPaths []string
	AdminPaths  []string

	RateLimitEnabled bool
	RateLimitPerSec  float64
	RateLimitBurst   int
	RateLimitPerIP   bool
	RateLimitPerUser bool
	RateLimitGlobal  bool
}

// ServerConfig holds REST API server configuration.
type ServerConfig struct {
	Host            string        // Server host (default: "0.0.0.0")
	Port            int           // Server port (default: 8080)
	MaxConnections  int           // Max concurrent connections
	RequestTimeout  time.Duration // Request timeout
	ShutdownTimeout time.Duration // Graceful shutdown timeout
	EnableTLS       bool          // Enable TLS
	CertFile        string        // TLS certificate file
	KeyFile         string        // TLS key file
}

// ClusterConfig holds the default pkg/kmeans.Config values the API uses
// when a request doesn't override them.
type ClusterConfig struct {
	PlusPlusInit               bool    // k-means++ seeding (default: true)
	Spherical                  bool    // spherical (cosine) geometry (default: false)
	ClustersChangedMap         bool    // restrict reassignment to changed clusters (default: true)
	IndexedMeans               bool    // use pkg/ubindex for large-k spherical reassignment
	SamplingRatio              float64 // fraction of data assigned per iteration
	MaxChangesForDifferential  int     // ceiling on differential centroid updates
	ConvergenceTolerance       float64 // centroid-movement convergence threshold
	MinClustersForIndexedMeans int     // k threshold to engage IndexedMeans
	NumRuns                    int     // independent restarts, keep lowest distortion
}

// IndexConfig holds default pkg/ubindex.DotProductIndex construction
// parameters.
type IndexConfig struct {
	Thresholds []float32 // layer λ thresholds (must be non-negative)
}

// DBSCANConfig holds default pkg/dbscan.Config values.
type DBSCANConfig struct {
	MaxDistance    float32 // neighborhood radius
	MinNumSamples  int     // minimum neighborhood size for a core point
	DistanceMethod string  // "euclidean" or "cosine"
}

// CacheConfig holds query cache configuration.
type CacheConfig struct {
	Enabled  bool          // Enable query caching
	Capacity int           // Max cache entries
	TTL      time.Duration // Time to live for cache entries
}

// DatabaseConfig holds storage configuration for persisted vector sets.
type DatabaseConfig struct {
	DataDir       string // Data directory path for binary/JSON vector files
	MaxNamespaces int    // Max number of tenant namespaces
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			MaxConnections:  1000,
			RequestTimeout:  30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			EnableTLS:       false,
		},
		REST: RESTConfig{
			Host:             "0.0.0.0",
			Port:             8080,
			CORSEnabled:      true,
			CORSOrigins:      []string{"*"},
			AuthEnabled:      false,
			PublicPaths:      []string{"/v1/health"},
			RateLimitEnabled: true,
			RateLimitPerSec:  100,
			RateLimitBurst:   200,
			RateLimitPerIP:   true,
		},
		Cluster: ClusterConfig{
			PlusPlusInit:               true,
			Spherical:                  false,
			ClustersChangedMap:         true,
			IndexedMeans:               true,
			SamplingRatio:              1.0,
			MaxChangesForDifferential:  1000,
			ConvergenceTolerance:       1e-4,
			MinClustersForIndexedMeans: 120,
			NumRuns:                    1,
		},
		Index: IndexConfig{
			Thresholds: []float32{0, 0.1, 0.3, 0.5, 0.7},
		},
		DBSCAN: DBSCANConfig{
			MaxDistance:    0.5,
			MinNumSamples:  5,
			DistanceMethod: "euclidean",
		},
		Cache: CacheConfig{
			Enabled:  true,
			Capacity: 1000,
			TTL:      5 * time.Minute,
		},
		Database: DatabaseConfig{
			DataDir:       "./data",
			MaxNamespaces: 100,
		},
	}
}

// LoadFromEnv loads configuration from environment variables, following
// the VECTOR_* naming convention.
func LoadFromEnv() *Config {
	cfg := Default()

	// Server configuration
	if host := os.Getenv("VECTOR_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("VECTOR_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}
	if maxConn := os.Getenv("VECTOR_MAX_CONNECTIONS"); maxConn != "" {
		if mc, err := strconv.Atoi(maxConn); err == nil {
			cfg.Server.MaxConnections = mc
		}
	}
	if timeout := os.Getenv("VECTOR_REQUEST_TIMEOUT"); timeout != "" {
		if t, err := time.ParseDuration(timeout); err == nil {
			cfg.Server.RequestTimeout = t
		}
	}
	if enableTLS := os.Getenv("VECTOR_ENABLE_TLS"); enableTLS == "true" {
		cfg.Server.EnableTLS = true
		cfg.Server.CertFile = os.Getenv("VECTOR_TLS_CERT")
		cfg.Server.KeyFile = os.Getenv("VECTOR_TLS_KEY")
	}

	// REST configuration
	if host := os.Getenv("VECTOR_REST_HOST"); host != "" {
		cfg.REST.Host = host
	}
	if port := os.Getenv("VECTOR_REST_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.REST.Port = p
		}
	}
	if v := os.Getenv("VECTOR_REST_CORS_ENABLED"); v == "false" {
		cfg.REST.CORSEnabled = false
	}
	if v := os.Getenv("VECTOR_REST_AUTH_ENABLED"); v == "true" {
		cfg.REST.AuthEnabled = true
	}
	if v := os.Getenv("VECTOR_REST_JWT_SECRET"); v != "" {
		cfg.REST.JWTSecret = v
	}
	if v := os.Getenv("VECTOR_REST_RATE_LIMIT_PER_SEC"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.REST.RateLimitPerSec = f
		}
	}
	if v := os.Getenv("VECTOR_REST_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.REST.RateLimitBurst = n
		}
	}

	// Cluster configuration
	if v := os.Getenv("VECTOR_CLUSTER_SPHERICAL"); v == "true" {
		cfg.Cluster.Spherical = true
	}
	if v := os.Getenv("VECTOR_CLUSTER_PLUSPLUS_INIT"); v == "false" {
		cfg.Cluster.PlusPlusInit = false
	}
	if v := os.Getenv("VECTOR_CLUSTER_NUM_RUNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cluster.NumRuns = n
		}
	}
	if v := os.Getenv("VECTOR_CLUSTER_CONVERGENCE_TOLERANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Cluster.ConvergenceTolerance = f
		}
	}
	if v := os.Getenv("VECTOR_CLUSTER_MIN_FOR_INDEXED_MEANS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cluster.MinClustersForIndexedMeans = n
		}
	}

	// DBSCAN configuration
	if v := os.Getenv("VECTOR_DBSCAN_MAX_DISTANCE"); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			cfg.DBSCAN.MaxDistance = float32(f)
		}
	}
	if v := os.Getenv("VECTOR_DBSCAN_MIN_NUM_SAMPLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DBSCAN.MinNumSamples = n
		}
	}
	if v := os.Getenv("VECTOR_DBSCAN_DISTANCE_METHOD"); v != "" {
		cfg.DBSCAN.DistanceMethod = v
	}

	// Cache configuration
	if cacheEnabled := os.Getenv("VECTOR_CACHE_ENABLED"); cacheEnabled == "false" {
		cfg.Cache.Enabled = false
	}
	if capacity := os.Getenv("VECTOR_CACHE_CAPACITY"); capacity != "" {
		if c, err := strconv.Atoi(capacity); err == nil {
			cfg.Cache.Capacity = c
		}
	}
	if ttl := os.Getenv("VECTOR_CACHE_TTL"); ttl != "" {
		if t, err := time.ParseDuration(ttl); err == nil {
			cfg.Cache.TTL = t
		}
	}

	// Database configuration
	if dataDir := os.Getenv("VECTOR_DATA_DIR"); dataDir != "" {
		cfg.Database.DataDir = dataDir
	}
	if maxNS := os.Getenv("VECTOR_MAX_NAMESPACES"); maxNS != "" {
		if n, err := strconv.Atoi(maxNS); err == nil {
			cfg.Database.MaxNamespaces = n
		}
	}

	return cfg
}

// Validate checks if the configuration is valid, surfacing the same
// usage errors spec.md §6 describes for bad index thresholds at load
// time rather than waiting for the first query. It checks ports, auth,
// rate limits, cluster runs/sampling/tolerance, index thresholds,
// DBSCAN parameters, cache capacity and the data directory; k is not
// part of the configuration and is not checked here.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.MaxConnections < 1 {
		return fmt.Errorf("invalid max connections: %d (must be > 0)", c.Server.MaxConnections)
	}
	if c.Server.EnableTLS {
		if c.Server.CertFile == "" || c.Server.KeyFile == "" {
			return fmt.Errorf("TLS enabled but cert or key file not specified")
		}
	}

	// REST validation
	if c.REST.Port < 1 || c.REST.Port > 65535 {
		return fmt.Errorf("invalid rest port: %d (must be 1-65535)", c.REST.Port)
	}
	if c.REST.AuthEnabled && c.REST.JWTSecret == "" {
		return fmt.Errorf("rest auth enabled but no jwt secret specified")
	}
	if c.REST.RateLimitEnabled && c.REST.RateLimitPerSec <= 0 {
		return fmt.Errorf("invalid rest rate_limit_per_sec: %v (must be > 0)", c.REST.RateLimitPerSec)
	}

	// Cluster validation
	if c.Cluster.NumRuns < 1 {
		return fmt.Errorf("invalid cluster num_runs: %d (must be >= 1)", c.Cluster.NumRuns)
	}
	if c.Cluster.SamplingRatio <= 0 || c.Cluster.SamplingRatio > 1 {
		return fmt.Errorf("invalid cluster sampling_ratio: %v (must be in (0,1])", c.Cluster.SamplingRatio)
	}
	if c.Cluster.ConvergenceTolerance < 0 {
		return fmt.Errorf("invalid cluster convergence_tolerance: %v (must be >= 0)", c.Cluster.ConvergenceTolerance)
	}

	// Index validation
	if len(c.Index.Thresholds) == 0 {
		return fmt.Errorf("index thresholds must not be empty")
	}
	for _, th := range c.Index.Thresholds {
		if th < 0 {
			return fmt.Errorf("negative index threshold unsupported: %v", th)
		}
	}

	// DBSCAN validation
	if c.DBSCAN.MaxDistance < 0 {
		return fmt.Errorf("negative dbscan max_distance unsupported: %v", c.DBSCAN.MaxDistance)
	}
	if c.DBSCAN.MinNumSamples < 1 {
		return fmt.Errorf("invalid dbscan min_num_samples: %d (must be >= 1)", c.DBSCAN.MinNumSamples)
	}
	if c.DBSCAN.DistanceMethod != "euclidean" && c.DBSCAN.DistanceMethod != "cosine" {
		return fmt.Errorf("invalid dbscan distance_method: %q (must be \"euclidean\" or \"cosine\")", c.DBSCAN.DistanceMethod)
	}

	// Cache validation
	if c.Cache.Enabled && c.Cache.Capacity < 1 {
		return fmt.Errorf("invalid cache capacity: %d (must be > 0)", c.Cache.Capacity)
	}

	// Database validation
	if c.Database.DataDir == "" {
		return fmt.Errorf("data directory not specified")
	}

	return nil
}

// Address returns the server address (host:port).
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
