package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-kmeans/kmvector/pkg/api/rest"
	"github.com/go-kmeans/kmvector/pkg/api/rest/middleware"
	"github.com/go-kmeans/kmvector/pkg/config"
	"github.com/go-kmeans/kmvector/pkg/observability"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version and exit")
		showHelp    = flag.Bool("help", false, "show help and exit")
		configFile  = flag.String("config", "", "path to configuration file (accepted but ignored; configuration is read from environment variables)")
		host        = flag.String("host", "", "server host (overrides config/env)")
		port        = flag.Int("port", 0, "server port (overrides config/env)")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("kmvector server v%s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	if *showHelp {
		showUsage()
		os.Exit(0)
	}

	printBanner()

	cfg := loadConfig(*configFile)

	if *host != "" {
		cfg.REST.Host = *host
	}
	if *port > 0 {
		cfg.REST.Port = *port
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	log.Println("Initializing kmvector server...")
	metrics := observability.NewMetrics()

	restConfig := rest.Config{
		Host:        cfg.REST.Host,
		Port:        cfg.REST.Port,
		CORSEnabled: cfg.REST.CORSEnabled,
		CORSOrigins: cfg.REST.CORSOrigins,
		Auth: middleware.AuthConfig{
			Enabled:     cfg.REST.AuthEnabled,
			JWTSecret:   cfg.REST.JWTSecret,
			PublicPaths: cfg.REST.PublicPaths,
			AdminPaths:  cfg.REST.AdminPaths,
		},
		RateLimit: middleware.RateLimitConfig{
			Enabled:        cfg.REST.RateLimitEnabled,
			RequestsPerSec: cfg.REST.RateLimitPerSec,
			Burst:          cfg.REST.RateLimitBurst,
			PerIP:          cfg.REST.RateLimitPerIP,
			PerUser:        cfg.REST.RateLimitPerUser,
			GlobalLimit:    cfg.REST.RateLimitGlobal,
		},
	}
	server := rest.NewServer(restConfig, cfg, metrics)

	printStartupInfo(cfg)

	errChan := make(chan error, 1)
	go func() {
		log.Println("Starting REST API server...")
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("REST server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	log.Println("Server is ready. Press Ctrl+C to stop.")
	select {
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	case err := <-errChan:
		log.Printf("Server error: %v", err)
	}

	log.Println("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		log.Printf("Error stopping REST server: %v", err)
	}

	log.Println("Server stopped. Goodbye!")
}

func loadConfig(configFile string) *config.Config {
	// TODO: support loading from YAML/JSON config file
	if configFile != "" {
		log.Printf("Warning: config file support not yet implemented, using environment variables")
	}
	return config.LoadFromEnv()
}

func printBanner() {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║   _                                  _                    ║
║  | | ___ __ ___   _____  ___ | |_ ___  _ __             ║
║  | |/ / '_ ' _ \ / _ \ \/ / __|| __/ _ \| '__|            ║
║  |   <| | | | | |  __/>  < (__ | || (_) | |               ║
║  |_|\_\_| |_| |_|\___/_/\_\___| \__\___/|_|               ║
║                                                           ║
║   Spherical k-Means & DBSCAN clustering over dense and    ║
║   sparse vectors, with a layered upper-bound dot product  ║
║   index for fast nearest-neighbor lookups.                ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Println(banner)
	fmt.Printf("Version: %s (commit: %s)\n\n", version, commit)
}

func printStartupInfo(cfg *config.Config) {
	fmt.Println("\n╔════════════════════════════════════════════════════════╗")
	fmt.Println("║            REST API Configuration                      ║")
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Printf("║ Address:          %-35s ║\n", fmt.Sprintf("%s:%d", cfg.REST.Host, cfg.REST.Port))
	fmt.Printf("║ Auth Enabled:     %-35v ║\n", cfg.REST.AuthEnabled)
	fmt.Printf("║ CORS Enabled:     %-35v ║\n", cfg.REST.CORSEnabled)
	fmt.Printf("║ Rate Limiting:    %-35v ║\n", cfg.REST.RateLimitEnabled)
	if cfg.REST.RateLimitEnabled {
		fmt.Printf("║ Rate:             %-35s ║\n", fmt.Sprintf("%.1f req/s (burst: %d)", cfg.REST.RateLimitPerSec, cfg.REST.RateLimitBurst))
	}
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Println("║            Clustering Configuration                    ║")
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Printf("║ Spherical:        %-35v ║\n", cfg.Cluster.Spherical)
	fmt.Printf("║ PlusPlusInit:     %-35v ║\n", cfg.Cluster.PlusPlusInit)
	fmt.Printf("║ NumRuns:          %-35d ║\n", cfg.Cluster.NumRuns)
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Println("║            Index Configuration                         ║")
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Printf("║ Thresholds:       %-35v ║\n", cfg.Index.Thresholds)
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Println("║            DBSCAN Configuration                        ║")
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Printf("║ MaxDistance:      %-35v ║\n", cfg.DBSCAN.MaxDistance)
	fmt.Printf("║ MinNumSamples:    %-35d ║\n", cfg.DBSCAN.MinNumSamples)
	fmt.Printf("║ DistanceMethod:   %-35s ║\n", cfg.DBSCAN.DistanceMethod)
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Println("║            Cache Configuration                         ║")
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Printf("║ Enabled:          %-35v ║\n", cfg.Cache.Enabled)
	fmt.Printf("║ Capacity:         %-35d ║\n", cfg.Cache.Capacity)
	fmt.Printf("║ TTL:              %-35s ║\n", cfg.Cache.TTL)
	fmt.Println("╚════════════════════════════════════════════════════════╝")
	fmt.Println()
}

func showUsage() {
	fmt.Println("kmvector server - REST API over spherical k-means, DBSCAN, and the upper-bound dot product index")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  kmvector-server [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -help             Show this help message")
	fmt.Println("  -version          Show version information")
	fmt.Println("  -config PATH      Configuration file (accepted but ignored; see Environment Variables)")
	fmt.Println("  -host HOST        REST host (default: 0.0.0.0)")
	fmt.Println("  -port PORT        REST port (default: 8080)")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  VECTOR_REST_HOST                  REST host")
	fmt.Println("  VECTOR_REST_PORT                  REST port")
	fmt.Println("  VECTOR_REST_CORS_ENABLED          Enable CORS (true/false)")
	fmt.Println("  VECTOR_REST_AUTH_ENABLED          Require JWT bearer auth (true/false)")
	fmt.Println("  VECTOR_REST_JWT_SECRET            JWT signing secret")
	fmt.Println("  VECTOR_REST_RATE_LIMIT_PER_SEC     Requests per second per client")
	fmt.Println("  VECTOR_REST_RATE_LIMIT_BURST       Burst size for rate limiting")
	fmt.Println("  VECTOR_CLUSTER_SPHERICAL           Use cosine-based spherical k-means (true/false)")
	fmt.Println("  VECTOR_CLUSTER_PLUSPLUS_INIT       Use k-means++ seeding (true/false)")
	fmt.Println("  VECTOR_CLUSTER_NUM_RUNS            Independent clustering runs per request")
	fmt.Println("  VECTOR_DBSCAN_MAX_DISTANCE         DBSCAN neighborhood radius")
	fmt.Println("  VECTOR_DBSCAN_MIN_NUM_SAMPLES      DBSCAN minimum neighbors to form a cluster")
	fmt.Println("  VECTOR_DBSCAN_DISTANCE_METHOD      DBSCAN distance metric (euclidean/cosine)")
	fmt.Println("  VECTOR_CACHE_ENABLED               Enable query result cache (true/false)")
	fmt.Println("  VECTOR_CACHE_CAPACITY              Cache capacity")
	fmt.Println("  VECTOR_CACHE_TTL                   Cache TTL (e.g., 5m)")
	fmt.Println("  VECTOR_DATA_DIR                    Data directory path")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # Start with default configuration")
	fmt.Println("  kmvector-server")
	fmt.Println()
	fmt.Println("  # Start on custom port")
	fmt.Println("  kmvector-server -port 9090")
	fmt.Println()
	fmt.Println("  # Start with environment variables")
	fmt.Println("  VECTOR_REST_PORT=9090 VECTOR_CLUSTER_SPHERICAL=true kmvector-server")
	fmt.Println()
}
