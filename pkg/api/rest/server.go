package rest

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-kmeans/kmvector/pkg/api/rest/middleware"
	"github.com/go-kmeans/kmvector/pkg/config"
	"github.com/go-kmeans/kmvector/pkg/observability"
)

// Config holds the REST server configuration.
type Config struct {
	Host        string
	Port        int
	CORSEnabled bool
	CORSOrigins []string
	Auth        middleware.AuthConfig
	RateLimit   middleware.RateLimitConfig
}

// Server serves the clustering API: every route calls into pkg/kmeans,
// pkg/ubindex, or pkg/dbscan directly against an in-process Store, with no
// network hop to a separate backend.
type Server struct {
	config     Config
	handler    *Handler
	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a REST API server over cfg's cluster/index/dbscan
// defaults, recording metrics to m.
func NewServer(restConfig Config, cfg *config.Config, m *observability.Metrics) *Server {
	store := NewStore(cfg)
	handler := NewHandler(store, m)

	server := &Server{
		config:  restConfig,
		handler: handler,
		mux:     http.NewServeMux(),
	}
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", restConfig.Host, restConfig.Port),
		Handler:      server.withMiddleware(server.mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/v1/health", s.handler.HealthCheck)
	s.mux.HandleFunc("/v1/stats", s.handler.GetStats)
	s.mux.HandleFunc("/v1/namespaces/", s.routeNamespace)
}

// routeNamespace dispatches /v1/namespaces/{namespace}/{action} to the
// matching Handler method.
func (s *Server) routeNamespace(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/namespaces/")
	parts := strings.SplitN(path, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, "expected /v1/namespaces/{namespace}/{action}", http.StatusBadRequest)
		return
	}
	namespace, action := parts[0], parts[1]

	switch action {
	case "vectors":
		s.handler.SetVectors(w, r, namespace)
	case "cluster":
		s.handler.Cluster(w, r, namespace)
	case "assign":
		s.handler.Assign(w, r, namespace)
	case "centroids":
		s.handler.GetCentroids(w, r, namespace)
	case "index":
		s.handler.BuildIndex(w, r, namespace)
	case "nearby":
		s.handler.Nearby(w, r, namespace)
	case "knearest":
		s.handler.KNearest(w, r, namespace)
	case "dbscan":
		s.handler.DBSCAN(w, r, namespace)
	default:
		http.NotFound(w, r)
	}
}

// withMiddleware wraps handler with the server's middleware chain: auth
// (outermost), then rate limiting, then CORS, then logging (innermost).
func (s *Server) withMiddleware(handler http.Handler) http.Handler {
	handler = loggingMiddleware(handler)

	if s.config.CORSEnabled {
		handler = corsMiddleware(s.config.CORSOrigins)(handler)
	}

	rateLimiter := middleware.NewRateLimiter(s.config.RateLimit)
	handler = middleware.RateLimitMiddleware(rateLimiter)(handler)

	handler = middleware.AuthMiddleware(s.config.Auth)(handler)

	return handler
}

// Handler returns the server's full middleware-wrapped http.Handler,
// for embedding in an httptest.Server or a larger mux.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the REST API server.
func (s *Server) Start() error {
	log.Printf("Starting REST API server on %s:%d", s.config.Host, s.config.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	log.Println("Shutting down REST API server...")
	return s.httpServer.Shutdown(ctx)
}

// loggingMiddleware logs all HTTP requests.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		log.Printf("%s %s %d %v", r.Method, r.URL.Path, wrapped.statusCode, duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// corsMiddleware adds CORS headers.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
				allowed = true
				origin = "*"
			} else {
				for _, allowedOrigin := range allowedOrigins {
					if allowedOrigin == origin {
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "3600")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
