package rest

import (
	"fmt"
	"sync"

	"github.com/go-kmeans/kmvector/pkg/cache"
	"github.com/go-kmeans/kmvector/pkg/config"
	"github.com/go-kmeans/kmvector/pkg/kmeans"
	"github.com/go-kmeans/kmvector/pkg/tenant"
	"github.com/go-kmeans/kmvector/pkg/ubindex"
	"github.com/go-kmeans/kmvector/pkg/vector"
)

// namespaceState holds one tenant's in-process clustering state: the
// vectors it last submitted, the outcome of its last Cluster call, and an
// optional DotProductIndex built over those vectors.
type namespaceState struct {
	mu sync.RWMutex

	vectors   []*vector.Vector
	centroids []*vector.Vector
	labels    []int

	index      *ubindex.DotProductIndex
	queryCache *cache.QueryCache
}

// Store is the in-process backing state for the REST API: one
// namespaceState per tenant namespace, gated by a tenant.Manager's quotas.
// There is no persistence layer in scope; a restart loses all state.
type Store struct {
	cfg     *config.Config
	tenants *tenant.Manager

	mu         sync.RWMutex
	namespaces map[string]*namespaceState
}

// NewStore creates an empty store using cfg for per-namespace defaults
// (cluster/index/dbscan config and query cache sizing).
func NewStore(cfg *config.Config) *Store {
	return &Store{
		cfg:        cfg,
		tenants:    tenant.NewManager(),
		namespaces: make(map[string]*namespaceState),
	}
}

// namespace returns (creating if necessary) the state for name, registering
// a default-quota tenant the first time it's seen.
func (s *Store) namespace(name string) *namespaceState {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[name]
	if ok {
		return ns
	}

	if len(s.namespaces) >= s.cfg.Database.MaxNamespaces {
		// Still return a usable, unregistered namespace rather than fail the
		// request outright; CreateTenant below is skipped, so no quota is
		// tracked or enforced for it and stats reports it like any other
		// namespace.
	} else if _, err := s.tenants.GetTenant(name); err != nil {
		s.tenants.CreateTenant(name, tenant.DefaultQuota())
	}

	capacity := s.cfg.Cache.Capacity
	if !s.cfg.Cache.Enabled {
		capacity = 0 // a zero-capacity LRU evicts each entry as soon as it is stored
	}
	ns = &namespaceState{
		queryCache: cache.NewQueryCache(capacity, s.cfg.Cache.TTL),
	}
	s.namespaces[name] = ns
	return ns
}

// setVectors replaces a namespace's stored vectors wholesale, enforcing the
// tenant's vector-count and dimension quotas first.
func (s *Store) setVectors(name string, vectors []*vector.Vector) error {
	ns := s.namespace(name) // registers the tenant on first use
	tn, err := s.tenants.GetTenant(name)
	if err == nil {
		if err := tn.CheckVectorQuota(int64(len(vectors))); err != nil {
			return err
		}
		for _, v := range vectors {
			if err := tn.CheckDimensionQuota(v.Dim()); err != nil {
				return err
			}
		}
	}

	ns.mu.Lock()
	previous := len(ns.vectors)
	ns.vectors = vectors
	ns.centroids = nil
	ns.labels = nil
	ns.index = nil
	ns.queryCache.Clear()
	ns.mu.Unlock()

	if err == nil {
		tn.DecrementVectorCount(int64(previous))
		tn.IncrementVectorCount(int64(len(vectors)))
	}
	return nil
}

// namespaceStats summarizes one namespace for the /v1/stats endpoint.
type namespaceStats struct {
	VectorCount  int  `json:"vector_count"`
	HasCentroids bool `json:"has_centroids"`
	HasIndex     bool `json:"has_index"`
}

func (s *Store) stats() map[string]namespaceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]namespaceStats, len(s.namespaces))
	for name, ns := range s.namespaces {
		ns.mu.RLock()
		out[name] = namespaceStats{
			VectorCount:  len(ns.vectors),
			HasCentroids: len(ns.centroids) > 0,
			HasIndex:     ns.index != nil,
		}
		ns.mu.RUnlock()
	}
	return out
}

// kmeansConfig builds a pkg/kmeans.Config from the store's cluster
// defaults, used by Assign for the one-shot GetClustering call (no
// iteration or seeding parameters apply there).
func (s *Store) kmeansConfig() kmeans.Config {
	cfg := s.cfg.Cluster
	return kmeans.Config{
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
}

func errNamespaceEmpty(name string) error {
	return fmt.Errorf("namespace %q has no vectors; POST /v1/namespaces/%s/vectors first", name, name)
}

func errNamespaceNoIndex(name string) error {
	return fmt.Errorf("namespace %q has no index; POST /v1/namespaces/%s/index first", name, name)
}
