package profile

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	resolverCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrain_profile_resolver_cache_hits_total",
		Help: "The total number of hits on the resolver cache",
	})
	resolverCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrain_profile_resolver_cache_misses_total",
		Help: "The total number of misses on the resolver cache",
	})
)

// A CachedResolver is a Resolver that remembers the most recently resolved
// elevations. It is safe for concurrent use if its underlying Resolver is.
type CachedResolver struct {
	resolver Resolver
	cache    *lru.Cache[[2]float64, int32]
}

// NewCachedResolver returns a new CachedResolver that remembers up to size
// elevations resolved by resolver.
func NewCachedResolver(resolver Resolver, size int) (*CachedResolver, error) {
	cache, err := lru.New[[2]float64, int32](size)
	if err != nil {
		return nil, err
	}
	return &CachedResolver{
		resolver: resolver,
		cache:    cache,
	}, nil
}

// Elevation implements Resolver.Elevation.
func (r *CachedResolver) Elevation(lat, lon float64) int32 {
	key := [2]float64{lat, lon}
	if elevation, ok := r.cache.Get(key); ok {
		resolverCacheHits.Inc()
		return elevation
	}
	resolverCacheMisses.Inc()
	elevation := r.resolver.Elevation(lat, lon)
	r.cache.Add(key, elevation)
	return elevation
}
