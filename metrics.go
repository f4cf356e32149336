package terrain

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tileFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrain_tile_fetches_total",
		Help: "The total number of tile fetches attempted",
	})
	tileFetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrain_tile_fetch_failures_total",
		Help: "The total number of tile fetches that did not produce local data",
	})
	tileDecodes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrain_tile_decodes_total",
		Help: "The total number of tiles decoded on first access",
	})
	emptyTiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrain_empty_tiles_total",
		Help: "The total number of tiles resolved as having no data",
	})
	outOfBoundsQueries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "terrain_out_of_bounds_queries_total",
		Help: "The total number of queries outside of a store's bounds",
	})
)
