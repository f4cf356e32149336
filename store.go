package terrain

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// A Status qualifies the result of an elevation lookup.
type Status int

const (
	StatusOK Status = iota
	StatusOutOfBounds
	StatusNoCoverage
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusOutOfBounds:
		return "out of bounds"
	case StatusNoCoverage:
		return "no coverage"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// A Result is an elevation together with its status. Elevation is 0 when
// Status is StatusOutOfBounds. Status is StatusNoCoverage when a sample that
// contributes to Elevation is missing, either because its tile is empty or
// because it is void, and the missing sample counts as 0.
type Result struct {
	Elevation int32
	Status    Status
}

// A Store is an elevation surface over a bounding box, backed by a fixed set
// of tiles that are decoded on first access.
//
// Queries may be made concurrently once Open has returned. Open must not be
// called concurrently with anything else.
type Store struct {
	bounds     BoundingBox
	resolution int
	tileSpan   int
	source     TileSource
	logger     zerolog.Logger
	lonBase    int
	latBase    int
	xBase      int
	yBase      int
	xSize      int
	ySize      int
	tiles      map[TileCoord]*Tile
}

// A StoreOption sets an option on a Store.
type StoreOption func(*Store)

// NewStore returns a new Store covering bounds, reading tiles from source.
func NewStore(bounds BoundingBox, source TileSource, options ...StoreOption) (*Store, error) {
	s := &Store{
		bounds:     bounds,
		resolution: DefaultResolution,
		tileSpan:   DefaultTileSpan,
		source:     source,
		logger:     log.Logger,
	}
	for _, option := range options {
		option(s)
	}

	switch {
	case s.source == nil:
		return nil, errors.New("nil tile source")
	case s.resolution <= 0:
		return nil, fmt.Errorf("%d: invalid resolution", s.resolution)
	case s.tileSpan <= 0:
		return nil, fmt.Errorf("%d: invalid tile span", s.tileSpan)
	case bounds.FromLat > bounds.ToLat || bounds.FromLon > bounds.ToLon:
		return nil, errors.New("inverted bounding box")
	}

	expanded := bounds.Expand(boundsTolerance)
	origin := TileCoordOf(expanded.FromLat, expanded.FromLon, s.tileSpan)
	s.lonBase = origin.Lon
	s.latBase = origin.Lat
	resolution := float64(s.resolution)
	s.xBase = int((expanded.FromLon - float64(s.lonBase)) * resolution)
	s.yBase = int((expanded.FromLat - float64(s.latBase)) * resolution)
	s.xSize = int((expanded.ToLon-expanded.FromLon)*resolution) + 1
	s.ySize = int((expanded.ToLat-expanded.FromLat)*resolution) + 1
	return s, nil
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithResolution sets the number of samples per degree.
func WithResolution(resolution int) StoreOption {
	return func(s *Store) {
		s.resolution = resolution
	}
}

// WithTileSpan sets the number of degrees covered by each tile.
func WithTileSpan(tileSpan int) StoreOption {
	return func(s *Store) {
		s.tileSpan = tileSpan
	}
}

// Open registers every tile covering s's bounds, fetching those that are not
// present locally. Fetch failures leave the tile empty and are only logged.
// Samples are not decoded until they are first queried.
func (s *Store) Open(ctx context.Context) error {
	if s.tiles != nil {
		return nil
	}

	side := s.tileSide()
	txMax := (s.xBase + s.xSize) / side
	tyMax := (s.yBase + s.ySize) / side
	tiles := make(map[TileCoord]*Tile, (txMax+1)*(tyMax+1))
	for tx := 0; tx <= txMax; tx++ {
		for ty := 0; ty <= tyMax; ty++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			tileCoord := TileCoord{
				Lon: s.lonBase + tx*s.tileSpan,
				Lat: s.latBase + ty*s.tileSpan,
			}
			tile := newTile(tileCoord, side, s.source)
			if !tile.Present() {
				tileFetches.Inc()
				switch err := tile.Fetch(ctx); {
				case errors.Is(err, ErrNoData):
					s.logger.Debug().
						Stringer("tile", tileCoord).
						Msg("no tile data")
				case err != nil:
					tileFetchFailures.Inc()
					s.logger.Warn().
						Stringer("tile", tileCoord).
						Err(err).
						Msg("tile fetch failed")
				}
			}
			tiles[tileCoord] = tile
		}
	}
	s.tiles = tiles

	s.logger.Debug().
		Int("tiles", len(tiles)).
		Int("lonBase", s.lonBase).
		Int("latBase", s.latBase).
		Msg("store opened")
	return nil
}

// Bounds returns the bounding box s was created with.
func (s *Store) Bounds() BoundingBox {
	return s.bounds
}

// Tile returns the tile at tileCoord, if s covers it.
func (s *Store) Tile(tileCoord TileCoord) (*Tile, bool) {
	tile, ok := s.tiles[tileCoord]
	return tile, ok
}

// Tiles returns the number of tiles registered by Open.
func (s *Store) Tiles() int {
	return len(s.tiles)
}

// Elevation returns the interpolated elevation at lat, lon in meters. Points
// outside of s's bounds are logged and return 0. Missing data contributes 0.
func (s *Store) Elevation(lat, lon float64) int32 {
	return s.Lookup(lat, lon).Elevation
}

// Lookup returns the interpolated elevation at lat, lon together with its
// status.
func (s *Store) Lookup(lat, lon float64) Result {
	if !s.bounds.Contains(lat, lon) {
		outOfBoundsQueries.Inc()
		s.logger.Warn().
			Float64("lat", lat).
			Float64("lon", lon).
			Msg("point outside of bounds")
		return Result{Status: StatusOutOfBounds}
	}

	resolution := float64(s.resolution)
	x := (lon - float64(s.lonBase)) * resolution
	y := (lat - float64(s.latBase)) * resolution
	elevation, ok := InterpolateBilinear(s, x, y)
	result := Result{
		Elevation: int32(elevation),
	}
	if !ok {
		result.Status = StatusNoCoverage
	}
	return result
}

// Sample returns the raw sample at coord, a lattice coordinate relative to
// the south-west corner of s's origin tile. It decodes the owning tile on
// first access.
func (s *Store) Sample(coord Coord) (float64, bool) {
	if coord.X < 0 || coord.Y < 0 {
		return 0, false
	}
	side := s.tileSide()
	tileCoord := TileCoord{
		Lon: s.lonBase + coord.X/side*s.tileSpan,
		Lat: s.latBase + coord.Y/side*s.tileSpan,
	}
	tile, ok := s.tiles[tileCoord]
	if !ok {
		return 0, false
	}
	if err := tile.Decode(); err != nil {
		s.logger.Debug().
			Stringer("tile", tileCoord).
			Err(err).
			Msg("tile decode failed")
	}
	sample, ok := tile.sample(coord.X%side, coord.Y%side)
	return float64(sample), ok
}

func (s *Store) tileSide() int {
	return s.resolution * s.tileSpan
}
