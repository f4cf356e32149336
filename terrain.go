// Package terrain turns a sparse set of elevation raster tiles into a
// continuous, queryable elevation surface.
package terrain

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

const (
	// DefaultResolution is the number of samples per degree of SRTM 3
	// arc-second data.
	DefaultResolution = 1200
	// DefaultTileSpan is the number of degrees covered by a CGIAR SRTM tile.
	DefaultTileSpan = 5

	// boundsTolerance absorbs rounding from fixed-point coordinate encodings.
	boundsTolerance = 1e-6
)

// A Coord is a coordinate on a sample lattice.
type Coord struct {
	X int
	Y int
}

// A TileCoord identifies a tile by the longitude and latitude of its
// south-west corner, in whole degrees.
type TileCoord struct {
	Lon int
	Lat int
}

// TileCoordOf returns the coordinate of the tile spanning span degrees that
// contains lat, lon.
func TileCoordOf(lat, lon float64, span int) TileCoord {
	return TileCoord{
		Lon: int(math.Floor(lon/float64(span))) * span,
		Lat: int(math.Floor(lat/float64(span))) * span,
	}
}

func (c TileCoord) String() string {
	return fmt.Sprintf("%d,%d", c.Lat, c.Lon)
}

// A BoundingBox is a region in geographic degrees.
type BoundingBox struct {
	FromLat float64
	FromLon float64
	ToLat   float64
	ToLon   float64
}

// NewBoundingBox returns the bounding box with corners lat1, lon1 and lat2,
// lon2, in any order.
func NewBoundingBox(lat1, lon1, lat2, lon2 float64) BoundingBox {
	return BoundingBox{
		FromLat: min(lat1, lat2),
		FromLon: min(lon1, lon2),
		ToLat:   max(lat1, lat2),
		ToLon:   max(lon1, lon2),
	}
}

// BoundingBoxFromBound returns the bounding box of b.
func BoundingBoxFromBound(b orb.Bound) BoundingBox {
	return NewBoundingBox(b.Min.Lat(), b.Min.Lon(), b.Max.Lat(), b.Max.Lon())
}

// Bound returns b as an orb.Bound.
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.FromLon, b.FromLat},
		Max: orb.Point{b.ToLon, b.ToLat},
	}
}

// Contains returns whether lat, lon is inside b, edges included.
func (b BoundingBox) Contains(lat, lon float64) bool {
	return b.FromLat <= lat && lat <= b.ToLat && b.FromLon <= lon && lon <= b.ToLon
}

// Expand returns b grown by d degrees on every side.
func (b BoundingBox) Expand(d float64) BoundingBox {
	return BoundingBox{
		FromLat: b.FromLat - d,
		FromLon: b.FromLon - d,
		ToLat:   b.ToLat + d,
		ToLon:   b.ToLon + d,
	}
}
