package profile

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/tkrajina/gpxgo/gpx"
)

var errNoPoints = errors.New("no track or route points")

// CoordsFromGPX returns the coordinates of the track points of g, or of its
// route points if it has no tracks. Elevations present in g are kept.
func CoordsFromGPX(g *gpx.GPX) ([]Coord, error) {
	var coords []Coord
	appendPoint := func(p *gpx.GPXPoint) {
		coord := Coord{
			Lat: p.Point.Latitude,
			Lon: p.Point.Longitude,
		}
		if p.Elevation.NotNull() {
			coord.Elevation = int32(math.Round(p.Elevation.Value()))
			coord.HasElevation = true
		}
		coords = append(coords, coord)
	}

	for _, track := range g.Tracks {
		for _, segment := range track.Segments {
			for i := range segment.Points {
				appendPoint(&segment.Points[i])
			}
		}
	}

	if len(coords) == 0 {
		for _, route := range g.Routes {
			for i := range route.Points {
				appendPoint(&route.Points[i])
			}
		}
	}

	if len(coords) == 0 {
		return nil, errNoPoints
	}
	return coords, nil
}

// LoadGPX returns the coordinates in the GPX file at path.
func LoadGPX(path string) ([]Coord, error) {
	g, err := gpx.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return CoordsFromGPX(g)
}

// Bound returns the bounding box of coords.
func Bound(coords []Coord) orb.Bound {
	if len(coords) == 0 {
		return orb.Bound{}
	}
	point := orb.Point{coords[0].Lon, coords[0].Lat}
	bound := orb.Bound{Min: point, Max: point}
	for _, coord := range coords[1:] {
		bound = bound.Extend(orb.Point{coord.Lon, coord.Lat})
	}
	return bound
}
