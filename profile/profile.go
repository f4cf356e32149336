// Package profile computes elevation profiles of paths.
package profile

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// minDistance is the minimum distance in meters below which average inclines
// are left at zero.
const minDistance = 20

var (
	ErrNotInitialized = errors.New("profile not initialized")
	ErrNotAnalyzed    = errors.New("profile not analyzed")

	errInvalidStep = errors.New("step must be positive")
)

// A Resolver returns the elevation of a point. *terrain.Store implements
// Resolver.
type Resolver interface {
	Elevation(lat, lon float64) int32
}

// A ResolverFunc is a func that implements Resolver.
type ResolverFunc func(lat, lon float64) int32

func (f ResolverFunc) Elevation(lat, lon float64) int32 {
	return f(lat, lon)
}

// A Coord is an input coordinate, optionally with a known elevation.
type Coord struct {
	Lat          float64
	Lon          float64
	Elevation    int32
	HasElevation bool
}

// A Point is a vertex of a profile. Distance is the distance from the previous
// point in meters and Angle is the turn angle at the point in degrees.
type Point struct {
	Lat       float64 `json:"lat" yaml:"lat"`
	Lon       float64 `json:"lon" yaml:"lon"`
	Elevation int32   `json:"elevation" yaml:"elevation"`
	Distance  int     `json:"distance" yaml:"distance"`
	Angle     int     `json:"angle" yaml:"angle"`
}

// Stats are the aggregate statistics of an analyzed profile. Elevations and
// distances are in meters, inclines are percentages, and angles are degrees.
type Stats struct {
	Ascend                    int `json:"ascend" yaml:"ascend"`
	Descend                   int `json:"descend" yaml:"descend"`
	TotalDistance             int `json:"totalDistance" yaml:"totalDistance"`
	LevelDistance             int `json:"levelDistance" yaml:"levelDistance"`
	AscendDistance            int `json:"ascendDistance" yaml:"ascendDistance"`
	DescendDistance           int `json:"descendDistance" yaml:"descendDistance"`
	TotalIncline              int `json:"totalIncline" yaml:"totalIncline"`
	AverageIncline            int `json:"averageIncline" yaml:"averageIncline"`
	AverageDecline            int `json:"averageDecline" yaml:"averageDecline"`
	ContinuousAscend          int `json:"continuousAscend" yaml:"continuousAscend"`
	ContinuousAscendDistance  int `json:"continuousAscendDistance" yaml:"continuousAscendDistance"`
	ContinuousDescend         int `json:"continuousDescend" yaml:"continuousDescend"`
	ContinuousDescendDistance int `json:"continuousDescendDistance" yaml:"continuousDescendDistance"`
	MaxAngle                  int `json:"maxAngle" yaml:"maxAngle"`
	MaxIncline                int `json:"maxIncline" yaml:"maxIncline"`
	MaxDecline                int `json:"maxDecline" yaml:"maxDecline"`
}

type state int

const (
	stateEmpty state = iota
	stateInitialized
	stateResampled
	stateAnalyzed
)

// A Profiler computes the elevation profile of a path. A Profiler is not safe
// for concurrent use.
type Profiler struct {
	resolver Resolver
	state    state
	points   []Point
	maxAngle int
	stats    Stats
}

// New returns a new Profiler that resolves missing elevations with resolver,
// which may be nil.
func New(resolver Resolver) *Profiler {
	return &Profiler{
		resolver: resolver,
	}
}

// NewFromPoints returns a new initialized Profiler from points that already
// carry elevations and distances. Turn angles are recomputed.
func NewFromPoints(points []Point, resolver Resolver) *Profiler {
	p := New(resolver)
	p.points = make([]Point, len(points))
	copy(p.points, points)
	p.maxAngle = computeAngles(p.points)
	p.state = stateInitialized
	return p
}

// Initialize sets the path of p to coords, resolving missing elevations and
// computing distances and turn angles.
func (p *Profiler) Initialize(coords []Coord) {
	p.points = make([]Point, 0, len(coords))
	for i, coord := range coords {
		point := Point{
			Lat:       coord.Lat,
			Lon:       coord.Lon,
			Elevation: coord.Elevation,
		}
		if !coord.HasElevation {
			point.Elevation = p.resolve(coord.Lat, coord.Lon)
		}
		if i > 0 {
			prev := coords[i-1]
			point.Distance = int(geo.DistanceHaversine(orb.Point{prev.Lon, prev.Lat}, orb.Point{coord.Lon, coord.Lat}))
		}
		p.points = append(p.points, point)
	}
	p.maxAngle = computeAngles(p.points)
	p.stats = Stats{}
	p.state = stateInitialized
}

// Resample splits every segment of at least twice step meters into equal
// parts by inserting interpolated points. The elevations of inserted points
// are resolved, or interpolated linearly if p has no resolver.
func (p *Profiler) Resample(step int) error {
	if p.state == stateEmpty {
		return ErrNotInitialized
	}
	if step <= 0 {
		return errInvalidStep
	}
	if len(p.points) == 0 {
		p.state = stateResampled
		return nil
	}

	resampled := make([]Point, 0, len(p.points))
	resampled = append(resampled, p.points[0])
	for i := 1; i < len(p.points); i++ {
		base, dest := p.points[i-1], p.points[i]
		parts := dest.Distance / step
		if parts <= 1 {
			resampled = append(resampled, dest)
			continue
		}
		part := dest.Distance / parts
		baseLat, baseLon := toE7(base.Lat), toE7(base.Lon)
		destLat, destLon := toE7(dest.Lat), toE7(dest.Lon)
		for j := int64(1); j < int64(parts); j++ {
			lat := fromE7(baseLat + j*(destLat-baseLat)/int64(parts))
			lon := fromE7(baseLon + j*(destLon-baseLon)/int64(parts))
			var elevation int32
			if p.resolver != nil {
				elevation = p.resolver.Elevation(lat, lon)
			} else {
				elevation = base.Elevation + int32(j*int64(dest.Elevation-base.Elevation)/int64(parts))
			}
			resampled = append(resampled, Point{
				Lat:       lat,
				Lon:       lon,
				Elevation: elevation,
				Distance:  part,
			})
		}
		dest.Distance = part
		resampled = append(resampled, dest)
	}

	p.points = resampled
	p.stats = Stats{}
	p.state = stateResampled
	return nil
}

// Analyze computes the statistics of p.
//
// A level step extends both the current continuous ascend and the current
// continuous descend. The longest continuous run is chosen by distance, not
// by elevation change.
func (p *Profiler) Analyze() error {
	if p.state == stateEmpty {
		return ErrNotInitialized
	}

	stats := Stats{
		MaxAngle: p.maxAngle,
	}
	var partAscend, partAscendDistance int
	var partDescend, partDescendDistance int
	closeAscend := func() {
		if partAscendDistance > stats.ContinuousAscendDistance {
			stats.ContinuousAscend = partAscend
			stats.ContinuousAscendDistance = partAscendDistance
		}
		partAscend, partAscendDistance = 0, 0
	}
	closeDescend := func() {
		if partDescendDistance > stats.ContinuousDescendDistance {
			stats.ContinuousDescend = partDescend
			stats.ContinuousDescendDistance = partDescendDistance
		}
		partDescend, partDescendDistance = 0, 0
	}

	for i := 1; i < len(p.points); i++ {
		distance := p.points[i].Distance
		stats.TotalDistance += distance
		if distance <= 0 {
			continue
		}
		delta := int(p.points[i].Elevation) - int(p.points[i-1].Elevation)
		incline := 100 * delta / distance
		switch {
		case delta == 0:
			stats.LevelDistance += distance
			partAscendDistance += distance
			partDescendDistance += distance
		case delta > 0:
			stats.Ascend += delta
			stats.AscendDistance += distance
			stats.MaxIncline = max(stats.MaxIncline, incline)
			partAscend += delta
			partAscendDistance += distance
			closeDescend()
		default:
			stats.Descend += delta
			stats.DescendDistance += distance
			stats.MaxDecline = min(stats.MaxDecline, incline)
			partDescend += delta
			partDescendDistance += distance
			closeAscend()
		}
	}
	closeAscend()
	closeDescend()

	if stats.TotalDistance > minDistance {
		stats.TotalIncline = 100 * (stats.Ascend + stats.Descend) / stats.TotalDistance
	}
	if stats.AscendDistance > minDistance {
		stats.AverageIncline = 100 * stats.Ascend / stats.AscendDistance
	}
	if stats.DescendDistance > minDistance {
		stats.AverageDecline = 100 * stats.Descend / stats.DescendDistance
	}

	p.stats = stats
	p.state = stateAnalyzed
	return nil
}

// Stats returns the statistics computed by the last call to Analyze.
func (p *Profiler) Stats() (Stats, error) {
	if p.state != stateAnalyzed {
		return Stats{}, ErrNotAnalyzed
	}
	return p.stats, nil
}

// Points returns a copy of the points of p.
func (p *Profiler) Points() []Point {
	points := make([]Point, len(p.points))
	copy(points, p.points)
	return points
}

func (p *Profiler) resolve(lat, lon float64) int32 {
	if p.resolver == nil {
		return 0
	}
	return p.resolver.Elevation(lat, lon)
}

// computeAngles sets the turn angle of every point that has both a previous
// and a next point, and returns the maximum turn angle.
func computeAngles(points []Point) int {
	maxAngle := 0
	for i := range points {
		points[i].Angle = 0
		if i < 2 {
			continue
		}
		prev, last, point := points[i-2], points[i-1], points[i]
		angle := turnAngle(last.Lon-prev.Lon, last.Lat-prev.Lat, point.Lon-last.Lon, point.Lat-last.Lat)
		points[i-1].Angle = angle
		maxAngle = max(maxAngle, angle)
	}
	return maxAngle
}

// turnAngle returns the angle between the vectors a and b in whole degrees,
// truncated, or zero if either has zero length.
func turnAngle(ax, ay, bx, by float64) int {
	lengths := math.Hypot(ax, ay) * math.Hypot(bx, by)
	if lengths == 0 {
		return 0
	}
	cos := max(-1, min(1, (ax*bx+ay*by)/lengths))
	return int(math.Acos(cos) * (180 / math.Pi))
}

func toE7(deg float64) int64 {
	return int64(math.Round(deg * 1e7))
}

func fromE7(e7 int64) float64 {
	return float64(e7) / 1e7
}
