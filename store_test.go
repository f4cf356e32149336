package terrain

import (
	"bytes"
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/twpayne/go-terrain/profile"
)

const testResolution = 2

var errTestFetch = errors.New("fetch failed")

// A testSource serves tiles of one degree at testResolution samples per
// degree. Unless sampleFunc is set, samples are a linear function of the
// absolute lattice coordinate so bilinear interpolation is exact.
type testSource struct {
	mutex      sync.Mutex
	present    map[TileCoord]bool
	fetchable  map[TileCoord]bool
	fetches    []TileCoord
	fetchErr   error
	loads      map[TileCoord]int
	sampleFunc func(x, y int) int16
}

func newTestSource(present ...TileCoord) *testSource {
	s := &testSource{
		present:   make(map[TileCoord]bool),
		fetchable: make(map[TileCoord]bool),
		fetchErr:  errTestFetch,
		loads:     make(map[TileCoord]int),
		sampleFunc: func(x, y int) int16 {
			return int16(10*x + y)
		},
	}
	for _, coord := range present {
		s.present[coord] = true
	}
	return s
}

func (s *testSource) Present(coord TileCoord) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.present[coord]
}

func (s *testSource) Fetch(ctx context.Context, coord TileCoord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.fetches = append(s.fetches, coord)
	if !s.fetchable[coord] {
		return s.fetchErr
	}
	s.present[coord] = true
	return nil
}

func (s *testSource) Load(coord TileCoord, side int) ([]int16, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.loads[coord]++
	if !s.present[coord] {
		return nil, ErrNoData
	}
	samples := make([]int16, side*side)
	for y := range side {
		for x := range side {
			samples[y*side+x] = s.sampleFunc(coord.Lon*testResolution+x, coord.Lat*testResolution+y)
		}
	}
	return samples, nil
}

func newTestStore(t *testing.T, source TileSource, options ...StoreOption) *Store {
	t.Helper()
	store, err := NewStore(
		NewBoundingBox(10.25, 20.25, 10.75, 20.75),
		source,
		append([]StoreOption{
			WithResolution(testResolution),
			WithTileSpan(1),
			WithLogger(zerolog.Nop()),
		}, options...)...,
	)
	assert.NoError(t, err)
	assert.NoError(t, store.Open(t.Context()))
	return store
}

var allTestTiles = []TileCoord{
	{Lon: 20, Lat: 10},
	{Lon: 21, Lat: 10},
	{Lon: 20, Lat: 11},
	{Lon: 21, Lat: 11},
}

func TestNewStore(t *testing.T) {
	source := newTestSource()
	for _, tc := range []struct {
		name    string
		bounds  BoundingBox
		source  TileSource
		options []StoreOption
	}{
		{
			name:   "nil_source",
			bounds: NewBoundingBox(0, 0, 1, 1),
		},
		{
			name:   "inverted",
			bounds: BoundingBox{FromLat: 1, FromLon: 0, ToLat: 0, ToLon: 1},
			source: source,
		},
		{
			name:    "zero_resolution",
			bounds:  NewBoundingBox(0, 0, 1, 1),
			source:  source,
			options: []StoreOption{WithResolution(0)},
		},
		{
			name:    "negative_tile_span",
			bounds:  NewBoundingBox(0, 0, 1, 1),
			source:  source,
			options: []StoreOption{WithTileSpan(-5)},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewStore(tc.bounds, tc.source, tc.options...)
			assert.Error(t, err)
		})
	}
}

func TestStoreOpen(t *testing.T) {
	source := newTestSource(allTestTiles...)
	store := newTestStore(t, source)
	assert.Equal(t, 4, store.Tiles())
	for _, tileCoord := range allTestTiles {
		tile, ok := store.Tile(tileCoord)
		assert.True(t, ok)
		assert.Equal(t, tileCoord, tile.Coord())
		assert.Equal(t, testResolution, tile.Side())
		assert.Equal(t, TileUnresolved, tile.State())
	}
	assert.Equal(t, 0, len(source.fetches))
	assert.Equal(t, 0, len(source.loads))

	_, ok := store.Tile(TileCoord{Lon: 22, Lat: 10})
	assert.False(t, ok)
}

func TestStoreOpenFetch(t *testing.T) {
	source := newTestSource(allTestTiles[0], allTestTiles[2])
	source.fetchable[TileCoord{Lon: 21, Lat: 11}] = true

	fetchesBefore := testutil.ToFloat64(tileFetches)
	failuresBefore := testutil.ToFloat64(tileFetchFailures)

	store := newTestStore(t, source)

	assert.Equal(t, 2.0, testutil.ToFloat64(tileFetches)-fetchesBefore)
	assert.Equal(t, 1.0, testutil.ToFloat64(tileFetchFailures)-failuresBefore)

	failedTile, ok := store.Tile(TileCoord{Lon: 21, Lat: 10})
	assert.True(t, ok)
	assert.Equal(t, TileEmpty, failedTile.State())

	fetchedTile, ok := store.Tile(TileCoord{Lon: 21, Lat: 11})
	assert.True(t, ok)
	assert.Equal(t, TileUnresolved, fetchedTile.State())
	assert.True(t, fetchedTile.Present())

	// The failed tile contributes 0 with half the weight.
	assert.Equal(t, Result{Elevation: 215, Status: StatusNoCoverage}, store.Lookup(10.5, 20.75))
	// The fetched tile was decoded on first access.
	assert.Equal(t, Result{Elevation: 326, Status: StatusNoCoverage}, store.Lookup(10.75, 20.75))
	assert.Equal(t, TileLoaded, fetchedTile.State())
	assert.Equal(t, 0, source.loads[TileCoord{Lon: 21, Lat: 10}])
}

func TestStoreOpenUncovered(t *testing.T) {
	source := newTestSource()
	source.fetchErr = ErrNoData

	fetchesBefore := testutil.ToFloat64(tileFetches)
	failuresBefore := testutil.ToFloat64(tileFetchFailures)

	buffer := &bytes.Buffer{}
	store := newTestStore(t, source, WithLogger(zerolog.New(buffer)))

	assert.Equal(t, 4.0, testutil.ToFloat64(tileFetches)-fetchesBefore)
	assert.Equal(t, 0.0, testutil.ToFloat64(tileFetchFailures)-failuresBefore)
	assert.NotContains(t, buffer.String(), `"level":"warn"`)
	assert.NotContains(t, buffer.String(), "tile fetch failed")

	for _, tileCoord := range allTestTiles {
		tile, ok := store.Tile(tileCoord)
		assert.True(t, ok)
		assert.Equal(t, TileEmpty, tile.State())
	}
	assert.Equal(t, Result{Status: StatusNoCoverage}, store.Lookup(10.5, 20.5))
}

func TestStoreOpenCanceled(t *testing.T) {
	store, err := NewStore(
		NewBoundingBox(10.25, 20.25, 10.75, 20.75),
		newTestSource(allTestTiles...),
		WithResolution(testResolution),
		WithTileSpan(1),
		WithLogger(zerolog.Nop()),
	)
	assert.NoError(t, err)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.IsError(t, store.Open(ctx), context.Canceled)
}

func TestStoreLookup(t *testing.T) {
	store := newTestStore(t, newTestSource(allTestTiles...))
	for _, tc := range []struct {
		name     string
		lat      float64
		lon      float64
		expected Result
	}{
		{
			name:     "lattice_point",
			lat:      10.5,
			lon:      20.5,
			expected: Result{Elevation: 431},
		},
		{
			name:     "south_west_corner",
			lat:      10.25,
			lon:      20.25,
			expected: Result{Elevation: 425},
		},
		{
			name:     "between_samples",
			lat:      10.75,
			lon:      20.25,
			expected: Result{Elevation: 426},
		},
		{
			name:     "across_four_tiles",
			lat:      10.75,
			lon:      20.75,
			expected: Result{Elevation: 436},
		},
		{
			name:     "north_of_bounds",
			lat:      12,
			lon:      20.5,
			expected: Result{Status: StatusOutOfBounds},
		},
		{
			name:     "west_of_bounds",
			lat:      10.5,
			lon:      20.2,
			expected: Result{Status: StatusOutOfBounds},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, store.Lookup(tc.lat, tc.lon))
			assert.Equal(t, tc.expected.Elevation, store.Elevation(tc.lat, tc.lon))
		})
	}
}

func TestStoreCornerExactness(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	source := newTestSource(allTestTiles...)
	source.sampleFunc = func(x, y int) int16 {
		return int16(r.IntN(4000) - 100)
	}
	store := newTestStore(t, source, WithResolution(4))
	for y := 1; y <= 3; y++ {
		for x := 1; x <= 3; x++ {
			lat := 10 + 0.25*float64(y)
			lon := 20 + 0.25*float64(x)
			expected, ok := store.Sample(Coord{X: x, Y: y})
			assert.True(t, ok)
			assert.Equal(t, Result{Elevation: int32(expected)}, store.Lookup(lat, lon))
		}
	}
}

func TestStoreCornerExactnessDefaultResolution(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	source := newTestSource(allTestTiles...)
	source.sampleFunc = func(x, y int) int16 {
		return int16(r.IntN(9000) - 500)
	}
	store := newTestStore(t, source, WithResolution(DefaultResolution))
	assert.Equal(t, 1, store.Tiles())

	// 10.25 to 10.75 and 20.25 to 20.75 are lattice points 300 to 900.
	for k := 300; k <= 900; k++ {
		for _, c := range []Coord{{X: k, Y: k}, {X: k, Y: 600}, {X: 600, Y: k}} {
			lat := 10 + float64(c.Y)/DefaultResolution
			lon := 20 + float64(c.X)/DefaultResolution
			expected, ok := store.Sample(c)
			assert.True(t, ok)
			assert.Equal(t, Result{Elevation: int32(expected)}, store.Lookup(lat, lon), "lat=%v lon=%v", lat, lon)
		}
	}
}

func TestStoreBoundedBlend(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	source := newTestSource(allTestTiles...)
	source.sampleFunc = func(x, y int) int16 {
		return int16(r.IntN(9000) - 500)
	}
	store := newTestStore(t, source)
	for range 1024 {
		lat := 10.25 + 0.5*r.Float64()
		lon := 20.25 + 0.5*r.Float64()
		x := int(math.Floor((lon - 20) * testResolution))
		y := int(math.Floor((lat - 10) * testResolution))
		lo, hi := math.Inf(1), math.Inf(-1)
		for _, c := range []Coord{{X: x, Y: y}, {X: x + 1, Y: y}, {X: x, Y: y + 1}, {X: x + 1, Y: y + 1}} {
			sample, ok := store.Sample(c)
			assert.True(t, ok)
			lo = min(lo, sample)
			hi = max(hi, sample)
		}
		result := store.Lookup(lat, lon)
		assert.Equal(t, StatusOK, result.Status)
		elevation := float64(result.Elevation)
		assert.True(t, lo <= elevation && elevation <= hi)
	}
}

func TestStoreOutOfBounds(t *testing.T) {
	buffer := &bytes.Buffer{}
	store := newTestStore(t, newTestSource(allTestTiles...), WithLogger(zerolog.New(buffer)))

	before := testutil.ToFloat64(outOfBoundsQueries)
	assert.NotPanics(t, func() {
		assert.Equal(t, int32(0), store.Elevation(9, 20.5))
	})
	assert.Equal(t, 1.0, testutil.ToFloat64(outOfBoundsQueries)-before)
	assert.Contains(t, buffer.String(), `"level":"warn"`)
	assert.Contains(t, buffer.String(), "point outside of bounds")
	assert.Contains(t, buffer.String(), `"lat":9`)
}

func TestStoreNoCoverage(t *testing.T) {
	source := newTestSource(allTestTiles[0])
	store := newTestStore(t, source)

	// Zero-weight samples from empty tiles do not affect the status.
	assert.Equal(t, Result{Elevation: 431}, store.Lookup(10.5, 20.5))

	// Three of the four samples are in empty tiles.
	assert.Equal(t, Result{Elevation: 107, Status: StatusNoCoverage}, store.Lookup(10.75, 20.75))

	tile, ok := store.Tile(TileCoord{Lon: 21, Lat: 11})
	assert.True(t, ok)
	assert.Equal(t, TileEmpty, tile.State())
	assert.Equal(t, int32(0), tile.SampleAt(0, 0))
}

func TestStoreVoidSample(t *testing.T) {
	source := newTestSource(allTestTiles...)
	source.sampleFunc = func(x, y int) int16 {
		if x == 42 && y == 22 {
			return VoidSample
		}
		return int16(10*x + y)
	}
	store := newTestStore(t, source)

	// A quarter of the weight falls on the void sample.
	assert.Equal(t, Result{Elevation: 326, Status: StatusNoCoverage}, store.Lookup(10.75, 20.75))
	assert.Equal(t, Result{Elevation: 431}, store.Lookup(10.5, 20.5))
	assert.Equal(t, Result{Elevation: 425}, store.Lookup(10.25, 20.25))

	voidTile, ok := store.Tile(TileCoord{Lon: 21, Lat: 11})
	assert.True(t, ok)
	assert.Equal(t, TileLoaded, voidTile.State())
	assert.Equal(t, int32(0), voidTile.SampleAt(0, 0))
	assert.Equal(t, int32(452), voidTile.SampleAt(1, 0))
}

func TestStoreDecodesEachTileOnce(t *testing.T) {
	source := newTestSource(allTestTiles...)
	store := newTestStore(t, source)

	decodesBefore := testutil.ToFloat64(tileDecodes)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := rand.New(rand.NewPCG(uint64(i), 0))
			for range 256 {
				result := store.Lookup(10.25+0.5*r.Float64(), 20.25+0.5*r.Float64())
				if result.Status != StatusOK {
					t.Errorf("unexpected status %s", result.Status)
				}
			}
		}()
	}
	wg.Wait()

	for _, tileCoord := range allTestTiles {
		assert.Equal(t, 1, source.loads[tileCoord])
	}
	assert.Equal(t, 4.0, testutil.ToFloat64(tileDecodes)-decodesBefore)
}

func TestStoreResolvesProfile(t *testing.T) {
	store := newTestStore(t, newTestSource(allTestTiles...))
	outOfBoundsBefore := testutil.ToFloat64(outOfBoundsQueries)

	p := profile.New(store)
	p.Initialize([]profile.Coord{
		{Lat: 10.25, Lon: 20.25},
		{Lat: 10.75, Lon: 20.75},
		{Lat: 10.75, Lon: 20.3, Elevation: 1000, HasElevation: true},
		{Lat: 10.3, Lon: 20.3},
	})
	initialized := p.Points()
	assert.Equal(t, int32(425), initialized[0].Elevation)
	assert.Equal(t, int32(436), initialized[1].Elevation)
	assert.Equal(t, int32(1000), initialized[2].Elevation)

	assert.NoError(t, p.Resample(5000))
	points := p.Points()
	assert.True(t, len(points) > 3*len(initialized))
	assert.Equal(t, initialized[0], points[0])
	for i, point := range points {
		assert.True(t, store.Bounds().Contains(point.Lat, point.Lon), "point %d at %f,%f", i, point.Lat, point.Lon)
		if point.Lat == 10.75 && point.Lon == 20.3 {
			assert.Equal(t, int32(1000), point.Elevation)
			continue
		}
		// Samples are linear in the lattice coordinates.
		expected := 20*point.Lon + 2*point.Lat
		assert.Equal(t, store.Elevation(point.Lat, point.Lon), point.Elevation)
		assert.True(t, math.Abs(float64(point.Elevation)-expected) <= 1, "point %d at %f,%f", i, point.Lat, point.Lon)
	}
	assert.Equal(t, 0.0, testutil.ToFloat64(outOfBoundsQueries)-outOfBoundsBefore)

	assert.NoError(t, p.Analyze())
	stats, err := p.Stats()
	assert.NoError(t, err)
	assert.True(t, stats.Ascend > 0)
	assert.True(t, stats.Descend < 0)
}
