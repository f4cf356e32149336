package terrain

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
)

// VoidSample marks a sample without data inside a tile.
const VoidSample = math.MinInt16

// ErrNoData is returned by a TileSource that has no data for a tile.
var ErrNoData = errors.New("no data")

// A TileSource is the backing store for tiles.
type TileSource interface {
	// Present returns whether the tile at coord is available locally.
	Present(coord TileCoord) bool
	// Fetch makes a single attempt to make the tile at coord available
	// locally.
	Fetch(ctx context.Context, coord TileCoord) error
	// Load returns the side×side samples of the tile at coord, row-major
	// from the south-west corner, with VoidSample where data is missing. It
	// returns ErrNoData if the tile has no data.
	Load(coord TileCoord, side int) ([]int16, error)
}

// A TileState is the lifecycle state of a Tile.
type TileState int

const (
	TileUnresolved TileState = iota
	TileLoaded
	TileEmpty
)

func (s TileState) String() string {
	switch s {
	case TileUnresolved:
		return "unresolved"
	case TileLoaded:
		return "loaded"
	case TileEmpty:
		return "empty"
	default:
		return fmt.Sprintf("TileState(%d)", int(s))
	}
}

// A Tile is one square grid of samples. Its samples are decoded on first
// access.
type Tile struct {
	coord   TileCoord
	side    int
	source  TileSource
	mutex   sync.Mutex
	state   TileState
	samples []int16
}

func newTile(coord TileCoord, side int, source TileSource) *Tile {
	return &Tile{
		coord:  coord,
		side:   side,
		source: source,
	}
}

// Coord returns t's coordinate.
func (t *Tile) Coord() TileCoord {
	return t.coord
}

// Side returns the number of samples along each edge of t.
func (t *Tile) Side() int {
	return t.side
}

// State returns t's state.
func (t *Tile) State() TileState {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.state
}

// Present returns whether t's data is available locally.
func (t *Tile) Present() bool {
	return t.source.Present(t.coord)
}

// Fetch makes a single attempt to make t's data available locally. On
// failure t becomes empty.
func (t *Tile) Fetch(ctx context.Context) error {
	err := t.source.Fetch(ctx, t.coord)
	if err != nil {
		t.mutex.Lock()
		defer t.mutex.Unlock()
		if t.state == TileUnresolved {
			t.state = TileEmpty
			emptyTiles.Inc()
		}
	}
	return err
}

// Decode decodes t's samples if they have not been decoded yet. Tiles
// without data become empty. It is safe to call concurrently.
func (t *Tile) Decode() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.state != TileUnresolved {
		return nil
	}

	tileDecodes.Inc()
	samples, err := t.source.Load(t.coord, t.side)
	switch {
	case errors.Is(err, ErrNoData):
		err = nil
	case err != nil:
		err = fmt.Errorf("%s: %w", t.coord, err)
	case len(samples) != t.side*t.side:
		err = fmt.Errorf("%s: got %d samples, expected %d", t.coord, len(samples), t.side*t.side)
	default:
		t.samples = samples
		t.state = TileLoaded
		return nil
	}
	t.state = TileEmpty
	emptyTiles.Inc()
	return err
}

// SampleAt returns the sample at x, y, counted from t's south-west corner.
// Empty tiles, void samples and pixels outside of t return 0.
func (t *Tile) SampleAt(x, y int) int32 {
	sample, _ := t.sample(x, y)
	return sample
}

// sample returns the sample at x, y and whether it has data. It must only be
// called after Decode.
func (t *Tile) sample(x, y int) (int32, bool) {
	if t.samples == nil || x < 0 || t.side <= x || y < 0 || t.side <= y {
		return 0, false
	}
	sample := t.samples[y*t.side+x]
	if sample == VoidSample {
		return 0, false
	}
	return int32(sample), true
}
