package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/twpayne/go-terrain"
	"github.com/twpayne/go-terrain/internal/logger"
	"github.com/twpayne/go-terrain/profile"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	DEMPath   string `short:"d" long:"dem-path"   env:"TERRAIN_DEM_PATH" description:"Path to SRTM tiles" default:"."`
	Download  bool   `long:"download"             env:"TERRAIN_DOWNLOAD" description:"Download missing tiles"`
	GPX       string `short:"g" long:"gpx"        description:"GPX file to profile"`
	Step      int    `short:"s" long:"step"       description:"Resample segments to this many meters, 0 to disable" default:"0"`
	Format    string `short:"f" long:"format"     description:"Output format" choice:"yaml" choice:"json" default:"yaml"`
	CacheSize int    `long:"cache-size"           description:"Number of elevations to cache" default:"4096"`
	Points    bool   `short:"p" long:"points"     description:"Include points in output"`

	Args struct {
		Coords []string `positional-arg-name:"lat,lon[,ele]"`
	} `positional-args:"yes"`
}

type output struct {
	Stats  profile.Stats   `json:"stats" yaml:"stats"`
	Points []profile.Point `json:"points,omitempty" yaml:"points,omitempty"`
}

// parseCoord parses a coordinate of the form lat,lon[,ele].
func parseCoord(s string) (profile.Coord, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 2 && len(fields) != 3 {
		return profile.Coord{}, fmt.Errorf("%s: invalid coordinate", s)
	}
	values := make([]float64, len(fields))
	for i, field := range fields {
		value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return profile.Coord{}, fmt.Errorf("%s: %w", s, err)
		}
		values[i] = value
	}
	coord := profile.Coord{
		Lat: values[0],
		Lon: values[1],
	}
	if len(values) == 3 {
		coord.Elevation = int32(math.Round(values[2]))
		coord.HasElevation = true
	}
	return coord, nil
}

func loadCoords(opts *Options) ([]profile.Coord, error) {
	switch {
	case opts.GPX != "" && len(opts.Args.Coords) != 0:
		return nil, errors.New("cannot combine --gpx with coordinates")
	case opts.GPX != "":
		return profile.LoadGPX(opts.GPX)
	case len(opts.Args.Coords) < 2:
		return nil, errors.New("need a GPX file or at least two coordinates")
	}
	coords := make([]profile.Coord, 0, len(opts.Args.Coords))
	for _, arg := range opts.Args.Coords {
		coord, err := parseCoord(arg)
		if err != nil {
			return nil, err
		}
		coords = append(coords, coord)
	}
	return coords, nil
}

func needsElevations(coords []profile.Coord, step int) bool {
	if step > 0 {
		return true
	}
	for _, coord := range coords {
		if !coord.HasElevation {
			return true
		}
	}
	return false
}

func run(ctx context.Context, opts *Options, w io.Writer) error {
	coords, err := loadCoords(opts)
	if err != nil {
		return err
	}

	var resolver profile.Resolver
	if needsElevations(coords, opts.Step) {
		// Resampled points are snapped to a 1e-7 degree lattice.
		bounds := terrain.BoundingBoxFromBound(profile.Bound(coords)).Expand(1e-6)
		store, err := terrain.NewStore(bounds,
			terrain.NewDirSource(opts.DEMPath, terrain.WithDownload(opts.Download)),
		)
		if err != nil {
			return err
		}
		if err := store.Open(ctx); err != nil {
			return err
		}
		cachedResolver, err := profile.NewCachedResolver(store, opts.CacheSize)
		if err != nil {
			return err
		}
		resolver = cachedResolver
	}

	profiler := profile.New(resolver)
	profiler.Initialize(coords)
	if opts.Step > 0 {
		if err := profiler.Resample(opts.Step); err != nil {
			return err
		}
	}
	if err := profiler.Analyze(); err != nil {
		return err
	}
	stats, err := profiler.Stats()
	if err != nil {
		return err
	}

	result := output{
		Stats: stats,
	}
	if opts.Points {
		result.Points = profiler.Points()
	}

	log.Debug().
		Int("points", len(profiler.Points())).
		Int("totalDistance", stats.TotalDistance).
		Msg("profile analyzed")

	switch opts.Format {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(result)
	default:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(result); err != nil {
			return err
		}
		return encoder.Close()
	}
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "[OPTIONS] (--gpx file | [--] lat,lon[,ele]...)"
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, &opts, os.Stdout); err != nil {
		log.Error().Err(err).Msg("profile failed")
		cancel()
		os.Exit(1)
	}
}
