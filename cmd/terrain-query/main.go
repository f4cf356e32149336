package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"

	"github.com/twpayne/go-terrain"
	"github.com/twpayne/go-terrain/internal/logger"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	DEMPath  string `short:"d" long:"dem-path" env:"TERRAIN_DEM_PATH" description:"Path to SRTM tiles" default:"."`
	Download bool   `long:"download"           env:"TERRAIN_DOWNLOAD" description:"Download missing tiles"`

	Args struct {
		Lat float64 `positional-arg-name:"latitude"`
		Lon float64 `positional-arg-name:"longitude"`
	} `positional-args:"yes" required:"yes"`
}

func run(ctx context.Context, opts *Options) error {
	lat, lon := opts.Args.Lat, opts.Args.Lon
	store, err := terrain.NewStore(
		terrain.NewBoundingBox(lat, lon, lat, lon),
		terrain.NewDirSource(opts.DEMPath, terrain.WithDownload(opts.Download)),
	)
	if err != nil {
		return err
	}
	if err := store.Open(ctx); err != nil {
		return err
	}

	result := store.Lookup(lat, lon)
	if result.Status != terrain.StatusOK {
		log.Warn().
			Stringer("status", result.Status).
			Msg("elevation incomplete")
	}
	fmt.Println(result.Elevation)
	return nil
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	parser.Usage = "[OPTIONS] [--] latitude longitude"
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, &opts); err != nil {
		log.Error().Err(err).Msg("query failed")
		cancel()
		os.Exit(1)
	}
}
