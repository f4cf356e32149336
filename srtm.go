package terrain

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const cgiarURLFormat = "https://srtm.csi.cgiar.org/wp-content/uploads/files/srtm_5x5/TIFF/%s.zip"

var (
	errDownloadDisabled = errors.New("download disabled")
	errNoTIFFInArchive  = errors.New("no .tif file in archive")
)

// A TileFilenameFunc returns the filename for a tile coordinate, or the empty
// string if there is no such tile.
type TileFilenameFunc func(TileCoord) string

// A TileURLFunc returns the download URL for a tile coordinate, or the empty
// string if there is no such tile.
type TileURLFunc func(TileCoord) string

// SRTMTileName returns the CGIAR SRTM v4.1 name of the 5°×5° tile at coord,
// for example srtm_38_03.
func SRTMTileName(coord TileCoord) (string, bool) {
	if coord.Lon%5 != 0 || coord.Lat%5 != 0 ||
		coord.Lon < -180 || 180 <= coord.Lon ||
		coord.Lat < -60 || 60 <= coord.Lat {
		return "", false
	}
	x := (coord.Lon+180)/5 + 1
	y := (60-coord.Lat-5)/5 + 1
	return fmt.Sprintf("srtm_%02d_%02d", x, y), true
}

// SRTMTileFilename returns the filename of the CGIAR SRTM tile at coord.
func SRTMTileFilename(coord TileCoord) string {
	name, ok := SRTMTileName(coord)
	if !ok {
		return ""
	}
	return name + ".tif"
}

// CGIARTileURL returns the CGIAR download URL of the SRTM tile at coord.
func CGIARTileURL(coord TileCoord) string {
	name, ok := SRTMTileName(coord)
	if !ok {
		return ""
	}
	return fmt.Sprintf(cgiarURLFormat, name)
}

// A DirSource is a TileSource backed by GeoTIFF files in a directory,
// optionally downloading missing files.
type DirSource struct {
	dir              string
	download         bool
	httpClient       *http.Client
	tileFilenameFunc TileFilenameFunc
	tileURLFunc      TileURLFunc
}

// A DirSourceOption sets an option on a DirSource.
type DirSourceOption func(*DirSource)

// NewDirSource returns a new DirSource reading CGIAR SRTM tiles from dir.
func NewDirSource(dir string, options ...DirSourceOption) *DirSource {
	s := &DirSource{
		dir: dir,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
		tileFilenameFunc: SRTMTileFilename,
		tileURLFunc:      CGIARTileURL,
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// WithDownload sets whether missing tiles are downloaded.
func WithDownload(download bool) DirSourceOption {
	return func(s *DirSource) {
		s.download = download
	}
}

func WithHTTPClient(httpClient *http.Client) DirSourceOption {
	return func(s *DirSource) {
		s.httpClient = httpClient
	}
}

func WithTileFilenameFunc(tileFilenameFunc TileFilenameFunc) DirSourceOption {
	return func(s *DirSource) {
		s.tileFilenameFunc = tileFilenameFunc
	}
}

func WithTileURLFunc(tileURLFunc TileURLFunc) DirSourceOption {
	return func(s *DirSource) {
		s.tileURLFunc = tileURLFunc
	}
}

// Present returns whether the file for coord exists.
func (s *DirSource) Present(coord TileCoord) bool {
	filename := s.tileFilenameFunc(coord)
	if filename == "" {
		return false
	}
	_, err := os.Stat(filepath.Join(s.dir, filename))
	return err == nil
}

// Fetch downloads the file for coord once. Zip archives are unpacked.
func (s *DirSource) Fetch(ctx context.Context, coord TileCoord) error {
	if !s.download {
		return errDownloadDisabled
	}
	filename := s.tileFilenameFunc(coord)
	url := s.tileURLFunc(coord)
	if filename == "" || url == "" {
		return ErrNoData
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s", url, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	data := body
	if bytes.HasPrefix(body, []byte("PK\x03\x04")) {
		data, err = extractTIFF(body)
		if err != nil {
			return fmt.Errorf("%s: %w", url, err)
		}
	}

	return writeFileAtomic(filepath.Join(s.dir, filename), data)
}

// Load decodes the file for coord.
func (s *DirSource) Load(coord TileCoord, side int) ([]int16, error) {
	filename := s.tileFilenameFunc(coord)
	if filename == "" {
		return nil, ErrNoData
	}
	file, err := os.Open(filepath.Join(s.dir, filename))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, ErrNoData
	case err != nil:
		return nil, err
	}
	defer file.Close()

	raster, err := decodeGeoTIFF(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return raster.tileSamples(coord, side)
}

// extractTIFF returns the contents of the first .tif file in the zip archive
// data.
func extractTIFF(data []byte) ([]byte, error) {
	zipReader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	for _, zipFile := range zipReader.File {
		if ext := strings.ToLower(path.Ext(zipFile.Name)); ext != ".tif" && ext != ".tiff" {
			continue
		}
		r, err := zipFile.Open()
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	}
	return nil, errNoTIFFInArchive
}

// writeFileAtomic writes data to filename through a temporary file in the same
// directory.
func writeFileAtomic(filename string, data []byte) (err error) {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tempFile, err := os.CreateTemp(dir, filepath.Base(filename)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tempFile.Name())
		}
	}()
	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}
	return os.Rename(tempFile.Name(), filename)
}
