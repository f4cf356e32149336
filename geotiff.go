package terrain

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
	_ "github.com/google/tiff/geotiff"
	"golang.org/x/image/tiff/lzw"
)

// srtmVoid is the no-data value of SRTM rasters.
const srtmVoid = math.MinInt16

const (
	compressionNone       = 1
	compressionLZW        = 5
	compressionDeflate    = 8
	compressionDeflateOld = 32946

	predictorNone       = 1
	predictorHorizontal = 2

	sampleFormatSigned = 2
)

var errNotTIFF = errors.New("not a TIFF file")

// A geoTIFFIFD is a struct into which github.com/google/tiff can unmarshal an
// IFD.
type geoTIFFIFD struct {
	ImageWidth          uint32    `tiff:"field,tag=256"`
	ImageLength         uint32    `tiff:"field,tag=257"`
	BitsPerSample       uint16    `tiff:"field,tag=258"`
	Compression         uint16    `tiff:"field,tag=259"`
	StripOffsets        []uint64  `tiff:"field,tag=273"`
	SamplesPerPixel     uint16    `tiff:"field,tag=277"`
	RowsPerStrip        uint32    `tiff:"field,tag=278"`
	StripByteCounts     []uint64  `tiff:"field,tag=279"`
	PlanarConfiguration uint16    `tiff:"field,tag=284"`
	Predictor           uint16    `tiff:"field,tag=317"`
	TileWidth           uint32    `tiff:"field,tag=322"`
	TileLength          uint32    `tiff:"field,tag=323"`
	TileOffsets         []uint64  `tiff:"field,tag=324"`
	TileByteCounts      []uint64  `tiff:"field,tag=325"`
	SampleFormat        uint16    `tiff:"field,tag=339"`
	ModelPixelScaleTag  []float64 `tiff:"field,tag=33550"`
	ModelTiepointTag    []float64 `tiff:"field,tag=33922"`
	GeoKeyDirectoryTag  []uint16  `tiff:"field,tag=34735"`
	GeoDoubleParamsTag  []float64 `tiff:"field,tag=34736"`
	GeoASCIIParamsTag   string    `tiff:"field,tag=34737"`
	GDALNoData          string    `tiff:"field,tag=42113"`
}

// A geoTIFFRaster is a decoded single band GeoTIFF image, row-major from the
// north-west corner. If georeferenced is set, the center of the north-west
// pixel is at originLon, originLat and pixels are scaleX by scaleY degrees.
type geoTIFFRaster struct {
	width         int
	height        int
	samples       []int16
	noData        int16
	georeferenced bool
	originLon     float64
	originLat     float64
	scaleX        float64
	scaleY        float64
}

// decodeGeoTIFF decodes the first image in r, which must have a single band
// of 16-bit integers.
func decodeGeoTIFF(r tiff.ReadAtReadSeeker) (*geoTIFFRaster, error) {
	var header [2]byte
	if _, err := r.ReadAt(header[:], 0); err != nil {
		return nil, err
	}
	var byteOrder binary.ByteOrder
	switch string(header[:]) {
	case "II":
		byteOrder = binary.LittleEndian
	case "MM":
		byteOrder = binary.BigEndian
	default:
		return nil, errNotTIFF
	}

	tiffTIFF, err := tiff.Parse(r, tiff.GetTagSpace("GeoTIFF"), nil)
	if err != nil {
		return nil, err
	}
	// Any further IFDs are overviews.
	if len(tiffTIFF.IFDs()) == 0 {
		return nil, errors.New("no IFDs")
	}

	var ifd geoTIFFIFD
	if err := tiff.UnmarshalIFD(tiffTIFF.IFDs()[0], &ifd); err != nil {
		return nil, err
	}

	if ifd.BitsPerSample != 16 ||
		ifd.SamplesPerPixel > 1 ||
		ifd.PlanarConfiguration > 1 ||
		ifd.Predictor > predictorHorizontal ||
		ifd.SampleFormat > sampleFormatSigned {
		return nil, errors.ErrUnsupported
	}

	pixelIsPoint := false
	if len(ifd.GeoKeyDirectoryTag) != 0 {
		geoKeys, err := ParseGeoKeys(ifd.GeoKeyDirectoryTag, ifd.GeoDoubleParamsTag, []byte(ifd.GeoASCIIParamsTag))
		if err != nil {
			return nil, err
		}
		if err := geoKeys.CheckGeographic(); err != nil {
			return nil, err
		}
		pixelIsPoint = geoKeys.Params[GeoKeyGTRasterType] == RasterPixelIsPoint
	}

	width := int(ifd.ImageWidth)
	height := int(ifd.ImageLength)
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%dx%d: invalid image size", width, height)
	}

	tiled := ifd.TileWidth != 0
	var chunkWidth, chunkLength int
	var offsets, byteCounts []uint64
	if tiled {
		chunkWidth = int(ifd.TileWidth)
		chunkLength = int(ifd.TileLength)
		offsets = ifd.TileOffsets
		byteCounts = ifd.TileByteCounts
	} else {
		chunkWidth = width
		chunkLength = int(ifd.RowsPerStrip)
		if chunkLength == 0 || chunkLength > height {
			chunkLength = height
		}
		offsets = ifd.StripOffsets
		byteCounts = ifd.StripByteCounts
	}
	if chunkWidth <= 0 || chunkLength <= 0 {
		return nil, fmt.Errorf("%dx%d: invalid chunk size", chunkWidth, chunkLength)
	}
	chunksAcross := (width + chunkWidth - 1) / chunkWidth
	chunksDown := (height + chunkLength - 1) / chunkLength
	if len(offsets) != chunksAcross*chunksDown || len(byteCounts) != len(offsets) {
		return nil, errors.New("incorrect number of chunk byte counts or offsets")
	}

	raster := &geoTIFFRaster{
		width:   width,
		height:  height,
		samples: make([]int16, width*height),
		noData:  srtmVoid,
	}
	if noData, err := strconv.ParseFloat(strings.TrimRight(ifd.GDALNoData, "\x00 "), 64); err == nil &&
		math.MinInt16 <= noData && noData <= math.MaxInt16 {
		raster.noData = int16(noData)
	}
	if len(ifd.ModelPixelScaleTag) != 0 || len(ifd.ModelTiepointTag) != 0 {
		if len(ifd.ModelPixelScaleTag) != 3 || len(ifd.ModelTiepointTag) != 6 {
			return nil, errors.ErrUnsupported
		}
		scaleX, scaleY := ifd.ModelPixelScaleTag[0], ifd.ModelPixelScaleTag[1]
		if scaleX <= 0 || scaleY <= 0 {
			return nil, errors.ErrUnsupported
		}
		i, j := ifd.ModelTiepointTag[0], ifd.ModelTiepointTag[1]
		x, y := ifd.ModelTiepointTag[3], ifd.ModelTiepointTag[4]
		// Raster space puts pixel centers at half-integers when pixels are
		// areas and at integers when they are points.
		center := 0.5
		if pixelIsPoint {
			center = 0
		}
		raster.georeferenced = true
		raster.originLon = x + (center-i)*scaleX
		raster.originLat = y - (center-j)*scaleY
		raster.scaleX = scaleX
		raster.scaleY = scaleY
	}
	signed := ifd.SampleFormat == sampleFormatSigned

	for chunkIndex := range offsets {
		chunkRow := chunkIndex / chunksAcross
		chunkCol := chunkIndex % chunksAcross
		rows := chunkLength
		if !tiled {
			rows = min(chunkLength, height-chunkRow*chunkLength)
		}

		compressedData := make([]byte, byteCounts[chunkIndex])
		switch n, err := r.ReadAt(compressedData, int64(offsets[chunkIndex])); {
		case n == len(compressedData):
		case err != nil:
			return nil, err
		default:
			return nil, io.ErrUnexpectedEOF
		}

		chunkData, err := decompressChunk(ifd.Compression, compressedData, 2*chunkWidth*rows)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", chunkIndex, err)
		}

		values := make([]uint16, chunkWidth*rows)
		for i := range values {
			values[i] = byteOrder.Uint16(chunkData[2*i : 2*i+2])
		}
		if ifd.Predictor == predictorHorizontal {
			for y := range rows {
				for x := 1; x < chunkWidth; x++ {
					values[y*chunkWidth+x] += values[y*chunkWidth+x-1]
				}
			}
		}

		for y := range rows {
			imageRow := chunkRow*chunkLength + y
			if imageRow >= height {
				break
			}
			for x := range chunkWidth {
				imageCol := chunkCol*chunkWidth + x
				if imageCol >= width {
					break
				}
				raster.samples[imageRow*width+imageCol] = toInt16(values[y*chunkWidth+x], signed)
			}
		}
	}

	return raster, nil
}

// tileSamples returns the side×side samples of the tile at coord, row-major
// from its south-west corner, with no-data samples replaced by VoidSample.
// The south-west sample is located from r's georeferencing, or is the
// south-west pixel of r if r is not georeferenced. It returns ErrNoData if
// every sample is no-data.
func (r *geoTIFFRaster) tileSamples(coord TileCoord, side int) ([]int16, error) {
	col0, row0 := 0, r.height-1
	if r.georeferenced {
		col0 = int(math.Round((float64(coord.Lon) - r.originLon) / r.scaleX))
		row0 = int(math.Round((r.originLat - float64(coord.Lat)) / r.scaleY))
	}
	if col0 < 0 || r.width < col0+side || row0 < side-1 || r.height <= row0 {
		return nil, fmt.Errorf("%s: %dx%d image does not cover %dx%d tile", coord, r.width, r.height, side, side)
	}
	samples := make([]int16, side*side)
	hasData := false
	for y := range side {
		row := row0 - y
		for x := range side {
			sample := r.samples[row*r.width+col0+x]
			if sample == r.noData {
				samples[y*side+x] = VoidSample
				continue
			}
			samples[y*side+x] = sample
			hasData = true
		}
	}
	if !hasData {
		return nil, ErrNoData
	}
	return samples, nil
}

// decompressChunk returns the first size bytes of data decompressed.
func decompressChunk(compression uint16, data []byte, size int) ([]byte, error) {
	var r io.Reader
	switch compression {
	case 0, compressionNone:
		if len(data) < size {
			return nil, io.ErrUnexpectedEOF
		}
		return data[:size], nil
	case compressionLZW:
		lzwReader := lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
		defer lzwReader.Close()
		r = lzwReader
	case compressionDeflate, compressionDeflateOld:
		zlibReader, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer zlibReader.Close()
		r = zlibReader
	default:
		return nil, fmt.Errorf("compression %d: %w", compression, errors.ErrUnsupported)
	}
	chunkData := make([]byte, size)
	if _, err := io.ReadFull(r, chunkData); err != nil {
		return nil, err
	}
	return chunkData, nil
}

func toInt16(value uint16, signed bool) int16 {
	switch {
	case signed:
		return int16(value)
	case value > math.MaxInt16:
		return math.MaxInt16
	default:
		return int16(value)
	}
}
