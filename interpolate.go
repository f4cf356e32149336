package terrain

import "math"

// A Raster is a lattice of samples.
type Raster interface {
	// Sample returns the sample at coord and whether the raster has data
	// there. Missing samples are 0.
	Sample(coord Coord) (float64, bool)
}

// latticeEpsilon is the distance, in lattice units, within which a coordinate
// is taken to be on the lattice.
const latticeEpsilon = 1e-9

// InterpolateBilinear blends the four lattice samples surrounding x, y, which
// are in lattice units. It reports false if any sample with a non-zero weight
// was missing.
func InterpolateBilinear(raster Raster, x, y float64) (float64, bool) {
	x = snapToLattice(x)
	y = snapToLattice(y)
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	dx := x - float64(x0)
	dy := y - float64(y0)
	s00, ok00 := raster.Sample(Coord{X: x0, Y: y0})
	s10, ok10 := raster.Sample(Coord{X: x0 + 1, Y: y0})
	s01, ok01 := raster.Sample(Coord{X: x0, Y: y0 + 1})
	s11, ok11 := raster.Sample(Coord{X: x0 + 1, Y: y0 + 1})
	w00 := (1 - dx) * (1 - dy)
	w10 := dx * (1 - dy)
	w01 := (1 - dx) * dy
	w11 := dx * dy
	result := s00*w00 + s10*w10 + s01*w01 + s11*w11
	ok := (ok00 || w00 == 0) && (ok10 || w10 == 0) && (ok01 || w01 == 0) && (ok11 || w11 == 0)
	return result, ok
}

// snapToLattice rounds v to the nearest integer if it is within
// latticeEpsilon of it. Degrees scaled to lattice units rarely land exactly
// on an integer.
func snapToLattice(v float64) float64 {
	if r := math.Round(v); math.Abs(v-r) < latticeEpsilon {
		return r
	}
	return v
}
