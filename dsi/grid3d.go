package dsi

import (
	"image"
	"image/color"
	"math"

	"github.com/pkg/errors"

	"go.viam.com/emvs/rimage"
)

// ErrInvalidDimensions is returned for a grid with a non-positive dimension.
var ErrInvalidDimensions = errors.New("invalid grid dimensions")

// Grid3D is a dense W x H x D voxel grid of vote mass, stored slice by slice so that each depth
// plane is one contiguous block.
type Grid3D struct {
	w, h, d int
	cells   []float32
}

// NewGrid3D returns a zeroed grid.
func NewGrid3D(w, h, d int) (*Grid3D, error) {
	if w <= 0 || h <= 0 || d <= 0 {
		return nil, errors.Wrapf(ErrInvalidDimensions, "%dx%dx%d", w, h, d)
	}
	if d > math.MaxUint16+1 {
		return nil, errors.Wrapf(ErrInvalidDimensions, "at most %d depth planes, got %d", math.MaxUint16+1, d)
	}
	return &Grid3D{w: w, h: h, d: d, cells: make([]float32, w*h*d)}, nil
}

// Dims returns the width, height and number of slices.
func (g *Grid3D) Dims() (int, int, int) {
	return g.w, g.h, g.d
}

// Slice returns the contiguous storage of slice z, indexed y*W+x. Writes through it update the grid.
func (g *Grid3D) Slice(z int) []float32 {
	n := g.w * g.h
	return g.cells[z*n : (z+1)*n : (z+1)*n]
}

// At returns the value of a single cell.
func (g *Grid3D) At(x, y, z int) float32 {
	return g.cells[z*g.w*g.h+y*g.w+x]
}

// AccumulateAt splats a unit vote at the sub-pixel location (x, y) into slice, which must be one of
// the grid's slices. Each of the four bilinear corners receives its weight only if it lies inside
// the image; locations that are not finite write nothing.
func (g *Grid3D) AccumulateAt(x, y float32, slice []float32) {
	w, h := float32(g.w), float32(g.h)
	// Also false for NaN.
	if !(x >= -1 && x < w && y >= -1 && y < h) {
		return
	}
	fx := float32(math.Floor(float64(x)))
	fy := float32(math.Floor(float64(y)))
	ix, iy := int(fx), int(fy)
	dx, dy := x-fx, y-fy

	if iy >= 0 {
		row := slice[iy*g.w : (iy+1)*g.w]
		if ix >= 0 {
			row[ix] += (1 - dx) * (1 - dy)
		}
		if ix+1 < g.w {
			row[ix+1] += dx * (1 - dy)
		}
	}
	if iy+1 < g.h {
		row := slice[(iy+1)*g.w : (iy+2)*g.w]
		if ix >= 0 {
			row[ix] += (1 - dx) * dy
		}
		if ix+1 < g.w {
			row[ix+1] += dx * dy
		}
	}
}

// CollapseMaxZSlice returns, per pixel, the largest value across slices and the slice holding it.
// Ties go to the lowest slice.
func (g *Grid3D) CollapseMaxZSlice() (*rimage.FloatMap, *image.Gray16) {
	confidence := rimage.NewFloatMap(g.w, g.h)
	indices := image.NewGray16(image.Rect(0, 0, g.w, g.h))
	best := confidence.Data()
	copy(best, g.Slice(0))
	argmax := make([]uint16, g.w*g.h)
	for z := 1; z < g.d; z++ {
		for i, v := range g.Slice(z) {
			if v > best[i] {
				best[i] = v
				argmax[i] = uint16(z)
			}
		}
	}
	for y := 0; y < g.h; y++ {
		for x := 0; x < g.w; x++ {
			indices.SetGray16(x, y, color.Gray16{Y: argmax[y*g.w+x]})
		}
	}
	return confidence, indices
}

// Reset zeroes every cell.
func (g *Grid3D) Reset() {
	clear(g.cells)
}

// Sum returns the total vote mass in the grid.
func (g *Grid3D) Sum() float64 {
	sum := 0.0
	for z := 0; z < g.d; z++ {
		sum += g.SliceSum(z)
	}
	return sum
}

// SliceSum returns the total vote mass of slice z.
func (g *Grid3D) SliceSum(z int) float64 {
	sum := 0.0
	for _, v := range g.Slice(z) {
		sum += float64(v)
	}
	return sum
}
