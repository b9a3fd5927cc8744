// Package rimage holds the per-pixel maps and 2D filters used to turn a DSI into a depth map.
package rimage

import (
	"image"
	"math"
)

// FloatMap is a dense row-major single channel float32 image.
type FloatMap struct {
	width  int
	height int
	data   []float32
}

// NewFloatMap returns a zeroed map.
func NewFloatMap(width, height int) *FloatMap {
	return &FloatMap{width: width, height: height, data: make([]float32, width*height)}
}

// Width returns the horizontal size of the map.
func (fm *FloatMap) Width() int {
	return fm.width
}

// Height returns the vertical size of the map.
func (fm *FloatMap) Height() int {
	return fm.height
}

// Bounds returns the map's rectangle, matching the image package.
func (fm *FloatMap) Bounds() image.Rectangle {
	return image.Rect(0, 0, fm.width, fm.height)
}

// In reports whether (x, y) is inside the map.
func (fm *FloatMap) In(x, y int) bool {
	return x >= 0 && y >= 0 && x < fm.width && y < fm.height
}

// At returns the value at (x, y).
func (fm *FloatMap) At(x, y int) float32 {
	return fm.data[y*fm.width+x]
}

// Set assigns the value at (x, y).
func (fm *FloatMap) Set(x, y int, v float32) {
	fm.data[y*fm.width+x] = v
}

// Data exposes the underlying row-major storage.
func (fm *FloatMap) Data() []float32 {
	return fm.data
}

// MinMax returns the smallest and largest values. An empty map returns (0, 0).
func (fm *FloatMap) MinMax() (float32, float32) {
	if len(fm.data) == 0 {
		return 0, 0
	}
	lo, hi := fm.data[0], fm.data[0]
	for _, v := range fm.data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// NormalizeToGray linearly maps [min, max] of the map onto [0, 255] with round-half-even and
// saturation. A constant map becomes all zeros.
func NormalizeToGray(fm *FloatMap) *image.Gray {
	out := image.NewGray(fm.Bounds())
	lo, hi := fm.MinMax()
	span := float64(hi) - float64(lo)
	if span <= math.SmallestNonzeroFloat32 {
		return out
	}
	scale := 255.0 / span
	for y := 0; y < fm.height; y++ {
		row := out.Pix[y*out.Stride : y*out.Stride+fm.width]
		for x := range row {
			row[x] = saturateUint8((float64(fm.At(x, y)) - float64(lo)) * scale)
		}
	}
	return out
}

func saturateUint8(v float64) uint8 {
	v = math.RoundToEven(v)
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v)
	}
}
